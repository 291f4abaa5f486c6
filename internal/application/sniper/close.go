package sniper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// ClosePosition sells pct of the position at address and books the exit at
// price. The book is only touched when the sell succeeds.
func (b *Bot) ClosePosition(ctx context.Context, address string, pct, price float64, reason string) error {
	pos, ok := b.deps.Risk.Position(address)
	if !ok {
		return fmt.Errorf("sniper.ClosePosition: %s: %w", address, domain.ErrPositionNotFound)
	}
	log := slog.With("token", pos.Symbol, "mint", address, "reason", reason)

	res := b.deps.Executor.Sell(ctx, pos.Token(), pct, b.cfg.MaxSlippage)
	if !res.Success {
		log.Error("sniper: sell failed", "pct", fmt.Sprintf("%.0f%%", pct*100), "err", res.Error)
		b.notify(ctx, domain.LifecycleEvent{
			Kind:        domain.EventTradeFailed,
			Token:       pos.Token(),
			Side:        domain.SideSell,
			Price:       price,
			ValueUSD:    pos.ValueUSD * pct,
			ExitPercent: pct,
			StopPrice:   pos.StopPrice,
			TxHandle:    res.TxHandle,
			Reason:      reason,
			Error:       res.Error,
			At:          b.now(),
		})
		if res.Err != nil {
			return fmt.Errorf("sniper.ClosePosition: sell: %w", res.Err)
		}
		return fmt.Errorf("sniper.ClosePosition: sell: %s", res.Error)
	}

	closed, err := b.deps.Risk.ClosePosition(address, pct, price)
	if err != nil {
		return fmt.Errorf("sniper.ClosePosition: book: %w", err)
	}

	log.Info("sniper: position exit",
		"pct", fmt.Sprintf("%.0f%%", pct*100),
		"price", fmt.Sprintf("$%.8f", price),
		"proceeds", fmt.Sprintf("$%.2f", closed.ProceedsUSD),
		"pnl", fmt.Sprintf("$%.2f", closed.RealizedPnL),
		"closed", closed.Closed,
		"tx", res.TxHandle,
	)
	b.notify(ctx, domain.LifecycleEvent{
		Kind:        domain.EventPositionClosed,
		Token:       pos.Token(),
		Side:        domain.SideSell,
		Price:       price,
		ValueUSD:    closed.ProceedsUSD,
		ExitPercent: pct,
		RealizedPnL: closed.RealizedPnL,
		StopPrice:   pos.StopPrice,
		TxHandle:    res.TxHandle,
		Simulated:   res.Simulated,
		Reason:      reason,
		At:          b.now(),
	})
	return nil
}
