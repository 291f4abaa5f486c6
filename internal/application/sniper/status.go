package sniper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// Status returns a snapshot of the orchestrator.
func (b *Bot) Status() domain.BotStatus {
	b.statsMu.Lock()
	outcomes := make(map[string]int, len(b.outcomes))
	for k, v := range b.outcomes {
		outcomes[string(k)] = v
	}
	b.statsMu.Unlock()

	st := domain.BotStatus{
		Running:       b.State() == StateRunning,
		Pending:       b.pendingCount(),
		DroppedEvents: b.queue.Dropped(),
		Outcomes:      outcomes,
		Portfolio:     b.deps.Risk.Portfolio(),
		At:            b.now(),
	}
	if b.deps.Endpoints != nil {
		st.Rotations = b.deps.Endpoints.Rotations()
	}
	return st
}

func (b *Bot) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.reportStatus(ctx)
		}
	}
}

func (b *Bot) reportStatus(ctx context.Context) {
	st := b.Status()
	risk := b.deps.Risk.PortfolioRisk()
	slog.Info("sniper: status",
		"positions", len(st.Portfolio.Positions),
		"cash", fmt.Sprintf("$%.2f", st.Portfolio.CashUSD),
		"total_value", fmt.Sprintf("$%.2f", st.Portfolio.TotalValueUSD),
		"daily_pnl", fmt.Sprintf("$%.2f", st.Portfolio.DailyPnL),
		"exposure", fmt.Sprintf("%.0f%%", risk.Utilization()*100),
		"pending", st.Pending,
		"queued", b.queue.Len(),
		"dropped", st.DroppedEvents,
		"rotations", st.Rotations,
	)
	if b.deps.Status == nil {
		return
	}
	if err := b.deps.Status.ReportStatus(ctx, st); err != nil {
		slog.Warn("sniper: status reporter error", "err", err)
	}
}
