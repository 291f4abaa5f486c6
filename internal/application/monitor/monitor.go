package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/sniperbot/internal/application/risk"
	"github.com/alejandrodnm/sniperbot/internal/domain"
	"github.com/alejandrodnm/sniperbot/internal/ports"
)

const (
	defaultInterval    = 5 * time.Second
	defaultHistorySize = 120
)

// Closer exits part or all of a position.
type Closer interface {
	ClosePosition(ctx context.Context, address string, pct, price float64, reason string) error
}

// Config holds configuration for the position monitor.
type Config struct {
	Interval    time.Duration
	HistorySize int // price samples kept per position for volatility
}

// TickResult summarizes one pass over the open positions.
type TickResult struct {
	Evaluated   int
	StopLosses  int
	TakeProfits int
	PriceErrors int
	CloseErrors int
}

// Monitor evaluates every open position on a fixed cadence and drives exits.
type Monitor struct {
	cfg    Config
	risk   *risk.Manager
	prices ports.PriceFeed
	closer Closer

	mu      sync.Mutex
	history map[string][]float64
}

// New creates a position monitor.
func New(cfg Config, rm *risk.Manager, prices ports.PriceFeed, closer Closer) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.HistorySize <= 1 {
		cfg.HistorySize = defaultHistorySize
	}
	return &Monitor{
		cfg:     cfg,
		risk:    rm,
		prices:  prices,
		closer:  closer,
		history: make(map[string][]float64),
	}
}

// Run ticks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res := m.Tick(ctx)
			if res.StopLosses+res.TakeProfits+res.PriceErrors+res.CloseErrors > 0 {
				slog.Debug("monitor: tick",
					"evaluated", res.Evaluated,
					"stop_losses", res.StopLosses,
					"take_profits", res.TakeProfits,
					"price_errors", res.PriceErrors,
					"close_errors", res.CloseErrors,
				)
			}
		}
	}
}

// Tick evaluates all open positions once. A stop-loss exit skips take-profit
// evaluation for that position in the same tick.
func (m *Monitor) Tick(ctx context.Context) TickResult {
	var res TickResult
	open := m.risk.OpenPositions()
	m.pruneHistory(open)

	for _, pos := range open {
		if ctx.Err() != nil {
			return res
		}
		res.Evaluated++

		price, err := m.prices.Price(ctx, pos.TokenAddress)
		if err != nil || price <= 0 {
			res.PriceErrors++
			slog.Debug("monitor: price unavailable", "token", pos.TokenAddress, "err", err)
			continue
		}
		m.record(pos.TokenAddress, price)

		if stop := m.risk.CheckStopLoss(pos, price); stop.ShouldExit {
			res.StopLosses++
			if err := m.closer.ClosePosition(ctx, pos.TokenAddress, stop.ExitPercent, price, stop.Reason); err != nil {
				res.CloseErrors++
			}
			continue
		}

		for _, tp := range m.risk.CheckTakeProfit(pos, price) {
			res.TakeProfits++
			if err := m.closer.ClosePosition(ctx, pos.TokenAddress, tp.ExitPercent, price, tp.Reason); err != nil {
				res.CloseErrors++
			}
		}
	}
	return res
}

// record appends a price sample and refreshes the volatility stop.
func (m *Monitor) record(address string, price float64) {
	m.mu.Lock()
	h := append(m.history[address], price)
	if len(h) > m.cfg.HistorySize {
		h = h[len(h)-m.cfg.HistorySize:]
	}
	m.history[address] = h
	samples := append([]float64(nil), h...)
	m.mu.Unlock()

	m.risk.UpdateStop(address, risk.EstimateVolatility(samples))
}

// History returns the recorded prices for address.
func (m *Monitor) History(address string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.history[address]...)
}

func (m *Monitor) pruneHistory(open []*domain.Position) {
	live := make(map[string]struct{}, len(open))
	for _, p := range open {
		live[p.TokenAddress] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for addr := range m.history {
		if _, ok := live[addr]; !ok {
			delete(m.history, addr)
		}
	}
}
