package domain

import (
	"sort"
	"time"
)

// PositionStatus is the lifecycle state of a Position.
type PositionStatus string

const (
	PositionOpen       PositionStatus = "open"
	PositionClosed     PositionStatus = "closed"
	PositionLiquidated PositionStatus = "liquidated"
)

// TakeProfitTier is a configured profit threshold paired with the fraction to sell.
type TakeProfitTier struct {
	Threshold   float64 `yaml:"threshold"`    // pnl fraction, 0.5 = +50%
	ExitPercent float64 `yaml:"exit_percent"` // fraction of the remaining holding
}

// TakeProfitLevel is a tier attached to a position. Triggered is one-shot.
type TakeProfitLevel struct {
	Threshold   float64
	ExitPercent float64
	Triggered   bool
}

// Position is an open holding keyed by token address.
//
// TokenAddress, Symbol, Decimals, EntryPrice and EntryTime never change after
// creation. The remaining fields are owned by the risk manager and must only be
// mutated through it.
type Position struct {
	TokenAddress string
	Symbol       string
	Decimals     int
	EntryPrice   float64 // USD per token
	EntryTime    time.Time
	EntryTx      string

	Quantity         float64 // tokens held
	ValueUSD         float64 // cost basis still at risk
	StopPrice        float64 // volatility-adjusted stop, informational
	RealizedPnL      float64
	TakeProfitLevels []TakeProfitLevel
	Status           PositionStatus
}

// NewPosition builds an open position with its take-profit ladder sorted ascending.
func NewPosition(token Token, entryPrice, quantity, valueUSD float64, tiers []TakeProfitTier, now time.Time) *Position {
	levels := make([]TakeProfitLevel, 0, len(tiers))
	for _, t := range tiers {
		levels = append(levels, TakeProfitLevel{Threshold: t.Threshold, ExitPercent: t.ExitPercent})
	}
	sort.SliceStable(levels, func(i, j int) bool { return levels[i].Threshold < levels[j].Threshold })

	return &Position{
		TokenAddress:     token.Address,
		Symbol:           token.Symbol,
		Decimals:         token.Decimals,
		EntryPrice:       entryPrice,
		EntryTime:        now,
		Quantity:         quantity,
		ValueUSD:         valueUSD,
		TakeProfitLevels: levels,
		Status:           PositionOpen,
	}
}

// PnLPercent returns the unrealized return at the given price as a fraction.
func (p *Position) PnLPercent(currentPrice float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (currentPrice - p.EntryPrice) / p.EntryPrice
}

// Token returns the identity of the held mint.
func (p *Position) Token() Token {
	return Token{Address: p.TokenAddress, Symbol: p.Symbol, Decimals: p.Decimals}
}

// Clone returns a deep copy safe to hand out of the risk manager.
func (p *Position) Clone() Position {
	c := *p
	c.TakeProfitLevels = append([]TakeProfitLevel(nil), p.TakeProfitLevels...)
	return c
}

// Portfolio is a point-in-time view of capital and open positions.
type Portfolio struct {
	TotalValueUSD float64
	CashUSD       float64
	Positions     []Position
	DailyPnL      float64
	TotalPnL      float64
	WinRate       float64
	ClosedTrades  int
}

// ExposureUSD is the USD value held in open positions.
func (p Portfolio) ExposureUSD() float64 {
	var sum float64
	for _, pos := range p.Positions {
		sum += pos.ValueUSD
	}
	return sum
}

// PortfolioRisk is the exposure breakdown used by admission control.
type PortfolioRisk struct {
	TotalExposure   float64
	MaxExposure     float64
	Diversification float64 // open positions / max positions
	CorrelationRisk float64
}

// Utilization is exposure over its ceiling, 1 when the ceiling is zero.
func (r PortfolioRisk) Utilization() float64 {
	if r.MaxExposure <= 0 {
		return 1
	}
	return r.TotalExposure / r.MaxExposure
}

// ExitDecision is the outcome of a stop-loss or take-profit evaluation.
type ExitDecision struct {
	ShouldExit  bool
	Reason      string
	ExitPercent float64
}

// Admission is the answer of the risk manager to "may a new position be opened".
type Admission struct {
	Allowed bool
	Reason  string
}

// BreakerStatus reports the advisory daily-loss circuit breaker.
type BreakerStatus struct {
	Triggered bool
	Reason    string
}
