package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

const (
	kellyFraction       = 0.25
	volatilityBaseline  = 0.5
	defaultVolatility   = 0.5
	maxDynamicStop      = 0.25
	minPositionUSD      = 10.0
	maxExposureRatio    = 0.8
	dailyLossLimitPct   = 0.10
	correlationProxy    = 0.5
	softStopExitPercent = 0.5
)

// Config holds the trading limits enforced by the Manager.
type Config struct {
	InitialCapital  float64
	MaxPositionSize float64 // fraction of cash per position, <= 0.5
	MaxPositions    int
	StopLoss        float64 // hard stop, fraction
	SoftStopLoss    float64 // soft stop, fraction, < StopLoss
	TakeProfitTiers []domain.TakeProfitTier
}

// Manager owns the portfolio: cash, open positions and realized PnL.
// All methods are safe for concurrent use.
type Manager struct {
	cfg Config
	now func() time.Time

	mu           sync.RWMutex
	cash         float64
	positions    []*domain.Position
	byAddress    map[string]*domain.Position
	dailyPnL     float64
	totalPnL     float64
	closedTrades int
	wins         int
	day          time.Time
}

// NewManager creates a Manager funded with cfg.InitialCapital.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		cfg:       cfg,
		now:       time.Now,
		cash:      cfg.InitialCapital,
		byAddress: make(map[string]*domain.Position),
	}
	m.day = dayOf(m.now())
	return m
}

// Config returns the limits the Manager was built with.
func (m *Manager) Config() Config {
	return m.cfg
}

// SizePosition returns the fraction of capital to commit using fractional
// Kelly scaled down by volatility, clamped to [0, MaxPositionSize].
func (m *Manager) SizePosition(winRate, odds, volatility float64) float64 {
	b := odds - 1
	if b <= 0 {
		return 0
	}
	if volatility <= 0 {
		volatility = defaultVolatility
	}

	kelly := (b*winRate - (1 - winRate)) / b
	volMultiplier := 1 / (volatility / volatilityBaseline)
	size := kelly * kellyFraction * volMultiplier

	if math.IsNaN(size) || size <= 0 {
		return 0
	}
	return math.Min(size, m.cfg.MaxPositionSize)
}

// SizeUSD converts SizePosition into dollars of current cash.
func (m *Manager) SizeUSD(winRate, odds, volatility float64) float64 {
	m.mu.RLock()
	cash := m.cash
	m.mu.RUnlock()
	return cash * m.SizePosition(winRate, odds, volatility)
}

// DynamicStopLoss returns the stop price for an entry, widening the hard stop
// with volatility and capping it at 25% below entry.
func (m *Manager) DynamicStopLoss(entryPrice, volatility float64) float64 {
	if volatility <= 0 {
		volatility = defaultVolatility
	}
	stop := m.cfg.StopLoss * (volatility / volatilityBaseline)
	stop = math.Min(stop, maxDynamicStop)
	return entryPrice * (1 - stop)
}

// CheckStopLoss evaluates the hard stop first, then the soft stop.
func (m *Manager) CheckStopLoss(pos *domain.Position, currentPrice float64) domain.ExitDecision {
	pnl := pos.PnLPercent(currentPrice)

	if pnl <= -m.cfg.StopLoss {
		return domain.ExitDecision{
			ShouldExit:  true,
			Reason:      fmt.Sprintf("Hard stop loss triggered at %.1f%%", pnl*100),
			ExitPercent: 1.0,
		}
	}
	if pnl <= -m.cfg.SoftStopLoss {
		return domain.ExitDecision{
			ShouldExit:  true,
			Reason:      fmt.Sprintf("Soft stop loss triggered at %.1f%%", pnl*100),
			ExitPercent: softStopExitPercent,
		}
	}
	return domain.ExitDecision{}
}

// CheckTakeProfit fires every untriggered tier whose threshold has been
// reached and marks it triggered in the same critical section, so a tier can
// never fire twice.
func (m *Manager) CheckTakeProfit(pos *domain.Position, currentPrice float64) []domain.ExitDecision {
	pnl := pos.PnLPercent(currentPrice)

	m.mu.Lock()
	defer m.mu.Unlock()

	var actions []domain.ExitDecision
	for i := range pos.TakeProfitLevels {
		level := &pos.TakeProfitLevels[i]
		if level.Triggered || pnl < level.Threshold {
			continue
		}
		level.Triggered = true
		actions = append(actions, domain.ExitDecision{
			ShouldExit:  true,
			Reason:      fmt.Sprintf("Take profit at %.0f%%", level.Threshold*100),
			ExitPercent: level.ExitPercent,
		})
	}
	return actions
}

// PortfolioRisk summarizes exposure against the configured ceiling.
func (m *Manager) PortfolioRisk() domain.PortfolioRisk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.portfolioRiskLocked()
}

func (m *Manager) portfolioRiskLocked() domain.PortfolioRisk {
	var exposure float64
	for _, p := range m.positions {
		exposure += p.ValueUSD
	}

	// Correlation is a flat proxy until per-token return series are tracked.
	var correlation float64
	if len(m.positions) > 1 {
		correlation = correlationProxy
	}

	var diversification float64
	if m.cfg.MaxPositions > 0 {
		diversification = float64(len(m.positions)) / float64(m.cfg.MaxPositions)
	}

	return domain.PortfolioRisk{
		TotalExposure:   exposure,
		MaxExposure:     float64(m.cfg.MaxPositions) * m.totalValueLocked() * m.cfg.MaxPositionSize,
		Diversification: diversification,
		CorrelationRisk: correlation,
	}
}

// CanOpenPosition is the admission gate for new positions.
func (m *Manager) CanOpenPosition() domain.Admission {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.positions) >= m.cfg.MaxPositions {
		return domain.Admission{Reason: fmt.Sprintf("Max positions reached (%d)", m.cfg.MaxPositions)}
	}
	if m.cash*m.cfg.MaxPositionSize < minPositionUSD {
		return domain.Admission{Reason: "Insufficient capital for minimum position"}
	}

	risk := m.portfolioRiskLocked()
	if risk.MaxExposure <= 0 || risk.TotalExposure/risk.MaxExposure > maxExposureRatio {
		return domain.Admission{Reason: "Portfolio risk too high"}
	}
	return domain.Admission{Allowed: true}
}

// MinPositionUSD is the smallest position the Manager will admit.
func (m *Manager) MinPositionUSD() float64 {
	return minPositionUSD
}

// CheckCircuitBreaker reports whether today's losses reached 10% of the
// portfolio. It is advisory: the caller decides to stop opening positions.
func (m *Manager) CheckCircuitBreaker() domain.BreakerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()

	// Sin pérdida no hay breaker, aunque el capital sea cero.
	limit := -dailyLossLimitPct * m.totalValueLocked()
	if m.dailyPnL < 0 && m.dailyPnL <= limit {
		return domain.BreakerStatus{
			Triggered: true,
			Reason:    fmt.Sprintf("Daily loss limit reached: $%.2f", m.dailyPnL),
		}
	}
	return domain.BreakerStatus{}
}

// EstimateVolatility is the population standard deviation of simple returns.
// Fewer than two prices yields the default of 0.5.
func EstimateVolatility(prices []float64) float64 {
	if len(prices) < 2 {
		return defaultVolatility
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	if len(returns) == 0 {
		return defaultVolatility
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}

// Portfolio returns a snapshot with TotalValueUSD recomputed.
func (m *Manager) Portfolio() domain.Portfolio {
	m.mu.RLock()
	defer m.mu.RUnlock()

	positions := make([]domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		positions = append(positions, p.Clone())
	}
	var winRate float64
	if m.closedTrades > 0 {
		winRate = float64(m.wins) / float64(m.closedTrades)
	}
	return domain.Portfolio{
		TotalValueUSD: m.totalValueLocked(),
		CashUSD:       m.cash,
		Positions:     positions,
		DailyPnL:      m.dailyPnL,
		TotalPnL:      m.totalPnL,
		WinRate:       winRate,
		ClosedTrades:  m.closedTrades,
	}
}

func (m *Manager) totalValueLocked() float64 {
	total := m.cash
	for _, p := range m.positions {
		total += p.ValueUSD
	}
	return total
}

func (m *Manager) rolloverLocked() {
	today := dayOf(m.now())
	if today.After(m.day) {
		m.day = today
		m.dailyPnL = 0
	}
}

func dayOf(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
