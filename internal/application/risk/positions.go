package risk

import (
	"fmt"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// CloseResult is the bookkeeping outcome of a partial or full close.
type CloseResult struct {
	Position    domain.Position // state after the close
	ProceedsUSD float64
	RealizedPnL float64
	Closed      bool // position left the open set
}

// OpenPosition inserts pos into the open set and moves its value out of cash.
// A second position for the same address is rejected with ErrPositionExists.
func (m *Manager) OpenPosition(pos *domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byAddress[pos.TokenAddress]; ok {
		return fmt.Errorf("risk.OpenPosition: %s: %w", pos.TokenAddress, domain.ErrPositionExists)
	}
	pos.Status = domain.PositionOpen
	m.positions = append(m.positions, pos)
	m.byAddress[pos.TokenAddress] = pos
	m.cash -= pos.ValueUSD
	return nil
}

// ClosePosition books the exit of pct of the position at exitPrice.
// pct >= 1 closes the position and removes it from the open set; otherwise
// value and quantity are scaled down by (1 - pct).
func (m *Manager) ClosePosition(address string, pct, exitPrice float64) (CloseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()

	pos, ok := m.byAddress[address]
	if !ok {
		return CloseResult{}, fmt.Errorf("risk.ClosePosition: %s: %w", address, domain.ErrPositionNotFound)
	}
	if pct <= 0 {
		return CloseResult{Position: pos.Clone()}, nil
	}
	full := pct >= 1
	if full {
		pct = 1
	}

	costBasis := pos.ValueUSD * pct
	proceeds := costBasis
	if pos.EntryPrice > 0 && exitPrice > 0 {
		proceeds = costBasis * (exitPrice / pos.EntryPrice)
	}
	realized := proceeds - costBasis

	m.cash += proceeds
	m.dailyPnL += realized
	m.totalPnL += realized
	pos.RealizedPnL += realized

	if full {
		pos.ValueUSD = 0
		pos.Quantity = 0
		pos.Status = domain.PositionClosed
		m.removeLocked(address)
		m.closedTrades++
		if pos.RealizedPnL > 0 {
			m.wins++
		}
	} else {
		pos.ValueUSD *= 1 - pct
		pos.Quantity *= 1 - pct
	}

	return CloseResult{
		Position:    pos.Clone(),
		ProceedsUSD: proceeds,
		RealizedPnL: realized,
		Closed:      full,
	}, nil
}

// HasPosition reports whether address has an open position.
func (m *Manager) HasPosition(address string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byAddress[address]
	return ok
}

// OpenPositions returns the live open positions in insertion order. Only the
// immutable fields may be read without going through the Manager.
func (m *Manager) OpenPositions() []*domain.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.Position(nil), m.positions...)
}

// Position returns a copy of the open position for address.
func (m *Manager) Position(address string) (domain.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.byAddress[address]
	if !ok {
		return domain.Position{}, false
	}
	return pos.Clone(), true
}

// UpdateStop stores the volatility-adjusted stop for an open position.
func (m *Manager) UpdateStop(address string, volatility float64) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.byAddress[address]
	if !ok {
		return 0, false
	}
	pos.StopPrice = m.DynamicStopLoss(pos.EntryPrice, volatility)
	return pos.StopPrice, true
}

// ResetDaily zeroes the daily PnL. It also happens on the first call after a
// UTC day boundary.
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.day = dayOf(m.now())
	m.dailyPnL = 0
}

func (m *Manager) removeLocked(address string) {
	delete(m.byAddress, address)
	for i, p := range m.positions {
		if p.TokenAddress == address {
			m.positions = append(m.positions[:i], m.positions[i+1:]...)
			return
		}
	}
}
