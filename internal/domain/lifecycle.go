package domain

import "time"

// LifecycleKind identifies a position lifecycle notification.
type LifecycleKind string

const (
	EventPositionOpened LifecycleKind = "opened"
	EventPositionClosed LifecycleKind = "closed"
	EventTradeFailed    LifecycleKind = "failed"
	EventBotStarted     LifecycleKind = "started"
	EventBotStopped     LifecycleKind = "stopped"
)

// LifecycleEvent is emitted by the orchestrator whenever a position or the bot
// changes state.
type LifecycleEvent struct {
	Kind        LifecycleKind
	Token       Token
	Side        OrderSide
	Price       float64 // USD per token at the time of the event
	ValueUSD    float64 // USD moved by the order
	ExitPercent float64
	RealizedPnL float64
	StopPrice   float64
	TxHandle    string
	Simulated   bool
	Reason      string
	Error       string
	At          time.Time
}

// TradeRecord is a persisted lifecycle event.
type TradeRecord struct {
	ID string
	LifecycleEvent
}

// JournalStats aggregates the trade journal for reporting.
type JournalStats struct {
	From        time.Time
	To          time.Time
	Opened      int
	Closed      int
	Failed      int
	Wins        int
	Losses      int
	RealizedPnL float64
	VolumeUSD   float64
}

// WinRate returns wins over closing events with realized PnL.
func (s JournalStats) WinRate() float64 {
	if s.Wins+s.Losses == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Wins+s.Losses)
}

// BotStatus is the periodic status snapshot of the orchestrator.
type BotStatus struct {
	Running       bool
	Pending       int   // buys in flight
	DroppedEvents int64 // discovery events evicted from the full queue
	Rotations     int   // endpoint failovers so far
	Outcomes      map[string]int
	Portfolio     Portfolio
	At            time.Time
}

// DailySummary es el agregado del journal para un día UTC.
type DailySummary struct {
	Date        time.Time
	Opened      int
	Closed      int
	Failed      int
	Wins        int
	Losses      int
	RealizedPnL float64
	VolumeUSD   float64
}
