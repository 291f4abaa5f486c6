package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// Console implementa ports.LifecycleNotifier y ports.StatusReporter.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout. table imprime la
// tabla de posiciones en cada status; si no, una línea compacta.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime una línea por evento.
func (c *Console) Notify(_ context.Context, ev domain.LifecycleEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	ts := at.Format("15:04:05")
	sim := ""
	if ev.Simulated {
		sim = " [SIMULATED]"
	}

	switch ev.Kind {
	case domain.EventBotStarted:
		fmt.Fprintf(c.out, "[%s] sniper started\n", ts)
	case domain.EventBotStopped:
		fmt.Fprintf(c.out, "[%s] sniper stopped (open positions left untouched)\n", ts)
	case domain.EventPositionOpened:
		fmt.Fprintf(c.out, "[%s] BUY  %-10s $%.2f @ $%.8f stop $%.8f tx %s%s\n",
			ts, label(ev.Token), ev.ValueUSD, ev.Price, ev.StopPrice, short(ev.TxHandle), sim)
		if ev.Reason != "" {
			fmt.Fprintf(c.out, "           %s\n", ev.Reason)
		}
	case domain.EventPositionClosed:
		fmt.Fprintf(c.out, "[%s] SELL %-10s %3.0f%% @ $%.8f pnl %s | %s tx %s%s\n",
			ts, label(ev.Token), ev.ExitPercent*100, ev.Price, money(ev.RealizedPnL), ev.Reason, short(ev.TxHandle), sim)
	case domain.EventTradeFailed:
		fmt.Fprintf(c.out, "[%s] FAIL %-10s %s %s: %s\n",
			ts, label(ev.Token), ev.Side, ev.Reason, ev.Error)
	}
	return nil
}

// ReportStatus imprime el estado periódico del bot.
func (c *Console) ReportStatus(_ context.Context, st domain.BotStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pf := st.Portfolio
	state := "stopped"
	if st.Running {
		state = "running"
	}
	fmt.Fprintf(c.out, "[%s] %s | value %s cash %s | daily %s total %s | pos %d pending %d | dropped %d rot %d | %s\n",
		st.At.Format("15:04:05"), state,
		fmt.Sprintf("$%.2f", pf.TotalValueUSD), fmt.Sprintf("$%.2f", pf.CashUSD),
		money(pf.DailyPnL), money(pf.TotalPnL),
		len(pf.Positions), st.Pending, st.DroppedEvents, st.Rotations,
		outcomeSummary(st.Outcomes),
	)

	if c.table && len(pf.Positions) > 0 {
		c.printPositions(pf.Positions)
	}
	return nil
}

func (c *Console) printPositions(positions []domain.Position) {
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Token", "Entry", "Value", "Stop", "Realized", "TP hit", "Age")

	for i, p := range positions {
		hit := 0
		for _, lvl := range p.TakeProfitLevels {
			if lvl.Triggered {
				hit++
			}
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			label(p.Token()),
			fmt.Sprintf("$%.8f", p.EntryPrice),
			fmt.Sprintf("$%.2f", p.ValueUSD),
			fmt.Sprintf("$%.8f", p.StopPrice),
			money(p.RealizedPnL),
			fmt.Sprintf("%d/%d", hit, len(p.TakeProfitLevels)),
			time.Since(p.EntryTime).Round(time.Second).String(),
		)
	}
	table.Render()
}

// --- helpers ---

func label(t domain.Token) string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return short(t.Address)
}

func short(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:4] + ".." + s[len(s)-4:]
}

func money(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("+$%.2f", v)
}

func outcomeSummary(outcomes map[string]int) string {
	if len(outcomes) == 0 {
		return "no events"
	}
	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%d", k, outcomes[k]))
	}
	return strings.Join(parts, " ")
}
