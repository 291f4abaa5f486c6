package notify

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// ReportInput es lo que imprime -report.
type ReportInput struct {
	Stats   domain.JournalStats
	History []domain.TradeRecord
	Dailies []domain.DailySummary
	Open    []domain.Position // espejo del journal, no del bot vivo
}

// PrintReport imprime el journal: resumen, días, trades y posiciones abiertas.
func (c *Console) PrintReport(in ReportInput) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := in.Stats
	fmt.Fprintf(c.out, "\n=== TRADE JOURNAL %s → %s ===\n",
		st.From.Format("2006-01-02"), st.To.Format("2006-01-02"))
	fmt.Fprintf(c.out, "  opened %d | closed %d | failed %d | win rate %.0f%% (%dW/%dL)\n",
		st.Opened, st.Closed, st.Failed, st.WinRate()*100, st.Wins, st.Losses)
	fmt.Fprintf(c.out, "  realized %s | volume $%.2f\n", money(st.RealizedPnL), st.VolumeUSD)

	if len(in.Dailies) > 0 {
		fmt.Fprintln(c.out, "\n--- daily ---")
		table := tablewriter.NewWriter(c.out)
		table.Header("Date", "Opened", "Closed", "Failed", "W/L", "PnL", "Volume")
		for _, d := range in.Dailies {
			table.Append(
				d.Date.Format("2006-01-02"),
				fmt.Sprintf("%d", d.Opened),
				fmt.Sprintf("%d", d.Closed),
				fmt.Sprintf("%d", d.Failed),
				fmt.Sprintf("%d/%d", d.Wins, d.Losses),
				money(d.RealizedPnL),
				fmt.Sprintf("$%.2f", d.VolumeUSD),
			)
		}
		table.Render()
	}

	if len(in.History) > 0 {
		fmt.Fprintln(c.out, "\n--- trades ---")
		table := tablewriter.NewWriter(c.out)
		table.Header("Time", "Kind", "Token", "Side", "Price", "Value", "Exit", "PnL", "Reason")
		for _, r := range in.History {
			reason := r.Reason
			if r.Error != "" {
				reason = r.Error
			}
			if r.Simulated {
				reason += " [sim]"
			}
			table.Append(
				r.At.Local().Format(time.DateTime),
				string(r.Kind),
				label(r.Token),
				string(r.Side),
				fmt.Sprintf("$%.8f", r.Price),
				fmt.Sprintf("$%.2f", r.ValueUSD),
				fmt.Sprintf("%.0f%%", r.ExitPercent*100),
				money(r.RealizedPnL),
				truncate(reason, 40),
			)
		}
		table.Render()
	}

	if len(in.Open) > 0 {
		fmt.Fprintln(c.out, "\n--- open at last update ---")
		c.printPositions(in.Open)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
