package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/sniperbot/config"
	"github.com/alejandrodnm/sniperbot/internal/adapters/notify"
	"github.com/alejandrodnm/sniperbot/internal/adapters/storage"
)

// runReport imprime los últimos days días del journal.
func runReport(cfg *config.Config, days int) error {
	journal, err := storage.NewSQLiteJournal(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("runReport: open journal: %w", err)
	}
	defer journal.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	to := time.Now()
	from := to.AddDate(0, 0, -days)

	stats, err := journal.Stats(ctx, from, to)
	if err != nil {
		return fmt.Errorf("runReport: stats: %w", err)
	}
	history, err := journal.History(ctx, from, to)
	if err != nil {
		return fmt.Errorf("runReport: history: %w", err)
	}
	dailies, err := journal.Dailies(ctx, days)
	if err != nil {
		return fmt.Errorf("runReport: dailies: %w", err)
	}
	open, err := journal.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("runReport: open positions: %w", err)
	}

	notify.NewConsole(true).PrintReport(notify.ReportInput{
		Stats:   stats,
		History: history,
		Dailies: dailies,
		Open:    open,
	})
	return nil
}
