package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

const dateLayout = "2006-01-02"

// bumpDaily suma el evento al resumen de su día UTC.
func bumpDaily(ctx context.Context, tx *sql.Tx, ev domain.LifecycleEvent) error {
	var opened, closed, failed, wins, losses int
	var pnl, volume float64
	switch ev.Kind {
	case domain.EventPositionOpened:
		opened = 1
		volume = ev.ValueUSD
	case domain.EventPositionClosed:
		closed = 1
		volume = ev.ValueUSD
		pnl = ev.RealizedPnL
		if pnl > 0 {
			wins = 1
		} else if pnl < 0 {
			losses = 1
		}
	case domain.EventTradeFailed:
		failed = 1
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO daily (date, opened, closed, failed, wins, losses, realized_pnl, volume_usd)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			opened       = opened + excluded.opened,
			closed       = closed + excluded.closed,
			failed       = failed + excluded.failed,
			wins         = wins + excluded.wins,
			losses       = losses + excluded.losses,
			realized_pnl = realized_pnl + excluded.realized_pnl,
			volume_usd   = volume_usd + excluded.volume_usd`,
		ev.At.UTC().Format(dateLayout), opened, closed, failed, wins, losses, pnl, volume,
	)
	if err != nil {
		return fmt.Errorf("upsert daily: %w", err)
	}
	return nil
}

// Dailies devuelve hasta limit resúmenes diarios, más recientes primero.
// limit <= 0 devuelve todos.
func (j *SQLiteJournal) Dailies(ctx context.Context, limit int) ([]domain.DailySummary, error) {
	if limit <= 0 {
		limit = -1 // sin límite en SQLite
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT date, opened, closed, failed, wins, losses, realized_pnl, volume_usd
		FROM daily
		ORDER BY date DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.Dailies: query: %w", err)
	}
	defer rows.Close()

	var out []domain.DailySummary
	for rows.Next() {
		var d domain.DailySummary
		var date string
		if err := rows.Scan(&date, &d.Opened, &d.Closed, &d.Failed, &d.Wins, &d.Losses,
			&d.RealizedPnL, &d.VolumeUSD); err != nil {
			return nil, fmt.Errorf("storage.Dailies: scan row: %w", err)
		}
		d.Date, _ = time.Parse(dateLayout, date)
		out = append(out, d)
	}
	return out, rows.Err()
}
