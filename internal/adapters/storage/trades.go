package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// Notify persiste un evento de posición. Los eventos de arranque y parada
// del bot no se guardan.
func (j *SQLiteJournal) Notify(ctx context.Context, ev domain.LifecycleEvent) error {
	switch ev.Kind {
	case domain.EventPositionOpened, domain.EventPositionClosed, domain.EventTradeFailed:
	default:
		return nil
	}
	if ev.At.IsZero() {
		ev.At = j.now()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Notify: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trades
			(id, at_ms, kind, mint, symbol, side, price, value_usd, exit_pct,
			 realized_pnl, stop_price, tx, simulated, reason, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		ev.At.UnixMilli(),
		string(ev.Kind),
		ev.Token.Address,
		ev.Token.Symbol,
		string(ev.Side),
		ev.Price,
		ev.ValueUSD,
		ev.ExitPercent,
		ev.RealizedPnL,
		ev.StopPrice,
		ev.TxHandle,
		boolToInt(ev.Simulated),
		ev.Reason,
		ev.Error,
	); err != nil {
		return fmt.Errorf("storage.Notify: insert trade: %w", err)
	}

	if err := mirrorPosition(ctx, tx, ev); err != nil {
		return fmt.Errorf("storage.Notify: %w", err)
	}
	if err := bumpDaily(ctx, tx, ev); err != nil {
		return fmt.Errorf("storage.Notify: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Notify: commit: %w", err)
	}
	return nil
}

// mirrorPosition mantiene la tabla positions al día con el evento.
func mirrorPosition(ctx context.Context, tx *sql.Tx, ev domain.LifecycleEvent) error {
	now := ev.At.UnixMilli()
	switch ev.Kind {
	case domain.EventPositionOpened:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO positions
				(mint, symbol, entry_price, value_usd, stop_price, entry_tx, opened_ms, updated_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(mint) DO UPDATE SET
				symbol      = excluded.symbol,
				entry_price = excluded.entry_price,
				value_usd   = excluded.value_usd,
				stop_price  = excluded.stop_price,
				entry_tx    = excluded.entry_tx,
				opened_ms   = excluded.opened_ms,
				updated_ms  = excluded.updated_ms,
				realized_pnl = 0`,
			ev.Token.Address, ev.Token.Symbol, ev.Price, ev.ValueUSD, ev.StopPrice, ev.TxHandle, now, now,
		)
		if err != nil {
			return fmt.Errorf("upsert position: %w", err)
		}
	case domain.EventPositionClosed:
		if ev.ExitPercent >= 1 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE mint = ?`, ev.Token.Address); err != nil {
				return fmt.Errorf("delete position: %w", err)
			}
			return nil
		}
		// Un stop en cero significa que el evento no lo trae.
		_, err := tx.ExecContext(ctx, `
			UPDATE positions SET
				value_usd    = value_usd * (1 - ?),
				realized_pnl = realized_pnl + ?,
				stop_price   = CASE WHEN ? > 0 THEN ? ELSE stop_price END,
				updated_ms   = ?
			WHERE mint = ?`,
			ev.ExitPercent, ev.RealizedPnL, ev.StopPrice, ev.StopPrice, now, ev.Token.Address,
		)
		if err != nil {
			return fmt.Errorf("update position: %w", err)
		}
	}
	return nil
}

// History devuelve los trades del rango [from, to], más antiguos primero.
func (j *SQLiteJournal) History(ctx context.Context, from, to time.Time) ([]domain.TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, at_ms, kind, mint, symbol, side, price, value_usd, exit_pct,
		       realized_pnl, stop_price, tx, simulated, reason, error
		FROM trades
		WHERE at_ms BETWEEN ? AND ?
		ORDER BY at_ms ASC, rowid ASC`,
		from.UnixMilli(), to.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.History: query: %w", err)
	}
	defer rows.Close()

	var records []domain.TradeRecord
	for rows.Next() {
		var r domain.TradeRecord
		var atMs int64
		var kind, side string
		var simulated int
		if err := rows.Scan(
			&r.ID, &atMs, &kind, &r.Token.Address, &r.Token.Symbol, &side,
			&r.Price, &r.ValueUSD, &r.ExitPercent, &r.RealizedPnL, &r.StopPrice,
			&r.TxHandle, &simulated, &r.Reason, &r.Error,
		); err != nil {
			return nil, fmt.Errorf("storage.History: scan row: %w", err)
		}
		r.At = time.UnixMilli(atMs).UTC()
		r.Kind = domain.LifecycleKind(kind)
		r.Side = domain.OrderSide(side)
		r.Simulated = simulated == 1
		records = append(records, r)
	}
	return records, rows.Err()
}

// Stats agrega los trades del rango [from, to]. Wins/Losses cuentan eventos
// de cierre con PnL positivo/negativo.
func (j *SQLiteJournal) Stats(ctx context.Context, from, to time.Time) (domain.JournalStats, error) {
	st := domain.JournalStats{From: from, To: to}
	err := j.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(kind = 'opened'), 0),
			COALESCE(SUM(kind = 'closed'), 0),
			COALESCE(SUM(kind = 'failed'), 0),
			COALESCE(SUM(kind = 'closed' AND realized_pnl > 0), 0),
			COALESCE(SUM(kind = 'closed' AND realized_pnl < 0), 0),
			COALESCE(SUM(CASE WHEN kind = 'closed' THEN realized_pnl ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind IN ('opened', 'closed') THEN value_usd ELSE 0 END), 0)
		FROM trades
		WHERE at_ms BETWEEN ? AND ?`,
		from.UnixMilli(), to.UnixMilli(),
	).Scan(&st.Opened, &st.Closed, &st.Failed, &st.Wins, &st.Losses, &st.RealizedPnL, &st.VolumeUSD)
	if err != nil {
		return st, fmt.Errorf("storage.Stats: %w", err)
	}
	return st, nil
}

// OpenPositions devuelve el espejo de posiciones abiertas según el journal.
func (j *SQLiteJournal) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT mint, symbol, entry_price, value_usd, stop_price, realized_pnl, entry_tx, opened_ms
		FROM positions
		ORDER BY opened_ms ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage.OpenPositions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var p domain.Position
		var openedMs int64
		if err := rows.Scan(&p.TokenAddress, &p.Symbol, &p.EntryPrice, &p.ValueUSD,
			&p.StopPrice, &p.RealizedPnL, &p.EntryTx, &openedMs); err != nil {
			return nil, fmt.Errorf("storage.OpenPositions: scan row: %w", err)
		}
		p.EntryTime = time.UnixMilli(openedMs).UTC()
		p.Status = domain.PositionOpen
		out = append(out, p)
	}
	return out, rows.Err()
}
