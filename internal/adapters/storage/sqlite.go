package storage

// sqlite.go: journal de trading en SQLite.
//
// Tablas:
//   trades   : un registro por evento de posición (opened/closed/failed)
//   positions: espejo de las posiciones abiertas (UPSERT); solo para
//               reporting, no se restaura al arrancar
//   daily    : resumen por día UTC, actualizado en cada evento
//
// Los tiempos se guardan como unix millis para poder filtrar por rango
// sin depender del formato de texto del driver.

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id            TEXT PRIMARY KEY,   -- UUID
    at_ms         INTEGER NOT NULL,
    kind          TEXT    NOT NULL,   -- opened / closed / failed
    mint          TEXT    NOT NULL,
    symbol        TEXT    NOT NULL DEFAULT '',
    side          TEXT    NOT NULL DEFAULT '',
    price         REAL    NOT NULL DEFAULT 0,
    value_usd     REAL    NOT NULL DEFAULT 0,
    exit_pct      REAL    NOT NULL DEFAULT 0,
    realized_pnl  REAL    NOT NULL DEFAULT 0,
    stop_price    REAL    NOT NULL DEFAULT 0,
    tx            TEXT    NOT NULL DEFAULT '',
    simulated     INTEGER NOT NULL DEFAULT 0,
    reason        TEXT    NOT NULL DEFAULT '',
    error         TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS positions (
    mint          TEXT PRIMARY KEY,
    symbol        TEXT    NOT NULL DEFAULT '',
    entry_price   REAL    NOT NULL,
    value_usd     REAL    NOT NULL,
    stop_price    REAL    NOT NULL DEFAULT 0,
    realized_pnl  REAL    NOT NULL DEFAULT 0,
    entry_tx      TEXT    NOT NULL DEFAULT '',
    opened_ms     INTEGER NOT NULL,
    updated_ms    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS daily (
    date          TEXT PRIMARY KEY,   -- YYYY-MM-DD UTC
    opened        INTEGER NOT NULL DEFAULT 0,
    closed        INTEGER NOT NULL DEFAULT 0,
    failed        INTEGER NOT NULL DEFAULT 0,
    wins          INTEGER NOT NULL DEFAULT 0,
    losses        INTEGER NOT NULL DEFAULT 0,
    realized_pnl  REAL    NOT NULL DEFAULT 0,
    volume_usd    REAL    NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_trades_at   ON trades(at_ms);
CREATE INDEX IF NOT EXISTS idx_trades_mint ON trades(mint);
`

const retentionTrades = 90 * 24 * time.Hour

// SQLiteJournal implementa ports.TradeJournal usando SQLite (pure Go, sin CGo).
type SQLiteJournal struct {
	db  *sql.DB
	mu  sync.Mutex // serializa las escrituras multi-tabla
	now func() time.Time
}

// NewSQLiteJournal abre (o crea) la base de datos en la ruta dada, aplica el
// schema y limpia trades antiguos.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteJournal: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteJournal: apply schema: %w", err)
	}

	j := &SQLiteJournal{db: db, now: time.Now}
	j.pruneOld(context.Background())
	return j, nil
}

// Close cierra la conexión a la base de datos.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// pruneOld elimina trades antiguos para mantener la DB ligera.
// El resumen diario se conserva.
func (j *SQLiteJournal) pruneOld(ctx context.Context) {
	cutoff := j.now().Add(-retentionTrades).UnixMilli()
	if _, err := j.db.ExecContext(ctx, `DELETE FROM trades WHERE at_ms < ?`, cutoff); err != nil {
		slog.Warn("storage: prune failed", "err", err)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
