package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// TradeJournal persiste los eventos de trading para reporting.
// No se usa para restaurar posiciones al arrancar.
type TradeJournal interface {
	LifecycleNotifier

	// History devuelve los registros en el rango dado, más antiguos primero.
	History(ctx context.Context, from, to time.Time) ([]domain.TradeRecord, error)

	// Stats agrega el journal en el rango dado.
	Stats(ctx context.Context, from, to time.Time) (domain.JournalStats, error)

	// Dailies devuelve los resúmenes diarios, más recientes primero.
	Dailies(ctx context.Context, limit int) ([]domain.DailySummary, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
