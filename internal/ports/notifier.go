package ports

import (
	"context"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// LifecycleNotifier recibe los eventos de ciclo de vida de posiciones y del bot.
type LifecycleNotifier interface {
	// Notify entrega un evento. Un error no interrumpe el pipeline: el
	// orquestador lo registra y sigue.
	Notify(ctx context.Context, event domain.LifecycleEvent) error
}

// StatusReporter muestra el snapshot periódico del bot.
type StatusReporter interface {
	ReportStatus(ctx context.Context, status domain.BotStatus) error
}
