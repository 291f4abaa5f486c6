package sniper

// workers.go: pool de workers que consumen la cola de descubrimiento.
//
// Cada worker procesa un token a la vez de principio a fin (filtros, scoring,
// compra). Varios tokens avanzan en paralelo mientras uno espera confirmación.

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// startWorkers lanza cfg.Workers consumidores sobre la cola.
func (b *Bot) startWorkers(ctx context.Context, g *errgroup.Group) {
	for i := 0; i < b.cfg.Workers; i++ {
		id := i
		g.Go(func() error {
			b.worker(ctx, id)
			return nil
		})
	}
}

func (b *Bot) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.queue.ch:
			outcome := b.HandleEvent(ctx, ev)
			slog.Debug("sniper: event processed",
				"worker", id,
				"token", ev.Token.Symbol,
				"outcome", outcome,
			)
		}
	}
}
