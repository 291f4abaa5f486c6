package ports

import (
	"context"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// DiscoverySource empuja tokens recién descubiertos.
type DiscoverySource interface {
	// Run bloquea hasta que ctx se cancela o la fuente se rinde.
	// emit no debe bloquear al productor.
	Run(ctx context.Context, emit func(domain.DiscoveryEvent)) error
}

// MetadataProvider enriquece un mint con datos de mercado.
type MetadataProvider interface {
	TokenMetadata(ctx context.Context, address string) (domain.TokenMetadata, error)
}

// PriceFeed devuelve el precio actual en USD de un mint, o falla.
type PriceFeed interface {
	Price(ctx context.Context, address string) (float64, error)
}
