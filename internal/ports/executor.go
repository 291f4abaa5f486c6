package ports

import (
	"context"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// SwapRouter is the swap-routing/aggregation service.
type SwapRouter interface {
	// Quote prices an exact-in swap.
	Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error)

	// SwapTransaction builds the serialized transaction for a quote.
	// tipLamports > 0 embeds a relay tip in the transaction.
	SwapTransaction(ctx context.Context, quote domain.Quote, wallet string, tipLamports uint64) (domain.SwapTransaction, error)
}

// ChainEndpoint is one network access point. The execution engine rotates
// across a ranked list of them.
type ChainEndpoint interface {
	// URL identifies the endpoint in logs.
	URL() string

	// NativeBalance returns the wallet balance of the native asset in UI units.
	NativeBalance(ctx context.Context, wallet string) (float64, error)

	// TokenBalance returns the wallet balance of mint in base units, with the
	// decimals of the token account.
	TokenBalance(ctx context.Context, wallet, mint string) (domain.TokenAmount, error)

	// SendTransaction submits a serialized transaction and returns its signature.
	SendTransaction(ctx context.Context, tx domain.SwapTransaction) (string, error)

	// TransactionStatus returns the current status of a signature.
	TransactionStatus(ctx context.Context, signature string) (domain.TxStatus, error)
}

// BundleRelay submits transactions as MEV-protected bundles.
type BundleRelay interface {
	// SendBundle submits tx (carrying its tip) and returns the bundle id.
	SendBundle(ctx context.Context, tx domain.SwapTransaction) (string, error)

	// BundleStatus returns the landing status of a bundle.
	BundleStatus(ctx context.Context, bundleID string) (domain.TxStatus, error)
}
