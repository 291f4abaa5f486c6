package execution

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/sniperbot/internal/domain"
	"github.com/alejandrodnm/sniperbot/internal/ports"
)

const (
	defaultQuoteTimeout    = 5 * time.Second
	defaultConfirmTimeout  = 30 * time.Second
	defaultConfirmInterval = time.Second
	defaultSlippage        = 0.15
)

// Config holds configuration for the execution engine.
type Config struct {
	Wallet            string
	UseBundle         bool
	SimulateBundleAck bool    // acknowledge bundles locally when the relay is down
	DryRun            bool    // quotes are real, fills are simulated; nothing is built or sent
	MaxSlippage       float64 // fraction, used when the caller passes 0
	TipMinSOL         float64
	TipMaxSOL         float64
	QuoteTimeout      time.Duration
	ConfirmTimeout    time.Duration
	ConfirmInterval   time.Duration
}

// Engine turns buy/sell intents into submitted, confirmed swaps. It never
// returns errors: every failure is folded into the OrderResult.
type Engine struct {
	cfg       Config
	router    ports.SwapRouter
	relay     ports.BundleRelay
	endpoints *EndpointSet
	random    func() float64
	now       func() time.Time
	paper     *paperBook
}

// New creates an engine. relay may be nil when bundles are disabled.
func New(cfg Config, router ports.SwapRouter, relay ports.BundleRelay, endpoints *EndpointSet) *Engine {
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = defaultQuoteTimeout
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}
	if cfg.ConfirmInterval <= 0 {
		cfg.ConfirmInterval = defaultConfirmInterval
	}
	if cfg.MaxSlippage <= 0 {
		cfg.MaxSlippage = defaultSlippage
	}
	if cfg.TipMaxSOL < cfg.TipMinSOL {
		cfg.TipMaxSOL = cfg.TipMinSOL
	}
	return &Engine{
		cfg:       cfg,
		router:    router,
		relay:     relay,
		endpoints: endpoints,
		random:    rand.Float64,
		now:       time.Now,
		paper:     newPaperBook(),
	}
}

// Endpoints exposes the rotating endpoint set.
func (e *Engine) Endpoints() *EndpointSet {
	return e.endpoints
}

// Buy swaps amount of the native asset into token.
func (e *Engine) Buy(ctx context.Context, token domain.Token, amount, slippage float64) domain.OrderResult {
	lamports := toBaseUnits(amount, domain.NativeDecimals)
	if lamports == 0 {
		return e.failed(domain.SideBuy, "", fmt.Errorf("buy %s: amount %.9f: %w", token.Symbol, amount, domain.ErrInsufficientBalance))
	}

	quote := e.quote(ctx, domain.QuoteRequest{
		InputMint:   domain.NativeMint,
		OutputMint:  token.Address,
		Amount:      lamports,
		SlippageBps: e.slippageBps(slippage),
	})
	if quote == nil || quote.OutAmount == 0 {
		return e.failed(domain.SideBuy, "", fmt.Errorf("buy %s: %w", token.Address, domain.ErrQuoteUnavailable))
	}

	res := e.dispatch(ctx, *quote, domain.SideBuy)
	res.InAmount = fromBaseUnits(quote.InAmount, domain.NativeDecimals)
	res.OutAmount = fromBaseUnits(quote.OutAmount, token.Decimals)
	if res.Success && res.OutAmount > 0 {
		res.FilledPrice = res.InAmount / res.OutAmount
	}
	if res.Success && e.cfg.DryRun {
		e.paper.add(token.Address, domain.TokenAmount{Raw: quote.OutAmount, Decimals: token.Decimals})
	}
	return res
}

// Sell swaps pct of the wallet's holding of token back into the native asset.
// The amount is floor(raw balance × pct) in the account's own base units;
// token.Decimals from discovery metadata is not trusted here.
func (e *Engine) Sell(ctx context.Context, token domain.Token, pct, slippage float64) domain.OrderResult {
	balance := e.holding(ctx, token.Address)
	units := fractionOf(balance.Raw, pct)
	if units == 0 {
		return e.failed(domain.SideSell, "", fmt.Errorf("sell %s: balance %d base units: %w", token.Address, balance.Raw, domain.ErrInsufficientBalance))
	}

	quote := e.quote(ctx, domain.QuoteRequest{
		InputMint:   token.Address,
		OutputMint:  domain.NativeMint,
		Amount:      units,
		SlippageBps: e.slippageBps(slippage),
	})
	if quote == nil || quote.OutAmount == 0 {
		return e.failed(domain.SideSell, "", fmt.Errorf("sell %s: %w", token.Address, domain.ErrQuoteUnavailable))
	}

	res := e.dispatch(ctx, *quote, domain.SideSell)
	res.InAmount = fromBaseUnits(quote.InAmount, balance.Decimals)
	res.OutAmount = fromBaseUnits(quote.OutAmount, domain.NativeDecimals)
	if res.Success && res.InAmount > 0 {
		res.FilledPrice = res.OutAmount / res.InAmount
	}
	if res.Success && e.cfg.DryRun {
		e.paper.remove(token.Address, units)
	}
	return res
}

// quote asks the router for a price within QuoteTimeout. Any failure yields nil.
func (e *Engine) quote(ctx context.Context, req domain.QuoteRequest) *domain.Quote {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.QuoteTimeout)
	defer cancel()

	q, err := e.router.Quote(ctx, req)
	if err != nil {
		slog.Debug("execution: quote unavailable", "output", req.OutputMint, "err", err)
		return nil
	}
	return &q
}

func (e *Engine) dispatch(ctx context.Context, quote domain.Quote, side domain.OrderSide) domain.OrderResult {
	if e.cfg.DryRun {
		// El quote es el fill: no hay swap, ni relay, ni endpoint.
		return domain.OrderResult{
			Success:   true,
			Side:      side,
			TxHandle:  "dry-run-" + uuid.NewString(),
			Simulated: true,
			Endpoint:  "dry-run",
			At:        e.now(),
		}
	}
	if e.cfg.UseBundle {
		return e.executeBundle(ctx, quote, side)
	}
	return e.executePlain(ctx, quote, side)
}

// executePlain submits through the current endpoint and waits for confirmation.
// Only a failed submission rotates the endpoint set.
func (e *Engine) executePlain(ctx context.Context, quote domain.Quote, side domain.OrderSide) domain.OrderResult {
	idx, endpoint := e.endpoints.Current()

	tx, err := e.router.SwapTransaction(ctx, quote, e.cfg.Wallet, 0)
	if err != nil {
		return e.failed(side, endpoint.URL(), fmt.Errorf("build swap: %v: %w", err, domain.ErrQuoteUnavailable))
	}

	sig, err := endpoint.SendTransaction(ctx, tx)
	if err != nil {
		next := e.endpoints.Rotate(idx)
		slog.Debug("execution: endpoint rotated", "from", idx, "to", next, "err", err)
		return e.failed(side, endpoint.URL(), fmt.Errorf("send via %s: %v: %w", endpoint.URL(), err, domain.ErrSubmissionFailure))
	}

	status, ok := e.await(ctx, func(ctx context.Context) (domain.TxStatus, error) {
		return endpoint.TransactionStatus(ctx, sig)
	})
	return e.settle(side, endpoint.URL(), sig, status, ok)
}

// executeBundle submits through the relay with a random tip.
func (e *Engine) executeBundle(ctx context.Context, quote domain.Quote, side domain.OrderSide) domain.OrderResult {
	tip := e.sampleTip()

	tx, err := e.router.SwapTransaction(ctx, quote, e.cfg.Wallet, tip)
	if err != nil {
		return e.failed(side, "relay", fmt.Errorf("build swap: %v: %w", err, domain.ErrQuoteUnavailable))
	}

	var bundleID string
	if e.relay == nil {
		err = fmt.Errorf("no relay configured")
	} else {
		bundleID, err = e.relay.SendBundle(ctx, tx)
	}
	if err != nil {
		if e.cfg.SimulateBundleAck {
			return domain.OrderResult{
				Success:   true,
				Side:      side,
				TxHandle:  "simulated-" + uuid.NewString(),
				Simulated: true,
				Endpoint:  "relay",
				At:        e.now(),
			}
		}
		return e.failed(side, "relay", fmt.Errorf("send bundle: %v: %w", err, domain.ErrRelayUnavailable))
	}

	status, ok := e.await(ctx, func(ctx context.Context) (domain.TxStatus, error) {
		return e.relay.BundleStatus(ctx, bundleID)
	})
	return e.settle(side, "relay", bundleID, status, ok)
}

func (e *Engine) settle(side domain.OrderSide, endpoint, handle string, status domain.TxStatus, ok bool) domain.OrderResult {
	switch {
	case !ok:
		res := e.failed(side, endpoint, fmt.Errorf("%s: %w", handle, domain.ErrConfirmationTimeout))
		res.TxHandle = handle
		return res
	case status.Err != "":
		res := e.failed(side, endpoint, fmt.Errorf("%s: %s: %w", handle, status.Err, domain.ErrTransactionFailed))
		res.TxHandle = handle
		return res
	}
	return domain.OrderResult{Success: true, Side: side, TxHandle: handle, Endpoint: endpoint, At: e.now()}
}

// WaitForConfirmation polls the current endpoint until the signature reaches a
// terminal status or ConfirmTimeout expires. True only for a confirmed,
// error-free transaction.
func (e *Engine) WaitForConfirmation(ctx context.Context, signature string) bool {
	_, endpoint := e.endpoints.Current()
	status, ok := e.await(ctx, func(ctx context.Context) (domain.TxStatus, error) {
		return endpoint.TransactionStatus(ctx, signature)
	})
	return ok && status.Err == ""
}

// await polls fetch every ConfirmInterval. Status errors are treated as "not
// yet"; ok is false when the timeout expires first.
func (e *Engine) await(ctx context.Context, fetch func(context.Context) (domain.TxStatus, error)) (domain.TxStatus, bool) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(e.cfg.ConfirmInterval)
	defer ticker.Stop()

	for {
		status, err := fetch(ctx)
		if err == nil && status.Terminal() {
			return status, true
		}
		select {
		case <-ctx.Done():
			return domain.TxStatus{}, false
		case <-ticker.C:
		}
	}
}

// NativeBalance returns the wallet's native balance, 0 on any failure.
func (e *Engine) NativeBalance(ctx context.Context) float64 {
	if e.cfg.Wallet == "" {
		return 0
	}
	_, endpoint := e.endpoints.Current()
	bal, err := endpoint.NativeBalance(ctx, e.cfg.Wallet)
	if err != nil {
		slog.Debug("execution: native balance unavailable", "endpoint", endpoint.URL(), "err", err)
		return 0
	}
	return bal
}

// TokenBalance returns the wallet's balance of mint in UI units, 0 on any failure.
func (e *Engine) TokenBalance(ctx context.Context, mint string) float64 {
	return e.holding(ctx, mint).UI()
}

// holding is the raw balance of mint: the paper book in dry-run, the chain
// otherwise. Failures read as an empty holding.
func (e *Engine) holding(ctx context.Context, mint string) domain.TokenAmount {
	if e.cfg.DryRun {
		return e.paper.get(mint)
	}
	_, endpoint := e.endpoints.Current()
	bal, err := endpoint.TokenBalance(ctx, e.cfg.Wallet, mint)
	if err != nil {
		slog.Debug("execution: token balance unavailable", "mint", mint, "endpoint", endpoint.URL(), "err", err)
		return domain.TokenAmount{}
	}
	return bal
}

// sampleTip draws a tip uniformly from [TipMinSOL, TipMaxSOL], in lamports.
func (e *Engine) sampleTip() uint64 {
	tip := e.cfg.TipMinSOL + e.random()*(e.cfg.TipMaxSOL-e.cfg.TipMinSOL)
	return toBaseUnits(tip, domain.NativeDecimals)
}

func (e *Engine) slippageBps(slippage float64) int {
	if slippage <= 0 {
		slippage = e.cfg.MaxSlippage
	}
	return int(math.Round(slippage * 10_000))
}

func (e *Engine) failed(side domain.OrderSide, endpoint string, err error) domain.OrderResult {
	return domain.OrderResult{
		Side:     side,
		Endpoint: endpoint,
		Error:    err.Error(),
		Err:      err,
		At:       e.now(),
	}
}

// toBaseUnits converts a UI amount into integer base units, rounding down.
func toBaseUnits(amount float64, decimals int) uint64 {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0
	}
	units := decimal.NewFromFloat(amount).Shift(int32(decimals)).Floor()
	if !units.IsPositive() {
		return 0
	}
	return units.BigInt().Uint64()
}

// fractionOf returns floor(raw × pct); pct >= 1 is the whole amount.
func fractionOf(raw uint64, pct float64) uint64 {
	if raw == 0 || pct <= 0 || math.IsNaN(pct) {
		return 0
	}
	if pct >= 1 {
		return raw
	}
	units := decimal.NewFromBigInt(new(big.Int).SetUint64(raw), 0).Mul(decimal.NewFromFloat(pct)).Floor()
	if !units.IsPositive() {
		return 0
	}
	return units.BigInt().Uint64()
}

// fromBaseUnits converts integer base units into a UI amount.
func fromBaseUnits(units uint64, decimals int) float64 {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -int32(decimals)).InexactFloat64()
}
