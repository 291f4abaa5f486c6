package execution_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/sniperbot/internal/application/execution"
	"github.com/alejandrodnm/sniperbot/internal/domain"
	"github.com/alejandrodnm/sniperbot/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var token = domain.Token{Address: "MintXYZ", Symbol: "XYZ", Decimals: 6}

type fakeRouter struct {
	mu       sync.Mutex
	quoteErr error
	out      uint64
	delay    time.Duration
	swapErr  error
	tips     []uint64
	requests []domain.QuoteRequest
}

func (r *fakeRouter) Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return domain.Quote{}, ctx.Err()
		}
	}
	if r.quoteErr != nil {
		return domain.Quote{}, r.quoteErr
	}
	return domain.Quote{InputMint: req.InputMint, OutputMint: req.OutputMint, InAmount: req.Amount, OutAmount: r.out}, nil
}

func (r *fakeRouter) SwapTransaction(_ context.Context, _ domain.Quote, _ string, tip uint64) (domain.SwapTransaction, error) {
	r.mu.Lock()
	r.tips = append(r.tips, tip)
	r.mu.Unlock()
	if r.swapErr != nil {
		return domain.SwapTransaction{}, r.swapErr
	}
	return domain.SwapTransaction{Payload: "AQID", TipLamports: tip}, nil
}

type fakeEndpoint struct {
	url      string
	sendErr  error
	status   domain.TxStatus
	balance  float64
	tokens   domain.TokenAmount
	balErr   error
	sent     int
	statuses int
	mu       sync.Mutex
}

func (f *fakeEndpoint) URL() string { return f.url }

func (f *fakeEndpoint) NativeBalance(context.Context, string) (float64, error) {
	return f.balance, f.balErr
}

func (f *fakeEndpoint) TokenBalance(context.Context, string, string) (domain.TokenAmount, error) {
	return f.tokens, f.balErr
}

func (f *fakeEndpoint) SendTransaction(context.Context, domain.SwapTransaction) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return "sig-" + f.url, nil
}

func (f *fakeEndpoint) TransactionStatus(context.Context, string) (domain.TxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses++
	return f.status, nil
}

type fakeRelay struct {
	err    error
	status domain.TxStatus
	sent   []domain.SwapTransaction
}

func (r *fakeRelay) SendBundle(_ context.Context, tx domain.SwapTransaction) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.sent = append(r.sent, tx)
	return "bundle-1", nil
}

func (r *fakeRelay) BundleStatus(context.Context, string) (domain.TxStatus, error) {
	return r.status, nil
}

var confirmed = domain.TxStatus{Found: true, Confirmed: true}

func fastConfig() execution.Config {
	return execution.Config{
		Wallet:          "Wallet111",
		MaxSlippage:     0.1,
		TipMinSOL:       0.001,
		TipMaxSOL:       0.002,
		QuoteTimeout:    50 * time.Millisecond,
		ConfirmTimeout:  50 * time.Millisecond,
		ConfirmInterval: 5 * time.Millisecond,
	}
}

func newEngine(t *testing.T, cfg execution.Config, router *fakeRouter, relay *fakeRelay, endpoints ...*fakeEndpoint) *execution.Engine {
	t.Helper()
	eps := make([]ports.ChainEndpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		eps = append(eps, ep)
	}
	set, err := execution.NewEndpointSet(eps...)
	require.NoError(t, err)
	if relay == nil {
		return execution.New(cfg, router, nil, set)
	}
	return execution.New(cfg, router, relay, set)
}

func TestBuy_PlainPathSuccess(t *testing.T) {
	ep := &fakeEndpoint{url: "rpc-0", status: confirmed}
	router := &fakeRouter{out: 2_000_000} // 2 tokens with 6 decimals
	e := newEngine(t, fastConfig(), router, nil, ep)

	res := e.Buy(context.Background(), token, 0.5, 0)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "sig-rpc-0", res.TxHandle)
	assert.Equal(t, domain.SideBuy, res.Side)
	assert.InDelta(t, 0.5, res.InAmount, 1e-9)
	assert.InDelta(t, 2.0, res.OutAmount, 1e-9)
	assert.InDelta(t, 0.25, res.FilledPrice, 1e-9)

	require.Len(t, router.requests, 1)
	assert.Equal(t, uint64(500_000_000), router.requests[0].Amount)
	assert.Equal(t, domain.NativeMint, router.requests[0].InputMint)
	assert.Equal(t, 1000, router.requests[0].SlippageBps)
	assert.Equal(t, []uint64{0}, router.tips)
}

func TestBuy_QuoteFailureDoesNotRotate(t *testing.T) {
	eps := []*fakeEndpoint{{url: "rpc-0"}, {url: "rpc-1"}}
	e := newEngine(t, fastConfig(), &fakeRouter{quoteErr: errors.New("502")}, nil, eps...)

	res := e.Buy(context.Background(), token, 1, 0)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, domain.ErrQuoteUnavailable)
	assert.Equal(t, 0, e.Endpoints().Cursor())
	assert.Equal(t, 0, eps[0].sent)
}

func TestBuy_ZeroOutputRejected(t *testing.T) {
	e := newEngine(t, fastConfig(), &fakeRouter{out: 0}, nil, &fakeEndpoint{url: "rpc-0"})
	res := e.Buy(context.Background(), token, 1, 0)
	assert.ErrorIs(t, res.Err, domain.ErrQuoteUnavailable)
}

func TestBuy_QuoteTimeoutIsUnavailable(t *testing.T) {
	router := &fakeRouter{out: 1, delay: time.Second}
	e := newEngine(t, fastConfig(), router, nil, &fakeEndpoint{url: "rpc-0"})

	start := time.Now()
	res := e.Buy(context.Background(), token, 1, 0)

	assert.ErrorIs(t, res.Err, domain.ErrQuoteUnavailable)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestBuy_RotationIsCyclic(t *testing.T) {
	fail := errors.New("connection refused")
	eps := []*fakeEndpoint{
		{url: "rpc-0", sendErr: fail},
		{url: "rpc-1", sendErr: fail},
		{url: "rpc-2", sendErr: fail},
	}
	e := newEngine(t, fastConfig(), &fakeRouter{out: 1_000_000}, nil, eps...)

	var cursors []int
	for i := 0; i < 4; i++ {
		res := e.Buy(context.Background(), token, 1, 0)
		require.False(t, res.Success)
		assert.ErrorIs(t, res.Err, domain.ErrSubmissionFailure)
		cursors = append(cursors, e.Endpoints().Cursor())
	}

	assert.Equal(t, []int{1, 2, 0, 1}, cursors)
	assert.Equal(t, 2, eps[0].sent)
	assert.Equal(t, 1, eps[1].sent)
	assert.Equal(t, 1, eps[2].sent)
}

func TestBuy_ConfirmationTimeout(t *testing.T) {
	ep := &fakeEndpoint{url: "rpc-0", status: domain.TxStatus{Found: true}}
	e := newEngine(t, fastConfig(), &fakeRouter{out: 1_000_000}, nil, ep)

	res := e.Buy(context.Background(), token, 1, 0)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, domain.ErrConfirmationTimeout)
	assert.Equal(t, "sig-rpc-0", res.TxHandle)
	assert.Equal(t, 0, e.Endpoints().Cursor())
	assert.Greater(t, ep.statuses, 1)
}

func TestBuy_OnChainFailure(t *testing.T) {
	ep := &fakeEndpoint{url: "rpc-0", status: domain.TxStatus{Found: true, Err: "SlippageToleranceExceeded"}}
	e := newEngine(t, fastConfig(), &fakeRouter{out: 1_000_000}, nil, ep)

	res := e.Buy(context.Background(), token, 1, 0)
	assert.ErrorIs(t, res.Err, domain.ErrTransactionFailed)
	assert.Contains(t, res.Error, "SlippageToleranceExceeded")
}

func TestBuy_BundlePathWithTip(t *testing.T) {
	cfg := fastConfig()
	cfg.UseBundle = true
	router := &fakeRouter{out: 1_000_000}
	relay := &fakeRelay{status: confirmed}
	e := newEngine(t, cfg, router, relay, &fakeEndpoint{url: "rpc-0"})

	res := e.Buy(context.Background(), token, 1, 0)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "bundle-1", res.TxHandle)
	assert.False(t, res.Simulated)
	require.Len(t, relay.sent, 1)
	tip := relay.sent[0].TipLamports
	assert.GreaterOrEqual(t, tip, uint64(1_000_000))
	assert.LessOrEqual(t, tip, uint64(2_000_000))
}

func TestBuy_RelayDownFailsWithoutSimulation(t *testing.T) {
	cfg := fastConfig()
	cfg.UseBundle = true
	e := newEngine(t, cfg, &fakeRouter{out: 1_000_000}, &fakeRelay{err: errors.New("503")}, &fakeEndpoint{url: "rpc-0"}, &fakeEndpoint{url: "rpc-1"})

	res := e.Buy(context.Background(), token, 1, 0)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, domain.ErrRelayUnavailable)
	assert.Equal(t, 0, e.Endpoints().Cursor())
}

func TestBuy_RelayDownSimulatedAck(t *testing.T) {
	cfg := fastConfig()
	cfg.UseBundle = true
	cfg.SimulateBundleAck = true
	e := newEngine(t, cfg, &fakeRouter{out: 1_000_000}, &fakeRelay{err: errors.New("503")}, &fakeEndpoint{url: "rpc-0"})

	res := e.Buy(context.Background(), token, 1, 0)

	assert.True(t, res.Success)
	assert.True(t, res.Simulated)
	assert.Contains(t, res.TxHandle, "simulated-")
}

func TestSell_FloorsBalance(t *testing.T) {
	ep := &fakeEndpoint{url: "rpc-0", tokens: domain.TokenAmount{Raw: 3_000_001, Decimals: 6}, status: confirmed}
	router := &fakeRouter{out: 250_000_000}
	e := newEngine(t, fastConfig(), router, nil, ep)

	res := e.Sell(context.Background(), token, 0.5, 0)

	require.True(t, res.Success, res.Error)
	require.Len(t, router.requests, 1)
	// 3_000_001 × 0.5 = 1_500_000.5 → 1_500_000 base units
	assert.Equal(t, uint64(1_500_000), router.requests[0].Amount)
	assert.Equal(t, domain.NativeMint, router.requests[0].OutputMint)
	assert.InDelta(t, 0.25/1.5, res.FilledPrice, 1e-9)
}

func TestSell_UsesAccountDecimalsNotMetadata(t *testing.T) {
	// 1000 tokens of a 6-decimal mint; discovery metadata claimed 9.
	ep := &fakeEndpoint{url: "rpc-0", tokens: domain.TokenAmount{Raw: 1_000_000_000, Decimals: 6}, status: confirmed}
	router := &fakeRouter{out: 500_000_000}
	e := newEngine(t, fastConfig(), router, nil, ep)

	wrong := domain.Token{Address: token.Address, Symbol: token.Symbol, Decimals: 9}
	res := e.Sell(context.Background(), wrong, 1.0, 0)

	require.True(t, res.Success, res.Error)
	require.Len(t, router.requests, 1)
	assert.Equal(t, uint64(1_000_000_000), router.requests[0].Amount, "never more than held")
	assert.InDelta(t, 1000.0, res.InAmount, 1e-9)
	assert.InDelta(t, 0.5/1000, res.FilledPrice, 1e-12)
}

func TestSell_FullExitSellsExactBalance(t *testing.T) {
	ep := &fakeEndpoint{url: "rpc-0", tokens: domain.TokenAmount{Raw: 123_456_789_123, Decimals: 6}, status: confirmed}
	router := &fakeRouter{out: 1}
	e := newEngine(t, fastConfig(), router, nil, ep)

	require.True(t, e.Sell(context.Background(), token, 1.0, 0).Success)
	assert.Equal(t, uint64(123_456_789_123), router.requests[0].Amount)
}

func TestSell_NoBalance(t *testing.T) {
	ep := &fakeEndpoint{url: "rpc-0", balErr: errors.New("timeout")}
	router := &fakeRouter{out: 1}
	e := newEngine(t, fastConfig(), router, nil, ep)

	res := e.Sell(context.Background(), token, 1, 0)

	assert.ErrorIs(t, res.Err, domain.ErrInsufficientBalance)
	assert.Empty(t, router.requests)
}

func TestBalances_FallBackToZero(t *testing.T) {
	e := newEngine(t, fastConfig(), &fakeRouter{}, nil, &fakeEndpoint{url: "rpc-0", balErr: errors.New("down")})
	assert.Equal(t, 0.0, e.NativeBalance(context.Background()))
	assert.Equal(t, 0.0, e.TokenBalance(context.Background(), "mint"))
}

func TestWaitForConfirmation(t *testing.T) {
	ok := newEngine(t, fastConfig(), &fakeRouter{}, nil, &fakeEndpoint{url: "rpc-0", status: confirmed})
	assert.True(t, ok.WaitForConfirmation(context.Background(), "sig"))

	pending := newEngine(t, fastConfig(), &fakeRouter{}, nil, &fakeEndpoint{url: "rpc-0"})
	assert.False(t, pending.WaitForConfirmation(context.Background(), "sig"))

	failed := newEngine(t, fastConfig(), &fakeRouter{}, nil, &fakeEndpoint{url: "rpc-0", status: domain.TxStatus{Found: true, Err: "boom"}})
	assert.False(t, failed.WaitForConfirmation(context.Background(), "sig"))
}

func TestDryRun_SimulatesWithoutWalletOrChain(t *testing.T) {
	cfg := fastConfig()
	cfg.Wallet = ""
	cfg.UseBundle = true
	cfg.DryRun = true
	router := &fakeRouter{out: 2_000_000, swapErr: errors.New("400 missing userPublicKey")}
	ep := &fakeEndpoint{url: "rpc-0", sendErr: errors.New("must not send"), balErr: errors.New("must not read")}
	e := newEngine(t, cfg, router, nil, ep)
	ctx := context.Background()

	buy := e.Buy(ctx, token, 0.5, 0)
	require.True(t, buy.Success, buy.Error)
	assert.True(t, buy.Simulated)
	assert.Contains(t, buy.TxHandle, "dry-run-")
	assert.InDelta(t, 2.0, buy.OutAmount, 1e-9)
	assert.InDelta(t, 2.0, e.TokenBalance(ctx, token.Address), 1e-9)

	half := e.Sell(ctx, token, 0.5, 0)
	require.True(t, half.Success, half.Error)
	assert.True(t, half.Simulated)
	assert.Equal(t, uint64(1_000_000), router.requests[1].Amount)

	rest := e.Sell(ctx, token, 1.0, 0)
	require.True(t, rest.Success, rest.Error)
	assert.Equal(t, uint64(1_000_000), router.requests[2].Amount)

	empty := e.Sell(ctx, token, 1.0, 0)
	assert.ErrorIs(t, empty.Err, domain.ErrInsufficientBalance)

	assert.Empty(t, router.tips, "no swap transaction is built")
	assert.Zero(t, ep.sent)
	assert.Zero(t, e.NativeBalance(ctx))
}
