package sniper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/sniperbot/internal/application/monitor"
	"github.com/alejandrodnm/sniperbot/internal/application/risk"
	"github.com/alejandrodnm/sniperbot/internal/domain"
	"github.com/alejandrodnm/sniperbot/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeSource struct {
	events []domain.DiscoveryEvent
	err    error
}

func (s *fakeSource) Run(ctx context.Context, emit func(domain.DiscoveryEvent)) error {
	for _, ev := range s.events {
		emit(ev)
	}
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return ctx.Err()
}

type fakePredictor struct {
	prob float64
	err  error
}

func (p *fakePredictor) Predict(context.Context, domain.TokenMetadata) (domain.Prediction, error) {
	return domain.Prediction{Probability: p.prob, Confidence: 0.5}, p.err
}

type fakeScorer struct {
	total float64
	calls int
}

func (s *fakeScorer) Score(_ context.Context, token domain.TokenMetadata, p domain.Prediction, _ domain.Sentiment) (domain.TokenScore, error) {
	s.calls++
	return domain.TokenScore{
		TokenAddress:  token.Address,
		TotalScore:    s.total,
		MLProbability: p.Probability,
		Factors:       []domain.ScoreFactor{{Name: domain.FactorLiquidity, Value: 80}},
	}, nil
}

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (p *fakePrices) Price(_ context.Context, addr string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[addr]
	if !ok {
		return 0, errors.New("no price")
	}
	return price, nil
}

type fakeExecutor struct {
	mu      sync.Mutex
	buyRes  domain.OrderResult
	sellRes domain.OrderResult
	buys    []float64
	sells   []float64
	block   chan struct{}
}

func (e *fakeExecutor) Buy(_ context.Context, _ domain.Token, amount, _ float64) domain.OrderResult {
	e.mu.Lock()
	e.buys = append(e.buys, amount)
	block := e.block
	e.mu.Unlock()
	if block != nil {
		<-block
	}
	return e.buyRes
}

func (e *fakeExecutor) Sell(_ context.Context, _ domain.Token, pct, _ float64) domain.OrderResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sells = append(e.sells, pct)
	return e.sellRes
}

func (e *fakeExecutor) NativeBalance(context.Context) float64 { return 1.5 }

type recorder struct {
	mu     sync.Mutex
	events []domain.LifecycleEvent
}

func (r *recorder) Notify(_ context.Context, ev domain.LifecycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) kinds() []domain.LifecycleKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.LifecycleKind
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

// --- helpers ---

func goodToken(addr string) domain.TokenMetadata {
	return domain.TokenMetadata{
		Token:        domain.Token{Address: addr, Symbol: "PEPE", Decimals: 6},
		PriceUSD:     0.001,
		LiquidityUSD: 50000,
		MarketCapUSD: 500000,
	}
}

type harness struct {
	bot    *Bot
	rm     *risk.Manager
	exec   *fakeExecutor
	scorer *fakeScorer
	pred   *fakePredictor
	rec    *recorder
	prices *fakePrices
	source *fakeSource
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	rm := risk.NewManager(risk.Config{
		InitialCapital:  10000,
		MaxPositionSize: 0.1,
		MaxPositions:    5,
		StopLoss:        0.15,
		SoftStopLoss:    0.08,
		TakeProfitTiers: []domain.TakeProfitTier{{Threshold: 1, ExitPercent: 0.5}},
	})
	h := &harness{
		rm:     rm,
		exec:   &fakeExecutor{buyRes: domain.OrderResult{Success: true, Side: domain.SideBuy, TxHandle: "sig-buy", OutAmount: 1_000_000}},
		scorer: &fakeScorer{total: 72},
		pred:   &fakePredictor{prob: 0.8},
		rec:    &recorder{},
		prices: &fakePrices{prices: map[string]float64{domain.NativeMint: 200}},
		source: &fakeSource{},
	}
	h.exec.sellRes = domain.OrderResult{Success: true, Side: domain.SideSell, TxHandle: "sig-sell"}
	if cfg.MinLiquidity == 0 {
		cfg.MinLiquidity = 10000
	}
	if cfg.MinMarketCap == 0 {
		cfg.MinMarketCap = 50000
	}
	if cfg.ProbabilityThreshold == 0 {
		cfg.ProbabilityThreshold = 0.7
	}
	cfg.Monitor = monitor.Config{Interval: time.Hour}
	h.bot = New(cfg, Deps{
		Source:    h.source,
		Scorer:    h.scorer,
		Predictor: h.pred,
		Prices:    h.prices,
		Risk:      rm,
		Executor:  h.exec,
		Notifiers: []ports.LifecycleNotifier{h.rec},
	})
	return h
}

func event(token domain.TokenMetadata) domain.DiscoveryEvent {
	return domain.DiscoveryEvent{Token: token, Source: domain.SourcePumpFun, Timestamp: time.Now()}
}

// --- pipeline ---

func TestHandleEvent_OpensPosition(t *testing.T) {
	h := newHarness(t, Config{})

	outcome := h.bot.HandleEvent(context.Background(), event(goodToken("A")))
	require.Equal(t, OutcomeOpened, outcome)

	pos, ok := h.rm.Position("A")
	require.True(t, ok)
	assert.InDelta(t, 0.001, pos.EntryPrice, 1e-12)
	assert.InDelta(t, 1000, pos.ValueUSD, 1e-9, "a tenth of the cash")
	assert.InDelta(t, 1_000_000, pos.Quantity, 1e-9)
	assert.Equal(t, "sig-buy", pos.EntryTx)
	require.Len(t, pos.TakeProfitLevels, 1)

	// 1000 USD at 200 USD/SOL
	require.Len(t, h.exec.buys, 1)
	assert.InDelta(t, 5.0, h.exec.buys[0], 1e-9)

	assert.InDelta(t, 9000, h.rm.Portfolio().CashUSD, 1e-9)
	assert.Equal(t, []domain.LifecycleKind{domain.EventPositionOpened}, h.rec.kinds())
}

func TestHandleEvent_BasePriceFallsBackToConfig(t *testing.T) {
	h := newHarness(t, Config{BaseAssetPriceUSD: 100})
	h.prices.prices = map[string]float64{}

	require.Equal(t, OutcomeOpened, h.bot.HandleEvent(context.Background(), event(goodToken("A"))))
	assert.InDelta(t, 10.0, h.exec.buys[0], 1e-9)
}

func TestHandleEvent_EntryFromFillWhenNoMarketPrice(t *testing.T) {
	h := newHarness(t, Config{})
	h.exec.buyRes.FilledPrice = 0.00002 // SOL per token
	tok := goodToken("A")
	tok.PriceUSD = 0

	require.Equal(t, OutcomeOpened, h.bot.HandleEvent(context.Background(), event(tok)))
	pos, _ := h.rm.Position("A")
	assert.InDelta(t, 0.004, pos.EntryPrice, 1e-12)
}

func TestHandleEvent_MustHaveRejects(t *testing.T) {
	h := newHarness(t, Config{})
	tok := goodToken("A")
	tok.LiquidityUSD = 500

	assert.Equal(t, OutcomeMustHave, h.bot.HandleEvent(context.Background(), event(tok)))
	assert.Zero(t, h.scorer.calls)
	assert.Empty(t, h.exec.buys)
}

func TestHandleEvent_LowProbabilityNeverScores(t *testing.T) {
	h := newHarness(t, Config{})
	h.pred.prob = 0.69

	assert.Equal(t, OutcomeLowProbability, h.bot.HandleEvent(context.Background(), event(goodToken("A"))))
	assert.Zero(t, h.scorer.calls)
	assert.Empty(t, h.exec.buys)
}

func TestHandleEvent_PredictorErrorSkips(t *testing.T) {
	h := newHarness(t, Config{})
	h.pred.err = errors.New("model offline")

	assert.Equal(t, OutcomeUnavailable, h.bot.HandleEvent(context.Background(), event(goodToken("A"))))
	assert.Empty(t, h.exec.buys)
}

func TestHandleEvent_ScoreBelowThreshold(t *testing.T) {
	h := newHarness(t, Config{})
	h.scorer.total = 49.9

	assert.Equal(t, OutcomeNoSignal, h.bot.HandleEvent(context.Background(), event(goodToken("A"))))
	assert.Empty(t, h.exec.buys)
}

func TestHandleEvent_CircuitBreakerBlocks(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.rm.OpenPosition(domain.NewPosition(domain.Token{Address: "L"}, 100, 20, 2000, nil, time.Now())))
	_, err := h.rm.ClosePosition("L", 1, 40)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCircuitBreaker, h.bot.HandleEvent(context.Background(), event(goodToken("A"))))
	assert.Empty(t, h.exec.buys)
}

func TestHandleEvent_DuplicateRejected(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	require.Equal(t, OutcomeOpened, h.bot.HandleEvent(ctx, event(goodToken("A"))))
	assert.Equal(t, OutcomeDuplicate, h.bot.HandleEvent(ctx, event(goodToken("A"))))
	assert.Len(t, h.exec.buys, 1)
}

func TestHandleEvent_ConcurrentSameMintBuysOnce(t *testing.T) {
	h := newHarness(t, Config{})
	h.exec.block = make(chan struct{})

	results := make(chan Outcome, 2)
	go func() { results <- h.bot.HandleEvent(context.Background(), event(goodToken("A"))) }()
	require.Eventually(t, func() bool { return h.bot.pendingCount() == 1 }, time.Second, time.Millisecond)

	second := h.bot.HandleEvent(context.Background(), event(goodToken("A")))
	close(h.exec.block)

	assert.Equal(t, OutcomeDuplicate, second)
	assert.Equal(t, OutcomeOpened, <-results)
	assert.Len(t, h.exec.buys, 1)
}

func TestHandleEvent_MaxPositionsDenied(t *testing.T) {
	h := newHarness(t, Config{})
	for _, addr := range []string{"P1", "P2", "P3", "P4", "P5"} {
		require.NoError(t, h.rm.OpenPosition(domain.NewPosition(domain.Token{Address: addr}, 1, 1, 100, nil, time.Now())))
	}

	assert.Equal(t, OutcomeDenied, h.bot.HandleEvent(context.Background(), event(goodToken("A"))))
	assert.Empty(t, h.exec.buys)
}

func TestHandleEvent_KellyCapsSize(t *testing.T) {
	h := newHarness(t, Config{SizingMode: SizingKelly, ExpectedOdds: 2, ProbabilityThreshold: 0.5})
	h.pred.prob = 0.55
	want := h.rm.SizeUSD(0.55, 2, defaultEntryVolatility)
	require.InDelta(t, 250, want, 1e-9)

	require.Equal(t, OutcomeOpened, h.bot.HandleEvent(context.Background(), event(goodToken("A"))))
	pos, _ := h.rm.Position("A")
	assert.InDelta(t, want, pos.ValueUSD, 1e-9)
}

func TestHandleEvent_BuyFailureNotifies(t *testing.T) {
	h := newHarness(t, Config{})
	h.exec.buyRes = domain.OrderResult{Side: domain.SideBuy, Error: "quote unavailable"}

	assert.Equal(t, OutcomeExecutionFailed, h.bot.HandleEvent(context.Background(), event(goodToken("A"))))
	assert.False(t, h.rm.HasPosition("A"))
	assert.InDelta(t, 10000, h.rm.Portfolio().CashUSD, 1e-9)

	require.Equal(t, []domain.LifecycleKind{domain.EventTradeFailed}, h.rec.kinds())
	assert.Equal(t, "quote unavailable", h.rec.events[0].Error)
	assert.Zero(t, h.bot.pendingCount())
}

func TestHandleEvent_CountsOutcomes(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	h.bot.HandleEvent(ctx, event(goodToken("A")))
	h.bot.HandleEvent(ctx, event(goodToken("A")))

	st := h.bot.Status()
	assert.Equal(t, 1, st.Outcomes[string(OutcomeOpened)])
	assert.Equal(t, 1, st.Outcomes[string(OutcomeDuplicate)])
	assert.False(t, st.Running)
	assert.Len(t, st.Portfolio.Positions, 1)
}

// --- exits ---

func TestClosePosition_PartialThenFull(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	require.Equal(t, OutcomeOpened, h.bot.HandleEvent(ctx, event(goodToken("A"))))

	require.NoError(t, h.bot.ClosePosition(ctx, "A", 0.5, 0.002, "Take profit at 100%"))
	pos, ok := h.rm.Position("A")
	require.True(t, ok)
	assert.InDelta(t, 500, pos.ValueUSD, 1e-9)
	assert.InDelta(t, 500, pos.RealizedPnL, 1e-9)

	require.NoError(t, h.bot.ClosePosition(ctx, "A", 1, 0.001, "manual"))
	assert.False(t, h.rm.HasPosition("A"))
	assert.InDelta(t, 10500, h.rm.Portfolio().CashUSD, 1e-9)

	assert.Equal(t, []float64{0.5, 1}, h.exec.sells)
	kinds := h.rec.kinds()
	require.Len(t, kinds, 3)
	assert.Equal(t, domain.EventPositionClosed, kinds[1])
	assert.InDelta(t, 500, h.rec.events[1].RealizedPnL, 1e-9)
	assert.Equal(t, "Take profit at 100%", h.rec.events[1].Reason)

	stop := h.rec.events[0].StopPrice
	require.Positive(t, stop)
	assert.Equal(t, stop, h.rec.events[1].StopPrice, "partial exit carries the stop")
	assert.Equal(t, stop, h.rec.events[2].StopPrice, "full exit carries the stop")
}

func TestClosePosition_SellFailureKeepsBook(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	require.Equal(t, OutcomeOpened, h.bot.HandleEvent(ctx, event(goodToken("A"))))
	h.exec.sellRes = domain.OrderResult{Side: domain.SideSell, Error: "no balance", Err: domain.ErrInsufficientBalance}

	err := h.bot.ClosePosition(ctx, "A", 1, 0.0005, "stop")
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	pos, ok := h.rm.Position("A")
	require.True(t, ok)
	assert.InDelta(t, 1000, pos.ValueUSD, 1e-9)
	assert.Equal(t, domain.EventTradeFailed, h.rec.kinds()[1])
	assert.Equal(t, pos.StopPrice, h.rec.events[1].StopPrice)
}

func TestClosePosition_Unknown(t *testing.T) {
	h := newHarness(t, Config{})
	err := h.bot.ClosePosition(context.Background(), "nope", 1, 1, "stop")
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
	assert.Empty(t, h.exec.sells)
}

// --- lifecycle ---

func TestStartStop_Lifecycle(t *testing.T) {
	h := newHarness(t, Config{Workers: 2})
	h.source.events = []domain.DiscoveryEvent{event(goodToken("A"))}

	require.NoError(t, h.bot.Start(context.Background()))
	assert.Equal(t, StateRunning, h.bot.State())
	assert.ErrorIs(t, h.bot.Start(context.Background()), ErrAlreadyRunning)

	require.Eventually(t, func() bool { return h.rm.HasPosition("A") }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.bot.Stop())
	assert.Equal(t, StateStopped, h.bot.State())

	// positions survive stop
	assert.True(t, h.rm.HasPosition("A"))
	assert.Empty(t, h.exec.sells)

	kinds := h.rec.kinds()
	assert.Equal(t, domain.EventBotStarted, kinds[0])
	assert.Equal(t, domain.EventBotStopped, kinds[len(kinds)-1])

	// stop on a stopped bot is a no-op, and it can start again
	require.NoError(t, h.bot.Stop())
	require.NoError(t, h.bot.Start(context.Background()))
	require.NoError(t, h.bot.Stop())
}

func TestStart_DiscoveryFailureKeepsRunning(t *testing.T) {
	h := newHarness(t, Config{Workers: 1})
	h.source.err = errors.New("websocket closed")

	require.NoError(t, h.bot.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateRunning, h.bot.State())
	require.NoError(t, h.bot.Stop())
}

func TestRun_ReturnsOnCancel(t *testing.T) {
	h := newHarness(t, Config{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.bot.Run(ctx) }()
	require.Eventually(t, func() bool { return h.bot.State() == StateRunning }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateStopped, h.bot.State())
}

// --- status ---

type statusSink struct {
	mu   sync.Mutex
	last *domain.BotStatus
}

func (s *statusSink) ReportStatus(_ context.Context, st domain.BotStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &st
	return nil
}

func TestStatus_Snapshot(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	require.Equal(t, OutcomeOpened, h.bot.HandleEvent(ctx, event(goodToken("A"))))
	weak := goodToken("B")
	weak.LiquidityUSD = 100
	require.Equal(t, OutcomeMustHave, h.bot.HandleEvent(ctx, event(weak)))

	st := h.bot.Status()
	assert.False(t, st.Running)
	assert.Equal(t, 0, st.Pending)
	assert.Equal(t, map[string]int{"opened": 1, "must_have": 1}, st.Outcomes)
	require.Len(t, st.Portfolio.Positions, 1)
	assert.InDelta(t, 10000, st.Portfolio.TotalValueUSD, 1e-9)
}

func TestReportStatus_SendsToReporter(t *testing.T) {
	h := newHarness(t, Config{})
	sink := &statusSink{}
	h.bot.deps.Status = sink

	h.bot.reportStatus(context.Background())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.NotNil(t, sink.last)
	assert.InDelta(t, 10000, sink.last.Portfolio.CashUSD, 1e-9)
}
