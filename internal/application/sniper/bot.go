package sniper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/sniperbot/internal/application/execution"
	"github.com/alejandrodnm/sniperbot/internal/application/monitor"
	"github.com/alejandrodnm/sniperbot/internal/application/risk"
	"github.com/alejandrodnm/sniperbot/internal/domain"
	"github.com/alejandrodnm/sniperbot/internal/ports"
)

const (
	defaultQueueSize         = 256
	defaultScoringTimeout    = 2 * time.Second
	defaultStatusInterval    = 30 * time.Second
	defaultBaseAssetPriceUSD = 150.0
	defaultExpectedOdds      = 2.0
	defaultEntryVolatility   = 0.5
)

// Sizing modes.
const (
	SizingFixed = "fixed"
	SizingKelly = "kelly"
)

// ErrAlreadyRunning is returned by Start on a running bot.
var ErrAlreadyRunning = errors.New("sniper: already running")

// State is the lifecycle state of the bot.
type State int

const (
	StateStopped State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "stopped"
}

// Executor places swaps. Failures are reported in the OrderResult.
type Executor interface {
	Buy(ctx context.Context, token domain.Token, amount, slippage float64) domain.OrderResult
	Sell(ctx context.Context, token domain.Token, pct, slippage float64) domain.OrderResult
	NativeBalance(ctx context.Context) float64
}

// Config holds configuration for the orchestrator.
type Config struct {
	MinLiquidity         float64
	MinMarketCap         float64
	ProbabilityThreshold float64
	MaxSlippage          float64
	SizingMode           string  // fixed | kelly
	ExpectedOdds         float64 // payoff odds fed to Kelly sizing
	BaseAssetPriceUSD    float64 // fallback when the price feed has no native price
	ScoringTimeout       time.Duration
	QueueSize            int
	Workers              int
	StatusInterval       time.Duration
	Monitor              monitor.Config
}

// Deps are the collaborators wired into the bot.
type Deps struct {
	Source    ports.DiscoverySource
	Scorer    ports.Scorer
	Predictor ports.Predictor
	Sentiment ports.SentimentAnalyzer // optional, neutral when nil
	Prices    ports.PriceFeed
	Risk      *risk.Manager
	Executor  Executor
	Endpoints *execution.EndpointSet // optional, for status only
	Notifiers []ports.LifecycleNotifier
	Status    ports.StatusReporter // optional
}

// Bot is the orchestrator: discovery → filters → risk → execution → monitor.
type Bot struct {
	cfg     Config
	deps    Deps
	queue   *eventQueue
	monitor *monitor.Monitor
	now     func() time.Time

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	group  *errgroup.Group

	pendingMu sync.Mutex
	pending   map[string]struct{}

	statsMu  sync.Mutex
	outcomes map[Outcome]int
}

// New creates a stopped bot.
func New(cfg Config, deps Deps) *Bot {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.ScoringTimeout <= 0 {
		cfg.ScoringTimeout = defaultScoringTimeout
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = defaultStatusInterval
	}
	if cfg.BaseAssetPriceUSD <= 0 {
		cfg.BaseAssetPriceUSD = defaultBaseAssetPriceUSD
	}
	if cfg.ExpectedOdds <= 1 {
		cfg.ExpectedOdds = defaultExpectedOdds
	}
	if cfg.SizingMode == "" {
		cfg.SizingMode = SizingFixed
	}

	b := &Bot{
		cfg:      cfg,
		deps:     deps,
		queue:    newEventQueue(cfg.QueueSize),
		now:      time.Now,
		pending:  make(map[string]struct{}),
		outcomes: make(map[Outcome]int),
	}
	b.monitor = monitor.New(cfg.Monitor, deps.Risk, deps.Prices, b)
	return b
}

// State returns the current lifecycle state.
func (b *Bot) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Start begins discovery ingestion, the worker pool, the position monitor and
// the status loop. It returns immediately.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.state == StateRunning {
		b.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	b.cancel = cancel
	b.group = g
	b.state = StateRunning
	b.mu.Unlock()

	balance := b.deps.Executor.NativeBalance(ctx)
	pf := b.deps.Risk.Portfolio()
	slog.Info("sniper: started",
		"wallet_balance", fmt.Sprintf("%.4f SOL", balance),
		"capital", fmt.Sprintf("$%.2f", pf.CashUSD),
		"workers", b.cfg.Workers,
		"queue_size", b.cfg.QueueSize,
		"sizing", b.cfg.SizingMode,
	)
	b.notify(ctx, domain.LifecycleEvent{Kind: domain.EventBotStarted, At: b.now()})

	g.Go(func() error {
		b.ingest(gctx)
		return nil
	})
	b.startWorkers(gctx, g)
	g.Go(func() error {
		return b.monitor.Run(gctx)
	})
	g.Go(func() error {
		b.statusLoop(gctx)
		return nil
	})
	return nil
}

// Stop halts ingestion, workers and the monitor. Open positions are left as
// they are.
func (b *Bot) Stop() error {
	b.mu.Lock()
	if b.state != StateRunning {
		b.mu.Unlock()
		return nil
	}
	cancel, g := b.cancel, b.group
	b.mu.Unlock()

	cancel()
	err := g.Wait()

	b.mu.Lock()
	b.state = StateStopped
	b.cancel, b.group = nil, nil
	b.mu.Unlock()

	pf := b.deps.Risk.Portfolio()
	slog.Info("sniper: stopped",
		"open_positions", len(pf.Positions),
		"total_value", fmt.Sprintf("$%.2f", pf.TotalValueUSD),
	)
	b.notify(context.Background(), domain.LifecycleEvent{Kind: domain.EventBotStopped, At: b.now()})
	if err != nil {
		return fmt.Errorf("sniper.Stop: %w", err)
	}
	return nil
}

// Run starts the bot and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return b.Stop()
}

// ingest pushes discovery events into the queue until the source gives up.
// Monitoring keeps running when discovery fails.
func (b *Bot) ingest(ctx context.Context) {
	err := b.deps.Source.Run(ctx, b.queue.Push)
	if err != nil && ctx.Err() == nil {
		slog.Error("sniper: discovery stopped, monitoring continues", "err", err)
	}
}

func (b *Bot) notify(ctx context.Context, ev domain.LifecycleEvent) {
	for _, n := range b.deps.Notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			slog.Warn("sniper: notifier error", "kind", ev.Kind, "err", err)
		}
	}
}
