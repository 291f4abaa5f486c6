package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/sniperbot/config"
	"github.com/alejandrodnm/sniperbot/internal/adapters/birdeye"
	"github.com/alejandrodnm/sniperbot/internal/adapters/jito"
	"github.com/alejandrodnm/sniperbot/internal/adapters/jupiter"
	"github.com/alejandrodnm/sniperbot/internal/adapters/notify"
	"github.com/alejandrodnm/sniperbot/internal/adapters/pumpfun"
	"github.com/alejandrodnm/sniperbot/internal/adapters/scoring"
	"github.com/alejandrodnm/sniperbot/internal/adapters/solana"
	"github.com/alejandrodnm/sniperbot/internal/adapters/storage"
	"github.com/alejandrodnm/sniperbot/internal/application/execution"
	"github.com/alejandrodnm/sniperbot/internal/application/monitor"
	"github.com/alejandrodnm/sniperbot/internal/application/risk"
	"github.com/alejandrodnm/sniperbot/internal/application/sniper"
	"github.com/alejandrodnm/sniperbot/internal/ports"
)

const stopFile = "STOP_SNIPER"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	report := flag.Bool("report", false, "print the trade journal and exit")
	days := flag.Int("days", 30, "days of history for -report")
	dryRun := flag.Bool("dry-run", false, "real quotes, simulated fills: nothing is signed or sent, no journal")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	if *report {
		if err := runReport(cfg, *days); err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if cfg.Wallet.PublicKey == "" && !*dryRun {
		slog.Error("no wallet configured: set SNIPER_WALLET or run with -dry-run")
		os.Exit(1)
	}

	slog.Info("sniperbot starting",
		"config", *configPath,
		"endpoints", len(cfg.Solana.RPC),
		"bundle", cfg.Execution.UseBundle,
		"simulate_bundle_ack", cfg.Execution.SimulateBundleAck,
		"sizing", cfg.Trading.SizingMode,
		"dry_run", *dryRun,
	)

	// Endpoints en orden de prioridad.
	chain := make([]ports.ChainEndpoint, 0, len(cfg.Solana.RPC))
	for _, url := range cfg.RPCURLs() {
		chain = append(chain, solana.NewClient(url))
	}
	endpoints, err := execution.NewEndpointSet(chain...)
	if err != nil {
		slog.Error("failed to build endpoint set", "err", err)
		os.Exit(1)
	}

	engine := execution.New(execution.Config{
		Wallet:            cfg.Wallet.PublicKey,
		UseBundle:         cfg.Execution.UseBundle,
		SimulateBundleAck: cfg.Execution.SimulateBundleAck,
		DryRun:            *dryRun,
		MaxSlippage:       cfg.Execution.MaxSlippage,
		TipMinSOL:         cfg.Solana.Jito.TipMin,
		TipMaxSOL:         cfg.Solana.Jito.TipMax,
		QuoteTimeout:      cfg.QuoteTimeout(),
		ConfirmTimeout:    cfg.ConfirmTimeout(),
	}, jupiter.NewClient(cfg.Execution.JupiterBase), jito.NewRelay(cfg.Solana.Jito.URL), endpoints)

	rm := risk.NewManager(risk.Config{
		InitialCapital:  cfg.Trading.InitialCapital,
		MaxPositionSize: cfg.Trading.MaxPositionSize,
		MaxPositions:    cfg.Trading.MaxPositions,
		StopLoss:        cfg.Trading.StopLoss,
		SoftStopLoss:    cfg.Trading.SoftStopLoss,
		TakeProfitTiers: cfg.Trading.TakeProfitTiers,
	})

	market := birdeye.NewClient(cfg.Discovery.BirdeyeBase, cfg.Discovery.BirdeyeAPIKey)
	stream := pumpfun.NewStream(pumpfun.Config{
		URL:           cfg.Discovery.PumpFunURL,
		MaxReconnects: cfg.Discovery.MaxReconnects,
		Concurrency:   cfg.Discovery.Concurrency,
	}, market)

	console := notify.NewConsole(cfg.Bot.StatusTable)
	notifiers := []ports.LifecycleNotifier{console}
	if !*dryRun {
		journal, err := storage.NewSQLiteJournal(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open journal", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer journal.Close()
		notifiers = append(notifiers, journal)
	}

	bot := sniper.New(sniper.Config{
		MinLiquidity:         cfg.Trading.MinLiquidity,
		MinMarketCap:         cfg.Trading.MinMarketCap,
		ProbabilityThreshold: cfg.ProbabilityThreshold(),
		MaxSlippage:          cfg.Execution.MaxSlippage,
		SizingMode:           cfg.Trading.SizingMode,
		ExpectedOdds:         cfg.Trading.ExpectedOdds,
		BaseAssetPriceUSD:    cfg.Trading.BaseAssetPriceUSD,
		ScoringTimeout:       cfg.ScoringTimeout(),
		QueueSize:            cfg.Bot.QueueSize,
		Workers:              cfg.Bot.Workers,
		StatusInterval:       cfg.StatusInterval(),
		Monitor: monitor.Config{
			Interval:    cfg.MonitorInterval(),
			HistorySize: cfg.Monitor.HistorySize,
		},
	}, sniper.Deps{
		Source:    stream,
		Scorer:    scoring.NewRuleScorer(cfg.Trading.MinLiquidity),
		Predictor: scoring.NewHeuristicPredictor(cfg.PredictorEnabled()),
		Sentiment: scoring.NewFixedSentiment(cfg.Sentiment.FixedScore),
		Prices:    market,
		Risk:      rm,
		Executor:  engine,
		Endpoints: endpoints,
		Notifiers: notifiers,
		Status:    console,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go watchStopFile(ctx, cancel)

	slog.Info("sniper running: press Ctrl+C or create " + stopFile + " file to exit")
	if err := bot.Run(ctx); err != nil {
		slog.Error("sniper exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("sniperbot stopped cleanly", "open_positions", len(rm.OpenPositions()))
}

// watchStopFile cancela ctx cuando aparece el archivo STOP_SNIPER.
func watchStopFile(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := os.Stat(stopFile); err == nil {
				slog.Info(stopFile + " file detected, shutting down")
				os.Remove(stopFile)
				cancel()
				return
			}
		}
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
