package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/polyrevert/config"
	"github.com/alejandrodnm/polyrevert/internal/adapters/binance"
	"github.com/alejandrodnm/polyrevert/internal/adapters/notify"
	"github.com/alejandrodnm/polyrevert/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyrevert/internal/adapters/storage"
	"github.com/alejandrodnm/polyrevert/internal/application/execution"
	"github.com/alejandrodnm/polyrevert/internal/application/orchestrator"
	"github.com/alejandrodnm/polyrevert/internal/application/risk"
	"github.com/alejandrodnm/polyrevert/internal/application/selector"
	sigengine "github.com/alejandrodnm/polyrevert/internal/application/signal"
	"github.com/alejandrodnm/polyrevert/internal/domain"
	"github.com/alejandrodnm/polyrevert/internal/metrics"
	"github.com/alejandrodnm/polyrevert/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	bankroll := flag.Float64("bankroll", 0, "starting bankroll in USD (overrides config)")
	interval := flag.Duration("interval", 0, "poll interval, e.g. 1s (overrides config)")
	dryRun := flag.Bool("dry-run", false, "simulate fills instead of placing real orders")
	once := flag.Bool("once", false, "run one cycle and exit")
	history := flag.Bool("history", false, "print stored signal history and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
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
	if *bankroll > 0 {
		cfg.Risk.Bankroll = *bankroll
	}
	if *interval > 0 {
		cfg.Strategy.PollIntervalSeconds = interval.Seconds()
	}
	simulated := *dryRun || cfg.Execution.DryRun
	setupLogger(cfg.Log)

	if err := cfg.Validate(simulated); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	params := cfg.Params()
	estimator, ok := strategy.NewRegistry(params).Get(params.Estimator)
	if !ok {
		slog.Error("invalid configuration", "err", fmt.Errorf("unknown estimator %q: %w", params.Estimator, domain.ErrConfig))
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN, cfg.Storage.MaxRecords)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	if *history {
		printHistory(store, cfg.Storage.MaxRecords)
		return
	}

	slog.Info("polyrevert starting",
		"config", *configPath,
		"symbols", params.Symbols,
		"interval", params.PollInterval,
		"bankroll", fmt.Sprintf("$%.2f", cfg.Risk.Bankroll),
		"dry_run", simulated,
		"once", *once,
		"estimator", estimator.Name(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	poly := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase)

	var backend execution.Backend = execution.NewSimulated()
	startBankroll := cfg.Risk.Bankroll
	if !simulated {
		live, err := setupLive(ctx, cfg)
		if errors.Is(err, context.Canceled) {
			slog.Info("live trading aborted by user")
			return
		}
		if err != nil {
			slog.Error("live setup failed", "err", err)
			os.Exit(1)
		}
		defer live.trading.Close()
		backend = live.backend
		if live.balance < startBankroll {
			slog.Warn("bankroll capped to wallet balance",
				"configured", fmt.Sprintf("$%.2f", startBankroll),
				"balance", fmt.Sprintf("$%.2f", live.balance),
			)
			startBankroll = live.balance
		}
	}

	var gwOpts []execution.Option
	if cfg.Execution.NoticeEnabled {
		gwOpts = append(gwOpts, execution.WithNotices(notify.NewWebhook(cfg.API.NoticeBase)))
	}

	console := notify.NewConsole()
	riskMgr := risk.NewManager(startBankroll, params)
	orch := orchestrator.New(params, orchestrator.Deps{
		Data:     binance.NewClient(cfg.API.BinanceBase),
		Selector: selector.New(poly, params),
		Engine:   sigengine.NewEngine(params, estimator),
		Risk:     riskMgr,
		Gateway:  execution.New(backend, store, params, gwOpts...),
		Marks:    poly,
		Reporter: console,
	})

	srv := metrics.Serve(cfg.Metrics.ListenAddr)
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		metrics.Shutdown(shutdownCtx, srv)
	}()

	if n, err := orch.Reconcile(ctx); err != nil {
		slog.Warn("reconcile failed, starting without restored positions", "err", err)
	} else if n > 0 {
		slog.Info("open positions restored", "count", n)
	}

	if *once {
		res := orch.RunOnce(ctx)
		slog.Info("single cycle complete",
			"paused", res.Paused,
			"evaluated", res.Evaluated,
			"signals", res.Signals,
			"opened", res.Opened,
			"closed", res.Closed,
			"skipped", res.Skipped,
		)
		reportOnce(ctx, console, riskMgr)
		return
	}

	if err := orch.Run(ctx); err != nil {
		slog.Error("orchestrator exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("polyrevert stopped cleanly")
}

func reportOnce(ctx context.Context, console *notify.Console, riskMgr *risk.Manager) {
	open := riskMgr.OpenPositions()
	snapshot := make([]domain.Position, 0, len(open))
	for _, p := range open {
		snapshot = append(snapshot, *p)
	}
	if err := console.ReportStats(ctx, riskMgr.Stats(), snapshot); err != nil {
		slog.Warn("stats report failed", "err", err)
	}
}

func printHistory(store *storage.SQLiteStorage, limit int) {
	recs, err := store.ListSignals(context.Background(), limit)
	if err != nil {
		slog.Error("failed to load signal history", "err", err)
		os.Exit(1)
	}
	notify.NewConsole().PrintSignals(recs)
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
