// Package main is the entry point for the synthetic options execution engine.
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

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"synthbot/internal/alerting"
	"synthbot/internal/broker"
	"synthbot/internal/broker/dhan"
	"synthbot/internal/broker/paper"
	"synthbot/internal/config"
	"synthbot/internal/engine"
	"synthbot/internal/execution"
	"synthbot/internal/marketdata"
	"synthbot/internal/metrics"
	"synthbot/internal/persistence"
	"synthbot/internal/risk"
	"synthbot/internal/server"
	"synthbot/internal/types"
	"synthbot/internal/worker"
)

// Version information (set by build flags).
var (
	Version   = "0.2.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		printUsage()
	case "run":
		cmdRun(os.Args[2:])
	case "rollover":
		cmdRollover(os.Args[2:])
	case "validate":
		cmdValidate(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Synthbot - Synthetic Long Options Execution Engine

Usage:
  synthbot <command> [options]

Commands:
  run        Start the signal server and execution engine
  rollover   Run one expiry-day rollover sweep and exit
  validate   Validate configuration file
  version    Show version information
  help       Show this help message

Examples:
  synthbot run --config config.yaml
  synthbot rollover --config config.yaml
  synthbot validate --config config.yaml

Use "synthbot <command> --help" for more information about a command.`)
}

func cmdVersion() {
	fmt.Printf("synthbot version %s\n", Version)
	fmt.Printf("  Build time: %s\n", BuildTime)
	fmt.Printf("  Git commit: %s\n", GitCommit)
}

func cmdValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	fs.Parse(args)

	loadEnv()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration is valid!")
	fmt.Printf("  Broker: %s\n", cfg.Broker.Type)
	fmt.Printf("  Store: %s (%s)\n", cfg.Persistence.Backend, cfg.Persistence.Path)
	fmt.Printf("  Underlying: %s (lot %d)\n", cfg.Market.Underlying, cfg.Market.LotSize)
	fmt.Printf("  Rollover cutoff: %s IST\n", cfg.Rollover.Cutoff)
	fmt.Printf("  Contracts: %d\n", len(cfg.Contracts))
}

// loadEnv loads a local .env file when present so ${VAR} references in the
// config resolve to broker credentials.
func loadEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env", "error", err)
	}
}

func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// components bundles everything built from configuration.
type components struct {
	store     persistence.Store
	manager   *engine.Manager
	scheduler *engine.RolloverScheduler
	alerter   *alerting.MultiAlerter
}

func buildComponents(cfg *config.Config, logger *slog.Logger) (*components, error) {
	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	var (
		brk    broker.Broker
		quotes broker.QuoteProvider
		margin broker.MarginEstimator
	)
	switch cfg.Broker.Type {
	case "dhan":
		client := dhan.NewClient(cfg.ToDhanConfig(), logger)
		brk, quotes, margin = client, client, client
	default:
		p := paper.NewBroker(paper.DefaultConfig(), logger)
		brk, quotes, margin = p, p, p
	}

	quotes = marketdata.NewCachedQuoteProvider(quotes, cfg.QuoteCacheTTL())

	alerter := buildAlerter(cfg, logger)
	liquidity := risk.NewLiquidityGate(cfg.ToLiquidityConfig(), quotes, logger)
	marginGate := risk.NewMarginGate(cfg.ToMarginConfig(), margin, logger)
	exec := execution.NewExecutor(cfg.ToExecutionConfig(), brk, liquidity, marginGate, nil, logger)
	manager := engine.NewManager(store, exec, brk, alerter, logger)
	scheduler := engine.NewRolloverScheduler(cfg.ToRolloverConfig(), store, manager, cfg.ToResolver(), alerter, logger)

	return &components{
		store:     store,
		manager:   manager,
		scheduler: scheduler,
		alerter:   alerter,
	}, nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (persistence.Store, error) {
	switch cfg.Persistence.Backend {
	case "sqlite":
		return persistence.NewSQLiteStore(cfg.Persistence.Path)
	default:
		return persistence.NewFileStore(cfg.Persistence.Path, logger)
	}
}

func buildAlerter(cfg *config.Config, logger *slog.Logger) *alerting.MultiAlerter {
	multi := alerting.NewMultiAlerter(logger)
	if !cfg.Alerting.Enabled {
		return multi
	}
	for _, ch := range cfg.Alerting.Channels {
		switch ch.Type {
		case "telegram":
			multi.AddAlerter(alerting.NewTelegramAlerter(alerting.TelegramConfig{
				BotToken: ch.BotToken,
				ChatID:   ch.ChatID,
			}))
		default:
			multi.AddAlerter(alerting.NewConsoleAlerter(logger))
		}
	}
	return multi
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	verbose := fs.Bool("verbose", false, "Verbose output")
	fs.Parse(args)

	logger := setupLogger(*verbose)
	loadEnv()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comps, err := buildComponents(cfg, logger)
	if err != nil {
		logger.Error("failed to build components", "err", err)
		os.Exit(1)
	}
	defer func() { _ = comps.store.Close() }()

	logger.Info("synthbot starting",
		"version", Version,
		"broker", cfg.Broker.Type,
		"underlying", cfg.Market.Underlying,
		"store", cfg.Persistence.Backend,
	)

	pool := worker.NewPool(ctx, cfg.Server.Workers, cfg.Server.QueueDepth, logger)
	srv := server.NewServer(cfg.ToServerConfig(), comps.manager, cfg.ToResolver(), pool, logger)

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(cfg.ToMetricsServerConfig(), logger)
		metricsSrv.RegisterHealthCheck("store", storeHealthCheck(comps.store))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	if metricsSrv != nil {
		g.Go(metricsSrv.Start)
	}
	g.Go(func() error {
		rolloverLoop(gctx, comps.scheduler, logger)
		return nil
	})

	if metricsSrv != nil {
		metricsSrv.SetReady(true)
	}
	_ = comps.alerter.AlertEvent(ctx, alerting.EventEngineStarted, "Engine started",
		"version", Version, "broker", cfg.Broker.Type)

	if err := g.Wait(); err != nil {
		logger.Error("startup failed", "err", err)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("signal server shutdown", "err", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "err", err)
		}
	}
	pool.Close()

	_ = comps.alerter.AlertEvent(context.Background(), alerting.EventEngineStopped, "Engine stopped")
	logger.Info("synthbot shutdown complete")
}

// rolloverLoop triggers one sweep per expiry day once the cutoff passes. Its
// minute tick doubles as the engine liveness heartbeat.
func rolloverLoop(ctx context.Context, scheduler *engine.RolloverScheduler, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	recorder := metrics.NewRecorder()

	var lastRun string
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			recorder.RecordHeartbeat()
			day := now.In(engine.IST).Format("2006-01-02")
			if day == lastRun {
				continue
			}
			summary, err := scheduler.Run(ctx, now)
			if errors.Is(err, types.ErrBeforeCutoff) {
				continue
			}
			if err != nil {
				logger.Error("rollover sweep failed", "err", err)
				continue
			}
			if summary.Attempted > 0 {
				lastRun = day
				logger.Info("rollover sweep finished",
					"attempted", summary.Attempted,
					"rolled", summary.RolledOver,
					"exit_failures", summary.ExitFailures,
					"reentry_failures", summary.ReentryFailures,
				)
			}
		}
	}
}

func cmdRollover(args []string) {
	fs := flag.NewFlagSet("rollover", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	verbose := fs.Bool("verbose", false, "Verbose output")
	fs.Parse(args)

	logger := setupLogger(*verbose)
	loadEnv()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comps, err := buildComponents(cfg, logger)
	if err != nil {
		logger.Error("failed to build components", "err", err)
		os.Exit(1)
	}
	defer func() { _ = comps.store.Close() }()

	summary, err := comps.scheduler.Run(ctx, time.Now())
	if errors.Is(err, types.ErrBeforeCutoff) {
		logger.Info("nothing to do", "err", err)
		return
	}
	if err != nil {
		logger.Error("rollover sweep failed", "err", err)
		os.Exit(1)
	}

	printRolloverSummary(summary)

	report := summary.Report()
	if !report.Clean() {
		_ = comps.alerter.Alert(ctx, report.Severity(), "Rollover sweep needs attention",
			"attempted", report.Attempted,
			"rolled", report.RolledOver,
			"exit_failures", report.ExitFailures,
			"reentry_failures", report.ReentryFailures,
		)
		os.Exit(1)
	}
}

func printRolloverSummary(s engine.RolloverSummary) {
	fmt.Println("\n=== ROLLOVER SUMMARY ===")
	fmt.Printf("Run at:            %s\n", s.RunAt.Format("2006-01-02 15:04 MST"))
	fmt.Printf("Attempted:         %d\n", s.Attempted)
	fmt.Printf("Rolled over:       %d\n", s.RolledOver)
	fmt.Printf("Exit failures:     %d\n", s.ExitFailures)
	fmt.Printf("Re-entry failures: %d\n", s.ReentryFailures)
	for _, o := range s.Outcomes {
		status := "rolled"
		switch {
		case o.ManualIntervention:
			status = "MANUAL INTERVENTION"
		case !o.Exited:
			status = "exit failed"
		}
		fmt.Printf("  %-16s %-10s %s", o.SystemID, o.Underlying, status)
		if o.Reason != "" {
			fmt.Printf("  (%s)", o.Reason)
		}
		fmt.Println()
	}
}

func storeHealthCheck(store persistence.Store) metrics.HealthChecker {
	return func() metrics.Check {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := store.All(ctx); err != nil {
			return metrics.Check{Status: "unhealthy", Message: err.Error()}
		}
		return metrics.Check{Status: "healthy"}
	}
}
