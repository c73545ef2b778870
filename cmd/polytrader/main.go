package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jonnyspicer/mango"

	"polytrader/internal/collector"
	"polytrader/internal/config"
	"polytrader/internal/db"
	"polytrader/internal/execution"
	"polytrader/internal/journal"
	"polytrader/internal/logging"
	"polytrader/internal/market"
	"polytrader/internal/performance"
	"polytrader/internal/risk"
	"polytrader/internal/runtime"
	"polytrader/internal/scheduler"
	"polytrader/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML or YAML config file (overrides POLYTRADER_CONFIG)")
	modeFlag := flag.String("mode", "", "Trading mode override: PAPER, LIVE or SHADOW")
	flag.Parse()

	path := "config.toml"
	if p := os.Getenv("POLYTRADER_CONFIG"); p != "" {
		path = p
	}
	if *configPath != "" {
		path = *configPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("failed to load config", "path", path, "error", err)
		os.Exit(1)
	}
	if *modeFlag != "" {
		cfg.General.Mode = strings.ToUpper(*modeFlag)
	}

	logger, closeLog := logging.New(logging.Options{Level: cfg.General.LogLevel, File: cfg.General.LogFile})
	defer closeLog()
	slog.SetDefault(logger)

	mode, err := strategy.ParseMode(strings.ToUpper(cfg.General.Mode))
	if err != nil {
		slog.Error("invalid mode", "error", err)
		os.Exit(1)
	}
	slog.Info("polytrader starting", "mode", mode.String(), "config", path)

	database, err := db.Open(cfg.General.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	version, err := db.Version(database)
	if err != nil {
		slog.Error("failed to read schema version", "error", err)
		os.Exit(1)
	}
	slog.Info("database initialized", "path", cfg.General.DBPath, "schema_version", version)

	gate, err := risk.NewGate(risk.Limits{
		MaxPosition:          cfg.Risk.MaxPosition,
		MaxPositionPerMarket: cfg.Risk.MaxPositionPerMarket,
		ShortTolerance:       cfg.Risk.ShortTolerance,
		PriceFloor:           cfg.Risk.PriceFloor,
		PriceCeiling:         cfg.Risk.PriceCeiling,
	})
	if err != nil {
		slog.Error("invalid risk limits", "error", err)
		os.Exit(1)
	}

	runtimes := buildRuntimes(cfg.Strategies, gate, logger)
	if len(runtimes) == 0 {
		slog.Error("no strategy initialized, nothing to run")
		os.Exit(1)
	}

	mc := mango.DefaultClientInstance()
	slog.Info("manifold client initialized")

	cache := market.NewCache(cfg.Manifold.CacheTTL.Duration)
	scanner := market.NewScanner(mc, cache, market.ScannerConfig{
		Limit:           cfg.Manifold.ScanLimit,
		MinLiquidity:    cfg.Manifold.MinLiquidity,
		SyntheticSpread: cfg.Manifold.SyntheticSpread,
	})

	account, sinks := buildExecution(mode, cfg, mc, database)

	if cfg.NATS.Enabled {
		pub, err := execution.NewNATS(execution.NATSConfig{
			URL:            cfg.NATS.URL,
			Subject:        cfg.NATS.Subject,
			ClientID:       cfg.NATS.ClientID,
			ConnectTimeout: cfg.NATS.ConnectTimeout.Duration,
		})
		if err != nil {
			slog.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	sched := scheduler.New(scheduler.Deps{
		Mode:      mode,
		Source:    scanner,
		Account:   account,
		Runtimes:  runtimes,
		Sinks:     sinks,
		Journal:   journal.New(database),
		Collector: collector.NewCollector(database),
		Tracker:   performance.NewTracker(database),
	}, cfg.Schedule)

	// Graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := sched.Run(ctx); err != nil && err != context.Canceled {
		slog.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	slog.Info("polytrader stopped")
}

// buildRuntimes creates and initializes one runtime per enabled strategy.
// An instance that fails to initialize is logged and left out.
func buildRuntimes(strategies []config.StrategyConfig, gate *risk.Gate, logger *slog.Logger) []*runtime.Runtime {
	registry := strategy.Builtin()

	var runtimes []*runtime.Runtime
	for _, sc := range strategies {
		if !sc.IsEnabled() {
			slog.Info("strategy disabled", "strategy", sc.Name)
			continue
		}
		s, err := registry.New(sc.Kind, logger.With("strategy", sc.Name))
		if err != nil {
			slog.Error("unknown strategy kind", "strategy", sc.Name, "kind", sc.Kind, "known", registry.Kinds())
			continue
		}
		rt := runtime.New(sc.Name, s, gate, logger)
		if err := rt.Initialize(strategy.Params(sc.Params)); err != nil {
			continue
		}
		runtimes = append(runtimes, rt)
	}
	slog.Info("strategies registered", "count", len(runtimes))
	return runtimes
}

// buildExecution picks the account source and order sinks for a mode.
func buildExecution(mode strategy.Mode, cfg *config.Config, mc *mango.Client, database *sql.DB) (runtime.AccountSource, []runtime.OrderSink) {
	switch mode {
	case strategy.ModeLive:
		portfolio := risk.NewPortfolio(mc)
		live := execution.NewManifold(mc, database, cfg.Manifold.MinBet)
		return execution.NewLedger(database, live.Name(), portfolio), []runtime.OrderSink{live}
	case strategy.ModeShadow:
		shadow := execution.NewShadow(database)
		return execution.NewLedger(database, shadow.Name(), execution.FixedBalance(cfg.General.Balance)), []runtime.OrderSink{shadow}
	default:
		paper := execution.NewPaper(cfg.General.Balance)
		return paper, []runtime.OrderSink{paper}
	}
}
