package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quantflow/agent-trader/internal/config"
	"github.com/quantflow/agent-trader/internal/db"
	"github.com/quantflow/agent-trader/internal/engine"
	"github.com/quantflow/agent-trader/internal/exchange"
	"github.com/quantflow/agent-trader/internal/notifier"
	"github.com/quantflow/agent-trader/internal/strategy"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "agent-trader",
		Short:        "Multi-strategy trading engine with risk-managed execution",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Fatalf("Main | %v", err)
	}
}

func run(ctx context.Context) error {
	cfg := config.MustLoad(configPath)
	log.Printf("Main | Starting in %s mode with %d strategies", cfg.Mode, len(cfg.Strategies))

	var storage db.Storage
	if cfg.DBConnStr != "" {
		pg, err := db.NewPostgres(cfg.DBConnStr, cfg.DBMaxOpen, cfg.DBMaxIdle)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		storage = pg
	} else {
		log.Printf("Main | No database configured, journaling in memory")
		storage = db.NewMemory()
	}
	defer storage.Close()

	tg := notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID,
		cfg.NotificationRetries, cfg.NotificationDelay)

	wlx := exchange.NewWallexExchange(cfg.WallexAPIKey, tg)

	var sink exchange.ExecutionSink
	opts := []engine.Option{
		engine.WithRiskLimits(cfg.RiskLimits),
		engine.WithErrorBackoff(cfg.ErrorBackoff),
	}
	if cfg.Mode == "live" {
		sink = wlx
		opts = append(opts, engine.WithBalances(wlx))
	} else {
		sink = exchange.NewPaperSink(cfg.InitialBalance)
	}

	executor := engine.NewExecutor(wlx, storage, tg, opts...)

	for _, spec := range cfg.Strategies {
		strat, err := strategy.New(spec.Params, sink)
		if err != nil {
			return fmt.Errorf("constructing strategy %q: %w", spec.ID, err)
		}
		if err := executor.Add(ctx, spec.ID, strat); err != nil {
			return fmt.Errorf("starting strategy %q: %w", spec.ID, err)
		}
	}

	<-ctx.Done()
	log.Printf("Main | Shutdown signal received, stopping strategies")
	final := executor.AllPerformance()
	executor.Shutdown()

	for strategyID, snap := range final {
		log.Printf("Main | [%s] trades=%d winRate=%.2f pnl=%.2f", strategyID, snap.TotalTrades, snap.WinRate, snap.TotalPnL)
	}

	return nil
}
