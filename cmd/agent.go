package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gitpulse/gitpulse-indexer/internal/config"
	"github.com/gitpulse/gitpulse-indexer/internal/database"
	"github.com/gitpulse/gitpulse-indexer/internal/gitlocal"
	"github.com/gitpulse/gitpulse-indexer/internal/indexer"
	"github.com/gitpulse/gitpulse-indexer/internal/metrics"
	"github.com/gitpulse/gitpulse-indexer/internal/scheduler"
	"github.com/gitpulse/gitpulse-indexer/internal/store"
	"github.com/gitpulse/gitpulse-indexer/internal/token"
)

var agentWorkers int

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the persistent indexing daemon",
	Long: `Starts the indexing daemon. The daemon will:
  1. Fan out one task per (repository, entity) on a daily schedule,
     staggered per entity to spread rate-budget pressure
  2. Drain due tasks on a worker pool, one (repo, entity) job per worker
  3. Walk each entity's window incrementally, upserting records
  4. Reap stuck running states back to pending every hour

Examples:
  gitpulse agent
  gitpulse agent --workers 5`,
	RunE: runAgent,
}

func init() {
	agentCmd.Flags().IntVar(&agentWorkers, "workers", 0,
		"Number of parallel pipeline workers (overrides config)")
}

func runAgent(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown on SIGINT/SIGTERM.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if agentWorkers > 0 {
		cfg.Indexer.Workers = agentWorkers
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	st := store.New(db)
	broker := token.NewBroker(cfg.GitHub, st)
	local := gitlocal.New(cfg, st)
	ix := indexer.New(cfg, st, broker, local)

	if cfg.Metrics.Port > 0 {
		go func() {
			if err := metrics.Serve(cfg.Metrics.Port); err != nil {
				slog.Error("Metrics listener failed", "port", cfg.Metrics.Port, "error", err)
			}
		}()
	}

	sweeper := scheduler.NewSweeper(st)
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer sweeper.Stop()

	slog.Info("Indexing daemon started",
		"workers", cfg.Indexer.Workers, "service", cfg.Indexer.Service,
		"host", cfg.GitHub.Host, "driver", db.Driver())

	dispatcher := scheduler.NewDispatcher(st, ix, cfg.Indexer.Workers)
	dispatcher.Run(ctx)
	return nil
}
