package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/algosync/internal/app"
	"github.com/custodia-labs/algosync/internal/core/domain"
	"github.com/custodia-labs/algosync/internal/logger"
)

var (
	workerOnce  bool
	workerWatch bool
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run queued jobs and periodic reindexes",
	Long: `Runs the recurring worker tasks until interrupted:

  job-queue      runs pending indexing jobs step by step
  stale-reindex  queues a reindex of records indexed too long ago

With --watch the configuration file is reloaded when it changes.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "drain the job queue once and exit")
	workerCmd.Flags().BoolVar(&workerWatch, "watch", true, "reload the configuration file on change")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	a, err := requireApp()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if workerOnce {
		steps, err := a.Jobs.Drain(ctx, 0)
		cmd.Printf("Ran %d job steps.\n", steps)
		if err != nil {
			return fmt.Errorf("run jobs: %w", err)
		}
		return nil
	}
	if !a.Config.Settings.Scheduler.Enabled {
		return errors.New("worker is disabled in the configuration")
	}

	var updates <-chan *domain.Config
	if workerWatch && a.Loader != nil {
		updates, err = a.Loader.Watch(ctx)
		if err != nil {
			logger.Warn("config watch disabled: %v", err)
		}
	}

	cmd.Println("Worker started.")
	for {
		cfg, err := runScheduler(ctx, a, updates)
		if err != nil {
			return err
		}
		if cfg == nil {
			cmd.Println("Worker stopped.")
			return nil
		}
		next, err := a.Reconfigure(cfg)
		if err != nil {
			logger.Error("reload rejected, keeping the previous configuration: %v", err)
			continue
		}
		application, a = next, next
		cmd.Println("Configuration reloaded.")
	}
}

// runScheduler runs a's scheduler until ctx is done or a new configuration
// arrives. It returns the new configuration, or nil on shutdown.
func runScheduler(ctx context.Context, a *app.App, updates <-chan *domain.Config) (*domain.Config, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- a.Scheduler.Start(runCtx)
	}()

	// Start only fails through its context, so a halted run is clean.
	halt := func() error {
		cancel()
		<-done
		return a.Scheduler.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return nil, halt()
		case err := <-done:
			_ = a.Scheduler.Stop()
			if err != nil && ctx.Err() == nil {
				return nil, err
			}
			return nil, nil
		case cfg, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			return cfg, halt()
		}
	}
}
