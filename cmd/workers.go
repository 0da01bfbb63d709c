package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/domainrisk/internal/jobs"
	"github.com/CodeMonkeyCybersecurity/domainrisk/internal/worker"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Manage the background scan worker pool",
}

var workersStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the worker pool and process queued scans",
	Long: `Start a pool of workers that consume scan jobs from the Redis queue and
run them through the scan engine. Blocks until interrupted; SIGINT/SIGTERM
trigger a graceful drain.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("workers require a Redis queue; set --redis-addr or DOMAINRISK_REDIS_ADDR")
		}

		queue, err := jobs.NewRedisQueue(cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to job queue: %w", err)
		}
		defer queue.Close()

		engine := buildEngine()
		pool := worker.NewWorkerPool(queue, store, engine, cfg.Worker, log)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := pool.Start(ctx, cfg.Worker.Count); err != nil {
			return fmt.Errorf("failed to start worker pool: %w", err)
		}

		color.Green("Worker pool started with %d workers\n", cfg.Worker.Count)
		color.White("Press Ctrl+C to stop\n")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		sig := <-sigChan

		color.Yellow("\nReceived %s - stopping worker pool...\n", sig)
		cancel()

		if err := pool.Stop(); err != nil {
			return fmt.Errorf("failed to stop worker pool: %w", err)
		}

		color.Green("Worker pool stopped\n")
		return nil
	},
}

var workersStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue worker status",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("workers require a Redis queue; set --redis-addr or DOMAINRISK_REDIS_ADDR")
		}

		queue, err := jobs.NewRedisQueue(cfg.Redis)
		if err != nil {
			color.Red("Queue unreachable: %v\n", err)
			return err
		}
		defer queue.Close()

		color.Green("Queue reachable at %s\n", cfg.Redis.Addr)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workersCmd)
	workersCmd.AddCommand(workersStartCmd)
	workersCmd.AddCommand(workersStatusCmd)
}
