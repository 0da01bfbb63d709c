package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/domainrisk/internal/jobs"
	"github.com/CodeMonkeyCybersecurity/domainrisk/pkg/types"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <domain>",
	Short: "Queue a scan for background workers",
	Long: `Create a scan record and hand it to the Redis-backed job queue for the
worker pool to pick up.

Without a configured Redis address the scan runs inline instead, exactly as
'domainrisk scan' would. Cached and already-active scans are returned without
queueing duplicate work.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		emailOptIn, _ := cmd.Flags().GetString("email")
		engine := buildEngine()

		record, created, err := engine.GetOrCreateScan(ctx, args[0], emailOptIn)
		if err != nil {
			return err
		}

		if !created {
			if record.Status == types.ScanStatusDone {
				color.Yellow("Cached result available for %s (scan %s)\n", record.Domain, record.ID)
				printResult(record.Result)
				return nil
			}
			color.Yellow("Scan already %s for %s (scan %s)\n", record.Status, record.Domain, record.ID)
			return nil
		}

		// Inline fallback: no Redis configured means no workers, so the scan
		// runs right here instead of sitting queued forever.
		if cfg.Redis.Addr == "" {
			color.Cyan("No queue configured, running scan inline for %s ...\n\n", record.Domain)
			result, err := engine.RunScanAndPersist(ctx, record.ID, record.Domain)
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}
			printResult(result)
			return nil
		}

		queue, err := jobs.NewRedisQueue(cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to job queue: %w", err)
		}
		defer queue.Close()

		job := &types.Job{
			ScanID: record.ID,
			Domain: record.Domain,
		}
		if err := queue.Push(ctx, job); err != nil {
			return fmt.Errorf("failed to enqueue scan: %w", err)
		}

		color.Green("Scan queued: %s (job %s)\n", record.ID, job.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
	enqueueCmd.Flags().String("email", "", "Email address to attach to the scan for report delivery")
}
