package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/domainrisk/pkg/scan"
	"github.com/CodeMonkeyCybersecurity/domainrisk/pkg/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan <domain>",
	Short: "Scan a domain and print its security score card",
	Long: `Run the passive posture checks against a domain and print the score card.

A result for the same domain within the cache window is reused instead of
re-scanning; pass --fresh to bypass the cache.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		fresh, _ := cmd.Flags().GetBool("fresh")
		emailOptIn, _ := cmd.Flags().GetString("email")

		engine := buildEngine()

		domain, err := scan.Normalize(args[0])
		if err != nil {
			return err
		}

		if !fresh {
			if cached, err := engine.FindCachedScan(ctx, domain); err == nil && cached != nil {
				color.Yellow("Using cached result from %s (scan %s)\n\n",
					cached.CreatedAt.Format("2006-01-02 15:04"), cached.ID)
				printResult(cached.Result)
				return nil
			}
		}

		record, err := engine.CreateQueuedScan(ctx, domain, emailOptIn)
		if err != nil {
			return err
		}

		color.Cyan("Scanning %s ...\n\n", domain)

		result, err := engine.RunScanAndPersist(ctx, record.ID, domain)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		printResult(result)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().Bool("fresh", false, "Bypass the result cache and force a new scan")
	scanCmd.Flags().String("email", "", "Email address to attach to the scan for report delivery")
}

func printResult(result *types.ScanResult) {
	if result == nil {
		color.Red("No result available\n")
		return
	}

	scoreColor := color.New(color.FgGreen, color.Bold)
	switch result.Score.Label {
	case types.ScoreLabelHighRisk:
		scoreColor = color.New(color.FgRed, color.Bold)
	case types.ScoreLabelElevated:
		scoreColor = color.New(color.FgYellow, color.Bold)
	case types.ScoreLabelModerate:
		scoreColor = color.New(color.FgCyan, color.Bold)
	}

	fmt.Printf("Domain:   %s\n", result.Domain)
	fmt.Printf("Overall:  ")
	scoreColor.Printf("%d/100 (%s)\n\n", result.Score.Overall, result.Score.Label)

	for _, cat := range types.Categories() {
		fmt.Printf("  %-20s %3d/100\n", types.CategoryLabels[cat], result.Score.Categories[cat])
	}
	fmt.Println()

	if len(result.TopFindings) > 0 {
		color.White("Top findings:\n")
		for _, f := range result.TopFindings {
			severityColor(f.Severity).Printf("  [%s] ", strings.ToUpper(string(f.Severity)))
			fmt.Printf("%s\n", f.Title)
			fmt.Printf("         %s\n", f.Summary)
		}
		fmt.Println()
	}

	printFindingTable(result.Findings)
}

func printFindingTable(findings []types.Finding) {
	if len(findings) == 0 {
		color.Green("No findings - clean posture.\n")
		return
	}

	sorted := make([]types.Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.Rank() > sorted[j].Severity.Rank()
	})

	color.White("All findings (%d):\n", len(sorted))
	for _, f := range sorted {
		severityColor(f.Severity).Printf("  [%-8s] ", strings.ToUpper(string(f.Severity)))
		fmt.Printf("%-24s %s", f.ID, f.Title)
		if f.Status == types.FindingStatusFailed {
			color.Yellow("  (check failed: %s)", f.ErrorHint)
		}
		fmt.Println()
	}
}

func severityColor(s types.Severity) *color.Color {
	switch s {
	case types.SeverityCritical, types.SeverityHigh:
		return color.New(color.FgRed)
	case types.SeverityMedium:
		return color.New(color.FgYellow)
	case types.SeverityLow:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgWhite)
	}
}
