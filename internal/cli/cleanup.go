package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/retention"
	"github.com/wardenhq/warden/internal/workflow"
)

var (
	cleanupDryRun    bool
	cleanupForce     bool
	cleanupConfig    string
	cleanupStatus    []string
	cleanupOlderThan time.Duration
	cleanupMax       int
	cleanupMode      string
	cleanupFormat    string
)

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Select and report without deleting anything")
	cleanupCmd.Flags().BoolVar(&cleanupForce, "force", false, "Flag every finished run regardless of retention thresholds")
	cleanupCmd.Flags().StringVar(&cleanupConfig, "config", "", "Path to retention YAML (defaults apply when absent)")
	cleanupCmd.Flags().StringSliceVar(&cleanupStatus, "status", nil, "Only clean runs in these states (completed, failed, cancelled)")
	cleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 0, "Only clean runs created at least this long ago")
	cleanupCmd.Flags().IntVar(&cleanupMax, "max", 0, "Delete at most this many runs (0 = unlimited)")
	cleanupCmd.Flags().StringVar(&cleanupMode, "mode", "", "Force a cleanup mode (full|artifacts|logs)")
	cleanupCmd.Flags().StringVarP(&cleanupFormat, "format", "f", "text", "Output format (text|json)")
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Reclaim disk space from finished runs",
	Long: "Scans the run store, selects cleanup candidates under the retention\n" +
		"policy, and deletes them. Running and paused runs are never touched.\n\n" +
		"Exit code 0 on success, 1 on hard failure, 2 when some candidates\n" +
		"errored, 3 when there was nothing to do.",
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := retention.LoadConfig(cleanupConfig)
	if err != nil {
		return err
	}
	store, err := workflow.NewStore(filepath.Join(flagDataDir, "runs"))
	if err != nil {
		return err
	}

	opts := retention.Options{
		DryRun:    cleanupDryRun,
		Force:     cleanupForce,
		OlderThan: cleanupOlderThan,
		MaxDelete: cleanupMax,
	}
	for _, s := range cleanupStatus {
		opts.StatusFilter = append(opts.StatusFilter, workflow.Status(s))
	}
	switch cleanupMode {
	case "":
	case string(retention.ModeFull), string(retention.ModeArtifacts), string(retention.ModeLogs):
		opts.ModeOverride = retention.Mode(cleanupMode)
	default:
		return fmt.Errorf("unknown cleanup mode %q", cleanupMode)
	}

	engine := retention.NewEngine(store, cfg)
	report, err := engine.Run(cmd.Context(), opts)
	if err != nil {
		return err
	}
	printReport(report)

	switch {
	case len(report.Candidates) == 0:
		os.Exit(3)
	case len(report.Errors) > 0:
		os.Exit(2)
	}
	return nil
}

func printReport(report *retention.Report) {
	if cleanupFormat == "json" {
		out, err := json.MarshalIndent(report, "", "  ")
		if err == nil {
			fmt.Println(string(out))
		}
		return
	}
	for _, c := range report.Candidates {
		status := "deleted"
		switch {
		case report.DryRun:
			status = "would delete"
		case c.Skipped:
			status = "skipped (already gone)"
		case c.Error != "":
			status = "ERROR " + c.Error
		}
		reason := ""
		if len(c.Candidate.Reasons) > 0 {
			reason = c.Candidate.Reasons[0].Detail
		}
		fmt.Printf("%-36s  %-9s  %-10s  %s  %s\n",
			c.Candidate.Workflow.ID, c.Mode, humanize.Bytes(uint64(c.FreedBytes)), status, reason)
	}
	fmt.Println(report.Summary())
}
