// Package cli wires the warden commands: single-action policy checks,
// approval history queries, and retention cleanup.
package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	flagPolicy    string
	flagWorkspace string
	flagDataDir   string
	flagEvents    string
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Policy and sandbox enforcement for autonomous agent workflows",
	Long: "Decides, action by action, whether an agent may touch a path, open a\n" +
		"connection, or run a command. Prompt decisions go to a human; finished\n" +
		"runs are reclaimed by the retention engine.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagPolicy, "policy", "", "Path to policy YAML (defaults apply when absent)")
	rootCmd.PersistentFlags().StringVar(&flagWorkspace, "workspace", "", "Workspace root (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", defaultDataDir(), "Directory holding run state and the approval store")
	rootCmd.PersistentFlags().StringVar(&flagEvents, "events", "", "Event log path (default: <data-dir>/events.jsonl)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".warden"
	}
	return filepath.Join(home, ".warden")
}

func workspaceDir() string {
	if flagWorkspace != "" {
		return flagWorkspace
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func eventsPath() string {
	if flagEvents != "" {
		return flagEvents
	}
	return filepath.Join(flagDataDir, "events.jsonl")
}
