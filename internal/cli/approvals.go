package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/approval"
)

var approvalsFormat string

func init() {
	rootCmd.AddCommand(approvalsCmd)
	approvalsCmd.PersistentFlags().StringVarP(&approvalsFormat, "format", "f", "text", "Output format (text|json)")
	approvalsCmd.AddCommand(approvalsPendingCmd)
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals <run-id>",
	Short: "Show approval history for a run",
	Long: "Reads the durable approval store and prints every decision\n" +
		"recorded for the run, oldest first.",
	Args: cobra.ExactArgs(1),
	RunE: runApprovals,
}

func runApprovals(cmd *cobra.Command, args []string) error {
	store, err := approval.OpenStore(filepath.Join(flagDataDir, "approvals.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.History(args[0])
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Printf("no approvals recorded for run %s\n", args[0])
		return nil
	}

	if approvalsFormat == "json" {
		out, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	for _, r := range records {
		line := fmt.Sprintf("%s  %-8s  %s", r.DecidedAt.Format("2006-01-02 15:04:05"), r.Decision, r.Request.Context)
		if r.Remember {
			line += fmt.Sprintf("  [remembered %s]", r.RememberScope)
		}
		if r.Comment != "" {
			line += "  # " + r.Comment
		}
		fmt.Println(line)
	}
	return nil
}

var approvalsPendingCmd = &cobra.Command{
	Use:   "pending <dir>",
	Short: "List unresolved file-surface approval requests",
	Long: "Lists requests waiting in a file approval directory. Approve or\n" +
		"deny one by editing its status field; the waiting run picks the\n" +
		"change up immediately.",
	Args: cobra.ExactArgs(1),
	RunE: runApprovalsPending,
}

func runApprovalsPending(cmd *cobra.Command, args []string) error {
	surface := &approval.FileSurface{Dir: args[0]}
	pending, err := surface.Pending()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("no pending requests")
		return nil
	}

	if approvalsFormat == "json" {
		out, err := json.MarshalIndent(pending, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	for _, p := range pending {
		fmt.Printf("%s  run=%s  %s %s  risk=%d(%s)  %s\n",
			p.ID, p.RunID, p.Kind, p.Target, p.RiskScore, p.RiskLevel, p.Reason)
	}
	return nil
}
