package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/risk"
)

var checkFormat string

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
}

var checkCmd = &cobra.Command{
	Use:   "check <kind> <target>",
	Short: "Evaluate one action against the policy",
	Long: "Evaluates a single action without executing anything.\n\n" +
		"Kinds: file_read, file_write, file_delete, bash_execute,\n" +
		"network_request, agent_spawn. The target is a path, a full\n" +
		"command line, a URL, or an agent name depending on the kind.\n\n" +
		"Exit code 0 for allow, 1 for deny, 2 for prompt (a human would\n" +
		"be asked). Use in hooks to pre-flight agent actions.",
	Args: cobra.ExactArgs(2),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	action, err := actionFromArgs(args[0], args[1])
	if err != nil {
		return err
	}

	pol, err := policy.LoadPolicy(flagPolicy, workspaceDir())
	if err != nil {
		return err
	}
	engine := policy.NewEngine(pol)
	result := engine.Evaluate(action)
	assessment := risk.Assess(action)

	switch checkFormat {
	case "json":
		out, err := json.MarshalIndent(map[string]any{
			"action":   action.String(),
			"decision": result.Decision,
			"reason":   result.Reason,
			"rule":     ruleID(result),
			"risk": map[string]any{
				"score":          assessment.Score,
				"level":          assessment.Level,
				"recommendation": assessment.Recommendation,
				"summary":        assessment.Summary,
			},
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	default:
		fmt.Printf("action:   %s\n", action)
		fmt.Printf("decision: %s\n", result.Decision)
		if result.Reason != "" {
			fmt.Printf("reason:   %s\n", result.Reason)
		}
		if id := ruleID(result); id != "" {
			fmt.Printf("rule:     %s\n", id)
		}
		fmt.Printf("risk:     %d (%s)\n", assessment.Score, assessment.Level)
	}

	switch result.Decision {
	case policy.Deny:
		os.Exit(1)
	case policy.Prompt:
		os.Exit(2)
	}
	return nil
}

func actionFromArgs(kind, target string) (policy.Context, error) {
	switch policy.ActionKind(kind) {
	case policy.ActionFileRead:
		return policy.FileRead(target), nil
	case policy.ActionFileWrite:
		return policy.FileWrite(target), nil
	case policy.ActionFileDelete:
		return policy.FileDelete(target), nil
	case policy.ActionBashExecute:
		return policy.BashExecute(target), nil
	case policy.ActionNetworkRequest:
		return policy.NetworkRequest(target), nil
	case policy.ActionAgentSpawn:
		return policy.AgentSpawn(target), nil
	}
	return policy.Context{}, fmt.Errorf("unknown action kind %q", kind)
}

func ruleID(r policy.Result) string {
	if r.MatchedRule == nil {
		return ""
	}
	return r.MatchedRule.ID
}
