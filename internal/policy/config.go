package policy

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/internal/scope"
)

// ConfigError marks a fatal configuration problem: malformed policy
// files abort the run immediately, with no retry.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("policy config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// DefaultPolicy returns the built-in workflow policy: workspace-plus-temp
// containment, deny-by-default networking, and a small rule set covering
// the obviously dangerous shapes. Unmatched actions prompt.
func DefaultPolicy(workspace string) *WorkflowPolicy {
	ps := scope.DefaultPathScope(workspace)
	ps.Kind = scope.ScopeWorkspaceAndTemp
	ps.DenyPaths = []string{
		"~/.ssh",
		"~/.aws",
		"~/.config/gcloud",
		filepath.Join(workspace, ".env"),
	}
	return &WorkflowPolicy{
		PathScope: ps,
		NetScope: scope.NetworkScope{
			Default: scope.NetworkDeny,
		},
		Default:     Prompt,
		Destructive: []ActionKind{ActionFileDelete, ActionBashExecute},
		LogDenied:   true,
		LogPrompts:  true,
		Rules: []Rule{
			{
				ID:              "deny-root-delete",
				Name:            "Root-level delete",
				Kinds:           []ActionKind{ActionBashExecute},
				Decision:        Deny,
				CommandPatterns: []string{`rm\s+(-[a-zA-Z]+\s+)*/(\s|$|\*)`},
				Priority:        100,
				Enabled:         true,
				Reason:          "deleting at filesystem root is never allowed",
			},
			{
				ID:              "prompt-recursive-delete",
				Name:            "Recursive force delete",
				Kinds:           []ActionKind{ActionBashExecute},
				Decision:        Prompt,
				CommandPatterns: []string{`rm\s+-[a-zA-Z]*r[a-zA-Z]*f|rm\s+-[a-zA-Z]*f[a-zA-Z]*r`},
				Priority:        90,
				Enabled:         true,
			},
			{
				ID:       "allow-workspace-read",
				Name:     "Workspace reads",
				Kinds:    []ActionKind{ActionFileRead},
				Decision: Allow,
				Priority: 10,
				Enabled:  true,
			},
		},
	}
}

// LoadPolicy loads a workflow policy from a YAML file. A missing file
// returns the built-in defaults rooted at workspace; invalid YAML is a
// ConfigError.
func LoadPolicy(path, workspace string) (*WorkflowPolicy, error) {
	if path == "" {
		return DefaultPolicy(workspace), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(workspace), nil
		}
		return nil, &ConfigError{Path: path, Err: err}
	}

	// Start with defaults; YAML overwrites only specified fields.
	cfg := DefaultPolicy(workspace)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	if cfg.Default == "" {
		cfg.Default = Prompt
	}
	return cfg, nil
}
