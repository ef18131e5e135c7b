package scope

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// PathScopeKind selects which roots a path scope covers.
type PathScopeKind string

const (
	ScopeWorkspaceOnly    PathScopeKind = "workspace-only"
	ScopeTempOnly         PathScopeKind = "temp-only"
	ScopeWorkspaceAndTemp PathScopeKind = "workspace-and-temp"
	ScopeCustom           PathScopeKind = "custom"
)

// Verdict is the outcome of a guard check.
type Verdict struct {
	Allowed bool
	Reason  string
}

func allowed(reason string) Verdict { return Verdict{Allowed: true, Reason: reason} }
func denied(reason string) Verdict  { return Verdict{Allowed: false, Reason: reason} }

// PathScope declares the filesystem boundary for agent actions.
// DenyPaths always win regardless of scope kind. AllowPaths is consulted
// only for ScopeCustom.
type PathScope struct {
	Kind               PathScopeKind `yaml:"kind"`
	WorkspaceRoot      string        `yaml:"workspace_root"`
	TempRoot           string        `yaml:"temp_root"`
	DenyPaths          []string      `yaml:"deny_paths"`
	AllowPaths         []string      `yaml:"allow_paths"`
	BlockSymlinkEscape bool          `yaml:"block_symlink_escape"`
}

// DefaultPathScope returns a workspace-only scope rooted at workspace
// with symlink-escape blocking on.
func DefaultPathScope(workspace string) PathScope {
	return PathScope{
		Kind:               ScopeWorkspaceOnly,
		WorkspaceRoot:      workspace,
		TempRoot:           os.TempDir(),
		BlockSymlinkEscape: true,
	}
}

// PathGuard enforces a PathScope. Construct with NewPathGuard; the guard
// precompiles deny/allow patterns and is safe for concurrent use.
type PathGuard struct {
	scope     PathScope
	workspace string
	temp      string
	deny      []pathPattern
	allow     []pathPattern
}

// NewPathGuard compiles the scope's pattern lists. Roots are normalized
// once so every later comparison sees the same form.
func NewPathGuard(s PathScope) *PathGuard {
	g := &PathGuard{
		scope: s,
		deny:  compilePathPatterns(s.DenyPaths),
		allow: compilePathPatterns(s.AllowPaths),
	}
	if s.WorkspaceRoot != "" {
		g.workspace = normalizePath(s.WorkspaceRoot)
	}
	temp := s.TempRoot
	if temp == "" {
		temp = os.TempDir()
	}
	g.temp = normalizePath(temp)
	return g
}

// Check decides whether target may be touched. The deny-list is
// unconditional; the scope-kind check follows; if symlink-escape blocking
// is on, the resolved real path is re-checked against the scope only,
// never the deny-list again.
func (g *PathGuard) Check(target string) Verdict {
	if target == "" {
		return denied("empty path")
	}
	path := normalizePath(target)

	for _, p := range g.deny {
		if p.match(path) {
			return denied(fmt.Sprintf("path %s is explicitly denied by pattern %q", path, p.raw))
		}
	}

	if v := g.checkScope(path); !v.Allowed {
		return v
	}

	if !g.scope.BlockSymlinkEscape {
		return allowed("within scope")
	}

	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Target does not exist yet (about to be created). The
			// logical path already passed the scope check.
			return allowed("within scope (target does not exist yet)")
		}
		return denied(fmt.Sprintf("cannot resolve %s: %v", path, err))
	}
	if real != path {
		if v := g.checkScope(real); !v.Allowed {
			return denied(fmt.Sprintf("symlink escape detected: %s resolves to %s outside scope", path, real))
		}
	}

	return allowed("within scope")
}

// checkScope applies only the scope-kind containment rules, not the
// deny-list. It is the check re-run against resolved real paths.
func (g *PathGuard) checkScope(path string) Verdict {
	switch g.scope.Kind {
	case ScopeWorkspaceOnly:
		if g.under(path, g.workspace) {
			return allowed("within workspace")
		}
		return denied(fmt.Sprintf("path %s is outside workspace %s", path, g.workspace))
	case ScopeTempOnly:
		if g.under(path, g.temp) {
			return allowed("within temp")
		}
		return denied(fmt.Sprintf("path %s is outside temp %s", path, g.temp))
	case ScopeWorkspaceAndTemp:
		if g.under(path, g.workspace) || g.under(path, g.temp) {
			return allowed("within workspace or temp")
		}
		return denied(fmt.Sprintf("path %s is outside workspace %s and temp %s", path, g.workspace, g.temp))
	case ScopeCustom:
		for _, p := range g.allow {
			if p.match(path) {
				return allowed(fmt.Sprintf("matched allow pattern %q", p.raw))
			}
		}
		return denied(fmt.Sprintf("path %s matches no allow pattern", path))
	default:
		return denied(fmt.Sprintf("unknown path scope kind %q", g.scope.Kind))
	}
}

func (g *PathGuard) under(path, root string) bool {
	if root == "" {
		return false
	}
	return path == root || strings.HasPrefix(path, root+"/")
}

// normalizePath expands a leading ~ and absolutizes without following
// symlinks. Every path entering the guard goes through here so logical
// and pattern comparisons see one canonical form.
func normalizePath(path string) string {
	path = expandHome(path)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Clean(path)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
