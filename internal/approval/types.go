// Package approval turns policy "prompt" decisions into terminal
// approved/denied/timeout records, racing a pluggable prompt surface
// against the request's timeout.
package approval

import (
	"net/url"
	"strings"
	"time"

	"github.com/wardenhq/warden/internal/policy"
)

// Decision is the terminal outcome of an approval request. Timeout and
// denied are ordinary values, never errors.
type Decision string

const (
	Approved Decision = "approved"
	Denied   Decision = "denied"
	Timeout  Decision = "timeout"
)

// RememberScope controls how long an approval decision is cached.
type RememberScope string

const (
	ScopeRun       RememberScope = "run"
	ScopeSession   RememberScope = "session"
	ScopePermanent RememberScope = "permanent"
)

// DefaultTimeout bounds requests that do not set their own.
const DefaultTimeout = 2 * time.Minute

// Request is one pending approval.
type Request struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	PhaseID   string         `json:"phase_id"`
	Context   policy.Context `json:"context"`
	Reason    string         `json:"reason"`
	CreatedAt time.Time      `json:"created_at"`
	Timeout   time.Duration  `json:"timeout"`
}

// Record is the immutable outcome of a request.
type Record struct {
	Request       Request       `json:"request"`
	Decision      Decision      `json:"decision"`
	DecidedAt     time.Time     `json:"decided_at"`
	Remember      bool          `json:"remember"`
	RememberScope RememberScope `json:"remember_scope,omitempty"`
	Comment       string        `json:"comment,omitempty"`
}

// Reply is what a prompt surface returns for one request.
type Reply struct {
	Decision      Decision
	Remember      bool
	RememberScope RememberScope
	Comment       string
}

// Signature normalizes a context into the cache key for "remember"
// matching: kind plus path for filesystem actions, kind plus the command's
// leading program for shell actions, kind plus URL origin for network
// actions.
func Signature(ctx policy.Context) string {
	switch ctx.Kind {
	case policy.ActionBashExecute:
		return string(ctx.Kind) + ":" + commandPrefix(ctx.Command)
	case policy.ActionNetworkRequest:
		return string(ctx.Kind) + ":" + urlOrigin(ctx.URL)
	case policy.ActionAgentSpawn:
		return string(ctx.Kind) + ":" + ctx.Agent
	default:
		return string(ctx.Kind) + ":" + ctx.Path
	}
}

func commandPrefix(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func urlOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}
