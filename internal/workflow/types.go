// Package workflow drives multi-phase agent runs: phase execution,
// retry and iteration bookkeeping, and per-action policy gating. The
// phase business logic and the transition-graph evaluation live behind
// the Engine and PhaseResolver interfaces.
package workflow

import (
	"context"
	"time"

	"github.com/wardenhq/warden/internal/policy"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// PhaseStatus is the outcome of one phase execution attempt.
type PhaseStatus string

const (
	PhaseRunning   PhaseStatus = "running"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
	PhaseDenied    PhaseStatus = "denied"
)

// PhaseExecution is one attempt at a phase. Entries are appended to the
// run history and never edited: supersession (re-planning) is a new
// entry with a higher iteration.
type PhaseExecution struct {
	PhaseID   string        `json:"phase_id"`
	Iteration int           `json:"iteration"`
	Status    PhaseStatus   `json:"status"`
	Artifacts []string      `json:"artifacts,omitempty"`
	Duration  time.Duration `json:"duration"`
	LogPath   string        `json:"log_path,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
}

// Run is the durable state of one workflow run. It is owned exclusively
// by its orchestrator and mutated only through orchestrator methods.
type Run struct {
	ID           string           `json:"id"`
	Definition   string           `json:"definition"`
	Status       Status           `json:"status"`
	CurrentPhase string           `json:"current_phase,omitempty"`
	History      []PhaseExecution `json:"history"`
	Iteration    int              `json:"iteration"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// Summary is the listing shape consumed by the retention engine.
type Summary struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// PhaseResult is what the engine produced for a completed phase.
type PhaseResult struct {
	Artifacts []string
	Duration  time.Duration
	LogPath   string
	Output    map[string]any
}

// TransitionRule inspects a completed phase's output and may redirect
// control to an earlier phase id.
type TransitionRule func(result *PhaseResult) (redirectTo string, redirect bool)

// PhaseDefinition is the per-phase retry and transition configuration.
type PhaseDefinition struct {
	ID         string
	MaxRetries int
	Transition TransitionRule
}

// Definition describes a workflow. MaxIterations caps total phase
// execution attempts across the run, which bounds redirect loops; zero
// means unlimited.
type Definition struct {
	Type          string
	Phases        []PhaseDefinition
	MaxIterations int
}

// Phase returns the definition for a phase id.
func (d *Definition) Phase(id string) (PhaseDefinition, bool) {
	for _, p := range d.Phases {
		if p.ID == id {
			return p, true
		}
	}
	return PhaseDefinition{}, false
}

// ActionGate is the per-action policy check the engine calls before
// touching the filesystem, network, or shell. A nil return authorizes
// the action; a *policy.DenialError forbids it and must not be retried.
type ActionGate interface {
	Authorize(ctx context.Context, action policy.Context) error
}

// Engine executes one phase of agent work. Implementations route every
// side-effecting action through the gate.
type Engine interface {
	ExecutePhase(ctx context.Context, run *Run, phase PhaseDefinition, gate ActionGate) (*PhaseResult, error)
}

// PhaseResolver produces the next runnable phase ids for a run, in
// order. An empty slice means the workflow is complete. The dependency
// graph evaluation behind it is external.
type PhaseResolver interface {
	Next(def *Definition, run *Run) ([]string, error)
}
