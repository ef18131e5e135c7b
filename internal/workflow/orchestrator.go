package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/policy"
)

// Orchestrator drives one run through its phases: it asks the resolver
// what runs next, executes phases through the engine with the action
// gate attached, applies retry budgets and transition redirects, and
// persists state after every phase attempt.
type Orchestrator struct {
	def      *Definition
	store    *Store
	engine   Engine
	resolver PhaseResolver
	gate     *Gate
	events   *events.Log

	mu         sync.Mutex
	run        *Run
	paused     bool
	resumeCh   chan struct{}
	cancelled  bool
	forcedNext string
}

// NewOrchestrator creates a run in pending state and persists it.
func NewOrchestrator(def *Definition, store *Store, engine Engine, resolver PhaseResolver, gate *Gate, log *events.Log) (*Orchestrator, error) {
	now := time.Now().UTC()
	run := &Run{
		ID:         uuid.NewString(),
		Definition: def.Type,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if gate != nil {
		gate.runID = run.ID
	}
	o := &Orchestrator{
		def:      def,
		store:    store,
		engine:   engine,
		resolver: resolver,
		gate:     gate,
		events:   log,
	}
	o.run = run
	if err := store.SaveRun(run); err != nil {
		return nil, err
	}
	return o, nil
}

// Resume rebuilds an orchestrator around a persisted run. The run picks
// up from its current phase on the next Start.
func Resume(def *Definition, store *Store, engine Engine, resolver PhaseResolver, gate *Gate, log *events.Log, runID string) (*Orchestrator, error) {
	run, err := store.LoadRun(runID)
	if err != nil {
		return nil, err
	}
	switch run.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return nil, fmt.Errorf("run %s already %s", runID, run.Status)
	}
	if gate != nil {
		gate.runID = run.ID
	}
	o := &Orchestrator{
		def:      def,
		store:    store,
		engine:   engine,
		resolver: resolver,
		gate:     gate,
		events:   log,
	}
	run.Status = StatusPending
	o.run = run
	return o, nil
}

// Run returns a snapshot of the current run state.
func (o *Orchestrator) Run() Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := *o.run
	snap.History = make([]PhaseExecution, len(o.run.History))
	copy(snap.History, o.run.History)
	return snap
}

// Pause requests a pause at the next phase boundary. Phases in flight
// finish first.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.paused || o.run.Status != StatusRunning {
		return
	}
	o.paused = true
	o.resumeCh = make(chan struct{})
	o.emit(events.WorkflowPaused, nil)
}

// Unpause lets a paused run continue.
func (o *Orchestrator) Unpause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.paused {
		return
	}
	o.paused = false
	close(o.resumeCh)
	o.resumeCh = nil
	o.emit(events.WorkflowResumed, nil)
}

// Cancel stops the run at the next phase boundary.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancelled {
		return
	}
	o.cancelled = true
	if o.paused {
		o.paused = false
		close(o.resumeCh)
		o.resumeCh = nil
	}
}

// Start executes the run to a terminal state. It returns nil on
// completion and cancellation; a run failure returns the error that
// exhausted the failing phase.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.run.Status != StatusPending {
		o.mu.Unlock()
		return fmt.Errorf("run %s is %s, not pending", o.run.ID, o.run.Status)
	}
	o.run.Status = StatusRunning
	o.mu.Unlock()
	o.save()
	o.emit(events.WorkflowStarted, map[string]any{"definition": o.def.Type})

	for {
		if stop, err := o.checkpoint(ctx); stop {
			return err
		}

		phaseIDs, err := o.nextPhases()
		if err != nil {
			return o.fail(fmt.Errorf("resolve next phase: %w", err))
		}
		if len(phaseIDs) == 0 {
			return o.complete()
		}

		for _, id := range phaseIDs {
			if stop, err := o.checkpoint(ctx); stop {
				return err
			}
			def, ok := o.def.Phase(id)
			if !ok {
				return o.fail(fmt.Errorf("unknown phase %q", id))
			}
			redirect, err := o.runPhase(ctx, def)
			if err != nil {
				return o.fail(err)
			}
			if redirect != "" {
				o.mu.Lock()
				o.forcedNext = redirect
				o.mu.Unlock()
				break
			}
		}
	}
}

// checkpoint handles pause and cancellation between phases. It returns
// stop=true when the loop must exit.
func (o *Orchestrator) checkpoint(ctx context.Context) (bool, error) {
	for {
		o.mu.Lock()
		if o.cancelled {
			o.run.Status = StatusCancelled
			now := time.Now().UTC()
			o.run.CompletedAt = &now
			o.mu.Unlock()
			o.save()
			o.emit(events.WorkflowCancelled, nil)
			return true, nil
		}
		if !o.paused {
			o.mu.Unlock()
			return false, nil
		}
		o.run.Status = StatusPaused
		ch := o.resumeCh
		o.mu.Unlock()
		o.save()

		select {
		case <-ch:
			o.mu.Lock()
			o.run.Status = StatusRunning
			o.mu.Unlock()
			o.save()
		case <-ctx.Done():
			o.mu.Lock()
			o.cancelled = true
			o.mu.Unlock()
		}
	}
}

// nextPhases consults the forced redirect first, then the resolver.
func (o *Orchestrator) nextPhases() ([]string, error) {
	o.mu.Lock()
	forced := o.forcedNext
	o.forcedNext = ""
	snap := *o.run
	o.mu.Unlock()
	if forced != "" {
		return []string{forced}, nil
	}
	return o.resolver.Next(o.def, &snap)
}

// runPhase executes one phase with its retry budget. It returns a
// redirect target when the phase's transition rule fires, and an error
// only when the phase is exhausted. Every attempt, including retries
// and redirected re-executions, advances the run's iteration counter.
func (o *Orchestrator) runPhase(ctx context.Context, def PhaseDefinition) (string, error) {
	o.mu.Lock()
	o.run.CurrentPhase = def.ID
	o.mu.Unlock()
	o.save()

	var lastErr error
	for attempt := 0; attempt <= def.MaxRetries; attempt++ {
		o.mu.Lock()
		o.run.Iteration++
		iteration := o.run.Iteration
		o.mu.Unlock()
		if o.def.MaxIterations > 0 && iteration > o.def.MaxIterations {
			return "", fmt.Errorf("iteration limit %d reached at phase %s", o.def.MaxIterations, def.ID)
		}

		o.emit(events.PhaseStarted, map[string]any{"phase": def.ID, "iteration": iteration})
		started := time.Now().UTC()

		var gate ActionGate
		if o.gate != nil {
			gate = o.gate.forPhase(def.ID)
		}
		result, err := o.engine.ExecutePhase(ctx, o.Snapshot(), def, gate)
		exec := PhaseExecution{
			PhaseID:   def.ID,
			Iteration: iteration,
			Duration:  time.Since(started),
			StartedAt: started,
		}

		if err == nil {
			exec.Status = PhaseCompleted
			if result != nil {
				exec.Artifacts = result.Artifacts
				exec.LogPath = result.LogPath
				if result.Duration > 0 {
					exec.Duration = result.Duration
				}
			}
			o.append(exec)
			o.emit(events.PhaseCompleted, map[string]any{"phase": def.ID})
			if def.Transition != nil {
				if to, ok := def.Transition(result); ok {
					return to, nil
				}
			}
			return "", nil
		}

		exec.Error = err.Error()
		var denial *policy.DenialError
		if errors.As(err, &denial) {
			exec.Status = PhaseDenied
			o.append(exec)
			o.emit(events.PhaseFailed, map[string]any{"phase": def.ID, "error": err.Error(), "denied": true})
			return "", err
		}
		exec.Status = PhaseFailed
		o.append(exec)
		o.emit(events.PhaseFailed, map[string]any{"phase": def.ID, "error": err.Error(), "attempt": attempt})
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return "", fmt.Errorf("phase %s exhausted: %w", def.ID, lastErr)
}

// Snapshot returns a pointer to a copy of the run, safe to hand to the
// engine.
func (o *Orchestrator) Snapshot() *Run {
	snap := o.Run()
	return &snap
}

func (o *Orchestrator) append(exec PhaseExecution) {
	o.mu.Lock()
	o.run.History = append(o.run.History, exec)
	o.run.UpdatedAt = time.Now().UTC()
	o.mu.Unlock()
	o.save()
}

func (o *Orchestrator) complete() error {
	o.mu.Lock()
	o.run.Status = StatusCompleted
	o.run.CurrentPhase = ""
	now := time.Now().UTC()
	o.run.CompletedAt = &now
	o.mu.Unlock()
	o.save()
	o.emit(events.WorkflowCompleted, nil)
	return nil
}

func (o *Orchestrator) fail(err error) error {
	o.mu.Lock()
	o.run.Status = StatusFailed
	now := time.Now().UTC()
	o.run.CompletedAt = &now
	o.mu.Unlock()
	o.save()
	o.emit(events.WorkflowFailed, map[string]any{"error": err.Error()})
	return err
}

func (o *Orchestrator) save() {
	o.mu.Lock()
	snap := *o.run
	o.mu.Unlock()
	if err := o.store.SaveRun(&snap); err != nil {
		fmt.Fprintf(os.Stderr, "warden: persist run %s: %v\n", snap.ID, err)
	}
}

func (o *Orchestrator) emit(typ string, fields map[string]any) {
	if o.events == nil {
		return
	}
	o.events.Emit(typ, o.run.ID, fields)
}

// SequentialResolver runs a definition's phases in declared order,
// continuing after the most recently completed phase. After a redirect
// the redirected-to phase becomes the most recent completion, so the
// run proceeds from there rather than repeating the whole chain.
type SequentialResolver struct{}

func (SequentialResolver) Next(def *Definition, run *Run) ([]string, error) {
	last := -1
	for i := len(run.History) - 1; i >= 0; i-- {
		if run.History[i].Status == PhaseCompleted {
			for j, p := range def.Phases {
				if p.ID == run.History[i].PhaseID {
					last = j
				}
			}
			break
		}
	}
	if last+1 >= len(def.Phases) {
		return nil, nil
	}
	return []string{def.Phases[last+1].ID}, nil
}
