package workflow

import (
	"context"

	"github.com/google/uuid"
	"github.com/wardenhq/warden/internal/approval"
	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/policy"
)

// Gate authorizes individual engine actions against the run's policy,
// routing prompt decisions through the approval coordinator. One gate
// is bound per phase execution so records carry the right run and
// phase ids.
type Gate struct {
	engine    *policy.Engine
	approvals *approval.Coordinator
	events    *events.Log
	runID     string
	phaseID   string
}

// NewGate binds a policy engine and approval coordinator to a run.
// approvals and log may be nil; without a coordinator, prompt decisions
// deny.
func NewGate(engine *policy.Engine, approvals *approval.Coordinator, log *events.Log, runID string) *Gate {
	return &Gate{engine: engine, approvals: approvals, events: log, runID: runID}
}

// forPhase returns a copy of the gate scoped to one phase.
func (g *Gate) forPhase(phaseID string) *Gate {
	c := *g
	c.phaseID = phaseID
	return &c
}

// Authorize evaluates one action. A nil return authorizes it; a
// *policy.DenialError forbids it and the engine must not retry the
// action.
func (g *Gate) Authorize(ctx context.Context, action policy.Context) error {
	result := g.engine.Evaluate(action)

	switch result.Decision {
	case policy.Allow:
		g.emit(events.PolicyAllow, action, result)
		return nil
	case policy.Deny:
		g.emit(events.PolicyDeny, action, result)
		return &policy.DenialError{Context: action, Reason: result.Reason, RuleID: ruleID(result)}
	}

	g.emit(events.PolicyPrompt, action, result)
	if g.approvals == nil {
		return &policy.DenialError{Context: action, Reason: "approval required but no coordinator configured"}
	}
	rec := g.approvals.Resolve(ctx, approval.Request{
		ID:      uuid.NewString(),
		RunID:   g.runID,
		PhaseID: g.phaseID,
		Context: action,
		Reason:  result.Reason,
	})
	if rec.Decision == approval.Approved {
		return nil
	}
	reason := "approval " + string(rec.Decision)
	if rec.Comment != "" {
		reason += ": " + rec.Comment
	}
	return &policy.DenialError{Context: action, Reason: reason, RuleID: ruleID(result)}
}

func (g *Gate) emit(typ string, action policy.Context, result policy.Result) {
	if g.events == nil || !result.ShouldLog {
		return
	}
	g.events.Emit(typ, g.runID, map[string]any{
		"phase":  g.phaseID,
		"action": action.String(),
		"reason": result.Reason,
		"rule":   ruleID(result),
	})
}

func ruleID(r policy.Result) string {
	if r.MatchedRule == nil {
		return ""
	}
	return r.MatchedRule.ID
}
