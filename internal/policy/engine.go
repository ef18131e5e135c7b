package policy

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/wardenhq/warden/internal/scope"
)

// WorkflowPolicy is the full declarative policy for a workflow: an
// ordered rule collection plus the filesystem and network scopes, the
// default decision when nothing matches, and the kinds considered
// destructive.
type WorkflowPolicy struct {
	Rules       []Rule             `yaml:"rules"`
	PathScope   scope.PathScope    `yaml:"path_scope"`
	NetScope    scope.NetworkScope `yaml:"network_scope"`
	Default     Decision           `yaml:"default_decision"`
	Destructive []ActionKind       `yaml:"destructive_kinds"`
	LogAll      bool               `yaml:"log_all"`
	LogDenied   bool               `yaml:"log_denied"`
	LogPrompts  bool               `yaml:"log_prompts"`
}

// Result is the outcome of evaluating one action.
type Result struct {
	Decision    Decision
	MatchedRule *Rule
	Reason      string
	ShouldLog   bool
}

// DenialError carries a deny decision across the engine boundary. It is
// not a failure: callers treat it as "this action cannot proceed" and
// must not retry it.
type DenialError struct {
	Context Context
	Reason  string
	RuleID  string
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("policy denied %s: %s", e.Context, e.Reason)
}

// compiledRule holds a rule with its constraint patterns precompiled.
// Compile failures mark the affected constraint so the rule never
// matches, rather than failing open or crashing.
type compiledRule struct {
	rule  *Rule
	paths []*regexp.Regexp
	cmds  []*regexp.Regexp
	urls  []*regexp.Regexp
	bad   bool
}

// Engine combines the guards with the prioritized rule set.
// Construct with NewEngine; safe for concurrent use.
type Engine struct {
	policy   *WorkflowPolicy
	pathG    *scope.PathGuard
	netG     *scope.NetworkGuard
	rules    []compiledRule
	destruct map[ActionKind]bool
}

// NewEngine compiles the policy's rules and guards. Rules are sorted
// descending by priority; the sort is stable so equal priorities keep
// their configured order.
func NewEngine(p *WorkflowPolicy) *Engine {
	e := &Engine{
		policy:   p,
		pathG:    scope.NewPathGuard(p.PathScope),
		netG:     scope.NewNetworkGuard(p.NetScope),
		destruct: make(map[ActionKind]bool, len(p.Destructive)),
	}
	for _, k := range p.Destructive {
		e.destruct[k] = true
	}
	for i := range p.Rules {
		r := &p.Rules[i]
		cr := compiledRule{rule: r}
		for _, pat := range r.PathPatterns {
			re, err := scope.CompileGlob(pat)
			if err != nil {
				cr.bad = true
				break
			}
			cr.paths = append(cr.paths, re)
		}
		for _, pat := range r.CommandPatterns {
			if cr.bad {
				break
			}
			re, err := regexp.Compile(pat)
			if err != nil {
				cr.bad = true
				break
			}
			cr.cmds = append(cr.cmds, re)
		}
		for _, pat := range r.URLPatterns {
			if cr.bad {
				break
			}
			re, err := scope.CompileGlob(pat)
			if err != nil {
				cr.bad = true
				break
			}
			cr.urls = append(cr.urls, re)
		}
		e.rules = append(e.rules, cr)
	}
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].rule.Priority > e.rules[j].rule.Priority
	})
	return e
}

// Evaluate decides one action.
//
// Evaluation order (must not be changed):
//  1. Path guard for filesystem kinds; a guard denial short-circuits
//  2. Network guard for network_request, same short-circuit
//  3. Enabled rules applicable to the kind, highest priority first
//  4. The policy's default decision
func (e *Engine) Evaluate(ctx Context) Result {
	if ctx.Kind.IsFilesystem() && ctx.Path != "" {
		if v := e.pathG.Check(ctx.Path); !v.Allowed {
			return e.result(Deny, nil, v.Reason)
		}
	}
	if ctx.Kind == ActionNetworkRequest && ctx.URL != "" {
		if v := e.netG.Check(ctx.URL); !v.Allowed {
			return e.result(Deny, nil, v.Reason)
		}
	}

	for i := range e.rules {
		cr := &e.rules[i]
		r := cr.rule
		if !r.Enabled || cr.bad || !r.AppliesTo(ctx.Kind) {
			continue
		}
		if !cr.matches(ctx) {
			continue
		}
		reason := r.Reason
		if reason == "" {
			reason = fmt.Sprintf("matched rule %s (%s)", r.ID, r.Name)
		}
		return e.result(r.Decision, r, reason)
	}

	return e.result(e.policy.Default, nil, "no rule matched; default decision")
}

// IsDestructive reports whether the policy classifies the kind as
// destructive.
func (e *Engine) IsDestructive(k ActionKind) bool { return e.destruct[k] }

// matches checks every present constraint list. A present list matches
// when any of its patterns matches the corresponding context field; a
// list whose field is empty on the context makes the rule inapplicable.
func (cr *compiledRule) matches(ctx Context) bool {
	if len(cr.paths) > 0 && !anyMatch(cr.paths, ctx.Path) {
		return false
	}
	if len(cr.cmds) > 0 && !anyMatch(cr.cmds, ctx.Command) {
		return false
	}
	if len(cr.urls) > 0 && !anyMatch(cr.urls, ctx.URL) {
		return false
	}
	return true
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	if s == "" {
		return false
	}
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func (e *Engine) result(d Decision, r *Rule, reason string) Result {
	return Result{
		Decision:    d,
		MatchedRule: r,
		Reason:      reason,
		ShouldLog:   e.shouldLog(d),
	}
}

func (e *Engine) shouldLog(d Decision) bool {
	if e.policy.LogAll {
		return true
	}
	if d == Deny && e.policy.LogDenied {
		return true
	}
	if d == Prompt && e.policy.LogPrompts {
		return true
	}
	return false
}
