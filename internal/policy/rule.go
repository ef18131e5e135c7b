package policy

// Decision is the policy enforcement outcome for one action.
type Decision string

const (
	Allow  Decision = "allow"
	Deny   Decision = "deny"
	Prompt Decision = "prompt"
)

// ParseDecision maps a config string to a Decision, defaulting to Prompt
// for anything unrecognized so a typo fails closed toward a human.
func ParseDecision(s string) Decision {
	switch Decision(s) {
	case Allow, Deny, Prompt:
		return Decision(s)
	}
	return Prompt
}

// Rule is one prioritized policy rule. Rules are read-only configuration:
// loaded once, never mutated during evaluation. A rule applies to a
// context when the context's kind is in Kinds and every present
// constraint list matches; a constraint that fails to compile makes the
// rule inapplicable, never a crash.
type Rule struct {
	ID              string       `yaml:"id"`
	Name            string       `yaml:"name"`
	Kinds           []ActionKind `yaml:"kinds"`
	Decision        Decision     `yaml:"decision"`
	PathPatterns    []string     `yaml:"path_patterns,omitempty"`
	CommandPatterns []string     `yaml:"command_patterns,omitempty"`
	URLPatterns     []string     `yaml:"url_patterns,omitempty"`
	Priority        int          `yaml:"priority"`
	Enabled         bool         `yaml:"enabled"`
	Reason          string       `yaml:"reason,omitempty"`
}

// AppliesTo reports whether the rule's kind set contains k.
func (r *Rule) AppliesTo(k ActionKind) bool {
	for _, kind := range r.Kinds {
		if kind == k {
			return true
		}
	}
	return false
}
