// Package risk scores requested actions deterministically. This is NOT
// anomaly detection: it is cumulative scoring based on action semantics,
// so the same context always produces the same assessment.
package risk

import (
	"strings"

	"github.com/wardenhq/warden/internal/policy"
)

// Level buckets a score into a severity band.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Recommendation is the assessor's suggested handling.
type Recommendation string

const (
	RecommendApprove Recommendation = "approve"
	RecommendDeny    Recommendation = "deny"
)

// Factor is one named, scored contributor to the computed risk.
type Factor struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Score       int    `json:"score"`
}

// Assessment is the full risk picture for one action.
type Assessment struct {
	Score          int            `json:"score"`
	Level          Level          `json:"level"`
	Factors        []Factor       `json:"factors"`
	Recommendation Recommendation `json:"recommendation"`
	Summary        string         `json:"summary"`
}

// Assess computes the risk of a policy context. Pure and stateless:
// contributions from the factor table are summed, clamped to [0,100],
// and mapped to a level.
func Assess(ctx policy.Context) Assessment {
	var factors []Factor
	for _, d := range detectors {
		if f, hit := d(ctx); hit {
			factors = append(factors, f)
		}
	}

	score := 0
	for _, f := range factors {
		score += f.Score
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	level := levelFor(score)
	rec := RecommendApprove
	if level == LevelHigh || level == LevelCritical {
		rec = RecommendDeny
	}

	return Assessment{
		Score:          score,
		Level:          level,
		Factors:        factors,
		Recommendation: rec,
		Summary:        summarize(ctx, factors),
	}
}

func levelFor(score int) Level {
	switch {
	case score < 25:
		return LevelLow
	case score < 50:
		return LevelMedium
	case score < 80:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// summarize builds the one-line description used as the approval reason
// when the caller supplies none: the top factors in detection order.
func summarize(ctx policy.Context, factors []Factor) string {
	if len(factors) == 0 {
		return "no notable risk factors for " + string(ctx.Kind)
	}
	names := make([]string, 0, 3)
	for i, f := range factors {
		if i == 3 {
			break
		}
		names = append(names, f.Name)
	}
	return strings.Join(names, "; ")
}
