package retention

import (
	"fmt"
	"sort"
	"time"

	"github.com/wardenhq/warden/internal/workflow"
)

// Reason tags why a run was selected for cleanup.
type Reason string

const (
	ReasonAge       Reason = "age_exceeded"
	ReasonArtifact  Reason = "artifact_age_exceeded"
	ReasonCount     Reason = "count_limit"
	ReasonDisk      Reason = "disk_limit"
	ReasonTotalDisk Reason = "total_disk_limit"
	ReasonForced    Reason = "forced"
)

// hard reasons force a full delete regardless of other reasons.
func (r Reason) hard() bool {
	return r == ReasonCount || r == ReasonDisk || r == ReasonTotalDisk || r == ReasonForced
}

// ReasonDetail is one selection reason with its human text and the
// threshold value that triggered it.
type ReasonDetail struct {
	Reason Reason `json:"reason"`
	Detail string `json:"detail"`
	Value  int64  `json:"value"`
}

// Usage pairs a run summary with its measured disk footprint.
type Usage struct {
	Summary workflow.Summary
	Bytes   int64
}

// Candidate is one run flagged for cleanup. Reasons accumulate across
// selection passes before a mode is chosen.
type Candidate struct {
	Workflow  workflow.Summary `json:"workflow"`
	Reasons   []ReasonDetail   `json:"reasons"`
	DiskUsage int64            `json:"disk_usage"`
}

func (c *Candidate) hasReason() bool { return len(c.Reasons) > 0 }

// candidateSet merges passes into one candidate per run id while
// remembering nothing about pass order beyond reason append order.
type candidateSet struct {
	byID map[string]*Candidate
}

func newCandidateSet() *candidateSet {
	return &candidateSet{byID: make(map[string]*Candidate)}
}

func (s *candidateSet) get(id string) *Candidate { return s.byID[id] }

func (s *candidateSet) add(u Usage, d ReasonDetail) {
	c, ok := s.byID[u.Summary.ID]
	if !ok {
		c = &Candidate{Workflow: u.Summary, DiskUsage: u.Bytes}
		s.byID[u.Summary.ID] = c
	}
	c.Reasons = append(c.Reasons, d)
}

// FindCandidates runs the six selection passes over every run and
// merges the results. Running and paused runs are filtered from the
// final list unconditionally; the result is ordered oldest first.
func FindCandidates(usages []Usage, cfg Config, now time.Time) []Candidate {
	set := newCandidateSet()

	ageDays := func(u Usage) int {
		return int(now.Sub(u.Summary.CreatedAt).Hours() / 24)
	}

	// Pass 1: age for runs that ended normally.
	if cfg.LogRetentionDays > 0 {
		for _, u := range usages {
			switch u.Summary.Status {
			case workflow.StatusCompleted, workflow.StatusRunning:
				if d := ageDays(u); d > cfg.LogRetentionDays {
					set.add(u, ReasonDetail{
						Reason: ReasonAge,
						Detail: fmt.Sprintf("run is %d days old (limit %d)", d, cfg.LogRetentionDays),
						Value:  int64(d),
					})
				}
			}
		}
	}

	// Pass 2: age for failed and cancelled runs, on a longer leash.
	if cfg.FailedLogRetentionDays > 0 {
		for _, u := range usages {
			switch u.Summary.Status {
			case workflow.StatusFailed, workflow.StatusCancelled:
				if d := ageDays(u); d > cfg.FailedLogRetentionDays {
					set.add(u, ReasonDetail{
						Reason: ReasonAge,
						Detail: fmt.Sprintf("failed run is %d days old (limit %d)", d, cfg.FailedLogRetentionDays),
						Value:  int64(d),
					})
				}
			}
		}
	}

	// Pass 3: artifact age, but only for runs no earlier pass already
	// flagged, so a stale run is not penalized twice.
	if cfg.ArtifactRetentionDays > 0 {
		for _, u := range usages {
			if c := set.get(u.Summary.ID); c != nil && c.hasReason() {
				continue
			}
			if d := ageDays(u); d > cfg.ArtifactRetentionDays {
				set.add(u, ReasonDetail{
					Reason: ReasonArtifact,
					Detail: fmt.Sprintf("artifacts are %d days old (limit %d)", d, cfg.ArtifactRetentionDays),
					Value:  int64(d),
				})
			}
		}
	}

	// Pass 4: completed-run count cap, keeping the newest N.
	if cfg.MaxCompleted > 0 {
		var completed []Usage
		for _, u := range usages {
			if u.Summary.Status == workflow.StatusCompleted {
				completed = append(completed, u)
			}
		}
		if len(completed) > cfg.MaxCompleted {
			sort.Slice(completed, func(i, j int) bool {
				return completed[i].Summary.CreatedAt.After(completed[j].Summary.CreatedAt)
			})
			for _, u := range completed[cfg.MaxCompleted:] {
				set.add(u, ReasonDetail{
					Reason: ReasonCount,
					Detail: fmt.Sprintf("completed runs exceed limit %d", cfg.MaxCompleted),
					Value:  int64(len(completed)),
				})
			}
		}
	}

	// Pass 5: per-run disk cap.
	if limit := cfg.maxPerWorkflowBytes(); limit > 0 {
		for _, u := range usages {
			if u.Bytes > limit {
				set.add(u, ReasonDetail{
					Reason: ReasonDisk,
					Detail: fmt.Sprintf("run uses %d bytes (limit %d)", u.Bytes, limit),
					Value:  u.Bytes,
				})
			}
		}
	}

	// Pass 6: total disk cap, freeing oldest first until under the
	// limit. Running and paused runs do not count toward the freeing.
	if limit := cfg.maxTotalBytes(); limit > 0 {
		var total int64
		for _, u := range usages {
			total += u.Bytes
		}
		if total > limit {
			ordered := make([]Usage, len(usages))
			copy(ordered, usages)
			sort.Slice(ordered, func(i, j int) bool {
				return ordered[i].Summary.CreatedAt.Before(ordered[j].Summary.CreatedAt)
			})
			for _, u := range ordered {
				if total <= limit {
					break
				}
				if active(u.Summary.Status) {
					continue
				}
				set.add(u, ReasonDetail{
					Reason: ReasonTotalDisk,
					Detail: fmt.Sprintf("total usage %d bytes exceeds limit %d", total, limit),
					Value:  total,
				})
				total -= u.Bytes
			}
		}
	}

	out := make([]Candidate, 0, len(set.byID))
	for _, c := range set.byID {
		if active(c.Workflow.Status) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Workflow.CreatedAt.Before(out[j].Workflow.CreatedAt)
	})
	return out
}

func active(s workflow.Status) bool {
	return s == workflow.StatusRunning || s == workflow.StatusPaused
}
