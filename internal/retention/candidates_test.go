package retention

import (
	"fmt"
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/workflow"
)

func usage(id string, status workflow.Status, ageDays int, bytes int64) Usage {
	return Usage{
		Summary: workflow.Summary{
			ID:        id,
			Status:    status,
			CreatedAt: time.Now().UTC().Add(-time.Duration(ageDays) * 24 * time.Hour),
		},
		Bytes: bytes,
	}
}

func reasonsOf(c Candidate) []Reason {
	out := make([]Reason, len(c.Reasons))
	for i, r := range c.Reasons {
		out[i] = r.Reason
	}
	return out
}

func TestAgePassSplitsByOutcome(t *testing.T) {
	cfg := Config{LogRetentionDays: 30, FailedLogRetentionDays: 90}
	usages := []Usage{
		usage("fresh-ok", workflow.StatusCompleted, 10, 0),
		usage("old-ok", workflow.StatusCompleted, 45, 0),
		usage("old-failed", workflow.StatusFailed, 45, 0),
		usage("ancient-failed", workflow.StatusFailed, 120, 0),
	}

	cands := FindCandidates(usages, cfg, time.Now().UTC())
	got := map[string]bool{}
	for _, c := range cands {
		got[c.Workflow.ID] = true
	}
	if !got["old-ok"] {
		t.Error("45-day completed run not selected at 30-day limit")
	}
	if got["fresh-ok"] {
		t.Error("10-day completed run selected")
	}
	if got["old-failed"] {
		t.Error("45-day failed run selected despite 90-day failed limit")
	}
	if !got["ancient-failed"] {
		t.Error("120-day failed run not selected")
	}
}

func TestArtifactPassSkipsAlreadyFlaggedRuns(t *testing.T) {
	cfg := Config{LogRetentionDays: 30, ArtifactRetentionDays: 14}
	usages := []Usage{
		usage("both-old", workflow.StatusCompleted, 45, 0),  // flagged by age first
		usage("artifacts-only", workflow.StatusCompleted, 20, 0),
	}

	cands := FindCandidates(usages, cfg, time.Now().UTC())
	byID := map[string]Candidate{}
	for _, c := range cands {
		byID[c.Workflow.ID] = c
	}

	both := byID["both-old"]
	if len(both.Reasons) != 1 || both.Reasons[0].Reason != ReasonAge {
		t.Errorf("age-flagged run got reasons %v, artifact pass must not double-penalize", reasonsOf(both))
	}
	art := byID["artifacts-only"]
	if len(art.Reasons) != 1 || art.Reasons[0].Reason != ReasonArtifact {
		t.Errorf("artifact-only run got reasons %v", reasonsOf(art))
	}
}

func TestCountLimitKeepsNewestN(t *testing.T) {
	cfg := Config{MaxCompleted: 50}
	var usages []Usage
	for i := 0; i < 51; i++ {
		usages = append(usages, usage(fmt.Sprintf("run-%02d", i), workflow.StatusCompleted, i, 0))
	}

	cands := FindCandidates(usages, cfg, time.Now().UTC())
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want exactly 1", len(cands))
	}
	if cands[0].Workflow.ID != "run-50" {
		t.Errorf("selected %s, want the oldest run-50", cands[0].Workflow.ID)
	}
	if cands[0].Reasons[0].Reason != ReasonCount {
		t.Errorf("reason = %s", cands[0].Reasons[0].Reason)
	}
}

func TestPerRunDiskLimit(t *testing.T) {
	cfg := Config{MaxDiskPerWorkflowMB: 1}
	usages := []Usage{
		usage("small", workflow.StatusCompleted, 1, 512*1024),
		usage("big", workflow.StatusCompleted, 1, 2*1024*1024),
	}

	cands := FindCandidates(usages, cfg, time.Now().UTC())
	if len(cands) != 1 || cands[0].Workflow.ID != "big" {
		t.Fatalf("candidates = %+v", cands)
	}
	if cands[0].Reasons[0].Reason != ReasonDisk {
		t.Errorf("reason = %s", cands[0].Reasons[0].Reason)
	}
}

func TestTotalDiskLimitFreesOldestFirst(t *testing.T) {
	gb := int64(1024 * 1024 * 1024)
	cfg := Config{MaxTotalDiskGB: 1}
	usages := []Usage{
		usage("newest", workflow.StatusCompleted, 1, gb/2),
		usage("middle", workflow.StatusCompleted, 10, gb/2),
		usage("oldest", workflow.StatusCompleted, 20, gb/2),
	}

	// Total is 1.5 GB; dropping the oldest run brings it to 1 GB.
	cands := FindCandidates(usages, cfg, time.Now().UTC())
	if len(cands) != 1 || cands[0].Workflow.ID != "oldest" {
		t.Fatalf("candidates = %+v", cands)
	}
	if cands[0].Reasons[0].Reason != ReasonTotalDisk {
		t.Errorf("reason = %s", cands[0].Reasons[0].Reason)
	}
}

func TestTotalDiskLimitSkipsActiveRuns(t *testing.T) {
	gb := int64(1024 * 1024 * 1024)
	cfg := Config{MaxTotalDiskGB: 1}
	usages := []Usage{
		usage("oldest-running", workflow.StatusRunning, 20, gb),
		usage("completed", workflow.StatusCompleted, 10, gb),
	}

	cands := FindCandidates(usages, cfg, time.Now().UTC())
	if len(cands) != 1 || cands[0].Workflow.ID != "completed" {
		t.Fatalf("candidates = %+v", cands)
	}
}

func TestActiveRunsNeverDeletable(t *testing.T) {
	cfg := Config{LogRetentionDays: 1, MaxDiskPerWorkflowMB: 1}
	usages := []Usage{
		usage("running", workflow.StatusRunning, 400, 100*1024*1024),
		usage("paused", workflow.StatusPaused, 400, 100*1024*1024),
	}

	if cands := FindCandidates(usages, cfg, time.Now().UTC()); len(cands) != 0 {
		t.Errorf("active runs selected: %+v", cands)
	}
}

func TestZeroThresholdDisablesPass(t *testing.T) {
	usages := []Usage{
		usage("ancient", workflow.StatusCompleted, 10000, 1<<40),
	}
	if cands := FindCandidates(usages, Config{}, time.Now().UTC()); len(cands) != 0 {
		t.Errorf("zero config selected %+v", cands)
	}
}

func TestCandidatesOrderedOldestFirst(t *testing.T) {
	cfg := Config{LogRetentionDays: 1}
	usages := []Usage{
		usage("newer", workflow.StatusCompleted, 10, 0),
		usage("older", workflow.StatusCompleted, 20, 0),
	}

	cands := FindCandidates(usages, cfg, time.Now().UTC())
	if len(cands) != 2 || cands[0].Workflow.ID != "older" {
		t.Errorf("order = %+v", cands)
	}
}

func TestDetermineMode(t *testing.T) {
	mk := func(reasons ...Reason) Candidate {
		c := Candidate{}
		for _, r := range reasons {
			c.Reasons = append(c.Reasons, ReasonDetail{Reason: r})
		}
		return c
	}
	tests := []struct {
		name string
		cand Candidate
		want Mode
	}{
		{"artifact only", mk(ReasonArtifact), ModeArtifacts},
		{"age only", mk(ReasonAge), ModeLogs},
		{"count forces full", mk(ReasonCount), ModeFull},
		{"disk forces full", mk(ReasonDisk), ModeFull},
		{"total disk forces full", mk(ReasonTotalDisk), ModeFull},
		{"artifact plus age escalates", mk(ReasonArtifact, ReasonAge), ModeFull},
		{"age plus hard stays full", mk(ReasonAge, ReasonDisk), ModeFull},
		{"two age reasons escalate", mk(ReasonAge, ReasonAge), ModeFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineMode(tt.cand); got != tt.want {
				t.Errorf("mode = %s, want %s", got, tt.want)
			}
		})
	}
}
