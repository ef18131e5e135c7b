package retention

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/workflow"
)

func seedRun(t *testing.T, store *workflow.Store, id string, status workflow.Status, age time.Duration) {
	t.Helper()
	run := &workflow.Run{
		ID:        id,
		Status:    status,
		CreatedAt: time.Now().UTC().Add(-age),
		UpdatedAt: time.Now().UTC(),
	}
	if err := store.SaveRun(run); err != nil {
		t.Fatal(err)
	}
	dir := store.RunDir(id)
	files := map[string]string{
		"events.jsonl":               `{"type":"workflow:started"}` + "\n",
		"events.jsonl.1":             `{"type":"phase:started"}` + "\n",
		"artifacts/report.md":        "# report\n",
		"outputs/plan.json":          "{}\n",
		"sessions/transcript.txt":    "hello\n",
		"logs/phase-implement.log":   "building\n",
	}
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCleanupEmptyStore(t *testing.T) {
	store, err := workflow.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	engine := NewEngine(store, DefaultConfig())

	report, err := engine.Run(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Candidates) != 0 || len(report.Errors) != 0 {
		t.Errorf("empty store: %d candidates, %d errors", len(report.Candidates), len(report.Errors))
	}
}

func TestFullCleanupRemovesRunDirectory(t *testing.T) {
	store, err := workflow.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	seedRun(t, store, "stale", workflow.StatusCompleted, 60*24*time.Hour)
	seedRun(t, store, "fresh", workflow.StatusCompleted, time.Hour)

	engine := NewEngine(store, Config{LogRetentionDays: 30})
	report, err := engine.Run(context.Background(), Options{ModeOverride: ModeFull})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Candidates) != 1 {
		t.Fatalf("candidates = %d", len(report.Candidates))
	}
	if report.FreedBytes == 0 {
		t.Error("no bytes freed")
	}
	if _, err := os.Stat(store.RunDir("stale")); !os.IsNotExist(err) {
		t.Error("stale run dir still present")
	}
	if _, err := os.Stat(store.RunDir("fresh")); err != nil {
		t.Errorf("fresh run dir touched: %v", err)
	}
}

func TestLogsModeKeepsEverythingElse(t *testing.T) {
	store, err := workflow.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	seedRun(t, store, "stale", workflow.StatusCompleted, 60*24*time.Hour)

	engine := NewEngine(store, Config{LogRetentionDays: 30})
	report, err := engine.Run(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Candidates) != 1 || report.Candidates[0].Mode != ModeLogs {
		t.Fatalf("report = %+v", report.Candidates)
	}

	dir := store.RunDir("stale")
	for _, gone := range []string{"events.jsonl", "events.jsonl.1"} {
		if _, err := os.Stat(filepath.Join(dir, gone)); !os.IsNotExist(err) {
			t.Errorf("%s still present", gone)
		}
	}
	for _, kept := range []string{"state.json", "artifacts/report.md", "logs/phase-implement.log"} {
		if _, err := os.Stat(filepath.Join(dir, kept)); err != nil {
			t.Errorf("%s removed by logs mode: %v", kept, err)
		}
	}
}

func TestArtifactsModeKeepsStateAndEvents(t *testing.T) {
	store, err := workflow.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	seedRun(t, store, "stale", workflow.StatusCompleted, 20*24*time.Hour)

	// Only the artifact pass is enabled, so the single reason maps to
	// artifacts mode.
	engine := NewEngine(store, Config{ArtifactRetentionDays: 14})
	report, err := engine.Run(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Candidates) != 1 || report.Candidates[0].Mode != ModeArtifacts {
		t.Fatalf("report = %+v", report.Candidates)
	}

	dir := store.RunDir("stale")
	for _, gone := range []string{"artifacts", "outputs", "sessions", "phases"} {
		if _, err := os.Stat(filepath.Join(dir, gone)); !os.IsNotExist(err) {
			t.Errorf("%s still present", gone)
		}
	}
	for _, kept := range []string{"state.json", "events.jsonl", "logs"} {
		if _, err := os.Stat(filepath.Join(dir, kept)); err != nil {
			t.Errorf("%s removed by artifacts mode: %v", kept, err)
		}
	}
}

func TestDryRunMutatesNothing(t *testing.T) {
	store, err := workflow.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	seedRun(t, store, "stale", workflow.StatusCompleted, 60*24*time.Hour)

	engine := NewEngine(store, Config{LogRetentionDays: 30})
	report, err := engine.Preview(context.Background(), Options{ModeOverride: ModeFull})
	if err != nil {
		t.Fatal(err)
	}
	if !report.DryRun {
		t.Error("preview not marked dry-run")
	}
	if len(report.Candidates) != 1 || report.FreedBytes == 0 {
		t.Errorf("dry run should report would-be deletions: %+v", report)
	}
	if _, err := os.Stat(filepath.Join(store.RunDir("stale"), "events.jsonl")); err != nil {
		t.Errorf("dry run mutated the store: %v", err)
	}
}

func TestMissingRunDirIsRecoverableNoOp(t *testing.T) {
	store, err := workflow.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	seedRun(t, store, "stale", workflow.StatusCompleted, 60*24*time.Hour)

	engine := NewEngine(store, Config{LogRetentionDays: 30})
	cands, err := engine.Candidates(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 {
		t.Fatalf("candidates = %d", len(cands))
	}
	// Simulate a concurrent delete between selection and execution.
	if err := os.RemoveAll(store.RunDir("stale")); err != nil {
		t.Fatal(err)
	}
	cr := engine.executeOne(cands[0], ModeFull, false)
	if !cr.Skipped || cr.Error != "" {
		t.Errorf("report = %+v, want skipped with no error", cr)
	}
}

// failingStorage wraps a store, failing Delete for one run id.
type failingStorage struct {
	*workflow.Store
	failID string
}

func (f *failingStorage) Delete(id string) error {
	if id == f.failID {
		return errors.New("device busy")
	}
	return f.Store.Delete(id)
}

func TestOneFailingCandidateDoesNotBlockTheRest(t *testing.T) {
	store, err := workflow.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	seedRun(t, store, "bad", workflow.StatusCompleted, 60*24*time.Hour)
	seedRun(t, store, "good", workflow.StatusCompleted, 60*24*time.Hour)

	engine := NewEngine(&failingStorage{Store: store, failID: "bad"}, Config{LogRetentionDays: 30})
	report, err := engine.Run(context.Background(), Options{ModeOverride: ModeFull})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Candidates) != 2 {
		t.Fatalf("candidates = %d", len(report.Candidates))
	}
	if len(report.Errors) != 1 || !strings.Contains(report.Errors[0], "bad") {
		t.Errorf("errors = %v", report.Errors)
	}
	if _, err := os.Stat(store.RunDir("good")); !os.IsNotExist(err) {
		t.Error("good run not cleaned despite sibling failure")
	}
	if !strings.Contains(report.Summary(), "1 error(s)") {
		t.Errorf("summary = %q", report.Summary())
	}
}

func TestOptionsFilters(t *testing.T) {
	store, err := workflow.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	seedRun(t, store, "old-completed", workflow.StatusCompleted, 60*24*time.Hour)
	seedRun(t, store, "old-failed", workflow.StatusFailed, 120*24*time.Hour)
	seedRun(t, store, "recent", workflow.StatusCompleted, 35*24*time.Hour)

	engine := NewEngine(store, Config{LogRetentionDays: 30, FailedLogRetentionDays: 90})

	cands, err := engine.Candidates(Options{StatusFilter: []workflow.Status{workflow.StatusFailed}})
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 || cands[0].Workflow.ID != "old-failed" {
		t.Errorf("status filter: %+v", cands)
	}

	cands, err = engine.Candidates(Options{OlderThan: 50 * 24 * time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range cands {
		if c.Workflow.ID == "recent" {
			t.Error("age filter kept a 35-day run against a 50-day floor")
		}
	}

	cands, err = engine.Candidates(Options{MaxDelete: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 {
		t.Errorf("max delete cap: got %d", len(cands))
	}
}

func TestForceFlagsEverythingExceptActive(t *testing.T) {
	store, err := workflow.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	seedRun(t, store, "fresh", workflow.StatusCompleted, time.Hour)
	seedRun(t, store, "running", workflow.StatusRunning, time.Hour)

	engine := NewEngine(store, DefaultConfig())
	cands, err := engine.Candidates(Options{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 || cands[0].Workflow.ID != "fresh" {
		t.Fatalf("force candidates = %+v", cands)
	}
	if DetermineMode(cands[0]) != ModeFull {
		t.Error("forced candidate not full mode")
	}
}
