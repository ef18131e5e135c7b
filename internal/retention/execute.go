package retention

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/wardenhq/warden/internal/workflow"
)

// WorkflowStorage is the slice of the run store the retention engine
// needs. *workflow.Store satisfies it.
type WorkflowStorage interface {
	List() ([]workflow.Summary, error)
	DiskUsage(id string) (int64, error)
	RunDir(id string) string
	Delete(id string) error
}

// Options shapes one cleanup invocation.
type Options struct {
	// DryRun selects and reports but mutates nothing.
	DryRun bool
	// Force flags every run matching the filters regardless of
	// retention thresholds. Running and paused runs stay untouchable.
	Force bool
	// Retention overrides the engine's config for this invocation.
	Retention *Config
	// StatusFilter keeps only runs in the listed states.
	StatusFilter []workflow.Status
	// OlderThan keeps only runs created before now minus the duration.
	OlderThan time.Duration
	// MaxDelete caps how many candidates are executed; zero is no cap.
	MaxDelete int
	// ModeOverride forces one mode for every candidate.
	ModeOverride Mode
}

// CandidateReport is the per-candidate execution outcome.
type CandidateReport struct {
	Candidate    Candidate `json:"candidate"`
	Mode         Mode      `json:"mode"`
	FreedBytes   int64     `json:"freed_bytes"`
	DeletedPaths []string  `json:"deleted_paths,omitempty"`
	Skipped      bool      `json:"skipped,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Report is the outcome of one cleanup pass.
type Report struct {
	DryRun     bool              `json:"dry_run"`
	Candidates []CandidateReport `json:"candidates"`
	FreedBytes int64             `json:"freed_bytes"`
	Errors     []string          `json:"errors,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"duration"`
}

// Summary renders a one-paragraph human report. It is produced even
// when every candidate errored.
func (r *Report) Summary() string {
	var b strings.Builder
	verb := "freed"
	if r.DryRun {
		verb = "would free"
	}
	fmt.Fprintf(&b, "%d candidate(s), %s %s", len(r.Candidates), verb, humanize.Bytes(uint64(r.FreedBytes)))
	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, ", %d error(s)", len(r.Errors))
	}
	return b.String()
}

// Engine selects and executes cleanup against one run store.
type Engine struct {
	storage WorkflowStorage
	cfg     Config
}

// NewEngine builds a retention engine over storage.
func NewEngine(storage WorkflowStorage, cfg Config) *Engine {
	return &Engine{storage: storage, cfg: cfg}
}

// Candidates lists what a cleanup with opts would target, applying the
// status, age, and count filters but touching nothing.
func (e *Engine) Candidates(opts Options) ([]Candidate, error) {
	summaries, err := e.storage.List()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	now := time.Now().UTC()
	usages := make([]Usage, 0, len(summaries))
	for _, s := range summaries {
		size, err := e.storage.DiskUsage(s.ID)
		if err != nil {
			size = 0
		}
		usages = append(usages, Usage{Summary: s, Bytes: size})
	}

	cfg := e.cfg
	if opts.Retention != nil {
		cfg = *opts.Retention
	}

	var cands []Candidate
	if opts.Force {
		for _, u := range usages {
			if active(u.Summary.Status) {
				continue
			}
			cands = append(cands, Candidate{
				Workflow:  u.Summary,
				DiskUsage: u.Bytes,
				Reasons: []ReasonDetail{{
					Reason: ReasonForced,
					Detail: "forced by operator",
				}},
			})
		}
	} else {
		cands = FindCandidates(usages, cfg, now)
	}

	cands = filterCandidates(cands, opts, now)
	if opts.MaxDelete > 0 && len(cands) > opts.MaxDelete {
		cands = cands[:opts.MaxDelete]
	}
	return cands, nil
}

func filterCandidates(cands []Candidate, opts Options, now time.Time) []Candidate {
	out := cands[:0]
	for _, c := range cands {
		if len(opts.StatusFilter) > 0 && !statusIn(c.Workflow.Status, opts.StatusFilter) {
			continue
		}
		if opts.OlderThan > 0 && now.Sub(c.Workflow.CreatedAt) < opts.OlderThan {
			continue
		}
		out = append(out, c)
	}
	return out
}

func statusIn(s workflow.Status, list []workflow.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Preview runs selection and mode computation without mutating
// anything. Equivalent to Run with DryRun forced on.
func (e *Engine) Preview(ctx context.Context, opts Options) (*Report, error) {
	opts.DryRun = true
	return e.Run(ctx, opts)
}

// Run executes one cleanup pass. Per-candidate failures are collected
// into the report; only selection failures return an error.
func (e *Engine) Run(ctx context.Context, opts Options) (*Report, error) {
	started := time.Now().UTC()
	cands, err := e.Candidates(opts)
	if err != nil {
		return nil, err
	}

	report := &Report{DryRun: opts.DryRun, StartedAt: started}
	for _, cand := range cands {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, "cleanup interrupted: "+err.Error())
			break
		}
		mode := DetermineMode(cand)
		if opts.ModeOverride != "" {
			mode = opts.ModeOverride
		}
		cr := e.executeOne(cand, mode, opts.DryRun)
		report.Candidates = append(report.Candidates, cr)
		report.FreedBytes += cr.FreedBytes
		if cr.Error != "" {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", cand.Workflow.ID, cr.Error))
		}
	}
	report.Duration = time.Since(started)
	return report, nil
}

// executeOne applies one mode to one run. An already-missing directory
// is a recoverable no-op, never an error.
func (e *Engine) executeOne(cand Candidate, mode Mode, dryRun bool) CandidateReport {
	cr := CandidateReport{Candidate: cand, Mode: mode}
	dir := e.storage.RunDir(cand.Workflow.ID)

	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		cr.Skipped = true
		return cr
	}

	var targets []string
	switch mode {
	case ModeFull:
		targets = []string{dir}
	case ModeArtifacts:
		for _, sub := range []string{"artifacts", "phases", "outputs", "sessions"} {
			targets = append(targets, filepath.Join(dir, sub))
		}
	case ModeLogs:
		matches, err := filepath.Glob(filepath.Join(dir, "events.jsonl*"))
		if err == nil {
			targets = matches
		}
	}

	for _, target := range targets {
		size := treeSize(target)
		if dryRun {
			cr.FreedBytes += size
			cr.DeletedPaths = append(cr.DeletedPaths, target)
			continue
		}
		var err error
		if mode == ModeFull {
			err = e.storage.Delete(cand.Workflow.ID)
		} else {
			err = os.RemoveAll(target)
		}
		if err != nil {
			cr.Error = err.Error()
			continue
		}
		cr.FreedBytes += size
		cr.DeletedPaths = append(cr.DeletedPaths, target)
	}
	return cr
}

// treeSize sums file sizes under path; a missing path contributes zero.
func treeSize(path string) int64 {
	var total int64
	filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
