package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wardenhq/warden/internal/risk"
)

// pollFallback is the resolution poll interval used alongside fsnotify,
// and alone when the watcher cannot start.
const pollFallback = 2 * time.Second

// FileSurface hands the decision to an external approver through the
// filesystem: each request becomes a pending JSON file in Dir, and the
// approver resolves it by editing status to "approved" or "denied"
// (optionally with remember fields). The surface watches the directory
// with fsnotify and polls as a fallback; the coordinator's timer bounds
// the wait.
type FileSurface struct {
	Dir          string
	PollInterval time.Duration
}

// PendingFile is the on-disk exchange format.
type PendingFile struct {
	ID            string    `json:"id"`
	RunID         string    `json:"run_id"`
	PhaseID       string    `json:"phase_id,omitempty"`
	Kind          string    `json:"kind"`
	Target        string    `json:"target"`
	Reason        string    `json:"reason"`
	RiskScore     int       `json:"risk_score"`
	RiskLevel     string    `json:"risk_level"`
	Status        string    `json:"status"`
	Remember      bool      `json:"remember,omitempty"`
	RememberScope string    `json:"remember_scope,omitempty"`
	Comment       string    `json:"comment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Prompt implements Surface.
func (s *FileSurface) Prompt(ctx context.Context, req Request, assessment risk.Assessment) (Reply, error) {
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return Reply{}, fmt.Errorf("file surface: create directory: %w", err)
	}
	path := filepath.Join(s.Dir, req.ID+".json")

	pf := PendingFile{
		ID:        req.ID,
		RunID:     req.RunID,
		PhaseID:   req.PhaseID,
		Kind:      string(req.Context.Kind),
		Target:    req.Context.Target(),
		Reason:    req.Reason,
		RiskScore: assessment.Score,
		RiskLevel: string(assessment.Level),
		Status:    "pending",
		CreatedAt: req.CreatedAt,
	}
	if err := writeFileAtomic(path, pf); err != nil {
		return Reply{}, fmt.Errorf("file surface: write request: %w", err)
	}

	// Watch failures are not fatal: the poll ticker below covers
	// resolution on its own, just more slowly.
	watcher := newDirWatcher(s.Dir)
	if watcher != nil {
		defer func() { _ = watcher.Close() }()
	}

	interval := s.PollInterval
	if interval <= 0 {
		interval = pollFallback
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var eventCh chan fsnotify.Event
	if watcher != nil {
		eventCh = watcher.Events
	}

	for {
		if reply, resolved, err := s.checkResolution(path); err != nil {
			return Reply{}, err
		} else if resolved {
			return reply, nil
		}

		select {
		case ev := <-eventCh:
			if ev.Name != path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
		case <-ticker.C:
		case <-ctx.Done():
			// Abandoned: the file is removed so a stale pending entry
			// cannot be approved after the fact.
			_ = os.Remove(path)
			return Reply{}, ctx.Err()
		}
	}
}

// newDirWatcher returns a watcher for dir, or nil when inotify is
// unavailable or the directory cannot be watched.
func newDirWatcher(dir string) *fsnotify.Watcher {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil
	}
	return w
}

// checkResolution reads the exchange file and reports whether the
// approver has resolved it. The file is consumed on resolution.
func (s *FileSurface) checkResolution(path string) (Reply, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Removed out from under us: treat as an explicit denial.
			return Reply{Decision: Denied, Comment: "request file removed by approver"}, true, nil
		}
		return Reply{}, false, fmt.Errorf("file surface: read request: %w", err)
	}

	var pf PendingFile
	if err := json.Unmarshal(data, &pf); err != nil {
		// Mid-write or malformed edit; wait for the next event.
		return Reply{}, false, nil
	}

	var decision Decision
	switch pf.Status {
	case "approved":
		decision = Approved
	case "denied":
		decision = Denied
	default:
		return Reply{}, false, nil
	}

	_ = os.Remove(path)
	reply := Reply{
		Decision: decision,
		Comment:  pf.Comment,
	}
	if pf.Remember {
		switch RememberScope(pf.RememberScope) {
		case ScopeRun, ScopeSession, ScopePermanent:
			reply.Remember = true
			reply.RememberScope = RememberScope(pf.RememberScope)
		}
	}
	return reply, true, nil
}

// Pending lists unresolved request files in Dir, oldest first by file
// order.
func (s *FileSurface) Pending() ([]PendingFile, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []PendingFile
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, e.Name()))
		if err != nil {
			continue
		}
		var pf PendingFile
		if err := json.Unmarshal(data, &pf); err != nil {
			continue
		}
		if pf.Status == "pending" {
			out = append(out, pf)
		}
	}
	return out, nil
}

func writeFileAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
