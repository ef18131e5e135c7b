package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Store persists runs as per-run directories:
//
//	<root>/<run-id>/state.json      run state
//	<root>/<run-id>/events.jsonl    run event log
//	<root>/<run-id>/artifacts/      phase outputs kept after the run
//	<root>/<run-id>/phases/         per-phase scratch state
//	<root>/<run-id>/outputs/        structured phase outputs
//	<root>/<run-id>/sessions/       engine session transcripts
//	<root>/<run-id>/logs/           raw phase logs
type Store struct {
	root string
}

var runSubdirs = []string{"artifacts", "phases", "outputs", "sessions", "logs"}

// NewStore opens (creating if needed) a run store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run store: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the store's base directory.
func (s *Store) Root() string { return s.root }

// RunDir returns the directory holding a run's state and artifacts.
func (s *Store) RunDir(id string) string {
	return filepath.Join(s.root, id)
}

// EventsPath returns the run's event log path.
func (s *Store) EventsPath(id string) string {
	return filepath.Join(s.root, id, "events.jsonl")
}

// SaveRun writes run state atomically, creating the run layout on
// first save.
func (s *Store) SaveRun(run *Run) error {
	dir := s.RunDir(run.ID)
	for _, sub := range runSubdirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("create run dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run state: %w", err)
	}
	target := filepath.Join(dir, "state.json")
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write run state: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit run state: %w", err)
	}
	return nil
}

// LoadRun reads a run's state.
func (s *Store) LoadRun(id string) (*Run, error) {
	data, err := os.ReadFile(filepath.Join(s.RunDir(id), "state.json"))
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", id, err)
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &run, nil
}

// List returns a summary for every run in the store, oldest first.
// Directories without a readable state file are skipped.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var out []Summary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		run, err := s.LoadRun(e.Name())
		if err != nil {
			continue
		}
		out = append(out, Summary{ID: run.ID, Status: run.Status, CreatedAt: run.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DiskUsage walks a run directory and sums file sizes.
func (s *Store) DiskUsage(id string) (int64, error) {
	var total int64
	err := filepath.WalkDir(s.RunDir(id), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return total, fmt.Errorf("disk usage for %s: %w", id, err)
	}
	return total, nil
}

// Delete removes a run directory entirely. Missing runs are a no-op.
func (s *Store) Delete(id string) error {
	if err := os.RemoveAll(s.RunDir(id)); err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	return nil
}
