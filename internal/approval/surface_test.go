package approval

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/risk"
)

func TestConsoleSurfaceApproveAndRemember(t *testing.T) {
	in := strings.NewReader("y\nsession\n")
	var out strings.Builder
	s := &ConsoleSurface{In: in, Out: &out}

	req := testRequest("r1", policy.BashExecute("npm install"), time.Second)
	reply, err := s.Prompt(context.Background(), req, risk.Assess(req.Context))
	if err != nil {
		t.Fatal(err)
	}
	if reply.Decision != Approved {
		t.Errorf("decision = %s, want approved", reply.Decision)
	}
	if !reply.Remember || reply.RememberScope != ScopeSession {
		t.Errorf("remember exchange not honored: %+v", reply)
	}
	if !strings.Contains(out.String(), "risk") {
		t.Error("prompt should present the risk assessment")
	}
}

func TestConsoleSurfaceGarbageIsDeny(t *testing.T) {
	s := &ConsoleSurface{In: strings.NewReader("whatever\n"), Out: &strings.Builder{}}
	req := testRequest("r1", policy.FileWrite("/x"), time.Second)
	reply, err := s.Prompt(context.Background(), req, risk.Assess(req.Context))
	if err != nil {
		t.Fatal(err)
	}
	if reply.Decision != Denied {
		t.Errorf("unrecognized answer should deny, got %s", reply.Decision)
	}
}

func TestFileSurfaceResolution(t *testing.T) {
	dir := t.TempDir()
	s := &FileSurface{Dir: dir, PollInterval: 20 * time.Millisecond}
	req := testRequest("r1", policy.FileDelete("/ws/old"), 5*time.Second)

	// External approver: wait for the pending file, flip its status.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		path := filepath.Join(dir, req.ID+".json")
		for i := 0; i < 200; i++ {
			data, err := os.ReadFile(path)
			if err != nil {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			var pf PendingFile
			if json.Unmarshal(data, &pf) != nil || pf.Status != "pending" {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			pf.Status = "approved"
			pf.Remember = true
			pf.RememberScope = string(ScopeRun)
			if err := writeFileAtomic(path, pf); err == nil {
				return
			}
		}
	}()

	reply, err := s.Prompt(context.Background(), req, risk.Assess(req.Context))
	wg.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if reply.Decision != Approved {
		t.Errorf("decision = %s, want approved", reply.Decision)
	}
	if !reply.Remember || reply.RememberScope != ScopeRun {
		t.Errorf("remember fields lost: %+v", reply)
	}
	if _, err := os.Stat(filepath.Join(dir, req.ID+".json")); !os.IsNotExist(err) {
		t.Error("resolved request file should be consumed")
	}
}

func TestDirWatcherUnwatchableDirFallsBackToNil(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")
	if w := newDirWatcher(dir); w != nil {
		_ = w.Close()
		t.Fatal("expected nil watcher for an unwatchable directory")
	}
}

func TestFileSurfaceAbandonRemovesPending(t *testing.T) {
	dir := t.TempDir()
	s := &FileSurface{Dir: dir, PollInterval: 20 * time.Millisecond}
	req := testRequest("r1", policy.FileWrite("/ws/x"), time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := s.Prompt(ctx, req, risk.Assess(req.Context))
	if err == nil {
		t.Fatal("cancelled prompt should return an error")
	}
	if _, statErr := os.Stat(filepath.Join(dir, req.ID+".json")); !os.IsNotExist(statErr) {
		t.Error("abandoned request file should be removed")
	}
}

func TestBatchSurfaceGroupsAtThreshold(t *testing.T) {
	var decided [][]Request
	s := &BatchSurface{
		Inner: &StaticSurface{Reply: Reply{Decision: Denied}},
		Size:  3,
		Decide: func(reqs []Request, _ []risk.Assessment) BatchChoice {
			decided = append(decided, reqs)
			return BatchApproveAll
		},
	}

	var wg sync.WaitGroup
	replies := make([]Reply, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := testRequest("r1", policy.FileWrite("/ws/f"), 5*time.Second)
			r, err := s.Prompt(context.Background(), req, risk.Assessment{})
			if err != nil {
				t.Errorf("prompt %d: %v", i, err)
				return
			}
			replies[i] = r
		}(i)
	}
	wg.Wait()

	if len(decided) != 1 || len(decided[0]) != 3 {
		t.Fatalf("expected one grouped decision over 3 requests, got %v", decided)
	}
	for i, r := range replies {
		if r.Decision != Approved {
			t.Errorf("reply %d = %s, want approved", i, r.Decision)
		}
	}
}

func TestBatchSurfaceBelowThresholdFallsBack(t *testing.T) {
	groupCalled := false
	s := &BatchSurface{
		Inner:  &StaticSurface{Reply: Reply{Decision: Approved, Comment: "individual"}},
		Size:   5,
		Window: 30 * time.Millisecond,
		Decide: func([]Request, []risk.Assessment) BatchChoice {
			groupCalled = true
			return BatchDenyAll
		},
	}

	req := testRequest("r1", policy.FileWrite("/ws/f"), 5*time.Second)
	reply, err := s.Prompt(context.Background(), req, risk.Assessment{})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Decision != Approved || reply.Comment != "individual" {
		t.Errorf("single request should fall back to inner surface: %+v", reply)
	}
	if groupCalled {
		t.Error("group decider invoked below batch threshold")
	}
}
