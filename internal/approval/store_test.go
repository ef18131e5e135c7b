package approval

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/policy"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "approvals.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func record(runID string, ctx policy.Context, d Decision, scope RememberScope) Record {
	remember := scope != ""
	return Record{
		Request: Request{
			// Two records in one run can share a kind, so derive the
			// primary key from the full signature as well.
			ID:        "req-" + runID + "-" + Signature(ctx),
			RunID:     runID,
			Context:   ctx,
			CreatedAt: time.Now().UTC(),
		},
		Decision:      d,
		DecidedAt:     time.Now().UTC(),
		Remember:      remember,
		RememberScope: scope,
	}
}

func TestStorePutAndHistory(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put(record("r1", policy.BashExecute("ls"), Approved, "")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(record("r1", policy.FileWrite("/x"), Denied, "")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(record("r2", policy.FileWrite("/y"), Timeout, "")); err != nil {
		t.Fatal(err)
	}

	hist, err := s.History("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 {
		t.Fatalf("history len = %d, want 2", len(hist))
	}
	if hist[0].Decision != Approved || hist[1].Decision != Denied {
		t.Errorf("history out of order: %+v", hist)
	}
}

func TestStoreLookupMatchesOnlyPermanent(t *testing.T) {
	s := openTestStore(t)

	runScoped := record("r1", policy.BashExecute("npm install"), Approved, ScopeRun)
	if err := s.Put(runScoped); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.Lookup(Signature(runScoped.Request.Context)); err != nil || ok {
		t.Fatalf("run-scoped record matched durable lookup (ok=%v err=%v)", ok, err)
	}

	perm := record("r1", policy.BashExecute("git push"), Approved, ScopePermanent)
	if err := s.Put(perm); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Lookup(Signature(perm.Request.Context))
	if err != nil || !ok {
		t.Fatalf("permanent record not found (ok=%v err=%v)", ok, err)
	}
	if got.Decision != Approved || got.RememberScope != ScopePermanent {
		t.Errorf("lookup returned %+v", got)
	}
}

func TestCoordinatorUsesDurableStore(t *testing.T) {
	s := openTestStore(t)

	// First coordinator remembers permanently.
	c1 := NewCoordinator(&StaticSurface{Reply: Reply{
		Decision: Approved, Remember: true, RememberScope: ScopePermanent,
	}}, nil, s, nil)
	c1.Resolve(context.Background(), testRequest("r1", policy.BashExecute("terraform apply"), time.Second))

	// A fresh coordinator with a fresh cache (new "session") must find
	// the durable record without prompting.
	c2 := NewCoordinator(&StaticSurface{Reply: Reply{Decision: Denied}}, NewCache(), s, nil)
	rec := c2.Resolve(context.Background(), testRequest("r5", policy.BashExecute("terraform plan"), time.Second))
	if rec.Decision != Approved {
		t.Fatalf("durable remembered decision not honored: %s", rec.Decision)
	}
}
