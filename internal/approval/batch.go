package approval

import (
	"context"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/risk"
)

// BatchChoice is the single interaction offered for a full batch.
type BatchChoice int

const (
	BatchReview BatchChoice = iota
	BatchApproveAll
	BatchDenyAll
)

// GroupDecider makes one choice for a whole batch of pending requests.
type GroupDecider func(reqs []Request, assessments []risk.Assessment) BatchChoice

// defaultWindow bounds how long an early request waits for the batch to
// fill before falling back to per-request prompting.
const defaultWindow = 500 * time.Millisecond

// BatchSurface accumulates pending requests up to Size and resolves a
// full batch with one grouped interaction ("approve all / deny all /
// review individually"). Batches that don't fill within the window, and
// requests reviewed individually, fall back to the Inner surface.
type BatchSurface struct {
	Inner  Surface
	Size   int
	Window time.Duration
	Decide GroupDecider

	mu           sync.Mutex
	pending      []*batchEntry
	windowActive bool
}

type batchOutcome struct {
	reply    Reply
	fallback bool
}

type batchEntry struct {
	req        Request
	assessment risk.Assessment
	ch         chan batchOutcome
}

// Prompt implements Surface.
func (s *BatchSurface) Prompt(ctx context.Context, req Request, assessment risk.Assessment) (Reply, error) {
	if s.Size <= 1 || s.Decide == nil || s.Inner == nil {
		return s.Inner.Prompt(ctx, req, assessment)
	}

	entry := &batchEntry{req: req, assessment: assessment, ch: make(chan batchOutcome, 1)}

	s.mu.Lock()
	s.pending = append(s.pending, entry)
	if len(s.pending) >= s.Size {
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()
		s.resolveGroup(batch)
	} else {
		if !s.windowActive {
			s.windowActive = true
			go s.flushAfterWindow()
		}
		s.mu.Unlock()
	}

	select {
	case out := <-entry.ch:
		if out.fallback {
			return s.Inner.Prompt(ctx, req, assessment)
		}
		return out.reply, nil
	case <-ctx.Done():
		s.abandon(entry)
		return Reply{}, ctx.Err()
	}
}

// flushAfterWindow resolves whatever accumulated once the window closes.
// A batch still below threshold falls back to per-request prompting.
func (s *BatchSurface) flushAfterWindow() {
	window := s.Window
	if window <= 0 {
		window = defaultWindow
	}
	time.Sleep(window)

	s.mu.Lock()
	s.windowActive = false
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if len(batch) >= s.Size {
		s.resolveGroup(batch)
		return
	}
	for _, e := range batch {
		e.ch <- batchOutcome{fallback: true}
	}
}

func (s *BatchSurface) resolveGroup(batch []*batchEntry) {
	reqs := make([]Request, len(batch))
	assessments := make([]risk.Assessment, len(batch))
	for i, e := range batch {
		reqs[i] = e.req
		assessments[i] = e.assessment
	}

	switch s.Decide(reqs, assessments) {
	case BatchApproveAll:
		for _, e := range batch {
			e.ch <- batchOutcome{reply: Reply{Decision: Approved, Comment: "approved in batch"}}
		}
	case BatchDenyAll:
		for _, e := range batch {
			e.ch <- batchOutcome{reply: Reply{Decision: Denied, Comment: "denied in batch"}}
		}
	default:
		for _, e := range batch {
			e.ch <- batchOutcome{fallback: true}
		}
	}
}

// abandon removes an entry whose caller gave up (timeout or cancel) so a
// later flush doesn't write to a dead channel. The buffered channel makes
// a lost race here harmless.
func (s *BatchSurface) abandon(entry *batchEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.pending {
		if e == entry {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}
