package approval

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/risk"
)

// Surface presents one approval request and returns the user's reply.
// Implementations must honor ctx cancellation: when the coordinator's
// timer wins the race, the surface's context is cancelled and whatever
// it returns is discarded.
type Surface interface {
	Prompt(ctx context.Context, req Request, assessment risk.Assessment) (Reply, error)
}

// Coordinator resolves prompt decisions into approval records. One
// coordinator is constructed per orchestrator instance; the cache and
// store it holds may be shared across coordinators and are safe for
// concurrent use.
type Coordinator struct {
	surface Surface
	cache   *Cache
	store   *Store
	events  *events.Log

	mu      sync.Mutex
	history map[string][]Record
}

// NewCoordinator builds a coordinator. surface, store, and log may each
// be nil: without a surface, prompts synthesize denials; without a store,
// remembering is cache-only; without a log, no events are emitted.
func NewCoordinator(surface Surface, cache *Cache, store *Store, log *events.Log) *Coordinator {
	if cache == nil {
		cache = NewCache()
	}
	return &Coordinator{
		surface: surface,
		cache:   cache,
		store:   store,
		events:  log,
		history: make(map[string][]Record),
	}
}

// Resolve turns a request into exactly one terminal record. Resolution
// order: remember cache, durable store, synthesized denial when no
// surface is configured, then the interactive race between the surface
// and the request timeout. Every record is appended to the per-run
// history regardless of which path produced it.
func (c *Coordinator) Resolve(ctx context.Context, req Request) Record {
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.Timeout <= 0 {
		req.Timeout = DefaultTimeout
	}
	assessment := risk.Assess(req.Context)
	if req.Reason == "" {
		req.Reason = assessment.Summary
	}
	sig := Signature(req.Context)

	if rec, ok := c.cache.Lookup(sig, req.RunID); ok {
		return c.finish(replay(rec, req))
	}
	if c.store != nil {
		rec, ok, err := c.store.Lookup(sig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warden: approval store lookup: %v\n", err)
		} else if ok {
			c.cache.Put(rec)
			return c.finish(replay(rec, req))
		}
	}

	if c.surface == nil {
		return c.finish(Record{
			Request:   req,
			Decision:  Denied,
			DecidedAt: time.Now().UTC(),
			Comment:   "no prompt handler",
		})
	}

	return c.finish(c.race(ctx, req, assessment))
}

// race runs the prompt and the timeout concurrently. Whichever side wins
// cancels the other: a timer win cancels the surface's context, a reply
// win stops the timer. Caller cancellation during the prompt maps to a
// denial with a distinguishing comment, never to timeout.
func (c *Coordinator) race(ctx context.Context, req Request, assessment risk.Assessment) Record {
	promptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		reply Reply
		err   error
	}
	replyCh := make(chan outcome, 1)
	go func() {
		reply, err := c.surface.Prompt(promptCtx, req, assessment)
		replyCh <- outcome{reply, err}
	}()

	timer := time.NewTimer(req.Timeout)
	defer timer.Stop()

	select {
	case out := <-replyCh:
		if out.err != nil {
			return Record{
				Request:   req,
				Decision:  Denied,
				DecidedAt: time.Now().UTC(),
				Comment:   fmt.Sprintf("prompt aborted: %v", out.err),
			}
		}
		rec := Record{
			Request:       req,
			Decision:      out.reply.Decision,
			DecidedAt:     time.Now().UTC(),
			Comment:       out.reply.Comment,
			Remember:      out.reply.Remember,
			RememberScope: out.reply.RememberScope,
		}
		// Timeout is reserved for the timer; a surface cannot produce it.
		if rec.Decision != Approved && rec.Decision != Denied {
			rec.Decision = Denied
		}
		return rec
	case <-timer.C:
		cancel()
		return Record{
			Request:   req,
			Decision:  Timeout,
			DecidedAt: time.Now().UTC(),
			Comment:   fmt.Sprintf("no decision within %s", req.Timeout),
		}
	case <-ctx.Done():
		cancel()
		return Record{
			Request:   req,
			Decision:  Denied,
			DecidedAt: time.Now().UTC(),
			Comment:   "cancelled by user before deciding",
		}
	}
}

// finish persists and journals a freshly created record.
func (c *Coordinator) finish(rec Record) Record {
	if rec.Remember {
		c.cache.Put(rec)
	}
	if c.store != nil {
		if err := c.store.Put(rec); err != nil {
			fmt.Fprintf(os.Stderr, "warden: approval store write: %v\n", err)
		}
	}

	c.mu.Lock()
	c.history[rec.Request.RunID] = append(c.history[rec.Request.RunID], rec)
	c.mu.Unlock()

	if c.events != nil {
		typ := events.ApprovalDenied
		switch rec.Decision {
		case Approved:
			typ = events.ApprovalApproved
		case Timeout:
			typ = events.ApprovalTimeout
		}
		c.events.Emit(typ, rec.Request.RunID, map[string]any{
			"request_id": rec.Request.ID,
			"action":     rec.Request.Context.String(),
			"reason":     rec.Request.Reason,
			"remember":   rec.Remember,
		})
	}
	return rec
}

// History returns the in-memory record list for a run, in resolution
// order.
func (c *Coordinator) History(runID string) []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.history[runID]))
	copy(out, c.history[runID])
	return out
}

// replay adapts a remembered record to a new triggering request so the
// history entry names the action that was actually checked.
func replay(cached Record, req Request) Record {
	return Record{
		Request:       req,
		Decision:      cached.Decision,
		DecidedAt:     time.Now().UTC(),
		Remember:      false,
		RememberScope: "",
		Comment:       fmt.Sprintf("remembered %s decision (scope %s)", cached.Decision, cached.RememberScope),
	}
}
