package retention

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/wardenhq/warden/internal/events"
)

// ErrCleanupInFlight is returned when a cleanup pass is triggered while
// another is still running. At most one pass runs at a time
// process-wide; overlapping passes could delete directories another
// pass is mid-walk on.
var ErrCleanupInFlight = errors.New("cleanup already in flight")

// Scheduler periodically drives the retention engine.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	opts     Options
	events   *events.Log
	inFlight atomic.Bool
}

// NewScheduler wraps engine with a periodic trigger. log may be nil.
func NewScheduler(engine *Engine, interval time.Duration, opts Options, log *events.Log) *Scheduler {
	return &Scheduler{engine: engine, interval: interval, opts: opts, events: log}
}

// RunOnce executes a single cleanup pass, rejecting overlap.
func (s *Scheduler) RunOnce(ctx context.Context) (*Report, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrCleanupInFlight
	}
	defer s.inFlight.Store(false)

	s.emit(events.CleanupStart, nil)
	report, err := s.engine.Run(ctx, s.opts)
	if err != nil {
		s.emit(events.CleanupError, map[string]any{"error": err.Error()})
		return nil, err
	}
	// Per-candidate errors ride on the completion event; cleanup:error
	// is reserved for a pass that could not run at all.
	fields := map[string]any{
		"candidates":  len(report.Candidates),
		"freed_bytes": report.FreedBytes,
		"dry_run":     report.DryRun,
	}
	if len(report.Errors) > 0 {
		fields["errors"] = len(report.Errors)
	}
	s.emit(events.CleanupComplete, fields)
	return report, nil
}

// Start blocks, running a pass every interval until ctx is cancelled.
// Interval must be positive.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			// RunOnce already emits cleanup:error on pass failure.
			_, _ = s.RunOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) emit(typ string, fields map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Emit(typ, "", fields)
}
