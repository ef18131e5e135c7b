package approval

import (
	"context"
	"time"

	"github.com/wardenhq/warden/internal/risk"
)

// StaticSurface returns a fixed reply after an optional delay. Used for
// automation and for tests that need a deterministic prompt outcome; a
// delay longer than the request timeout exercises the timer side of the
// race.
type StaticSurface struct {
	Reply Reply
	Delay time.Duration
}

// Prompt implements Surface.
func (s *StaticSurface) Prompt(ctx context.Context, _ Request, _ risk.Assessment) (Reply, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Reply{}, ctx.Err()
		}
	}
	return s.Reply, nil
}
