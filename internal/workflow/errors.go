package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/wardenhq/warden/internal/policy"
)

// FatalError marks a phase failure that must not consume retry budget:
// malformed configuration, unreadable run storage. Everything else an
// engine returns (agent crash, I/O error, artifact validation failure)
// is presumed transient and retried up to the phase's budget.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as non-retryable. A nil err stays nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// retryable reports whether a phase error should consume a retry
// attempt rather than fail the phase outright. Policy denials, bad
// configuration, context cancellation, and explicit fatal markers are
// never retried; any other failure is.
func retryable(err error) bool {
	var denial *policy.DenialError
	if errors.As(err, &denial) {
		return false
	}
	var confErr *policy.ConfigError
	if errors.As(err, &confErr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fatal *FatalError
	return !errors.As(err, &fatal)
}
