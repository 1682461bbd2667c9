package retryx

import (
	"context"
	"errors"
	"time"
)

// Policy bounds a retry loop. Every retried operation in this codebase goes
// through Do with an explicit Policy; nothing retries ad hoc.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Retryable reports whether an error is worth another attempt.
	// A nil Retryable retries everything except permanent errors.
	Retryable func(error) bool
}

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Do runs fn up to p.MaxAttempts times with exponential backoff starting at
// p.BaseDelay. If the context is canceled, it stops immediately and returns
// the context's error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 300 * time.Millisecond
	}
	var last error
	for i := 0; i < p.MaxAttempts; i++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var pErr *PermanentError
		if errors.As(err, &pErr) {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		last = err
		if i == p.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.BaseDelay * time.Duration(1<<i)):
		}
	}
	return last
}
