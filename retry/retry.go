// Package retry implements bounded retries with exponential backoff for
// transient failures against external APIs.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Action tells Do how to react to an error.
type Action int

const (
	// Stop aborts immediately: the error is permanent.
	Stop Action = iota
	// Retry backs off and tries again.
	Retry
)

// Policy parameterizes a retry loop.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	// OnRetry, if set, is called before each backoff sleep.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

// Classify maps an error to an Action.
type Classify func(err error) Action

// PermanentError wraps an error classified as Stop.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Do runs op until it succeeds, fails permanently, exhausts attempts, or ctx
// is cancelled. Backoff doubles between attempts.
func Do(ctx context.Context, p Policy, classify Classify, op func() error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = time.Second
	}
	backoff := p.InitialBackoff

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if classify != nil && classify(err) == Stop {
			return &PermanentError{Err: err}
		}
		if attempt == p.MaxAttempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return fmt.Errorf("cancelled during retry: %w", ctx.Err())
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, err)
}
