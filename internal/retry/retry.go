// Package retry wraps network calls in exponential backoff, parameterized
// by a predicate that classifies an error as retryable.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures the backoff schedule.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultPolicy mirrors the schedule used for transcription calls.
var DefaultPolicy = Policy{
	InitialInterval: time.Second,
	MaxInterval:     time.Minute,
	MaxElapsedTime:  15 * time.Minute,
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// policy's elapsed-time budget runs out. retryable classifies errors; when
// it returns false the error is surfaced immediately.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = p.MaxElapsedTime

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}
