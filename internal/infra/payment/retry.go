package payment

import (
	"context"
	"time"
)

// RetryPolicy runs an operation up to MaxAttempts times with a fixed Delay
// between attempts. Only errors the predicate classifies as retriable trigger
// another attempt; anything else is returned immediately.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func NewRetryPolicy(maxAttempts int, delay time.Duration) RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if delay < 0 {
		delay = 0
	}
	return RetryPolicy{MaxAttempts: maxAttempts, Delay: delay}
}

// Do invokes fn until it succeeds, returns a non-retriable error, the attempt
// budget is exhausted, or ctx is cancelled. The last error seen is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error, retriable func(error) bool) error {
	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = fn(ctx)
		if last == nil || !retriable(last) {
			return last
		}
		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay):
		}
	}
	return last
}
