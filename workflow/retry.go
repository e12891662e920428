package workflow

import (
	"context"
	"time"
)

// RetryPolicy bounds a flaky external lookup: each attempt gets its own timeout,
// attempts are separated by Backoff(attempt).
type RetryPolicy struct {
	Attempts int
	Timeout  time.Duration
	Backoff  func(attempt int) time.Duration
}

func DefaultLookupBackoff(attempt int) time.Duration {
	d := 200 * time.Millisecond << uint(attempt-1)
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}

// Do runs fn until it succeeds, attempts run out, or ctx is done. It returns the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = p.once(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt == attempts {
			break
		}
		if p.Backoff != nil {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(p.Backoff(attempt)):
			}
		}
	}
	return err
}

func (p RetryPolicy) once(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(callCtx)
}
