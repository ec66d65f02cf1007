package configstore

import (
	"context"
	"math/rand"
	"time"
)

// connectRetry holds the exponential-backoff-with-jitter schedule used to
// retry the initial Postgres connection attempt, grounded on the teacher's
// RetryExecutor (internal/database/postgres/retry.go), trimmed to the one
// operation this package needs: a handful of retries around dial time,
// not a general-purpose retry-any-operation executor.
type connectRetry struct {
	maxAttempts   int
	initialDelay  time.Duration
	maxDelay      time.Duration
	backoffFactor float64
	jitterFactor  float64
}

func defaultConnectRetry() connectRetry {
	return connectRetry{
		maxAttempts:   3,
		initialDelay:  200 * time.Millisecond,
		maxDelay:      5 * time.Second,
		backoffFactor: 2.0,
		jitterFactor:  0.1,
	}
}

// run retries attempt until it succeeds, the context is done, or the
// attempt budget is exhausted, backing off between tries.
func (r connectRetry) run(ctx context.Context, attempt func() error) error {
	delay := r.initialDelay
	var lastErr error

	for try := 0; try < r.maxAttempts; try++ {
		lastErr = attempt()
		if lastErr == nil {
			return nil
		}
		if try == r.maxAttempts-1 {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * r.backoffFactor)
		if delay > r.maxDelay {
			delay = r.maxDelay
		}
		if r.jitterFactor > 0 {
			delay += time.Duration(float64(delay) * r.jitterFactor * rand.Float64())
		}
	}

	return lastErr
}
