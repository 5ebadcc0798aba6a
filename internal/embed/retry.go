package embed

import (
	"context"
	"math/rand"
	"time"

	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
)

const (
	maxRetries    = 3
	backoffBase   = 500 * time.Millisecond
	backoffFactor = 2.0
	jitterFrac    = 0.2
)

// withRetry runs fn up to maxRetries+1 times, backing off exponentially with
// jitter between attempts. Only transient errors are retried.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !apperr.IsRetryable(err) || attempt == maxRetries {
			return err
		}
		if sleepErr := sleepBackoff(ctx, attempt); sleepErr != nil {
			return sleepErr
		}
	}
}

// sleepBackoff waits base * factor^attempt, jittered by ±jitterFrac.
func sleepBackoff(ctx context.Context, attempt int) error {
	d := float64(backoffBase)
	for i := 0; i < attempt; i++ {
		d *= backoffFactor
	}
	jitter := 1 + jitterFrac*(2*rand.Float64()-1)
	d *= jitter

	select {
	case <-time.After(time.Duration(d)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
