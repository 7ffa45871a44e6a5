// Package retry wraps individual network call sites with a bounded
// exponential backoff. Each call site retries independently so a slow RPC
// endpoint never stalls unrelated probes.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultAttempts = 2
	defaultInitial  = 500 * time.Millisecond
)

// Policy bounds the retry behavior for a single call site. The zero value is
// usable and falls back to the defaults (two attempts, 500ms then 1s).
type Policy struct {
	Attempts uint64
	Initial  time.Duration
}

// Default returns the policy applied to verification network calls.
func Default() Policy {
	return Policy{Attempts: defaultAttempts, Initial: defaultInitial}
}

// Do runs op until it succeeds, the attempt budget is exhausted, or ctx is
// done. The last error from op is returned; a cancelled context surfaces as
// ctx.Err so callers can distinguish deadline expiry from call failure.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = defaultAttempts
	}
	initial := p.Initial
	if initial <= 0 {
		initial = defaultInitial
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = initial * 8
	bo.MaxElapsedTime = 0

	wrapped := backoff.WithMaxRetries(backoff.WithContext(bo, ctx), attempts-1)
	if err := backoff.Retry(op, wrapped); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}
