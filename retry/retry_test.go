package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoRecoversAfterTransientFailure(t *testing.T) {
	t.Parallel()

	calls := 0
	policy := Policy{Attempts: 2, Initial: time.Millisecond}
	err := policy.Do(context.Background(), func() error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestDoExhaustsAttemptBudget(t *testing.T) {
	t.Parallel()

	calls := 0
	failure := errors.New("rpc unavailable")
	policy := Policy{Attempts: 3, Initial: time.Millisecond}
	err := policy.Do(context.Background(), func() error {
		calls++
		return failure
	})
	require.ErrorIs(t, err, failure)
	require.Equal(t, 3, calls)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{Attempts: 5, Initial: time.Hour}
	err := policy.Do(ctx, func() error {
		cancel()
		return errors.New("always fails")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestZeroValueUsesDefaults(t *testing.T) {
	t.Parallel()

	var policy Policy
	err := policy.Do(context.Background(), func() error { return nil })
	require.NoError(t, err)
}
