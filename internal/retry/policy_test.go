package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestPolicyDelay(t *testing.T) {
	p := Policy{MaxRetries: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 350 * time.Millisecond, Multiplier: 2}

	require.Equal(t, time.Duration(0), p.Delay(0))
	require.Equal(t, 100*time.Millisecond, p.Delay(1))
	require.Equal(t, 200*time.Millisecond, p.Delay(2))
	require.Equal(t, 350*time.Millisecond, p.Delay(3))
	require.Equal(t, 350*time.Millisecond, p.Delay(10))
}

func TestPolicyAttempts(t *testing.T) {
	require.Equal(t, 3, Policy{MaxRetries: 2}.Attempts())
	require.Equal(t, 1, Policy{MaxRetries: 0}.Attempts())
	require.Equal(t, 1, Policy{MaxRetries: -4}.Attempts())
}

func TestBackOffStopsAfterMaxRetries(t *testing.T) {
	b := Policy{MaxRetries: 2}.BackOff()
	require.Equal(t, time.Duration(0), b.NextBackOff())
	require.Equal(t, time.Duration(0), b.NextBackOff())
	require.Equal(t, backoff.Stop, b.NextBackOff())
	b.Reset()
	require.Equal(t, time.Duration(0), b.NextBackOff())
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), Policy{MaxRetries: 2}, "test", nil, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errFlaky
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{MaxRetries: 2}, "test", nil, func(context.Context) (int, error) {
		calls++
		return 0, errFlaky
	})
	require.ErrorIs(t, err, errFlaky)
	require.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	_, err := Do(context.Background(), Policy{MaxRetries: 5}, "test", func(err error) bool {
		return !errors.Is(err, fatal)
	}, func(context.Context) (int, error) {
		calls++
		return 0, fatal
	})
	require.ErrorIs(t, err, fatal)
	require.Equal(t, 1, calls)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, Policy{MaxRetries: 5, BaseDelay: time.Hour}, "test", nil, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errFlaky
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
