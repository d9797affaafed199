// Package retry holds the bounded retry policy applied to remote port calls.
package retry

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy describes how often and how patiently a failing call is retried.
// MaxRetries counts retries after the first attempt.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultPolicy returns two retries with exponential backoff from 500ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2,
	}
}

// Attempts is the total number of calls the policy allows.
func (p Policy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Delay returns the wait before the given retry (1-based).
func (p Policy) Delay(retry int) time.Duration {
	if retry < 1 || p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(retry-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// BackOff adapts the policy to the backoff package.
func (p Policy) BackOff() backoff.BackOff {
	return &policyBackOff{policy: p}
}

type policyBackOff struct {
	policy Policy
	retry  int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.retry++
	if b.retry > b.policy.MaxRetries {
		return backoff.Stop
	}
	return b.policy.Delay(b.retry)
}

func (b *policyBackOff) Reset() {
	b.retry = 0
}

// Do runs op until it succeeds, returns an error retryable rejects, the
// policy is exhausted, or ctx is done. The last error is returned as is.
func Do[T any](ctx context.Context, p Policy, name string, retryable func(error) bool, op func(context.Context) (T, error)) (T, error) {
	attempt := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil || (retryable != nil && !retryable(err)) {
			return out, backoff.Permanent(err)
		}
		return out, err
	},
		backoff.WithBackOff(p.BackOff()),
		backoff.WithMaxTries(uint(p.Attempts())),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Printf("[retry] %s attempt %d failed, retrying in %s: %v", name, attempt, next, err)
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return res, err
	}
	return res, nil
}
