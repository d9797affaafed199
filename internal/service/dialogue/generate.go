package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zhouzirui/moodline/backend/internal/retry"
)

// generate calls the port under the retry policy. Every failure that is not a
// content policy rejection or a cancellation of ctx counts as unavailable and
// is retried.
func generate(ctx context.Context, port GenerationPort, policy retry.Policy, timeout time.Duration, name, prompt string) (string, error) {
	if port == nil {
		return "", fmt.Errorf("%w: no generation backend configured", ErrGenerationUnavailable)
	}

	return retry.Do(ctx, policy, name, isRetryable, func(ctx context.Context) (string, error) {
		callCtx, cancel := withTimeout(ctx, timeout)
		defer cancel()

		out, err := port.Generate(callCtx, prompt)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return "", ctx.Err()
			case errors.Is(err, ErrGenerationRejected), errors.Is(err, ErrGenerationUnavailable):
				return "", err
			case callCtx.Err() != nil:
				return "", fmt.Errorf("%w: port timeout after %s", ErrGenerationUnavailable, timeout)
			default:
				return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
			}
		}

		out = strings.TrimSpace(out)
		if out == "" {
			return "", fmt.Errorf("%w: empty completion", ErrGenerationUnavailable)
		}
		return out, nil
	})
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrGenerationUnavailable)
}
