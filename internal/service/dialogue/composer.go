package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
	"github.com/zhouzirui/moodline/backend/internal/retry"
)

// Composer produces the tier-2 empathetic reply for the latest user turn.
type Composer struct {
	port     GenerationPort
	window   int
	policy   retry.Policy
	timeout  time.Duration
	fallback string
}

// NewComposer builds a composer. window bounds how many earlier turns are
// included for continuity.
func NewComposer(port GenerationPort, window int, policy retry.Policy, timeout time.Duration, fallback string) *Composer {
	if window < 0 {
		window = 0
	}
	if fallback == "" {
		fallback = DefaultFallbackReply
	}
	return &Composer{
		port:     port,
		window:   window,
		policy:   policy,
		timeout:  timeout,
		fallback: fallback,
	}
}

// Compose generates the assistant turn replying to the latest user turn.
// A rejected prompt yields the fallback reply marked degraded; exhausted
// retries yield ErrResponseUnavailable.
func (c *Composer) Compose(ctx context.Context, history *History) (conversation.Turn, error) {
	latest, ok := history.LatestUserTurn()
	if !ok {
		return conversation.Turn{}, ErrNoPendingTurn
	}

	prompt := buildReplyPrompt(latest, c.recentBefore(history.Snapshot(), latest.Index))

	reply, err := generate(ctx, c.port, c.policy, c.timeout, "reply", prompt)
	switch {
	case err == nil:
		return conversation.Turn{Role: conversation.RoleAssistant, Text: reply}, nil
	case ctx.Err() != nil:
		return conversation.Turn{}, ctx.Err()
	case errors.Is(err, ErrGenerationRejected):
		log.Printf("[composer] session=%s turn=%d reply rejected, sending fallback: %v", history.SessionID(), latest.Index, err)
		return conversation.Turn{Role: conversation.RoleAssistant, Text: c.fallback, Degraded: true}, nil
	default:
		log.Printf("[composer] session=%s turn=%d reply unavailable after %d attempts: %v", history.SessionID(), latest.Index, c.policy.Attempts(), err)
		return conversation.Turn{}, fmt.Errorf("%w: %w", ErrResponseUnavailable, err)
	}
}

func (c *Composer) recentBefore(turns []conversation.Turn, index int) []conversation.Turn {
	if index > len(turns) {
		index = len(turns)
	}
	start := index - c.window
	if start < 0 {
		start = 0
	}
	return turns[start:index]
}
