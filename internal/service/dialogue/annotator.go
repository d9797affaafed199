package dialogue

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
)

// Annotator turns an inbound message into a sentiment-annotated user turn.
type Annotator struct {
	port    SentimentPort
	timeout time.Duration
}

// NewAnnotator wraps a sentiment port. A zero timeout leaves calls unbounded.
func NewAnnotator(port SentimentPort, timeout time.Duration) *Annotator {
	return &Annotator{port: port, timeout: timeout}
}

// Annotate classifies text exactly once. Classifier failures degrade to the
// unknown sentiment; only cancellation of ctx is returned as an error.
func (a *Annotator) Annotate(ctx context.Context, text string) (conversation.Turn, error) {
	result, err := a.classify(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return conversation.Turn{}, ctx.Err()
		}
		log.Printf("[annotator] classification unavailable, continuing with unknown sentiment: %v", err)
		result = conversation.UnknownSentiment
	}

	result = normalizeSentiment(result)
	return conversation.Turn{
		Role:      conversation.RoleUser,
		Text:      text,
		Sentiment: &result,
	}, nil
}

func (a *Annotator) classify(ctx context.Context, text string) (conversation.SentimentResult, error) {
	if a.port == nil {
		return conversation.SentimentResult{}, ErrClassificationUnavailable
	}
	callCtx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()
	return a.port.Classify(callCtx, text)
}

func normalizeSentiment(s conversation.SentimentResult) conversation.SentimentResult {
	s.Label = conversation.Label(strings.ToLower(strings.TrimSpace(string(s.Label))))
	if s.Label == "" || s.Label == conversation.Unknown {
		return conversation.UnknownSentiment
	}
	if s.Score < 0 {
		s.Score = 0
	}
	if s.Score > 1 {
		s.Score = 1
	}
	if s.Compound == 0 {
		switch s.Label {
		case conversation.Positive:
			s.Compound = s.Score
		case conversation.Negative:
			s.Compound = -s.Score
		}
	}
	if s.Compound < -1 {
		s.Compound = -1
	}
	if s.Compound > 1 {
		s.Compound = 1
	}
	return s
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
