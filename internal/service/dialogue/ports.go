package dialogue

import (
	"context"

	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
)

// SentimentPort classifies a span of text. Implementations should be free of
// side effects and return ErrClassificationUnavailable when the model cannot answer.
type SentimentPort interface {
	Classify(ctx context.Context, text string) (conversation.SentimentResult, error)
}

// GenerationPort completes a prompt. Implementations return ErrGenerationRejected
// for content policy blocks and ErrGenerationUnavailable for everything else.
type GenerationPort interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SentimentFunc adapts a plain function to SentimentPort.
type SentimentFunc func(ctx context.Context, text string) (conversation.SentimentResult, error)

func (f SentimentFunc) Classify(ctx context.Context, text string) (conversation.SentimentResult, error) {
	return f(ctx, text)
}

// GenerationFunc adapts a plain function to GenerationPort.
type GenerationFunc func(ctx context.Context, prompt string) (string, error)

func (f GenerationFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
