package sentiment

import (
	"context"

	analysis "github.com/zhouzirui/moodline/backend/internal/analysis/sentiment"
	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
)

// Lexicon classifies text with the local keyword scorer. It never fails.
type Lexicon struct{}

// NewLexicon returns the default classifier.
func NewLexicon() *Lexicon {
	return &Lexicon{}
}

// Classify scores text deterministically.
func (l *Lexicon) Classify(ctx context.Context, text string) (conversation.SentimentResult, error) {
	if err := ctx.Err(); err != nil {
		return conversation.SentimentResult{}, err
	}
	return analysis.Analyze(text), nil
}
