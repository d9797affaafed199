package dialogue

import (
	"context"
	"sync"

	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
	"github.com/zhouzirui/moodline/backend/internal/retry"
)

type fakeSentiment struct {
	mu     sync.Mutex
	result conversation.SentimentResult
	err    error
	calls  int
}

func (f *fakeSentiment) Classify(_ context.Context, _ string) (conversation.SentimentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

type generation struct {
	text string
	err  error
}

// fakeGeneration replays scripted responses; the last one repeats.
type fakeGeneration struct {
	mu        sync.Mutex
	responses []generation
	prompts   []string
	block     chan struct{}
	started   int
}

func (f *fakeGeneration) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.started++
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if len(f.responses) == 0 {
		return "", ErrGenerationUnavailable
	}
	idx := len(f.prompts) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx].text, f.responses[idx].err
}

func (f *fakeGeneration) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// attempts counts every call, including those that never got past block.
func (f *fakeGeneration) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakeGeneration) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func testOptions() Options {
	return Options{
		HistoryWindow: 3,
		Retry:         retry.Policy{MaxRetries: 2},
	}
}

func negative(score float64) conversation.SentimentResult {
	return conversation.SentimentResult{Label: conversation.Negative, Score: score, Compound: -score}
}
