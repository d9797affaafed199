package dialogue

import (
	"errors"
	"time"

	"github.com/zhouzirui/moodline/backend/internal/retry"
)

// DefaultHistoryWindow is the number of earlier turns included in a reply prompt.
const DefaultHistoryWindow = 4

// Options tunes the tiers shared by every session of an engine.
type Options struct {
	HistoryWindow int
	Retry         retry.Policy
	PortTimeout   time.Duration
	FallbackReply string
}

// DefaultOptions returns the recommended engine settings.
func DefaultOptions() Options {
	return Options{
		HistoryWindow: DefaultHistoryWindow,
		Retry:         retry.DefaultPolicy(),
		PortTimeout:   30 * time.Second,
		FallbackReply: DefaultFallbackReply,
	}
}

// Engine holds the injected ports and the stateless tier components. It
// creates one Orchestrator per session; sessions share no mutable state.
type Engine struct {
	annotator *Annotator
	composer  *Composer
	analyzer  *Analyzer
}

// NewEngine wires the three tiers around the supplied ports.
func NewEngine(sentiment SentimentPort, generation GenerationPort, opts Options) (*Engine, error) {
	if sentiment == nil {
		return nil, errors.New("dialogue: sentiment port must not be nil")
	}
	if generation == nil {
		return nil, errors.New("dialogue: generation port must not be nil")
	}
	if opts.HistoryWindow < 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}

	return &Engine{
		annotator: NewAnnotator(sentiment, opts.PortTimeout),
		composer:  NewComposer(generation, opts.HistoryWindow, opts.Retry, opts.PortTimeout, opts.FallbackReply),
		analyzer:  NewAnalyzer(generation, opts.Retry, opts.PortTimeout),
	}, nil
}

// NewSession starts an Open session with an empty history.
func (e *Engine) NewSession(id string) *Orchestrator {
	return newOrchestrator(id, NewHistory(id), e.annotator, e.composer, e.analyzer)
}
