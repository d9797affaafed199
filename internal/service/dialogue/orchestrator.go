package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
)

// State is the lifecycle position of a session.
type State string

const (
	StateOpen    State = "open"
	StateClosing State = "closing"
	StateClosed  State = "closed"
)

// MessageOption customizes a single HandleMessage call.
type MessageOption func(*messageOptions)

type messageOptions struct {
	onAnnotated func(conversation.Turn)
}

// WithAnnotated registers a callback invoked once the user turn is annotated
// and appended, before the reply is generated.
func WithAnnotated(fn func(conversation.Turn)) MessageOption {
	return func(o *messageOptions) {
		o.onAnnotated = fn
	}
}

// Orchestrator drives one session: per-turn annotate/append/compose/append,
// then a single analysis on close. Calls into one session are serialized.
type Orchestrator struct {
	id        string
	history   *History
	annotator *Annotator
	composer  *Composer
	analyzer  *Analyzer

	// slot admits one HandleMessage/Close at a time and respects cancellation
	// while waiting.
	slot chan struct{}

	mu           sync.RWMutex
	state        State
	report       *conversation.DiagnosticReport
	createdAt    time.Time
	lastActivity time.Time
}

func newOrchestrator(id string, history *History, annotator *Annotator, composer *Composer, analyzer *Analyzer) *Orchestrator {
	now := time.Now().UTC()
	return &Orchestrator{
		id:           id,
		history:      history,
		annotator:    annotator,
		composer:     composer,
		analyzer:     analyzer,
		slot:         make(chan struct{}, 1),
		state:        StateOpen,
		createdAt:    now,
		lastActivity: now,
	}
}

// ID returns the session identifier.
func (o *Orchestrator) ID() string {
	return o.id
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// CreatedAt returns when the session was started.
func (o *Orchestrator) CreatedAt() time.Time {
	return o.createdAt
}

// LastActivity returns when the session last completed a call.
func (o *Orchestrator) LastActivity() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastActivity
}

// Len returns the number of turns without copying the history.
func (o *Orchestrator) Len() int {
	return o.history.Len()
}

// Snapshot returns a copy of the session history.
func (o *Orchestrator) Snapshot() []conversation.Turn {
	return o.history.Snapshot()
}

// Report returns the diagnostic report once the session is closed.
func (o *Orchestrator) Report() (conversation.DiagnosticReport, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.report == nil {
		return conversation.DiagnosticReport{}, false
	}
	return *o.report, true
}

// HandleMessage processes one user message and returns the annotated user
// turn with its reply. When the previous reply failed, sending the same text
// again retries that reply instead of appending a new turn.
func (o *Orchestrator) HandleMessage(ctx context.Context, text string, opts ...MessageOption) (conversation.Exchange, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return conversation.Exchange{}, ErrEmptyMessage
	}

	var options messageOptions
	for _, opt := range opts {
		opt(&options)
	}

	if err := o.acquire(ctx); err != nil {
		return conversation.Exchange{}, err
	}
	defer o.release()

	if o.State() != StateOpen {
		return conversation.Exchange{}, ErrSessionClosed
	}

	userTurn, pending := o.history.Pending()
	if pending {
		if userTurn.Text != text {
			return conversation.Exchange{}, fmt.Errorf("%w: turn %d", ErrReplyPending, userTurn.Index)
		}
		log.Printf("[orchestrator] session=%s retrying reply for turn %d", o.id, userTurn.Index)
	} else {
		annotated, err := o.annotator.Annotate(ctx, text)
		if err != nil {
			return conversation.Exchange{}, err
		}
		userTurn, err = o.history.Append(annotated)
		if err != nil {
			return conversation.Exchange{}, fmt.Errorf("append user turn: %w", err)
		}
		o.touch()
	}

	if options.onAnnotated != nil {
		options.onAnnotated(userTurn)
	}

	reply, err := o.composer.Compose(ctx, o.history)
	if err != nil {
		return conversation.Exchange{UserTurn: userTurn}, err
	}

	assistantTurn, err := o.history.Append(reply)
	if err != nil {
		return conversation.Exchange{UserTurn: userTurn}, fmt.Errorf("append assistant turn: %w", err)
	}
	o.touch()

	sentiment := userTurn.SentimentOrUnknown()
	log.Printf("[orchestrator] session=%s turn=%d sentiment=%s(%.3f) reply_len=%d degraded=%t",
		o.id, userTurn.Index, sentiment.Label, sentiment.Score, len(assistantTurn.Text), assistantTurn.Degraded)

	return conversation.Exchange{UserTurn: userTurn, AssistantTurn: assistantTurn}, nil
}

// Close runs the session analysis and moves the session to Closed. A
// malformed report still closes the session and is returned alongside the
// error; an unavailable analysis or cancellation leaves the session Open.
func (o *Orchestrator) Close(ctx context.Context) (conversation.DiagnosticReport, error) {
	if err := o.acquire(ctx); err != nil {
		return conversation.DiagnosticReport{}, err
	}
	defer o.release()

	return o.close(ctx)
}

// CloseIfIdle closes the session only if it is still Open and has had no
// activity since cutoff once it holds the session slot. closed is false when
// the session was skipped.
func (o *Orchestrator) CloseIfIdle(ctx context.Context, cutoff time.Time) (report conversation.DiagnosticReport, closed bool, err error) {
	if err := o.acquire(ctx); err != nil {
		return conversation.DiagnosticReport{}, false, err
	}
	defer o.release()

	o.mu.RLock()
	idle := o.state == StateOpen && o.lastActivity.Before(cutoff)
	o.mu.RUnlock()
	if !idle {
		return conversation.DiagnosticReport{}, false, nil
	}

	report, err = o.close(ctx)
	if err != nil && !errors.Is(err, ErrReportMalformed) {
		return conversation.DiagnosticReport{}, false, err
	}
	return report, true, err
}

// close must be called with the slot held.
func (o *Orchestrator) close(ctx context.Context) (conversation.DiagnosticReport, error) {
	o.mu.Lock()
	if o.state != StateOpen {
		o.mu.Unlock()
		return conversation.DiagnosticReport{}, ErrSessionClosed
	}
	o.state = StateClosing
	o.mu.Unlock()

	report, err := o.analyzer.Analyze(ctx, o.history)
	if err != nil && !errors.Is(err, ErrReportMalformed) {
		o.setState(StateOpen)
		return conversation.DiagnosticReport{}, err
	}

	o.history.Freeze()

	o.mu.Lock()
	o.report = &report
	o.state = StateClosed
	o.lastActivity = time.Now().UTC()
	o.mu.Unlock()

	log.Printf("[orchestrator] session=%s closed, turns=%d degraded=%t", o.id, o.history.Len(), report.Degraded)
	return report, err
}

func (o *Orchestrator) acquire(ctx context.Context) error {
	select {
	case o.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) release() {
	<-o.slot
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) touch() {
	o.mu.Lock()
	o.lastActivity = time.Now().UTC()
	o.mu.Unlock()
}
