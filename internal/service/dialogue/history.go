package dialogue

import (
	"fmt"
	"sync"
	"time"

	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
)

// History is the append-only, alternating record of one session.
type History struct {
	mu        sync.RWMutex
	sessionID string
	turns     []conversation.Turn
	frozen    bool
	now       func() time.Time
}

// NewHistory creates an empty history for a session.
func NewHistory(sessionID string) *History {
	return &History{
		sessionID: sessionID,
		turns:     make([]conversation.Turn, 0, 16),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SessionID returns the owning session identifier.
func (h *History) SessionID() string {
	return h.sessionID
}

// Append validates ordering and stores the turn, returning it with its
// index and timestamp assigned.
func (h *History) Append(turn conversation.Turn) (conversation.Turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.frozen {
		return conversation.Turn{}, fmt.Errorf("%w: history of session %s is closed", ErrInvalidSequence, h.sessionID)
	}

	var prev *conversation.Turn
	if n := len(h.turns); n > 0 {
		prev = &h.turns[n-1]
	}

	switch turn.Role {
	case conversation.RoleUser:
		if prev != nil && prev.Role == conversation.RoleUser {
			return conversation.Turn{}, fmt.Errorf("%w: user turn %d has no reply yet", ErrInvalidSequence, prev.Index)
		}
	case conversation.RoleAssistant:
		if prev == nil || prev.Role != conversation.RoleUser {
			return conversation.Turn{}, fmt.Errorf("%w: assistant turn must follow a user turn", ErrInvalidSequence)
		}
	default:
		return conversation.Turn{}, fmt.Errorf("%w: unknown role %q", ErrInvalidSequence, turn.Role)
	}

	turn.Index = len(h.turns)
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = h.now()
	}
	turn = cloneTurn(turn)
	h.turns = append(h.turns, turn)
	return cloneTurn(turn), nil
}

// Snapshot returns a copy of all turns in insertion order.
func (h *History) Snapshot() []conversation.Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]conversation.Turn, len(h.turns))
	for i, t := range h.turns {
		out[i] = cloneTurn(t)
	}
	return out
}

// Len returns the number of stored turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// LatestUserTurn returns the most recent user turn, replied or not.
func (h *History) LatestUserTurn() (conversation.Turn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for i := len(h.turns) - 1; i >= 0; i-- {
		if h.turns[i].Role == conversation.RoleUser {
			return cloneTurn(h.turns[i]), true
		}
	}
	return conversation.Turn{}, false
}

// Pending returns the last turn when it is a user turn still awaiting a reply.
func (h *History) Pending() (conversation.Turn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n := len(h.turns); n > 0 && h.turns[n-1].Role == conversation.RoleUser {
		return cloneTurn(h.turns[n-1]), true
	}
	return conversation.Turn{}, false
}

// Freeze makes the history read-only.
func (h *History) Freeze() {
	h.mu.Lock()
	h.frozen = true
	h.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (h *History) Frozen() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.frozen
}

func cloneTurn(t conversation.Turn) conversation.Turn {
	if t.Sentiment != nil {
		s := *t.Sentiment
		t.Sentiment = &s
	}
	return t
}
