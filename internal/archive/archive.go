// Package archive persists closed sessions: their transcript and report.
package archive

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
)

// ErrNotFound is returned when no archive exists for a session.
var ErrNotFound = errors.New("archive: session not found")

// Record is the archived form of a closed session.
type Record struct {
	SessionID string                        `json:"sessionId"`
	Turns     []conversation.Turn           `json:"turns"`
	Report    conversation.DiagnosticReport `json:"report"`
	ClosedAt  time.Time                     `json:"closedAt"`
}

// Archiver stores and retrieves closed sessions.
type Archiver interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, sessionID string) (Record, error)
}

// Memory keeps archives in process. Used when no table is configured.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) Save(_ context.Context, rec Record) error {
	if rec.SessionID == "" {
		return errors.New("archive: session id must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.SessionID] = rec
	return nil
}

func (m *Memory) Load(_ context.Context, sessionID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[sessionID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}
