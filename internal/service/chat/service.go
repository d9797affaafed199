package chat

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/moodline/backend/internal/archive"
	"github.com/zhouzirui/moodline/backend/internal/model/chat"
	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
	"github.com/zhouzirui/moodline/backend/internal/service/dialogue"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrReportNotReady  = errors.New("session is still open")
)

// Service keeps the live sessions of the process, one orchestrator each.
// Closed sessions are handed to the archiver.
type Service struct {
	engine   *dialogue.Engine
	archiver archive.Archiver

	mu       sync.RWMutex
	sessions map[string]*dialogue.Orchestrator
}

// NewService builds a registry over engine. archiver may be nil, in which
// case closed sessions are only kept until removed.
func NewService(engine *dialogue.Engine, archiver archive.Archiver) *Service {
	return &Service{
		engine:   engine,
		archiver: archiver,
		sessions: make(map[string]*dialogue.Orchestrator),
	}
}

// CreateSession starts an Open session with a fresh id.
func (s *Service) CreateSession(_ context.Context) (chat.Session, error) {
	session := s.engine.NewSession(uuid.NewString())

	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	log.Printf("[chat] session=%s created", session.ID())
	return summarize(session), nil
}

// GetSession returns the summary of a live session.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	session, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	return summarize(session), nil
}

// LoadTranscript returns the turns of a live session, or of an archived one.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]conversation.Turn, error) {
	session, err := s.lookup(sessionID)
	if err == nil {
		return session.Snapshot(), nil
	}

	rec, err := s.loadArchived(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return rec.Turns, nil
}

// SendMessage runs one exchange on the session.
func (s *Service) SendMessage(ctx context.Context, sessionID, text string, opts ...dialogue.MessageOption) (conversation.Exchange, error) {
	session, err := s.lookup(sessionID)
	if err != nil {
		return conversation.Exchange{}, err
	}
	return session.HandleMessage(ctx, text, opts...)
}

// CloseSession analyzes and closes the session, then archives it. A
// malformed report still closes and archives; the error is returned too.
func (s *Service) CloseSession(ctx context.Context, sessionID string) (conversation.DiagnosticReport, error) {
	session, err := s.lookup(sessionID)
	if err != nil {
		return conversation.DiagnosticReport{}, err
	}

	report, err := session.Close(ctx)
	if err != nil && !errors.Is(err, dialogue.ErrReportMalformed) {
		return conversation.DiagnosticReport{}, err
	}

	s.archive(ctx, session, report)
	return report, err
}

// Report returns the report of a closed session, live or archived.
func (s *Service) Report(ctx context.Context, sessionID string) (conversation.DiagnosticReport, error) {
	session, err := s.lookup(sessionID)
	if err == nil {
		report, ok := session.Report()
		if !ok {
			return conversation.DiagnosticReport{}, ErrReportNotReady
		}
		return report, nil
	}

	rec, err := s.loadArchived(ctx, sessionID)
	if err != nil {
		return conversation.DiagnosticReport{}, err
	}
	return rec.Report, nil
}

// ListSessions returns summaries of every live session.
func (s *Service) ListSessions() []chat.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, summarize(session))
	}
	return out
}

// RemoveSession drops a session from the registry.
func (s *Service) RemoveSession(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// ReapIdle closes sessions idle longer than ttl and drops them from the
// registry once closed. It returns how many sessions were removed.
func (s *Service) ReapIdle(ctx context.Context, ttl time.Duration) int {
	cutoff := time.Now().UTC().Add(-ttl)

	s.mu.RLock()
	idle := make([]*dialogue.Orchestrator, 0)
	for _, session := range s.sessions {
		if session.LastActivity().Before(cutoff) {
			idle = append(idle, session)
		}
	}
	s.mu.RUnlock()

	removed := 0
	for _, session := range idle {
		if ctx.Err() != nil {
			break
		}
		if session.State() == dialogue.StateOpen {
			// activity may have arrived since the scan; CloseIfIdle re-checks under the session slot
			report, closed, err := session.CloseIfIdle(ctx, cutoff)
			if err != nil && !errors.Is(err, dialogue.ErrReportMalformed) {
				log.Printf("[chat] session=%s idle close failed: %v", session.ID(), err)
				continue
			}
			if !closed {
				continue
			}
			s.archive(ctx, session, report)
		}
		if session.State() != dialogue.StateClosed {
			continue
		}
		s.RemoveSession(session.ID())
		removed++
	}
	return removed
}

func (s *Service) lookup(sessionID string) (*dialogue.Orchestrator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *Service) loadArchived(ctx context.Context, sessionID string) (archive.Record, error) {
	if s.archiver == nil {
		return archive.Record{}, ErrSessionNotFound
	}
	rec, err := s.archiver.Load(ctx, sessionID)
	if errors.Is(err, archive.ErrNotFound) {
		return archive.Record{}, ErrSessionNotFound
	}
	return rec, err
}

func (s *Service) archive(ctx context.Context, session *dialogue.Orchestrator, report conversation.DiagnosticReport) {
	if s.archiver == nil {
		return
	}
	rec := archive.Record{
		SessionID: session.ID(),
		Turns:     session.Snapshot(),
		Report:    report,
		ClosedAt:  session.LastActivity(),
	}
	if err := s.archiver.Save(ctx, rec); err != nil {
		log.Printf("[archive] session=%s save failed: %v", session.ID(), err)
	}
}

func summarize(session *dialogue.Orchestrator) chat.Session {
	return chat.Session{
		ID:           session.ID(),
		State:        string(session.State()),
		Turns:        session.Len(),
		CreatedAt:    session.CreatedAt(),
		LastActivity: session.LastActivity(),
	}
}
