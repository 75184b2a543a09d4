package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"evsehub/internal/docstore"
	"evsehub/internal/models"
)

// ErrSessionNotFound indicates an unknown session id.
var ErrSessionNotFound = errors.New("store: session not found")

const (
	persistAttempts = 3
	persistBackoff  = 100 * time.Millisecond
)

// SessionStore is the durable ordered log of closed sessions. It holds the
// log in memory behind an RWMutex and writes the whole document through the
// blob store on every mutation, so readers never observe a torn record.
type SessionStore struct {
	mu           sync.RWMutex
	persistMu    sync.Mutex
	docs         docstore.Store
	logger       *zap.Logger
	maxSessions  int
	overflowPath string

	// Oldest first, sorted by start time.
	sessions []models.Session
}

type sessionsDocument struct {
	Sessions []models.Session `json:"sessions"`
}

// NewSessionStore loads the existing log, if any.
func NewSessionStore(ctx context.Context, docs docstore.Store, maxSessions int, overflowPath string, logger *zap.Logger) (*SessionStore, error) {
	if maxSessions <= 0 {
		maxSessions = 500
	}
	s := &SessionStore{
		docs:         docs,
		logger:       logger,
		maxSessions:  maxSessions,
		overflowPath: overflowPath,
	}

	data, err := docs.Get(ctx, docstore.KeySessions)
	if errors.Is(err, docstore.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load sessions: %w", err)
	}

	var doc sessionsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("store: decode sessions: %w", err)
	}
	s.sessions = doc.Sessions
	s.sortLocked()
	return s, nil
}

// AppendClosed appends a closed session, evicting the oldest entries once the
// cap is exceeded. Re-appending an id already in the log is a no-op, so a
// replayed close cannot duplicate history. Persistence failures are retried a
// bounded number of times and then degraded to the overflow log; the caller
// always gets a usable in-memory store back.
func (s *SessionStore) AppendClosed(ctx context.Context, session models.Session) error {
	if !session.Closed || session.EndedAt == nil {
		return errors.New("store: session is not closed")
	}

	s.mu.Lock()
	for _, existing := range s.sessions {
		if existing.ID == session.ID {
			s.mu.Unlock()
			return nil
		}
	}

	s.sessions = append(s.sessions, session)
	s.sortLocked()
	for len(s.sessions) > s.maxSessions {
		s.sessions = s.sessions[1:]
	}

	s.persistAndUnlock(ctx, session)
	return nil
}

// List returns sessions newest first, optionally filtered by user.
func (s *SessionStore) List(user string) []models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Session, 0, len(s.sessions))
	for i := len(s.sessions) - 1; i >= 0; i-- {
		if user != "" && s.sessions[i].User != user {
			continue
		}
		out = append(out, s.sessions[i])
	}
	return out
}

// GetByID returns a single closed session.
func (s *SessionStore) GetByID(id string) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, session := range s.sessions {
		if session.ID == id {
			return session, nil
		}
	}
	return models.Session{}, ErrSessionNotFound
}

// UpdateNote replaces the free-text note on a closed session.
func (s *SessionStore) UpdateNote(ctx context.Context, id, note string) error {
	s.mu.Lock()
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			s.sessions[i].Note = note
			s.persistAndUnlock(ctx, s.sessions[i])
			return nil
		}
	}
	s.mu.Unlock()
	return ErrSessionNotFound
}

// Newest returns the most recent closed session, used by the detector to
// compare lifetime meter readings across restarts.
func (s *SessionStore) Newest() (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.sessions) == 0 {
		return models.Session{}, false
	}
	return s.sessions[len(s.sessions)-1], true
}

// Count returns the number of retained closed sessions.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SessionStore) sortLocked() {
	sort.SliceStable(s.sessions, func(i, j int) bool {
		return s.sessions[i].StartedAt.Before(s.sessions[j].StartedAt)
	})
}

// persistAndUnlock writes the whole log through the blob store, retrying
// before degrading to the overflow file. Called with mu held: the document is
// snapshotted and mu released before any blob-store write, so readers are not
// stalled while a persistence outage is retried. persistMu is taken before mu
// is dropped to keep concurrent writers' documents reaching the store in
// order. Durability loss must not wedge the caller, so the degraded path only
// logs.
func (s *SessionStore) persistAndUnlock(ctx context.Context, changed models.Session) {
	data, err := json.Marshal(sessionsDocument{Sessions: s.sessions})
	s.persistMu.Lock()
	s.mu.Unlock()
	defer s.persistMu.Unlock()

	if err != nil {
		s.logger.Error("encode sessions document", zap.Error(err))
		return
	}

	for attempt := 1; attempt <= persistAttempts; attempt++ {
		err = s.docs.Put(ctx, docstore.KeySessions, data)
		if err == nil {
			return
		}
		if attempt < persistAttempts {
			time.Sleep(persistBackoff)
		}
	}

	s.logger.Warn("session persistence failed, writing overflow record",
		zap.String("session_id", changed.ID),
		zap.Error(err))
	s.writeOverflow(changed)
}

func (s *SessionStore) writeOverflow(session models.Session) {
	if s.overflowPath == "" {
		return
	}
	line, err := json.Marshal(session)
	if err != nil {
		return
	}
	f, err := os.OpenFile(s.overflowPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.logger.Error("open overflow file", zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		s.logger.Error("write overflow file", zap.Error(err))
	}
}
