package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"evsehub/internal/docstore"
	"evsehub/internal/models"
)

func newTestStore(t *testing.T, maxSessions int) (*SessionStore, docstore.Store) {
	t.Helper()
	docs, err := docstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("create docstore: %v", err)
	}
	s, err := NewSessionStore(context.Background(), docs, maxSessions, "", zap.NewNop())
	if err != nil {
		t.Fatalf("create session store: %v", err)
	}
	return s, docs
}

func closedSession(id string, start time.Time) models.Session {
	end := start.Add(time.Hour)
	return models.Session{
		ID:        id,
		User:      "Alice",
		StartedAt: start,
		EndedAt:   &end,
		Closed:    true,
		EnergyKWh: 1.5,
	}
}

func TestAppendAndReload(t *testing.T) {
	docs, err := docstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("create docstore: %v", err)
	}
	ctx := context.Background()

	s, err := NewSessionStore(ctx, docs, 10, "", zap.NewNop())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := s.AppendClosed(ctx, closedSession("a", start)); err != nil {
		t.Fatalf("append: %v", err)
	}

	// A fresh store over the same backend sees the session.
	reloaded, err := NewSessionStore(ctx, docs, 10, "", zap.NewNop())
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}
	got, err := reloaded.GetByID("a")
	if err != nil {
		t.Fatalf("get after reload: %v", err)
	}
	if got.EnergyKWh != 1.5 {
		t.Fatalf("unexpected session after reload: %+v", got)
	}
}

func TestAppendEvictsOldestAtCap(t *testing.T) {
	s, _ := newTestStore(t, 3)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("s%d", i)
		if err := s.AppendClosed(ctx, closedSession(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	if s.Count() != 3 {
		t.Fatalf("expected count 3 at cap, got %d", s.Count())
	}
	if _, err := s.GetByID("s0"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected oldest session evicted, got %v", err)
	}
	if _, err := s.GetByID("s3"); err != nil {
		t.Fatalf("expected newest session retained: %v", err)
	}
}

func TestAppendIsIdempotentByID(t *testing.T) {
	s, _ := newTestStore(t, 10)
	ctx := context.Background()
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	session := closedSession("dup", start)
	if err := s.AppendClosed(ctx, session); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := s.AppendClosed(ctx, session); err != nil {
		t.Fatalf("replayed append: %v", err)
	}
	if s.Count() != 1 {
		t.Fatalf("expected 1 session after replay, got %d", s.Count())
	}
}

func TestAppendRejectsOpenSession(t *testing.T) {
	s, _ := newTestStore(t, 10)
	err := s.AppendClosed(context.Background(), models.Session{ID: "open", Closed: false})
	if err == nil {
		t.Fatal("expected error for open session")
	}
}

func TestListNewestFirstWithUserFilter(t *testing.T) {
	s, _ := newTestStore(t, 10)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	a := closedSession("a", base)
	b := closedSession("b", base.Add(time.Hour))
	b.User = "Bob"
	c := closedSession("c", base.Add(2*time.Hour))

	for _, session := range []models.Session{a, b, c} {
		if err := s.AppendClosed(ctx, session); err != nil {
			t.Fatalf("append %s: %v", session.ID, err)
		}
	}

	all := s.List("")
	if len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
		t.Fatalf("expected newest-first order [c b a], got %+v", all)
	}

	alice := s.List("Alice")
	if len(alice) != 2 || alice[0].ID != "c" || alice[1].ID != "a" {
		t.Fatalf("expected Alice's sessions [c a], got %+v", alice)
	}
}

func TestUpdateNote(t *testing.T) {
	s, _ := newTestStore(t, 10)
	ctx := context.Background()
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if err := s.AppendClosed(ctx, closedSession("a", start)); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := s.UpdateNote(ctx, "a", "charged before trip"); err != nil {
		t.Fatalf("update note: %v", err)
	}
	got, err := s.GetByID("a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Note != "charged before trip" {
		t.Fatalf("expected note persisted, got %q", got.Note)
	}

	if err := s.UpdateNote(ctx, "missing", "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if s.Count() != 1 {
		t.Fatalf("store changed by failed note update: count %d", s.Count())
	}
}

// stallingStore fails every Put and signals when the first attempt starts, so
// a test can observe the store mid-retry.
type stallingStore struct {
	started chan struct{}
	once    sync.Once
}

func (s *stallingStore) Get(context.Context, string) ([]byte, error) {
	return nil, docstore.ErrNotFound
}

func (s *stallingStore) Put(context.Context, string, []byte) error {
	s.once.Do(func() { close(s.started) })
	return errors.New("backend down")
}

func TestReadersNotBlockedDuringPersistRetry(t *testing.T) {
	backend := &stallingStore{started: make(chan struct{})}
	s, err := NewSessionStore(context.Background(), backend, 10, "", zap.NewNop())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	appended := make(chan struct{})
	go func() {
		defer close(appended)
		start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		_ = s.AppendClosed(context.Background(), closedSession("a", start))
	}()
	<-backend.started

	// The writer is now inside its retry backoff. Reads must still complete
	// well before the backoff does.
	read := make(chan int, 1)
	go func() {
		s.List("")
		read <- s.Count()
	}()
	select {
	case n := <-read:
		if n != 1 {
			t.Fatalf("expected the appended session visible, got %d", n)
		}
	case <-time.After(persistBackoff / 2):
		t.Fatal("read blocked behind persistence retry")
	}

	<-appended
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, docstore.ErrNotFound
}

func (failingStore) Put(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestPersistFailureDegradesToOverflow(t *testing.T) {
	overflow := filepath.Join(t.TempDir(), "overflow.jsonl")
	s, err := NewSessionStore(context.Background(), failingStore{}, 10, overflow, zap.NewNop())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := s.AppendClosed(context.Background(), closedSession("a", start)); err != nil {
		t.Fatalf("append must not fail when degraded: %v", err)
	}

	// The session stays queryable in memory.
	if _, err := s.GetByID("a"); err != nil {
		t.Fatalf("expected session retained in memory: %v", err)
	}

	data, err := os.ReadFile(overflow)
	if err != nil {
		t.Fatalf("expected overflow file written: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected overflow record")
	}
}
