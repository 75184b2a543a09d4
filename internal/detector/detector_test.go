package detector

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"evsehub/internal/models"
)

type fakeSink struct {
	mu       sync.Mutex
	sessions []models.Session
}

func (f *fakeSink) AppendClosed(_ context.Context, session models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, session)
	return nil
}

func (f *fakeSink) Newest() (models.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) == 0 {
		return models.Session{}, false
	}
	return f.sessions[len(f.sessions)-1], true
}

func (f *fakeSink) all() []models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Session, len(f.sessions))
	copy(out, f.sessions)
	return out
}

type fakeSettings struct {
	settings models.Settings
}

func (f *fakeSettings) Get(context.Context) models.Settings { return f.settings }

type fakeNotifier struct {
	mu        sync.Mutex
	started   []models.Session
	completed []models.Session
}

func (f *fakeNotifier) SessionStarted(s models.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, s)
}

func (f *fakeNotifier) SessionCompleted(s models.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, s)
}

type fakeUsers struct {
	user string
}

func (f *fakeUsers) LastUser() string { return f.user }

func testSettings() models.Settings {
	return models.Settings{
		ClockStart:         "00:00",
		ClockEnd:           "00:00",
		DiscountPercent:    20,
		PricePerKWh:        1.0,
		BatteryCapacityKWh: 64.0,
		Users:              []string{"Alice"},
	}
}

func newTestDetector(cfg Config) (*Detector, *fakeSink, *fakeNotifier) {
	sink := &fakeSink{}
	notifier := &fakeNotifier{}
	d := New(sink, &fakeSettings{settings: testSettings()}, notifier, &fakeUsers{user: "Alice"}, cfg, zap.NewNop())
	return d, sink, notifier
}

func snap(ts time.Time, plug, charging bool, amps, volts float64) models.TelemetrySnapshot {
	return models.TelemetrySnapshot{
		Timestamp:     ts,
		PlugConnected: plug,
		Charging:      charging,
		Amps:          amps,
		Volts:         volts,
	}
}

func TestDetectorFullSessionEnergy(t *testing.T) {
	d, sink, notifier := newTestDetector(Config{MaxSampleGap: 15 * time.Minute})
	ctx := context.Background()

	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(600 * time.Second)
	t2 := t1.Add(60 * time.Second)

	d.Process(ctx, snap(t0.Add(-10*time.Second), true, false, 0, 230))
	d.Process(ctx, snap(t0, true, true, 10, 230))
	d.Process(ctx, snap(t1, true, true, 10, 230))
	d.Process(ctx, snap(t2, true, false, 0, 230))

	closed := sink.all()
	if len(closed) != 1 {
		t.Fatalf("expected exactly one closed session, got %d", len(closed))
	}

	session := closed[0]
	wantEnergy := 230.0 * 10.0 * 600.0 / 3600.0 / 1000.0
	if math.Abs(session.EnergyKWh-wantEnergy) > 1e-9 {
		t.Fatalf("expected energy %.6f kWh, got %.6f", wantEnergy, session.EnergyKWh)
	}
	if !session.StartedAt.Equal(t0) {
		t.Fatalf("expected start %s, got %s", t0, session.StartedAt)
	}
	if session.EndedAt == nil || !session.EndedAt.Equal(t2) {
		t.Fatalf("expected end %s, got %v", t2, session.EndedAt)
	}
	if !session.Closed {
		t.Fatal("expected session to be closed")
	}
	if session.User != "Alice" {
		t.Fatalf("expected user Alice, got %s", session.User)
	}
	if d.State() != StatePluggedNotCharging {
		t.Fatalf("expected plugged_not_charging, got %s", d.State())
	}

	if len(notifier.started) != 1 || len(notifier.completed) != 1 {
		t.Fatalf("expected 1 start and 1 complete notification, got %d/%d",
			len(notifier.started), len(notifier.completed))
	}
}

func TestDetectorAtMostOneOpenSession(t *testing.T) {
	d, sink, _ := newTestDetector(Config{})
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		d.Process(ctx, snap(base.Add(time.Duration(i)*10*time.Second), true, true, 10, 230))
	}

	open, ok := d.OpenSession()
	if !ok {
		t.Fatal("expected an open session")
	}
	if len(sink.all()) != 0 {
		t.Fatalf("expected no closed sessions while charging, got %d", len(sink.all()))
	}

	// The same session stays open throughout; repeated charging snapshots do
	// not open another.
	for i := 10; i < 20; i++ {
		d.Process(ctx, snap(base.Add(time.Duration(i)*10*time.Second), true, true, 10, 230))
	}
	open2, ok := d.OpenSession()
	if !ok || open2.ID != open.ID {
		t.Fatalf("expected the same open session %s, got %s", open.ID, open2.ID)
	}
}

func TestDetectorExcludesLargeGaps(t *testing.T) {
	d, sink, _ := newTestDetector(Config{MaxSampleGap: 5 * time.Minute})
	ctx := context.Background()

	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	d.Process(ctx, snap(t0, true, true, 10, 230))
	// 400 s exceeds the 5-minute threshold: contributes nothing.
	d.Process(ctx, snap(t0.Add(400*time.Second), true, true, 10, 230))
	d.Process(ctx, snap(t0.Add(460*time.Second), true, false, 0, 230))

	closed := sink.all()
	if len(closed) != 1 {
		t.Fatalf("expected one closed session, got %d", len(closed))
	}
	// Only the final 60 s interval is inside the threshold, and the closing
	// snapshot draws no current.
	if closed[0].EnergyKWh != 0 {
		t.Fatalf("expected 0 kWh after gap exclusion, got %.6f", closed[0].EnergyKWh)
	}
}

func TestDetectorAbruptUnplugClosesSession(t *testing.T) {
	d, sink, _ := newTestDetector(Config{})
	ctx := context.Background()

	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	d.Process(ctx, snap(t0, true, true, 10, 230))
	d.Process(ctx, snap(t0.Add(60*time.Second), false, false, 0, 0))

	if d.State() != StateIdle {
		t.Fatalf("expected idle after unplug, got %s", d.State())
	}
	closed := sink.all()
	if len(closed) != 1 {
		t.Fatalf("expected one closed session, got %d", len(closed))
	}
	if _, ok := d.OpenSession(); ok {
		t.Fatal("expected no open session after unplug")
	}
}

func TestDetectorFallbackUser(t *testing.T) {
	sink := &fakeSink{}
	d := New(sink, &fakeSettings{settings: testSettings()}, &fakeNotifier{}, &fakeUsers{user: ""},
		Config{FallbackUser: "Household"}, zap.NewNop())

	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	d.Process(context.Background(), snap(t0, true, true, 10, 230))

	open, ok := d.OpenSession()
	if !ok {
		t.Fatal("expected an open session")
	}
	if open.User != "Household" {
		t.Fatalf("expected fallback user Household, got %s", open.User)
	}
}

func TestDetectorGhostSessionFromMeterGap(t *testing.T) {
	d, sink, _ := newTestDetector(Config{})
	ctx := context.Background()

	endMeter := 100.0
	prevEnd := time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC)
	sink.sessions = append(sink.sessions, models.Session{
		ID:          "1700000000-1",
		StartedAt:   prevEnd.Add(-time.Hour),
		EndedAt:     &prevEnd,
		Closed:      true,
		EndMeterKWh: &endMeter,
	})

	meter := 102.5
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	s := snap(now, true, false, 0, 230)
	s.MeterKWh = &meter
	d.Process(ctx, s)

	closed := sink.all()
	if len(closed) != 2 {
		t.Fatalf("expected ghost session appended, got %d sessions", len(closed))
	}
	ghost := closed[1]
	if !ghost.Ghost {
		t.Fatal("expected ghost flag")
	}
	if math.Abs(ghost.EnergyKWh-2.5) > 1e-9 {
		t.Fatalf("expected 2.5 kWh ghost energy, got %.6f", ghost.EnergyKWh)
	}
	if !ghost.StartedAt.Equal(prevEnd) {
		t.Fatalf("expected ghost start %s, got %s", prevEnd, ghost.StartedAt)
	}

	// A second snapshot with the same meter reading must not synthesize
	// another ghost.
	d.Process(ctx, s)
	if len(sink.all()) != 2 {
		t.Fatalf("expected no duplicate ghost, got %d sessions", len(sink.all()))
	}
}
