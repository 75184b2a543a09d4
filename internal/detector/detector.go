package detector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"evsehub/internal/models"
	"evsehub/internal/pricing"
)

const meterGapToleranceKWh = 0.01

// SessionSink receives closed sessions. Satisfied by store.SessionStore.
type SessionSink interface {
	AppendClosed(ctx context.Context, session models.Session) error
	Newest() (models.Session, bool)
}

// SettingsSource provides the settings snapshot used to finalize a session.
type SettingsSource interface {
	Get(ctx context.Context) models.Settings
}

// Notifier forwards session lifecycle events. Implementations must never
// block the caller.
type Notifier interface {
	SessionStarted(session models.Session)
	SessionCompleted(session models.Session)
}

// UserSource reports the most recently commanded user label.
type UserSource interface {
	LastUser() string
}

// Config tunes the detector.
type Config struct {
	// MaxSampleGap bounds the interval between consecutive snapshots that
	// still counts toward the energy integral. Longer gaps (bridge
	// reconnects) are logged and excluded.
	MaxSampleGap time.Duration
	// FallbackUser labels sessions started without a preceding start command.
	FallbackUser string
}

// Detector is the session state machine. Exactly one instance exists per
// process and all snapshot processing is serialized through its mutex, which
// preserves the at-most-one-open-session invariant.
type Detector struct {
	mu      sync.Mutex
	state   State
	prev    models.TelemetrySnapshot
	hasPrev bool
	open    *models.Session
	seq     int

	sampleCount int
	sumAmps     float64
	sumVolts    float64
	peakAmps    float64

	sink     SessionSink
	settings SettingsSource
	notifier Notifier
	users    UserSource
	cfg      Config
	logger   *zap.Logger
}

// New builds a detector in the Idle state.
func New(sink SessionSink, settings SettingsSource, notifier Notifier, users UserSource, cfg Config, logger *zap.Logger) *Detector {
	if cfg.MaxSampleGap <= 0 {
		cfg.MaxSampleGap = 5 * time.Minute
	}
	if cfg.FallbackUser == "" {
		cfg.FallbackUser = "Unknown"
	}
	return &Detector{
		sink:     sink,
		settings: settings,
		notifier: notifier,
		users:    users,
		cfg:      cfg,
		logger:   logger,
	}
}

// Process evaluates one telemetry snapshot against the state machine.
func (d *Detector) Process(ctx context.Context, snap models.TelemetrySnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}

	if d.open == nil && !snap.Charging {
		d.checkMissedSession(ctx, snap)
	}

	if d.state == StateCharging && d.open != nil && d.hasPrev {
		d.integrate(snap)
	}

	next, effects := Transition(d.state, snap)

	if effects.OpenSession {
		d.openSession(snap)
	}
	if effects.CloseSession {
		d.closeSession(ctx, snap)
	}

	d.state = next
	d.prev = snap
	d.hasPrev = true
}

// State returns the current lifecycle state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// OpenSession returns a copy of the in-progress session, if any, with its
// running energy total.
func (d *Detector) OpenSession() (models.Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open == nil {
		return models.Session{}, false
	}
	session := *d.open
	d.fillAggregates(&session)
	return session, true
}

func (d *Detector) integrate(snap models.TelemetrySnapshot) {
	elapsed := snap.Timestamp.Sub(d.prev.Timestamp)
	if elapsed <= 0 {
		return
	}
	if elapsed > d.cfg.MaxSampleGap {
		d.logger.Warn("telemetry gap excluded from energy integral",
			zap.String("session_id", d.open.ID),
			zap.Duration("gap", elapsed))
		return
	}

	// V * A * h = Wh, divided down to kWh.
	d.open.EnergyKWh += snap.Volts * snap.Amps * elapsed.Hours() / 1000

	if snap.Amps > 0 {
		d.sampleCount++
		d.sumAmps += snap.Amps
		d.sumVolts += snap.Volts
		if snap.Amps > d.peakAmps {
			d.peakAmps = snap.Amps
		}
	}
}

func (d *Detector) openSession(snap models.TelemetrySnapshot) {
	user := d.users.LastUser()
	if user == "" {
		user = d.cfg.FallbackUser
	}

	d.seq++
	session := &models.Session{
		ID:            fmt.Sprintf("%d-%d", snap.Timestamp.Unix(), d.seq),
		User:          user,
		StartedAt:     snap.Timestamp,
		StartMeterKWh: snap.MeterKWh,
	}
	d.open = session
	d.sampleCount = 0
	d.sumAmps = 0
	d.sumVolts = 0
	d.peakAmps = 0

	d.logger.Info("charging session started",
		zap.String("session_id", session.ID),
		zap.String("user", user))
	d.notifier.SessionStarted(*session)
}

func (d *Detector) closeSession(ctx context.Context, snap models.TelemetrySnapshot) {
	if d.open == nil {
		return
	}

	session := *d.open
	endedAt := snap.Timestamp
	session.EndedAt = &endedAt
	session.EndMeterKWh = snap.MeterKWh
	session.Closed = true
	d.fillAggregates(&session)

	settings := d.settings.Get(ctx)
	session.CostEstimate = pricing.SessionCost(session.EnergyKWh, session.StartedAt, endedAt, settings)
	session.BatteryPercentGained = pricing.BatteryPercentGained(session.EnergyKWh, settings.BatteryCapacityKWh)

	d.open = nil

	if err := d.sink.AppendClosed(ctx, session); err != nil {
		d.logger.Warn("persist closed session", zap.String("session_id", session.ID), zap.Error(err))
	}

	d.logger.Info("charging session closed",
		zap.String("session_id", session.ID),
		zap.Float64("energy_kwh", session.EnergyKWh),
		zap.Float64("cost", session.CostEstimate))
	d.notifier.SessionCompleted(session)
}

// checkMissedSession compares the charger's lifetime meter against the last
// closed session. A jump while nothing was charging means energy flowed while
// the backend was offline; a ghost session records it.
func (d *Detector) checkMissedSession(ctx context.Context, snap models.TelemetrySnapshot) {
	if snap.MeterKWh == nil {
		return
	}
	last, ok := d.sink.Newest()
	if !ok || last.EndMeterKWh == nil {
		return
	}
	gap := *snap.MeterKWh - *last.EndMeterKWh
	if gap < meterGapToleranceKWh {
		return
	}

	startedAt := snap.Timestamp
	if last.EndedAt != nil {
		startedAt = *last.EndedAt
	}
	endedAt := snap.Timestamp

	d.seq++
	settings := d.settings.Get(ctx)
	ghost := models.Session{
		ID:            fmt.Sprintf("ghost-%d-%d", snap.Timestamp.Unix(), d.seq),
		User:          "Unknown (offline)",
		StartedAt:     startedAt,
		EndedAt:       &endedAt,
		Closed:        true,
		Ghost:         true,
		EnergyKWh:     gap,
		StartMeterKWh: last.EndMeterKWh,
		EndMeterKWh:   snap.MeterKWh,
	}
	ghost.CostEstimate = pricing.SessionCost(gap, startedAt, endedAt, settings)
	ghost.BatteryPercentGained = pricing.BatteryPercentGained(gap, settings.BatteryCapacityKWh)

	d.logger.Warn("meter gap detected, recording ghost session",
		zap.String("session_id", ghost.ID),
		zap.Float64("energy_kwh", gap))

	if err := d.sink.AppendClosed(ctx, ghost); err != nil {
		d.logger.Warn("persist ghost session", zap.String("session_id", ghost.ID), zap.Error(err))
	}
}

func (d *Detector) fillAggregates(session *models.Session) {
	if d.sampleCount == 0 {
		return
	}
	session.AvgAmps = d.sumAmps / float64(d.sampleCount)
	session.AvgVolts = d.sumVolts / float64(d.sampleCount)
	session.PeakAmps = d.peakAmps
}
