package ingest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"evsehub/internal/bus"
	"evsehub/internal/models"
)

// Topic suffixes published by the bridge under its serial prefix.
const (
	SuffixAvailability = "/availability"
	SuffixCharge       = "/state/charge"
	SuffixConfig       = "/state/config"
)

// SnapshotSink receives each decoded snapshot. Satisfied by detector.Detector.
type SnapshotSink interface {
	Process(ctx context.Context, snap models.TelemetrySnapshot)
}

// ErrorNotifier receives deduplicated charger error reports.
type ErrorNotifier interface {
	ChargerError(details string)
}

// StateDocument is the aggregate current-state view served to the UI and
// broadcast over the live feed.
type StateDocument struct {
	Availability    string                    `json:"availability"`
	BridgeConnected bool                      `json:"bridge_connected"`
	LastUpdate      *time.Time                `json:"last_update,omitempty"`
	Telemetry       *models.TelemetrySnapshot `json:"telemetry,omitempty"`
	Config          json.RawMessage           `json:"config,omitempty"`
	DecodeErrors    uint64                    `json:"decode_errors"`
}

// chargePayload is the wire format of a state/charge message.
type chargePayload struct {
	Serial       string   `json:"serial"`
	PlugState    *int     `json:"plug_state"`
	OutputState  *int     `json:"output_state"`
	CurrentAmps  float64  `json:"current_amps"`
	Voltage      float64  `json:"voltage"`
	TemperatureC float64  `json:"temperature_c"`
	SignalDBM    int      `json:"signal_dbm"`
	ErrorDetails string   `json:"error_details"`
	MeterKWh     *float64 `json:"current_amount"`
}

// Ingest decodes bridge messages into the shared current state and feeds the
// detector. A malformed payload is dropped and counted, never fatal.
type Ingest struct {
	mu           sync.RWMutex
	current      *models.TelemetrySnapshot
	availability string
	configRaw    json.RawMessage
	lastSeen     time.Time
	lastError    string

	decodeErrors atomic.Uint64

	sink       SnapshotSink
	notifier   ErrorNotifier
	staleAfter time.Duration
	logger     *zap.Logger

	// OnUpdate, when set, is invoked with the refreshed state document after
	// every handled message. Used to feed the live websocket stream.
	OnUpdate func(doc StateDocument)

	now func() time.Time
}

// New builds the ingest stage.
func New(sink SnapshotSink, notifier ErrorNotifier, staleAfter time.Duration, logger *zap.Logger) *Ingest {
	if staleAfter <= 0 {
		staleAfter = 60 * time.Second
	}
	return &Ingest{
		availability: "unknown",
		sink:         sink,
		notifier:     notifier,
		staleAfter:   staleAfter,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// HandleMessage is the bus handler. Dispatch is by topic suffix so the serial
// prefix stays configuration, not code.
func (i *Ingest) HandleMessage(ctx context.Context, msg bus.Message) {
	i.mu.Lock()
	i.lastSeen = i.now()
	i.mu.Unlock()

	switch {
	case strings.HasSuffix(msg.Topic, SuffixAvailability):
		i.handleAvailability(msg.Payload)
	case strings.HasSuffix(msg.Topic, SuffixCharge):
		i.handleCharge(ctx, msg.Payload)
	case strings.HasSuffix(msg.Topic, SuffixConfig):
		i.handleConfig(msg.Payload)
	default:
		i.logger.Debug("unhandled bus topic", zap.String("topic", msg.Topic))
	}

	if i.OnUpdate != nil {
		i.OnUpdate(i.State())
	}
}

func (i *Ingest) handleAvailability(payload []byte) {
	i.mu.Lock()
	i.availability = strings.TrimSpace(string(payload))
	i.mu.Unlock()
}

func (i *Ingest) handleConfig(payload []byte) {
	if !json.Valid(payload) {
		i.decodeErrors.Add(1)
		i.logger.Warn("dropping malformed config payload")
		return
	}
	i.mu.Lock()
	i.configRaw = append(json.RawMessage(nil), payload...)
	i.mu.Unlock()
}

func (i *Ingest) handleCharge(ctx context.Context, payload []byte) {
	var wire chargePayload
	if err := json.Unmarshal(payload, &wire); err != nil {
		i.decodeErrors.Add(1)
		i.logger.Warn("dropping malformed charge payload", zap.Error(err))
		return
	}
	if wire.PlugState == nil || wire.OutputState == nil {
		i.decodeErrors.Add(1)
		i.logger.Warn("dropping charge payload without state fields")
		return
	}

	snap := models.TelemetrySnapshot{
		Timestamp:     i.now(),
		Serial:        wire.Serial,
		PlugConnected: *wire.PlugState != 0,
		Charging:      *wire.OutputState != 0,
		Amps:          wire.CurrentAmps,
		Volts:         wire.Voltage,
		TemperatureC:  wire.TemperatureC,
		SignalDBM:     wire.SignalDBM,
		ErrorCode:     normalizeError(wire.ErrorDetails),
		MeterKWh:      wire.MeterKWh,
	}

	i.mu.Lock()
	i.current = &snap
	i.mu.Unlock()

	i.sink.Process(ctx, snap)
	i.reportError(snap.ErrorCode)
}

// reportError forwards charger errors once per distinct error, resetting when
// the error clears.
func (i *Ingest) reportError(code string) {
	i.mu.Lock()
	changed := code != "" && code != i.lastError
	i.lastError = code
	i.mu.Unlock()

	if changed && i.notifier != nil {
		i.notifier.ChargerError(code)
	}
}

// State returns the aggregate current-state document.
func (i *Ingest) State() StateDocument {
	i.mu.RLock()
	defer i.mu.RUnlock()

	doc := StateDocument{
		Availability: i.availability,
		Config:       i.configRaw,
		DecodeErrors: i.decodeErrors.Load(),
	}
	if !i.lastSeen.IsZero() {
		seen := i.lastSeen
		doc.LastUpdate = &seen
		doc.BridgeConnected = i.now().Sub(seen) <= i.staleAfter
	}
	if i.current != nil {
		snap := *i.current
		doc.Telemetry = &snap
	}
	return doc
}

// ReportedAmps extracts the charger's configured amperage from the last
// config payload, falling back to 16 when absent.
func (i *Ingest) ReportedAmps() int {
	i.mu.RLock()
	raw := i.configRaw
	i.mu.RUnlock()

	var cfg struct {
		ChargeAmps int `json:"charge_amps"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &cfg) != nil || cfg.ChargeAmps <= 0 {
		return 16
	}
	return cfg.ChargeAmps
}

// DecodeErrorCount reports how many payloads were dropped.
func (i *Ingest) DecodeErrorCount() uint64 {
	return i.decodeErrors.Load()
}

func normalizeError(details string) string {
	details = strings.TrimSpace(details)
	if details == "" || strings.Contains(strings.ToLower(details), "no error") {
		return ""
	}
	return details
}
