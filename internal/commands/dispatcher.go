package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"evsehub/internal/models"
)

// Amperage bounds the charger accepts.
const (
	MinAmps = 6
	MaxAmps = 16
)

// ErrInvalidAmps rejects a set-amps value outside [MinAmps, MaxAmps].
var ErrInvalidAmps = fmt.Errorf("commands: amps must be between %d and %d", MinAmps, MaxAmps)

// Publisher sends a payload to a bus topic. Satisfied by bus.Conn.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Dispatcher translates user intents into outbound bus messages. Dispatch is
// fire-and-forget: the charger never acknowledges directly, confirmation
// shows up in the next telemetry snapshot. The dispatcher remembers the last
// commanded user and amps so the detector and UI can reference them before
// telemetry catches up.
type Dispatcher struct {
	mu       sync.RWMutex
	pub      Publisher
	topic    string
	logger   *zap.Logger
	lastUser string
	lastAmps int
	lastCmd  *models.CommandRequest
}

// New builds a dispatcher publishing to the given command topic.
func New(pub Publisher, topic string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{pub: pub, topic: topic, logger: logger}
}

type startPayload struct {
	ChargeState int `json:"charge_state"`
	ChargeAmps  int `json:"charge_amps"`
}

type stopPayload struct {
	ChargeState int `json:"charge_state"`
}

type ampsPayload struct {
	ChargeAmps int `json:"charge_amps"`
}

// StartFor publishes a start command attributed to user. Amps outside the
// valid range are clamped; the usual source is the charger's own reported
// configuration.
func (d *Dispatcher) StartFor(ctx context.Context, user string, amps int) error {
	if user == "" {
		return errors.New("commands: user is required")
	}
	if amps < MinAmps || amps > MaxAmps {
		amps = MaxAmps
	}

	d.record(models.CommandRequest{Intent: models.CommandStart, User: user, Amps: amps, IssuedAt: time.Now().UTC()})
	return d.publish(ctx, startPayload{ChargeState: 1, ChargeAmps: amps})
}

// Stop publishes a stop command.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.record(models.CommandRequest{Intent: models.CommandStop, IssuedAt: time.Now().UTC()})
	return d.publish(ctx, stopPayload{ChargeState: 0})
}

// SetAmps publishes an amperage change. Values outside [MinAmps, MaxAmps]
// fail validation before anything goes out on the bus.
func (d *Dispatcher) SetAmps(ctx context.Context, amps int) error {
	if amps < MinAmps || amps > MaxAmps {
		return ErrInvalidAmps
	}

	d.record(models.CommandRequest{Intent: models.CommandSetAmps, Amps: amps, IssuedAt: time.Now().UTC()})
	return d.publish(ctx, ampsPayload{ChargeAmps: amps})
}

// LastUser returns the most recently commanded user label.
func (d *Dispatcher) LastUser() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastUser
}

// LastAmps returns the most recently commanded amperage, 0 if none.
func (d *Dispatcher) LastAmps() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastAmps
}

// LastCommand returns the most recent dispatched request, if any.
func (d *Dispatcher) LastCommand() (models.CommandRequest, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.lastCmd == nil {
		return models.CommandRequest{}, false
	}
	return *d.lastCmd, true
}

func (d *Dispatcher) record(cmd models.CommandRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cmd.User != "" {
		d.lastUser = cmd.User
	}
	if cmd.Amps > 0 {
		d.lastAmps = cmd.Amps
	}
	d.lastCmd = &cmd
}

func (d *Dispatcher) publish(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("commands: encode payload: %w", err)
	}
	if err := d.pub.Publish(ctx, d.topic, data); err != nil {
		d.logger.Warn("command publish failed", zap.String("topic", d.topic), zap.Error(err))
		return fmt.Errorf("commands: publish: %w", err)
	}
	d.logger.Info("command dispatched", zap.String("topic", d.topic), zap.ByteString("payload", data))
	return nil
}
