package bridge

import (
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pause bounds, matching the UI's safety clamp.
const (
	MinPauseSeconds = 5
	MaxPauseSeconds = 600
)

// Pauser stops the bridge's systemd unit for a bounded interval so the BLE
// link frees up, then restarts it. Repeated pauses reset the restart timer.
type Pauser struct {
	mu     sync.Mutex
	unit   string
	timer  *time.Timer
	run    func(action string) error
	logger *zap.Logger
}

// NewPauser controls the given systemd unit.
func NewPauser(unit string, logger *zap.Logger) *Pauser {
	p := &Pauser{unit: unit, logger: logger}
	p.run = func(action string) error {
		return exec.Command("sudo", "systemctl", action, p.unit).Run()
	}
	return p
}

// PauseFor stops the unit and schedules the restart. Returns the applied
// duration in seconds after clamping.
func (p *Pauser) PauseFor(seconds int) int {
	if seconds < MinPauseSeconds {
		seconds = MinPauseSeconds
	}
	if seconds > MaxPauseSeconds {
		seconds = MaxPauseSeconds
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.run("stop"); err != nil {
		p.logger.Warn("stop bridge unit", zap.String("unit", p.unit), zap.Error(err))
	}

	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(time.Duration(seconds)*time.Second, p.resume)

	p.logger.Info("bridge paused", zap.String("unit", p.unit), zap.Int("seconds", seconds))
	return seconds
}

func (p *Pauser) resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.run("start"); err != nil {
		p.logger.Warn("restart bridge unit", zap.String("unit", p.unit), zap.Error(err))
		return
	}
	p.logger.Info("bridge resumed", zap.String("unit", p.unit))
}
