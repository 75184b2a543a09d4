package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"evsehub/internal/docstore"
)

// Backup ships the raw sessions document to the notification channel on a
// cron schedule, mirroring the old manual export. Best-effort like every
// other notification.
type Backup struct {
	cron   *cron.Cron
	docs   docstore.Store
	tg     *Telegram
	logger *zap.Logger
}

// NewBackup schedules the job. An empty schedule or a disabled notifier
// returns a nil Backup, which Start and Stop tolerate.
func NewBackup(schedule string, loc *time.Location, docs docstore.Store, tg *Telegram, logger *zap.Logger) (*Backup, error) {
	if schedule == "" || !tg.Enabled() {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}

	b := &Backup{
		cron:   cron.New(cron.WithLocation(loc)),
		docs:   docs,
		tg:     tg,
		logger: logger,
	}
	if _, err := b.cron.AddFunc(schedule, b.run); err != nil {
		return nil, fmt.Errorf("notify: invalid backup schedule %q: %w", schedule, err)
	}
	return b, nil
}

// Start begins the schedule.
func (b *Backup) Start() {
	if b == nil {
		return
	}
	b.cron.Start()
}

// Stop halts the schedule and waits for a running job to finish.
func (b *Backup) Stop() {
	if b == nil {
		return
	}
	<-b.cron.Stop().Done()
}

func (b *Backup) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := b.docs.Get(ctx, docstore.KeySessions)
	if errors.Is(err, docstore.ErrNotFound) {
		b.logger.Info("sessions backup skipped, nothing recorded yet")
		return
	}
	if err != nil {
		b.logger.Warn("sessions backup read failed", zap.Error(err))
		return
	}

	if err := b.tg.SendDocument("sessions.json", data, "📋 Daily sessions backup"); err != nil {
		b.logger.Warn("sessions backup delivery failed", zap.Error(err))
		return
	}
	b.logger.Info("sessions backup delivered", zap.Int("bytes", len(data)))
}
