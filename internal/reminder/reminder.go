// Package reminder runs the periodic acceptance reminder and token cleanup
// jobs.
package reminder

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/erazemk/assetflow/internal/model"
	"github.com/erazemk/assetflow/internal/store"
)

// DefaultSchedule runs the jobs daily at 08:00.
const DefaultSchedule = "0 8 * * *"

// Reminder is the part of notify.Service the jobs need.
type Reminder interface {
	Remind(ctx context.Context, items []model.TransferItem) (int, error)
}

// Jobs holds the job functions run by the Scheduler.
type Jobs struct {
	db     *sql.DB
	notify Reminder
	after  time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewJobs returns jobs reminding new owners of items approved more than
// after ago.
func NewJobs(db *sql.DB, notify Reminder, after time.Duration, logger *slog.Logger) *Jobs {
	return &Jobs{db: db, notify: notify, after: after, logger: logger, now: time.Now}
}

// RemindPendingAcceptance notifies new owners of approved items that have
// not been accepted in time.
func (j *Jobs) RemindPendingAcceptance() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	items, err := store.ListAwaitingAcceptance(ctx, j.db, j.now().Add(-j.after))
	if err != nil {
		j.logger.Error("listing items awaiting acceptance", "error", err)
		return
	}
	if len(items) == 0 {
		return
	}

	sent, err := j.notify.Remind(ctx, items)
	if err != nil {
		j.logger.Error("sending acceptance reminders", "error", err, "sent", sent)
		return
	}
	j.logger.Info("acceptance reminders sent", "items", len(items), "transfers", sent)
}

// PurgeExpiredTokens removes revoked tokens that have expired anyway.
func (j *Jobs) PurgeExpiredTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := store.PurgeRevokedTokens(ctx, j.db, j.now())
	if err != nil {
		j.logger.Error("purging revoked tokens", "error", err)
		return
	}
	if n > 0 {
		j.logger.Info("purged revoked tokens", "count", n)
	}
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	jobs     *Jobs
	schedule string
	logger   *slog.Logger
}

// NewScheduler creates a scheduler running jobs on schedule, a standard
// five-field cron expression.
func NewScheduler(jobs *Jobs, schedule string, logger *slog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{cron: c, jobs: jobs, schedule: schedule, logger: logger}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.jobs.RemindPendingAcceptance); err != nil {
		return err
	}
	s.logger.Info("scheduled acceptance reminder job", "schedule", s.schedule)

	if _, err := s.cron.AddFunc("@hourly", s.jobs.PurgeExpiredTokens); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
