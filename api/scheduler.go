/*
scheduler.go - Automated retention cleanup scheduler

PURPOSE:
  Periodically removes completed stage records older than the configured
  retention window. Open records are never touched; a batch still moving
  through the pipeline keeps its full history.

DESIGN:
  - robfig/cron drives the schedule (default: daily at 03:00)
  - Each run gets a uuid so log lines of one run correlate
  - Deletion is delegated to Engine.CleanupCompleted, which guards
    against non-positive retention windows

CONFIGURATION:
  - CronSpec:      Cron expression for the schedule
  - RetentionDays: Completed records older than this are removed
  - Enabled:       Whether the scheduler runs at all

USAGE:
  scheduler := NewCleanupScheduler(engine, log, cfg.CleanupCron, cfg.RetentionDays)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerCleanup endpoint (manual run)
  - trace/transition.go: CleanupCompleted
*/
package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/agritrace/trace-engine/trace"
)

// DefaultCleanupCron runs the retention sweep nightly, off-peak.
const DefaultCleanupCron = "0 3 * * *"

// CleanupScheduler runs retention cleanup on a cron schedule.
type CleanupScheduler struct {
	Engine        *trace.Engine
	Log           *zap.Logger
	CronSpec      string
	RetentionDays int
	Enabled       bool

	cron *cron.Cron
}

// NewCleanupScheduler creates a scheduler. A retentionDays of zero or
// less disables it.
func NewCleanupScheduler(engine *trace.Engine, log *zap.Logger, spec string, retentionDays int) *CleanupScheduler {
	if spec == "" {
		spec = DefaultCleanupCron
	}
	return &CleanupScheduler{
		Engine:        engine,
		Log:           log,
		CronSpec:      spec,
		RetentionDays: retentionDays,
		Enabled:       retentionDays > 0,
	}
}

// Start begins the scheduler.
func (cs *CleanupScheduler) Start() error {
	if !cs.Enabled {
		cs.Log.Info("cleanup scheduler disabled, not starting")
		return nil
	}

	cs.cron = cron.New()
	if _, err := cs.cron.AddFunc(cs.CronSpec, cs.RunNow); err != nil {
		return err
	}
	cs.cron.Start()

	cs.Log.Info("cleanup scheduler started",
		zap.String("cron", cs.CronSpec),
		zap.Int("retention_days", cs.RetentionDays))
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (cs *CleanupScheduler) Stop() {
	if cs.cron == nil {
		return
	}
	ctx := cs.cron.Stop()
	<-ctx.Done()
	cs.Log.Info("cleanup scheduler stopped")
}

// RunNow triggers an immediate sweep (also used by the cron trigger).
func (cs *CleanupScheduler) RunNow() {
	runID := uuid.NewString()
	log := cs.Log.With(zap.String("run_id", runID))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	started := time.Now()
	deleted, err := cs.Engine.CleanupCompleted(ctx, cs.RetentionDays)
	if err != nil {
		log.Error("retention cleanup failed", zap.Error(err))
		return
	}

	log.Info("retention cleanup completed",
		zap.Int("retention_days", cs.RetentionDays),
		zap.Int64("deleted", deleted),
		zap.Duration("took", time.Since(started)))
}
