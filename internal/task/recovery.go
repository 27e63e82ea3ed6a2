package task

import (
	"context"
	"fmt"
	"time"

	"github.com/phrazzld/audiopaper-api/internal/domain"
)

// Recover restores work left by a previous process. Tasks that were
// processing were interrupted mid-call and are failed so they can be
// retried; tasks still waiting for a worker are resubmitted.
func (e *Executor) Recover(ctx context.Context) error {
	e.logger.Info("recovering tasks from previous run")

	interrupted, err := e.tasks.ListByStatus(ctx, domain.TaskStatusProcessing, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to list processing tasks: %w", err)
	}
	for _, t := range interrupted {
		if e.IsRunning(t.ID) {
			continue
		}
		log := e.logger.With("task_id", t.ID, "task_type", t.Type, "document_id", t.DocumentID)
		log.Warn("failing task interrupted by restart")
		e.fail(ctx, log, t.ID, domain.MessageInterrupted)
	}

	var resubmitted int
	for _, status := range []domain.TaskStatus{
		domain.TaskStatusPending,
		domain.TaskStatusQueued,
		domain.TaskStatusRetrying,
	} {
		waiting, err := e.tasks.ListByStatus(ctx, status, time.Time{})
		if err != nil {
			return fmt.Errorf("failed to list %s tasks: %w", status, err)
		}
		for _, t := range waiting {
			if err := e.Submit(ctx, t); err != nil {
				e.logger.Error("failed to resubmit task",
					"task_id", t.ID,
					"task_type", t.Type,
					"status", status,
					"error", err)
				continue
			}
			resubmitted++
		}
	}

	e.logger.Info("task recovery completed",
		"interrupted", len(interrupted),
		"resubmitted", resubmitted)
	return nil
}

// stuckTaskMonitor periodically fails tasks that have been processing for
// longer than StuckTaskAge and are not running in this process.
func (e *Executor) stuckTaskMonitor() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	e.logger.Info("starting stalled task monitor",
		"stuck_task_age", e.config.StuckTaskAge,
		"check_interval", e.config.StuckTaskCheckInterval)

	for {
		select {
		case <-e.ctx.Done():
			e.logger.Debug("stopping stalled task monitor")
			return
		case <-ticker.C:
			if n, err := e.ReapStalled(e.ctx); err != nil {
				e.logger.Error("failed to reap stalled tasks", "error", err)
			} else if n > 0 {
				e.logger.Warn("reaped stalled tasks", "count", n)
			}
		}
	}
}

// ReapStalled fails processing tasks last updated before now-StuckTaskAge
// that this process is not running. It returns how many it failed.
func (e *Executor) ReapStalled(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-e.config.StuckTaskAge)
	stalled, err := e.tasks.ListByStatus(ctx, domain.TaskStatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stalled tasks: %w", err)
	}

	var reaped int
	for _, t := range stalled {
		if e.IsRunning(t.ID) {
			continue
		}
		log := e.logger.With(
			"task_id", t.ID,
			"task_type", t.Type,
			"stalled_since", t.UpdatedAt,
		)
		if failed := e.fail(context.WithoutCancel(ctx), log, t.ID, domain.MessageStalled); failed != nil &&
			failed.Status == domain.TaskStatusError && failed.Result != nil &&
			failed.Result.Message == domain.MessageStalled {
			reaped++
		}
	}
	return reaped, nil
}
