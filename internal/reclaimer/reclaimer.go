// Package reclaimer implements the background job that returns
// timed-out in_progress tasks to available, leaving behind the
// stale-lease marker the state machine's Reserve call later surfaces
// as a warning.
package reclaimer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentbroker/taskbroker/internal/distlock"
	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store"
)

// lockKey is the distlock.Locker key shared by every broker replica, so
// only one replica reclaims a given tick.
const lockKey = "taskbroker:lock:reclaimer"

// lockTTL must comfortably exceed a single tick's expected runtime;
// Reclaimer holds the lock for at most one store.ReclaimStale call plus
// its follow-up writes.
const lockTTL = 30 * time.Second

const staleFindingSubstring = "unlocked due to timeout"

// Reclaimer is the LeaseReclaimer component.
type Reclaimer struct {
	store     store.Store
	lock      distlock.Locker
	threshold time.Duration
	logger    *slog.Logger
}

// New builds a Reclaimer. threshold is TASK_TIMEOUT_HOURS converted to a
// duration; lock may be distlock.NoopLocker{} for single-replica
// deployments.
func New(s store.Store, lock distlock.Locker, threshold time.Duration, logger *slog.Logger) *Reclaimer {
	return &Reclaimer{store: s, lock: lock, threshold: threshold, logger: logger}
}

// Name satisfies scheduler.Job.
func (r *Reclaimer) Name() string { return "lease_reclaimer" }

// Run satisfies scheduler.Job: acquires the distributed lock, reclaims
// every timed-out lease, and releases the lock.
func (r *Reclaimer) Run(ctx context.Context) error {
	acquired, err := r.lock.TryLock(ctx, lockKey, lockTTL)
	if err != nil {
		return fmt.Errorf("reclaimer: acquire lock: %w", err)
	}
	if !acquired {
		r.logger.Debug("reclaimer: lock held by another replica, skipping tick")
		return nil
	}
	defer func() {
		if err := r.lock.Unlock(ctx, lockKey); err != nil {
			r.logger.Warn("reclaimer: release lock", "error", err)
		}
	}()

	reclaimed, err := r.store.ReclaimStale(ctx, r.threshold)
	if err != nil {
		return fmt.Errorf("reclaimer: reclaim stale: %w", err)
	}
	for _, lease := range reclaimed {
		if err := r.recordFinding(ctx, lease); err != nil {
			r.logger.Error("reclaimer: record finding", "task_id", lease.TaskID, "error", err)
			continue
		}
		r.logger.Info("reclaimer: reclaimed stale lease", "task_id", lease.TaskID, "previous_agent", lease.PreviousAgent)
	}
	return nil
}

// recordFinding appends the finding-type update and unlocked_stale
// history record that together let a later Reserve call surface a
// stale_warning.
func (r *Reclaimer) recordFinding(ctx context.Context, lease store.ReclaimedLease) error {
	content := fmt.Sprintf("Task %s after inactivity timeout; previous agent: %s", staleFindingSubstring, lease.PreviousAgent)
	_, err := r.store.AddUpdate(ctx, &model.TaskUpdate{
		TaskID:     lease.TaskID,
		UpdateType: model.UpdateTypeFinding,
		Content:    content,
		AuthorID:   "system",
		Metadata: map[string]any{
			"stale":          true,
			"previous_agent": lease.PreviousAgent,
			"unlocked_at":    lease.UpdatedAt,
		},
	})
	if err != nil {
		return fmt.Errorf("add stale finding: %w", err)
	}

	oldValue := lease.PreviousAgent
	_, err = r.store.RecordChange(ctx, &model.ChangeHistory{
		TaskID:     lease.TaskID,
		AgentID:    "system",
		ChangeType: model.ChangeUnlockedStale,
		OldValue:   &oldValue,
	})
	if err != nil {
		return fmt.Errorf("record unlocked_stale history: %w", err)
	}
	return nil
}
