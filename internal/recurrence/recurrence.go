// Package recurrence implements the RecurrenceMaterializer background
// job: for each active recurrence whose next occurrence
// is due, it clones the base task's content into a fresh instance and
// advances the schedule by exactly one occurrence.
package recurrence

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
// only one replica materializes a given tick.
const lockKey = "taskbroker:lock:recurrence"

const lockTTL = 30 * time.Second

// Materializer is the RecurrenceMaterializer component.
type Materializer struct {
	store  store.Store
	lock   distlock.Locker
	logger *slog.Logger
	now    func() time.Time
}

// New builds a Materializer. lock may be distlock.NoopLocker{} for
// single-replica deployments.
func New(s store.Store, lock distlock.Locker, logger *slog.Logger) *Materializer {
	return &Materializer{store: s, lock: lock, logger: logger, now: time.Now}
}

// Name satisfies scheduler.Job.
func (m *Materializer) Name() string { return "recurrence_materializer" }

// Run satisfies scheduler.Job: acquires the distributed lock and
// materializes every due recurrence, one occurrence each.
func (m *Materializer) Run(ctx context.Context) error {
	acquired, err := m.lock.TryLock(ctx, lockKey, lockTTL)
	if err != nil {
		return fmt.Errorf("recurrence: acquire lock: %w", err)
	}
	if !acquired {
		m.logger.Debug("recurrence: lock held by another replica, skipping tick")
		return nil
	}
	defer func() {
		if err := m.lock.Unlock(ctx, lockKey); err != nil {
			m.logger.Warn("recurrence: release lock", "error", err)
		}
	}()

	now := m.now().UTC()
	due, err := m.store.DueRecurrences(ctx, now)
	if err != nil {
		return fmt.Errorf("recurrence: due recurrences: %w", err)
	}
	for _, r := range due {
		if err := m.materializeOne(ctx, r, now); err != nil {
			m.logger.Error("recurrence: materialize", "recurrence_id", r.ID, "error", err)
			continue
		}
	}
	return nil
}

// materializeOne implements CreateRecurringInstance for a single due
// recurrence: clone, advance, stamp last_occurrence_created. All three
// steps apply to exactly one occurrence; missed ticks are never backfilled.
func (m *Materializer) materializeOne(ctx context.Context, r *model.Recurrence, now time.Time) error {
	base, err := m.store.GetTask(ctx, r.OrganizationID, r.BaseTaskID)
	if err != nil {
		return fmt.Errorf("get base task %d: %w", r.BaseTaskID, err)
	}

	instance := &model.Task{
		Title:                   base.Title,
		ProjectID:               base.ProjectID,
		OrganizationID:          base.OrganizationID,
		TaskType:                base.TaskType,
		TaskInstruction:         base.TaskInstruction,
		VerificationInstruction: base.VerificationInstruction,
		Notes:                   base.Notes,
		TaskStatus:              model.TaskStatusAvailable,
		VerificationStatus:      model.VerificationUnverified,
		Priority:                base.Priority,
		EstimatedHours:          base.EstimatedHours,
	}
	if _, err := m.store.CreateTask(ctx, instance); err != nil {
		return fmt.Errorf("create instance: %w", err)
	}

	next := AdvanceOccurrence(r.RecurrenceType, r.Config, r.NextOccurrence)
	if err := m.store.AdvanceRecurrence(ctx, r.ID, next, now); err != nil {
		return fmt.Errorf("advance recurrence: %w", err)
	}
	return nil
}

// AdvanceOccurrence computes the next occurrence per the schedule's
// advance rules: daily +1 day; weekly to the next config.day_of_week;
// monthly to config.day_of_month of the next month, clamped to that
// month's length.
func AdvanceOccurrence(kind model.RecurrenceType, cfg model.RecurrenceConfig, from time.Time) time.Time {
	switch kind {
	case model.RecurrenceWeekly:
		target := time.Monday
		if cfg.DayOfWeek != nil {
			target = *cfg.DayOfWeek
		}
		return nextWeekday(from, target)
	case model.RecurrenceMonthly:
		day := 1
		if cfg.DayOfMonth != nil {
			day = *cfg.DayOfMonth
		}
		return nextMonthDay(from, day)
	default: // RecurrenceDaily
		return from.AddDate(0, 0, 1)
	}
}

// nextWeekday returns the first instant strictly after from that falls
// on target's weekday, preserving from's time-of-day.
func nextWeekday(from time.Time, target time.Weekday) time.Time {
	days := (int(target) - int(from.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return from.AddDate(0, 0, days)
}

// nextMonthDay returns day of the month after from's, clamped to that
// month's actual length (e.g. day=31 in a 30-day month lands on the 30th).
func nextMonthDay(from time.Time, day int) time.Time {
	year, month, _ := from.Date()
	month++
	if month > time.December {
		month = time.January
		year++
	}
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, from.Location()).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
}
