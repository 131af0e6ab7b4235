// Package audit wraps the three append-only history streams (change
// history, task updates, task versions) into the single AuditLog
// component other packages record through.
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store"
)

// Log is the AuditLog component.
type Log struct {
	store store.Store
}

// New builds a Log over s.
func New(s store.Store) *Log {
	return &Log{store: s}
}

// RecordChange appends a ChangeHistory entry.
func (l *Log) RecordChange(ctx context.Context, taskID int64, agentID string, changeType model.ChangeType, field, oldValue, newValue *string) error {
	_, err := l.store.RecordChange(ctx, &model.ChangeHistory{
		TaskID: taskID, AgentID: agentID, ChangeType: changeType,
		FieldName: field, OldValue: oldValue, NewValue: newValue,
	})
	if err != nil {
		return fmt.Errorf("audit: record change: %w", err)
	}
	return nil
}

// AddUpdate appends an agent-authored narrative entry.
func (l *Log) AddUpdate(ctx context.Context, u *model.TaskUpdate) (*model.TaskUpdate, error) {
	return l.store.AddUpdate(ctx, u)
}

// ListUpdates, ListHistory and ActivityFeed are read-path passthroughs;
// AuditLog exists to centralize the write path, not to hide reads.
func (l *Log) ListUpdates(ctx context.Context, organizationID, taskID int64, limit int) ([]*model.TaskUpdate, error) {
	return l.store.ListUpdates(ctx, organizationID, taskID, limit)
}

func (l *Log) ListHistory(ctx context.Context, organizationID, taskID int64, limit int) ([]*model.ChangeHistory, error) {
	return l.store.ListHistory(ctx, organizationID, taskID, limit)
}

func (l *Log) ActivityFeed(ctx context.Context, filter model.ActivityFeedFilter) ([]model.ActivityEntry, error) {
	return l.store.ActivityFeed(ctx, filter)
}

// SnapshotIfChanged compares before and after across model.VersionedFields
// (via model.DiffVersions, reusing the same field-diffing logic the
// version-history API uses) and, if any of them differ, writes a new
// TaskVersion snapshot of after and one field_updated change-history
// entry per changed field. It is called by the state machine's
// update_fields path.
func (l *Log) SnapshotIfChanged(ctx context.Context, agentID string, before, after *model.Task) error {
	beforeV := taskToVersion(before)
	afterV := taskToVersion(after)
	diffs := model.DiffVersions(&beforeV, &afterV)
	if len(diffs) == 0 {
		return nil
	}
	for _, d := range diffs {
		field, oldV, newV := d.Field, d.OldValue, d.NewValue
		var oldPtr, newPtr *string
		if oldV != "" {
			oldPtr = &oldV
		}
		if newV != "" {
			newPtr = &newV
		}
		if err := l.RecordChange(ctx, after.ID, agentID, model.ChangeFieldUpdated, &field, oldPtr, newPtr); err != nil {
			return err
		}
	}

	latest, err := l.store.LatestVersion(ctx, after.OrganizationID, after.ID)
	nextNumber := 1
	if err == nil && latest != nil {
		nextNumber = latest.VersionNumber + 1
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("audit: latest version: %w", err)
	}
	_, err = l.store.CreateVersion(ctx, &model.TaskVersion{
		TaskID: after.ID, VersionNumber: nextNumber, Title: after.Title, TaskType: after.TaskType,
		TaskInstruction: after.TaskInstruction, VerificationInstruction: after.VerificationInstruction,
		Priority: after.Priority, EstimatedHours: after.EstimatedHours, DueDate: after.DueDate, Notes: after.Notes,
	})
	if err != nil {
		return fmt.Errorf("audit: create version: %w", err)
	}
	return nil
}

func taskToVersion(t *model.Task) model.TaskVersion {
	return model.TaskVersion{
		Title: t.Title, TaskType: t.TaskType, TaskInstruction: t.TaskInstruction,
		VerificationInstruction: t.VerificationInstruction, Priority: t.Priority,
		EstimatedHours: t.EstimatedHours, DueDate: t.DueDate, Notes: t.Notes,
	}
}
