package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/recurrence"
)

// CreateRecurringRequest is the "create_recurring" operation's input DTO.
type CreateRecurringRequest struct {
	OrganizationID int64         `json:"organization_id" validate:"required"`
	BaseTaskID     int64         `json:"base_task_id" validate:"required"`
	RecurrenceType string        `json:"recurrence_type" validate:"required,oneof=daily weekly monthly"`
	DayOfWeek      *time.Weekday `json:"day_of_week,omitempty"`
	DayOfMonth     *int          `json:"day_of_month,omitempty" validate:"omitempty,gte=1,lte=31"`
	NextOccurrence time.Time     `json:"next_occurrence" validate:"required"`
}

// CreateRecurring implements the "create_recurring" operation.
func (b *Broker) CreateRecurring(ctx context.Context, req CreateRecurringRequest) Result[*model.Recurrence] {
	if r, ok := validated[*model.Recurrence](b, req); !ok {
		return r
	}
	if _, err := b.store.GetTask(ctx, req.OrganizationID, req.BaseTaskID); err != nil {
		return fail[*model.Recurrence](translateNotFound(err, req.BaseTaskID))
	}
	created, err := b.store.CreateRecurrence(ctx, &model.Recurrence{
		BaseTaskID:     req.BaseTaskID,
		OrganizationID: req.OrganizationID,
		RecurrenceType: model.RecurrenceType(req.RecurrenceType),
		Config:         model.RecurrenceConfig{DayOfWeek: req.DayOfWeek, DayOfMonth: req.DayOfMonth},
		NextOccurrence: req.NextOccurrence,
		IsActive:       true,
	})
	if err != nil {
		return fail[*model.Recurrence](fmt.Errorf("broker: create recurring: %w", err))
	}
	return ok(created)
}

// ListRecurring implements the "list_recurring" operation.
func (b *Broker) ListRecurring(ctx context.Context, organizationID int64) Result[[]*model.Recurrence] {
	rs, err := b.store.ListActiveRecurrences(ctx, organizationID)
	if err != nil {
		return fail[[]*model.Recurrence](fmt.Errorf("broker: list recurring: %w", err))
	}
	return ok(rs)
}

// UpdateRecurringRequest is the "update_recurring" operation's input DTO.
type UpdateRecurringRequest struct {
	OrganizationID int64          `json:"organization_id" validate:"required"`
	RecurrenceID   int64          `json:"recurrence_id" validate:"required"`
	Fields         map[string]any `json:"fields,omitempty"`
}

// UpdateRecurring implements the "update_recurring" operation.
func (b *Broker) UpdateRecurring(ctx context.Context, req UpdateRecurringRequest) Result[*model.Recurrence] {
	if r, ok := validated[*model.Recurrence](b, req); !ok {
		return r
	}
	updated, err := b.store.UpdateRecurrence(ctx, req.OrganizationID, req.RecurrenceID, req.Fields)
	if err != nil {
		return fail[*model.Recurrence](fmt.Errorf("broker: update recurring: %w", err))
	}
	return ok(updated)
}

// DeactivateRecurring implements the "deactivate_recurring" operation.
func (b *Broker) DeactivateRecurring(ctx context.Context, organizationID, recurrenceID int64) Result[bool] {
	if err := b.store.DeactivateRecurrence(ctx, organizationID, recurrenceID); err != nil {
		return fail[bool](fmt.Errorf("broker: deactivate recurring: %w", err))
	}
	return ok(true)
}

// CreateInstanceNow implements the "create_instance_now" operation: the
// on-demand materialization primitive. It clones the base task the same
// way the RecurrenceMaterializer's tick does and advances the schedule
// with the same recurrence.AdvanceOccurrence rule. It is NOT idempotent:
// each call materializes a new instance and advances the schedule by one
// occurrence.
func (b *Broker) CreateInstanceNow(ctx context.Context, organizationID, recurrenceID int64) Result[*model.Task] {
	rs, err := b.store.ListActiveRecurrences(ctx, organizationID)
	if err != nil {
		return fail[*model.Task](fmt.Errorf("broker: create instance now: %w", err))
	}
	var target *model.Recurrence
	for _, r := range rs {
		if r.ID == recurrenceID {
			target = r
			break
		}
	}
	if target == nil {
		return fail[*model.Task](model.NewError(model.ErrorKindNotFound, fmt.Sprintf("recurrence %d not found", recurrenceID), nil))
	}

	base, err := b.store.GetTask(ctx, organizationID, target.BaseTaskID)
	if err != nil {
		return fail[*model.Task](translateNotFound(err, target.BaseTaskID))
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
	created, err := b.store.CreateTask(ctx, instance)
	if err != nil {
		return fail[*model.Task](fmt.Errorf("broker: create instance now: %w", err))
	}

	now := time.Now().UTC()
	next := recurrence.AdvanceOccurrence(target.RecurrenceType, target.Config, target.NextOccurrence)
	if err := b.store.AdvanceRecurrence(ctx, target.ID, next, now); err != nil {
		return fail[*model.Task](fmt.Errorf("broker: advance recurrence: %w", err))
	}
	return ok(created)
}
