package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/agentbroker/taskbroker/internal/model"
)

// CreateTaskRequest is the create operation's input DTO.
type CreateTaskRequest struct {
	OrganizationID          int64      `json:"organization_id" validate:"required"`
	ProjectID               *int64     `json:"project_id,omitempty"`
	Title                   string     `json:"title" validate:"required,max=500"`
	TaskType                string     `json:"task_type" validate:"required,oneof=concrete abstract epic"`
	TaskInstruction         string     `json:"task_instruction" validate:"required"`
	VerificationInstruction string     `json:"verification_instruction" validate:"required"`
	Priority                string     `json:"priority,omitempty" validate:"omitempty,oneof=low medium high critical"`
	DueDate                 *time.Time `json:"due_date,omitempty"`
	EstimatedHours          *float64   `json:"estimated_hours,omitempty" validate:"omitempty,gte=0"`
	Notes                   *string    `json:"notes,omitempty"`
}

// Create implements the Tasks "create" operation.
func (b *Broker) Create(ctx context.Context, req CreateTaskRequest) Result[*model.Task] {
	if r, ok := validated[*model.Task](b, req); !ok {
		return r
	}
	priority := model.PriorityMedium
	if req.Priority != "" {
		priority = model.Priority(req.Priority)
	}
	t := &model.Task{
		OrganizationID:          req.OrganizationID,
		ProjectID:               req.ProjectID,
		Title:                   req.Title,
		TaskType:                model.TaskType(req.TaskType),
		TaskInstruction:         req.TaskInstruction,
		VerificationInstruction: req.VerificationInstruction,
		TaskStatus:              model.TaskStatusAvailable,
		VerificationStatus:      model.VerificationUnverified,
		Priority:                priority,
		DueDate:                 req.DueDate,
		EstimatedHours:          req.EstimatedHours,
		Notes:                   req.Notes,
	}
	created, err := b.store.CreateTask(ctx, t)
	if err != nil {
		return fail[*model.Task](fmt.Errorf("broker: create task: %w", err))
	}
	if err := b.propagator.Decorate(ctx, req.OrganizationID, created); err != nil {
		return fail[*model.Task](err)
	}
	return ok(created)
}

// Get implements the Tasks "get" operation, decorated with the derived
// read-time fields.
func (b *Broker) Get(ctx context.Context, organizationID, taskID int64) Result[*model.Task] {
	t, err := b.store.GetTask(ctx, organizationID, taskID)
	if err != nil {
		return fail[*model.Task](translateNotFound(err, taskID))
	}
	if err := b.propagator.Decorate(ctx, organizationID, t); err != nil {
		return fail[*model.Task](err)
	}
	return ok(t)
}

// Query implements the Tasks "query" operation. Results are decorated in
// place.
func (b *Broker) Query(ctx context.Context, filter model.TaskFilter) Result[[]*model.Task] {
	filter.Limit = clampLimit(filter.Limit)
	tasks, err := b.store.QueryTasks(ctx, filter)
	if err != nil {
		return fail[[]*model.Task](fmt.Errorf("broker: query tasks: %w", err))
	}
	if err := b.propagator.DecorateAll(ctx, filter.OrganizationID, tasks); err != nil {
		return fail[[]*model.Task](err)
	}
	return ok(tasks)
}

// Search implements the Tasks "search" operation. An empty query returns
// up to limit of all scoped tasks (B4).
func (b *Broker) Search(ctx context.Context, organizationID int64, query string, limit int) Result[[]*model.Task] {
	tasks, err := b.store.SearchTasks(ctx, organizationID, query, clampLimit(limit))
	if err != nil {
		return fail[[]*model.Task](fmt.Errorf("broker: search tasks: %w", err))
	}
	if err := b.propagator.DecorateAll(ctx, organizationID, tasks); err != nil {
		return fail[[]*model.Task](err)
	}
	return ok(tasks)
}

// Summary implements the Tasks "summary" operation: the same filter as
// Query but trimmed to summary fields at the Store layer.
func (b *Broker) Summary(ctx context.Context, filter model.TaskFilter) Result[[]*model.Task] {
	filter.Limit = clampLimit(filter.Limit)
	tasks, err := b.store.TaskSummaries(ctx, filter)
	if err != nil {
		return fail[[]*model.Task](fmt.Errorf("broker: task summaries: %w", err))
	}
	return ok(tasks)
}

// Statistics implements the Tasks "statistics" operation.
func (b *Broker) Statistics(ctx context.Context, filter model.TaskFilter) Result[*model.TaskStatistics] {
	stats, err := b.store.TaskStatistics(ctx, filter)
	if err != nil {
		return fail[*model.TaskStatistics](fmt.Errorf("broker: task statistics: %w", err))
	}
	return ok(stats)
}

// RecentCompletions implements the Tasks "recent_completions" operation.
func (b *Broker) RecentCompletions(ctx context.Context, organizationID int64, since time.Time, limit int) Result[[]*model.Task] {
	tasks, err := b.store.RecentCompletions(ctx, organizationID, since, clampLimit(limit))
	if err != nil {
		return fail[[]*model.Task](fmt.Errorf("broker: recent completions: %w", err))
	}
	return ok(tasks)
}

// ApproachingDeadline implements the Tasks "approaching_deadline" operation.
func (b *Broker) ApproachingDeadline(ctx context.Context, organizationID int64, within time.Duration, limit int) Result[[]*model.Task] {
	tasks, err := b.store.ApproachingDeadline(ctx, organizationID, within, clampLimit(limit))
	if err != nil {
		return fail[[]*model.Task](fmt.Errorf("broker: approaching deadline: %w", err))
	}
	return ok(tasks)
}

// Overdue implements the Tasks "overdue" operation.
func (b *Broker) Overdue(ctx context.Context, organizationID int64, limit int) Result[[]*model.Task] {
	tasks, err := b.store.OverdueTasks(ctx, organizationID, clampLimit(limit))
	if err != nil {
		return fail[[]*model.Task](fmt.Errorf("broker: overdue tasks: %w", err))
	}
	return ok(tasks)
}

// Stale implements the Tasks "stale" operation: tasks in_progress past
// threshold, ahead of the reclaimer actually reclaiming them.
func (b *Broker) Stale(ctx context.Context, organizationID int64, threshold time.Duration, limit int) Result[[]*model.Task] {
	tasks, err := b.store.StaleTasks(ctx, organizationID, threshold, clampLimit(limit))
	if err != nil {
		return fail[[]*model.Task](fmt.Errorf("broker: stale tasks: %w", err))
	}
	return ok(tasks)
}

// AvailableForImplementation and AvailableForBreakdown back the
// agent-facing list views (glossary: "Breakdown agent / implementation
// agent"); bucketing is entirely a Store-layer concern. Tasks whose
// effective status comes out blocked after decoration are dropped here.
func (b *Broker) AvailableForImplementation(ctx context.Context, organizationID int64, limit int) Result[[]*model.Task] {
	tasks, err := b.store.AvailableForImplementation(ctx, organizationID, clampLimit(limit))
	if err != nil {
		return fail[[]*model.Task](fmt.Errorf("broker: available for implementation: %w", err))
	}
	if err := b.propagator.DecorateAll(ctx, organizationID, tasks); err != nil {
		return fail[[]*model.Task](err)
	}
	return ok(effectivelyAvailable(tasks))
}

// effectivelyAvailable keeps only the tasks whose effective status is
// available.
func effectivelyAvailable(ts []*model.Task) []*model.Task {
	out := make([]*model.Task, 0, len(ts))
	for _, t := range ts {
		if t.EffectiveStatus == model.TaskStatusAvailable {
			out = append(out, t)
		}
	}
	return out
}

func (b *Broker) AvailableForBreakdown(ctx context.Context, organizationID int64, limit int) Result[[]*model.Task] {
	tasks, err := b.store.AvailableForBreakdown(ctx, organizationID, clampLimit(limit))
	if err != nil {
		return fail[[]*model.Task](fmt.Errorf("broker: available for breakdown: %w", err))
	}
	if err := b.propagator.DecorateAll(ctx, organizationID, tasks); err != nil {
		return fail[[]*model.Task](err)
	}
	return ok(effectivelyAvailable(tasks))
}
