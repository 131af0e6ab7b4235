package broker

import (
	"context"

	"github.com/agentbroker/taskbroker/internal/model"
)

// AddUpdateRequest is the "add_update" operation's input DTO.
type AddUpdateRequest struct {
	OrganizationID int64  `json:"organization_id" validate:"required"`
	TaskID         int64  `json:"task_id" validate:"required"`
	UpdateType     string `json:"update_type" validate:"required,oneof=progress note blocker question finding"`
	Content        string `json:"content" validate:"required"`
	AuthorID       string `json:"author_id" validate:"required"`
}

// AddUpdate implements the "add_update" operation.
func (b *Broker) AddUpdate(ctx context.Context, req AddUpdateRequest) Result[*model.TaskUpdate] {
	if r, ok := validated[*model.TaskUpdate](b, req); !ok {
		return r
	}
	if _, err := b.store.GetTask(ctx, req.OrganizationID, req.TaskID); err != nil {
		return fail[*model.TaskUpdate](translateNotFound(err, req.TaskID))
	}
	u, err := b.audit.AddUpdate(ctx, &model.TaskUpdate{
		TaskID:     req.TaskID,
		UpdateType: model.UpdateType(req.UpdateType),
		Content:    req.Content,
		AuthorID:   req.AuthorID,
	})
	if err != nil {
		return fail[*model.TaskUpdate](err)
	}
	return ok(u)
}

// ListUpdates implements the "list_updates" operation.
func (b *Broker) ListUpdates(ctx context.Context, organizationID, taskID int64, limit int) Result[[]*model.TaskUpdate] {
	updates, err := b.audit.ListUpdates(ctx, organizationID, taskID, clampLimit(limit))
	if err != nil {
		return fail[[]*model.TaskUpdate](err)
	}
	return ok(updates)
}

// ActivityFeed implements the "activity_feed" operation: the combined,
// same-second-deduped ChangeHistory + TaskUpdate stream.
func (b *Broker) ActivityFeed(ctx context.Context, filter model.ActivityFeedFilter) Result[[]model.ActivityEntry] {
	filter.Limit = clampLimit(filter.Limit)
	entries, err := b.audit.ActivityFeed(ctx, filter)
	if err != nil {
		return fail[[]model.ActivityEntry](err)
	}
	return ok(entries)
}
