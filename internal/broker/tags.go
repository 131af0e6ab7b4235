package broker

import (
	"context"
	"fmt"

	"github.com/agentbroker/taskbroker/internal/model"
)

// CreateTagRequest is the "create_tag" operation's input DTO.
type CreateTagRequest struct {
	OrganizationID int64  `json:"organization_id" validate:"required"`
	Name           string `json:"name" validate:"required,max=100"`
}

// CreateTag implements the "create_tag" operation. Idempotent by name:
// the Store returns the existing row on a duplicate name rather than
// erroring.
func (b *Broker) CreateTag(ctx context.Context, req CreateTagRequest) Result[*model.Tag] {
	if r, ok := validated[*model.Tag](b, req); !ok {
		return r
	}
	tag, err := b.store.CreateTag(ctx, req.OrganizationID, req.Name)
	if err != nil {
		return fail[*model.Tag](fmt.Errorf("broker: create tag: %w", err))
	}
	return ok(tag)
}

// ListTags implements the "list_tags" operation.
func (b *Broker) ListTags(ctx context.Context, organizationID int64) Result[[]*model.Tag] {
	tags, err := b.store.ListTags(ctx, organizationID)
	if err != nil {
		return fail[[]*model.Tag](fmt.Errorf("broker: list tags: %w", err))
	}
	return ok(tags)
}

// AssignTag implements the "assign_tag" operation.
func (b *Broker) AssignTag(ctx context.Context, organizationID, taskID, tagID int64) Result[bool] {
	if err := b.store.AssignTag(ctx, organizationID, taskID, tagID); err != nil {
		return fail[bool](fmt.Errorf("broker: assign tag: %w", err))
	}
	return ok(true)
}

// RemoveTag implements the "remove_tag" operation.
func (b *Broker) RemoveTag(ctx context.Context, organizationID, taskID, tagID int64) Result[bool] {
	if err := b.store.RemoveTag(ctx, organizationID, taskID, tagID); err != nil {
		return fail[bool](fmt.Errorf("broker: remove tag: %w", err))
	}
	return ok(true)
}

// ListTaskTags implements the "list_task_tags" operation.
func (b *Broker) ListTaskTags(ctx context.Context, organizationID, taskID int64) Result[[]*model.Tag] {
	tags, err := b.store.ListTaskTags(ctx, organizationID, taskID)
	if err != nil {
		return fail[[]*model.Tag](fmt.Errorf("broker: list task tags: %w", err))
	}
	return ok(tags)
}
