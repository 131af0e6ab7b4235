package broker

import (
	"context"
	"fmt"

	"github.com/agentbroker/taskbroker/internal/model"
)

// CreateCommentRequest is the comments "create" operation's input DTO.
type CreateCommentRequest struct {
	OrganizationID  int64    `json:"organization_id" validate:"required"`
	TaskID          int64    `json:"task_id" validate:"required"`
	ParentCommentID *int64   `json:"parent_comment_id,omitempty"`
	AuthorID        string   `json:"author_id" validate:"required"`
	Content         string   `json:"content" validate:"required"`
	MentionedAgents []string `json:"mentioned_agents,omitempty"`
}

// CreateComment implements the comments "create" operation.
func (b *Broker) CreateComment(ctx context.Context, req CreateCommentRequest) Result[*model.Comment] {
	if r, ok := validated[*model.Comment](b, req); !ok {
		return r
	}
	if _, err := b.store.GetTask(ctx, req.OrganizationID, req.TaskID); err != nil {
		return fail[*model.Comment](translateNotFound(err, req.TaskID))
	}
	created, err := b.store.CreateComment(ctx, &model.Comment{
		TaskID:          req.TaskID,
		ParentCommentID: req.ParentCommentID,
		AuthorID:        req.AuthorID,
		Content:         req.Content,
		MentionedAgents: req.MentionedAgents,
	})
	if err != nil {
		return fail[*model.Comment](fmt.Errorf("broker: create comment: %w", err))
	}
	return ok(created)
}

// ListTaskComments implements the "list_task_comments" operation.
func (b *Broker) ListTaskComments(ctx context.Context, organizationID, taskID int64) Result[[]*model.Comment] {
	comments, err := b.store.ListTaskComments(ctx, organizationID, taskID)
	if err != nil {
		return fail[[]*model.Comment](fmt.Errorf("broker: list task comments: %w", err))
	}
	return ok(comments)
}

// GetThread implements the "get_thread" operation.
func (b *Broker) GetThread(ctx context.Context, organizationID, rootCommentID int64) Result[[]*model.Comment] {
	thread, err := b.store.GetThread(ctx, organizationID, rootCommentID)
	if err != nil {
		return fail[[]*model.Comment](fmt.Errorf("broker: get thread: %w", err))
	}
	return ok(thread)
}

// UpdateComment implements the comments "update" operation.
func (b *Broker) UpdateComment(ctx context.Context, organizationID, commentID int64, content string) Result[*model.Comment] {
	updated, err := b.store.UpdateComment(ctx, organizationID, commentID, content)
	if err != nil {
		return fail[*model.Comment](fmt.Errorf("broker: update comment: %w", err))
	}
	return ok(updated)
}

// DeleteComment implements the comments "delete" operation. Cascades to
// every reply of commentID in a single transaction.
func (b *Broker) DeleteComment(ctx context.Context, organizationID, commentID int64) Result[bool] {
	if err := b.store.DeleteComment(ctx, organizationID, commentID); err != nil {
		return fail[bool](fmt.Errorf("broker: delete comment: %w", err))
	}
	return ok(true)
}
