package mcptools

import (
	"context"
	"encoding/json"

	"github.com/agentbroker/taskbroker/internal/broker"
	"github.com/agentbroker/taskbroker/internal/mcp"
	"github.com/agentbroker/taskbroker/internal/model"
)

func commentTools(b *broker.Broker) []mcp.Tool {
	return []mcp.Tool{
		newTool("comment_create", "Create a comment on a task, optionally as a reply.", json.RawMessage(`{
  "type": "object",
  "properties": {
    "organization_id": {"type": "integer"},
    "task_id": {"type": "integer"},
    "parent_comment_id": {"type": "integer"},
    "author_id": {"type": "string"},
    "content": {"type": "string"},
    "mentioned_agents": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["organization_id", "task_id", "author_id", "content"]
}`), b.CreateComment),

		newTool("comment_list_for_task", "List a task's top-level comments.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "task_id": {"type": "integer"}},
  "required": ["organization_id", "task_id"]
}`), func(ctx context.Context, req taskIDRequest) broker.Result[[]*model.Comment] {
			return b.ListTaskComments(ctx, req.OrganizationID, req.TaskID)
		}),

		newTool("comment_get_thread", "Fetch a comment and every reply beneath it.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "root_comment_id": {"type": "integer"}},
  "required": ["organization_id", "root_comment_id"]
}`), func(ctx context.Context, req threadRequest) broker.Result[[]*model.Comment] {
			return b.GetThread(ctx, req.OrganizationID, req.RootCommentID)
		}),

		newTool("comment_update", "Edit a comment's content.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "comment_id": {"type": "integer"}, "content": {"type": "string"}},
  "required": ["organization_id", "comment_id", "content"]
}`), func(ctx context.Context, req updateCommentRequest) broker.Result[*model.Comment] {
			return b.UpdateComment(ctx, req.OrganizationID, req.CommentID, req.Content)
		}),

		newTool("comment_delete", "Delete a comment and cascade-delete its replies.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "comment_id": {"type": "integer"}},
  "required": ["organization_id", "comment_id"]
}`), func(ctx context.Context, req commentIDRequest) broker.Result[bool] {
			return b.DeleteComment(ctx, req.OrganizationID, req.CommentID)
		}),
	}
}

type threadRequest struct {
	OrganizationID int64 `json:"organization_id"`
	RootCommentID  int64 `json:"root_comment_id"`
}

type updateCommentRequest struct {
	OrganizationID int64  `json:"organization_id"`
	CommentID      int64  `json:"comment_id"`
	Content        string `json:"content"`
}

type commentIDRequest struct {
	OrganizationID int64 `json:"organization_id"`
	CommentID      int64 `json:"comment_id"`
}
