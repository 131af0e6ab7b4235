package mcptools

import (
	"context"
	"encoding/json"

	"github.com/agentbroker/taskbroker/internal/broker"
	"github.com/agentbroker/taskbroker/internal/mcp"
	"github.com/agentbroker/taskbroker/internal/model"
)

func tagTools(b *broker.Broker) []mcp.Tool {
	return []mcp.Tool{
		newTool("tag_create", "Create a tag, idempotent by name.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "name": {"type": "string"}},
  "required": ["organization_id", "name"]
}`), b.CreateTag),

		newTool("tag_list", "List an organization's tags.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}},
  "required": ["organization_id"]
}`), func(ctx context.Context, req orgOnlyRequest) broker.Result[[]*model.Tag] {
			return b.ListTags(ctx, req.OrganizationID)
		}),

		newTool("tag_assign", "Assign a tag to a task.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "task_id": {"type": "integer"}, "tag_id": {"type": "integer"}},
  "required": ["organization_id", "task_id", "tag_id"]
}`), func(ctx context.Context, req taskTagRequest) broker.Result[bool] {
			return b.AssignTag(ctx, req.OrganizationID, req.TaskID, req.TagID)
		}),

		newTool("tag_remove", "Remove a tag from a task.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "task_id": {"type": "integer"}, "tag_id": {"type": "integer"}},
  "required": ["organization_id", "task_id", "tag_id"]
}`), func(ctx context.Context, req taskTagRequest) broker.Result[bool] {
			return b.RemoveTag(ctx, req.OrganizationID, req.TaskID, req.TagID)
		}),

		newTool("tag_list_for_task", "List a task's assigned tags.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "task_id": {"type": "integer"}},
  "required": ["organization_id", "task_id"]
}`), func(ctx context.Context, req taskIDRequest) broker.Result[[]*model.Tag] {
			return b.ListTaskTags(ctx, req.OrganizationID, req.TaskID)
		}),
	}
}

type taskTagRequest struct {
	OrganizationID int64 `json:"organization_id"`
	TaskID         int64 `json:"task_id"`
	TagID          int64 `json:"tag_id"`
}
