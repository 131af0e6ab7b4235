package mcptools

import (
	"context"
	"encoding/json"

	"github.com/agentbroker/taskbroker/internal/broker"
	"github.com/agentbroker/taskbroker/internal/mcp"
	"github.com/agentbroker/taskbroker/internal/model"
)

func updateTools(b *broker.Broker) []mcp.Tool {
	return []mcp.Tool{
		newTool("update_add", "Append an update to a task's timeline.", json.RawMessage(`{
  "type": "object",
  "properties": {
    "organization_id": {"type": "integer"},
    "task_id": {"type": "integer"},
    "update_type": {"type": "string", "enum": ["progress", "note", "blocker", "question", "finding"]},
    "content": {"type": "string"},
    "author_id": {"type": "string"}
  },
  "required": ["organization_id", "task_id", "update_type", "content", "author_id"]
}`), b.AddUpdate),

		newTool("update_list", "List a task's updates, most recent first.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "task_id": {"type": "integer"}, "limit": {"type": "integer"}},
  "required": ["organization_id", "task_id"]
}`), func(ctx context.Context, req taskLimitRequest) broker.Result[[]*model.TaskUpdate] {
			return b.ListUpdates(ctx, req.OrganizationID, req.TaskID, req.Limit)
		}),

		newTool("activity_feed", "List the combined update and change-history activity feed.", json.RawMessage(`{
  "type": "object",
  "properties": {
    "organization_id": {"type": "integer"},
    "task_id": {"type": "integer"},
    "agent_id": {"type": "string"},
    "since": {"type": "string", "format": "date-time"},
    "until": {"type": "string", "format": "date-time"},
    "limit": {"type": "integer"}
  },
  "required": ["organization_id"]
}`), b.ActivityFeed),
	}
}

type taskLimitRequest struct {
	OrganizationID int64 `json:"organization_id"`
	TaskID         int64 `json:"task_id"`
	Limit          int   `json:"limit,omitempty"`
}
