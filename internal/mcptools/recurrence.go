package mcptools

import (
	"context"
	"encoding/json"

	"github.com/agentbroker/taskbroker/internal/broker"
	"github.com/agentbroker/taskbroker/internal/mcp"
	"github.com/agentbroker/taskbroker/internal/model"
)

func recurrenceTools(b *broker.Broker) []mcp.Tool {
	return []mcp.Tool{
		newTool("recurring_create", "Create a recurring task schedule.", json.RawMessage(`{
  "type": "object",
  "properties": {
    "organization_id": {"type": "integer"},
    "base_task_id": {"type": "integer"},
    "recurrence_type": {"type": "string", "enum": ["daily", "weekly", "monthly"]},
    "day_of_week": {"type": "integer", "description": "0=Sunday..6=Saturday, weekly only"},
    "day_of_month": {"type": "integer", "description": "1-31, monthly only"},
    "next_occurrence": {"type": "string", "format": "date-time"}
  },
  "required": ["organization_id", "base_task_id", "recurrence_type", "next_occurrence"]
}`), b.CreateRecurring),

		newTool("recurring_list", "List an organization's active recurring schedules.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}},
  "required": ["organization_id"]
}`), func(ctx context.Context, req orgOnlyRequest) broker.Result[[]*model.Recurrence] {
			return b.ListRecurring(ctx, req.OrganizationID)
		}),

		newTool("recurring_update", "Update fields of a recurring schedule.", json.RawMessage(`{
  "type": "object",
  "properties": {
    "organization_id": {"type": "integer"},
    "recurrence_id": {"type": "integer"},
    "fields": {"type": "object"}
  },
  "required": ["organization_id", "recurrence_id"]
}`), b.UpdateRecurring),

		newTool("recurring_deactivate", "Deactivate a recurring schedule.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "recurrence_id": {"type": "integer"}},
  "required": ["organization_id", "recurrence_id"]
}`), func(ctx context.Context, req recurrenceIDRequest) broker.Result[bool] {
			return b.DeactivateRecurring(ctx, req.OrganizationID, req.RecurrenceID)
		}),

		newTool("recurring_create_instance_now", "Materialize a recurring schedule's next instance immediately. Not idempotent.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "recurrence_id": {"type": "integer"}},
  "required": ["organization_id", "recurrence_id"]
}`), func(ctx context.Context, req recurrenceIDRequest) broker.Result[*model.Task] {
			return b.CreateInstanceNow(ctx, req.OrganizationID, req.RecurrenceID)
		}),
	}
}

type orgOnlyRequest struct {
	OrganizationID int64 `json:"organization_id"`
}

type recurrenceIDRequest struct {
	OrganizationID int64 `json:"organization_id"`
	RecurrenceID   int64 `json:"recurrence_id"`
}
