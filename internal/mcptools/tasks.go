package mcptools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agentbroker/taskbroker/internal/broker"
	"github.com/agentbroker/taskbroker/internal/mcp"
	"github.com/agentbroker/taskbroker/internal/model"
)

// staleRequest carries task_stale's threshold_hours argument.
type staleRequest struct {
	OrganizationID int64 `json:"organization_id"`
	ThresholdHours int   `json:"threshold_hours"`
	Limit          int   `json:"limit"`
}

func taskTools(b *broker.Broker) []mcp.Tool {
	return []mcp.Tool{
		newTool("task_create", "Create a new task.", json.RawMessage(`{
  "type": "object",
  "properties": {
    "organization_id": {"type": "integer"},
    "project_id": {"type": "integer"},
    "title": {"type": "string"},
    "task_type": {"type": "string", "enum": ["concrete", "abstract", "epic"]},
    "task_instruction": {"type": "string"},
    "verification_instruction": {"type": "string"},
    "priority": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
    "due_date": {"type": "string", "format": "date-time"},
    "estimated_hours": {"type": "number"},
    "notes": {"type": "string"}
  },
  "required": ["organization_id", "title", "task_type", "task_instruction", "verification_instruction"]
}`), b.Create),

		newTool("task_get", "Fetch a single task by id, decorated with derived fields.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "task_id": {"type": "integer"}},
  "required": ["organization_id", "task_id"]
}`), func(ctx context.Context, req taskIDRequest) broker.Result[*model.Task] {
			return b.Get(ctx, req.OrganizationID, req.TaskID)
		}),

		newTool("task_query", "Query tasks by filter.", json.RawMessage(`{
  "type": "object",
  "properties": {
    "organization_id": {"type": "integer"},
    "project_id": {"type": "integer"},
    "task_type": {"type": "string"},
    "task_status": {"type": "string"},
    "priority": {"type": "string"},
    "assigned_agent": {"type": "string"},
    "tag_name": {"type": "string"},
    "limit": {"type": "integer"},
    "offset": {"type": "integer"}
  },
  "required": ["organization_id"]
}`), b.Query),

		newTool("task_search", "Full-text search over tasks scoped to an organization.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "query": {"type": "string"}, "limit": {"type": "integer"}},
  "required": ["organization_id"]
}`), func(ctx context.Context, req searchRequest) broker.Result[[]*model.Task] {
			return b.Search(ctx, req.OrganizationID, req.Query, req.Limit)
		}),

		newTool("task_summary", "List trimmed task summaries by filter.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "limit": {"type": "integer"}},
  "required": ["organization_id"]
}`), b.Summary),

		newTool("task_statistics", "Aggregate task statistics by filter.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}},
  "required": ["organization_id"]
}`), b.Statistics),

		newTool("task_recent_completions", "List tasks completed since a timestamp.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "since": {"type": "string", "format": "date-time"}, "limit": {"type": "integer"}},
  "required": ["organization_id", "since"]
}`), func(ctx context.Context, req sinceRequest) broker.Result[[]*model.Task] {
			return b.RecentCompletions(ctx, req.OrganizationID, req.Since, req.Limit)
		}),

		newTool("task_approaching_deadline", "List tasks due within a window.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "within_hours": {"type": "integer"}, "limit": {"type": "integer"}},
  "required": ["organization_id", "within_hours"]
}`), func(ctx context.Context, req withinRequest) broker.Result[[]*model.Task] {
			return b.ApproachingDeadline(ctx, req.OrganizationID, time.Duration(req.WithinHours)*time.Hour, req.Limit)
		}),

		newTool("task_overdue", "List tasks past their due date.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "limit": {"type": "integer"}},
  "required": ["organization_id"]
}`), func(ctx context.Context, req limitRequest) broker.Result[[]*model.Task] {
			return b.Overdue(ctx, req.OrganizationID, req.Limit)
		}),

		newTool("task_stale", "List in_progress tasks past an inactivity threshold.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "threshold_hours": {"type": "integer"}, "limit": {"type": "integer"}},
  "required": ["organization_id", "threshold_hours"]
}`), func(ctx context.Context, req staleRequest) broker.Result[[]*model.Task] {
			return b.Stale(ctx, req.OrganizationID, time.Duration(req.ThresholdHours)*time.Hour, req.Limit)
		}),

		newTool("task_available_for_implementation", "List tasks available for the implementation agent.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "limit": {"type": "integer"}},
  "required": ["organization_id"]
}`), func(ctx context.Context, req limitRequest) broker.Result[[]*model.Task] {
			return b.AvailableForImplementation(ctx, req.OrganizationID, req.Limit)
		}),

		newTool("task_available_for_breakdown", "List tasks available for the breakdown agent.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "limit": {"type": "integer"}},
  "required": ["organization_id"]
}`), func(ctx context.Context, req limitRequest) broker.Result[[]*model.Task] {
			return b.AvailableForBreakdown(ctx, req.OrganizationID, req.Limit)
		}),
	}
}

type taskIDRequest struct {
	OrganizationID int64 `json:"organization_id"`
	TaskID         int64 `json:"task_id"`
}

type searchRequest struct {
	OrganizationID int64  `json:"organization_id"`
	Query          string `json:"query"`
	Limit          int    `json:"limit"`
}

type sinceRequest struct {
	OrganizationID int64     `json:"organization_id"`
	Since          time.Time `json:"since"`
	Limit          int       `json:"limit"`
}

type withinRequest struct {
	OrganizationID int64 `json:"organization_id"`
	WithinHours    int   `json:"within_hours"`
	Limit          int   `json:"limit"`
}

type limitRequest struct {
	OrganizationID int64 `json:"organization_id"`
	Limit          int   `json:"limit"`
}
