package mcptools

import (
	"context"
	"encoding/json"

	"github.com/agentbroker/taskbroker/internal/broker"
	"github.com/agentbroker/taskbroker/internal/mcp"
	"github.com/agentbroker/taskbroker/internal/model"
)

func templateTools(b *broker.Broker) []mcp.Tool {
	return []mcp.Tool{
		newTool("template_create", "Create a reusable task template.", json.RawMessage(`{
  "type": "object",
  "properties": {
    "organization_id": {"type": "integer"},
    "name": {"type": "string"},
    "task_type": {"type": "string", "enum": ["concrete", "abstract", "epic"]},
    "title_template": {"type": "string"},
    "task_instruction": {"type": "string"},
    "verification_instruction": {"type": "string"},
    "priority": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
    "estimated_hours": {"type": "number"}
  },
  "required": ["organization_id", "name", "task_type", "title_template", "task_instruction", "verification_instruction"]
}`), b.CreateTemplate),

		newTool("template_list", "List an organization's templates.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}},
  "required": ["organization_id"]
}`), func(ctx context.Context, req orgOnlyRequest) broker.Result[[]*model.Template] {
			return b.ListTemplates(ctx, req.OrganizationID)
		}),

		newTool("template_get", "Fetch a template by id.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "template_id": {"type": "integer"}},
  "required": ["organization_id", "template_id"]
}`), func(ctx context.Context, req templateIDRequest) broker.Result[*model.Template] {
			return b.GetTemplate(ctx, req.OrganizationID, req.TemplateID)
		}),

		newTool("template_create_task", "Create a new task from a template.", json.RawMessage(`{
  "type": "object",
  "properties": {
    "organization_id": {"type": "integer"},
    "template_id": {"type": "integer"},
    "project_id": {"type": "integer"},
    "title_override": {"type": "string"}
  },
  "required": ["organization_id", "template_id"]
}`), b.CreateTaskFromTemplate),
	}
}

type templateIDRequest struct {
	OrganizationID int64 `json:"organization_id"`
	TemplateID     int64 `json:"template_id"`
}
