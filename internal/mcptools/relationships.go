package mcptools

import (
	"context"
	"encoding/json"

	"github.com/agentbroker/taskbroker/internal/broker"
	"github.com/agentbroker/taskbroker/internal/mcp"
	"github.com/agentbroker/taskbroker/internal/model"
)

func relationshipTools(b *broker.Broker) []mcp.Tool {
	return []mcp.Tool{
		newTool("relationship_create", "Create a relationship between two tasks.", json.RawMessage(`{
  "type": "object",
  "properties": {
    "organization_id": {"type": "integer"},
    "parent_task_id": {"type": "integer"},
    "child_task_id": {"type": "integer"},
    "type": {"type": "string", "enum": ["subtask", "blocking", "blocked_by", "followup", "related"]},
    "agent_id": {"type": "string"}
  },
  "required": ["organization_id", "parent_task_id", "child_task_id", "type", "agent_id"]
}`), b.CreateRelationship),

		newTool("relationship_list_related", "List a task's relationships, optionally filtered by type.", json.RawMessage(`{
  "type": "object",
  "properties": {
    "organization_id": {"type": "integer"},
    "task_id": {"type": "integer"},
    "type": {"type": "string"}
  },
  "required": ["organization_id", "task_id"]
}`), func(ctx context.Context, req listRelatedRequest) broker.Result[[]*model.Relationship] {
			var relType *model.RelationshipType
			if req.Type != "" {
				t := model.RelationshipType(req.Type)
				relType = &t
			}
			return b.ListRelated(ctx, req.OrganizationID, req.TaskID, relType)
		}),
	}
}

type listRelatedRequest struct {
	OrganizationID int64  `json:"organization_id"`
	TaskID         int64  `json:"task_id"`
	Type           string `json:"type,omitempty"`
}
