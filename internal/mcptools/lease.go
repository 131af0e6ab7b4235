package mcptools

import (
	"encoding/json"

	"github.com/agentbroker/taskbroker/internal/broker"
	"github.com/agentbroker/taskbroker/internal/mcp"
)

func leaseTools(b *broker.Broker) []mcp.Tool {
	return []mcp.Tool{
		newTool("lease_reserve", "Reserve a task for an agent, moving it to in_progress.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "task_id": {"type": "integer"}, "agent_id": {"type": "string"}},
  "required": ["organization_id", "task_id", "agent_id"]
}`), b.Reserve),

		newTool("lease_unlock", "Release a task's lease without completing it.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "task_id": {"type": "integer"}, "agent_id": {"type": "string"}},
  "required": ["organization_id", "task_id", "agent_id"]
}`), b.Unlock),

		newTool("lease_complete", "Mark a reserved task complete.", json.RawMessage(`{
  "type": "object",
  "properties": {
    "organization_id": {"type": "integer"}, "task_id": {"type": "integer"}, "agent_id": {"type": "string"},
    "notes": {"type": "string"}, "actual_hours": {"type": "number"}
  },
  "required": ["organization_id", "task_id", "agent_id"]
}`), b.Complete),

		newTool("lease_verify", "Verify a completed task.", json.RawMessage(`{
  "type": "object",
  "properties": {
    "organization_id": {"type": "integer"}, "task_id": {"type": "integer"}, "agent_id": {"type": "string"},
    "notes": {"type": "string"}
  },
  "required": ["organization_id", "task_id", "agent_id"]
}`), b.Verify),

		newTool("lease_bulk_unlock", "Unlock multiple tasks in one call, returning per-id success.", json.RawMessage(`{
  "type": "object",
  "properties": {
    "task_ids": {"type": "array", "items": {"type": "integer"}},
    "agent_id": {"type": "string"},
    "strict": {"type": "boolean"}
  },
  "required": ["task_ids", "agent_id"]
}`), b.BulkUnlock),
	}
}
