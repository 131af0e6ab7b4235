package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentbroker/taskbroker/internal/consistency"
	"github.com/agentbroker/taskbroker/internal/mcp"
)

type consistencyTool struct {
	auditor *consistency.Auditor
}

func (t *consistencyTool) Name() string { return "consistency_check" }
func (t *consistencyTool) Description() string {
	return "Run a read-only invariant sweep over an organization's tasks, relationships, and recurring schedules, optionally recording findings as task updates."
}
func (t *consistencyTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "organization_id": {"type": "integer"},
    "record_findings": {"type": "boolean"}
  },
  "required": ["organization_id"]
}`)
}

func (t *consistencyTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var req struct {
		OrganizationID int64 `json:"organization_id"`
		RecordFindings bool  `json:"record_findings"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
		}
	}
	report, err := t.auditor.Run(ctx, req.OrganizationID, req.RecordFindings)
	if err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	return mcp.JSONResult(report)
}

// NewConsistencyTool wraps a consistency.Auditor as an mcp.Tool.
func NewConsistencyTool(auditor *consistency.Auditor) mcp.Tool {
	return &consistencyTool{auditor: auditor}
}
