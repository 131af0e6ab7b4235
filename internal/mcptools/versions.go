package mcptools

import (
	"context"
	"encoding/json"

	"github.com/agentbroker/taskbroker/internal/broker"
	"github.com/agentbroker/taskbroker/internal/mcp"
	"github.com/agentbroker/taskbroker/internal/model"
)

func versionTools(b *broker.Broker) []mcp.Tool {
	return []mcp.Tool{
		newTool("version_list", "List every recorded version of a task.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "task_id": {"type": "integer"}},
  "required": ["organization_id", "task_id"]
}`), func(ctx context.Context, req taskIDRequest) broker.Result[[]*model.TaskVersion] {
			return b.ListVersions(ctx, req.OrganizationID, req.TaskID)
		}),

		newTool("version_get", "Fetch a specific version of a task.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "task_id": {"type": "integer"}, "version_number": {"type": "integer"}},
  "required": ["organization_id", "task_id", "version_number"]
}`), func(ctx context.Context, req getVersionRequest) broker.Result[*model.TaskVersion] {
			return b.GetVersion(ctx, req.OrganizationID, req.TaskID, req.VersionNumber)
		}),

		newTool("version_latest", "Fetch a task's most recent version.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "task_id": {"type": "integer"}},
  "required": ["organization_id", "task_id"]
}`), func(ctx context.Context, req taskIDRequest) broker.Result[*model.TaskVersion] {
			return b.LatestVersion(ctx, req.OrganizationID, req.TaskID)
		}),

		newTool("version_diff", "Diff two versions of a task field-by-field.", json.RawMessage(`{
  "type": "object",
  "properties": {
    "organization_id": {"type": "integer"}, "task_id": {"type": "integer"},
    "from_version": {"type": "integer"}, "to_version": {"type": "integer"}
  },
  "required": ["organization_id", "task_id", "from_version", "to_version"]
}`), func(ctx context.Context, req diffVersionsRequest) broker.Result[[]model.VersionDiff] {
			return b.DiffVersions(ctx, req.OrganizationID, req.TaskID, req.FromVersion, req.ToVersion)
		}),
	}
}

type getVersionRequest struct {
	OrganizationID int64 `json:"organization_id"`
	TaskID         int64 `json:"task_id"`
	VersionNumber  int   `json:"version_number"`
}

type diffVersionsRequest struct {
	OrganizationID int64 `json:"organization_id"`
	TaskID         int64 `json:"task_id"`
	FromVersion    int   `json:"from_version"`
	ToVersion      int   `json:"to_version"`
}
