package mcptools

import (
	"context"
	"encoding/json"

	"github.com/agentbroker/taskbroker/internal/broker"
	"github.com/agentbroker/taskbroker/internal/mcp"
	"github.com/agentbroker/taskbroker/internal/model"
)

func tenancyTools(b *broker.Broker) []mcp.Tool {
	return []mcp.Tool{
		newTool("project_list", "List an organization's projects.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}},
  "required": ["organization_id"]
}`), func(ctx context.Context, req orgOnlyRequest) broker.Result[[]*model.Project] {
			return b.ListProjects(ctx, req.OrganizationID)
		}),

		newTool("project_create", "Create a project within an organization.", json.RawMessage(`{
  "type": "object",
  "properties": {
    "organization_id": {"type": "integer"},
    "name": {"type": "string"},
    "local_path": {"type": "string"},
    "origin_url": {"type": "string"},
    "description": {"type": "string"}
  },
  "required": ["organization_id", "name"]
}`), b.CreateProject),

		newTool("api_key_create", "Mint a new API credential for a project. The raw key is returned only once.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "project_id": {"type": "integer"}, "name": {"type": "string"}},
  "required": ["organization_id", "project_id", "name"]
}`), b.CreateAPIKey),

		newTool("api_key_list", "List a project's API credentials (hashed, never the raw key).", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "project_id": {"type": "integer"}},
  "required": ["organization_id", "project_id"]
}`), func(ctx context.Context, req projectOnlyRequest) broker.Result[[]*model.APICredential] {
			return b.ListAPIKeys(ctx, req.OrganizationID, req.ProjectID)
		}),

		newTool("api_key_revoke", "Revoke an API credential.", json.RawMessage(`{
  "type": "object",
  "properties": {"organization_id": {"type": "integer"}, "credential_id": {"type": "integer"}},
  "required": ["organization_id", "credential_id"]
}`), func(ctx context.Context, req credentialIDRequest) broker.Result[bool] {
			return b.RevokeAPIKey(ctx, req.OrganizationID, req.CredentialID)
		}),

		newTool("api_key_rotate", "Revoke an API credential and mint its replacement in one call.", json.RawMessage(`{
  "type": "object",
  "properties": {
    "organization_id": {"type": "integer"}, "project_id": {"type": "integer"},
    "credential_id": {"type": "integer"}, "name": {"type": "string"}
  },
  "required": ["organization_id", "project_id", "credential_id", "name"]
}`), b.RotateAPIKey),
	}
}

type projectOnlyRequest struct {
	OrganizationID int64 `json:"organization_id"`
	ProjectID      int64 `json:"project_id"`
}

type credentialIDRequest struct {
	OrganizationID int64 `json:"organization_id"`
	CredentialID   int64 `json:"credential_id"`
}
