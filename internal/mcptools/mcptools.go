// Package mcptools adapts every BrokerAPI operation into an MCP tool.
// Each tool unmarshals its JSON-RPC params into a request struct, calls
// the corresponding broker.Broker method, and translates the result: a
// logical failure (Result.Success == false) becomes an isError tool
// result, never a JSON-RPC protocol error, so a calling agent always
// gets a structured answer back instead of a transport-level fault.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentbroker/taskbroker/internal/broker"
	"github.com/agentbroker/taskbroker/internal/mcp"
)

// jsonTool wraps a broker.Broker method of shape func(context.Context, Req) broker.Result[Resp]
// as an mcp.Tool.
type jsonTool[Req any, Resp any] struct {
	name        string
	description string
	schema      json.RawMessage
	handle      func(ctx context.Context, req Req) broker.Result[Resp]
}

func newTool[Req any, Resp any](name, description string, schema json.RawMessage, handle func(context.Context, Req) broker.Result[Resp]) mcp.Tool {
	return &jsonTool[Req, Resp]{name: name, description: description, schema: schema, handle: handle}
}

func (t *jsonTool[Req, Resp]) Name() string               { return t.name }
func (t *jsonTool[Req, Resp]) Description() string        { return t.description }
func (t *jsonTool[Req, Resp]) InputSchema() json.RawMessage { return t.schema }

func (t *jsonTool[Req, Resp]) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var req Req
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
		}
	}
	res := t.handle(ctx, req)
	if !res.Success {
		return mcp.ErrorResult(formatError(res)), nil
	}
	return mcp.JSONResult(res.Data)
}

func formatError[T any](res broker.Result[T]) string {
	if len(res.ErrorDetails) == 0 {
		return res.Error
	}
	b, err := json.Marshal(res.ErrorDetails)
	if err != nil {
		return res.Error
	}
	return fmt.Sprintf("%s: %s", res.Error, string(b))
}

// All returns every registered tool, grouped by concern: tasks, lease,
// relationships, updates, versions, recurrence, tags, templates,
// comments, tenancy.
func All(b *broker.Broker) []mcp.Tool {
	var tools []mcp.Tool
	tools = append(tools, taskTools(b)...)
	tools = append(tools, leaseTools(b)...)
	tools = append(tools, relationshipTools(b)...)
	tools = append(tools, updateTools(b)...)
	tools = append(tools, versionTools(b)...)
	tools = append(tools, recurrenceTools(b)...)
	tools = append(tools, tagTools(b)...)
	tools = append(tools, templateTools(b)...)
	tools = append(tools, commentTools(b)...)
	tools = append(tools, tenancyTools(b)...)
	return tools
}
