package mcptools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbroker/taskbroker/internal/audit"
	"github.com/agentbroker/taskbroker/internal/broker"
	"github.com/agentbroker/taskbroker/internal/mcp"
	"github.com/agentbroker/taskbroker/internal/propagator"
	"github.com/agentbroker/taskbroker/internal/relationship"
	"github.com/agentbroker/taskbroker/internal/statemachine"
	"github.com/agentbroker/taskbroker/internal/store/storetest"
	"github.com/agentbroker/taskbroker/internal/tenant"
)

func newTestBrokerForTools() *broker.Broker {
	s := storetest.New()
	graph := relationship.NewGraph(s)
	prop := propagator.New(s, graph)
	auditLog := audit.New(s)
	sm := statemachine.New(s, auditLog, prop)
	guard := tenant.New(s)
	return broker.New(s, sm, graph, prop, auditLog, guard)
}

func findTool(t *testing.T, tools []mcp.Tool, name string) mcp.Tool {
	t.Helper()
	for _, tool := range tools {
		if tool.Name() == name {
			return tool
		}
	}
	t.Fatalf("tool %q not registered", name)
	return nil
}

func TestTaskCreateSuccessReturnsNonErrorResult(t *testing.T) {
	b := newTestBrokerForTools()
	tool := findTool(t, taskTools(b), "task_create")

	params, err := json.Marshal(map[string]any{
		"organization_id":          1,
		"title":                    "do the thing",
		"task_type":                "concrete",
		"task_instruction":         "do it",
		"verification_instruction": "check it",
	})
	require.NoError(t, err)

	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Contains(t, res.Content[0].Text, "do the thing")
}

func TestTaskGetNotFoundBecomesIsErrorResult(t *testing.T) {
	b := newTestBrokerForTools()
	tool := findTool(t, taskTools(b), "task_get")

	params, err := json.Marshal(map[string]any{"organization_id": 1, "task_id": 999})
	require.NoError(t, err)

	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err, "a logical broker failure must never surface as a transport error")
	require.True(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Contains(t, res.Content[0].Text, "not found")
}

func TestTaskCreateInvalidInputBecomesIsErrorResult(t *testing.T) {
	b := newTestBrokerForTools()
	tool := findTool(t, taskTools(b), "task_create")

	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestExecuteRejectsMalformedParams(t *testing.T) {
	b := newTestBrokerForTools()
	tool := findTool(t, taskTools(b), "task_get")

	res, err := tool.Execute(context.Background(), json.RawMessage(`not json`))
	require.NoError(t, err)
	require.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "invalid parameters")
}

func TestAllRegistersEveryToolGroup(t *testing.T) {
	b := newTestBrokerForTools()
	tools := All(b)

	names := make(map[string]bool)
	for _, tool := range tools {
		names[tool.Name()] = true
	}
	for _, want := range []string{"task_create", "lease_reserve", "relationship_create", "tag_create", "template_create", "comment_create", "api_key_create"} {
		assert.True(t, names[want], "expected %s to be registered", want)
	}
}
