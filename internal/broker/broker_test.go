package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbroker/taskbroker/internal/audit"
	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/propagator"
	"github.com/agentbroker/taskbroker/internal/relationship"
	"github.com/agentbroker/taskbroker/internal/statemachine"
	"github.com/agentbroker/taskbroker/internal/store/storetest"
	"github.com/agentbroker/taskbroker/internal/tenant"
)

func newTestBroker() (*Broker, *storetest.Store) {
	s := storetest.New()
	graph := relationship.NewGraph(s)
	prop := propagator.New(s, graph)
	auditLog := audit.New(s)
	sm := statemachine.New(s, auditLog, prop)
	guard := tenant.New(s)
	return New(s, sm, graph, prop, auditLog, guard), s
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	b, _ := newTestBroker()
	res := b.Create(context.Background(), CreateTaskRequest{})
	assert.False(t, res.Success)
	assert.Equal(t, model.ErrorKindInvalidInput, res.ErrorKind)
}

func TestCreateDefaultsToMediumPriority(t *testing.T) {
	b, _ := newTestBroker()
	res := b.Create(context.Background(), CreateTaskRequest{
		OrganizationID:          1,
		Title:                   "do it",
		TaskType:                "concrete",
		TaskInstruction:         "do the thing",
		VerificationInstruction: "check the thing",
	})
	require.True(t, res.Success)
	assert.Equal(t, model.PriorityMedium, res.Data.Priority)
	assert.Equal(t, model.TaskStatusAvailable, res.Data.TaskStatus)
}

func TestGetReturnsNotFoundForUnknownTask(t *testing.T) {
	b, _ := newTestBroker()
	res := b.Get(context.Background(), 1, 999)
	assert.False(t, res.Success)
	assert.Equal(t, model.ErrorKindNotFound, res.ErrorKind)
}

func TestReserveCompleteVerifyHappyPath(t *testing.T) {
	b, _ := newTestBroker()
	created := b.Create(context.Background(), CreateTaskRequest{
		OrganizationID:          1,
		Title:                   "ship it",
		TaskType:                "concrete",
		TaskInstruction:         "ship",
		VerificationInstruction: "confirm shipped",
	})
	require.True(t, created.Success)
	taskID := created.Data.ID

	reserved := b.Reserve(context.Background(), ReserveRequest{OrganizationID: 1, TaskID: taskID, AgentID: "agent-1"})
	require.True(t, reserved.Success)
	assert.Equal(t, model.TaskStatusInProgress, reserved.Data.Task.TaskStatus)

	completed := b.Complete(context.Background(), CompleteRequest{OrganizationID: 1, TaskID: taskID, AgentID: "agent-1"})
	require.True(t, completed.Success)
	assert.Equal(t, model.TaskStatusComplete, completed.Data.TaskStatus)

	verified := b.Verify(context.Background(), VerifyRequest{OrganizationID: 1, TaskID: taskID, AgentID: "agent-2"})
	require.True(t, verified.Success)
	assert.Equal(t, model.VerificationVerified, verified.Data.VerificationStatus)
}

func TestUnlockFailsForWrongOwner(t *testing.T) {
	b, _ := newTestBroker()
	created := b.Create(context.Background(), CreateTaskRequest{
		OrganizationID:          1,
		Title:                   "ship it",
		TaskType:                "concrete",
		TaskInstruction:         "ship",
		VerificationInstruction: "confirm shipped",
	})
	require.True(t, created.Success)
	taskID := created.Data.ID

	reserved := b.Reserve(context.Background(), ReserveRequest{OrganizationID: 1, TaskID: taskID, AgentID: "agent-1"})
	require.True(t, reserved.Success)

	res := b.Unlock(context.Background(), UnlockRequest{OrganizationID: 1, TaskID: taskID, AgentID: "agent-2"})
	assert.False(t, res.Success)
	assert.Equal(t, model.ErrorKindNotAssigned, res.ErrorKind)
}

func TestQueryClampsLimit(t *testing.T) {
	b, _ := newTestBroker()
	res := b.Query(context.Background(), model.TaskFilter{OrganizationID: 1, Limit: -1})
	require.True(t, res.Success)
}

func TestCreateRelationshipRejectsCrossTenantChild(t *testing.T) {
	b, s := newTestBroker()
	parent := s.SeedTask(&model.Task{OrganizationID: 1, TaskStatus: model.TaskStatusAvailable})
	child := s.SeedTask(&model.Task{OrganizationID: 2, TaskStatus: model.TaskStatusAvailable})

	res := b.CreateRelationship(context.Background(), CreateRelationshipRequest{
		OrganizationID: 1,
		ParentTaskID:   parent.ID,
		ChildTaskID:    child.ID,
		Type:           "subtask",
		AgentID:        "agent-1",
	})
	assert.False(t, res.Success)
	assert.Equal(t, model.ErrorKindNotFound, res.ErrorKind)
}
