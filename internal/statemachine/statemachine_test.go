package statemachine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbroker/taskbroker/internal/audit"
	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/propagator"
	"github.com/agentbroker/taskbroker/internal/relationship"
	"github.com/agentbroker/taskbroker/internal/store/storetest"
)

func newTestMachine() (*StateMachine, *storetest.Store) {
	s := storetest.New()
	graph := relationship.NewGraph(s)
	prop := propagator.New(s, graph)
	a := audit.New(s)
	return New(s, a, prop), s
}

func seedAvailableTask(s *storetest.Store, orgID int64) *model.Task {
	return s.SeedTask(&model.Task{
		OrganizationID: orgID,
		Title:          "do the thing",
		TaskType:       model.TaskTypeConcrete,
		TaskStatus:     model.TaskStatusAvailable,
		VerificationStatus: model.VerificationUnverified,
		Priority:       model.PriorityMedium,
	})
}

func TestReserveClaimsAvailableTask(t *testing.T) {
	sm, s := newTestMachine()
	task := seedAvailableTask(s, 1)

	res, err := sm.Reserve(context.Background(), 1, task.ID, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusInProgress, res.Task.TaskStatus)
	assert.Equal(t, "agent-1", *res.Task.AssignedAgent)
	assert.Nil(t, res.Warning)
}

func TestReserveRejectsAlreadyAssigned(t *testing.T) {
	sm, s := newTestMachine()
	task := seedAvailableTask(s, 1)

	_, err := sm.Reserve(context.Background(), 1, task.ID, "agent-1")
	require.NoError(t, err)

	_, err = sm.Reserve(context.Background(), 1, task.ID, "agent-2")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrorKindNotReservable))
}

func TestReserveUnknownTaskIsNotFound(t *testing.T) {
	sm, _ := newTestMachine()
	_, err := sm.Reserve(context.Background(), 1, 999, "agent-1")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrorKindNotFound))
}

func TestReserveSurfacesStaleWarning(t *testing.T) {
	sm, s := newTestMachine()
	task := seedAvailableTask(s, 1)

	_, err := s.AddUpdate(context.Background(), &model.TaskUpdate{
		TaskID: task.ID, UpdateType: model.UpdateTypeFinding,
		Content: "unlocked due to timeout", AuthorID: "system",
		Metadata: map[string]any{"previous_agent": "agent-0"},
	})
	require.NoError(t, err)

	res, err := sm.Reserve(context.Background(), 1, task.ID, "agent-1")
	require.NoError(t, err)
	require.NotNil(t, res.Warning)
	assert.True(t, res.Warning.IsStale)
	assert.Equal(t, "agent-0", res.Warning.PreviousAgent)
}

func TestUnlockRequiresOwnership(t *testing.T) {
	sm, s := newTestMachine()
	task := seedAvailableTask(s, 1)
	_, err := sm.Reserve(context.Background(), 1, task.ID, "agent-1")
	require.NoError(t, err)

	_, err = sm.Unlock(context.Background(), 1, task.ID, "agent-2")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrorKindNotAssigned))

	updated, err := sm.Unlock(context.Background(), 1, task.ID, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusAvailable, updated.TaskStatus)
	assert.Nil(t, updated.AssignedAgent)
}

func TestCompleteRequiresOwnershipAndInProgress(t *testing.T) {
	sm, s := newTestMachine()
	task := seedAvailableTask(s, 1)

	_, err := sm.Complete(context.Background(), 1, task.ID, "agent-1", nil, nil)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrorKindNotAssigned))

	_, err = sm.Reserve(context.Background(), 1, task.ID, "agent-1")
	require.NoError(t, err)

	_, err = sm.Complete(context.Background(), 1, task.ID, "agent-2", nil, nil)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrorKindNotAssigned))

	hours := 2.5
	done, err := sm.Complete(context.Background(), 1, task.ID, "agent-1", nil, &hours)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusComplete, done.TaskStatus)
	assert.Equal(t, model.VerificationUnverified, done.VerificationStatus)
}

func TestCompleteIsIdempotentWhenAlreadyUnverifiedComplete(t *testing.T) {
	sm, s := newTestMachine()
	task := seedAvailableTask(s, 1)
	_, err := sm.Reserve(context.Background(), 1, task.ID, "agent-1")
	require.NoError(t, err)
	_, err = sm.Complete(context.Background(), 1, task.ID, "agent-1", nil, nil)
	require.NoError(t, err)

	again, err := sm.Complete(context.Background(), 1, task.ID, "agent-1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusComplete, again.TaskStatus)
}

func TestCompleteRejectsAlreadyVerified(t *testing.T) {
	sm, s := newTestMachine()
	task := seedAvailableTask(s, 1)
	_, err := sm.Reserve(context.Background(), 1, task.ID, "agent-1")
	require.NoError(t, err)
	_, err = sm.Complete(context.Background(), 1, task.ID, "agent-1", nil, nil)
	require.NoError(t, err)
	_, err = sm.Verify(context.Background(), 1, task.ID, "agent-2", nil)
	require.NoError(t, err)

	_, err = sm.Complete(context.Background(), 1, task.ID, "agent-1", nil, nil)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrorKindAlreadyVerified))
}

func TestVerifyRejectsDoubleVerify(t *testing.T) {
	sm, s := newTestMachine()
	task := seedAvailableTask(s, 1)
	_, err := sm.Reserve(context.Background(), 1, task.ID, "agent-1")
	require.NoError(t, err)
	_, err = sm.Complete(context.Background(), 1, task.ID, "agent-1", nil, nil)
	require.NoError(t, err)

	_, err = sm.Verify(context.Background(), 1, task.ID, "agent-2", nil)
	require.NoError(t, err)

	_, err = sm.Verify(context.Background(), 1, task.ID, "agent-2", nil)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrorKindAlreadyVerified))
}

func TestVerifyRejectsNonCompleteTask(t *testing.T) {
	sm, s := newTestMachine()
	task := seedAvailableTask(s, 1)

	_, err := sm.Verify(context.Background(), 1, task.ID, "agent-1", nil)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrorKindInvalidTransition))
}

func TestCompleteTriggersParentAutoComplete(t *testing.T) {
	sm, s := newTestMachine()
	graph := relationship.NewGraph(s)
	parent := s.SeedTask(&model.Task{OrganizationID: 1, Title: "parent", TaskType: model.TaskTypeEpic, TaskStatus: model.TaskStatusAvailable})
	child := seedAvailableTask(s, 1)

	_, err := graph.Create(context.Background(), 1, parent.ID, child.ID, model.RelationshipSubtask)
	require.NoError(t, err)

	_, err = sm.Reserve(context.Background(), 1, child.ID, "agent-1")
	require.NoError(t, err)
	_, err = sm.Complete(context.Background(), 1, child.ID, "agent-1", nil, nil)
	require.NoError(t, err)

	got, err := s.GetTask(context.Background(), 1, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusComplete, got.TaskStatus)
}

func TestBulkUnlockReportsPerTaskSuccess(t *testing.T) {
	sm, s := newTestMachine()
	t1 := seedAvailableTask(s, 1)
	t2 := seedAvailableTask(s, 1)
	_, err := sm.Reserve(context.Background(), 1, t1.ID, "agent-1")
	require.NoError(t, err)

	results, err := sm.BulkUnlock(context.Background(), []int64{t1.ID, t2.ID}, "agent-1", false)
	require.NoError(t, err)
	assert.True(t, results[t1.ID])
	assert.False(t, results[t2.ID])
}

func TestUpdateFieldsSnapshotsVersionOnChange(t *testing.T) {
	sm, s := newTestMachine()
	task := seedAvailableTask(s, 1)

	updated, err := sm.UpdateFields(context.Background(), 1, task.ID, "agent-1", map[string]any{
		"title": "renamed",
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)

	versions, err := s.ListVersions(context.Background(), 1, task.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].VersionNumber)
}
