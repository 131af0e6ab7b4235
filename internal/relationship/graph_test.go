package relationship

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store"
	"github.com/agentbroker/taskbroker/internal/store/storetest"
)

func seedTask(s *storetest.Store, organizationID int64) int64 {
	t := s.SeedTask(&model.Task{OrganizationID: organizationID, TaskStatus: model.TaskStatusAvailable})
	return t.ID
}

func TestGraphCreateRejectsSelfEdge(t *testing.T) {
	s := storetest.New()
	g := NewGraph(s)
	task := seedTask(s, 1)

	_, err := g.Create(context.Background(), 1, task, task, model.RelationshipSubtask)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrorKindInvalidInput))
}

func TestGraphCreateRejectsInvalidType(t *testing.T) {
	s := storetest.New()
	g := NewGraph(s)
	parent, child := seedTask(s, 1), seedTask(s, 1)

	_, err := g.Create(context.Background(), 1, parent, child, model.RelationshipType("bogus"))
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrorKindInvalidInput))
}

func TestGraphCreateRejectsCrossTenantChild(t *testing.T) {
	s := storetest.New()
	g := NewGraph(s)
	parent := seedTask(s, 1)
	child := seedTask(s, 2) // belongs to a different organization

	_, err := g.Create(context.Background(), 1, parent, child, model.RelationshipSubtask)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGraphCreateRejectsCrossTenantParent(t *testing.T) {
	s := storetest.New()
	g := NewGraph(s)
	parent := seedTask(s, 2) // belongs to a different organization
	child := seedTask(s, 1)

	_, err := g.Create(context.Background(), 1, parent, child, model.RelationshipSubtask)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGraphCreateIsIdempotent(t *testing.T) {
	s := storetest.New()
	g := NewGraph(s)
	ctx := context.Background()
	parent, child := seedTask(s, 1), seedTask(s, 1)

	first, err := g.Create(ctx, 1, parent, child, model.RelationshipSubtask)
	require.NoError(t, err)

	second, err := g.Create(ctx, 1, parent, child, model.RelationshipSubtask)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	rels, err := g.ListRelated(ctx, 1, parent, nil)
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}

func TestGraphCreateRejectsBlockingCycle(t *testing.T) {
	s := storetest.New()
	g := NewGraph(s)
	ctx := context.Background()
	t1, t2, t3 := seedTask(s, 1), seedTask(s, 1), seedTask(s, 1)

	// t1 blocks t2, t2 blocks t3; t3 blocks t1 would close the cycle.
	_, err := g.Create(ctx, 1, t1, t2, model.RelationshipBlocking)
	require.NoError(t, err)
	_, err = g.Create(ctx, 1, t2, t3, model.RelationshipBlocking)
	require.NoError(t, err)

	_, err = g.Create(ctx, 1, t3, t1, model.RelationshipBlocking)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrorKindCircularDependency))
}

func TestGraphCreateAllowsNonCyclicBlockedBy(t *testing.T) {
	s := storetest.New()
	g := NewGraph(s)
	ctx := context.Background()
	t1, t2, t3, t4 := seedTask(s, 1), seedTask(s, 1), seedTask(s, 1), seedTask(s, 1)

	_, err := g.Create(ctx, 1, t1, t2, model.RelationshipBlocking)
	require.NoError(t, err)

	_, err = g.Create(ctx, 1, t3, t4, model.RelationshipBlockedBy)
	require.NoError(t, err)
}

func TestGraphCreateRecordsChangeHistoryOnParent(t *testing.T) {
	s := storetest.New()
	g := NewGraph(s)
	ctx := context.Background()
	parent, child := seedTask(s, 1), seedTask(s, 1)

	_, err := g.Create(ctx, 1, parent, child, model.RelationshipSubtask)
	require.NoError(t, err)

	hist, err := s.ListHistory(ctx, 1, parent, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, model.ChangeRelationshipAdded, hist[0].ChangeType)
}

func TestGraphDeleteRecordsChangeHistory(t *testing.T) {
	s := storetest.New()
	g := NewGraph(s)
	ctx := context.Background()
	parent, child := seedTask(s, 1), seedTask(s, 1)

	rel, err := g.Create(ctx, 1, parent, child, model.RelationshipSubtask)
	require.NoError(t, err)

	err = g.Delete(ctx, 1, rel, "agent-1")
	require.NoError(t, err)

	rels, err := g.ListRelated(ctx, 1, parent, nil)
	require.NoError(t, err)
	assert.Empty(t, rels)

	hist, err := s.ListHistory(ctx, 1, parent, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, model.ChangeRelationshipRemoved, hist[1].ChangeType)
	assert.Equal(t, "agent-1", hist[1].AgentID)
}

func TestGraphDescendants(t *testing.T) {
	s := storetest.New()
	g := NewGraph(s)
	ctx := context.Background()
	t1, t2, t3, t4 := seedTask(s, 1), seedTask(s, 1), seedTask(s, 1), seedTask(s, 1)

	// t1 -> t2 -> t3, t1 -> t4 (subtask edges)
	_, err := g.Create(ctx, 1, t1, t2, model.RelationshipSubtask)
	require.NoError(t, err)
	_, err = g.Create(ctx, 1, t2, t3, model.RelationshipSubtask)
	require.NoError(t, err)
	_, err = g.Create(ctx, 1, t1, t4, model.RelationshipSubtask)
	require.NoError(t, err)

	descendants, err := g.Descendants(ctx, 1, t1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{t2, t3, t4}, descendants)
}

func TestGraphAncestors(t *testing.T) {
	s := storetest.New()
	g := NewGraph(s)
	ctx := context.Background()
	t1, t2, t3 := seedTask(s, 1), seedTask(s, 1), seedTask(s, 1)

	_, err := g.Create(ctx, 1, t1, t2, model.RelationshipSubtask)
	require.NoError(t, err)
	_, err = g.Create(ctx, 1, t2, t3, model.RelationshipSubtask)
	require.NoError(t, err)

	ancestors, err := g.Ancestors(ctx, 1, t3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{t1, t2}, ancestors)
}
