package propagator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/relationship"
	"github.com/agentbroker/taskbroker/internal/store/storetest"
)

func TestDecorateSetsNeedsVerification(t *testing.T) {
	s := storetest.New()
	g := relationship.NewGraph(s)
	p := New(s, g)

	task := s.SeedTask(&model.Task{
		OrganizationID:     1,
		TaskStatus:         model.TaskStatusComplete,
		VerificationStatus: model.VerificationUnverified,
	})

	require.NoError(t, p.Decorate(context.Background(), 1, task))
	assert.True(t, task.NeedsVerification)
	assert.Equal(t, model.TaskStatusAvailable, task.EffectiveStatus)
}

func TestDecorateSubstitutesBlockedFromDescendant(t *testing.T) {
	s := storetest.New()
	g := relationship.NewGraph(s)
	p := New(s, g)
	ctx := context.Background()

	parent := s.SeedTask(&model.Task{OrganizationID: 1, TaskStatus: model.TaskStatusAvailable})
	child := s.SeedTask(&model.Task{OrganizationID: 1, TaskStatus: model.TaskStatusBlocked})
	_, err := g.Create(ctx, 1, parent.ID, child.ID, model.RelationshipSubtask)
	require.NoError(t, err)

	require.NoError(t, p.Decorate(ctx, 1, parent))
	assert.Equal(t, model.TaskStatusBlocked, parent.EffectiveStatus)
}

func TestDecorateLeavesCompleteTaskAlone(t *testing.T) {
	s := storetest.New()
	g := relationship.NewGraph(s)
	p := New(s, g)
	ctx := context.Background()

	parent := s.SeedTask(&model.Task{OrganizationID: 1, TaskStatus: model.TaskStatusComplete, VerificationStatus: model.VerificationVerified})
	child := s.SeedTask(&model.Task{OrganizationID: 1, TaskStatus: model.TaskStatusBlocked})
	_, err := g.Create(ctx, 1, parent.ID, child.ID, model.RelationshipSubtask)
	require.NoError(t, err)

	require.NoError(t, p.Decorate(ctx, 1, parent))
	assert.Equal(t, model.TaskStatusComplete, parent.EffectiveStatus)
}

func TestNotifyCompleteRecursesThroughAncestors(t *testing.T) {
	s := storetest.New()
	g := relationship.NewGraph(s)
	p := New(s, g)
	ctx := context.Background()

	grandparent := s.SeedTask(&model.Task{OrganizationID: 1, TaskStatus: model.TaskStatusAvailable})
	parent := s.SeedTask(&model.Task{OrganizationID: 1, TaskStatus: model.TaskStatusAvailable})
	child := s.SeedTask(&model.Task{OrganizationID: 1, TaskStatus: model.TaskStatusComplete})

	_, err := g.Create(ctx, 1, grandparent.ID, parent.ID, model.RelationshipSubtask)
	require.NoError(t, err)
	_, err = g.Create(ctx, 1, parent.ID, child.ID, model.RelationshipSubtask)
	require.NoError(t, err)

	require.NoError(t, p.NotifyComplete(ctx, 1, child.ID))

	gotParent, err := s.GetTask(ctx, 1, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusComplete, gotParent.TaskStatus)

	gotGrandparent, err := s.GetTask(ctx, 1, grandparent.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusComplete, gotGrandparent.TaskStatus)
}

func TestNotifyCompleteDoesNotCompleteParentWithIncompleteSibling(t *testing.T) {
	s := storetest.New()
	g := relationship.NewGraph(s)
	p := New(s, g)
	ctx := context.Background()

	parent := s.SeedTask(&model.Task{OrganizationID: 1, TaskStatus: model.TaskStatusAvailable})
	childA := s.SeedTask(&model.Task{OrganizationID: 1, TaskStatus: model.TaskStatusComplete})
	childB := s.SeedTask(&model.Task{OrganizationID: 1, TaskStatus: model.TaskStatusInProgress})

	_, err := g.Create(ctx, 1, parent.ID, childA.ID, model.RelationshipSubtask)
	require.NoError(t, err)
	_, err = g.Create(ctx, 1, parent.ID, childB.ID, model.RelationshipSubtask)
	require.NoError(t, err)

	require.NoError(t, p.NotifyComplete(ctx, 1, childA.ID))

	gotParent, err := s.GetTask(ctx, 1, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusAvailable, gotParent.TaskStatus)
}
