package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityRank(t *testing.T) {
	assert.Equal(t, 3, PriorityCritical.Rank())
	assert.Equal(t, 2, PriorityHigh.Rank())
	assert.Equal(t, 1, PriorityMedium.Rank())
	assert.Equal(t, 0, PriorityLow.Rank())
	assert.Equal(t, 1, Priority("unknown").Rank())
}

func TestRelationshipTypeInverse(t *testing.T) {
	inv, ok := RelationshipBlocking.Inverse()
	assert.True(t, ok)
	assert.Equal(t, RelationshipBlockedBy, inv)

	inv, ok = RelationshipBlockedBy.Inverse()
	assert.True(t, ok)
	assert.Equal(t, RelationshipBlocking, inv)

	_, ok = RelationshipSubtask.Inverse()
	assert.False(t, ok)
}

func TestEnumValid(t *testing.T) {
	assert.True(t, TaskTypeConcrete.Valid())
	assert.False(t, TaskType("bogus").Valid())

	assert.True(t, TaskStatusBlocked.Valid())
	assert.False(t, TaskStatus("").Valid())

	assert.True(t, PriorityHigh.Valid())
	assert.False(t, Priority("urgent").Valid())
}

func TestTaskFilterNormalize(t *testing.T) {
	f := TaskFilter{Limit: 0}
	f.Normalize()
	assert.Equal(t, DefaultQueryLimit, f.Limit)

	f = TaskFilter{Limit: 5000}
	f.Normalize()
	assert.Equal(t, MaxQueryLimit, f.Limit)

	f = TaskFilter{Limit: 10}
	f.Normalize()
	assert.Equal(t, 10, f.Limit)
}

func TestTaskComputeTimeDelta(t *testing.T) {
	task := &Task{}
	task.ComputeTimeDelta()
	assert.Nil(t, task.TimeDeltaHours)

	actual := 3.0
	task.ActualHours = &actual
	task.ComputeTimeDelta()
	assert.Nil(t, task.TimeDeltaHours, "no estimate means no delta")

	estimate := 2.0
	task.EstimatedHours = &estimate
	task.ComputeTimeDelta()
	require.NotNil(t, task.TimeDeltaHours)
	assert.Equal(t, 1.0, *task.TimeDeltaHours)
}

func TestTaskUpdateIsStaleFinding(t *testing.T) {
	u := TaskUpdate{UpdateType: UpdateTypeFinding, Content: "task unlocked due to timeout"}
	assert.True(t, u.IsStaleFinding())

	u = TaskUpdate{UpdateType: UpdateTypeFinding, Content: "all good", Metadata: map[string]any{"stale": true}}
	assert.True(t, u.IsStaleFinding())

	u = TaskUpdate{UpdateType: UpdateTypeNote, Content: "stale bread reference, not a finding"}
	assert.False(t, u.IsStaleFinding(), "wrong update type never counts, regardless of content")

	u = TaskUpdate{UpdateType: UpdateTypeFinding, Content: "looks fine"}
	assert.False(t, u.IsStaleFinding())
}

func TestDiffVersions(t *testing.T) {
	a := &TaskVersion{Title: "old title", Priority: PriorityLow}
	b := &TaskVersion{Title: "new title", Priority: PriorityLow}
	diffs := DiffVersions(a, b)
	require.Len(t, diffs, 1)
	assert.Equal(t, "title", diffs[0].Field)
	assert.Equal(t, "old title", diffs[0].OldValue)
	assert.Equal(t, "new title", diffs[0].NewValue)
}

func TestDiffVersionsNoChanges(t *testing.T) {
	due := time.Now()
	a := &TaskVersion{Title: "same", DueDate: &due}
	b := &TaskVersion{Title: "same", DueDate: &due}
	assert.Empty(t, DiffVersions(a, b))
}

func TestBrokerErrorConstructors(t *testing.T) {
	err := ErrTaskNotFound(42)
	assert.True(t, IsKind(err, ErrorKindNotFound))

	err = ErrAlreadyVerified(7)
	assert.True(t, IsKind(err, ErrorKindAlreadyVerified))
	assert.False(t, IsKind(err, ErrorKindNotFound))
}
