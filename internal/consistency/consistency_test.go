package consistency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbroker/taskbroker/internal/audit"
	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/relationship"
	"github.com/agentbroker/taskbroker/internal/store/storetest"
)

func newTestAuditor(s *storetest.Store) *Auditor {
	g := relationship.NewGraph(s)
	a := audit.New(s)
	return New(s, g, a)
}

func TestRunFlagsInvariantViolations(t *testing.T) {
	s := storetest.New()
	agent := "agent-1"
	s.SeedTask(&model.Task{
		OrganizationID: 1,
		TaskStatus:     model.TaskStatusAvailable, // assigned but not in_progress
		AssignedAgent:  &agent,
	})

	auditor := newTestAuditor(s)
	report, err := auditor.Run(context.Background(), 1, false)
	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "invariant_violation", report.Issues[0].Type)
	assert.Equal(t, "critical", report.Issues[0].Severity)
}

func TestRunFlagsOrphanedEdge(t *testing.T) {
	s := storetest.New()
	ctx := context.Background()
	g := relationship.NewGraph(s)

	parent := s.SeedTask(&model.Task{OrganizationID: 1, TaskStatus: model.TaskStatusAvailable})
	child := s.SeedTask(&model.Task{OrganizationID: 1, TaskStatus: model.TaskStatusAvailable})
	_, err := g.Create(ctx, 1, parent.ID, child.ID, model.RelationshipSubtask)
	require.NoError(t, err)

	require.NoError(t, s.DeleteTask(ctx, 1, child.ID))

	auditor := newTestAuditor(s)
	report, err := auditor.Run(ctx, 1, false)
	require.NoError(t, err)

	var found bool
	for _, issue := range report.Issues {
		if issue.Type == "orphaned_edge" {
			found = true
		}
	}
	assert.True(t, found, "expected an orphaned_edge issue after deleting the child task")
}

func TestRunFlagsDriftedRecurrence(t *testing.T) {
	s := storetest.New()
	ctx := context.Background()
	base := s.SeedTask(&model.Task{OrganizationID: 1, TaskStatus: model.TaskStatusAvailable})
	s.SeedRecurrence(&model.Recurrence{
		BaseTaskID:     base.ID,
		OrganizationID: 1,
		RecurrenceType: model.RecurrenceDaily,
		NextOccurrence: time.Now().Add(-48 * time.Hour),
		IsActive:       true,
	})

	auditor := newTestAuditor(s)
	report, err := auditor.Run(ctx, 1, false)
	require.NoError(t, err)

	var found bool
	for _, issue := range report.Issues {
		if issue.Type == "drifted_recurrence" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRunRecordsFindingsWhenRequested(t *testing.T) {
	s := storetest.New()
	ctx := context.Background()
	agent := "agent-1"
	task := s.SeedTask(&model.Task{
		OrganizationID: 1,
		TaskStatus:     model.TaskStatusAvailable,
		AssignedAgent:  &agent,
	})

	auditor := newTestAuditor(s)
	_, err := auditor.Run(ctx, 1, true)
	require.NoError(t, err)

	updates, err := s.ListUpdates(ctx, 1, task.ID, 10)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, model.UpdateTypeFinding, updates[0].UpdateType)
}

func TestRunCleanStateProducesNoIssues(t *testing.T) {
	s := storetest.New()
	ctx := context.Background()
	s.SeedTask(&model.Task{
		OrganizationID:     1,
		TaskStatus:         model.TaskStatusAvailable,
		VerificationStatus: model.VerificationUnverified,
	})

	auditor := newTestAuditor(s)
	report, err := auditor.Run(ctx, 1, false)
	require.NoError(t, err)
	assert.Empty(t, report.Issues)
}
