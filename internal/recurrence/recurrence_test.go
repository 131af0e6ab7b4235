package recurrence

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbroker/taskbroker/internal/distlock"
	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store/storetest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAdvanceOccurrenceDaily(t *testing.T) {
	from := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	next := AdvanceOccurrence(model.RecurrenceDaily, model.RecurrenceConfig{}, from)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), next)
}

func TestAdvanceOccurrenceWeekly(t *testing.T) {
	from := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) // Monday
	friday := time.Friday
	next := AdvanceOccurrence(model.RecurrenceWeekly, model.RecurrenceConfig{DayOfWeek: &friday}, from)
	assert.Equal(t, time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC), next)
}

func TestAdvanceOccurrenceMonthlyClampsShortMonth(t *testing.T) {
	from := time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC)
	day := 31
	next := AdvanceOccurrence(model.RecurrenceMonthly, model.RecurrenceConfig{DayOfMonth: &day}, from)
	assert.Equal(t, time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC), next)
}

func TestRunMaterializesDueRecurrence(t *testing.T) {
	s := storetest.New()
	ctx := context.Background()

	base := s.SeedTask(&model.Task{
		OrganizationID:  1,
		Title:           "weekly report",
		TaskType:        model.TaskTypeConcrete,
		TaskInstruction: "write the report",
		Priority:        model.PriorityMedium,
	})
	due := time.Now().Add(-time.Hour)
	rec := s.SeedRecurrence(&model.Recurrence{
		BaseTaskID:     base.ID,
		OrganizationID: 1,
		RecurrenceType: model.RecurrenceDaily,
		NextOccurrence: due,
		IsActive:       true,
	})

	m := New(s, distlock.NoopLocker{}, discardLogger())
	require.NoError(t, m.Run(ctx))

	tasks, err := s.QueryTasks(ctx, model.TaskFilter{OrganizationID: 1})
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	got, err := s.ListActiveRecurrences(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].NextOccurrence.After(rec.NextOccurrence))
	require.NotNil(t, got[0].LastOccurrenceCreated)
}

func TestRunSkipsInactiveRecurrence(t *testing.T) {
	s := storetest.New()
	ctx := context.Background()

	base := s.SeedTask(&model.Task{OrganizationID: 1, Title: "x"})
	s.SeedRecurrence(&model.Recurrence{
		BaseTaskID:     base.ID,
		OrganizationID: 1,
		RecurrenceType: model.RecurrenceDaily,
		NextOccurrence: time.Now().Add(-time.Hour),
		IsActive:       false,
	})

	m := New(s, distlock.NoopLocker{}, discardLogger())
	require.NoError(t, m.Run(ctx))

	tasks, err := s.QueryTasks(ctx, model.TaskFilter{OrganizationID: 1})
	require.NoError(t, err)
	assert.Len(t, tasks, 1, "only the base task, no instance materialized")
}
