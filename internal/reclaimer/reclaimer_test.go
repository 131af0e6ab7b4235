package reclaimer

import (
	"context"
	"log/slog"
	"io"
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

func TestRunReclaimsStaleLeaseAndRecordsFinding(t *testing.T) {
	s := storetest.New()
	agent := "agent-1"
	task := s.SeedTask(&model.Task{
		OrganizationID: 1,
		TaskStatus:     model.TaskStatusInProgress,
		AssignedAgent:  &agent,
	})
	task.UpdatedAt = time.Now().Add(-2 * time.Hour)
	s.SeedTask(task)

	r := New(s, distlock.NoopLocker{}, time.Hour, discardLogger())
	require.NoError(t, r.Run(context.Background()))

	got, err := s.GetTask(context.Background(), 1, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusAvailable, got.TaskStatus)
	assert.Nil(t, got.AssignedAgent)

	updates, err := s.ListUpdates(context.Background(), 1, task.ID, 10)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.True(t, updates[0].IsStaleFinding())

	hist, err := s.ListHistory(context.Background(), 1, task.ID, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, model.ChangeUnlockedStale, hist[0].ChangeType)
}

func TestRunLeavesFreshLeaseAlone(t *testing.T) {
	s := storetest.New()
	agent := "agent-1"
	task := s.SeedTask(&model.Task{
		OrganizationID: 1,
		TaskStatus:     model.TaskStatusInProgress,
		AssignedAgent:  &agent,
		UpdatedAt:      time.Now(),
	})

	r := New(s, distlock.NoopLocker{}, time.Hour, discardLogger())
	require.NoError(t, r.Run(context.Background()))

	got, err := s.GetTask(context.Background(), 1, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusInProgress, got.TaskStatus)
}

func TestRunSkipsWhenLockHeld(t *testing.T) {
	s := storetest.New()
	agent := "agent-1"
	task := s.SeedTask(&model.Task{
		OrganizationID: 1,
		TaskStatus:     model.TaskStatusInProgress,
		AssignedAgent:  &agent,
	})
	task.UpdatedAt = time.Now().Add(-2 * time.Hour)
	s.SeedTask(task)

	r := New(s, alwaysHeldLocker{}, time.Hour, discardLogger())
	require.NoError(t, r.Run(context.Background()))

	got, err := s.GetTask(context.Background(), 1, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusInProgress, got.TaskStatus, "a held lock must prevent this replica from reclaiming")
}

type alwaysHeldLocker struct{}

func (alwaysHeldLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return false, nil
}

func (alwaysHeldLocker) Unlock(ctx context.Context, key string) error { return nil }
