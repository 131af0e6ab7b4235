package sqlite

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Store{
		db:      sqlx.NewDb(db, "sqlmock"),
		breaker: store.NewConnectionBreaker("test"),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, mock
}

func TestCreateTaskDefaultsAndReturnsID(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO tasks").WillReturnResult(sqlmock.NewResult(7, 1))

	task := &model.Task{OrganizationID: 1, Title: "write docs", TaskType: model.TaskTypeConcrete}
	got, err := s.CreateTask(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, model.TaskStatusAvailable, got.TaskStatus)
	assert.Equal(t, model.VerificationUnverified, got.VerificationStatus)
	assert.Equal(t, model.PriorityMedium, got.Priority)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTaskWrapsNoRowsAsNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .* FROM tasks WHERE id = \\? AND organization_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetTask(context.Background(), 1, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTaskReturnsNotFoundWhenNoRowsAffected(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM tasks").WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.DeleteTask(context.Background(), 1, 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTaskFieldsRejectsDisallowedColumn(t *testing.T) {
	s, _ := newMockStore(t)
	_, err := s.UpdateTaskFields(context.Background(), 1, 1, map[string]any{"task_status": "complete"})
	require.Error(t, err, "task_status is not in the updatable-field allowlist")
}

func TestBuildFilterClauseIncludesOnlySetFields(t *testing.T) {
	projectID := int64(5)
	filter := model.TaskFilter{OrganizationID: 1, ProjectID: &projectID}
	where, args := buildFilterClause(filter)
	assert.Equal(t, "organization_id = ? AND project_id = ?", where)
	assert.Equal(t, []any{int64(1), int64(5)}, args)
}

func TestOrderClauseDefaultsToUpdatedAtDesc(t *testing.T) {
	assert.Equal(t, "updated_at DESC", orderClause(model.OrderBy("")))
}

func TestStaleTasksAppliesThresholdCutoff(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{
		"id", "title", "project_id", "organization_id", "task_type", "task_instruction",
		"verification_instruction", "notes", "task_status", "verification_status", "assigned_agent",
		"priority", "due_date", "estimated_hours", "started_at", "completed_at", "actual_hours",
		"created_at", "updated_at",
	}).AddRow(
		1, "stale task", nil, 1, "concrete", "do it",
		"check it", nil, "in_progress", "unverified", "agent-1",
		"medium", nil, nil, nil, nil, nil,
		time.Now(), time.Now().Add(-2*time.Hour),
	)
	mock.ExpectQuery("SELECT .* FROM tasks WHERE organization_id = \\? AND task_status = 'in_progress'").
		WillReturnRows(rows)

	tasks, err := s.StaleTasks(context.Background(), 1, time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "stale task", tasks[0].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}
