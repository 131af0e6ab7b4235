package sqlite

import (
	"context"
	"fmt"

	"github.com/agentbroker/taskbroker/internal/model"
)

func (s *Store) CreateVersion(ctx context.Context, v *model.TaskVersion) (*model.TaskVersion, error) {
	var maxN int
	err := s.conn(ctx).GetContext(ctx, &maxN, `SELECT COALESCE(MAX(version_number), 0) FROM task_versions WHERE task_id = ?`, v.TaskID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create version: max version: %w", err)
	}
	v.VersionNumber = maxN + 1

	res, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO task_versions (task_id, version_number, title, task_type, task_instruction,
			verification_instruction, priority, estimated_hours, due_date, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		v.TaskID, v.VersionNumber, v.Title, v.TaskType, v.TaskInstruction,
		v.VerificationInstruction, v.Priority, v.EstimatedHours, v.DueDate, v.Notes)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create version: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create version: last insert id: %w", err)
	}
	v.ID = id
	return v, nil
}

func (s *Store) ListVersions(ctx context.Context, organizationID, taskID int64) ([]*model.TaskVersion, error) {
	var versions []*model.TaskVersion
	err := s.conn(ctx).SelectContext(ctx, &versions, fmt.Sprintf(`
		SELECT v.id, v.task_id, v.version_number, v.title, v.task_type, v.task_instruction,
			v.verification_instruction, v.priority, v.estimated_hours, v.due_date, v.notes, v.created_at
		FROM task_versions v JOIN tasks t ON t.id = v.task_id
		WHERE v.task_id = ? AND t.organization_id = ?
		ORDER BY v.version_number ASC`), taskID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list versions: %w", err)
	}
	return versions, nil
}

func (s *Store) GetVersion(ctx context.Context, organizationID, taskID int64, versionNumber int) (*model.TaskVersion, error) {
	var v model.TaskVersion
	err := s.conn(ctx).GetContext(ctx, &v, `
		SELECT v.id, v.task_id, v.version_number, v.title, v.task_type, v.task_instruction,
			v.verification_instruction, v.priority, v.estimated_hours, v.due_date, v.notes, v.created_at
		FROM task_versions v JOIN tasks t ON t.id = v.task_id
		WHERE v.task_id = ? AND v.version_number = ? AND t.organization_id = ?`,
		taskID, versionNumber, organizationID)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &v, nil
}

func (s *Store) LatestVersion(ctx context.Context, organizationID, taskID int64) (*model.TaskVersion, error) {
	var v model.TaskVersion
	err := s.conn(ctx).GetContext(ctx, &v, `
		SELECT v.id, v.task_id, v.version_number, v.title, v.task_type, v.task_instruction,
			v.verification_instruction, v.priority, v.estimated_hours, v.due_date, v.notes, v.created_at
		FROM task_versions v JOIN tasks t ON t.id = v.task_id
		WHERE v.task_id = ? AND t.organization_id = ?
		ORDER BY v.version_number DESC LIMIT 1`, taskID, organizationID)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &v, nil
}

