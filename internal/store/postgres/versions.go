package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agentbroker/taskbroker/internal/model"
)

func (s *Store) CreateVersion(ctx context.Context, v *model.TaskVersion) (*model.TaskVersion, error) {
	var maxN int
	err := s.conn(ctx).QueryRow(ctx, `SELECT COALESCE(MAX(version_number), 0) FROM task_versions WHERE task_id = $1`, v.TaskID).Scan(&maxN)
	if err != nil {
		return nil, fmt.Errorf("postgres: create version: max version: %w", err)
	}
	v.VersionNumber = maxN + 1

	err = s.conn(ctx).QueryRow(ctx, `
		INSERT INTO task_versions (task_id, version_number, title, task_type, task_instruction,
			verification_instruction, priority, estimated_hours, due_date, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now()) RETURNING id, created_at`,
		v.TaskID, v.VersionNumber, v.Title, v.TaskType, v.TaskInstruction,
		v.VerificationInstruction, v.Priority, v.EstimatedHours, v.DueDate, v.Notes).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: create version: %w", err)
	}
	return v, nil
}

func (s *Store) ListVersions(ctx context.Context, organizationID, taskID int64) ([]*model.TaskVersion, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT v.id, v.task_id, v.version_number, v.title, v.task_type, v.task_instruction,
			v.verification_instruction, v.priority, v.estimated_hours, v.due_date, v.notes, v.created_at
		FROM task_versions v JOIN tasks t ON t.id = v.task_id
		WHERE v.task_id = $1 AND t.organization_id = $2
		ORDER BY v.version_number ASC`, taskID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list versions: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[model.TaskVersion])
}

func (s *Store) GetVersion(ctx context.Context, organizationID, taskID int64, versionNumber int) (*model.TaskVersion, error) {
	row := s.conn(ctx).QueryRow(ctx, `
		SELECT v.id, v.task_id, v.version_number, v.title, v.task_type, v.task_instruction,
			v.verification_instruction, v.priority, v.estimated_hours, v.due_date, v.notes, v.created_at
		FROM task_versions v JOIN tasks t ON t.id = v.task_id
		WHERE v.task_id = $1 AND v.version_number = $2 AND t.organization_id = $3`,
		taskID, versionNumber, organizationID)
	v, err := pgx.RowToStructByNameLax[model.TaskVersion](row)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &v, nil
}

func (s *Store) LatestVersion(ctx context.Context, organizationID, taskID int64) (*model.TaskVersion, error) {
	row := s.conn(ctx).QueryRow(ctx, `
		SELECT v.id, v.task_id, v.version_number, v.title, v.task_type, v.task_instruction,
			v.verification_instruction, v.priority, v.estimated_hours, v.due_date, v.notes, v.created_at
		FROM task_versions v JOIN tasks t ON t.id = v.task_id
		WHERE v.task_id = $1 AND t.organization_id = $2
		ORDER BY v.version_number DESC LIMIT 1`, taskID, organizationID)
	v, err := pgx.RowToStructByNameLax[model.TaskVersion](row)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &v, nil
}
