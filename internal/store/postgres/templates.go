package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agentbroker/taskbroker/internal/model"
)

func (s *Store) CreateTemplate(ctx context.Context, t *model.Template) (*model.Template, error) {
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO templates (organization_id, name, task_type, title_template, task_instruction,
			verification_instruction, priority, estimated_hours, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now()) RETURNING id, created_at, updated_at`,
		t.OrganizationID, t.Name, t.TaskType, t.TitleTemplate, t.TaskInstruction,
		t.VerificationInstruction, t.Priority, t.EstimatedHours).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: create template: %w", err)
	}
	return t, nil
}

const templateColumns = `id, organization_id, name, task_type, title_template, task_instruction,
	verification_instruction, priority, estimated_hours, created_at, updated_at`

func (s *Store) ListTemplates(ctx context.Context, organizationID int64) ([]*model.Template, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT `+templateColumns+`
		FROM templates WHERE organization_id = $1 ORDER BY name ASC`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list templates: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[model.Template])
}

func (s *Store) GetTemplate(ctx context.Context, organizationID, templateID int64) (*model.Template, error) {
	row := s.conn(ctx).QueryRow(ctx, `SELECT `+templateColumns+`
		FROM templates WHERE id = $1 AND organization_id = $2`, templateID, organizationID)
	t, err := pgx.RowToStructByNameLax[model.Template](row)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &t, nil
}
