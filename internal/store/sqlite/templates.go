package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/agentbroker/taskbroker/internal/model"
)

func (s *Store) CreateTemplate(ctx context.Context, t *model.Template) (*model.Template, error) {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	res, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO templates (organization_id, name, task_type, title_template, task_instruction,
			verification_instruction, priority, estimated_hours, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.OrganizationID, t.Name, t.TaskType, t.TitleTemplate, t.TaskInstruction,
		t.VerificationInstruction, t.Priority, t.EstimatedHours, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create template: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create template: last insert id: %w", err)
	}
	t.ID = id
	return t, nil
}

const templateColumns = `id, organization_id, name, task_type, title_template, task_instruction,
	verification_instruction, priority, estimated_hours, created_at, updated_at`

func (s *Store) ListTemplates(ctx context.Context, organizationID int64) ([]*model.Template, error) {
	var templates []*model.Template
	err := s.conn(ctx).SelectContext(ctx, &templates, fmt.Sprintf(`
		SELECT %s FROM templates WHERE organization_id = ? ORDER BY name ASC`, templateColumns), organizationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list templates: %w", err)
	}
	return templates, nil
}

func (s *Store) GetTemplate(ctx context.Context, organizationID, templateID int64) (*model.Template, error) {
	var t model.Template
	err := s.conn(ctx).GetContext(ctx, &t, fmt.Sprintf(`
		SELECT %s FROM templates WHERE id = ? AND organization_id = ?`, templateColumns), templateID, organizationID)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &t, nil
}
