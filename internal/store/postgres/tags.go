package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store"
)

func (s *Store) CreateTag(ctx context.Context, organizationID int64, name string) (*model.Tag, error) {
	row := s.conn(ctx).QueryRow(ctx, `
		SELECT id, organization_id, name, created_at FROM tags WHERE organization_id = $1 AND name = $2`,
		organizationID, name)
	existing, err := pgx.RowToStructByNameLax[model.Tag](row)
	if err == nil {
		return &existing, nil // idempotent by name
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: create tag: check existing: %w", err)
	}
	var t model.Tag
	err = s.conn(ctx).QueryRow(ctx, `
		INSERT INTO tags (organization_id, name, created_at) VALUES ($1, $2, now())
		RETURNING id, organization_id, name, created_at`, organizationID, name).
		Scan(&t.ID, &t.OrganizationID, &t.Name, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: create tag: %w", err)
	}
	return &t, nil
}

func (s *Store) ListTags(ctx context.Context, organizationID int64) ([]*model.Tag, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT id, organization_id, name, created_at FROM tags WHERE organization_id = $1 ORDER BY name ASC`,
		organizationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tags: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[model.Tag])
}

func (s *Store) AssignTag(ctx context.Context, organizationID, taskID, tagID int64) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO task_tags (task_id, tag_id) SELECT $1, $2 WHERE EXISTS (
			SELECT 1 FROM tasks WHERE id = $1 AND organization_id = $3
		) AND EXISTS (SELECT 1 FROM tags WHERE id = $2 AND organization_id = $3)
		ON CONFLICT DO NOTHING`,
		taskID, tagID, organizationID)
	if err != nil {
		return fmt.Errorf("postgres: assign tag: %w", err)
	}
	return nil
}

func (s *Store) RemoveTag(ctx context.Context, organizationID, taskID, tagID int64) error {
	tag, err := s.conn(ctx).Exec(ctx, `
		DELETE FROM task_tags WHERE task_id = $1 AND tag_id = $2 AND task_id IN (
			SELECT id FROM tasks WHERE organization_id = $3
		)`, taskID, tagID, organizationID)
	if err != nil {
		return fmt.Errorf("postgres: remove tag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListTaskTags(ctx context.Context, organizationID, taskID int64) ([]*model.Tag, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT tg.id, tg.organization_id, tg.name, tg.created_at
		FROM tags tg JOIN task_tags tt ON tt.tag_id = tg.id JOIN tasks t ON t.id = tt.task_id
		WHERE tt.task_id = $1 AND t.organization_id = $2 ORDER BY tg.name ASC`, taskID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list task tags: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[model.Tag])
}
