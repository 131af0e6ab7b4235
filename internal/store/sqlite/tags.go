package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store"
)

func (s *Store) CreateTag(ctx context.Context, organizationID int64, name string) (*model.Tag, error) {
	var existing model.Tag
	err := s.conn(ctx).GetContext(ctx, &existing, `
		SELECT id, organization_id, name, created_at FROM tags WHERE organization_id = ? AND name = ?`,
		organizationID, name)
	if err == nil {
		return &existing, nil // idempotent by name
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: create tag: check existing: %w", err)
	}
	res, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO tags (organization_id, name, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
		organizationID, name)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create tag: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create tag: last insert id: %w", err)
	}
	var t model.Tag
	if err := s.conn(ctx).GetContext(ctx, &t, `SELECT id, organization_id, name, created_at FROM tags WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("sqlite: create tag: reload: %w", err)
	}
	return &t, nil
}

func (s *Store) ListTags(ctx context.Context, organizationID int64) ([]*model.Tag, error) {
	var tags []*model.Tag
	err := s.conn(ctx).SelectContext(ctx, &tags, `
		SELECT id, organization_id, name, created_at FROM tags WHERE organization_id = ? ORDER BY name ASC`,
		organizationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tags: %w", err)
	}
	return tags, nil
}

func (s *Store) AssignTag(ctx context.Context, organizationID, taskID, tagID int64) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT OR IGNORE INTO task_tags (task_id, tag_id) SELECT ?, ? WHERE EXISTS (
			SELECT 1 FROM tasks WHERE id = ? AND organization_id = ?
		) AND EXISTS (SELECT 1 FROM tags WHERE id = ? AND organization_id = ?)`,
		taskID, tagID, taskID, organizationID, tagID, organizationID)
	if err != nil {
		return fmt.Errorf("sqlite: assign tag: %w", err)
	}
	return nil
}

func (s *Store) RemoveTag(ctx context.Context, organizationID, taskID, tagID int64) error {
	res, err := s.conn(ctx).ExecContext(ctx, `
		DELETE FROM task_tags WHERE task_id = ? AND tag_id = ? AND task_id IN (
			SELECT id FROM tasks WHERE organization_id = ?
		)`, taskID, tagID, organizationID)
	if err != nil {
		return fmt.Errorf("sqlite: remove tag: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListTaskTags(ctx context.Context, organizationID, taskID int64) ([]*model.Tag, error) {
	var tags []*model.Tag
	err := s.conn(ctx).SelectContext(ctx, &tags, `
		SELECT tg.id, tg.organization_id, tg.name, tg.created_at
		FROM tags tg JOIN task_tags tt ON tt.tag_id = tg.id JOIN tasks t ON t.id = tt.task_id
		WHERE tt.task_id = ? AND t.organization_id = ? ORDER BY tg.name ASC`, taskID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list task tags: %w", err)
	}
	return tags, nil
}
