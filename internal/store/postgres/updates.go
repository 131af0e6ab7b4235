package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentbroker/taskbroker/internal/model"
)

func (s *Store) AddUpdate(ctx context.Context, u *model.TaskUpdate) (*model.TaskUpdate, error) {
	var metaJSON []byte
	if u.Metadata != nil {
		var err error
		metaJSON, err = json.Marshal(u.Metadata)
		if err != nil {
			return nil, fmt.Errorf("postgres: add update: marshal metadata: %w", err)
		}
	}
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO task_updates (task_id, update_type, content, metadata, author_id, created_at)
		VALUES ($1, $2, $3, $4, $5, now()) RETURNING id, created_at`,
		u.TaskID, u.UpdateType, u.Content, metaJSON, u.AuthorID).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: add update: %w", err)
	}
	return u, nil
}

func (s *Store) ListUpdates(ctx context.Context, organizationID, taskID int64, limit int) ([]*model.TaskUpdate, error) {
	if limit <= 0 {
		limit = model.DefaultQueryLimit
	}
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT u.id, u.task_id, u.update_type, u.content, u.metadata, u.author_id, u.created_at
		FROM task_updates u JOIN tasks t ON t.id = u.task_id
		WHERE u.task_id = $1 AND t.organization_id = $2
		ORDER BY u.created_at DESC LIMIT $3`, taskID, organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list updates: %w", err)
	}
	defer rows.Close()
	var updates []*model.TaskUpdate
	for rows.Next() {
		var u model.TaskUpdate
		var metaJSON []byte
		if err := rows.Scan(&u.ID, &u.TaskID, &u.UpdateType, &u.Content, &metaJSON, &u.AuthorID, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: list updates: scan: %w", err)
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &u.Metadata)
		}
		updates = append(updates, &u)
	}
	return updates, rows.Err()
}
