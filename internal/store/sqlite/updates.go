package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentbroker/taskbroker/internal/model"
)

func (s *Store) AddUpdate(ctx context.Context, u *model.TaskUpdate) (*model.TaskUpdate, error) {
	u.CreatedAt = time.Now().UTC()
	var metaJSON []byte
	if u.Metadata != nil {
		var err error
		metaJSON, err = json.Marshal(u.Metadata)
		if err != nil {
			return nil, fmt.Errorf("sqlite: add update: marshal metadata: %w", err)
		}
	}
	res, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO task_updates (task_id, update_type, content, metadata, author_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.TaskID, u.UpdateType, u.Content, metaJSON, u.AuthorID, u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: add update: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: add update: last insert id: %w", err)
	}
	u.ID = id
	return u, nil
}

func (s *Store) ListUpdates(ctx context.Context, organizationID, taskID int64, limit int) ([]*model.TaskUpdate, error) {
	if limit <= 0 {
		limit = model.DefaultQueryLimit
	}
	type row struct {
		ID         int64     `db:"id"`
		TaskID     int64     `db:"task_id"`
		UpdateType string    `db:"update_type"`
		Content    string    `db:"content"`
		Metadata   []byte    `db:"metadata"`
		AuthorID   string    `db:"author_id"`
		CreatedAt  time.Time `db:"created_at"`
	}
	var rows []row
	err := s.conn(ctx).SelectContext(ctx, &rows, `
		SELECT u.id, u.task_id, u.update_type, u.content, u.metadata, u.author_id, u.created_at
		FROM task_updates u JOIN tasks t ON t.id = u.task_id
		WHERE u.task_id = ? AND t.organization_id = ?
		ORDER BY u.created_at DESC LIMIT ?`, taskID, organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list updates: %w", err)
	}
	updates := make([]*model.TaskUpdate, 0, len(rows))
	for _, r := range rows {
		u := &model.TaskUpdate{
			ID: r.ID, TaskID: r.TaskID, UpdateType: model.UpdateType(r.UpdateType),
			Content: r.Content, AuthorID: r.AuthorID, CreatedAt: r.CreatedAt,
		}
		if len(r.Metadata) > 0 {
			_ = json.Unmarshal(r.Metadata, &u.Metadata)
		}
		updates = append(updates, u)
	}
	return updates, nil
}
