package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store"
)

func (s *Store) CreateComment(ctx context.Context, c *model.Comment) (*model.Comment, error) {
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	mentions, err := json.Marshal(c.MentionedAgents)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create comment: marshal mentions: %w", err)
	}
	res, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO comments (task_id, parent_comment_id, author_id, content, mentioned_agents, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.TaskID, c.ParentCommentID, c.AuthorID, c.Content, mentions, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create comment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create comment: last insert id: %w", err)
	}
	c.ID = id
	return c, nil
}

type commentRow struct {
	ID              int64     `db:"id"`
	TaskID          int64     `db:"task_id"`
	ParentCommentID *int64    `db:"parent_comment_id"`
	AuthorID        string    `db:"author_id"`
	Content         string    `db:"content"`
	MentionedAgents []byte    `db:"mentioned_agents"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (row commentRow) toModel() *model.Comment {
	c := &model.Comment{
		ID: row.ID, TaskID: row.TaskID, ParentCommentID: row.ParentCommentID,
		AuthorID: row.AuthorID, Content: row.Content, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
	if len(row.MentionedAgents) > 0 {
		_ = json.Unmarshal(row.MentionedAgents, &c.MentionedAgents)
	}
	return c
}

const commentColumns = `id, task_id, parent_comment_id, author_id, content, mentioned_agents, created_at, updated_at`

func (s *Store) ListTaskComments(ctx context.Context, organizationID, taskID int64) ([]*model.Comment, error) {
	var rows []commentRow
	err := s.conn(ctx).SelectContext(ctx, &rows, fmt.Sprintf(`
		SELECT c.id, c.task_id, c.parent_comment_id, c.author_id, c.content, c.mentioned_agents, c.created_at, c.updated_at
		FROM comments c JOIN tasks t ON t.id = c.task_id
		WHERE c.task_id = ? AND t.organization_id = ? ORDER BY c.created_at ASC`), taskID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list task comments: %w", err)
	}
	out := make([]*model.Comment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) GetThread(ctx context.Context, organizationID, rootCommentID int64) ([]*model.Comment, error) {
	// Recursive CTE over parent_comment_id, scoped to the root's task's
	// organization.
	var rows []commentRow
	err := s.conn(ctx).SelectContext(ctx, &rows, fmt.Sprintf(`
		WITH RECURSIVE thread(id, task_id, parent_comment_id, author_id, content, mentioned_agents, created_at, updated_at) AS (
			SELECT c.id, c.task_id, c.parent_comment_id, c.author_id, c.content, c.mentioned_agents, c.created_at, c.updated_at
			FROM comments c WHERE c.id = ?
			UNION ALL
			SELECT c.id, c.task_id, c.parent_comment_id, c.author_id, c.content, c.mentioned_agents, c.created_at, c.updated_at
			FROM comments c JOIN thread ON c.parent_comment_id = thread.id
		)
		SELECT thread.id, thread.task_id, thread.parent_comment_id, thread.author_id, thread.content,
			thread.mentioned_agents, thread.created_at, thread.updated_at
		FROM thread JOIN tasks t ON t.id = thread.task_id WHERE t.organization_id = ?
		ORDER BY thread.created_at ASC`), rootCommentID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get thread: %w", err)
	}
	out := make([]*model.Comment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) UpdateComment(ctx context.Context, organizationID, commentID int64, content string) (*model.Comment, error) {
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE comments SET content = ?, updated_at = ? WHERE id = ? AND task_id IN (
			SELECT id FROM tasks WHERE organization_id = ?
		)`, content, time.Now().UTC(), commentID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: update comment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, store.ErrNotFound
	}
	var row commentRow
	err = s.conn(ctx).GetContext(ctx, &row, fmt.Sprintf(`SELECT %s FROM comments WHERE id = ?`, commentColumns), commentID)
	if err != nil {
		return nil, wrapErr(err)
	}
	return row.toModel(), nil
}

// DeleteComment cascades to all replies via a recursive CTE before
// deleting, since SQLite foreign keys enforce referential integrity but
// do not cascade by default in this schema (see migrations).
func (s *Store) DeleteComment(ctx context.Context, organizationID, commentID int64) error {
	return s.Tx(ctx, func(ctx context.Context) error {
		res, err := s.conn(ctx).ExecContext(ctx, `
			DELETE FROM comments WHERE id IN (
				WITH RECURSIVE descendants(id) AS (
					SELECT id FROM comments WHERE id = ?
					UNION ALL
					SELECT c.id FROM comments c JOIN descendants d ON c.parent_comment_id = d.id
				)
				SELECT id FROM descendants
			) AND task_id IN (SELECT id FROM tasks WHERE organization_id = ?)`, commentID, organizationID)
		if err != nil {
			return fmt.Errorf("sqlite: delete comment: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}
