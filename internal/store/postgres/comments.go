package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store"
)

func (s *Store) CreateComment(ctx context.Context, c *model.Comment) (*model.Comment, error) {
	mentions, err := json.Marshal(c.MentionedAgents)
	if err != nil {
		return nil, fmt.Errorf("postgres: create comment: marshal mentions: %w", err)
	}
	err = s.conn(ctx).QueryRow(ctx, `
		INSERT INTO comments (task_id, parent_comment_id, author_id, content, mentioned_agents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now()) RETURNING id, created_at, updated_at`,
		c.TaskID, c.ParentCommentID, c.AuthorID, c.Content, mentions).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: create comment: %w", err)
	}
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
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT c.id, c.task_id, c.parent_comment_id, c.author_id, c.content, c.mentioned_agents, c.created_at, c.updated_at
		FROM comments c JOIN tasks t ON t.id = c.task_id
		WHERE c.task_id = $1 AND t.organization_id = $2 ORDER BY c.created_at ASC`, taskID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list task comments: %w", err)
	}
	rowObjs, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[commentRow])
	if err != nil {
		return nil, fmt.Errorf("postgres: list task comments: %w", err)
	}
	out := make([]*model.Comment, 0, len(rowObjs))
	for _, r := range rowObjs {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) GetThread(ctx context.Context, organizationID, rootCommentID int64) ([]*model.Comment, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		WITH RECURSIVE thread(id, task_id, parent_comment_id, author_id, content, mentioned_agents, created_at, updated_at) AS (
			SELECT c.id, c.task_id, c.parent_comment_id, c.author_id, c.content, c.mentioned_agents, c.created_at, c.updated_at
			FROM comments c WHERE c.id = $1
			UNION ALL
			SELECT c.id, c.task_id, c.parent_comment_id, c.author_id, c.content, c.mentioned_agents, c.created_at, c.updated_at
			FROM comments c JOIN thread ON c.parent_comment_id = thread.id
		)
		SELECT thread.id, thread.task_id, thread.parent_comment_id, thread.author_id, thread.content,
			thread.mentioned_agents, thread.created_at, thread.updated_at
		FROM thread JOIN tasks t ON t.id = thread.task_id WHERE t.organization_id = $2
		ORDER BY thread.created_at ASC`, rootCommentID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: get thread: %w", err)
	}
	rowObjs, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[commentRow])
	if err != nil {
		return nil, fmt.Errorf("postgres: get thread: %w", err)
	}
	out := make([]*model.Comment, 0, len(rowObjs))
	for _, r := range rowObjs {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) UpdateComment(ctx context.Context, organizationID, commentID int64, content string) (*model.Comment, error) {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE comments SET content = $1, updated_at = now() WHERE id = $2 AND task_id IN (
			SELECT id FROM tasks WHERE organization_id = $3
		)`, content, commentID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: update comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrNotFound
	}
	row := s.conn(ctx).QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, commentID)
	rr, err := pgx.RowToStructByNameLax[commentRow](row)
	if err != nil {
		return nil, wrapErr(err)
	}
	return rr.toModel(), nil
}

// DeleteComment cascades to all replies via a recursive CTE before
// deleting, mirroring the sqlite dialect's non-cascading comments schema.
func (s *Store) DeleteComment(ctx context.Context, organizationID, commentID int64) error {
	return s.Tx(ctx, func(ctx context.Context) error {
		tag, err := s.conn(ctx).Exec(ctx, `
			DELETE FROM comments WHERE id IN (
				WITH RECURSIVE descendants(id) AS (
					SELECT id FROM comments WHERE id = $1
					UNION ALL
					SELECT c.id FROM comments c JOIN descendants d ON c.parent_comment_id = d.id
				)
				SELECT id FROM descendants
			) AND task_id IN (SELECT id FROM tasks WHERE organization_id = $2)`, commentID, organizationID)
		if err != nil {
			return fmt.Errorf("postgres: delete comment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}
