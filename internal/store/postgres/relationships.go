package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store"
)

func (s *Store) CreateRelationship(ctx context.Context, organizationID, parentID, childID int64, relType model.RelationshipType) (*model.Relationship, error) {
	row := s.conn(ctx).QueryRow(ctx, `
		SELECT r.id, r.parent_task_id, r.child_task_id, r.type, r.created_at
		FROM relationships r JOIN tasks p ON p.id = r.parent_task_id
		WHERE r.parent_task_id = $1 AND r.child_task_id = $2 AND r.type = $3 AND p.organization_id = $4`,
		parentID, childID, relType, organizationID)
	existing, err := pgx.RowToStructByNameLax[model.Relationship](row)
	if err == nil {
		return &existing, nil // idempotent re-add
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: create relationship: check existing: %w", err)
	}

	insertRow := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO relationships (parent_task_id, child_task_id, type, created_at)
		SELECT $1, $2, $3, now()
		WHERE EXISTS (SELECT 1 FROM tasks WHERE id = $1 AND organization_id = $4)
		AND EXISTS (SELECT 1 FROM tasks WHERE id = $2 AND organization_id = $4)
		RETURNING id, parent_task_id, child_task_id, type, created_at`,
		parentID, childID, relType, organizationID)
	created, err := pgx.RowToStructByNameLax[model.Relationship](insertRow)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: create relationship: %w", err)
	}
	return &created, nil
}

func (s *Store) DeleteRelationship(ctx context.Context, organizationID int64, relationshipID int64) error {
	tag, err := s.conn(ctx).Exec(ctx, `
		DELETE FROM relationships WHERE id = $1 AND parent_task_id IN (
			SELECT id FROM tasks WHERE organization_id = $2
		)`, relationshipID, organizationID)
	if err != nil {
		return fmt.Errorf("postgres: delete relationship: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListRelationships(ctx context.Context, organizationID, taskID int64, relType *model.RelationshipType) ([]*model.Relationship, error) {
	query := `SELECT r.id, r.parent_task_id, r.child_task_id, r.type, r.created_at FROM relationships r
		WHERE (r.parent_task_id = $1 OR r.child_task_id = $1)
		AND EXISTS (SELECT 1 FROM tasks t WHERE t.id = $1 AND t.organization_id = $2)`
	args := []any{taskID, organizationID}
	if relType != nil {
		query += ` AND r.type = $3`
		args = append(args, *relType)
	}
	rows, err := s.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list relationships: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[model.Relationship])
}

func (s *Store) OutgoingEdges(ctx context.Context, organizationID, taskID int64, relType model.RelationshipType) ([]*model.Relationship, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT r.id, r.parent_task_id, r.child_task_id, r.type, r.created_at FROM relationships r
		JOIN tasks p ON p.id = r.parent_task_id
		WHERE r.parent_task_id = $1 AND r.type = $2 AND p.organization_id = $3`, taskID, relType, organizationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: outgoing edges: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[model.Relationship])
}

func (s *Store) IncomingEdges(ctx context.Context, organizationID, taskID int64, relType model.RelationshipType) ([]*model.Relationship, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT r.id, r.parent_task_id, r.child_task_id, r.type, r.created_at FROM relationships r
		JOIN tasks c ON c.id = r.child_task_id
		WHERE r.child_task_id = $1 AND r.type = $2 AND c.organization_id = $3`, taskID, relType, organizationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: incoming edges: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[model.Relationship])
}
