package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store"
)

func (s *Store) CreateRelationship(ctx context.Context, organizationID, parentID, childID int64, relType model.RelationshipType) (*model.Relationship, error) {
	var existing model.Relationship
	err := s.conn(ctx).GetContext(ctx, &existing, `
		SELECT r.id, r.parent_task_id, r.child_task_id, r.type, r.created_at
		FROM relationships r
		JOIN tasks p ON p.id = r.parent_task_id
		WHERE r.parent_task_id = ? AND r.child_task_id = ? AND r.type = ? AND p.organization_id = ?`,
		parentID, childID, relType, organizationID)
	if err == nil {
		return &existing, nil // idempotent re-add
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: create relationship: check existing: %w", err)
	}

	res, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO relationships (parent_task_id, child_task_id, type, created_at)
		SELECT ?, ?, ?, CURRENT_TIMESTAMP
		WHERE EXISTS (SELECT 1 FROM tasks WHERE id = ? AND organization_id = ?)
		AND EXISTS (SELECT 1 FROM tasks WHERE id = ? AND organization_id = ?)`,
		parentID, childID, relType, parentID, organizationID, childID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create relationship: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create relationship: rows affected: %w", err)
	}
	if n == 0 {
		return nil, store.ErrNotFound
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create relationship: last insert id: %w", err)
	}
	return s.getRelationship(ctx, id)
}

func (s *Store) getRelationship(ctx context.Context, id int64) (*model.Relationship, error) {
	var r model.Relationship
	if err := s.conn(ctx).GetContext(ctx, &r, `
		SELECT id, parent_task_id, child_task_id, type, created_at FROM relationships WHERE id = ?`, id); err != nil {
		return nil, wrapErr(err)
	}
	return &r, nil
}

func (s *Store) DeleteRelationship(ctx context.Context, organizationID int64, relationshipID int64) error {
	res, err := s.conn(ctx).ExecContext(ctx, `
		DELETE FROM relationships WHERE id = ? AND parent_task_id IN (
			SELECT id FROM tasks WHERE organization_id = ?
		)`, relationshipID, organizationID)
	if err != nil {
		return fmt.Errorf("sqlite: delete relationship: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListRelationships(ctx context.Context, organizationID, taskID int64, relType *model.RelationshipType) ([]*model.Relationship, error) {
	query := `SELECT r.id, r.parent_task_id, r.child_task_id, r.type, r.created_at FROM relationships r
		WHERE (r.parent_task_id = ? OR r.child_task_id = ?)
		AND EXISTS (SELECT 1 FROM tasks t WHERE t.id = ? AND t.organization_id = ?)`
	args := []any{taskID, taskID, taskID, organizationID}
	if relType != nil {
		query += ` AND r.type = ?`
		args = append(args, *relType)
	}
	var rels []*model.Relationship
	if err := s.conn(ctx).SelectContext(ctx, &rels, query, args...); err != nil {
		return nil, fmt.Errorf("sqlite: list relationships: %w", err)
	}
	return rels, nil
}

func (s *Store) OutgoingEdges(ctx context.Context, organizationID, taskID int64, relType model.RelationshipType) ([]*model.Relationship, error) {
	var rels []*model.Relationship
	err := s.conn(ctx).SelectContext(ctx, &rels, `
		SELECT r.id, r.parent_task_id, r.child_task_id, r.type, r.created_at FROM relationships r
		JOIN tasks p ON p.id = r.parent_task_id
		WHERE r.parent_task_id = ? AND r.type = ? AND p.organization_id = ?`, taskID, relType, organizationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: outgoing edges: %w", err)
	}
	return rels, nil
}

func (s *Store) IncomingEdges(ctx context.Context, organizationID, taskID int64, relType model.RelationshipType) ([]*model.Relationship, error) {
	var rels []*model.Relationship
	err := s.conn(ctx).SelectContext(ctx, &rels, `
		SELECT r.id, r.parent_task_id, r.child_task_id, r.type, r.created_at FROM relationships r
		JOIN tasks c ON c.id = r.child_task_id
		WHERE r.child_task_id = ? AND r.type = ? AND c.organization_id = ?`, taskID, relType, organizationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: incoming edges: %w", err)
	}
	return rels, nil
}
