package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store"
)

func (s *Store) CreateRecurrence(ctx context.Context, r *model.Recurrence) (*model.Recurrence, error) {
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	if !r.IsActive {
		r.IsActive = true
	}
	cfg, err := json.Marshal(r.Config)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create recurrence: marshal config: %w", err)
	}
	res, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO recurrences (base_task_id, organization_id, recurrence_type, config,
			next_occurrence, last_occurrence_created, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.BaseTaskID, r.OrganizationID, r.RecurrenceType, cfg, r.NextOccurrence,
		r.LastOccurrenceCreated, boolVal(r.IsActive), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create recurrence: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create recurrence: last insert id: %w", err)
	}
	r.ID = id
	return r, nil
}

type recurrenceRow struct {
	ID                    int64      `db:"id"`
	BaseTaskID            int64      `db:"base_task_id"`
	OrganizationID        int64      `db:"organization_id"`
	RecurrenceType        string     `db:"recurrence_type"`
	Config                []byte     `db:"config"`
	NextOccurrence        time.Time  `db:"next_occurrence"`
	LastOccurrenceCreated *time.Time `db:"last_occurrence_created"`
	IsActive              int        `db:"is_active"`
	CreatedAt             time.Time  `db:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at"`
}

func (row recurrenceRow) toModel() *model.Recurrence {
	r := &model.Recurrence{
		ID: row.ID, BaseTaskID: row.BaseTaskID, OrganizationID: row.OrganizationID,
		RecurrenceType: model.RecurrenceType(row.RecurrenceType), NextOccurrence: row.NextOccurrence,
		LastOccurrenceCreated: row.LastOccurrenceCreated, IsActive: boolCol(row.IsActive),
		CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
	if len(row.Config) > 0 {
		_ = json.Unmarshal(row.Config, &r.Config)
	}
	return r
}

func (s *Store) ListActiveRecurrences(ctx context.Context, organizationID int64) ([]*model.Recurrence, error) {
	var rows []recurrenceRow
	err := s.conn(ctx).SelectContext(ctx, &rows, `
		SELECT id, base_task_id, organization_id, recurrence_type, config, next_occurrence,
			last_occurrence_created, is_active, created_at, updated_at
		FROM recurrences WHERE organization_id = ? AND is_active = 1`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list active recurrences: %w", err)
	}
	out := make([]*model.Recurrence, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (s *Store) DueRecurrences(ctx context.Context, now time.Time) ([]*model.Recurrence, error) {
	var rows []recurrenceRow
	err := s.conn(ctx).SelectContext(ctx, &rows, `
		SELECT id, base_task_id, organization_id, recurrence_type, config, next_occurrence,
			last_occurrence_created, is_active, created_at, updated_at
		FROM recurrences WHERE is_active = 1 AND next_occurrence <= ?`, now)
	if err != nil {
		return nil, fmt.Errorf("sqlite: due recurrences: %w", err)
	}
	out := make([]*model.Recurrence, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (s *Store) AdvanceRecurrence(ctx context.Context, recurrenceID int64, nextOccurrence time.Time, lastCreated time.Time) error {
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE recurrences SET next_occurrence = ?, last_occurrence_created = ?, updated_at = ?
		WHERE id = ?`, nextOccurrence, lastCreated, time.Now().UTC(), recurrenceID)
	if err != nil {
		return fmt.Errorf("sqlite: advance recurrence: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeactivateRecurrence(ctx context.Context, organizationID, recurrenceID int64) error {
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE recurrences SET is_active = 0, updated_at = ? WHERE id = ? AND organization_id = ?`,
		time.Now().UTC(), recurrenceID, organizationID)
	if err != nil {
		return fmt.Errorf("sqlite: deactivate recurrence: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

var allowedRecurrenceFields = map[string]bool{"next_occurrence": true, "is_active": true, "config": true}

func (s *Store) UpdateRecurrence(ctx context.Context, organizationID, recurrenceID int64, fields map[string]any) (*model.Recurrence, error) {
	if len(fields) == 0 {
		return s.getRecurrence(ctx, organizationID, recurrenceID)
	}
	var sets []string
	var args []any
	for k, v := range fields {
		if !allowedRecurrenceFields[k] {
			return nil, fmt.Errorf("sqlite: update recurrence: %q is not an updatable field", k)
		}
		sets = append(sets, k+" = ?")
		args = append(args, v)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), recurrenceID, organizationID)
	res, err := s.conn(ctx).ExecContext(ctx, fmt.Sprintf(`
		UPDATE recurrences SET %s WHERE id = ? AND organization_id = ?`, strings.Join(sets, ", ")), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: update recurrence: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, store.ErrNotFound
	}
	return s.getRecurrence(ctx, organizationID, recurrenceID)
}

func (s *Store) getRecurrence(ctx context.Context, organizationID, recurrenceID int64) (*model.Recurrence, error) {
	var row recurrenceRow
	err := s.conn(ctx).GetContext(ctx, &row, `
		SELECT id, base_task_id, organization_id, recurrence_type, config, next_occurrence,
			last_occurrence_created, is_active, created_at, updated_at
		FROM recurrences WHERE id = ? AND organization_id = ?`, recurrenceID, organizationID)
	if err != nil {
		return nil, wrapErr(err)
	}
	return row.toModel(), nil
}
