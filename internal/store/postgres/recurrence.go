package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store"
)

func (s *Store) CreateRecurrence(ctx context.Context, r *model.Recurrence) (*model.Recurrence, error) {
	if !r.IsActive {
		r.IsActive = true
	}
	cfg, err := json.Marshal(r.Config)
	if err != nil {
		return nil, fmt.Errorf("postgres: create recurrence: marshal config: %w", err)
	}
	err = s.conn(ctx).QueryRow(ctx, `
		INSERT INTO recurrences (base_task_id, organization_id, recurrence_type, config,
			next_occurrence, last_occurrence_created, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now()) RETURNING id, created_at, updated_at`,
		r.BaseTaskID, r.OrganizationID, r.RecurrenceType, cfg, r.NextOccurrence,
		r.LastOccurrenceCreated, r.IsActive).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: create recurrence: %w", err)
	}
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
	IsActive              bool       `db:"is_active"`
	CreatedAt             time.Time  `db:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at"`
}

func (row recurrenceRow) toModel() *model.Recurrence {
	r := &model.Recurrence{
		ID: row.ID, BaseTaskID: row.BaseTaskID, OrganizationID: row.OrganizationID,
		RecurrenceType: model.RecurrenceType(row.RecurrenceType), NextOccurrence: row.NextOccurrence,
		LastOccurrenceCreated: row.LastOccurrenceCreated, IsActive: row.IsActive,
		CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
	if len(row.Config) > 0 {
		_ = json.Unmarshal(row.Config, &r.Config)
	}
	return r
}

const recurrenceColumns = `id, base_task_id, organization_id, recurrence_type, config, next_occurrence,
	last_occurrence_created, is_active, created_at, updated_at`

func (s *Store) ListActiveRecurrences(ctx context.Context, organizationID int64) ([]*model.Recurrence, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT `+recurrenceColumns+`
		FROM recurrences WHERE organization_id = $1 AND is_active = true`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active recurrences: %w", err)
	}
	rowObjs, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[recurrenceRow])
	if err != nil {
		return nil, fmt.Errorf("postgres: list active recurrences: %w", err)
	}
	out := make([]*model.Recurrence, 0, len(rowObjs))
	for _, row := range rowObjs {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (s *Store) DueRecurrences(ctx context.Context, now time.Time) ([]*model.Recurrence, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT `+recurrenceColumns+`
		FROM recurrences WHERE is_active = true AND next_occurrence <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: due recurrences: %w", err)
	}
	rowObjs, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[recurrenceRow])
	if err != nil {
		return nil, fmt.Errorf("postgres: due recurrences: %w", err)
	}
	out := make([]*model.Recurrence, 0, len(rowObjs))
	for _, row := range rowObjs {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (s *Store) AdvanceRecurrence(ctx context.Context, recurrenceID int64, nextOccurrence time.Time, lastCreated time.Time) error {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE recurrences SET next_occurrence = $1, last_occurrence_created = $2, updated_at = now()
		WHERE id = $3`, nextOccurrence, lastCreated, recurrenceID)
	if err != nil {
		return fmt.Errorf("postgres: advance recurrence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeactivateRecurrence(ctx context.Context, organizationID, recurrenceID int64) error {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE recurrences SET is_active = false, updated_at = now() WHERE id = $1 AND organization_id = $2`,
		recurrenceID, organizationID)
	if err != nil {
		return fmt.Errorf("postgres: deactivate recurrence: %w", err)
	}
	if tag.RowsAffected() == 0 {
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
	n := 1
	for k, v := range fields {
		if !allowedRecurrenceFields[k] {
			return nil, fmt.Errorf("postgres: update recurrence: %q is not an updatable field", k)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", k, n))
		args = append(args, v)
		n++
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, recurrenceID, organizationID)
	tag, err := s.conn(ctx).Exec(ctx, fmt.Sprintf(`
		UPDATE recurrences SET %s WHERE id = $%d AND organization_id = $%d`, strings.Join(sets, ", "), n, n+1), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: update recurrence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrNotFound
	}
	return s.getRecurrence(ctx, organizationID, recurrenceID)
}

func (s *Store) getRecurrence(ctx context.Context, organizationID, recurrenceID int64) (*model.Recurrence, error) {
	row := s.conn(ctx).QueryRow(ctx, `SELECT `+recurrenceColumns+`
		FROM recurrences WHERE id = $1 AND organization_id = $2`, recurrenceID, organizationID)
	rr, err := pgx.RowToStructByNameLax[recurrenceRow](row)
	if err != nil {
		return nil, wrapErr(err)
	}
	return rr.toModel(), nil
}
