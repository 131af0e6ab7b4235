package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/agentbroker/taskbroker/internal/model"
)

func (s *Store) RecordChange(ctx context.Context, h *model.ChangeHistory) (*model.ChangeHistory, error) {
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO change_history (task_id, agent_id, change_type, field_name, old_value, new_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now()) RETURNING id, created_at`,
		h.TaskID, h.AgentID, h.ChangeType, h.FieldName, h.OldValue, h.NewValue).Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: record change: %w", err)
	}
	return h, nil
}

func (s *Store) ListHistory(ctx context.Context, organizationID, taskID int64, limit int) ([]*model.ChangeHistory, error) {
	if limit <= 0 {
		limit = model.DefaultQueryLimit
	}
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT h.id, h.task_id, h.agent_id, h.change_type, h.field_name, h.old_value, h.new_value, h.created_at
		FROM change_history h JOIN tasks t ON t.id = h.task_id
		WHERE h.task_id = $1 AND t.organization_id = $2
		ORDER BY h.created_at ASC LIMIT $3`, taskID, organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list history: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[model.ChangeHistory])
}

func (s *Store) ActivityFeed(ctx context.Context, filter model.ActivityFeedFilter) ([]model.ActivityEntry, error) {
	if filter.Limit <= 0 {
		filter.Limit = model.DefaultQueryLimit
	}
	where := `t.organization_id = $1`
	args := []any{filter.OrganizationID}
	n := 2
	if filter.TaskID != nil {
		where += fmt.Sprintf(` AND h.task_id = $%d`, n)
		args = append(args, *filter.TaskID)
		n++
	}
	if filter.AgentID != nil {
		where += fmt.Sprintf(` AND h.agent_id = $%d`, n)
		args = append(args, *filter.AgentID)
		n++
	}
	if filter.Since != nil {
		where += fmt.Sprintf(` AND h.created_at >= $%d`, n)
		args = append(args, *filter.Since)
		n++
	}
	if filter.Until != nil {
		where += fmt.Sprintf(` AND h.created_at <= $%d`, n)
		args = append(args, *filter.Until)
		n++
	}

	changeRows, err := s.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT h.task_id, h.agent_id, h.change_type, h.created_at
		FROM change_history h JOIN tasks t ON t.id = h.task_id WHERE %s`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: activity feed: changes: %w", err)
	}
	var entries []model.ActivityEntry
	for changeRows.Next() {
		var taskID int64
		var agentID, changeType string
		var createdAt time.Time
		if err := changeRows.Scan(&taskID, &agentID, &changeType, &createdAt); err != nil {
			changeRows.Close()
			return nil, fmt.Errorf("postgres: activity feed: changes: scan: %w", err)
		}
		entries = append(entries, model.ActivityEntry{
			Source: "change", TaskID: taskID, AgentID: agentID,
			ChangeType: model.ChangeType(changeType), CreatedAt: createdAt,
		})
	}
	changeRows.Close()
	if err := changeRows.Err(); err != nil {
		return nil, err
	}

	whereU := `t.organization_id = $1`
	argsU := []any{filter.OrganizationID}
	n = 2
	if filter.TaskID != nil {
		whereU += fmt.Sprintf(` AND u.task_id = $%d`, n)
		argsU = append(argsU, *filter.TaskID)
		n++
	}
	if filter.AgentID != nil {
		whereU += fmt.Sprintf(` AND u.author_id = $%d`, n)
		argsU = append(argsU, *filter.AgentID)
		n++
	}
	if filter.Since != nil {
		whereU += fmt.Sprintf(` AND u.created_at >= $%d`, n)
		argsU = append(argsU, *filter.Since)
		n++
	}
	if filter.Until != nil {
		whereU += fmt.Sprintf(` AND u.created_at <= $%d`, n)
		argsU = append(argsU, *filter.Until)
		n++
	}
	updateRows, err := s.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT u.task_id, u.author_id, u.update_type, u.content, u.created_at
		FROM task_updates u JOIN tasks t ON t.id = u.task_id WHERE %s`, whereU), argsU...)
	if err != nil {
		return nil, fmt.Errorf("postgres: activity feed: updates: %w", err)
	}
	for updateRows.Next() {
		var taskID int64
		var authorID, updateType, content string
		var createdAt time.Time
		if err := updateRows.Scan(&taskID, &authorID, &updateType, &content, &createdAt); err != nil {
			updateRows.Close()
			return nil, fmt.Errorf("postgres: activity feed: updates: scan: %w", err)
		}
		entries = append(entries, model.ActivityEntry{
			Source: "update", TaskID: taskID, AgentID: authorID,
			UpdateType: model.UpdateType(updateType), Content: content, CreatedAt: createdAt,
		})
	}
	updateRows.Close()
	if err := updateRows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	entries = dedupSameSecond(entries)
	if len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return entries, nil
}

// dedupSameSecond collapses repeated events with the same
// (task_id, change_type, payload) within the same second into one
// presented entry, mirroring the sqlite dialect's feed view.
func dedupSameSecond(entries []model.ActivityEntry) []model.ActivityEntry {
	type key struct {
		taskID  int64
		kind    string
		payload string
		second  int64
	}
	seen := make(map[key]bool, len(entries))
	out := make([]model.ActivityEntry, 0, len(entries))
	for _, e := range entries {
		payload := string(e.ChangeType)
		if e.Source == "update" {
			payload = string(e.UpdateType) + "|" + e.Content
		}
		k := key{taskID: e.TaskID, kind: e.Source, payload: payload, second: e.CreatedAt.Unix()}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}
