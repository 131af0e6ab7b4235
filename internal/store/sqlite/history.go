package sqlite

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/agentbroker/taskbroker/internal/model"
)

func (s *Store) RecordChange(ctx context.Context, h *model.ChangeHistory) (*model.ChangeHistory, error) {
	h.CreatedAt = time.Now().UTC()
	res, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO change_history (task_id, agent_id, change_type, field_name, old_value, new_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.TaskID, h.AgentID, h.ChangeType, h.FieldName, h.OldValue, h.NewValue, h.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: record change: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: record change: last insert id: %w", err)
	}
	h.ID = id
	return h, nil
}

func (s *Store) ListHistory(ctx context.Context, organizationID, taskID int64, limit int) ([]*model.ChangeHistory, error) {
	if limit <= 0 {
		limit = model.DefaultQueryLimit
	}
	var history []*model.ChangeHistory
	err := s.conn(ctx).SelectContext(ctx, &history, `
		SELECT h.id, h.task_id, h.agent_id, h.change_type, h.field_name, h.old_value, h.new_value, h.created_at
		FROM change_history h JOIN tasks t ON t.id = h.task_id
		WHERE h.task_id = ? AND t.organization_id = ?
		ORDER BY h.created_at ASC LIMIT ?`, taskID, organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list history: %w", err)
	}
	return history, nil
}

func (s *Store) ActivityFeed(ctx context.Context, filter model.ActivityFeedFilter) ([]model.ActivityEntry, error) {
	if filter.Limit <= 0 {
		filter.Limit = model.DefaultQueryLimit
	}
	where := `t.organization_id = ?`
	args := []any{filter.OrganizationID}
	if filter.TaskID != nil {
		where += ` AND h.task_id = ?`
		args = append(args, *filter.TaskID)
	}
	if filter.AgentID != nil {
		where += ` AND h.agent_id = ?`
		args = append(args, *filter.AgentID)
	}
	if filter.Since != nil {
		where += ` AND h.created_at >= ?`
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		where += ` AND h.created_at <= ?`
		args = append(args, *filter.Until)
	}

	var changes []struct {
		TaskID     int64     `db:"task_id"`
		AgentID    string    `db:"agent_id"`
		ChangeType string    `db:"change_type"`
		CreatedAt  time.Time `db:"created_at"`
	}
	err := s.conn(ctx).SelectContext(ctx, &changes, fmt.Sprintf(`
		SELECT h.task_id, h.agent_id, h.change_type, h.created_at
		FROM change_history h JOIN tasks t ON t.id = h.task_id
		WHERE %s`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: activity feed: changes: %w", err)
	}

	whereU := `t.organization_id = ?`
	argsU := []any{filter.OrganizationID}
	if filter.TaskID != nil {
		whereU += ` AND u.task_id = ?`
		argsU = append(argsU, *filter.TaskID)
	}
	if filter.AgentID != nil {
		whereU += ` AND u.author_id = ?`
		argsU = append(argsU, *filter.AgentID)
	}
	if filter.Since != nil {
		whereU += ` AND u.created_at >= ?`
		argsU = append(argsU, *filter.Since)
	}
	if filter.Until != nil {
		whereU += ` AND u.created_at <= ?`
		argsU = append(argsU, *filter.Until)
	}
	var updates []struct {
		TaskID     int64     `db:"task_id"`
		AuthorID   string    `db:"author_id"`
		UpdateType string    `db:"update_type"`
		Content    string    `db:"content"`
		CreatedAt  time.Time `db:"created_at"`
	}
	err = s.conn(ctx).SelectContext(ctx, &updates, fmt.Sprintf(`
		SELECT u.task_id, u.author_id, u.update_type, u.content, u.created_at
		FROM task_updates u JOIN tasks t ON t.id = u.task_id
		WHERE %s`, whereU), argsU...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: activity feed: updates: %w", err)
	}

	entries := make([]model.ActivityEntry, 0, len(changes)+len(updates))
	for _, c := range changes {
		entries = append(entries, model.ActivityEntry{
			Source: "change", TaskID: c.TaskID, AgentID: c.AgentID,
			ChangeType: model.ChangeType(c.ChangeType), CreatedAt: c.CreatedAt,
		})
	}
	for _, u := range updates {
		entries = append(entries, model.ActivityEntry{
			Source: "update", TaskID: u.TaskID, AgentID: u.AuthorID,
			UpdateType: model.UpdateType(u.UpdateType), Content: u.Content, CreatedAt: u.CreatedAt,
		})
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
// presented entry. Distinct underlying rows are
// unaffected; this only changes what the feed view returns.
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
