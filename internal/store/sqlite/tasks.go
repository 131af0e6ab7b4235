package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store"
)

const taskColumns = `id, title, project_id, organization_id, task_type, task_instruction,
	verification_instruction, notes, task_status, verification_status, assigned_agent,
	priority, due_date, estimated_hours, started_at, completed_at, actual_hours,
	created_at, updated_at`

func (s *Store) CreateTask(ctx context.Context, t *model.Task) (*model.Task, error) {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.TaskStatus == "" {
		t.TaskStatus = model.TaskStatusAvailable
	}
	if t.VerificationStatus == "" {
		t.VerificationStatus = model.VerificationUnverified
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	res, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO tasks (title, project_id, organization_id, task_type, task_instruction,
			verification_instruction, notes, task_status, verification_status, assigned_agent,
			priority, due_date, estimated_hours, started_at, completed_at, actual_hours,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Title, t.ProjectID, t.OrganizationID, t.TaskType, t.TaskInstruction,
		t.VerificationInstruction, t.Notes, t.TaskStatus, t.VerificationStatus, t.AssignedAgent,
		t.Priority, t.DueDate, t.EstimatedHours, t.StartedAt, t.CompletedAt, t.ActualHours,
		t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create task: last insert id: %w", err)
	}
	t.ID = id
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, organizationID, taskID int64) (*model.Task, error) {
	var t model.Task
	err := store.RetryRead(ctx, func() error {
		return wrapErr(s.conn(ctx).GetContext(ctx, &t, `
			SELECT `+taskColumns+` FROM tasks WHERE id = ? AND organization_id = ?`,
			taskID, organizationID))
	})
	if err != nil {
		return nil, err
	}
	t.ComputeTimeDelta()
	return &t, nil
}

func (s *Store) DeleteTask(ctx context.Context, organizationID, taskID int64) error {
	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND organization_id = ?`, taskID, organizationID)
	if err != nil {
		return fmt.Errorf("sqlite: delete task: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// allowedTaskFields is the closed set of columns UpdateTaskFields may
// touch; this prevents a caller-supplied field map from reaching
// arbitrary column names.
var allowedTaskFields = map[string]bool{
	"title": true, "task_type": true, "task_instruction": true,
	"verification_instruction": true, "notes": true, "priority": true,
	"due_date": true, "estimated_hours": true, "project_id": true,
}

func (s *Store) UpdateTaskFields(ctx context.Context, organizationID, taskID int64, fields map[string]any) (*model.Task, error) {
	if len(fields) == 0 {
		return s.GetTask(ctx, organizationID, taskID)
	}
	var setClauses []string
	var args []any
	for k, v := range fields {
		if !allowedTaskFields[k] {
			return nil, fmt.Errorf("sqlite: update task fields: %q is not an updatable field", k)
		}
		setClauses = append(setClauses, k+" = ?")
		args = append(args, v)
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, time.Now().UTC())
	args = append(args, taskID, organizationID)

	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = ? AND organization_id = ?`, strings.Join(setClauses, ", "))
	res, err := s.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: update task fields: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetTask(ctx, organizationID, taskID)
}

func buildFilterClause(filter model.TaskFilter) (string, []any) {
	clauses := []string{"organization_id = ?"}
	args := []any{filter.OrganizationID}
	if filter.ProjectID != nil {
		clauses = append(clauses, "project_id = ?")
		args = append(args, *filter.ProjectID)
	}
	if filter.TaskType != nil {
		clauses = append(clauses, "task_type = ?")
		args = append(args, *filter.TaskType)
	}
	if filter.TaskStatus != nil {
		clauses = append(clauses, "task_status = ?")
		args = append(args, *filter.TaskStatus)
	}
	if filter.Priority != nil {
		clauses = append(clauses, "priority = ?")
		args = append(args, *filter.Priority)
	}
	if filter.AssignedAgent != nil {
		clauses = append(clauses, "assigned_agent = ?")
		args = append(args, *filter.AssignedAgent)
	}
	if filter.DueBefore != nil {
		clauses = append(clauses, "due_date <= ?")
		args = append(args, *filter.DueBefore)
	}
	if filter.DueAfter != nil {
		clauses = append(clauses, "due_date >= ?")
		args = append(args, *filter.DueAfter)
	}
	return strings.Join(clauses, " AND "), args
}

func orderClause(o model.OrderBy) string {
	switch o {
	case model.OrderByPriority:
		return `CASE priority WHEN 'critical' THEN 3 WHEN 'high' THEN 2 WHEN 'medium' THEN 1 ELSE 0 END DESC, updated_at DESC`
	case model.OrderByPriorityAsc:
		return `CASE priority WHEN 'critical' THEN 3 WHEN 'high' THEN 2 WHEN 'medium' THEN 1 ELSE 0 END ASC, updated_at DESC`
	default:
		return `updated_at DESC`
	}
}

func (s *Store) QueryTasks(ctx context.Context, filter model.TaskFilter) ([]*model.Task, error) {
	filter.Normalize()
	where, whereArgs := buildFilterClause(filter)
	var tagJoin string
	var args []any
	if filter.TagName != nil {
		tagJoin = `JOIN task_tags tt ON tt.task_id = tasks.id JOIN tags tg ON tg.id = tt.tag_id AND tg.name = ?`
		args = append(args, *filter.TagName)
	}
	args = append(args, whereArgs...)
	query := fmt.Sprintf(`SELECT %s FROM tasks %s WHERE %s ORDER BY %s LIMIT ? OFFSET ?`,
		prefixColumns("tasks"), tagJoin, prefixWhere(where), orderClause(filter.OrderBy))
	args = append(args, filter.Limit, filter.Offset)

	var tasks []*model.Task
	err := store.RetryRead(ctx, func() error {
		tasks = nil
		return s.conn(ctx).SelectContext(ctx, &tasks, query, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: query tasks: %w", err)
	}
	for _, t := range tasks {
		t.ComputeTimeDelta()
	}
	return tasks, nil
}

// prefixColumns/prefixWhere exist because the optional tag join requires
// fully-qualified column references while the common case does not; this
// keeps the unqualified path's query plan unchanged.
func prefixColumns(table string) string {
	cols := strings.Split(taskColumns, ",")
	for i, c := range cols {
		cols[i] = table + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

func prefixWhere(where string) string {
	return "tasks." + strings.ReplaceAll(where, " AND ", " AND tasks.")
}

func (s *Store) SearchTasks(ctx context.Context, organizationID int64, query string, limit int) ([]*model.Task, error) {
	if limit <= 0 || limit > model.MaxQueryLimit {
		limit = model.DefaultQueryLimit
	}
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		var tasks []*model.Task
		err := s.conn(ctx).SelectContext(ctx, &tasks, fmt.Sprintf(`
			SELECT %s FROM tasks WHERE organization_id = ? ORDER BY updated_at DESC LIMIT ?`, taskColumns),
			organizationID, limit)
		if err != nil {
			return nil, fmt.Errorf("sqlite: search tasks (empty query): %w", err)
		}
		for _, t := range tasks {
			t.ComputeTimeDelta()
		}
		return tasks, nil
	}

	// Tokenized case-insensitive substring match, ranked by distinct
	// token-hit count then updated_at.
	var scoreParts, whereParts []string
	var likeArgs []any
	for _, tok := range tokens {
		like := "%" + tok + "%"
		scoreParts = append(scoreParts,
			`(CASE WHEN lower(title) LIKE ? OR lower(task_instruction) LIKE ? OR lower(coalesce(notes,'')) LIKE ? THEN 1 ELSE 0 END)`)
		whereParts = append(whereParts, `(lower(title) LIKE ? OR lower(task_instruction) LIKE ? OR lower(coalesce(notes,'')) LIKE ?)`)
		likeArgs = append(likeArgs, like, like, like)
	}
	scoreExpr := strings.Join(scoreParts, " + ")

	q := fmt.Sprintf(`
		SELECT %s, (%s) AS score FROM tasks
		WHERE organization_id = ? AND (%s)
		ORDER BY score DESC, updated_at DESC LIMIT ?`,
		taskColumns, scoreExpr, strings.Join(whereParts, " OR "))

	// Placeholder order follows the query text: score expr first, then
	// organization_id, then the WHERE token clauses, then limit.
	fullArgs := append(append([]any{}, likeArgs...), organizationID)
	fullArgs = append(fullArgs, likeArgs...)
	fullArgs = append(fullArgs, limit)

	rows, err := s.conn(ctx).QueryxContext(ctx, q, fullArgs...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search tasks: %w", err)
	}
	defer rows.Close()
	var tasks []*model.Task
	for rows.Next() {
		var t model.Task
		var score int
		if err := rows.Scan(&t.ID, &t.Title, &t.ProjectID, &t.OrganizationID, &t.TaskType,
			&t.TaskInstruction, &t.VerificationInstruction, &t.Notes, &t.TaskStatus,
			&t.VerificationStatus, &t.AssignedAgent, &t.Priority, &t.DueDate, &t.EstimatedHours,
			&t.StartedAt, &t.CompletedAt, &t.ActualHours, &t.CreatedAt, &t.UpdatedAt, &score); err != nil {
			return nil, fmt.Errorf("sqlite: search tasks: scan: %w", err)
		}
		t.ComputeTimeDelta()
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

func (s *Store) TaskStatistics(ctx context.Context, filter model.TaskFilter) (*model.TaskStatistics, error) {
	where, args := buildFilterClause(filter)
	stats := &model.TaskStatistics{
		ByStatus:   map[string]int{},
		ByType:     map[string]int{},
		ByPriority: map[string]int{},
	}

	type row struct {
		Status string `db:"task_status"`
		Type   string `db:"task_type"`
		Prio   string `db:"priority"`
		N      int    `db:"n"`
	}
	var rows []row
	q := fmt.Sprintf(`SELECT task_status, task_type, priority, COUNT(*) AS n FROM tasks
		WHERE %s GROUP BY task_status, task_type, priority`, where)
	if err := s.conn(ctx).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("sqlite: task statistics: %w", err)
	}
	for _, r := range rows {
		stats.ByStatus[r.Status] += r.N
		stats.ByType[r.Type] += r.N
		stats.ByPriority[r.Prio] += r.N
		stats.Total += r.N
	}

	var overdue int
	if err := s.conn(ctx).GetContext(ctx, &overdue, fmt.Sprintf(`SELECT COUNT(*) FROM tasks
		WHERE %s AND due_date IS NOT NULL AND due_date < ? AND task_status NOT IN ('complete','cancelled')`, where),
		append(args, time.Now().UTC())...); err != nil {
		return nil, fmt.Errorf("sqlite: task statistics overdue: %w", err)
	}
	stats.OverdueCount = overdue

	var avg *float64
	if err := s.conn(ctx).GetContext(ctx, &avg, fmt.Sprintf(`SELECT AVG(actual_hours) FROM tasks WHERE %s AND actual_hours IS NOT NULL`, where), args...); err == nil {
		stats.AverageHours = avg
	}
	return stats, nil
}

func (s *Store) TaskSummaries(ctx context.Context, filter model.TaskFilter) ([]*model.Task, error) {
	return s.QueryTasks(ctx, filter)
}

func (s *Store) RecentCompletions(ctx context.Context, organizationID int64, since time.Time, limit int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = model.DefaultQueryLimit
	}
	var tasks []*model.Task
	err := s.conn(ctx).SelectContext(ctx, &tasks, fmt.Sprintf(`
		SELECT %s FROM tasks WHERE organization_id = ? AND task_status = 'complete' AND completed_at >= ?
		ORDER BY completed_at DESC LIMIT ?`, taskColumns), organizationID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent completions: %w", err)
	}
	return tasks, nil
}

func (s *Store) ApproachingDeadline(ctx context.Context, organizationID int64, within time.Duration, limit int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = model.DefaultQueryLimit
	}
	now := time.Now().UTC()
	var tasks []*model.Task
	err := s.conn(ctx).SelectContext(ctx, &tasks, fmt.Sprintf(`
		SELECT %s FROM tasks WHERE organization_id = ? AND due_date IS NOT NULL
		AND due_date BETWEEN ? AND ? AND task_status NOT IN ('complete','cancelled')
		ORDER BY due_date ASC LIMIT ?`, taskColumns), organizationID, now, now.Add(within), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: approaching deadline: %w", err)
	}
	return tasks, nil
}

func (s *Store) OverdueTasks(ctx context.Context, organizationID int64, limit int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = model.DefaultQueryLimit
	}
	var tasks []*model.Task
	err := s.conn(ctx).SelectContext(ctx, &tasks, fmt.Sprintf(`
		SELECT %s FROM tasks WHERE organization_id = ? AND due_date IS NOT NULL AND due_date < ?
		AND task_status NOT IN ('complete','cancelled') ORDER BY due_date ASC LIMIT ?`, taskColumns),
		organizationID, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: overdue tasks: %w", err)
	}
	return tasks, nil
}

func (s *Store) StaleTasks(ctx context.Context, organizationID int64, threshold time.Duration, limit int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = model.DefaultQueryLimit
	}
	cutoff := time.Now().UTC().Add(-threshold)
	var tasks []*model.Task
	err := s.conn(ctx).SelectContext(ctx, &tasks, fmt.Sprintf(`
		SELECT %s FROM tasks WHERE organization_id = ? AND task_status = 'in_progress' AND updated_at < ?
		ORDER BY updated_at ASC LIMIT ?`, taskColumns), organizationID, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: stale tasks: %w", err)
	}
	return tasks, nil
}

func (s *Store) AvailableForImplementation(ctx context.Context, organizationID int64, limit int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = model.DefaultQueryLimit
	}
	var tasks []*model.Task
	// Bucket 0: needs-verification (complete+unverified). Bucket 1:
	// genuinely available. Concrete tasks only.
	err := s.conn(ctx).SelectContext(ctx, &tasks, fmt.Sprintf(`
		SELECT %s FROM tasks WHERE organization_id = ? AND task_type = 'concrete'
		AND ((task_status = 'complete' AND verification_status = 'unverified') OR task_status = 'available')
		ORDER BY
			CASE WHEN task_status = 'complete' THEN 0 ELSE 1 END ASC,
			%s
		LIMIT ?`, taskColumns, orderClause(model.OrderByPriority)),
		organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: available for implementation: %w", err)
	}
	for _, t := range tasks {
		t.NeedsVerification = t.TaskStatus == model.TaskStatusComplete && t.VerificationStatus == model.VerificationUnverified
		if t.NeedsVerification {
			t.EffectiveStatus = model.TaskStatusAvailable
		} else {
			t.EffectiveStatus = t.TaskStatus
		}
	}
	return tasks, nil
}

func (s *Store) AvailableForBreakdown(ctx context.Context, organizationID int64, limit int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = model.DefaultQueryLimit
	}
	var tasks []*model.Task
	err := s.conn(ctx).SelectContext(ctx, &tasks, fmt.Sprintf(`
		SELECT %s FROM tasks WHERE organization_id = ? AND task_type IN ('abstract','epic')
		AND task_status = 'available' ORDER BY %s LIMIT ?`, taskColumns, orderClause(model.OrderByPriority)),
		organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: available for breakdown: %w", err)
	}
	for _, t := range tasks {
		t.EffectiveStatus = t.TaskStatus
	}
	return tasks, nil
}
