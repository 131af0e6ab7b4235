package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store"
)

const taskColumns = `id, title, project_id, organization_id, task_type, task_instruction,
	verification_instruction, notes, task_status, verification_status, assigned_agent,
	priority, due_date, estimated_hours, started_at, completed_at, actual_hours,
	created_at, updated_at`

func (s *Store) CreateTask(ctx context.Context, t *model.Task) (*model.Task, error) {
	if t.TaskStatus == "" {
		t.TaskStatus = model.TaskStatusAvailable
	}
	if t.VerificationStatus == "" {
		t.VerificationStatus = model.VerificationUnverified
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	row := s.conn(ctx).QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO tasks (title, project_id, organization_id, task_type, task_instruction,
			verification_instruction, notes, task_status, verification_status, priority,
			due_date, estimated_hours, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING %s`, taskColumns),
		t.Title, t.ProjectID, t.OrganizationID, t.TaskType, t.TaskInstruction,
		t.VerificationInstruction, t.Notes, t.TaskStatus, t.VerificationStatus, t.Priority,
		t.DueDate, t.EstimatedHours)
	created, err := pgx.RowToStructByNameLax[model.Task](row)
	if err != nil {
		return nil, fmt.Errorf("postgres: create task: %w", err)
	}
	return &created, nil
}

func (s *Store) GetTask(ctx context.Context, organizationID, taskID int64) (*model.Task, error) {
	var out *model.Task
	err := store.RetryRead(ctx, func() error {
		row := s.conn(ctx).QueryRow(ctx, fmt.Sprintf(`
			SELECT %s FROM tasks WHERE id = $1 AND organization_id = $2`, taskColumns), taskID, organizationID)
		t, err := pgx.RowToStructByNameLax[model.Task](row)
		if err != nil {
			return wrapErr(err)
		}
		out = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.ComputeTimeDelta()
	return out, nil
}

func (s *Store) DeleteTask(ctx context.Context, organizationID, taskID int64) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND organization_id = $2`, taskID, organizationID)
	if err != nil {
		return fmt.Errorf("postgres: delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

var allowedTaskFields = map[string]bool{
	"title": true, "task_type": true, "task_instruction": true, "verification_instruction": true,
	"notes": true, "priority": true, "due_date": true, "estimated_hours": true, "project_id": true,
}

func (s *Store) UpdateTaskFields(ctx context.Context, organizationID, taskID int64, fields map[string]any) (*model.Task, error) {
	if len(fields) == 0 {
		return s.GetTask(ctx, organizationID, taskID)
	}
	var sets []string
	var args []any
	n := 1
	for k, v := range fields {
		if !allowedTaskFields[k] {
			return nil, fmt.Errorf("postgres: update task fields: %q is not an updatable field", k)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", k, n))
		args = append(args, v)
		n++
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, taskID, organizationID)
	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = $%d AND organization_id = $%d`, strings.Join(sets, ", "), n, n+1)
	tag, err := s.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: update task fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetTask(ctx, organizationID, taskID)
}

// buildFilterClause returns AND-joined predicates (not including the
// mandatory organization_id scope, which the caller supplies as $1) plus
// their args, numbered starting at startArg.
func buildFilterClause(filter model.TaskFilter, startArg int) (string, []any) {
	var clauses []string
	var args []any
	n := startArg
	add := func(expr string, v any) {
		clauses = append(clauses, fmt.Sprintf(expr, n))
		args = append(args, v)
		n++
	}
	if filter.ProjectID != nil {
		add("project_id = $%d", *filter.ProjectID)
	}
	if filter.TaskType != nil {
		add("task_type = $%d", *filter.TaskType)
	}
	if filter.TaskStatus != nil {
		add("task_status = $%d", *filter.TaskStatus)
	}
	if filter.Priority != nil {
		add("priority = $%d", *filter.Priority)
	}
	if filter.AssignedAgent != nil {
		add("assigned_agent = $%d", *filter.AssignedAgent)
	}
	if filter.DueBefore != nil {
		add("due_date <= $%d", *filter.DueBefore)
	}
	if filter.DueAfter != nil {
		add("due_date >= $%d", *filter.DueAfter)
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
	args := []any{filter.OrganizationID}

	var tagJoin string
	if filter.TagName != nil {
		tagJoin = fmt.Sprintf(` JOIN task_tags tt ON tt.task_id = tasks.id JOIN tags tg ON tg.id = tt.tag_id AND tg.name = $%d`, len(args)+1)
		args = append(args, *filter.TagName)
	}
	where, whereArgs := buildFilterClause(filter, len(args)+1)
	args = append(args, whereArgs...)

	query := fmt.Sprintf(`SELECT %s FROM tasks%s WHERE organization_id = $1`, taskColumns, tagJoin)
	if where != "" {
		query += " AND " + where
	}
	query += fmt.Sprintf(" ORDER BY %s LIMIT $%d OFFSET $%d", orderClause(filter.OrderBy), len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	var tasks []*model.Task
	err := store.RetryRead(ctx, func() error {
		rows, err := s.conn(ctx).Query(ctx, query, args...)
		if err != nil {
			return err
		}
		tasks, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[model.Task])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: query tasks: %w", err)
	}
	for _, t := range tasks {
		t.ComputeTimeDelta()
	}
	return tasks, nil
}

func (s *Store) SearchTasks(ctx context.Context, organizationID int64, query string, limit int) ([]*model.Task, error) {
	if limit <= 0 || limit > model.MaxQueryLimit {
		limit = model.DefaultQueryLimit
	}
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		rows, err := s.conn(ctx).Query(ctx, fmt.Sprintf(`
			SELECT %s FROM tasks WHERE organization_id = $1 ORDER BY updated_at DESC LIMIT $2`, taskColumns),
			organizationID, limit)
		if err != nil {
			return nil, fmt.Errorf("postgres: search tasks (empty query): %w", err)
		}
		tasks, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[model.Task])
		if err != nil {
			return nil, fmt.Errorf("postgres: search tasks (empty query): scan: %w", err)
		}
		for _, t := range tasks {
			t.ComputeTimeDelta()
		}
		return tasks, nil
	}

	// Tokenized case-insensitive substring match, ranked by distinct
	// token-hit count then updated_at, mirroring the sqlite dialect.
	var scoreParts, whereParts []string
	var likeArgs []any
	n := 2 // $1 is organization_id
	for _, tok := range tokens {
		like := "%" + tok + "%"
		scoreParts = append(scoreParts, fmt.Sprintf(
			`(CASE WHEN title ILIKE $%d OR task_instruction ILIKE $%d OR coalesce(notes,'') ILIKE $%d THEN 1 ELSE 0 END)`, n, n, n))
		whereParts = append(whereParts, fmt.Sprintf(
			`(title ILIKE $%d OR task_instruction ILIKE $%d OR coalesce(notes,'') ILIKE $%d)`, n, n, n))
		likeArgs = append(likeArgs, like)
		n++
	}

	q := fmt.Sprintf(`
		SELECT %s, (%s) AS score FROM tasks
		WHERE organization_id = $1 AND (%s)
		ORDER BY score DESC, updated_at DESC LIMIT $%d`,
		taskColumns, strings.Join(scoreParts, " + "), strings.Join(whereParts, " OR "), n)

	args := append([]any{organizationID}, likeArgs...)
	args = append(args, limit)

	rows, err := s.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search tasks: %w", err)
	}
	defer rows.Close()
	var tasks []*model.Task
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres: search tasks: values: %w", err)
		}
		t, err := scanTaskRow(vals)
		if err != nil {
			return nil, fmt.Errorf("postgres: search tasks: scan: %w", err)
		}
		t.ComputeTimeDelta()
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// scanTaskRow converts a raw row of taskColumns-plus-score values (as
// returned by rows.Values) into a *model.Task, discarding the trailing
// score column.
func scanTaskRow(vals []any) (*model.Task, error) {
	if len(vals) < 19 {
		return nil, fmt.Errorf("unexpected column count %d", len(vals))
	}
	t := &model.Task{}
	var ok bool
	if t.ID, ok = vals[0].(int64); !ok {
		return nil, fmt.Errorf("unexpected type for id: %T", vals[0])
	}
	t.Title, _ = vals[1].(string)
	if v, ok := vals[2].(int64); ok {
		t.ProjectID = &v
	}
	t.OrganizationID, _ = vals[3].(int64)
	t.TaskType = model.TaskType(fmt.Sprint(vals[4]))
	t.TaskInstruction, _ = vals[5].(string)
	t.VerificationInstruction, _ = vals[6].(string)
	if v, ok := vals[7].(string); ok {
		t.Notes = &v
	}
	t.TaskStatus = model.TaskStatus(fmt.Sprint(vals[8]))
	t.VerificationStatus = model.VerificationStatus(fmt.Sprint(vals[9]))
	if v, ok := vals[10].(string); ok {
		t.AssignedAgent = &v
	}
	t.Priority = model.Priority(fmt.Sprint(vals[11]))
	if v, ok := vals[12].(time.Time); ok {
		t.DueDate = &v
	}
	if v, ok := vals[13].(float64); ok {
		t.EstimatedHours = &v
	}
	if v, ok := vals[14].(time.Time); ok {
		t.StartedAt = &v
	}
	if v, ok := vals[15].(time.Time); ok {
		t.CompletedAt = &v
	}
	if v, ok := vals[16].(float64); ok {
		t.ActualHours = &v
	}
	t.CreatedAt, _ = vals[17].(time.Time)
	t.UpdatedAt, _ = vals[18].(time.Time)
	return t, nil
}

func (s *Store) TaskStatistics(ctx context.Context, filter model.TaskFilter) (*model.TaskStatistics, error) {
	where, args := buildFilterClause(filter, 2)
	args = append([]any{filter.OrganizationID}, args...)
	whereClause := "organization_id = $1"
	if where != "" {
		whereClause += " AND " + where
	}
	stats := &model.TaskStatistics{ByStatus: map[string]int{}, ByType: map[string]int{}, ByPriority: map[string]int{}}

	rows, err := s.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT task_status, task_type, priority, COUNT(*) FROM tasks
		WHERE %s GROUP BY task_status, task_type, priority`, whereClause), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: task statistics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status, typ, prio string
		var n int
		if err := rows.Scan(&status, &typ, &prio, &n); err != nil {
			return nil, fmt.Errorf("postgres: task statistics: scan: %w", err)
		}
		stats.ByStatus[status] += n
		stats.ByType[typ] += n
		stats.ByPriority[prio] += n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	overdueArgs := append(append([]any{}, args...), time.Now().UTC())
	err = s.conn(ctx).QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(*) FROM tasks WHERE %s AND due_date IS NOT NULL AND due_date < $%d
		AND task_status NOT IN ('complete','cancelled')`, whereClause, len(overdueArgs)), overdueArgs...).
		Scan(&stats.OverdueCount)
	if err != nil {
		return nil, fmt.Errorf("postgres: task statistics overdue: %w", err)
	}

	var avg *float64
	if err := s.conn(ctx).QueryRow(ctx, fmt.Sprintf(`
		SELECT AVG(actual_hours) FROM tasks WHERE %s AND actual_hours IS NOT NULL`, whereClause), args...).
		Scan(&avg); err == nil {
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
	rows, err := s.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT %s FROM tasks WHERE organization_id = $1 AND task_status = 'complete' AND completed_at >= $2
		ORDER BY completed_at DESC LIMIT $3`, taskColumns), organizationID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent completions: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[model.Task])
}

func (s *Store) ApproachingDeadline(ctx context.Context, organizationID int64, within time.Duration, limit int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = model.DefaultQueryLimit
	}
	now := time.Now().UTC()
	rows, err := s.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT %s FROM tasks WHERE organization_id = $1 AND due_date IS NOT NULL
		AND due_date BETWEEN $2 AND $3 AND task_status NOT IN ('complete','cancelled')
		ORDER BY due_date ASC LIMIT $4`, taskColumns), organizationID, now, now.Add(within), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: approaching deadline: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[model.Task])
}

func (s *Store) OverdueTasks(ctx context.Context, organizationID int64, limit int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = model.DefaultQueryLimit
	}
	rows, err := s.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT %s FROM tasks WHERE organization_id = $1 AND due_date IS NOT NULL AND due_date < $2
		AND task_status NOT IN ('complete','cancelled') ORDER BY due_date ASC LIMIT $3`, taskColumns),
		organizationID, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: overdue tasks: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[model.Task])
}

func (s *Store) StaleTasks(ctx context.Context, organizationID int64, threshold time.Duration, limit int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = model.DefaultQueryLimit
	}
	cutoff := time.Now().UTC().Add(-threshold)
	rows, err := s.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT %s FROM tasks WHERE organization_id = $1 AND task_status = 'in_progress' AND updated_at < $2
		ORDER BY updated_at ASC LIMIT $3`, taskColumns), organizationID, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: stale tasks: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[model.Task])
}

func (s *Store) AvailableForImplementation(ctx context.Context, organizationID int64, limit int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = model.DefaultQueryLimit
	}
	rows, err := s.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT %s FROM tasks WHERE organization_id = $1 AND task_type = 'concrete'
		AND ((task_status = 'complete' AND verification_status = 'unverified') OR task_status = 'available')
		ORDER BY CASE WHEN task_status = 'complete' THEN 0 ELSE 1 END ASC, %s
		LIMIT $2`, taskColumns, orderClause(model.OrderByPriority)), organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: available for implementation: %w", err)
	}
	tasks, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[model.Task])
	if err != nil {
		return nil, err
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
	rows, err := s.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT %s FROM tasks WHERE organization_id = $1 AND task_type IN ('abstract','epic')
		AND task_status = 'available' ORDER BY %s LIMIT $2`, taskColumns, orderClause(model.OrderByPriority)),
		organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: available for breakdown: %w", err)
	}
	tasks, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[model.Task])
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		t.EffectiveStatus = t.TaskStatus
	}
	return tasks, nil
}
