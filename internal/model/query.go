package model

import (
	"fmt"
	"time"
)

// OrderBy selects the sort order for task query results.
type OrderBy string

const (
	OrderByUpdatedDesc  OrderBy = "updated_desc"
	OrderByPriority     OrderBy = "priority"
	OrderByPriorityAsc  OrderBy = "priority_asc"
)

// TaskFilter composes the predicate for Store.Query / Store.Statistics /
// Store.Summaries. OrganizationID is mandatory; the Store treats its
// absence as a contract violation rather than inferring tenancy.
type TaskFilter struct {
	OrganizationID int64 `json:"organization_id"`

	ProjectID     *int64      `json:"project_id,omitempty"`
	TaskType      *TaskType   `json:"task_type,omitempty"`
	TaskStatus    *TaskStatus `json:"task_status,omitempty"`
	Priority      *Priority   `json:"priority,omitempty"`
	AssignedAgent *string     `json:"assigned_agent,omitempty"`
	TagName       *string     `json:"tag_name,omitempty"`

	DueBefore *time.Time `json:"due_before,omitempty"`
	DueAfter  *time.Time `json:"due_after,omitempty"`

	OrderBy OrderBy `json:"order_by,omitempty"`
	Limit   int     `json:"limit,omitempty"`
	Offset  int     `json:"offset,omitempty"`
}

// DefaultQueryLimit and MaxQueryLimit bound TaskFilter.Limit; callers
// requesting more than MaxQueryLimit are clamped, never rejected.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// Normalize clamps Limit into [1, MaxQueryLimit], defaulting to
// DefaultQueryLimit when unset.
func (f *TaskFilter) Normalize() {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultQueryLimit
	case f.Limit > MaxQueryLimit:
		f.Limit = MaxQueryLimit
	}
}

// TaskStatistics summarizes a TaskFilter's matching set.
type TaskStatistics struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	ByType        map[string]int `json:"by_type"`
	ByPriority    map[string]int `json:"by_priority"`
	OverdueCount  int            `json:"overdue_count"`
	AverageHours  *float64       `json:"average_hours,omitempty"`
}

// ActivityEntry is one item in the combined AuditLog feed: either a
// ChangeHistory row or a TaskUpdate row, normalized for chronological
// merge and same-second dedup.
type ActivityEntry struct {
	Source     string    `json:"source"` // "change" | "update"
	TaskID     int64     `json:"task_id"`
	AgentID    string    `json:"agent_id"`
	ChangeType ChangeType `json:"change_type,omitempty"`
	UpdateType UpdateType `json:"update_type,omitempty"`
	Content    string    `json:"content,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ActivityFeedFilter scopes an activity-feed query.
type ActivityFeedFilter struct {
	OrganizationID int64      `json:"organization_id"`
	TaskID         *int64     `json:"task_id,omitempty"`
	AgentID        *string    `json:"agent_id,omitempty"`
	Since          *time.Time `json:"since,omitempty"`
	Until          *time.Time `json:"until,omitempty"`
	Limit          int        `json:"limit,omitempty"`
}

// VersionDiff is the set of fields whose values differ between two
// TaskVersion snapshots.
type VersionDiff struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// DiffVersions compares two TaskVersion snapshots field by field,
// returning one VersionDiff per field whose value changed. Shared by
// every Store dialect so the diff semantics do not drift between them.
func DiffVersions(a, b *TaskVersion) []VersionDiff {
	var diffs []VersionDiff
	add := func(field, oldV, newV string) {
		if oldV != newV {
			diffs = append(diffs, VersionDiff{Field: field, OldValue: oldV, NewValue: newV})
		}
	}
	add("title", a.Title, b.Title)
	add("task_type", string(a.TaskType), string(b.TaskType))
	add("task_instruction", a.TaskInstruction, b.TaskInstruction)
	add("verification_instruction", a.VerificationInstruction, b.VerificationInstruction)
	add("priority", string(a.Priority), string(b.Priority))
	add("estimated_hours", floatPtrStr(a.EstimatedHours), floatPtrStr(b.EstimatedHours))
	add("due_date", timePtrStr(a.DueDate), timePtrStr(b.DueDate))
	add("notes", strPtrStr(a.Notes), strPtrStr(b.Notes))
	return diffs
}

func floatPtrStr(f *float64) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%v", *f)
}

func timePtrStr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func strPtrStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
