package model

import (
	"strings"
	"time"
)

// Task is the central entity of the broker: a unit of work leased to at
// most one agent at a time.
type Task struct {
	ID      int64  `json:"id" db:"id"`
	Title   string `json:"title" db:"title"`

	// ProjectID is nil for unscoped, administrative tasks; a task with a
	// project inherits that project's organization.
	ProjectID      *int64 `json:"project_id,omitempty" db:"project_id"`
	OrganizationID int64  `json:"organization_id" db:"organization_id"`

	TaskType                TaskType `json:"task_type" db:"task_type"`
	TaskInstruction         string   `json:"task_instruction" db:"task_instruction"`
	VerificationInstruction string   `json:"verification_instruction" db:"verification_instruction"`
	Notes                   *string  `json:"notes,omitempty" db:"notes"`

	TaskStatus         TaskStatus         `json:"task_status" db:"task_status"`
	VerificationStatus VerificationStatus `json:"verification_status" db:"verification_status"`
	AssignedAgent      *string            `json:"assigned_agent,omitempty" db:"assigned_agent"`

	Priority       Priority   `json:"priority" db:"priority"`
	DueDate        *time.Time `json:"due_date,omitempty" db:"due_date"`
	EstimatedHours *float64   `json:"estimated_hours,omitempty" db:"estimated_hours"`

	StartedAt     *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	ActualHours   *float64   `json:"actual_hours,omitempty" db:"actual_hours"`
	TimeDeltaHours *float64  `json:"time_delta_hours,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// NeedsVerification and EffectiveStatus are computed at read time by
	// the propagator/statemachine read path; they are never persisted.
	NeedsVerification bool       `json:"needs_verification" db:"-"`
	EffectiveStatus   TaskStatus `json:"effective_status" db:"-"`
}

// ComputeTimeDelta applies the time_delta_hours rule: computed whenever
// actual_hours is present, using estimated_hours if also present, else
// left nil.
func (t *Task) ComputeTimeDelta() {
	if t.ActualHours == nil {
		t.TimeDeltaHours = nil
		return
	}
	if t.EstimatedHours == nil {
		t.TimeDeltaHours = nil
		return
	}
	delta := *t.ActualHours - *t.EstimatedHours
	t.TimeDeltaHours = &delta
}

// Project is a container scoping tasks and API credentials to a single
// organization.
type Project struct {
	ID             int64     `json:"id" db:"id"`
	OrganizationID int64     `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	LocalPath      *string   `json:"local_path,omitempty" db:"local_path"`
	OriginURL      *string   `json:"origin_url,omitempty" db:"origin_url"`
	Description    *string   `json:"description,omitempty" db:"description"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Organization is the top of the multi-tenancy skeleton.
type Organization struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Team is scoped to a single organization.
type Team struct {
	ID             int64     `json:"id" db:"id"`
	OrganizationID int64     `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Role holds a set of permission strings, which may be wildcarded
// (e.g. "read:*").
type Role struct {
	ID             int64     `json:"id" db:"id"`
	OrganizationID int64     `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	Permissions    []string  `json:"permissions" db:"permissions"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Membership links a user identity to an organization/team and to zero
// or more roles.
type Membership struct {
	ID             int64     `json:"id" db:"id"`
	OrganizationID int64     `json:"organization_id" db:"organization_id"`
	TeamID         *int64    `json:"team_id,omitempty" db:"team_id"`
	UserIdentity   string    `json:"user_identity" db:"user_identity"`
	RoleIDs        []int64   `json:"role_ids" db:"role_ids"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// APICredential authenticates a caller against a single project. The raw
// key material is never persisted; only KeyHash (bcrypt) and KeyPrefix
// (for display) are stored.
type APICredential struct {
	ID             int64      `json:"id" db:"id"`
	ProjectID      int64      `json:"project_id" db:"project_id"`
	OrganizationID int64      `json:"organization_id" db:"organization_id"`
	Name           string     `json:"name" db:"name"`
	KeyHash        string     `json:"-" db:"key_hash"`
	KeyPrefix      string     `json:"key_prefix" db:"key_prefix"`
	Enabled        bool       `json:"enabled" db:"enabled"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// Relationship is a directed edge (parent, child, type) in the task
// graph. Uniqueness is enforced per (ParentTaskID, ChildTaskID, Type).
type Relationship struct {
	ID           int64            `json:"id" db:"id"`
	ParentTaskID int64            `json:"parent_task_id" db:"parent_task_id"`
	ChildTaskID  int64            `json:"child_task_id" db:"child_task_id"`
	Type         RelationshipType `json:"type" db:"type"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
}

// TaskUpdate is an agent-authored narrative entry tied to a task.
type TaskUpdate struct {
	ID         int64          `json:"id" db:"id"`
	TaskID     int64          `json:"task_id" db:"task_id"`
	UpdateType UpdateType     `json:"update_type" db:"update_type"`
	Content    string         `json:"content" db:"content"`
	Metadata   map[string]any `json:"metadata,omitempty" db:"metadata"`
	AuthorID   string         `json:"author_id" db:"author_id"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// IsStaleFinding reports whether this update is the marker the lease
// reclaimer writes when it reclaims an abandoned task. It checks both
// the typed Metadata field and the legacy substring convention, per the
// stale-marker open-question decision.
func (u TaskUpdate) IsStaleFinding() bool {
	if u.UpdateType != UpdateTypeFinding {
		return false
	}
	if v, ok := u.Metadata["stale"]; ok {
		if b, ok := v.(bool); ok && b {
			return true
		}
	}
	lower := strings.ToLower(u.Content)
	for _, needle := range []string{"unlocked due to timeout", "stale", "abandoned"} {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// ChangeHistory is an append-only record of a state transition, field
// mutation, or relationship add/remove.
type ChangeHistory struct {
	ID         int64      `json:"id" db:"id"`
	TaskID     int64      `json:"task_id" db:"task_id"`
	AgentID    string     `json:"agent_id" db:"agent_id"`
	ChangeType ChangeType `json:"change_type" db:"change_type"`
	FieldName  *string    `json:"field_name,omitempty" db:"field_name"`
	OldValue   *string    `json:"old_value,omitempty" db:"old_value"`
	NewValue   *string    `json:"new_value,omitempty" db:"new_value"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// TaskVersion is a snapshot of a task's content/scheduling fields,
// monotonically numbered per task starting at 1.
type TaskVersion struct {
	ID                      int64      `json:"id" db:"id"`
	TaskID                  int64      `json:"task_id" db:"task_id"`
	VersionNumber           int        `json:"version_number" db:"version_number"`
	Title                   string     `json:"title" db:"title"`
	TaskType                TaskType   `json:"task_type" db:"task_type"`
	TaskInstruction         string     `json:"task_instruction" db:"task_instruction"`
	VerificationInstruction string     `json:"verification_instruction" db:"verification_instruction"`
	Priority                Priority   `json:"priority" db:"priority"`
	EstimatedHours          *float64   `json:"estimated_hours,omitempty" db:"estimated_hours"`
	DueDate                 *time.Time `json:"due_date,omitempty" db:"due_date"`
	Notes                   *string    `json:"notes,omitempty" db:"notes"`
	CreatedAt               time.Time  `json:"created_at" db:"created_at"`
}

// VersionedFields lists the task fields whose mutation triggers a new
// TaskVersion snapshot, per the AuditLog contract.
var VersionedFields = []string{
	"title", "task_type", "task_instruction", "verification_instruction",
	"priority", "estimated_hours", "due_date", "notes",
}

// RecurrenceConfig carries the typed, cadence-specific advance
// parameters for a Recurrence.
type RecurrenceConfig struct {
	DayOfWeek  *time.Weekday `json:"day_of_week,omitempty"`
	DayOfMonth *int          `json:"day_of_month,omitempty"`
}

// Recurrence is a template pointer plus schedule that periodically
// materializes fresh task instances.
type Recurrence struct {
	ID                    int64          `json:"id" db:"id"`
	BaseTaskID            int64          `json:"base_task_id" db:"base_task_id"`
	OrganizationID        int64          `json:"organization_id" db:"organization_id"`
	RecurrenceType        RecurrenceType `json:"recurrence_type" db:"recurrence_type"`
	Config                RecurrenceConfig `json:"config" db:"config"`
	NextOccurrence        time.Time      `json:"next_occurrence" db:"next_occurrence"`
	LastOccurrenceCreated *time.Time     `json:"last_occurrence_created,omitempty" db:"last_occurrence_created"`
	IsActive              bool           `json:"is_active" db:"is_active"`
	CreatedAt             time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at" db:"updated_at"`
}

// Tag is a globally-named keyword, many-to-many with Task.
type Tag struct {
	ID             int64     `json:"id" db:"id"`
	OrganizationID int64     `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Template is a named blueprint for creating tasks with pre-filled
// content.
type Template struct {
	ID                      int64      `json:"id" db:"id"`
	OrganizationID          int64      `json:"organization_id" db:"organization_id"`
	Name                    string     `json:"name" db:"name"`
	TaskType                TaskType   `json:"task_type" db:"task_type"`
	TitleTemplate           string     `json:"title_template" db:"title_template"`
	TaskInstruction         string     `json:"task_instruction" db:"task_instruction"`
	VerificationInstruction string     `json:"verification_instruction" db:"verification_instruction"`
	Priority                Priority   `json:"priority" db:"priority"`
	EstimatedHours          *float64   `json:"estimated_hours,omitempty" db:"estimated_hours"`
	CreatedAt               time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at" db:"updated_at"`
}

// Comment is threaded commentary tied to a task; deleting a parent
// comment cascades to its replies.
type Comment struct {
	ID              int64     `json:"id" db:"id"`
	TaskID          int64     `json:"task_id" db:"task_id"`
	ParentCommentID *int64    `json:"parent_comment_id,omitempty" db:"parent_comment_id"`
	AuthorID        string    `json:"author_id" db:"author_id"`
	Content         string    `json:"content" db:"content"`
	MentionedAgents []string  `json:"mentioned_agents,omitempty" db:"mentioned_agents"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// StaleWarning is the advisory structure attached to a successful
// reservation when the task's most recent findings indicate it was
// previously reclaimed from a stale lease.
type StaleWarning struct {
	IsStale       bool      `json:"is_stale"`
	PreviousAgent string    `json:"previous_agent"`
	UnlockedAt    time.Time `json:"unlocked_at"`
	StaleFinding  string    `json:"stale_finding"`
	WarningText   string    `json:"warning_text"`
}
