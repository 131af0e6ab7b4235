// Package store defines the transactional persistence contract shared by
// every other component. The Store is the single gateway to the
// database; callers never issue SQL directly and never see dialect
// differences.
package store

import (
	"context"
	"time"

	"github.com/agentbroker/taskbroker/internal/model"
)

// Store is the transactional gateway to all persisted entities. All
// methods that read scoped entities take an organizationID predicate
// explicitly; its absence at the call site is a contract violation, not
// something the Store infers.
type Store interface {
	// Tx runs fn inside a single database transaction. If fn returns an
	// error, the transaction rolls back; otherwise it commits. Nested
	// calls to Tx reuse the outer transaction via the context.
	Tx(ctx context.Context, fn func(ctx context.Context) error) error

	TaskStore
	LeaseStore
	RelationshipStore
	UpdateStore
	HistoryStore
	VersionStore
	RecurrenceStore
	TagStore
	TemplateStore
	CommentStore
	TenancyStore

	// Close releases pooled connections.
	Close() error

	// Ping verifies connectivity, used by health checks.
	Ping(ctx context.Context) error
}

// TaskStore covers task CRUD, query, search, statistics and summaries.
type TaskStore interface {
	CreateTask(ctx context.Context, t *model.Task) (*model.Task, error)
	GetTask(ctx context.Context, organizationID, taskID int64) (*model.Task, error)
	UpdateTaskFields(ctx context.Context, organizationID, taskID int64, fields map[string]any) (*model.Task, error)
	DeleteTask(ctx context.Context, organizationID, taskID int64) error

	QueryTasks(ctx context.Context, filter model.TaskFilter) ([]*model.Task, error)
	SearchTasks(ctx context.Context, organizationID int64, query string, limit int) ([]*model.Task, error)
	TaskStatistics(ctx context.Context, filter model.TaskFilter) (*model.TaskStatistics, error)
	TaskSummaries(ctx context.Context, filter model.TaskFilter) ([]*model.Task, error)

	RecentCompletions(ctx context.Context, organizationID int64, since time.Time, limit int) ([]*model.Task, error)
	ApproachingDeadline(ctx context.Context, organizationID int64, within time.Duration, limit int) ([]*model.Task, error)
	OverdueTasks(ctx context.Context, organizationID int64, limit int) ([]*model.Task, error)
	StaleTasks(ctx context.Context, organizationID int64, threshold time.Duration, limit int) ([]*model.Task, error)

	// AvailableForImplementation and AvailableForBreakdown implement the
	// agent-facing list queries, including the
	// needs-verification bucketing.
	AvailableForImplementation(ctx context.Context, organizationID int64, limit int) ([]*model.Task, error)
	AvailableForBreakdown(ctx context.Context, organizationID int64, limit int) ([]*model.Task, error)
}

// LeaseStore covers the atomic reserve/unlock/complete/verify primitives.
// Every method reports rows-affected semantics via its bool/error return
// so the state machine can distinguish "precondition failed" from a
// genuine error.
type LeaseStore interface {
	// LockIfAvailable performs the conditional update for a fresh
	// reservation: succeeds only when the row is currently available
	// (or unverified-complete, when allowNeedsVerification is true) and
	// unassigned.
	LockIfAvailable(ctx context.Context, taskID int64, agentID string, allowNeedsVerification bool) (bool, error)

	// UnlockIfOwner releases the lease only if agentID currently holds it.
	UnlockIfOwner(ctx context.Context, taskID int64, agentID string) (bool, error)

	// CompleteIfOwner marks the task complete+unverified (or
	// complete+verified, when fromVerificationLease is true) only if
	// agentID currently holds the lease.
	CompleteIfOwner(ctx context.Context, taskID int64, agentID string, actualHours *float64, fromVerificationLease bool) (bool, error)

	// Verify marks a complete+unverified task verified. Any agent may
	// verify. Returns false if the task was not complete+unverified.
	Verify(ctx context.Context, taskID int64) (bool, error)

	// BulkUnlock unlocks each id in a single transaction, reporting
	// per-id success. When strict is true, any single failure rolls back
	// the whole batch.
	BulkUnlock(ctx context.Context, taskIDs []int64, agentID string, strict bool) (map[int64]bool, error)

	// AutoComplete is the propagator's primitive for completing a parent
	// task as the synthetic agent "system" once every child is complete.
	// Unlike CompleteIfOwner it has no lease precondition beyond "not
	// already complete", since an auto-completed parent is typically
	// unassigned.
	AutoComplete(ctx context.Context, organizationID, taskID int64, notes string) (bool, error)

	// ReclaimStale returns to available every task whose task_status is
	// in_progress and whose updated_at is older than threshold,
	// reporting the ids reclaimed along with their previous agent.
	ReclaimStale(ctx context.Context, threshold time.Duration) ([]ReclaimedLease, error)
}

// ReclaimedLease is one row reclaimed by LeaseStore.ReclaimStale.
type ReclaimedLease struct {
	TaskID        int64
	PreviousAgent string
	UpdatedAt     time.Time
}

// RelationshipStore covers the edge table. Cycle detection is the
// relationship package's responsibility; the Store exposes only the raw
// graph primitives it needs.
type RelationshipStore interface {
	CreateRelationship(ctx context.Context, organizationID, parentID, childID int64, relType model.RelationshipType) (*model.Relationship, error)
	DeleteRelationship(ctx context.Context, organizationID int64, relationshipID int64) error
	ListRelationships(ctx context.Context, organizationID, taskID int64, relType *model.RelationshipType) ([]*model.Relationship, error)
	// OutgoingEdges/IncomingEdges are used by the cycle-check BFS and by
	// descendant walks; they return raw edges without derived fields.
	OutgoingEdges(ctx context.Context, organizationID, taskID int64, relType model.RelationshipType) ([]*model.Relationship, error)
	IncomingEdges(ctx context.Context, organizationID, taskID int64, relType model.RelationshipType) ([]*model.Relationship, error)
}

// UpdateStore covers agent-authored TaskUpdate narrative entries.
type UpdateStore interface {
	AddUpdate(ctx context.Context, u *model.TaskUpdate) (*model.TaskUpdate, error)
	ListUpdates(ctx context.Context, organizationID, taskID int64, limit int) ([]*model.TaskUpdate, error)
}

// HistoryStore covers the append-only ChangeHistory stream and the
// combined activity feed.
type HistoryStore interface {
	RecordChange(ctx context.Context, h *model.ChangeHistory) (*model.ChangeHistory, error)
	ListHistory(ctx context.Context, organizationID, taskID int64, limit int) ([]*model.ChangeHistory, error)
	ActivityFeed(ctx context.Context, filter model.ActivityFeedFilter) ([]model.ActivityEntry, error)
}

// VersionStore covers TaskVersion snapshots.
type VersionStore interface {
	CreateVersion(ctx context.Context, v *model.TaskVersion) (*model.TaskVersion, error)
	ListVersions(ctx context.Context, organizationID, taskID int64) ([]*model.TaskVersion, error)
	GetVersion(ctx context.Context, organizationID, taskID int64, versionNumber int) (*model.TaskVersion, error)
	LatestVersion(ctx context.Context, organizationID, taskID int64) (*model.TaskVersion, error)
}

// RecurrenceStore covers recurring-task templates.
type RecurrenceStore interface {
	CreateRecurrence(ctx context.Context, r *model.Recurrence) (*model.Recurrence, error)
	ListActiveRecurrences(ctx context.Context, organizationID int64) ([]*model.Recurrence, error)
	DueRecurrences(ctx context.Context, now time.Time) ([]*model.Recurrence, error)
	AdvanceRecurrence(ctx context.Context, recurrenceID int64, nextOccurrence time.Time, lastCreated time.Time) error
	DeactivateRecurrence(ctx context.Context, organizationID, recurrenceID int64) error
	UpdateRecurrence(ctx context.Context, organizationID, recurrenceID int64, fields map[string]any) (*model.Recurrence, error)
}

// TagStore covers organization-scoped keywords and their task associations.
type TagStore interface {
	CreateTag(ctx context.Context, organizationID int64, name string) (*model.Tag, error)
	ListTags(ctx context.Context, organizationID int64) ([]*model.Tag, error)
	AssignTag(ctx context.Context, organizationID, taskID, tagID int64) error
	RemoveTag(ctx context.Context, organizationID, taskID, tagID int64) error
	ListTaskTags(ctx context.Context, organizationID, taskID int64) ([]*model.Tag, error)
}

// TemplateStore covers named task blueprints.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, t *model.Template) (*model.Template, error)
	ListTemplates(ctx context.Context, organizationID int64) ([]*model.Template, error)
	GetTemplate(ctx context.Context, organizationID, templateID int64) (*model.Template, error)
}

// CommentStore covers threaded task commentary.
type CommentStore interface {
	CreateComment(ctx context.Context, c *model.Comment) (*model.Comment, error)
	ListTaskComments(ctx context.Context, organizationID, taskID int64) ([]*model.Comment, error)
	GetThread(ctx context.Context, organizationID, rootCommentID int64) ([]*model.Comment, error)
	UpdateComment(ctx context.Context, organizationID, commentID int64, content string) (*model.Comment, error)
	// DeleteComment cascades to all replies of commentID.
	DeleteComment(ctx context.Context, organizationID, commentID int64) error
}

// TenancyStore covers organizations, projects, teams, roles,
// memberships, and API credentials.
type TenancyStore interface {
	CreateOrganization(ctx context.Context, name string) (*model.Organization, error)
	CreateProject(ctx context.Context, p *model.Project) (*model.Project, error)
	ListProjects(ctx context.Context, organizationID int64) ([]*model.Project, error)
	GetProject(ctx context.Context, organizationID, projectID int64) (*model.Project, error)

	CreateAPICredential(ctx context.Context, c *model.APICredential) (*model.APICredential, error)
	ListAPICredentials(ctx context.Context, organizationID, projectID int64) ([]*model.APICredential, error)
	GetAPICredentialByPrefix(ctx context.Context, keyPrefix string) (*model.APICredential, error)
	RevokeAPICredential(ctx context.Context, organizationID, credentialID int64) error
	TouchAPICredential(ctx context.Context, credentialID int64) error

	CreateTeam(ctx context.Context, t *model.Team) (*model.Team, error)
	CreateRole(ctx context.Context, r *model.Role) (*model.Role, error)
	CreateMembership(ctx context.Context, m *model.Membership) (*model.Membership, error)
	ListRolesForMembership(ctx context.Context, organizationID int64, userIdentity string) ([]*model.Role, error)
}
