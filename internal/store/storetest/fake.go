// Package storetest provides an in-memory store.Store implementation for
// unit tests of components built on top of it (relationship graph,
// state machine, propagator, tenant guard, consistency auditor, broker).
// It implements the interface's documented semantics directly rather
// than simulating SQL, so it is not a substitute for the dialect tests
// in internal/store/postgres and internal/store/sqlite.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store"
)

// Store is a map-backed, mutex-guarded fake satisfying store.Store.
type Store struct {
	mu sync.Mutex

	nextID int64

	tasks          map[int64]*model.Task
	relationships  map[int64]*model.Relationship
	updates        map[int64]*model.TaskUpdate
	history        map[int64]*model.ChangeHistory
	versions       map[int64]*model.TaskVersion
	recurrences    map[int64]*model.Recurrence
	tags           map[int64]*model.Tag
	taskTags       map[int64]map[int64]bool // taskID -> tagID -> true
	templates      map[int64]*model.Template
	comments       map[int64]*model.Comment
	organizations  map[int64]*model.Organization
	projects       map[int64]*model.Project
	credentials    map[int64]*model.APICredential
	teams          map[int64]*model.Team
	roles          map[int64]*model.Role
	memberships    map[int64]*model.Membership
}

// New builds an empty fake store.
func New() *Store {
	return &Store{
		tasks:         make(map[int64]*model.Task),
		relationships: make(map[int64]*model.Relationship),
		updates:       make(map[int64]*model.TaskUpdate),
		history:       make(map[int64]*model.ChangeHistory),
		versions:      make(map[int64]*model.TaskVersion),
		recurrences:   make(map[int64]*model.Recurrence),
		tags:          make(map[int64]*model.Tag),
		taskTags:      make(map[int64]map[int64]bool),
		templates:     make(map[int64]*model.Template),
		comments:      make(map[int64]*model.Comment),
		organizations: make(map[int64]*model.Organization),
		projects:      make(map[int64]*model.Project),
		credentials:   make(map[int64]*model.APICredential),
		teams:         make(map[int64]*model.Team),
		roles:         make(map[int64]*model.Role),
		memberships:   make(map[int64]*model.Membership),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Tx runs fn with the same (non-transactional) context; the fake has no
// rollback semantics, matching its "no live DB" scope.
func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *Store) Close() error                          { return nil }
func (s *Store) Ping(ctx context.Context) error         { return nil }

// --- TaskStore ---

// SeedTask inserts t directly, for test setup, assigning an id if unset.
func (s *Store) SeedTask(t *model.Task) *model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.id()
	}
	cp := *t
	s.tasks[t.ID] = &cp
	return &cp
}

func (s *Store) CreateTask(ctx context.Context, t *model.Task) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	cp.ID = s.id()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.tasks[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) GetTask(ctx context.Context, organizationID, taskID int64) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok || t.OrganizationID != organizationID {
		return nil, store.ErrNotFound
	}
	out := *t
	return &out, nil
}

func (s *Store) UpdateTaskFields(ctx context.Context, organizationID, taskID int64, fields map[string]any) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok || t.OrganizationID != organizationID {
		return nil, store.ErrNotFound
	}
	applyFields(t, fields)
	t.UpdatedAt = time.Now()
	out := *t
	return &out, nil
}

func (s *Store) DeleteTask(ctx context.Context, organizationID, taskID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok || t.OrganizationID != organizationID {
		return store.ErrNotFound
	}
	delete(s.tasks, taskID)
	return nil
}

func (s *Store) QueryTasks(ctx context.Context, filter model.TaskFilter) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	filter.Normalize()
	var out []*model.Task
	for _, t := range sortedTasks(s.tasks) {
		if t.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.ProjectID != nil && (t.ProjectID == nil || *t.ProjectID != *filter.ProjectID) {
			continue
		}
		if filter.TaskType != nil && t.TaskType != *filter.TaskType {
			continue
		}
		if filter.TaskStatus != nil && t.TaskStatus != *filter.TaskStatus {
			continue
		}
		if filter.Priority != nil && t.Priority != *filter.Priority {
			continue
		}
		if filter.AssignedAgent != nil && (t.AssignedAgent == nil || *t.AssignedAgent != *filter.AssignedAgent) {
			continue
		}
		cp := *t
		out = append(out, &cp)
		if len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) SearchTasks(ctx context.Context, organizationID int64, query string, limit int) ([]*model.Task, error) {
	return nil, nil
}

func (s *Store) TaskStatistics(ctx context.Context, filter model.TaskFilter) (*model.TaskStatistics, error) {
	tasks, _ := s.QueryTasks(ctx, filter)
	stats := &model.TaskStatistics{ByStatus: map[string]int{}, ByType: map[string]int{}, ByPriority: map[string]int{}}
	for _, t := range tasks {
		stats.Total++
		stats.ByStatus[string(t.TaskStatus)]++
		stats.ByType[string(t.TaskType)]++
		stats.ByPriority[string(t.Priority)]++
	}
	return stats, nil
}

func (s *Store) TaskSummaries(ctx context.Context, filter model.TaskFilter) ([]*model.Task, error) {
	return s.QueryTasks(ctx, filter)
}

func (s *Store) RecentCompletions(ctx context.Context, organizationID int64, since time.Time, limit int) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Task
	for _, t := range sortedTasks(s.tasks) {
		if t.OrganizationID == organizationID && t.CompletedAt != nil && t.CompletedAt.After(since) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ApproachingDeadline(ctx context.Context, organizationID int64, within time.Duration, limit int) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []*model.Task
	for _, t := range sortedTasks(s.tasks) {
		if t.OrganizationID == organizationID && t.DueDate != nil && t.TaskStatus != model.TaskStatusComplete &&
			t.DueDate.After(now) && t.DueDate.Before(now.Add(within)) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) OverdueTasks(ctx context.Context, organizationID int64, limit int) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []*model.Task
	for _, t := range sortedTasks(s.tasks) {
		if t.OrganizationID == organizationID && t.DueDate != nil && t.TaskStatus != model.TaskStatusComplete && t.DueDate.Before(now) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) StaleTasks(ctx context.Context, organizationID int64, threshold time.Duration, limit int) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-threshold)
	var out []*model.Task
	for _, t := range sortedTasks(s.tasks) {
		if t.OrganizationID == organizationID && t.TaskStatus == model.TaskStatusInProgress && t.UpdatedAt.Before(cutoff) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) AvailableForImplementation(ctx context.Context, organizationID int64, limit int) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var verify, avail []*model.Task
	for _, t := range sortedTasks(s.tasks) {
		if t.OrganizationID != organizationID || t.TaskType != model.TaskTypeConcrete {
			continue
		}
		cp := *t
		if t.TaskStatus == model.TaskStatusComplete && t.VerificationStatus == model.VerificationUnverified {
			verify = append(verify, &cp)
		} else if t.TaskStatus == model.TaskStatusAvailable {
			avail = append(avail, &cp)
		}
	}
	return append(verify, avail...), nil
}

func (s *Store) AvailableForBreakdown(ctx context.Context, organizationID int64, limit int) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Task
	for _, t := range sortedTasks(s.tasks) {
		if t.OrganizationID == organizationID && t.TaskType != model.TaskTypeConcrete && t.TaskStatus == model.TaskStatusAvailable {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- LeaseStore ---

func (s *Store) LockIfAvailable(ctx context.Context, taskID int64, agentID string, allowNeedsVerification bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return false, nil
	}
	eligible := t.TaskStatus == model.TaskStatusAvailable
	if allowNeedsVerification && t.TaskStatus == model.TaskStatusComplete && t.VerificationStatus == model.VerificationUnverified {
		eligible = true
	}
	if !eligible || t.AssignedAgent != nil {
		return false, nil
	}
	t.TaskStatus = model.TaskStatusInProgress
	t.AssignedAgent = &agentID
	now := time.Now()
	t.StartedAt = &now
	t.UpdatedAt = now
	return true, nil
}

func (s *Store) UnlockIfOwner(ctx context.Context, taskID int64, agentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok || t.AssignedAgent == nil || *t.AssignedAgent != agentID {
		return false, nil
	}
	t.TaskStatus = model.TaskStatusAvailable
	t.AssignedAgent = nil
	t.UpdatedAt = time.Now()
	return true, nil
}

func (s *Store) CompleteIfOwner(ctx context.Context, taskID int64, agentID string, actualHours *float64, fromVerificationLease bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok || t.AssignedAgent == nil || *t.AssignedAgent != agentID {
		return false, nil
	}
	now := time.Now()
	t.TaskStatus = model.TaskStatusComplete
	t.AssignedAgent = nil
	t.CompletedAt = &now
	t.ActualHours = actualHours
	if fromVerificationLease {
		t.VerificationStatus = model.VerificationVerified
	} else {
		t.VerificationStatus = model.VerificationUnverified
	}
	t.ComputeTimeDelta()
	t.UpdatedAt = now
	return true, nil
}

func (s *Store) Verify(ctx context.Context, taskID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok || t.TaskStatus != model.TaskStatusComplete || t.VerificationStatus != model.VerificationUnverified {
		return false, nil
	}
	t.VerificationStatus = model.VerificationVerified
	t.UpdatedAt = time.Now()
	return true, nil
}

// BulkUnlock in strict mode stops at the first failed unlock; unlocks
// made before it stay applied, since the fake has no rollback.
func (s *Store) BulkUnlock(ctx context.Context, taskIDs []int64, agentID string, strict bool) (map[int64]bool, error) {
	results := make(map[int64]bool, len(taskIDs))
	for _, id := range taskIDs {
		ok, _ := s.UnlockIfOwner(ctx, id, agentID)
		results[id] = ok
		if strict && !ok {
			return results, nil
		}
	}
	return results, nil
}

func (s *Store) AutoComplete(ctx context.Context, organizationID, taskID int64, notes string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok || t.OrganizationID != organizationID || t.TaskStatus == model.TaskStatusComplete {
		return false, nil
	}
	now := time.Now()
	t.TaskStatus = model.TaskStatusComplete
	t.CompletedAt = &now
	t.VerificationStatus = model.VerificationUnverified
	t.UpdatedAt = now
	return true, nil
}

func (s *Store) ReclaimStale(ctx context.Context, threshold time.Duration) ([]store.ReclaimedLease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-threshold)
	var out []store.ReclaimedLease
	for _, t := range sortedTasks(s.tasks) {
		if t.TaskStatus == model.TaskStatusInProgress && t.UpdatedAt.Before(cutoff) {
			prev := ""
			if t.AssignedAgent != nil {
				prev = *t.AssignedAgent
			}
			out = append(out, store.ReclaimedLease{TaskID: t.ID, PreviousAgent: prev, UpdatedAt: t.UpdatedAt})
			t.TaskStatus = model.TaskStatusAvailable
			t.AssignedAgent = nil
			t.UpdatedAt = time.Now()
		}
	}
	return out, nil
}

// --- RelationshipStore ---

func (s *Store) CreateRelationship(ctx context.Context, organizationID, parentID, childID int64, relType model.RelationshipType) (*model.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.tasks[parentID]
	if !ok || parent.OrganizationID != organizationID {
		return nil, store.ErrNotFound
	}
	child, ok := s.tasks[childID]
	if !ok || child.OrganizationID != organizationID {
		return nil, store.ErrNotFound
	}
	for _, r := range s.relationships {
		if r.ParentTaskID == parentID && r.ChildTaskID == childID && r.Type == relType {
			out := *r
			return &out, nil // idempotent re-add
		}
	}
	rel := &model.Relationship{ID: s.id(), ParentTaskID: parentID, ChildTaskID: childID, Type: relType, CreatedAt: time.Now()}
	s.relationships[rel.ID] = rel
	out := *rel
	return &out, nil
}

func (s *Store) DeleteRelationship(ctx context.Context, organizationID int64, relationshipID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.relationships[relationshipID]; !ok {
		return store.ErrNotFound
	}
	delete(s.relationships, relationshipID)
	return nil
}

func (s *Store) ListRelationships(ctx context.Context, organizationID, taskID int64, relType *model.RelationshipType) ([]*model.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Relationship
	for _, r := range sortedRelationships(s.relationships) {
		if r.ParentTaskID != taskID && r.ChildTaskID != taskID {
			continue
		}
		if relType != nil && r.Type != *relType {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) OutgoingEdges(ctx context.Context, organizationID, taskID int64, relType model.RelationshipType) ([]*model.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Relationship
	for _, r := range sortedRelationships(s.relationships) {
		if r.ParentTaskID == taskID && r.Type == relType {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) IncomingEdges(ctx context.Context, organizationID, taskID int64, relType model.RelationshipType) ([]*model.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Relationship
	for _, r := range sortedRelationships(s.relationships) {
		if r.ChildTaskID == taskID && r.Type == relType {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- UpdateStore ---

func (s *Store) AddUpdate(ctx context.Context, u *model.TaskUpdate) (*model.TaskUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	cp.ID = s.id()
	cp.CreatedAt = time.Now()
	s.updates[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) ListUpdates(ctx context.Context, organizationID, taskID int64, limit int) ([]*model.TaskUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.TaskUpdate
	for _, u := range sortedUpdates(s.updates) {
		if u.TaskID == taskID {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- HistoryStore ---

func (s *Store) RecordChange(ctx context.Context, h *model.ChangeHistory) (*model.ChangeHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *h
	cp.ID = s.id()
	cp.CreatedAt = time.Now()
	s.history[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) ListHistory(ctx context.Context, organizationID, taskID int64, limit int) ([]*model.ChangeHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.ChangeHistory
	for _, h := range sortedHistory(s.history) {
		if h.TaskID == taskID {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ActivityFeed(ctx context.Context, filter model.ActivityFeedFilter) ([]model.ActivityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ActivityEntry
	for _, h := range sortedHistory(s.history) {
		if filter.TaskID != nil && h.TaskID != *filter.TaskID {
			continue
		}
		out = append(out, model.ActivityEntry{Source: "change", TaskID: h.TaskID, AgentID: h.AgentID, ChangeType: h.ChangeType, CreatedAt: h.CreatedAt})
	}
	for _, u := range sortedUpdates(s.updates) {
		if filter.TaskID != nil && u.TaskID != *filter.TaskID {
			continue
		}
		out = append(out, model.ActivityEntry{Source: "update", TaskID: u.TaskID, AgentID: u.AuthorID, UpdateType: u.UpdateType, Content: u.Content, CreatedAt: u.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- VersionStore ---

func (s *Store) CreateVersion(ctx context.Context, v *model.TaskVersion) (*model.TaskVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	cp.ID = s.id()
	cp.CreatedAt = time.Now()
	s.versions[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) ListVersions(ctx context.Context, organizationID, taskID int64) ([]*model.TaskVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.TaskVersion
	for _, v := range sortedVersions(s.versions) {
		if v.TaskID == taskID {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) GetVersion(ctx context.Context, organizationID, taskID int64, versionNumber int) (*model.TaskVersion, error) {
	vs, _ := s.ListVersions(ctx, organizationID, taskID)
	for _, v := range vs {
		if v.VersionNumber == versionNumber {
			return v, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) LatestVersion(ctx context.Context, organizationID, taskID int64) (*model.TaskVersion, error) {
	vs, _ := s.ListVersions(ctx, organizationID, taskID)
	if len(vs) == 0 {
		return nil, store.ErrNotFound
	}
	return vs[len(vs)-1], nil
}

// --- RecurrenceStore ---

// SeedRecurrence inserts r directly, for test setup.
func (s *Store) SeedRecurrence(r *model.Recurrence) *model.Recurrence {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.id()
	}
	cp := *r
	s.recurrences[r.ID] = &cp
	return &cp
}

func (s *Store) CreateRecurrence(ctx context.Context, r *model.Recurrence) (*model.Recurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	cp.ID = s.id()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.recurrences[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) ListActiveRecurrences(ctx context.Context, organizationID int64) ([]*model.Recurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Recurrence
	for _, r := range sortedRecurrences(s.recurrences) {
		if r.OrganizationID == organizationID && r.IsActive {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) DueRecurrences(ctx context.Context, now time.Time) ([]*model.Recurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Recurrence
	for _, r := range sortedRecurrences(s.recurrences) {
		if r.IsActive && !r.NextOccurrence.After(now) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) AdvanceRecurrence(ctx context.Context, recurrenceID int64, nextOccurrence time.Time, lastCreated time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recurrences[recurrenceID]
	if !ok {
		return store.ErrNotFound
	}
	r.NextOccurrence = nextOccurrence
	r.LastOccurrenceCreated = &lastCreated
	r.UpdatedAt = time.Now()
	return nil
}

func (s *Store) DeactivateRecurrence(ctx context.Context, organizationID, recurrenceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recurrences[recurrenceID]
	if !ok || r.OrganizationID != organizationID {
		return store.ErrNotFound
	}
	r.IsActive = false
	r.UpdatedAt = time.Now()
	return nil
}

func (s *Store) UpdateRecurrence(ctx context.Context, organizationID, recurrenceID int64, fields map[string]any) (*model.Recurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recurrences[recurrenceID]
	if !ok || r.OrganizationID != organizationID {
		return nil, store.ErrNotFound
	}
	if v, ok := fields["recurrence_type"]; ok {
		r.RecurrenceType = v.(model.RecurrenceType)
	}
	if v, ok := fields["is_active"]; ok {
		r.IsActive = v.(bool)
	}
	r.UpdatedAt = time.Now()
	out := *r
	return &out, nil
}

// --- TagStore ---

func (s *Store) CreateTag(ctx context.Context, organizationID int64, name string) (*model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &model.Tag{ID: s.id(), OrganizationID: organizationID, Name: name, CreatedAt: time.Now()}
	s.tags[t.ID] = t
	out := *t
	return &out, nil
}

func (s *Store) ListTags(ctx context.Context, organizationID int64) ([]*model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Tag
	for _, t := range sortedTags(s.tags) {
		if t.OrganizationID == organizationID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) AssignTag(ctx context.Context, organizationID, taskID, tagID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taskTags[taskID] == nil {
		s.taskTags[taskID] = make(map[int64]bool)
	}
	s.taskTags[taskID][tagID] = true
	return nil
}

func (s *Store) RemoveTag(ctx context.Context, organizationID, taskID, tagID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.taskTags[taskID], tagID)
	return nil
}

func (s *Store) ListTaskTags(ctx context.Context, organizationID, taskID int64) ([]*model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Tag
	for tagID := range s.taskTags[taskID] {
		if t, ok := s.tags[tagID]; ok {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- TemplateStore ---

func (s *Store) CreateTemplate(ctx context.Context, t *model.Template) (*model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	cp.ID = s.id()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.templates[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) ListTemplates(ctx context.Context, organizationID int64) ([]*model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Template
	for _, t := range sortedTemplates(s.templates) {
		if t.OrganizationID == organizationID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) GetTemplate(ctx context.Context, organizationID, templateID int64) (*model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[templateID]
	if !ok || t.OrganizationID != organizationID {
		return nil, store.ErrNotFound
	}
	out := *t
	return &out, nil
}

// --- CommentStore ---

func (s *Store) CreateComment(ctx context.Context, c *model.Comment) (*model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.ID = s.id()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.comments[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) ListTaskComments(ctx context.Context, organizationID, taskID int64) ([]*model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Comment
	for _, c := range sortedComments(s.comments) {
		if c.TaskID == taskID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) GetThread(ctx context.Context, organizationID, rootCommentID int64) ([]*model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Comment
	for _, c := range sortedComments(s.comments) {
		if c.ID == rootCommentID || (c.ParentCommentID != nil && *c.ParentCommentID == rootCommentID) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) UpdateComment(ctx context.Context, organizationID, commentID int64, content string) (*model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[commentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	c.Content = content
	c.UpdatedAt = time.Now()
	out := *c
	return &out, nil
}

func (s *Store) DeleteComment(ctx context.Context, organizationID, commentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[commentID]; !ok {
		return store.ErrNotFound
	}
	delete(s.comments, commentID)
	removed := map[int64]bool{commentID: true}
	for changed := true; changed; {
		changed = false
		for id, c := range s.comments {
			if c.ParentCommentID != nil && removed[*c.ParentCommentID] {
				delete(s.comments, id)
				removed[id] = true
				changed = true
			}
		}
	}
	return nil
}

// --- TenancyStore ---

func (s *Store) CreateOrganization(ctx context.Context, name string) (*model.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := &model.Organization{ID: s.id(), Name: name, CreatedAt: time.Now()}
	s.organizations[o.ID] = o
	out := *o
	return &out, nil
}

func (s *Store) CreateProject(ctx context.Context, p *model.Project) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	cp.ID = s.id()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.projects[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) ListProjects(ctx context.Context, organizationID int64) ([]*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Project
	for _, p := range sortedProjects(s.projects) {
		if p.OrganizationID == organizationID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) GetProject(ctx context.Context, organizationID, projectID int64) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok || p.OrganizationID != organizationID {
		return nil, store.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (s *Store) CreateAPICredential(ctx context.Context, c *model.APICredential) (*model.APICredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.ID = s.id()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.credentials[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) ListAPICredentials(ctx context.Context, organizationID, projectID int64) ([]*model.APICredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.APICredential
	for _, c := range sortedCredentials(s.credentials) {
		if c.OrganizationID == organizationID && c.ProjectID == projectID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) GetAPICredentialByPrefix(ctx context.Context, keyPrefix string) (*model.APICredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.credentials {
		if c.KeyPrefix == keyPrefix {
			out := *c
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) RevokeAPICredential(ctx context.Context, organizationID, credentialID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[credentialID]
	if !ok || c.OrganizationID != organizationID {
		return store.ErrNotFound
	}
	c.Enabled = false
	c.UpdatedAt = time.Now()
	return nil
}

func (s *Store) TouchAPICredential(ctx context.Context, credentialID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[credentialID]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	c.LastUsedAt = &now
	return nil
}

func (s *Store) CreateTeam(ctx context.Context, t *model.Team) (*model.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	cp.ID = s.id()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.teams[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) CreateRole(ctx context.Context, r *model.Role) (*model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	cp.ID = s.id()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.roles[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) CreateMembership(ctx context.Context, m *model.Membership) (*model.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	cp.ID = s.id()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.memberships[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) ListRolesForMembership(ctx context.Context, organizationID int64, userIdentity string) ([]*model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var roleIDs []int64
	for _, m := range s.memberships {
		if m.OrganizationID == organizationID && m.UserIdentity == userIdentity {
			roleIDs = append(roleIDs, m.RoleIDs...)
		}
	}
	var out []*model.Role
	for _, id := range roleIDs {
		if r, ok := s.roles[id]; ok {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// applyFields applies a subset of field updates UpdateTaskFields is
// called with across the codebase; it covers every key actually
// produced by internal/broker and internal/statemachine.
func applyFields(t *model.Task, fields map[string]any) {
	for k, v := range fields {
		switch k {
		case "title":
			t.Title = v.(string)
		case "task_instruction":
			t.TaskInstruction = v.(string)
		case "verification_instruction":
			t.VerificationInstruction = v.(string)
		case "notes":
			t.Notes = v.(*string)
		case "priority":
			t.Priority = v.(model.Priority)
		case "due_date":
			t.DueDate = v.(*time.Time)
		case "estimated_hours":
			t.EstimatedHours = v.(*float64)
		case "task_status":
			t.TaskStatus = v.(model.TaskStatus)
		}
	}
}

func sortedTasks(m map[int64]*model.Task) []*model.Task {
	out := make([]*model.Task, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedRelationships(m map[int64]*model.Relationship) []*model.Relationship {
	out := make([]*model.Relationship, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedUpdates(m map[int64]*model.TaskUpdate) []*model.TaskUpdate {
	out := make([]*model.TaskUpdate, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedHistory(m map[int64]*model.ChangeHistory) []*model.ChangeHistory {
	out := make([]*model.ChangeHistory, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedVersions(m map[int64]*model.TaskVersion) []*model.TaskVersion {
	out := make([]*model.TaskVersion, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out
}

func sortedRecurrences(m map[int64]*model.Recurrence) []*model.Recurrence {
	out := make([]*model.Recurrence, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedTags(m map[int64]*model.Tag) []*model.Tag {
	out := make([]*model.Tag, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedTemplates(m map[int64]*model.Template) []*model.Template {
	out := make([]*model.Template, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedComments(m map[int64]*model.Comment) []*model.Comment {
	out := make([]*model.Comment, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedProjects(m map[int64]*model.Project) []*model.Project {
	out := make([]*model.Project, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedCredentials(m map[int64]*model.APICredential) []*model.APICredential {
	out := make([]*model.APICredential, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
