// Package statemachine owns the reserve/unlock/complete/verify
// transition rules for task leases. Every transition either succeeds and
// emits history plus the updated task row, or fails with a typed
// *model.BrokerError and writes nothing.
package statemachine

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentbroker/taskbroker/internal/audit"
	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/propagator"
	"github.com/agentbroker/taskbroker/internal/store"
)

// staleUpdateScanLimit bounds how many recent updates Reserve inspects
// when looking for a stale-lease marker to surface as a warning.
const staleUpdateScanLimit = 20

// StateMachine is the component owning task lifecycle transitions.
type StateMachine struct {
	store      store.Store
	audit      *audit.Log
	propagator *propagator.Propagator
}

// New builds a StateMachine wired to the given collaborators.
func New(s store.Store, a *audit.Log, p *propagator.Propagator) *StateMachine {
	return &StateMachine{store: s, audit: a, propagator: p}
}

// ReserveResult is the outcome of a successful Reserve call.
type ReserveResult struct {
	Task    *model.Task
	Warning *model.StaleWarning
}

// Reserve implements reserve(agent): available -> in_progress, or
// complete+unverified -> in_progress (the verification lease).
func (sm *StateMachine) Reserve(ctx context.Context, organizationID, taskID int64, agentID string) (*ReserveResult, error) {
	task, err := sm.store.GetTask(ctx, organizationID, taskID)
	if err != nil {
		return nil, translateNotFound(err, taskID)
	}
	if task.AssignedAgent != nil {
		return nil, model.ErrNotReservable(taskID, task.TaskStatus, task.AssignedAgent)
	}
	allowNeedsVerification := task.TaskStatus == model.TaskStatusComplete && task.VerificationStatus == model.VerificationUnverified
	if task.TaskStatus != model.TaskStatusAvailable && !allowNeedsVerification {
		return nil, model.ErrNotReservable(taskID, task.TaskStatus, task.AssignedAgent)
	}

	ok, err := sm.store.LockIfAvailable(ctx, taskID, agentID, allowNeedsVerification)
	if err != nil {
		return nil, fmt.Errorf("statemachine: reserve: %w", err)
	}
	if !ok {
		// Lost the race; reload to report the actual current holder.
		current, getErr := sm.store.GetTask(ctx, organizationID, taskID)
		if getErr != nil {
			return nil, translateNotFound(getErr, taskID)
		}
		return nil, model.ErrNotReservable(taskID, current.TaskStatus, current.AssignedAgent)
	}

	changeType := model.ChangeLocked
	if allowNeedsVerification {
		changeType = model.ChangeLockedForVerify
	}
	if err := sm.audit.RecordChange(ctx, taskID, agentID, changeType, nil, nil, nil); err != nil {
		return nil, err
	}

	warning, err := sm.staleWarning(ctx, organizationID, taskID)
	if err != nil {
		return nil, err
	}

	updated, err := sm.store.GetTask(ctx, organizationID, taskID)
	if err != nil {
		return nil, translateNotFound(err, taskID)
	}
	if err := sm.propagator.Decorate(ctx, organizationID, updated); err != nil {
		return nil, err
	}
	return &ReserveResult{Task: updated, Warning: warning}, nil
}

// staleWarning scans the most recent updates for a stale-lease finding
// marker and, if found, surfaces it as an advisory (non-state-altering)
// warning alongside a successful reservation.
func (sm *StateMachine) staleWarning(ctx context.Context, organizationID, taskID int64) (*model.StaleWarning, error) {
	updates, err := sm.audit.ListUpdates(ctx, organizationID, taskID, staleUpdateScanLimit)
	if err != nil {
		return nil, fmt.Errorf("statemachine: stale warning scan: %w", err)
	}
	for _, u := range updates {
		if !u.IsStaleFinding() {
			continue
		}
		prev := ""
		if v, ok := u.Metadata["previous_agent"]; ok {
			if s, ok := v.(string); ok {
				prev = s
			}
		}
		return &model.StaleWarning{
			IsStale:       true,
			PreviousAgent: prev,
			UnlockedAt:    u.CreatedAt,
			StaleFinding:  u.Content,
			WarningText:   fmt.Sprintf("This task was previously reclaimed from agent %q after an inactivity timeout.", prev),
		}, nil
	}
	return nil, nil
}

// Unlock implements unlock(agent): in_progress -> available, only when
// agentID currently holds the lease.
func (sm *StateMachine) Unlock(ctx context.Context, organizationID, taskID int64, agentID string) (*model.Task, error) {
	task, err := sm.store.GetTask(ctx, organizationID, taskID)
	if err != nil {
		return nil, translateNotFound(err, taskID)
	}
	if task.AssignedAgent == nil || *task.AssignedAgent != agentID {
		return nil, model.ErrNotAssignedToYou(taskID, agentID)
	}
	ok, err := sm.store.UnlockIfOwner(ctx, taskID, agentID)
	if err != nil {
		return nil, fmt.Errorf("statemachine: unlock: %w", err)
	}
	if !ok {
		return nil, model.ErrNotAssignedToYou(taskID, agentID)
	}
	if err := sm.audit.RecordChange(ctx, taskID, agentID, model.ChangeUnlocked, nil, nil, nil); err != nil {
		return nil, err
	}
	return sm.decoratedGet(ctx, organizationID, taskID)
}

// Complete implements complete(agent, notes?, actual_hours?). From
// in_progress it moves to complete+unverified and triggers auto-complete
// propagation. From the verification lease (in_progress with a prior
// completed_at, reserved via allowNeedsVerification) it instead finalizes
// as complete+verified. Completing an already-complete+unverified task
// that this agent does not currently hold is a defined no-op success,
// per the idempotency rule below; an already-verified task is
// rejected.
func (sm *StateMachine) Complete(ctx context.Context, organizationID, taskID int64, agentID string, notes *string, actualHours *float64) (*model.Task, error) {
	task, err := sm.store.GetTask(ctx, organizationID, taskID)
	if err != nil {
		return nil, translateNotFound(err, taskID)
	}

	if task.TaskStatus == model.TaskStatusComplete {
		if task.VerificationStatus == model.VerificationVerified {
			return nil, model.ErrAlreadyVerified(taskID)
		}
		// No-op success: already complete+unverified and not currently
		// leased by this agent for verification.
		return sm.decoratedGet(ctx, organizationID, taskID)
	}

	if task.AssignedAgent == nil || *task.AssignedAgent != agentID {
		return nil, model.ErrNotAssignedToYou(taskID, agentID)
	}
	if task.TaskStatus != model.TaskStatusInProgress {
		return nil, model.ErrInvalidTransition(taskID, task.TaskStatus, "complete")
	}

	fromVerificationLease := task.CompletedAt != nil

	// The auto-complete recursion runs inside this same transaction so
	// the whole chain commits or rolls back together.
	err = sm.store.Tx(ctx, func(ctx context.Context) error {
		ok, err := sm.store.CompleteIfOwner(ctx, taskID, agentID, actualHours, fromVerificationLease)
		if err != nil {
			return fmt.Errorf("statemachine: complete: %w", err)
		}
		if !ok {
			return model.ErrNotAssignedToYou(taskID, agentID)
		}

		if notes != nil {
			if _, err := sm.audit.AddUpdate(ctx, &model.TaskUpdate{
				TaskID: taskID, UpdateType: model.UpdateTypeNote, Content: *notes, AuthorID: agentID,
			}); err != nil {
				return fmt.Errorf("statemachine: complete: record notes: %w", err)
			}
		}

		changeType := model.ChangeCompleted
		if fromVerificationLease {
			changeType = model.ChangeVerified
		}
		if err := sm.audit.RecordChange(ctx, taskID, agentID, changeType, nil, nil, nil); err != nil {
			return err
		}

		if err := sm.propagator.NotifyComplete(ctx, organizationID, taskID); err != nil {
			return fmt.Errorf("statemachine: complete: propagate: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return sm.decoratedGet(ctx, organizationID, taskID)
}

// Verify implements verify(agent, notes?): complete+unverified ->
// complete+verified. Any agent may verify.
func (sm *StateMachine) Verify(ctx context.Context, organizationID, taskID int64, agentID string, notes *string) (*model.Task, error) {
	task, err := sm.store.GetTask(ctx, organizationID, taskID)
	if err != nil {
		return nil, translateNotFound(err, taskID)
	}
	if task.TaskStatus == model.TaskStatusComplete && task.VerificationStatus == model.VerificationVerified {
		return nil, model.ErrAlreadyVerified(taskID)
	}
	if task.TaskStatus != model.TaskStatusComplete || task.VerificationStatus != model.VerificationUnverified {
		return nil, model.ErrInvalidTransition(taskID, task.TaskStatus, "verify")
	}

	ok, err := sm.store.Verify(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("statemachine: verify: %w", err)
	}
	if !ok {
		return nil, model.ErrInvalidTransition(taskID, task.TaskStatus, "verify")
	}

	if notes != nil {
		if _, err := sm.audit.AddUpdate(ctx, &model.TaskUpdate{
			TaskID: taskID, UpdateType: model.UpdateTypeNote, Content: *notes, AuthorID: agentID,
		}); err != nil {
			return nil, fmt.Errorf("statemachine: verify: record notes: %w", err)
		}
	}
	if err := sm.audit.RecordChange(ctx, taskID, agentID, model.ChangeVerified, nil, nil, nil); err != nil {
		return nil, err
	}
	return sm.decoratedGet(ctx, organizationID, taskID)
}

// BulkUnlock releases every task in taskIDs currently held by agentID,
// reporting per-id success; strict mode rolls the whole batch back on
// any single failure.
func (sm *StateMachine) BulkUnlock(ctx context.Context, taskIDs []int64, agentID string, strict bool) (map[int64]bool, error) {
	results, err := sm.store.BulkUnlock(ctx, taskIDs, agentID, strict)
	if err != nil {
		return nil, fmt.Errorf("statemachine: bulk unlock: %w", err)
	}
	for id, ok := range results {
		if ok {
			if err := sm.audit.RecordChange(ctx, id, agentID, model.ChangeUnlocked, nil, nil, nil); err != nil {
				return nil, err
			}
		}
	}
	return results, nil
}

// UpdateFields implements update_fields(...): content/scheduling fields
// may be mutated regardless of lease state. Each changed field writes a
// field_updated history entry; if any of model.VersionedFields changed, a
// new TaskVersion snapshot is recorded.
func (sm *StateMachine) UpdateFields(ctx context.Context, organizationID, taskID int64, agentID string, fields map[string]any) (*model.Task, error) {
	before, err := sm.store.GetTask(ctx, organizationID, taskID)
	if err != nil {
		return nil, translateNotFound(err, taskID)
	}
	after, err := sm.store.UpdateTaskFields(ctx, organizationID, taskID, fields)
	if err != nil {
		return nil, fmt.Errorf("statemachine: update fields: %w", err)
	}
	if err := sm.audit.SnapshotIfChanged(ctx, agentID, before, after); err != nil {
		return nil, err
	}
	return sm.decoratedGet(ctx, organizationID, taskID)
}

func (sm *StateMachine) decoratedGet(ctx context.Context, organizationID, taskID int64) (*model.Task, error) {
	t, err := sm.store.GetTask(ctx, organizationID, taskID)
	if err != nil {
		return nil, translateNotFound(err, taskID)
	}
	if err := sm.propagator.Decorate(ctx, organizationID, t); err != nil {
		return nil, err
	}
	return t, nil
}

func translateNotFound(err error, taskID int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return model.ErrTaskNotFound(taskID)
	}
	return err
}
