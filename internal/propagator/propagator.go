// Package propagator implements the read-time and write-time effects
// that ripple across the task graph: auto-completing parents once every
// child is complete, and substituting the derived "blocked" status when
// a descendant is blocked.
package propagator

import (
	"context"
	"fmt"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/relationship"
	"github.com/agentbroker/taskbroker/internal/store"
)

// maxAncestryDepth bounds the upward auto-complete walk.
const maxAncestryDepth = 10000

// Propagator is the component wired in after every completion and after
// every task_status change.
type Propagator struct {
	store store.Store
	graph *relationship.Graph
}

// New builds a Propagator over s, sharing g's relationship graph so the
// walks it performs are consistent with cycle-checked edges.
func New(s store.Store, g *relationship.Graph) *Propagator {
	return &Propagator{store: s, graph: g}
}

// Decorate fills in the read-time computed fields on t: needs_verification,
// effective_status, and the derived-blocked substitution. It never
// mutates the persisted row.
func (p *Propagator) Decorate(ctx context.Context, organizationID int64, t *model.Task) error {
	t.NeedsVerification = t.TaskStatus == model.TaskStatusComplete && t.VerificationStatus == model.VerificationUnverified
	if t.NeedsVerification {
		t.EffectiveStatus = model.TaskStatusAvailable
	} else {
		t.EffectiveStatus = t.TaskStatus
	}
	t.ComputeTimeDelta()

	if t.TaskStatus == model.TaskStatusComplete || t.TaskStatus == model.TaskStatusCancelled {
		return nil
	}
	blocked, err := p.hasBlockedDescendant(ctx, organizationID, t.ID)
	if err != nil {
		return err
	}
	if blocked {
		t.EffectiveStatus = model.TaskStatusBlocked
	}
	return nil
}

// DecorateAll applies Decorate to every task in ts.
func (p *Propagator) DecorateAll(ctx context.Context, organizationID int64, ts []*model.Task) error {
	for _, t := range ts {
		if err := p.Decorate(ctx, organizationID, t); err != nil {
			return err
		}
	}
	return nil
}

// hasBlockedDescendant reports whether any descendant of taskID reached
// via subtask edges is itself persisted as blocked.
func (p *Propagator) hasBlockedDescendant(ctx context.Context, organizationID, taskID int64) (bool, error) {
	descendants, err := p.graph.Descendants(ctx, organizationID, taskID)
	if err != nil {
		return false, fmt.Errorf("propagator: descendants: %w", err)
	}
	for _, id := range descendants {
		t, err := p.store.GetTask(ctx, organizationID, id)
		if err != nil {
			return false, fmt.Errorf("propagator: get descendant %d: %w", id, err)
		}
		if t.TaskStatus == model.TaskStatusBlocked {
			return true, nil
		}
	}
	return false, nil
}

// NotifyComplete runs the auto-complete rule after taskID transitions to
// complete: every parent whose children (via subtask edges) are now all
// complete is itself completed as the synthetic agent "system", and the
// walk recurses upward.
func (p *Propagator) NotifyComplete(ctx context.Context, organizationID, taskID int64) error {
	visited := map[int64]bool{taskID: true}
	return p.propagateUp(ctx, organizationID, taskID, visited, 0)
}

func (p *Propagator) propagateUp(ctx context.Context, organizationID, taskID int64, visited map[int64]bool, depth int) error {
	if depth >= maxAncestryDepth {
		return nil
	}
	parents, err := p.store.IncomingEdges(ctx, organizationID, taskID, model.RelationshipSubtask)
	if err != nil {
		return fmt.Errorf("propagator: parents of %d: %w", taskID, err)
	}
	for _, edge := range parents {
		parentID := edge.ParentTaskID
		if visited[parentID] {
			continue
		}
		allComplete, err := p.allChildrenComplete(ctx, organizationID, parentID)
		if err != nil {
			return err
		}
		if !allComplete {
			continue
		}
		if err := p.autoComplete(ctx, organizationID, parentID); err != nil {
			return err
		}
		visited[parentID] = true
		if err := p.propagateUp(ctx, organizationID, parentID, visited, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (p *Propagator) allChildrenComplete(ctx context.Context, organizationID, parentID int64) (bool, error) {
	children, err := p.store.OutgoingEdges(ctx, organizationID, parentID, model.RelationshipSubtask)
	if err != nil {
		return false, fmt.Errorf("propagator: children of %d: %w", parentID, err)
	}
	if len(children) == 0 {
		return false, nil
	}
	for _, edge := range children {
		child, err := p.store.GetTask(ctx, organizationID, edge.ChildTaskID)
		if err != nil {
			return false, fmt.Errorf("propagator: get child %d: %w", edge.ChildTaskID, err)
		}
		if child.TaskStatus != model.TaskStatusComplete {
			return false, nil
		}
	}
	return true, nil
}

const autoCompleteNote = "Auto-completed: all subtasks complete"

// autoComplete completes parentID as the synthetic agent "system" via
// store.AutoComplete, which has no lease precondition beyond "not
// already complete" since an auto-completed parent is typically
// unassigned.
func (p *Propagator) autoComplete(ctx context.Context, organizationID, parentID int64) error {
	ok, err := p.store.AutoComplete(ctx, organizationID, parentID, autoCompleteNote)
	if err != nil {
		return fmt.Errorf("propagator: auto-complete %d: %w", parentID, err)
	}
	if !ok {
		return nil
	}
	note := autoCompleteNote
	_, err = p.store.RecordChange(ctx, &model.ChangeHistory{
		TaskID: parentID, AgentID: "system", ChangeType: model.ChangeCompleted,
		NewValue: &note,
	})
	if err != nil {
		return fmt.Errorf("propagator: record auto-complete history %d: %w", parentID, err)
	}
	return nil
}
