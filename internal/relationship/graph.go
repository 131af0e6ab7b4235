// Package relationship owns the task relationship graph: edge creation
// and deletion, cycle prevention on the blocking sub-graph, and the
// ancestry/descendant walks the propagator relies on.
package relationship

import (
	"context"
	"fmt"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store"
)

// maxWalkDepth bounds ancestry/descendant walks so an accidental cycle in
// a non-blocking edge type (subtask, followup, related are acyclic only
// by convention) cannot spin the walk forever.
const maxWalkDepth = 100000

// Graph is the relationship-graph component, backed by a store.Store.
type Graph struct {
	store store.Store
}

// NewGraph builds a Graph over s.
func NewGraph(s store.Store) *Graph {
	return &Graph{store: s}
}

// Create adds a relationship edge, enforcing parent != child, idempotent
// re-add by (parent, child, type), and blocking-graph acyclicity. It
// records a relationship_added change-history entry against the parent
// task when a new edge is actually inserted.
func (g *Graph) Create(ctx context.Context, organizationID, parentID, childID int64, relType model.RelationshipType) (*model.Relationship, error) {
	if !relType.Valid() {
		return nil, model.NewError(model.ErrorKindInvalidInput, fmt.Sprintf("invalid relationship type %q", relType), nil)
	}
	if parentID == childID {
		return nil, model.NewError(model.ErrorKindInvalidInput, "relationship parent and child must differ", nil)
	}

	var created *model.Relationship
	err := g.store.Tx(ctx, func(ctx context.Context) error {
		if _, err := g.store.GetTask(ctx, organizationID, parentID); err != nil {
			return err
		}
		if _, err := g.store.GetTask(ctx, organizationID, childID); err != nil {
			return err
		}

		existing, err := g.findExisting(ctx, organizationID, parentID, childID, relType)
		if err != nil {
			return err
		}
		if existing != nil {
			created = existing
			return nil
		}

		if relType == model.RelationshipBlocking || relType == model.RelationshipBlockedBy {
			x, y := blockingEndpoints(parentID, childID, relType)
			cyclic, err := g.wouldCycle(ctx, organizationID, x, y)
			if err != nil {
				return err
			}
			if cyclic {
				return model.ErrCircularDependency(parentID, childID)
			}
		}

		rel, err := g.store.CreateRelationship(ctx, organizationID, parentID, childID, relType)
		if err != nil {
			return err
		}
		typeStr := string(relType)
		if _, err := g.store.RecordChange(ctx, &model.ChangeHistory{
			TaskID: parentID, AgentID: "system", ChangeType: model.ChangeRelationshipAdded,
			FieldName: strPtr("relationship"), NewValue: &typeStr,
		}); err != nil {
			return err
		}
		created = rel
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Delete removes rel and records a relationship_removed change-history
// entry against its parent task. The caller supplies the already-fetched
// relationship (typically from ListRelated) since the Store's delete
// primitive is id-only.
func (g *Graph) Delete(ctx context.Context, organizationID int64, rel *model.Relationship, agentID string) error {
	return g.store.Tx(ctx, func(ctx context.Context) error {
		if err := g.store.DeleteRelationship(ctx, organizationID, rel.ID); err != nil {
			return err
		}
		typeStr := string(rel.Type)
		_, err := g.store.RecordChange(ctx, &model.ChangeHistory{
			TaskID: rel.ParentTaskID, AgentID: agentID, ChangeType: model.ChangeRelationshipRemoved,
			FieldName: strPtr("relationship"), OldValue: &typeStr,
		})
		return err
	})
}

// ListRelated returns every edge touching taskID, optionally filtered by
// type.
func (g *Graph) ListRelated(ctx context.Context, organizationID, taskID int64, relType *model.RelationshipType) ([]*model.Relationship, error) {
	return g.store.ListRelationships(ctx, organizationID, taskID, relType)
}

// Descendants returns every task id reachable from taskID via outgoing
// subtask edges (parent -> child), excluding taskID itself.
func (g *Graph) Descendants(ctx context.Context, organizationID, taskID int64) ([]int64, error) {
	return g.walk(ctx, organizationID, taskID, g.store.OutgoingEdges, func(r *model.Relationship) int64 { return r.ChildTaskID })
}

// Ancestors returns every task id that reaches taskID via subtask edges
// (parent -> child), excluding taskID itself.
func (g *Graph) Ancestors(ctx context.Context, organizationID, taskID int64) ([]int64, error) {
	return g.walk(ctx, organizationID, taskID, g.store.IncomingEdges, func(r *model.Relationship) int64 { return r.ParentTaskID })
}

func (g *Graph) walk(
	ctx context.Context,
	organizationID, start int64,
	edgesOf func(ctx context.Context, organizationID, taskID int64, relType model.RelationshipType) ([]*model.Relationship, error),
	next func(*model.Relationship) int64,
) ([]int64, error) {
	visited := map[int64]bool{start: true}
	queue := []int64{start}
	var out []int64
	for len(queue) > 0 && len(visited) < maxWalkDepth {
		n := queue[0]
		queue = queue[1:]
		edges, err := edgesOf(ctx, organizationID, n, model.RelationshipSubtask)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			id := next(e)
			if !visited[id] {
				visited[id] = true
				out = append(out, id)
				queue = append(queue, id)
			}
		}
	}
	return out, nil
}

func (g *Graph) findExisting(ctx context.Context, organizationID, parentID, childID int64, relType model.RelationshipType) (*model.Relationship, error) {
	rels, err := g.store.ListRelationships(ctx, organizationID, parentID, &relType)
	if err != nil {
		return nil, err
	}
	for _, r := range rels {
		if r.ParentTaskID == parentID && r.ChildTaskID == childID && r.Type == relType {
			return r, nil
		}
	}
	return nil, nil
}

// blockingEndpoints normalizes a candidate blocking/blocked_by edge into
// the generic "X is blocked by Y" form the cycle check reasons about.
// blocking(parent,child) means parent blocks child, i.e. child is
// blocked by parent.
func blockingEndpoints(parentID, childID int64, relType model.RelationshipType) (x, y int64) {
	if relType == model.RelationshipBlockedBy {
		return parentID, childID
	}
	return childID, parentID
}

// wouldCycle reports whether X is already (transitively) a blocker of Y,
// which is exactly the condition under which adding "X is blocked by Y"
// would close a cycle in the blocking graph.
func (g *Graph) wouldCycle(ctx context.Context, organizationID, x, y int64) (bool, error) {
	if x == y {
		return true, nil
	}
	visited := map[int64]bool{y: true}
	queue := []int64{y}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		blockers, err := g.blockersOf(ctx, organizationID, n)
		if err != nil {
			return false, err
		}
		for _, b := range blockers {
			if b == x {
				return true, nil
			}
			if !visited[b] {
				visited[b] = true
				queue = append(queue, b)
			}
		}
	}
	return false, nil
}

// blockersOf returns every task id that directly blocks taskID, i.e. the
// union of blocked_by edges outbound from taskID and blocking edges
// inbound to taskID.
func (g *Graph) blockersOf(ctx context.Context, organizationID, taskID int64) ([]int64, error) {
	var out []int64
	outgoing, err := g.store.OutgoingEdges(ctx, organizationID, taskID, model.RelationshipBlockedBy)
	if err != nil {
		return nil, err
	}
	for _, e := range outgoing {
		out = append(out, e.ChildTaskID)
	}
	incoming, err := g.store.IncomingEdges(ctx, organizationID, taskID, model.RelationshipBlocking)
	if err != nil {
		return nil, err
	}
	for _, e := range incoming {
		out = append(out, e.ParentTaskID)
	}
	return out, nil
}

func strPtr(s string) *string { return &s }
