package broker

import (
	"context"

	"github.com/agentbroker/taskbroker/internal/model"
)

// CreateRelationshipRequest is the "create_relationship" operation's
// input DTO.
type CreateRelationshipRequest struct {
	OrganizationID int64  `json:"organization_id" validate:"required"`
	ParentTaskID   int64  `json:"parent_task_id" validate:"required"`
	ChildTaskID    int64  `json:"child_task_id" validate:"required"`
	Type           string `json:"type" validate:"required,oneof=subtask blocking blocked_by followup related"`
	AgentID        string `json:"agent_id" validate:"required"`
}

// CreateRelationship implements the "create_relationship" operation.
// Idempotent per (parent, child, type); refused with
// circular_dependency when it would close a cycle in the blocking graph.
func (b *Broker) CreateRelationship(ctx context.Context, req CreateRelationshipRequest) Result[*model.Relationship] {
	if r, ok := validated[*model.Relationship](b, req); !ok {
		return r
	}
	rel, err := b.graph.Create(ctx, req.OrganizationID, req.ParentTaskID, req.ChildTaskID, model.RelationshipType(req.Type))
	if err != nil {
		return fail[*model.Relationship](err)
	}
	return ok(rel)
}

// ListRelated implements the "list_related" operation.
func (b *Broker) ListRelated(ctx context.Context, organizationID, taskID int64, relType *model.RelationshipType) Result[[]*model.Relationship] {
	rels, err := b.graph.ListRelated(ctx, organizationID, taskID, relType)
	if err != nil {
		return fail[[]*model.Relationship](err)
	}
	return ok(rels)
}
