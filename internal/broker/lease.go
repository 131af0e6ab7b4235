package broker

import (
	"context"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/statemachine"
)

// ReserveRequest is the lease "reserve" operation's input DTO.
type ReserveRequest struct {
	OrganizationID int64  `json:"organization_id" validate:"required"`
	TaskID         int64  `json:"task_id" validate:"required"`
	AgentID        string `json:"agent_id" validate:"required"`
}

// Reserve implements the lease "reserve" operation.
func (b *Broker) Reserve(ctx context.Context, req ReserveRequest) Result[*statemachine.ReserveResult] {
	if r, ok := validated[*statemachine.ReserveResult](b, req); !ok {
		return r
	}
	res, err := b.sm.Reserve(ctx, req.OrganizationID, req.TaskID, req.AgentID)
	if err != nil {
		return fail[*statemachine.ReserveResult](err)
	}
	return ok(res)
}

// UnlockRequest is the lease "unlock" operation's input DTO.
type UnlockRequest struct {
	OrganizationID int64  `json:"organization_id" validate:"required"`
	TaskID         int64  `json:"task_id" validate:"required"`
	AgentID        string `json:"agent_id" validate:"required"`
}

// Unlock implements the lease "unlock" operation.
func (b *Broker) Unlock(ctx context.Context, req UnlockRequest) Result[*model.Task] {
	if r, ok := validated[*model.Task](b, req); !ok {
		return r
	}
	t, err := b.sm.Unlock(ctx, req.OrganizationID, req.TaskID, req.AgentID)
	if err != nil {
		return fail[*model.Task](err)
	}
	return ok(t)
}

// CompleteRequest is the lease "complete" operation's input DTO.
type CompleteRequest struct {
	OrganizationID int64    `json:"organization_id" validate:"required"`
	TaskID         int64    `json:"task_id" validate:"required"`
	AgentID        string   `json:"agent_id" validate:"required"`
	Notes          *string  `json:"notes,omitempty"`
	ActualHours    *float64 `json:"actual_hours,omitempty" validate:"omitempty,gte=0"`
}

// Complete implements the lease "complete" operation.
func (b *Broker) Complete(ctx context.Context, req CompleteRequest) Result[*model.Task] {
	if r, ok := validated[*model.Task](b, req); !ok {
		return r
	}
	t, err := b.sm.Complete(ctx, req.OrganizationID, req.TaskID, req.AgentID, req.Notes, req.ActualHours)
	if err != nil {
		return fail[*model.Task](err)
	}
	return ok(t)
}

// VerifyRequest is the lease "verify" operation's input DTO.
type VerifyRequest struct {
	OrganizationID int64   `json:"organization_id" validate:"required"`
	TaskID         int64   `json:"task_id" validate:"required"`
	AgentID        string  `json:"agent_id" validate:"required"`
	Notes          *string `json:"notes,omitempty"`
}

// Verify implements the lease "verify" operation.
func (b *Broker) Verify(ctx context.Context, req VerifyRequest) Result[*model.Task] {
	if r, ok := validated[*model.Task](b, req); !ok {
		return r
	}
	t, err := b.sm.Verify(ctx, req.OrganizationID, req.TaskID, req.AgentID, req.Notes)
	if err != nil {
		return fail[*model.Task](err)
	}
	return ok(t)
}

// BulkUnlockRequest is the lease "bulk_unlock" operation's input DTO.
type BulkUnlockRequest struct {
	TaskIDs []int64 `json:"task_ids" validate:"required,min=1"`
	AgentID string  `json:"agent_id" validate:"required"`
	Strict  bool    `json:"strict,omitempty"`
}

// BulkUnlock implements the lease "bulk_unlock" operation, returning
// per-id success.
func (b *Broker) BulkUnlock(ctx context.Context, req BulkUnlockRequest) Result[map[int64]bool] {
	if r, ok := validated[map[int64]bool](b, req); !ok {
		return r
	}
	results, err := b.sm.BulkUnlock(ctx, req.TaskIDs, req.AgentID, req.Strict)
	if err != nil {
		return fail[map[int64]bool](err)
	}
	return ok(results)
}
