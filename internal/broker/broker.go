// Package broker implements the BrokerAPI facade: pure
// orchestration over TenantGuard, StateMachine, RelationshipGraph,
// Propagator and AuditLog, returning a typed Result[T] envelope instead
// of raising exceptions for logical failures. Transports (internal/mcp,
// and any future REST surface) translate Result[T] into their own
// success/failure framing; BrokerAPI itself never imports a transport
// package.
package broker

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/agentbroker/taskbroker/internal/audit"
	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/propagator"
	"github.com/agentbroker/taskbroker/internal/relationship"
	"github.com/agentbroker/taskbroker/internal/statemachine"
	"github.com/agentbroker/taskbroker/internal/store"
	"github.com/agentbroker/taskbroker/internal/tenant"
)

// DefaultQueryLimit and MaxQueryLimit bound every list operation per
// below.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// Broker is the BrokerAPI component. One instance is shared by every
// transport; it holds no per-request state.
type Broker struct {
	store      store.Store
	sm         *statemachine.StateMachine
	graph      *relationship.Graph
	propagator *propagator.Propagator
	audit      *audit.Log
	tenant     *tenant.Guard
	validate   *validator.Validate
}

// New wires a Broker over its collaborators. Callers construct the
// collaborators once at startup (internal/relationship.Graph,
// internal/propagator.Propagator, internal/audit.Log,
// internal/statemachine.StateMachine, internal/tenant.Guard) over a
// single store.Store and inject them here.
func New(s store.Store, sm *statemachine.StateMachine, g *relationship.Graph, p *propagator.Propagator, a *audit.Log, tg *tenant.Guard) *Broker {
	return &Broker{store: s, sm: sm, graph: g, propagator: p, audit: a, tenant: tg, validate: validator.New()}
}

// Result is the typed envelope every BrokerAPI operation returns.
// Success carries Data; failure carries Error/ErrorKind/ErrorDetails.
// Transports decide how to map this onto their own status codes.
type Result[T any] struct {
	Success      bool            `json:"success"`
	Data         T               `json:"data,omitempty"`
	Error        string          `json:"error,omitempty"`
	ErrorKind    model.ErrorKind `json:"error_kind,omitempty"`
	ErrorDetails map[string]any  `json:"error_details,omitempty"`
}

func ok[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

func fail[T any](err error) Result[T] {
	var be *model.BrokerError
	if errors.As(err, &be) {
		return Result[T]{Error: be.Message, ErrorKind: be.Kind, ErrorDetails: be.Details}
	}
	if errors.Is(err, store.ErrNotFound) {
		return Result[T]{Error: err.Error(), ErrorKind: model.ErrorKindNotFound}
	}
	return Result[T]{Error: err.Error(), ErrorKind: model.ErrorKindDatabaseConstraint}
}

// invalidInput builds a Result carrying field-level validation errors,
// without ever reaching the Store.
func invalidInput[T any](err error) Result[T] {
	var verrs validator.ValidationErrors
	details := map[string]any{}
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			details[fe.Field()] = fmt.Sprintf("failed %q validation", fe.Tag())
		}
	}
	return Result[T]{Error: "invalid input", ErrorKind: model.ErrorKindInvalidInput, ErrorDetails: details}
}

// validated runs struct-tag validation on req, returning a pre-built
// failure Result on rejection so call sites can `if r, ok := ...; !ok`
// return immediately.
func validated[T any](b *Broker, req any) (Result[T], bool) {
	if err := b.validate.Struct(req); err != nil {
		return invalidInput[T](err), false
	}
	return Result[T]{}, true
}

// translateNotFound maps a raw store.ErrNotFound into the task-scoped
// BrokerError the Result envelope expects.
func translateNotFound(err error, taskID int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return model.ErrTaskNotFound(taskID)
	}
	return err
}

// clampLimit applies the DEFAULT_QUERY_LIMIT / hard ceiling rule of
// to a caller-supplied limit.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
