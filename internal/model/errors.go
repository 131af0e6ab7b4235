package model

import "fmt"

// ErrorKind is the closed set of logical error tags surfaced across the
// BrokerAPI, mirroring the REST error envelope's error_kind values.
type ErrorKind string

const (
	ErrorKindNotFound               ErrorKind = "not_found"
	ErrorKindNotReservable          ErrorKind = "not_reservable"
	ErrorKindNotAssigned            ErrorKind = "not_assigned"
	ErrorKindAlreadyVerified        ErrorKind = "already_verified"
	ErrorKindInvalidInput           ErrorKind = "invalid_input"
	ErrorKindCircularDependency     ErrorKind = "circular_dependency"
	ErrorKindDatabaseConstraint     ErrorKind = "database_constraint_error"
	ErrorKindUnauthenticated        ErrorKind = "unauthenticated"
	ErrorKindForbidden              ErrorKind = "forbidden"
	ErrorKindInvalidTransition      ErrorKind = "invalid_transition"
)

// BrokerError is a typed, result-style failure: every StateMachine and
// BrokerAPI operation returns one of these instead of using exceptions
// for control flow.
type BrokerError struct {
	Kind    ErrorKind
	Message string
	// Details carries structured context for the caller (e.g. the
	// observed current status/holder on not_reservable).
	Details map[string]any
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError constructs a BrokerError with the given kind and message.
func NewError(kind ErrorKind, message string, details map[string]any) *BrokerError {
	return &BrokerError{Kind: kind, Message: message, Details: details}
}

// ErrTaskNotFound, ErrNotAssignedToYou, etc. are convenience
// constructors for the named failure conditions used across task transitions.
func ErrTaskNotFound(taskID int64) *BrokerError {
	return NewError(ErrorKindNotFound, fmt.Sprintf("task %d not found", taskID), nil)
}

func ErrNotAssignedToYou(taskID int64, agentID string) *BrokerError {
	return NewError(ErrorKindNotAssigned, fmt.Sprintf("task %d is not assigned to %s", taskID, agentID), map[string]any{
		"task_id":  taskID,
		"agent_id": agentID,
	})
}

func ErrNotReservable(taskID int64, currentStatus TaskStatus, holder *string) *BrokerError {
	details := map[string]any{
		"task_id":        taskID,
		"current_status": currentStatus,
	}
	if holder != nil {
		details["assigned_agent"] = *holder
	}
	return NewError(ErrorKindNotReservable, fmt.Sprintf("task %d is not reservable (status=%s)", taskID, currentStatus), details)
}

func ErrAlreadyVerified(taskID int64) *BrokerError {
	return NewError(ErrorKindAlreadyVerified, fmt.Sprintf("task %d is already verified", taskID), map[string]any{"task_id": taskID})
}

func ErrInvalidTransition(taskID int64, from TaskStatus, op string) *BrokerError {
	return NewError(ErrorKindInvalidTransition, fmt.Sprintf("cannot %s task %d from status %s", op, taskID, from), map[string]any{
		"task_id": taskID,
		"from":    from,
		"op":      op,
	})
}

func ErrCircularDependency(parentID, childID int64) *BrokerError {
	return NewError(ErrorKindCircularDependency, fmt.Sprintf("edge %d -> %d would close a cycle in the blocking graph", parentID, childID), map[string]any{
		"parent_task_id": parentID,
		"child_task_id":  childID,
	})
}

// IsKind reports whether err is a *BrokerError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	be, ok := err.(*BrokerError)
	return ok && be.Kind == kind
}
