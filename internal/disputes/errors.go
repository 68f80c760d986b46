package disputes

import (
	"errors"
	"fmt"
)

// ErrVersionConflict is returned by dispute stores when a conditional save
// finds that another writer updated the record first.
var ErrVersionConflict = errors.New("dispute record was modified concurrently")

// ValidationError reports caller-fixable bad input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError reports a missing transaction, account or dispute.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// IllegalStateError reports an operation attempted from a state that forbids
// it: duplicate credit issuance, a response after the regulatory deadline, an
// account lock held elsewhere. The message names the conflicting state.
type IllegalStateError struct {
	Op     string
	Reason string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// InfrastructureError wraps store or gateway failures. Callers may retry at
// their discretion; the engine itself never does.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }
