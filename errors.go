package baton

import (
	"errors"
	"fmt"
)

var (
	// Not found errors.
	ErrEntityNotFound = errors.New("baton: saga entity not found")

	// Conflict errors.
	ErrEntityExists   = errors.New("baton: saga entity already exists")
	ErrUpdateConflict = errors.New("baton: saga entity version conflict")

	// Registration errors.
	ErrSagaNotRegistered = errors.New("baton: saga not registered")
)

// MissingTimeoutHandlerError reports a fatal contract violation: a saga
// received a timeout notification whose payload type it has no handler
// for. Sagas schedule their own timeouts, so a missing handler means the
// saga type lacks a capability it depends on. The dispatch is aborted and
// the error propagates to the transport.
type MissingTimeoutHandlerError struct {
	SagaName    string
	PayloadType string
}

// Error identifies the saga type and the timeout payload type so an
// operator can locate the missing capability without inspecting internals.
func (e *MissingTimeoutHandlerError) Error() string {
	return fmt.Sprintf("baton: saga %q has no timeout handler for payload type %s", e.SagaName, e.PayloadType)
}
