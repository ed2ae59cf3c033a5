package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("dispatch: not found")
	ErrAlreadyExists = errors.New("dispatch: already exists")
	ErrInvalidInput  = errors.New("dispatch: invalid input")
	ErrUnauthorized  = errors.New("dispatch: unauthorized")
	ErrForbidden     = errors.New("dispatch: forbidden")

	// Order errors
	ErrOrderNotFound     = errors.New("dispatch: order not found")
	ErrInvalidTransition = errors.New("dispatch: invalid order transition")
	ErrOrderClaimed      = errors.New("dispatch: order already claimed")
	ErrOrderNotClaimed   = errors.New("dispatch: order has no assigned agent")
	ErrNotClaimable      = errors.New("dispatch: order is not claimable")
	ErrAgentNotVerified  = errors.New("dispatch: order requires a verified agent")

	// Account errors
	ErrAccountNotFound   = errors.New("dispatch: account not found")
	ErrInsufficientFunds = errors.New("dispatch: insufficient funds")
	ErrHoldNotFound      = errors.New("dispatch: hold not found")
	ErrHoldNotActive     = errors.New("dispatch: hold is not active")
	ErrCurrencyMismatch  = errors.New("dispatch: currency mismatch")

	// Failed delivery errors
	ErrFailureNotFound   = errors.New("dispatch: failed delivery not found")
	ErrFailurePending    = errors.New("dispatch: a pending failed delivery already exists for this order")
	ErrReasonNotFound    = errors.New("dispatch: failure reason not found")
	ErrReasonInactive    = errors.New("dispatch: failure reason is inactive")
	ErrInvalidResolution = errors.New("dispatch: invalid resolution type")
	ErrAlreadyResolved   = errors.New("dispatch: failed delivery already resolved")

	// Inventory errors
	ErrItemNotFound = errors.New("dispatch: inventory item not found")

	// Notification errors
	ErrNotifyBufferFull = errors.New("dispatch: notification buffer full")

	// Store errors
	ErrStoreNotReady     = errors.New("dispatch: store not ready")
	ErrStoreClosed       = errors.New("dispatch: store is closed")
	ErrTransactionFailed = errors.New("dispatch: transaction failed")
	ErrMigrationFailed   = errors.New("dispatch: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("dispatch: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "dispatch: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("dispatch: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrHoldNotFound) ||
		errors.Is(err, ErrFailureNotFound) ||
		errors.Is(err, ErrReasonNotFound) ||
		errors.Is(err, ErrItemNotFound)
}

// IsConflict returns true if the error indicates the operation lost to a
// concurrent writer or arrived in the wrong state. Conflicts are never
// silently retried against a different state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrOrderClaimed) ||
		errors.Is(err, ErrFailurePending) ||
		errors.Is(err, ErrAlreadyResolved) ||
		errors.Is(err, ErrHoldNotActive)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNotifyBufferFull) ||
		errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed)
}
