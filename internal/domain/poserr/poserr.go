// Package poserr defines the error kinds shared by the point-of-sale domain
// packages. Callers tell them apart with errors.As; the HTTP layer maps each
// kind to a status code.
package poserr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ValidationError reports bad local input: a malformed amount, a missing
// field, a value outside its allowed range.
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

// Invalid returns a ValidationError for field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// PreconditionError reports an operation attempted in the wrong state.
type PreconditionError struct {
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string { return e.Reason }

func (e *PreconditionError) Unwrap() error { return e.Err }

// Precondition returns a PreconditionError with the given reason.
func Precondition(reason string) error {
	return &PreconditionError{Reason: reason}
}

// PreconditionFrom wraps a sentinel so errors.Is keeps working on it.
func PreconditionFrom(err error) error {
	return &PreconditionError{Reason: err.Error(), Err: err}
}

// RemoteOperationError is returned when the backend refused or failed an
// operation. Unknown is set when the call timed out and the operation may or
// may not have been applied.
type RemoteOperationError struct {
	Op      string
	Message string
	Unknown bool
	Err     error
}

func (e *RemoteOperationError) Error() string {
	if e.Unknown {
		return fmt.Sprintf("%s: outcome unknown, verify before retrying: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *RemoteOperationError) Unwrap() error { return e.Err }

// Remote wraps err as a RemoteOperationError for op. A nil err yields nil.
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteOperationError
	if errors.As(err, &re) {
		return err
	}
	return &RemoteOperationError{Op: op, Message: err.Error(), Err: err}
}

// ReconciliationSyncError means the sale was recorded but the matching cash
// register transaction was not. It needs a manual reconciliation, never a
// second sale.
type ReconciliationSyncError struct {
	InvoiceID string
	Err       error
}

func (e *ReconciliationSyncError) Error() string {
	return fmt.Sprintf("sale %s recorded but register not updated: %v", e.InvoiceID, e.Err)
}

func (e *ReconciliationSyncError) Unwrap() error { return e.Err }

// IsUnknownOutcome reports whether err is a remote failure of unknown outcome.
func IsUnknownOutcome(err error) bool {
	var re *RemoteOperationError
	return errors.As(err, &re) && re.Unknown
}
