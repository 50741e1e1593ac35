package errors

import (
	"errors"
	"fmt"
)

// Validation kinds reported by ValidationError.Kind.
const (
	KindNotValid = "notvalid"
	KindRequired = "required"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	// ErrPermissionDenied is returned when a chat is unknown or the user is not one of its members.
	// Both causes share this value so that callers cannot probe for chat existence.
	ErrPermissionDenied = fmt.Errorf("chat does not exist or user is not allowed to post in it")
	ErrNotFound         = fmt.Errorf("not found")
	ErrTooManyConflicts = fmt.Errorf("transaction aborted after too many conflicts")
	ErrInvalidToken     = fmt.Errorf("invalid token")
)

// ValidationError reports malformed input on a single field.
type ValidationError struct {
	Field string
	Kind  string
}

func NewValidationError(field, kind string) ValidationError {
	return ValidationError{Field: field, Kind: kind}
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s is %s", e.Field, e.Kind)
}

// StoreError wraps a failure of the underlying durable storage.
type StoreError struct {
	Op  string
	Err error
}

func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return StoreError{Op: op, Err: err}
}

func (e StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e StoreError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a ValidationError on field with the given kind.
func IsValidation(err error, field, kind string) bool {
	var v ValidationError
	if !errors.As(err, &v) {
		return false
	}
	return v.Field == field && v.Kind == kind
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}
