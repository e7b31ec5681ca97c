package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized access")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict: resource already exists")
	ErrInternal       = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
	ErrDuplicateEntry = errors.New("duplicate entry")
)

// Domain errors for the subscription ledger and usage meter
var (
	// ErrInvalidTransition means the subscription state machine rejected the
	// requested move; the caller must not retry blindly.
	ErrInvalidTransition = errors.New("invalid subscription transition")

	// ErrLimitReached means the usage meter refused an increment that would
	// exceed the plan limit; the counter was left unchanged.
	ErrLimitReached = errors.New("feature limit reached")

	// ErrPlanInUse means a plan referenced by a live subscription cannot be
	// deleted.
	ErrPlanInUse = errors.New("plan referenced by live subscription")
)

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap extracts the underlying wrapped error.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
