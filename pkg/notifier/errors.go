package notifier

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError reports a missing notification.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("notification %d not found", e.ID)
}

// ConflictError reports an operation that conflicts with current state,
// such as marking an already-read notification as read.
type ConflictError struct {
	ID      int64
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("notification %d: %s", e.ID, e.Message)
}

// ExternalServiceError wraps a failure of the AI backend, email transport or store.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// UnrecognizedScheduleError is returned for a trigger expression with no job.
type UnrecognizedScheduleError struct {
	Trigger string
}

func (e *UnrecognizedScheduleError) Error() string {
	return fmt.Sprintf("unrecognized schedule %q", e.Trigger)
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a *NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsConflict reports whether err is a *ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsExternalService reports whether err is an *ExternalServiceError.
func IsExternalService(err error) bool {
	var target *ExternalServiceError
	return errors.As(err, &target)
}

// IsUnrecognizedSchedule reports whether err is an *UnrecognizedScheduleError.
func IsUnrecognizedSchedule(err error) bool {
	var target *UnrecognizedScheduleError
	return errors.As(err, &target)
}
