package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation error")
	ErrDuplicateID         = errors.New("duplicate id")
	ErrDuplicateIncidentID = errors.New("duplicate incident id")
	ErrImmutableField      = errors.New("immutable field")
	ErrInvalidState        = errors.New("invalid state")
	ErrStorageUnavailable  = errors.New("storage unavailable")

	// Capability failures. None of these are retried automatically.
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnavailable      = errors.New("unavailable")
	ErrNotSupported     = fmt.Errorf("not supported: %w", ErrUnavailable)
	ErrDeviceBusy       = fmt.Errorf("device busy: %w", ErrUnavailable)
	ErrTimeout          = errors.New("timeout")

	ErrChannelFailure           = errors.New("channel failure")
	ErrSessionAlreadyActive     = errors.New("recording session already active")
	ErrNoActiveSession          = errors.New("no active recording session")
	ErrLocationUnavailable      = errors.New("location unavailable")
	ErrCaptureDeviceUnavailable = errors.New("capture device unavailable")
)

// ValidationError reports a field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError creates a new validation error
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// IsValidationError checks if an error is a validation error (including wrapped errors)
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// ImmutableFieldError is returned when a patch tries to change a field that is
// fixed at creation time.
type ImmutableFieldError struct {
	Field string
}

func (e ImmutableFieldError) Error() string {
	return fmt.Sprintf("field %s is immutable", e.Field)
}

func (e ImmutableFieldError) Is(target error) bool { return target == ErrImmutableField }

// NotFoundError names the missing resource.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }
