package serviceaccount

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a command addresses an identity with no event history
	ErrNotFound = errors.New("service account not found")
	// ErrValidation is the root of every input or policy violation
	ErrValidation = errors.New("validation failed")
	// ErrAlreadyExists is returned when Create targets an identity that already has history
	ErrAlreadyExists = errors.New("service account already exists")

	// ErrTenantMismatch is returned when a command's tenant differs from the recorded tenant.
	// It unwraps to ErrValidation.
	ErrTenantMismatch = &ValidationError{Field: "tenantId", Reason: "does not match the service account's tenant"}
)

// ValidationError describes a rejected field. It unwraps to ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is, or wraps, ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is, or wraps, a validation failure
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
