package application

import "errors"

var (
	// ErrNotFound is returned when a referenced series or room does not resolve
	// to a stored entity.
	ErrNotFound = errors.New("application: not found")
	// ErrPersistenceFailure is returned when storage rejects part of a
	// generation; the whole materialization is aborted and nothing is appended.
	ErrPersistenceFailure = errors.New("application: persistence failure")
)

// ValidationError captures field level validation issues that callers can
// surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
