package store

import "fmt"

// ValidationError reports malformed input. It is raised before any
// document-store access, so a failed call never leaves a partial
// mutation behind. Storage faults are returned as plain wrapped errors
// and never use this type.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid input: " + e.Reason
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
