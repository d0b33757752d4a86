package model

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

// ValidationError represents malformed user input. Always recoverable:
// callers re-prompt with the message rather than aborting the session.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// IsValidationError checks if an error is a validation error (including wrapped errors)
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// SchemaError represents a tenant configuration problem, e.g. a logical
// column key absent from the tenant's column map. Fatal to the current
// operation and surfaced distinctly from user input errors.
type SchemaError struct {
	Key     string
	Message string
}

func (e SchemaError) Error() string {
	return fmt.Sprintf("schema error for %s: %s", e.Key, e.Message)
}

// NewSchemaError constructs SchemaError
func NewSchemaError(key, message string) SchemaError {
	return SchemaError{Key: key, Message: message}
}

// IsSchemaError checks if error is SchemaError
func IsSchemaError(err error) bool {
	var se SchemaError
	return errors.As(err, &se)
}
