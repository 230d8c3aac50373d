// Package shared holds the error kinds every domain package reports.
package shared

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks against the typed errors below
var (
	ErrValidation             = errors.New("validation failed")
	ErrInvalidState           = errors.New("operation not allowed in current state")
	ErrConcurrentModification = errors.New("resource was modified by another process")
	ErrConfiguration          = errors.New("configuration error")
	ErrNotFound               = errors.New("resource not found")
	ErrAlreadyExists          = errors.New("resource already exists")
)

// ValidationError reports malformed input and names the offending field
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is matches ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// InvalidStateError reports an operation attempted outside its legal source state
type InvalidStateError struct {
	Aggregate string
	Current   string
	Attempted string
}

// NewInvalidStateError creates an InvalidStateError
func NewInvalidStateError(aggregate, current, attempted string) *InvalidStateError {
	return &InvalidStateError{Aggregate: aggregate, Current: current, Attempted: attempted}
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: cannot %s while %s", e.Aggregate, e.Attempted, e.Current)
}

// Is matches ErrInvalidState
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// ConcurrentModificationError reports a version mismatch on an aggregate
type ConcurrentModificationError struct {
	Aggregate string
	ID        string
	Expected  int
	Actual    int
}

// NewConcurrentModificationError creates a ConcurrentModificationError
func NewConcurrentModificationError(aggregate, id string, expected, actual int) *ConcurrentModificationError {
	return &ConcurrentModificationError{Aggregate: aggregate, ID: id, Expected: expected, Actual: actual}
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently: expected version %d, current version %d",
		e.Aggregate, e.ID, e.Expected, e.Actual)
}

// Is matches ErrConcurrentModification
func (e *ConcurrentModificationError) Is(target error) bool {
	return target == ErrConcurrentModification
}

// ConfigurationError reports a rule-table entry that the input references but
// the configuration does not define
type ConfigurationError struct {
	Key     string
	Message string
}

// NewConfigurationError creates a ConfigurationError
func NewConfigurationError(key, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Key: key, Message: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("per-diem configuration %s: %s", e.Key, e.Message)
}

// Is matches ErrConfiguration
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
