// Package domain defines core types, interfaces, and errors for the
// pipeline incident-response engine.
package domain

import "fmt"

// NotFoundError indicates a pipeline, check, or target was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// CycleError indicates a dependency insertion would create a cycle.
type CycleError struct {
	Message string
}

func (e *CycleError) Error() string { return e.Message }

// InvalidTransitionError indicates an operation that would violate a
// lifecycle invariant, such as completing an already-completed run.
type InvalidTransitionError struct {
	Message string
}

func (e *InvalidTransitionError) Error() string { return e.Message }

// ForbiddenQueryError indicates the diagnostic sandbox rejected a statement.
type ForbiddenQueryError struct {
	Message string
}

func (e *ForbiddenQueryError) Error() string { return e.Message }

// FixInProgressError indicates an unconsumed backup already exists for a target.
type FixInProgressError struct {
	Message string
}

func (e *FixInProgressError) Error() string { return e.Message }

// NoBackupError indicates a rollback or commit was requested with no backup.
type NoBackupError struct {
	Message string
}

func (e *NoBackupError) Error() string { return e.Message }

// TimeoutError indicates an external collaborator exceeded its time bound.
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string { return e.Message }

// ExecutionError wraps an underlying storage or warehouse failure.
type ExecutionError struct {
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrCycle creates a CycleError with a formatted message.
func ErrCycle(format string, args ...interface{}) *CycleError {
	return &CycleError{Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidTransition creates an InvalidTransitionError with a formatted message.
func ErrInvalidTransition(format string, args ...interface{}) *InvalidTransitionError {
	return &InvalidTransitionError{Message: fmt.Sprintf(format, args...)}
}

// ErrForbiddenQuery creates a ForbiddenQueryError with a formatted message.
func ErrForbiddenQuery(format string, args ...interface{}) *ForbiddenQueryError {
	return &ForbiddenQueryError{Message: fmt.Sprintf(format, args...)}
}

// ErrFixInProgress creates a FixInProgressError with a formatted message.
func ErrFixInProgress(format string, args ...interface{}) *FixInProgressError {
	return &FixInProgressError{Message: fmt.Sprintf(format, args...)}
}

// ErrNoBackup creates a NoBackupError with a formatted message.
func ErrNoBackup(format string, args ...interface{}) *NoBackupError {
	return &NoBackupError{Message: fmt.Sprintf(format, args...)}
}

// ErrTimeout creates a TimeoutError with a formatted message.
func ErrTimeout(format string, args ...interface{}) *TimeoutError {
	return &TimeoutError{Message: fmt.Sprintf(format, args...)}
}

// ErrExecution wraps err in an ExecutionError with a formatted message.
func ErrExecution(err error, format string, args ...interface{}) *ExecutionError {
	return &ExecutionError{Message: fmt.Sprintf(format, args...), Err: err}
}
