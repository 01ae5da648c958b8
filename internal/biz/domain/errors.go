package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUsage marks malformed or missing command arguments.
	// Handlers wrap it so the dispatcher answers with the usage guide.
	ErrUsage = errors.New("invalid usage")

	// ErrPermissionDenied marks a failed role check
	ErrPermissionDenied = errors.New("permission denied")

	// ErrResolutionMiss marks a command token with no exact or fuzzy match
	ErrResolutionMiss = errors.New("command not found")

	// ErrCredentialNotFound is returned by credential reads of absent keys
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrQueueClosed is returned when enqueuing after the bootstrap queue drained
	ErrQueueClosed = errors.New("bootstrap queue closed")
)

// UsageError wraps ErrUsage with a human-readable reason
func UsageError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// HandlerFailure is a command handler that returned an error or panicked
type HandlerFailure struct {
	Command string
	Err     error
}

func (e *HandlerFailure) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *HandlerFailure) Unwrap() error {
	return e.Err
}

// InfrastructureFailure is a store or platform fault that makes an event unprocessable
type InfrastructureFailure struct {
	Op  string
	Err error
}

func (e *InfrastructureFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureFailure) Unwrap() error {
	return e.Err
}

// Infra wraps err as an InfrastructureFailure; nil stays nil
func Infra(op string, err error) error {
	if err == nil {
		return nil
	}
	return &InfrastructureFailure{Op: op, Err: err}
}
