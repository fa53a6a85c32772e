// Package tools defines the tool contract the agent executor dispatches
// against, the registry of available tools, and the guard rules every tool
// that touches the filesystem or spawns processes must pass its input
// through.
package tools

import (
	"context"
	"errors"
	"fmt"
)

// Tool is implemented by each tool adapter.
type Tool interface {
	// Name returns the unique tool name used in function-calling requests.
	Name() string

	// Description tells the model when and how to use the tool.
	Description() string

	// Parameters returns a JSON Schema object describing the input.
	Parameters() map[string]any

	// Execute runs the tool. args is a JSON-encoded parameter object.
	// Failures are reported as *ToolError.
	Execute(ctx context.Context, args string) (string, error)
}

// ErrorKind classifies tool failures.
type ErrorKind string

const (
	// ErrorValidationFailed means the arguments were rejected before running.
	ErrorValidationFailed ErrorKind = "validation_failed"
	// ErrorExecutionFailed means the tool ran and failed.
	ErrorExecutionFailed ErrorKind = "execution_failed"
)

// ToolError is the typed failure returned by Tool implementations. Tool
// errors are always recoverable: the executor converts them into failed
// results the model can react to.
type ToolError struct {
	Kind ErrorKind
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool error (%s): %v", e.Kind, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// NewValidationError wraps err as a validation failure.
func NewValidationError(err error) *ToolError {
	return &ToolError{Kind: ErrorValidationFailed, Err: err}
}

// NewExecutionError wraps err as an execution failure.
func NewExecutionError(err error) *ToolError {
	return &ToolError{Kind: ErrorExecutionFailed, Err: err}
}

// AsToolError extracts a *ToolError from err, if present.
func AsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	ok := errors.As(err, &te)
	return te, ok
}
