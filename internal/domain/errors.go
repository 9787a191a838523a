package domain

import (
	"errors"
	"fmt"
)

// ErrToolNotFound marks a call naming a tool that is not registered.
// The dispatcher folds it into a Failure result; it never aborts a request.
var ErrToolNotFound = errors.New("tool not found")

// SchemaError reports tool input that failed validation or coercion
// against the tool's declared schema. Distinct from ToolError so the
// model can tell a malformed request apart from a runtime failure.
type SchemaError struct {
	Tool   string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid input for tool %s: %s", e.Tool, e.Reason)
}

// ToolError reports a failure inside a tool's own logic, e.g. an
// upstream network error. Recovered locally and surfaced to the model.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ModelError reports a failed model invocation. Fatal: it aborts the
// whole request and surfaces as a request-level failure.
type ModelError struct {
	Provider string
	Err      error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model invocation via %s failed: %v", e.Provider, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }
