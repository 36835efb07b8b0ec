// Package agent implements the top-level orchestrator: the
// render-enqueue-parse-execute-append loop that turns a session plus a
// GenerationRequest into a GenerationResponse, dispatching any
// model-requested tool calls through the MCP pool in between.
package agent

import "fmt"

// ErrorKind enumerates the validation error taxonomy.
type ErrorKind string

const (
	ErrSecurityViolation ErrorKind = "security_violation"
	ErrParameterBounds   ErrorKind = "parameter_bounds"
	ErrInvalidState      ErrorKind = "invalid_state"
	ErrContentValidation ErrorKind = "content_validation"
	ErrSchemaValidation  ErrorKind = "schema_validation"
)

// ValidationError is the typed error the orchestrator returns when a
// request fails boundary validation before it ever reaches the queue.
type ValidationError struct {
	Kind       ErrorKind
	Message    string
	Suggestion string
}

func (e *ValidationError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("validation: %s: %s (%s)", e.Kind, e.Message, e.Suggestion)
	}
	return fmt.Sprintf("validation: %s: %s", e.Kind, e.Message)
}

func newValidationError(kind ErrorKind, suggestion, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...), Suggestion: suggestion}
}
