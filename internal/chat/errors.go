package chat

import "errors"

// Service-level errors. Handlers map these to HTTP status codes with errors.Is.
var (
	// ErrAgentNotFound covers both a missing agent and an agent owned by
	// someone else; callers cannot tell the two apart.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrSessionNotFound covers both a missing session and a session owned
	// by someone else.
	ErrSessionNotFound = errors.New("session not found")
	// ErrValidation is returned when a required request field is missing.
	ErrValidation = errors.New("missing required field")
	// ErrCompletionFailed is returned when the upstream model call failed or
	// timed out. Nothing is persisted for the failed exchange.
	ErrCompletionFailed = errors.New("completion failed")
)
