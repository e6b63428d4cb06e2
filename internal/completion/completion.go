// Package completion wraps the upstream language-model API behind a small
// interface the chat service can depend on.
package completion

import (
	"context"
)

// Request carries everything the upstream model needs for one completion.
type Request struct {
	AgentName    string
	Instructions string
	Model        string
	Message      string
}

// Response is the model's reply.
type Response struct {
	Text string
}

// Completer produces a completion for a fully assembled prompt. The upstream
// call may be slow; implementations must honor context cancellation.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
