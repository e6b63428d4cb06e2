package chat

import (
	"strings"

	"chatbot-server/internal/domain"
)

// Context-window caps. Bounding the rendered history keeps prompt size under
// control regardless of how long a conversation has run.
const (
	// MaxHistoryMessages caps the rendered history for authenticated chat.
	MaxHistoryMessages = 20
	// MaxPublicContext caps the caller-supplied context for public chat.
	MaxPublicContext = 6
)

func roleLabel(role string) string {
	if role == domain.RoleUser {
		return "User"
	}
	return "Assistant"
}

// BuildSessionPrompt renders stored session history into a single prompt
// block and appends the live user message after it. History is rendered in
// chronological order with explicit role labels; only the most recent
// MaxHistoryMessages entries are kept.
func BuildSessionPrompt(history []*domain.Message, content string) string {
	if len(history) > MaxHistoryMessages {
		history = history[len(history)-MaxHistoryMessages:]
	}

	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Here is the conversation history for context:\n\n")
		for _, msg := range history {
			b.WriteString(roleLabel(msg.Role))
			b.WriteString(": ")
			b.WriteString(msg.Content)
			b.WriteString("\n\n")
		}
		b.WriteString("Now, please respond to this new message:\n")
	}
	b.WriteString(content)
	return b.String()
}

// BuildPublicPrompt renders caller-supplied context for unauthenticated chat,
// where no server-side history exists. Only the last MaxPublicContext entries
// are used.
func BuildPublicPrompt(entries []domain.ContextEntry, content string) string {
	if len(entries) > MaxPublicContext {
		entries = entries[len(entries)-MaxPublicContext:]
	}

	var b strings.Builder
	if len(entries) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, entry := range entries {
			b.WriteString(roleLabel(entry.Role))
			b.WriteString(": ")
			b.WriteString(entry.Content)
			b.WriteString("\n")
		}
		b.WriteString("\nCurrent message: ")
	}
	b.WriteString(content)
	return b.String()
}
