package domain

import (
	"time"
)

// Message roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// ChatSession is a titled thread of messages between one user and one agent.
type ChatSession struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	AgentID   string     `json:"agent_id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Messages  []*Message `json:"messages"`
}

// Message is a single turn in a chat session. Messages are append-only and
// ordered by creation time.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	AgentID   string    `json:"agent_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ContextEntry is a caller-supplied history entry for unauthenticated public
// chat, where no server-side session exists.
type ContextEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
