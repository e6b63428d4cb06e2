// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"chatbot-server/internal/domain"
)

// ErrConflict is returned when an insert violates a unique constraint
// (duplicate email, duplicate share URL).
var ErrConflict = errors.New("unique constraint conflict")

// Repository defines the persistence contract for users, agents, chat
// sessions, messages and refresh tokens. Lookups return (nil, nil) when no
// row matches; delete and rotate operations report whether they took effect
// so callers can distinguish "not found" without a prior read.
type Repository interface {
	// CreateUser inserts a new user. Returns ErrConflict if the email is taken.
	CreateUser(ctx context.Context, user *domain.User) error

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetUserByID retrieves a user by id.
	GetUserByID(ctx context.Context, id string) (*domain.User, error)

	// CreateAgent inserts a new agent. Returns ErrConflict on a share URL collision.
	CreateAgent(ctx context.Context, agent *domain.Agent) error

	// ListAgents retrieves all agents owned by the user, newest first.
	ListAgents(ctx context.Context, userID string) ([]*domain.Agent, error)

	// GetAgent retrieves an agent by id, scoped to its owner.
	GetAgent(ctx context.Context, userID, agentID string) (*domain.Agent, error)

	// GetPublicAgent retrieves an agent by share URL. Only agents currently
	// flagged public are visible through this path.
	GetPublicAgent(ctx context.Context, shareURL string) (*domain.Agent, error)

	// UpdateAgent persists mutable agent fields (name, instructions, model,
	// is_public) for an agent owned by agent.UserID.
	UpdateAgent(ctx context.Context, agent *domain.Agent) (bool, error)

	// DeleteAgent removes the agent and all of its messages and sessions.
	// Children are deleted before the agent row, in one transaction.
	DeleteAgent(ctx context.Context, userID, agentID string) (bool, error)

	// CreateSession inserts a new chat session.
	CreateSession(ctx context.Context, session *domain.ChatSession) error

	// ListSessions retrieves the user's sessions ordered by updated_at
	// descending, each with its messages in chronological order. A non-empty
	// agentID filters to one agent.
	ListSessions(ctx context.Context, userID, agentID string) ([]*domain.ChatSession, error)

	// GetSession retrieves a session by id, scoped to its owner, with its
	// messages in chronological order.
	GetSession(ctx context.Context, userID, sessionID string) (*domain.ChatSession, error)

	// DeleteSession removes the session and its messages, messages first,
	// in one transaction.
	DeleteSession(ctx context.Context, userID, sessionID string) (bool, error)

	// RecentMessages retrieves the last limit messages of a session in
	// chronological order.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]*domain.Message, error)

	// ListAgentMessages retrieves every message for an agent in
	// chronological order, across all of its sessions.
	ListAgentMessages(ctx context.Context, agentID string) ([]*domain.Message, error)

	// DeleteAgentMessages removes every message for an agent.
	DeleteAgentMessages(ctx context.Context, agentID string) error

	// AppendExchange inserts a user/agent message pair for the session and
	// bumps the session's updated_at, atomically. The pair is committed
	// together or not at all.
	AppendExchange(ctx context.Context, sessionID string, userMsg, agentMsg *domain.Message) error

	// CreateRefreshToken inserts a new refresh token record.
	CreateRefreshToken(ctx context.Context, token *domain.RefreshToken) error

	// GetRefreshTokenByHash retrieves a refresh token by its stored hash.
	// The hash is the only searchable form of the secret.
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)

	// RotateRefreshToken atomically revokes the token with the given hash and
	// inserts its replacement, linking the chain. Returns false when the
	// token was already revoked; concurrent rotations of the same hash have
	// exactly one winner.
	RotateRefreshToken(ctx context.Context, tokenHash string, replacement *domain.RefreshToken) (bool, error)

	// RevokeRefreshToken marks the token with the given hash revoked.
	// Revoking an already-revoked or unknown token is not an error.
	RevokeRefreshToken(ctx context.Context, tokenHash string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
