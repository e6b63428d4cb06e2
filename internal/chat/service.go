// Package chat owns the chat session lifecycle and the assembly of
// model-ready context.
package chat

import (
	"context"
	"fmt"
	"time"

	"chatbot-server/internal/completion"
	"chatbot-server/internal/domain"
	"chatbot-server/internal/store"
	"github.com/google/uuid"
)

// Service manages chat sessions and delegates completions upstream.
type Service struct {
	repo      store.Repository
	completer completion.Completer
}

// NewService creates a chat service.
func NewService(repo store.Repository, completer completion.Completer) *Service {
	return &Service{repo: repo, completer: completer}
}

// CreateSession creates a new session for one of the user's agents. The
// title defaults to "Chat with <agent name>".
func (s *Service) CreateSession(ctx context.Context, userID, agentID, title string) (*domain.ChatSession, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent id", ErrValidation)
	}

	agent, err := s.repo.GetAgent(ctx, userID, agentID)
	if err != nil {
		return nil, fmt.Errorf("look up agent: %w", err)
	}
	if agent == nil {
		return nil, ErrAgentNotFound
	}

	session, err := s.newSession(ctx, userID, agent, title)
	if err != nil {
		return nil, err
	}
	session.Messages = []*domain.Message{}
	return session, nil
}

// ListSessions returns the user's sessions for one agent, most recently
// active first, each with its messages in chronological order.
func (s *Service) ListSessions(ctx context.Context, userID, agentID string) ([]*domain.ChatSession, error) {
	if agentID != "" {
		agent, err := s.repo.GetAgent(ctx, userID, agentID)
		if err != nil {
			return nil, fmt.Errorf("look up agent: %w", err)
		}
		if agent == nil {
			return nil, ErrAgentNotFound
		}
	}

	sessions, err := s.repo.ListSessions(ctx, userID, agentID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []*domain.ChatSession{}
	}
	return sessions, nil
}

// GetSession returns one of the user's sessions with its messages.
func (s *Service) GetSession(ctx context.Context, userID, sessionID string) (*domain.ChatSession, error) {
	session, err := s.repo.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// DeleteSession removes a session and all of its messages.
func (s *Service) DeleteSession(ctx context.Context, userID, sessionID string) error {
	deleted, err := s.repo.DeleteSession(ctx, userID, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if !deleted {
		return ErrSessionNotFound
	}
	return nil
}

// SendResult is the outcome of a sendMessage call.
type SendResult struct {
	Reply     string `json:"reply"`
	SessionID string `json:"sessionId"`
}

// SendMessage runs one authenticated chat turn: resolve or create the
// session, render the last MaxHistoryMessages turns into a context block,
// call the model, and persist the user/agent pair atomically. When the
// upstream call fails nothing is persisted, so a failed completion can never
// leave a fabricated reply in history.
func (s *Service) SendMessage(ctx context.Context, userID, agentID, sessionID, content string) (*SendResult, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: content", ErrValidation)
	}

	agent, err := s.repo.GetAgent(ctx, userID, agentID)
	if err != nil {
		return nil, fmt.Errorf("look up agent: %w", err)
	}
	if agent == nil {
		return nil, ErrAgentNotFound
	}

	var session *domain.ChatSession
	if sessionID != "" {
		session, err = s.repo.GetSession(ctx, userID, sessionID)
		if err != nil {
			return nil, fmt.Errorf("get session: %w", err)
		}
		// A session belonging to a different agent is treated as absent.
		if session != nil && session.AgentID != agent.ID {
			session = nil
		}
	}
	if session == nil {
		session, err = s.newSession(ctx, userID, agent, "")
		if err != nil {
			return nil, err
		}
	}

	history, err := s.repo.RecentMessages(ctx, session.ID, MaxHistoryMessages)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	resp, err := s.completer.Complete(ctx, completion.Request{
		AgentName:    agent.Name,
		Instructions: agent.Instructions,
		Model:        agent.Model,
		Message:      BuildSessionPrompt(history, content),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}

	now := time.Now()
	userMsg := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		AgentID:   agent.ID,
		Role:      domain.RoleUser,
		Content:   content,
		CreatedAt: now,
	}
	agentMsg := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		AgentID:   agent.ID,
		Role:      domain.RoleAgent,
		Content:   resp.Text,
		CreatedAt: time.Now(),
	}
	if err := s.repo.AppendExchange(ctx, session.ID, userMsg, agentMsg); err != nil {
		return nil, fmt.Errorf("persist exchange: %w", err)
	}

	return &SendResult{Reply: resp.Text, SessionID: session.ID}, nil
}

// PublicChat runs one unauthenticated chat turn against a public agent. The
// caller supplies its own recent context (capped at MaxPublicContext) and
// nothing is persisted.
func (s *Service) PublicChat(ctx context.Context, shareURL, content string, entries []domain.ContextEntry) (string, *domain.Agent, error) {
	if content == "" {
		return "", nil, fmt.Errorf("%w: content", ErrValidation)
	}

	agent, err := s.repo.GetPublicAgent(ctx, shareURL)
	if err != nil {
		return "", nil, fmt.Errorf("look up public agent: %w", err)
	}
	if agent == nil {
		return "", nil, ErrAgentNotFound
	}

	resp, err := s.completer.Complete(ctx, completion.Request{
		AgentName:    agent.Name,
		Instructions: agent.Instructions,
		Model:        agent.Model,
		Message:      BuildPublicPrompt(entries, content),
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}

	return resp.Text, agent, nil
}

func (s *Service) newSession(ctx context.Context, userID string, agent *domain.Agent, title string) (*domain.ChatSession, error) {
	if title == "" {
		title = "Chat with " + agent.Name
	}
	now := time.Now()
	session := &domain.ChatSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		AgentID:   agent.ID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}
