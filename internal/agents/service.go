// Package agents manages user-configured conversational agents and their
// share links.
package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatbot-server/internal/domain"
	"chatbot-server/internal/store"
	"github.com/google/uuid"
)

// DefaultModel is used when an agent is created without a model identifier.
const DefaultModel = "gpt-4o-mini"

// Service-level errors. Handlers map these to HTTP status codes with errors.Is.
var (
	// ErrNotFound covers both a missing agent and an agent owned by someone
	// else.
	ErrNotFound = errors.New("agent not found")
	// ErrValidation is returned when a required request field is missing.
	ErrValidation = errors.New("missing required field")
)

// Service implements agent CRUD and public share-link lookups.
type Service struct {
	repo store.Repository
}

// NewService creates an agents service.
func NewService(repo store.Repository) *Service {
	return &Service{repo: repo}
}

// newShareURL generates a globally unique opaque share-link token.
func newShareURL() string {
	return "share_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// CreateParams are the fields accepted when creating an agent.
type CreateParams struct {
	Name         string
	Instructions string
	Model        string
	IsPublic     bool
}

// Create creates an agent owned by the user. Name is required; the model
// defaults to DefaultModel; the share URL is generated and unique.
func (s *Service) Create(ctx context.Context, userID string, params CreateParams) (*domain.Agent, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("%w: name", ErrValidation)
	}
	if params.Model == "" {
		params.Model = DefaultModel
	}

	now := time.Now()
	agent := &domain.Agent{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         params.Name,
		Instructions: params.Instructions,
		Model:        params.Model,
		IsPublic:     params.IsPublic,
		ShareURL:     newShareURL(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return agent, nil
}

// List returns all agents owned by the user.
func (s *Service) List(ctx context.Context, userID string) ([]*domain.Agent, error) {
	agents, err := s.repo.ListAgents(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	if agents == nil {
		agents = []*domain.Agent{}
	}
	return agents, nil
}

// Get returns one of the user's agents.
func (s *Service) Get(ctx context.Context, userID, agentID string) (*domain.Agent, error) {
	agent, err := s.repo.GetAgent(ctx, userID, agentID)
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	if agent == nil {
		return nil, ErrNotFound
	}
	return agent, nil
}

// GetPublic returns the share-link view of a public agent. An agent whose
// is_public flag was turned off is not found here even though its row and
// share URL still exist.
func (s *Service) GetPublic(ctx context.Context, shareURL string) (*domain.PublicAgent, error) {
	agent, err := s.repo.GetPublicAgent(ctx, shareURL)
	if err != nil {
		return nil, fmt.Errorf("get public agent: %w", err)
	}
	if agent == nil {
		return nil, ErrNotFound
	}
	return agent.PublicView(), nil
}

// UpdateParams are the fields accepted when updating an agent. Name is
// required; empty Instructions/Model keep the stored values; a nil IsPublic
// keeps the stored flag.
type UpdateParams struct {
	Name         string
	Instructions string
	Model        string
	IsPublic     *bool
}

// Update applies a partial update to one of the user's agents.
func (s *Service) Update(ctx context.Context, userID, agentID string, params UpdateParams) (*domain.Agent, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("%w: name", ErrValidation)
	}

	agent, err := s.repo.GetAgent(ctx, userID, agentID)
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	if agent == nil {
		return nil, ErrNotFound
	}

	agent.Name = params.Name
	if params.Instructions != "" {
		agent.Instructions = params.Instructions
	}
	if params.Model != "" {
		agent.Model = params.Model
	}
	if params.IsPublic != nil {
		agent.IsPublic = *params.IsPublic
	}

	updated, err := s.repo.UpdateAgent(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("update agent: %w", err)
	}
	if !updated {
		return nil, ErrNotFound
	}

	return s.Get(ctx, userID, agentID)
}

// Delete removes one of the user's agents together with all of its sessions
// and messages.
func (s *Service) Delete(ctx context.Context, userID, agentID string) error {
	deleted, err := s.repo.DeleteAgent(ctx, userID, agentID)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// ListMessages returns every message for one of the user's agents, across
// all sessions, in chronological order.
func (s *Service) ListMessages(ctx context.Context, userID, agentID string) ([]*domain.Message, error) {
	agent, err := s.repo.GetAgent(ctx, userID, agentID)
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	if agent == nil {
		return nil, ErrNotFound
	}

	messages, err := s.repo.ListAgentMessages(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("list agent messages: %w", err)
	}
	if messages == nil {
		messages = []*domain.Message{}
	}
	return messages, nil
}

// ClearMessages removes every message for one of the user's agents.
func (s *Service) ClearMessages(ctx context.Context, userID, agentID string) error {
	agent, err := s.repo.GetAgent(ctx, userID, agentID)
	if err != nil {
		return fmt.Errorf("get agent: %w", err)
	}
	if agent == nil {
		return ErrNotFound
	}

	if err := s.repo.DeleteAgentMessages(ctx, agentID); err != nil {
		return fmt.Errorf("clear agent messages: %w", err)
	}
	return nil
}
