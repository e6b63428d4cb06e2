package domain

import (
	"time"
)

// Agent is a user-configured conversational agent. Called "project" in the
// HTTP API for historical reasons.
type Agent struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Instructions string    `json:"instructions"`
	Model        string    `json:"model"`
	IsPublic     bool      `json:"is_public"`
	ShareURL     string    `json:"share_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PublicAgent is the share-link view of a public agent. It never exposes the
// owning user.
type PublicAgent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Instructions string    `json:"instructions"`
	Model        string    `json:"model"`
	IsPublic     bool      `json:"is_public"`
	ShareURL     string    `json:"share_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PublicView returns the share-link projection of the agent.
func (a *Agent) PublicView() *PublicAgent {
	return &PublicAgent{
		ID:           a.ID,
		Name:         a.Name,
		Instructions: a.Instructions,
		Model:        a.Model,
		IsPublic:     a.IsPublic,
		ShareURL:     a.ShareURL,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}
