package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"chatbot-server/internal/domain"
	"github.com/google/uuid"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return repo
}

func mustCreateUser(t *testing.T, repo Repository, email string) *domain.User {
	t.Helper()
	now := time.Now()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "hash",
		Name:         "Test",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user
}

func mustCreateAgent(t *testing.T, repo Repository, userID string, isPublic bool) *domain.Agent {
	t.Helper()
	now := time.Now()
	agent := &domain.Agent{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         "Bot",
		Instructions: "Be terse",
		Model:        "gpt-4o-mini",
		IsPublic:     isPublic,
		ShareURL:     "share_" + uuid.NewString(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.CreateAgent(context.Background(), agent); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}
	return agent
}

func mustCreateSession(t *testing.T, repo Repository, userID, agentID string, updatedAt time.Time) *domain.ChatSession {
	t.Helper()
	session := &domain.ChatSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		AgentID:   agentID,
		Title:     "Chat with Bot",
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
	if err := repo.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return session
}

func appendPair(t *testing.T, repo Repository, sessionID, agentID, userContent, agentContent string) {
	t.Helper()
	now := time.Now()
	err := repo.AppendExchange(context.Background(), sessionID,
		&domain.Message{ID: uuid.NewString(), SessionID: sessionID, AgentID: agentID, Role: domain.RoleUser, Content: userContent, CreatedAt: now},
		&domain.Message{ID: uuid.NewString(), SessionID: sessionID, AgentID: agentID, Role: domain.RoleAgent, Content: agentContent, CreatedAt: now},
	)
	if err != nil {
		t.Fatalf("AppendExchange failed: %v", err)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	repo := newTestStore(t)
	mustCreateUser(t, repo, "a@x.com")

	now := time.Now()
	err := repo.CreateUser(context.Background(), &domain.User{
		ID: uuid.NewString(), Email: "a@x.com", PasswordHash: "h", CreatedAt: now, UpdatedAt: now,
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict, got %v", err)
	}
}

func TestGetAgentOwnershipScoped(t *testing.T) {
	repo := newTestStore(t)
	owner := mustCreateUser(t, repo, "a@x.com")
	other := mustCreateUser(t, repo, "b@x.com")
	agent := mustCreateAgent(t, repo, owner.ID, false)
	ctx := context.Background()

	got, err := repo.GetAgent(ctx, owner.ID, agent.ID)
	if err != nil || got == nil {
		t.Fatalf("Expected owner to see agent, got %v, %v", got, err)
	}

	got, err = repo.GetAgent(ctx, other.ID, agent.ID)
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if got != nil {
		t.Error("Another user's agent must be invisible")
	}
}

func TestPublicAgentVisibility(t *testing.T) {
	repo := newTestStore(t)
	owner := mustCreateUser(t, repo, "a@x.com")
	agent := mustCreateAgent(t, repo, owner.ID, true)
	ctx := context.Background()

	got, err := repo.GetPublicAgent(ctx, agent.ShareURL)
	if err != nil || got == nil {
		t.Fatalf("Expected public agent to be visible, got %v, %v", got, err)
	}

	// Toggling is_public off makes the share URL inert without deleting it.
	agent.IsPublic = false
	if _, err := repo.UpdateAgent(ctx, agent); err != nil {
		t.Fatalf("UpdateAgent failed: %v", err)
	}

	got, err = repo.GetPublicAgent(ctx, agent.ShareURL)
	if err != nil {
		t.Fatalf("GetPublicAgent failed: %v", err)
	}
	if got != nil {
		t.Error("Private agent must not be visible by share URL")
	}

	// The row itself still exists.
	if got, err := repo.GetAgent(ctx, owner.ID, agent.ID); err != nil || got == nil {
		t.Errorf("Agent row must survive the toggle, got %v, %v", got, err)
	}
}

func TestAppendExchangeOrderAndBump(t *testing.T) {
	repo := newTestStore(t)
	user := mustCreateUser(t, repo, "a@x.com")
	agent := mustCreateAgent(t, repo, user.ID, false)
	session := mustCreateSession(t, repo, user.ID, agent.ID, time.Now().Add(-time.Hour))
	ctx := context.Background()

	appendPair(t, repo, session.ID, agent.ID, "hi", "hello")
	appendPair(t, repo, session.ID, agent.ID, "again", "still here")

	got, err := repo.GetSession(ctx, user.ID, session.ID)
	if err != nil || got == nil {
		t.Fatalf("GetSession failed: %v, %v", got, err)
	}

	if len(got.Messages) != 4 {
		t.Fatalf("Expected 4 messages, got %d", len(got.Messages))
	}
	wantRoles := []string{domain.RoleUser, domain.RoleAgent, domain.RoleUser, domain.RoleAgent}
	wantContent := []string{"hi", "hello", "again", "still here"}
	for i, msg := range got.Messages {
		if msg.Role != wantRoles[i] || msg.Content != wantContent[i] {
			t.Errorf("Message %d: got (%s, %q), want (%s, %q)", i, msg.Role, msg.Content, wantRoles[i], wantContent[i])
		}
		if msg.SessionID != session.ID {
			t.Errorf("Message %d has wrong session id", i)
		}
	}
	for i := 1; i < len(got.Messages); i++ {
		if got.Messages[i].CreatedAt.Before(got.Messages[i-1].CreatedAt) {
			t.Errorf("Messages out of chronological order at %d", i)
		}
	}

	if !got.UpdatedAt.After(session.UpdatedAt) {
		t.Error("AppendExchange must bump session updated_at")
	}
}

func TestRecentMessagesLimit(t *testing.T) {
	repo := newTestStore(t)
	user := mustCreateUser(t, repo, "a@x.com")
	agent := mustCreateAgent(t, repo, user.ID, false)
	session := mustCreateSession(t, repo, user.ID, agent.ID, time.Now())
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		appendPair(t, repo, session.ID, agent.ID, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	recent, err := repo.RecentMessages(ctx, session.ID, 20)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(recent) != 20 {
		t.Fatalf("Expected 20 messages, got %d", len(recent))
	}
	// The window holds the most recent turns, in chronological order.
	if recent[len(recent)-1].Content != "a14" {
		t.Errorf("Expected newest message last, got %q", recent[len(recent)-1].Content)
	}
	if recent[0].Content != "q5" {
		t.Errorf("Expected window to start at q5, got %q", recent[0].Content)
	}
}

func TestListSessionsOrderAndFilter(t *testing.T) {
	repo := newTestStore(t)
	user := mustCreateUser(t, repo, "a@x.com")
	agentA := mustCreateAgent(t, repo, user.ID, false)
	agentB := mustCreateAgent(t, repo, user.ID, false)
	ctx := context.Background()

	old := mustCreateSession(t, repo, user.ID, agentA.ID, time.Now().Add(-2*time.Hour))
	recent := mustCreateSession(t, repo, user.ID, agentA.ID, time.Now().Add(-time.Hour))
	otherAgent := mustCreateSession(t, repo, user.ID, agentB.ID, time.Now())

	all, err := repo.ListSessions(ctx, user.ID, "")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 sessions, got %d", len(all))
	}
	if all[0].ID != otherAgent.ID || all[1].ID != recent.ID || all[2].ID != old.ID {
		t.Error("Sessions must be ordered by updated_at descending")
	}

	filtered, err := repo.ListSessions(ctx, user.ID, agentA.ID)
	if err != nil {
		t.Fatalf("ListSessions filtered failed: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("Expected 2 sessions for agent A, got %d", len(filtered))
	}
}

func TestDeleteSessionRemovesMessages(t *testing.T) {
	repo := newTestStore(t)
	user := mustCreateUser(t, repo, "a@x.com")
	agent := mustCreateAgent(t, repo, user.ID, false)
	session := mustCreateSession(t, repo, user.ID, agent.ID, time.Now())
	ctx := context.Background()

	appendPair(t, repo, session.ID, agent.ID, "hi", "hello")

	deleted, err := repo.DeleteSession(ctx, user.ID, session.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteSession failed: %v, deleted=%v", err, deleted)
	}

	if got, err := repo.GetSession(ctx, user.ID, session.ID); err != nil || got != nil {
		t.Errorf("Session must be gone, got %v, %v", got, err)
	}
	msgs, err := repo.ListAgentMessages(ctx, agent.ID)
	if err != nil {
		t.Fatalf("ListAgentMessages failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("Expected no orphaned messages, got %d", len(msgs))
	}
}

func TestDeleteSessionNotOwned(t *testing.T) {
	repo := newTestStore(t)
	owner := mustCreateUser(t, repo, "a@x.com")
	other := mustCreateUser(t, repo, "b@x.com")
	agent := mustCreateAgent(t, repo, owner.ID, false)
	session := mustCreateSession(t, repo, owner.ID, agent.ID, time.Now())

	deleted, err := repo.DeleteSession(context.Background(), other.ID, session.ID)
	if err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if deleted {
		t.Error("Another user must not be able to delete the session")
	}
}

func TestDeleteAgentCascades(t *testing.T) {
	repo := newTestStore(t)
	user := mustCreateUser(t, repo, "a@x.com")
	doomed := mustCreateAgent(t, repo, user.ID, false)
	survivor := mustCreateAgent(t, repo, user.ID, false)
	ctx := context.Background()

	doomedSession := mustCreateSession(t, repo, user.ID, doomed.ID, time.Now())
	survivorSession := mustCreateSession(t, repo, user.ID, survivor.ID, time.Now())
	appendPair(t, repo, doomedSession.ID, doomed.ID, "hi", "hello")
	appendPair(t, repo, survivorSession.ID, survivor.ID, "hey", "hi there")

	deleted, err := repo.DeleteAgent(ctx, user.ID, doomed.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteAgent failed: %v, deleted=%v", err, deleted)
	}

	if got, _ := repo.GetAgent(ctx, user.ID, doomed.ID); got != nil {
		t.Error("Agent row must be gone")
	}
	if sessions, _ := repo.ListSessions(ctx, user.ID, doomed.ID); len(sessions) != 0 {
		t.Errorf("Expected no sessions for deleted agent, got %d", len(sessions))
	}
	if msgs, _ := repo.ListAgentMessages(ctx, doomed.ID); len(msgs) != 0 {
		t.Errorf("Expected no messages for deleted agent, got %d", len(msgs))
	}

	// The other agent's data is untouched.
	if msgs, _ := repo.ListAgentMessages(ctx, survivor.ID); len(msgs) != 2 {
		t.Errorf("Survivor agent messages affected, got %d", len(msgs))
	}
}

func TestRotateRefreshTokenSingleWinner(t *testing.T) {
	repo := newTestStore(t)
	user := mustCreateUser(t, repo, "a@x.com")
	ctx := context.Background()

	original := &domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: "hash-original",
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	if err := repo.CreateRefreshToken(ctx, original); err != nil {
		t.Fatalf("CreateRefreshToken failed: %v", err)
	}

	first := &domain.RefreshToken{
		ID: uuid.NewString(), UserID: user.ID, TokenHash: "hash-first",
		ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now(),
	}
	rotated, err := repo.RotateRefreshToken(ctx, original.TokenHash, first)
	if err != nil || !rotated {
		t.Fatalf("First rotation failed: %v, rotated=%v", err, rotated)
	}

	second := &domain.RefreshToken{
		ID: uuid.NewString(), UserID: user.ID, TokenHash: "hash-second",
		ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now(),
	}
	rotated, err = repo.RotateRefreshToken(ctx, original.TokenHash, second)
	if err != nil {
		t.Fatalf("Second rotation errored: %v", err)
	}
	if rotated {
		t.Fatal("Second rotation of the same hash must not win")
	}

	// The loser's replacement must not have been inserted.
	if tok, _ := repo.GetRefreshTokenByHash(ctx, "hash-second"); tok != nil {
		t.Error("Losing rotation must not leave a live token")
	}

	// Chain pointer set on the rotated token.
	old, err := repo.GetRefreshTokenByHash(ctx, original.TokenHash)
	if err != nil || old == nil {
		t.Fatalf("GetRefreshTokenByHash failed: %v", err)
	}
	if !old.Revoked || old.ReplacedByID != first.ID {
		t.Errorf("Expected revoked token chained to %s, got revoked=%v replacedBy=%s", first.ID, old.Revoked, old.ReplacedByID)
	}
}

func TestRevokeRefreshTokenIdempotent(t *testing.T) {
	repo := newTestStore(t)
	user := mustCreateUser(t, repo, "a@x.com")
	ctx := context.Background()

	token := &domain.RefreshToken{
		ID: uuid.NewString(), UserID: user.ID, TokenHash: "hash-x",
		ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now(),
	}
	if err := repo.CreateRefreshToken(ctx, token); err != nil {
		t.Fatalf("CreateRefreshToken failed: %v", err)
	}

	if err := repo.RevokeRefreshToken(ctx, "hash-x"); err != nil {
		t.Fatalf("RevokeRefreshToken failed: %v", err)
	}
	if err := repo.RevokeRefreshToken(ctx, "hash-x"); err != nil {
		t.Errorf("Second revoke failed: %v", err)
	}
	if err := repo.RevokeRefreshToken(ctx, "hash-unknown"); err != nil {
		t.Errorf("Revoke of unknown hash failed: %v", err)
	}
}
