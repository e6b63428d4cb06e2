package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"chatbot-server/internal/api"
	"chatbot-server/internal/auth"
	"chatbot-server/internal/domain"
	"github.com/go-chi/chi/v5"
)

// maxRequestBodySize caps chat request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Handler exposes session and chat endpoints.
type Handler struct {
	svc     *Service
	authSvc *auth.Service
}

// NewHandler creates a chat handler.
func NewHandler(svc *Service, authSvc *auth.Service) *Handler {
	return &Handler{svc: svc, authSvc: authSvc}
}

// RegisterRoutes registers session routes and the per-agent chat routes.
// Public chat needs no bearer token.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/projects/public/{shareUrl}/chat", h.PublicChat)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.authSvc))
		r.Post("/sessions", h.CreateSession)
		r.Get("/sessions/project/{projectID}", h.ListSessions)
		r.Get("/sessions/{sessionID}", h.GetSession)
		r.Delete("/sessions/{sessionID}", h.DeleteSession)
		r.Post("/projects/{projectID}/chat", h.SendMessage)
	})
}

type createSessionRequest struct {
	ProjectID string `json:"projectId"`
	Title     string `json:"title"`
}

// CreateSession creates a new chat session for one of the caller's agents.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	var req createSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.svc.CreateSession(r.Context(), claims.UserID, req.ProjectID, req.Title)
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, session)
}

// ListSessions returns the caller's sessions for one agent.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	sessions, err := h.svc.ListSessions(r.Context(), claims.UserID, chi.URLParam(r, "projectID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, sessions)
}

// GetSession returns one of the caller's sessions with its messages.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	session, err := h.svc.GetSession(r.Context(), claims.UserID, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, session)
}

// DeleteSession removes one of the caller's sessions and its messages.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	if err := h.svc.DeleteSession(r.Context(), claims.UserID, chi.URLParam(r, "sessionID")); err != nil {
		h.writeError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, map[string]string{"message": "Session deleted successfully"})
}

type sendMessageRequest struct {
	Content   string `json:"content"`
	SessionID string `json:"sessionId"`
}

// SendMessage runs one chat turn against the caller's agent.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	var req sendMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.SendMessage(r.Context(), claims.UserID, chi.URLParam(r, "projectID"), req.SessionID, req.Content)
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, result)
}

type publicChatRequest struct {
	Content string                `json:"content"`
	Context []domain.ContextEntry `json:"context"`
}

type publicChatAgent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Model       string `json:"model"`
}

// PublicChat runs one unauthenticated chat turn against a public agent.
func (h *Handler) PublicChat(w http.ResponseWriter, r *http.Request) {
	var req publicChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, agent, err := h.svc.PublicChat(r.Context(), chi.URLParam(r, "shareUrl"), req.Content, req.Context)
	if err != nil {
		h.writeError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, map[string]any{
		"reply": reply,
		"agent": publicChatAgent{
			ID:          agent.ID,
			Name:        agent.Name,
			Description: agent.Instructions,
			Model:       agent.Model,
		},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		api.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAgentNotFound):
		api.Error(w, http.StatusNotFound, "agent not found")
	case errors.Is(err, ErrSessionNotFound):
		api.Error(w, http.StatusNotFound, "session not found")
	case errors.Is(err, ErrCompletionFailed):
		slog.Error("completion failed", "error", err)
		api.Error(w, http.StatusBadGateway, "failed to process chat message")
	default:
		slog.Error("chat request failed", "error", err)
		api.Error(w, http.StatusInternalServerError, "server error")
	}
}
