package agents

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"chatbot-server/internal/api"
	"chatbot-server/internal/auth"
	"github.com/go-chi/chi/v5"
)

// maxRequestBodySize caps agent request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Handler exposes the agent CRUD and share-link endpoints. Agents live under
// /projects in the HTTP API.
type Handler struct {
	svc     *Service
	authSvc *auth.Service
}

// NewHandler creates an agents handler.
func NewHandler(svc *Service, authSvc *auth.Service) *Handler {
	return &Handler{svc: svc, authSvc: authSvc}
}

// RegisterRoutes registers agent routes. The share-link read is public;
// everything else requires a bearer token.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/projects/public/{shareUrl}", h.GetPublic)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.authSvc))
		r.Post("/projects", h.Create)
		r.Get("/projects", h.List)
		r.Get("/projects/{projectID}", h.Get)
		r.Put("/projects/{projectID}", h.Update)
		r.Delete("/projects/{projectID}", h.Delete)
		r.Get("/projects/{projectID}/messages", h.ListMessages)
		r.Delete("/projects/{projectID}/messages", h.ClearMessages)
	})
}

type agentRequest struct {
	Name         string `json:"name"`
	Instructions string `json:"instructions"`
	Model        string `json:"model"`
	IsPublic     *bool  `json:"isPublic"`
}

// Create creates a new agent for the caller.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	var req agentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params := CreateParams{
		Name:         req.Name,
		Instructions: req.Instructions,
		Model:        req.Model,
	}
	if req.IsPublic != nil {
		params.IsPublic = *req.IsPublic
	}

	agent, err := h.svc.Create(r.Context(), claims.UserID, params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, agent)
}

// List returns all of the caller's agents.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	agents, err := h.svc.List(r.Context(), claims.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, agents)
}

// Get returns one of the caller's agents.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	agent, err := h.svc.Get(r.Context(), claims.UserID, chi.URLParam(r, "projectID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, agent)
}

// GetPublic returns the share-link view of a public agent. No bearer token
// required.
func (h *Handler) GetPublic(w http.ResponseWriter, r *http.Request) {
	agent, err := h.svc.GetPublic(r.Context(), chi.URLParam(r, "shareUrl"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, agent)
}

// Update applies a partial update to one of the caller's agents.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	var req agentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	agent, err := h.svc.Update(r.Context(), claims.UserID, chi.URLParam(r, "projectID"), UpdateParams{
		Name:         req.Name,
		Instructions: req.Instructions,
		Model:        req.Model,
		IsPublic:     req.IsPublic,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, agent)
}

// Delete removes one of the caller's agents and all dependent data.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	if err := h.svc.Delete(r.Context(), claims.UserID, chi.URLParam(r, "projectID")); err != nil {
		h.writeError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, map[string]string{"message": "Project deleted successfully"})
}

// ListMessages returns every message for one of the caller's agents.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	messages, err := h.svc.ListMessages(r.Context(), claims.UserID, chi.URLParam(r, "projectID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, messages)
}

// ClearMessages removes every message for one of the caller's agents.
func (h *Handler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	if err := h.svc.ClearMessages(r.Context(), claims.UserID, chi.URLParam(r, "projectID")); err != nil {
		h.writeError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, map[string]string{"message": "Messages deleted successfully"})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		api.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		api.Error(w, http.StatusNotFound, "agent not found")
	default:
		slog.Error("agent request failed", "error", err)
		api.Error(w, http.StatusInternalServerError, "server error")
	}
}
