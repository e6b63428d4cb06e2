package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"chatbot-server/internal/api"
	"chatbot-server/internal/domain"
	"github.com/go-chi/chi/v5"
)

const refreshCookieName = "refreshToken"

// maxRequestBodySize caps auth request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Handler exposes the auth endpoints.
type Handler struct {
	svc   *Service
	isDev bool
}

// NewHandler creates an auth handler. isDev disables the Secure cookie flag
// for local HTTP development.
func NewHandler(svc *Service, isDev bool) *Handler {
	return &Handler{svc: svc, isDev: isDev}
}

// RegisterRoutes registers auth routes. /auth/* is public; /api/me requires
// a bearer token.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh", h.Refresh)
	r.Post("/auth/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(h.svc))
		r.Get("/api/me", h.Me)
	})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type authResponse struct {
	User             *domain.User `json:"user"`
	AccessToken      string       `json:"accessToken"`
	RefreshExpiresAt time.Time    `json:"refreshExpiresAt"`
}

// Register creates an account and starts a refresh-token chain.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, pair, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.setRefreshCookie(w, pair)
	api.JSON(w, http.StatusCreated, authResponse{
		User:             user,
		AccessToken:      pair.AccessToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

// Login checks credentials and starts a new refresh-token chain.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, pair, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.setRefreshCookie(w, pair)
	api.JSON(w, http.StatusCreated, authResponse{
		User:             user,
		AccessToken:      pair.AccessToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

// Refresh rotates the refresh token from the cookie and mints a new access
// token.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "refresh token missing")
		return
	}

	user, pair, err := h.svc.Rotate(r.Context(), cookie.Value)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.setRefreshCookie(w, pair)
	api.JSON(w, http.StatusOK, authResponse{
		User:             user,
		AccessToken:      pair.AccessToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

// Logout revokes the presented refresh token and clears the cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "refresh token missing")
		return
	}

	if err := h.svc.Logout(r.Context(), cookie.Value); err != nil {
		slog.Error("logout failed", "error", err)
		api.Error(w, http.StatusInternalServerError, "server error")
		return
	}

	h.clearRefreshCookie(w)
	api.JSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// Me returns the authenticated caller's claims.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	api.JSON(w, http.StatusOK, map[string]string{
		"id":    claims.UserID,
		"email": claims.Email,
		"name":  claims.Name,
	})
}

func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		api.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrEmailTaken):
		api.Error(w, http.StatusConflict, "user already exists")
	case errors.Is(err, ErrInvalidCredentials):
		api.Error(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenRevoked), errors.Is(err, ErrTokenExpired):
		api.Error(w, http.StatusUnauthorized, "invalid refresh token")
	default:
		slog.Error("auth request failed", "error", err)
		api.Error(w, http.StatusInternalServerError, "server error")
	}
}

// setRefreshCookie delivers the refresh secret as an HTTP-only cookie scoped
// to the whole application, with max-age matching the server-side expiry.
func (h *Handler) setRefreshCookie(w http.ResponseWriter, pair *TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    pair.RefreshToken,
		Path:     "/",
		MaxAge:   int(h.svc.RefreshTTL().Seconds()),
		Expires:  pair.RefreshExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !h.isDev,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !h.isDev,
	})
}
