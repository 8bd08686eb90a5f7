package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nexusx/nexus/internal/domain"
	"github.com/nexusx/nexus/internal/server/middleware"
)

// SessionService defines the identity operations the session handler
// requires.
type SessionService interface {
	Register(ctx context.Context, email, name, password string) (domain.Identity, error)
	Login(ctx context.Context, email, password string) (domain.Identity, error)
	Logout(ctx context.Context) error
	Get(ctx context.Context, id string) (domain.Identity, error)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Sign(identityID string) string
}

// SessionHandler serves registration, login and logout.
type SessionHandler struct {
	sessions SessionService
	tokens   TokenIssuer
	logger   *slog.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(sessions SessionService, tokens TokenIssuer, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, tokens: tokens, logger: logger}
}

type credentials struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Identity domain.Identity `json:"identity"`
	Token    string          `json:"token"`
}

// Register creates an identity and logs it in.
// POST /api/session/register
func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if !decodeJSON(w, r, &c) {
		return
	}
	ident, err := h.sessions.Register(r.Context(), c.Email, c.Name, c.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Identity: ident, Token: h.tokens.Sign(ident.ID)})
}

// Login starts a session for a registered identity.
// POST /api/session/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if !decodeJSON(w, r, &c) {
		return
	}
	ident, err := h.sessions.Login(r.Context(), c.Email, c.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Identity: ident, Token: h.tokens.Sign(ident.ID)})
}

// Logout clears the active session.
// POST /api/session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		writeServiceError(w, r, h.logger, "logout", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Current returns the identity behind the request, or 404 for the demo
// account.
// GET /api/session
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	id := middleware.AccountID(r.Context())
	if id == domain.DemoAccountID {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}
	ident, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, ident)
}
