package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/wolfman30/spa-turnos/internal/http/middleware"
	"github.com/wolfman30/spa-turnos/internal/session"
	"github.com/wolfman30/spa-turnos/internal/spaapi"
	"github.com/wolfman30/spa-turnos/pkg/logging"
)

// AuthBackend is the part of the spa backend that issues tokens.
type AuthBackend interface {
	Login(ctx context.Context, email, password string) (*spaapi.AuthResult, error)
	Register(ctx context.Context, in spaapi.Registration) (*spaapi.AuthResult, error)
}

// AuthHandler logs clients in and out and registers new accounts.
type AuthHandler struct {
	backend AuthBackend
	manager *session.Manager
	cookie  middleware.SessionCookie
	fail    failures
	logger  *logging.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(backend AuthBackend, manager *session.Manager, cookie middleware.SessionCookie, logger *logging.Logger) *AuthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AuthHandler{
		backend: backend,
		manager: manager,
		cookie:  cookie,
		fail:    failures{cookie: cookie, logger: logger},
		logger:  logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, msgBadBody, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		jsonError(w, "Ingresá tu email y contraseña.", http.StatusBadRequest)
		return
	}

	res, err := h.backend.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if badCredentials(err) {
			jsonError(w, "Email o contraseña incorrectos.", http.StatusUnauthorized)
			return
		}
		h.fail.write(w, r, err)
		return
	}
	h.startSession(w, r, res, http.StatusOK)
}

type registerRequest struct {
	Name     string `json:"nombre"`
	LastName string `json:"apellido"`
	Email    string `json:"email"`
	Phone    string `json:"telefono"`
	Password string `json:"password"`
}

// Register handles POST /api/auth/register. When the backend answers with a
// token the client is logged in right away.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, msgBadBody, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		jsonError(w, "Ingresá tu nombre.", http.StatusBadRequest)
		return
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		jsonError(w, "Ingresá un email válido.", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 6 {
		jsonError(w, "La contraseña debe tener al menos 6 caracteres.", http.StatusBadRequest)
		return
	}

	res, err := h.backend.Register(r.Context(), spaapi.Registration{
		Name:     strings.TrimSpace(req.Name),
		LastName: strings.TrimSpace(req.LastName),
		Email:    strings.TrimSpace(req.Email),
		Phone:    strings.TrimSpace(req.Phone),
		Password: req.Password,
	})
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	if res.Token == "" {
		writeJSON(w, http.StatusCreated, map[string]any{"user": res.User, "login_required": true})
		return
	}
	h.startSession(w, r, res, http.StatusCreated)
}

// Logout handles POST /api/auth/logout. It always clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if id := h.cookie.Read(r); id != "" {
		if err := h.manager.Destroy(r.Context(), id); err != nil && !errors.Is(err, session.ErrNotFound) {
			h.logger.Warn("failed to destroy session", "error", err)
		}
	}
	h.cookie.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": sess.User})
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, res *spaapi.AuthResult, status int) {
	sess, err := h.manager.Create(r.Context(), res.Token, res.User)
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		jsonError(w, "No pudimos iniciar tu sesión. Intentá nuevamente.", http.StatusServiceUnavailable)
		return
	}
	h.cookie.Set(w, sess.ID)
	writeJSON(w, status, map[string]any{"user": res.User})
}

func badCredentials(err error) bool {
	if errors.Is(err, spaapi.ErrUnauthorized) {
		return true
	}
	var rejected *spaapi.RejectedError
	if errors.As(err, &rejected) {
		switch rejected.Status {
		case http.StatusBadRequest, http.StatusNotFound, http.StatusForbidden:
			return true
		}
	}
	return false
}
