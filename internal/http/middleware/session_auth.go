package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/wolfman30/spa-turnos/internal/session"
	"github.com/wolfman30/spa-turnos/pkg/logging"
)

// LoginPath is where the browser is sent when its session is gone.
const LoginPath = "/login"

// SessionCookie describes the cookie that carries the session id.
type SessionCookie struct {
	Name   string
	Secure bool
	TTL    time.Duration
}

// DefaultSessionCookie returns the cookie settings used in production.
func DefaultSessionCookie() SessionCookie {
	return SessionCookie{Name: "spa_session", Secure: true, TTL: 24 * time.Hour}
}

// Set writes the session cookie.
func (c SessionCookie) Set(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    id,
		Path:     "/",
		MaxAge:   int(c.TTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie.
func (c SessionCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Read returns the session id from the request, or "".
func (c SessionCookie) Read(r *http.Request) string {
	ck, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	return ck.Value
}

// RequireSession loads the session named by the cookie and stores it in the
// request context. Missing or expired sessions get a 401 that tells the
// browser to go to the login page.
func RequireSession(manager *session.Manager, cookie SessionCookie, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := cookie.Read(r)
			s, err := manager.Load(r.Context(), id)
			if err != nil {
				if !errors.Is(err, session.ErrNotFound) {
					logger.Error("failed to load session", "error", err)
					writeError(w, http.StatusServiceUnavailable, "No pudimos verificar tu sesión. Intentá nuevamente.", "")
					return
				}
				cookie.Clear(w)
				writeError(w, http.StatusUnauthorized, "Tu sesión expiró. Iniciá sesión nuevamente.", LoginPath)
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))
		})
	}
}

// RequireAdmin rejects sessions whose user is not an admin. It must run after
// RequireSession.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := session.FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "Iniciá sesión para continuar.", LoginPath)
			return
		}
		if !s.User.IsAdmin() {
			writeError(w, http.StatusForbidden, "No tenés permisos para esta sección.", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg, redirect string) {
	body := map[string]string{"error": msg}
	if redirect != "" {
		body["redirect"] = redirect
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
