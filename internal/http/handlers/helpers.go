// Package handlers serves the browser-facing JSON API. Handlers read the
// session from the request context, call the spa backend through the
// spaapi client and turn every failure into a user-facing message.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wolfman30/spa-turnos/internal/booking"
	"github.com/wolfman30/spa-turnos/internal/http/middleware"
	"github.com/wolfman30/spa-turnos/internal/payments"
	"github.com/wolfman30/spa-turnos/internal/session"
	"github.com/wolfman30/spa-turnos/internal/spaapi"
	"github.com/wolfman30/spa-turnos/pkg/logging"
)

const maxBodyBytes = 64 << 10

const (
	msgGeneric   = "Ocurrió un error inesperado. Intentá nuevamente."
	msgTransient = "El servidor está iniciando o no responde. Intentá nuevamente en unos segundos."
	msgColdStart = "El servidor se está iniciando. Intentá nuevamente en unos segundos."
	msgExpired   = "Tu sesión expiró. Iniciá sesión nuevamente."
	msgBadBody   = "Solicitud inválida."
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error    string `json:"error"`
	Kind     string `json:"kind,omitempty"`
	Redirect string `json:"redirect,omitempty"`
	Retry    bool   `json:"retry,omitempty"`
	// Attempts is how many times the backend was tried before giving up.
	Attempts int `json:"attempts,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, errorBody{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// failures maps domain and backend errors onto HTTP responses.
type failures struct {
	cookie middleware.SessionCookie
	logger *logging.Logger
}

func (f failures) write(w http.ResponseWriter, r *http.Request, err error) {
	if ve, ok := booking.IsValidation(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: ve.Message, Kind: string(ve.Kind)})
		return
	}

	var (
		rejected  *spaapi.RejectedError
		submitted *booking.SubmissionError
	)
	switch {
	case errors.Is(err, spaapi.ErrUnauthorized), errors.Is(err, session.ErrNotFound):
		f.cookie.Clear(w)
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: msgExpired, Redirect: middleware.LoginPath})
	case errors.Is(err, booking.ErrSubmissionInFlight):
		jsonError(w, "Ya estamos procesando tu reserva. Esperá un momento.", http.StatusConflict)
	case errors.Is(err, payments.ErrTooManyAttempts):
		w.Header().Set("Retry-After", "3600")
		jsonError(w, "Demasiados intentos de pago. Probá más tarde.", http.StatusTooManyRequests)
	case spaapi.IsTransient(err):
		f.logger.Warn("backend unavailable", "error", err, "path", r.URL.Path)
		writeJSON(w, http.StatusServiceUnavailable, transientBody(err))
	case errors.As(err, &submitted):
		status := http.StatusBadGateway
		if errors.As(err, &rejected) && rejected.Status >= 400 && rejected.Status < 500 {
			status = http.StatusConflict
		}
		jsonError(w, submitted.Message, status)
	case errors.As(err, &rejected):
		status := http.StatusBadGateway
		if rejected.Status >= 400 && rejected.Status < 500 {
			status = rejected.Status
		}
		msg := rejected.UserMessage()
		if msg == "" {
			msg = msgGeneric
		}
		jsonError(w, msg, status)
	case errors.Is(err, context.Canceled):
		f.logger.Info("request canceled by client", "path", r.URL.Path)
	default:
		f.logger.Error("request failed", "error", err, "path", r.URL.Path)
		jsonError(w, msgGeneric, http.StatusBadGateway)
	}
}

// transientBody describes an exhausted retry budget so the UI can show why
// the request failed and how hard the server tried.
func transientBody(err error) errorBody {
	body := errorBody{Error: msgTransient, Retry: true, Attempts: 1}
	var te *spaapi.TransientError
	if errors.As(err, &te) {
		body.Attempts = te.Attempts
		if te.ColdStart() {
			body.Error = msgColdStart
		}
	}
	return body
}

// currentSession returns the session RequireSession stored in the context.
func currentSession(r *http.Request) (*session.Session, error) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		return nil, session.ErrNotFound
	}
	return s, nil
}

func clockOrNow(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
