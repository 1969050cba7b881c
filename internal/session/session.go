// Package session keeps the browser session on the server side: the backend
// token and the user profile, stored under the same "token" and "user" keys
// the browser storage used, plus the in-progress booking flow.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/spa-turnos/internal/booking"
)

// ErrNotFound is returned when a session id is unknown or expired.
var ErrNotFound = errors.New("session: not found")

// Session is one logged-in browser.
type Session struct {
	ID        string       `json:"id"`
	Token     string       `json:"token"`
	User      booking.User `json:"user"`
	CreatedAt time.Time    `json:"created_at"`
}

// New creates a session with a fresh id.
func New(token string, user booking.User, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Token:     token,
		User:      user,
		CreatedAt: now.UTC(),
	}
}

// Principal is the booking identity of the session.
func (s *Session) Principal() booking.Principal {
	return booking.Principal{SessionID: s.ID, Token: s.Token, ClientID: s.User.ID}
}

// Expired reports whether the backend token carries an exp claim in the past.
// The signature is not checked here; the backend does that. Tokens that are
// not JWTs never expire locally.
func (s *Session) Expired(now time.Time) bool {
	return TokenExpired(s.Token, now)
}

// TokenExpired reads the exp claim of a JWT without verifying it.
func TokenExpired(token string, now time.Time) bool {
	if token == "" {
		return true
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

// Store persists sessions and their booking flows.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error

	LoadFlow(ctx context.Context, sessionID string) (*booking.Flow, error)
	SaveFlow(ctx context.Context, sessionID string, f *booking.Flow) error
	DeleteFlow(ctx context.Context, sessionID string) error
}

type ctxKey string

const sessionKey ctxKey = "spa.session"

// WithSession stores the session in context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext extracts the session if present.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil
}
