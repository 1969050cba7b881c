package spaapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnauthorized is returned when the backend rejects the session token.
var ErrUnauthorized = errors.New("spaapi: unauthorized")

const (
	reasonColdStart = "cold_start"
	reasonNetwork   = "network"
)

// RejectedError is a non-2xx JSON answer. Message carries the server's
// "message" field when it sent one.
type RejectedError struct {
	Status  int
	Message string
	Body    string
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Body)
}

// UserMessage is the server-provided text safe to show to the user.
func (e *RejectedError) UserMessage() string { return e.Message }

// ColdStartError is an HTML page where JSON was expected. The hosting
// platform serves one while the backend is starting up.
type ColdStartError struct {
	Status int
	Title  string
}

func (e *ColdStartError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("backend returned an HTML page (%d %q), server is probably starting", e.Status, e.Title)
	}
	return fmt.Sprintf("backend returned an HTML page (%d), server is probably starting", e.Status)
}

// NetworkError is a transport failure before any response arrived.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError is a single attempt that hit the per-request timeout.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s", e.After)
}

// TransientError is returned once the retry budget is spent on cold-start or
// network failures. The caller may offer a manual retry.
type TransientError struct {
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("backend unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ColdStart reports whether the last failure was the backend still starting
// up rather than a connection problem.
func (e *TransientError) ColdStart() bool {
	var cs *ColdStartError
	return errors.As(e.Err, &cs)
}

// IsTransient reports errors the user can fix by retrying later: exhausted
// retries and single-attempt timeouts.
func IsTransient(err error) bool {
	var te *TransientError
	var to *TimeoutError
	return errors.As(err, &te) || errors.As(err, &to)
}

// retryReason classifies err. Timeouts and cancellation of the caller's own
// context are final.
func retryReason(ctx context.Context, err error) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	var cs *ColdStartError
	if errors.As(err, &cs) {
		return reasonColdStart, true
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return reasonNetwork, true
	}
	return "", false
}

func outcomeOf(err error) string {
	var (
		rejected *RejectedError
		timeout  *TimeoutError
		cold     *ColdStartError
		network  *NetworkError
	)
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.As(err, &rejected):
		return "rejected"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &cold):
		return "cold_start"
	case errors.As(err, &network):
		return "network"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

func serverMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, m := range []string{payload.Message, payload.Error, payload.Msg} {
		if s := strings.TrimSpace(m); s != "" {
			return s
		}
	}
	return ""
}
