package booking

import (
	"context"
	"time"
)

// CreateRequest is the body of the appointment create call.
type CreateRequest struct {
	Client  string `json:"cliente"`
	Service string `json:"servicio"`
	Date    Date   `json:"fecha"`
	Time    Clock  `json:"hora"`
}

// Backend is the part of the spa REST backend the submitter needs.
type Backend interface {
	// CreateAppointment registers a pending appointment and returns it as the
	// backend stored it.
	CreateAppointment(ctx context.Context, token string, req CreateRequest) (*Appointment, error)
}

// Locker serializes submissions per session. Acquire returns
// ErrSubmissionInFlight when the key is already held.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// Metrics observes submission outcomes. Implementations must be nil-safe.
type Metrics interface {
	ObserveSubmission(outcome string)
	ObserveValidation(kind string)
}

// Principal identifies who is booking.
type Principal struct {
	SessionID string
	Token     string
	ClientID  string
}
