package booking

import (
	"errors"
	"fmt"
)

// ValidationKind classifies a local validation failure.
type ValidationKind string

const (
	KindMissingService    ValidationKind = "missing_service"
	KindMissingDate       ValidationKind = "missing_date"
	KindMissingTime       ValidationKind = "missing_time"
	KindInvalidSlot       ValidationKind = "invalid_slot"
	KindLeadTime          ValidationKind = "lead_time"
	KindOccupied          ValidationKind = "occupied"
	KindNoAvailability    ValidationKind = "no_availability"
	KindNotCancellable    ValidationKind = "not_cancellable"
	KindNothingPayable    ValidationKind = "nothing_payable"
	KindInvalidTransition ValidationKind = "invalid_transition"
)

// ValidationError is a local check failure. It is shown to the user as is and
// never reaches the network.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

// NewValidationError builds a ValidationError with a user-facing message.
func NewValidationError(kind ValidationKind, msg string) *ValidationError {
	return &ValidationError{Kind: kind, Message: msg}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("booking: %s: %s", e.Kind, e.Message)
}

// IsValidation extracts a ValidationError from err.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// ErrSubmissionInFlight is returned when the same session already has a
// booking submission pending.
var ErrSubmissionInFlight = errors.New("booking: a submission is already in progress")

// genericSubmissionMessage is shown when the backend gave no usable reason.
const genericSubmissionMessage = "No pudimos reservar el turno. Intentá nuevamente en unos minutos."

// SubmissionError is a failed network submission. Message is safe to show to
// the user; Err keeps the underlying cause for errors.Is/As.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("booking: submission failed: %s: %v", e.Message, e.Err)
	}
	return "booking: submission failed: " + e.Message
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// userMessager is implemented by backend errors that carry a server message.
type userMessager interface {
	UserMessage() string
}

func newSubmissionError(err error) *SubmissionError {
	msg := genericSubmissionMessage
	var um userMessager
	if errors.As(err, &um) && um.UserMessage() != "" {
		msg = um.UserMessage()
	}
	return &SubmissionError{Message: msg, Err: err}
}
