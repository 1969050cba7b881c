package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/spa-turnos/pkg/logging"
)

var bookingTracer = otel.Tracer("spa.internal.booking")

const defaultLockTTL = 30 * time.Second

// Selection is the (service, date, time) a client picked.
type Selection struct {
	ServiceID string `json:"service_id"`
	Date      Date   `json:"date"`
	Time      Clock  `json:"time"`
}

// Submitter re-validates a selection right before it is sent and then issues
// the create call. The local checks only catch slots that went stale in the
// data the client holds; the backend still decides.
type Submitter struct {
	backend Backend
	locker  Locker
	rules   Rules
	metrics Metrics
	logger  *logging.Logger
	now     func() time.Time
	lockTTL time.Duration
}

// NewSubmitter constructs a Submitter. locker may be nil, which disables the
// one-submission-per-session guard.
func NewSubmitter(backend Backend, locker Locker, rules Rules, logger *logging.Logger) *Submitter {
	if backend == nil {
		panic("booking: backend required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Submitter{
		backend: backend,
		locker:  locker,
		rules:   rules,
		logger:  logger,
		now:     time.Now,
		lockTTL: defaultLockTTL,
	}
}

// WithClock overrides the time source.
func (s *Submitter) WithClock(now func() time.Time) *Submitter {
	if now != nil {
		s.now = now
	}
	return s
}

// WithMetrics attaches an outcome observer.
func (s *Submitter) WithMetrics(m Metrics) *Submitter {
	s.metrics = m
	return s
}

// Rules returns the rules the submitter validates with.
func (s *Submitter) Rules() Rules { return s.rules }

// Validate runs the local checks: complete selection, slot on the grid,
// lead time, and occupancy against known.
func (s *Submitter) Validate(sel Selection, known []Appointment, now time.Time) error {
	if strings.TrimSpace(sel.ServiceID) == "" {
		return NewValidationError(KindMissingService, "Elegí un servicio.")
	}
	if sel.Date.IsZero() {
		return NewValidationError(KindMissingDate, "Elegí una fecha.")
	}
	if sel.Time.IsZero() {
		return NewValidationError(KindMissingTime, "Elegí un horario.")
	}
	if !onGrid(sel.Time) {
		return NewValidationError(KindInvalidSlot, "El horario elegido no está disponible.")
	}
	if !s.rules.SatisfiesLeadTime(sel.Date, sel.Time, now) {
		return NewValidationError(KindLeadTime, fmt.Sprintf("Los turnos deben reservarse con más de %d horas de anticipación.", int(s.rules.LeadTime.Hours())))
	}
	if IsOccupied(sel.Date, sel.Time, sel.ServiceID, known) {
		return NewValidationError(KindOccupied, "Ese horario ya fue reservado. Elegí otro.")
	}
	return nil
}

// Submit validates sel and creates the appointment. It returns the id of the
// created appointment, a *ValidationError for local failures,
// ErrSubmissionInFlight, or a *SubmissionError wrapping the backend error.
func (s *Submitter) Submit(ctx context.Context, p Principal, sel Selection, known []Appointment) (string, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("spa.service_id", sel.ServiceID),
		attribute.String("spa.date", sel.Date.String()),
		attribute.String("spa.time", sel.Time.String()),
	)

	if err := s.Validate(sel, known, s.now()); err != nil {
		ve, _ := IsValidation(err)
		s.observeValidation(ve.Kind)
		s.logger.Info("booking rejected locally", "kind", ve.Kind, "service_id", sel.ServiceID, "date", sel.Date.String(), "time", sel.Time.String())
		return "", err
	}

	if s.locker != nil {
		key := lockKey(p)
		release, err := s.locker.Acquire(ctx, key, s.lockTTL)
		if err != nil {
			if errors.Is(err, ErrSubmissionInFlight) {
				s.observeSubmission("in_flight")
				return "", ErrSubmissionInFlight
			}
			s.logger.Warn("submission lock unavailable, continuing", "error", err, "key", key)
		} else {
			defer release()
		}
	}

	created, err := s.backend.CreateAppointment(ctx, p.Token, CreateRequest{
		Client:  p.ClientID,
		Service: sel.ServiceID,
		Date:    sel.Date,
		Time:    sel.Time,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create appointment failed")
		s.observeSubmission("failed")
		s.logger.Warn("booking submission failed", "error", err, "service_id", sel.ServiceID, "date", sel.Date.String(), "time", sel.Time.String())
		return "", newSubmissionError(err)
	}
	if created == nil || strings.TrimSpace(created.ID) == "" {
		s.observeSubmission("failed")
		return "", &SubmissionError{Message: genericSubmissionMessage}
	}

	s.observeSubmission("created")
	span.SetAttributes(attribute.String("spa.appointment_id", created.ID))
	s.logger.Info("appointment created", "appointment_id", created.ID, "client_id", p.ClientID, "service_id", sel.ServiceID, "date", sel.Date.String(), "time", sel.Time.String())
	return created.ID, nil
}

func (s *Submitter) observeSubmission(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveSubmission(outcome)
	}
}

func (s *Submitter) observeValidation(kind ValidationKind) {
	if s.metrics != nil {
		s.metrics.ObserveValidation(string(kind))
	}
}

func lockKey(p Principal) string {
	if p.SessionID != "" {
		return "submit:" + p.SessionID
	}
	return "submit:client:" + p.ClientID
}

func onGrid(c Clock) bool {
	for _, slot := range dailySlots {
		if slot == c {
			return true
		}
	}
	return false
}
