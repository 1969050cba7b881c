package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/spa-turnos/internal/booking"
	"github.com/wolfman30/spa-turnos/internal/http/middleware"
	"github.com/wolfman30/spa-turnos/internal/session"
	"github.com/wolfman30/spa-turnos/internal/spaapi"
	"github.com/wolfman30/spa-turnos/pkg/logging"
)

// flowClaimTTL bounds how long a submit claim can block other requests.
const flowClaimTTL = 10 * time.Second

// AppointmentLister fetches the appointments the session can see.
type AppointmentLister interface {
	ListAppointments(ctx context.Context, token string) ([]booking.Appointment, error)
}

// FlowStore persists the booking flow of a session.
type FlowStore interface {
	LoadFlow(ctx context.Context, sessionID string) (*booking.Flow, error)
	SaveFlow(ctx context.Context, sessionID string, f *booking.Flow) error
	DeleteFlow(ctx context.Context, sessionID string) error
}

// FlowHandler drives the step-by-step booking dialog and the one-shot booking
// route.
type FlowHandler struct {
	backend   AppointmentLister
	flows     FlowStore
	submitter *booking.Submitter
	claims    booking.Locker
	fail      failures
	logger    *logging.Logger
	now       func() time.Time
}

// NewFlowHandler creates a new flow handler.
func NewFlowHandler(backend AppointmentLister, flows FlowStore, submitter *booking.Submitter, cookie middleware.SessionCookie, logger *logging.Logger) *FlowHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FlowHandler{
		backend:   backend,
		flows:     flows,
		submitter: submitter,
		claims:    session.NewMemoryLocker(),
		fail:      failures{cookie: cookie, logger: logger},
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the time source.
func (h *FlowHandler) WithClock(now func() time.Time) *FlowHandler {
	h.now = clockOrNow(now)
	return h
}

// WithLocker sets the lock that serializes submit claims on a flow. Replicas
// sharing a Redis session store need the Redis locker here too.
func (h *FlowHandler) WithLocker(l booking.Locker) *FlowHandler {
	if l != nil {
		h.claims = l
	}
	return h
}

// FlowView is the client-facing state of a flow. The booked snapshot stays
// on the server.
type FlowView struct {
	Step          booking.Step          `json:"step"`
	ServiceID     string                `json:"service_id,omitempty"`
	Date          *booking.Date         `json:"date,omitempty"`
	Time          *booking.Clock        `json:"time,omitempty"`
	Availability  *booking.Availability `json:"availability,omitempty"`
	AppointmentID string                `json:"appointment_id,omitempty"`
	Error         string                `json:"error,omitempty"`
}

func (h *FlowHandler) view(f *booking.Flow) FlowView {
	v := FlowView{
		Step:          f.Step,
		ServiceID:     f.Selection.ServiceID,
		AppointmentID: f.AppointmentID,
		Error:         f.Error,
	}
	if !f.Selection.Date.IsZero() {
		d := f.Selection.Date
		v.Date = &d
		if f.Selection.ServiceID != "" {
			avail := f.Availability(h.now(), h.submitter.Rules())
			v.Availability = &avail
		}
	}
	if !f.Selection.Time.IsZero() {
		t := f.Selection.Time
		v.Time = &t
	}
	return v
}

// Open handles POST /api/flow. It snapshots the booked appointments and
// replaces any flow the session had.
func (h *FlowHandler) Open(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	booked, err := h.backend.ListAppointments(r.Context(), sess.Token)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	f := booking.OpenFlow(booked, h.now())
	if err := h.flows.SaveFlow(r.Context(), sess.ID, f); err != nil {
		h.fail.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(f))
}

// Get handles GET /api/flow.
func (h *FlowHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.withFlow(w, r, func(*session.Session, *booking.Flow) error { return nil })
}

// Close handles DELETE /api/flow. All in-progress state is discarded.
func (h *FlowHandler) Close(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	if err := h.flows.DeleteFlow(r.Context(), sess.ID); err != nil {
		h.fail.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type selectServiceRequest struct {
	ServiceID string `json:"service_id"`
}

// SelectService handles POST /api/flow/service.
func (h *FlowHandler) SelectService(w http.ResponseWriter, r *http.Request) {
	var req selectServiceRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, msgBadBody, http.StatusBadRequest)
		return
	}
	h.withFlow(w, r, func(_ *session.Session, f *booking.Flow) error {
		return f.SelectService(req.ServiceID)
	})
}

type selectDateRequest struct {
	Date string `json:"date"`
}

// SelectDate handles POST /api/flow/date.
func (h *FlowHandler) SelectDate(w http.ResponseWriter, r *http.Request) {
	var req selectDateRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, msgBadBody, http.StatusBadRequest)
		return
	}
	date, err := booking.ParseDate(req.Date)
	if err != nil {
		jsonError(w, "La fecha no es válida.", http.StatusBadRequest)
		return
	}
	h.withFlow(w, r, func(_ *session.Session, f *booking.Flow) error {
		return f.SelectDate(date)
	})
}

type selectTimeRequest struct {
	Time string `json:"time"`
}

// SelectTime handles POST /api/flow/time.
func (h *FlowHandler) SelectTime(w http.ResponseWriter, r *http.Request) {
	var req selectTimeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, msgBadBody, http.StatusBadRequest)
		return
	}
	at, err := booking.ParseClock(req.Time)
	if err != nil {
		jsonError(w, "El horario no es válido.", http.StatusBadRequest)
		return
	}
	h.withFlow(w, r, func(_ *session.Session, f *booking.Flow) error {
		return f.SelectTime(at, h.now(), h.submitter.Rules())
	})
}

// Next handles POST /api/flow/next.
func (h *FlowHandler) Next(w http.ResponseWriter, r *http.Request) {
	h.withFlow(w, r, func(_ *session.Session, f *booking.Flow) error {
		return f.Next(h.now(), h.submitter.Rules())
	})
}

// Previous handles POST /api/flow/previous.
func (h *FlowHandler) Previous(w http.ResponseWriter, r *http.Request) {
	h.withFlow(w, r, func(_ *session.Session, f *booking.Flow) error {
		return f.Previous()
	})
}

// Submit handles POST /api/flow/submit. The selection is re-validated against
// the snapshot taken when the flow opened, then sent to the backend. A
// backend rejection leaves the flow in the failed step with the message.
func (h *FlowHandler) Submit(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	ctx := r.Context()
	f, err := h.claimSubmit(ctx, sess.ID)
	if err != nil {
		h.flowMissing(w, r, err)
		return
	}

	id, err := h.submitter.Submit(ctx, sess.Principal(), f.Selection, f.Booked)
	var submitted *booking.SubmissionError
	switch {
	case err == nil:
		_ = f.Succeed(id)
	case errors.As(err, &submitted):
		_ = f.Fail(submitted.Message)
	default:
		_ = f.Abort()
	}

	if errors.Is(err, spaapi.ErrUnauthorized) {
		// The session is gone; nothing left to save the flow into.
		h.fail.write(w, r, err)
		return
	}
	if serr := h.flows.SaveFlow(context.WithoutCancel(ctx), sess.ID, f); serr != nil {
		h.logger.Warn("failed to save flow after submit", "session_id", sess.ID, "error", serr)
	}
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(f))
}

// claimSubmit moves the session's flow into the submitting step and stores it
// before any backend call, so a concurrent submit for the same flow sees the
// claim and is refused.
func (h *FlowHandler) claimSubmit(ctx context.Context, sessionID string) (*booking.Flow, error) {
	release, err := h.claims.Acquire(ctx, "flow:"+sessionID, flowClaimTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	f, err := h.flows.LoadFlow(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if f.Step == booking.StepSubmitting {
		return nil, booking.ErrSubmissionInFlight
	}
	if err := f.BeginSubmit(); err != nil {
		return nil, err
	}
	if err := h.flows.SaveFlow(ctx, sessionID, f); err != nil {
		return nil, fmt.Errorf("save submitting flow: %w", err)
	}
	return f, nil
}

type bookingRequest struct {
	ServiceID string `json:"service_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

// CreateBooking handles POST /api/bookings, a one-shot submission that
// validates against a freshly fetched appointment list.
func (h *FlowHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	var req bookingRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, msgBadBody, http.StatusBadRequest)
		return
	}

	sel := booking.Selection{ServiceID: strings.TrimSpace(req.ServiceID)}
	if strings.TrimSpace(req.Date) != "" {
		d, err := booking.ParseDate(req.Date)
		if err != nil {
			jsonError(w, "La fecha no es válida.", http.StatusBadRequest)
			return
		}
		sel.Date = d
	}
	if strings.TrimSpace(req.Time) != "" {
		c, err := booking.ParseClock(req.Time)
		if err != nil {
			jsonError(w, "El horario no es válido.", http.StatusBadRequest)
			return
		}
		sel.Time = c
	}

	known, err := h.backend.ListAppointments(r.Context(), sess.Token)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	id, err := h.submitter.Submit(r.Context(), sess.Principal(), sel, known)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id, "estado": string(booking.StatusPending)})
}

// withFlow loads the session's flow, applies fn and saves the result.
func (h *FlowHandler) withFlow(w http.ResponseWriter, r *http.Request, fn func(*session.Session, *booking.Flow) error) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	f, err := h.flows.LoadFlow(r.Context(), sess.ID)
	if err != nil {
		h.flowMissing(w, r, err)
		return
	}
	if err := fn(sess, f); err != nil {
		h.fail.write(w, r, err)
		return
	}
	if err := h.flows.SaveFlow(r.Context(), sess.ID, f); err != nil {
		h.fail.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(f))
}

func (h *FlowHandler) flowMissing(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, session.ErrNotFound) {
		jsonError(w, "No hay una reserva en curso.", http.StatusNotFound)
		return
	}
	h.fail.write(w, r, err)
}
