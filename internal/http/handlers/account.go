package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/spa-turnos/internal/booking"
	"github.com/wolfman30/spa-turnos/internal/http/middleware"
	"github.com/wolfman30/spa-turnos/internal/payments"
	"github.com/wolfman30/spa-turnos/pkg/logging"
)

// AccountBackend is what the "my appointments" routes call.
type AccountBackend interface {
	ListServices(ctx context.Context) ([]booking.Service, error)
	ListAppointments(ctx context.Context, token string) ([]booking.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, token, id string, status booking.Status) error
}

// AccountHandler serves a client's own appointments: the per-day view,
// cancellation and day payment.
type AccountHandler struct {
	backend  AccountBackend
	checkout *payments.Checkout
	rules    booking.Rules
	fail     failures
	logger   *logging.Logger
	now      func() time.Time
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(backend AccountBackend, checkout *payments.Checkout, rules booking.Rules, cookie middleware.SessionCookie, logger *logging.Logger) *AccountHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AccountHandler{
		backend:  backend,
		checkout: checkout,
		rules:    rules,
		fail:     failures{cookie: cookie, logger: logger},
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source.
func (h *AccountHandler) WithClock(now func() time.Time) *AccountHandler {
	h.now = clockOrNow(now)
	return h
}

// AppointmentsResponse is the per-day view of the client's appointments.
type AppointmentsResponse struct {
	Days         []booking.Day `json:"days"`
	CardDiscount float64       `json:"card_discount"`
}

// Appointments handles GET /api/me/appointments.
func (h *AccountHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	appts, err := h.resolved(r.Context(), sess.Token)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AppointmentsResponse{
		Days:         booking.Days(appts, h.now(), h.rules),
		CardDiscount: h.rules.CardDiscount,
	})
}

// Cancel handles POST /api/me/appointments/{id}/cancel.
func (h *AccountHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		jsonError(w, "Falta el turno.", http.StatusBadRequest)
		return
	}

	appts, err := h.backend.ListAppointments(r.Context(), sess.Token)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	var target *booking.Appointment
	for i := range appts {
		if appts[i].ID == id {
			target = &appts[i]
			break
		}
	}
	if target == nil {
		jsonError(w, "No encontramos ese turno.", http.StatusNotFound)
		return
	}
	if err := booking.CheckCancel(*target, h.now(), h.rules); err != nil {
		h.fail.write(w, r, err)
		return
	}
	if err := h.backend.UpdateAppointmentStatus(r.Context(), sess.Token, id, booking.StatusCancelled); err != nil {
		h.fail.write(w, r, err)
		return
	}
	h.logger.Info("appointment cancelled", "appointment_id", id, "client_id", sess.User.ID)
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "estado": string(booking.StatusCancelled)})
}

type payRequest struct {
	Method string `json:"method"`
}

// PayDay handles POST /api/me/days/{date}/pay.
func (h *AccountHandler) PayDay(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	date, err := booking.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		jsonError(w, "La fecha no es válida.", http.StatusBadRequest)
		return
	}
	var req payRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, msgBadBody, http.StatusBadRequest)
		return
	}
	method, err := payments.ParseMethod(strings.ToLower(strings.TrimSpace(req.Method)))
	if err != nil {
		jsonError(w, "Elegí efectivo o tarjeta.", http.StatusBadRequest)
		return
	}

	appts, err := h.resolved(r.Context(), sess.Token)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	receipt, err := h.checkout.PayDay(r.Context(), sess.Principal(), date, method, appts, h.now())
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// resolved lists the session's appointments with service references
// populated from the catalog, so prices are known.
func (h *AccountHandler) resolved(ctx context.Context, token string) ([]booking.Appointment, error) {
	appts, err := h.backend.ListAppointments(ctx, token)
	if err != nil {
		return nil, err
	}
	catalog, err := h.backend.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	return booking.ResolveServices(appts, catalog), nil
}
