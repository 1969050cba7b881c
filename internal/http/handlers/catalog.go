package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/spa-turnos/internal/booking"
	"github.com/wolfman30/spa-turnos/internal/http/middleware"
	"github.com/wolfman30/spa-turnos/pkg/logging"
)

// CatalogBackend is what the public catalog and availability routes read.
type CatalogBackend interface {
	ListServices(ctx context.Context) ([]booking.Service, error)
	ListAppointments(ctx context.Context, token string) ([]booking.Appointment, error)
}

// CatalogHandler serves the service list and slot availability.
type CatalogHandler struct {
	backend CatalogBackend
	rules   booking.Rules
	fail    failures
	logger  *logging.Logger
	now     func() time.Time
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(backend CatalogBackend, rules booking.Rules, cookie middleware.SessionCookie, logger *logging.Logger) *CatalogHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CatalogHandler{
		backend: backend,
		rules:   rules,
		fail:    failures{cookie: cookie, logger: logger},
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the time source.
func (h *CatalogHandler) WithClock(now func() time.Time) *CatalogHandler {
	h.now = clockOrNow(now)
	return h
}

// ListServices handles GET /api/services.
func (h *CatalogHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.backend.ListServices(r.Context())
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	if services == nil {
		services = []booking.Service{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

// Availability handles GET /api/availability?service=&date=. The booked list
// is fetched fresh for every call.
func (h *CatalogHandler) Availability(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}

	serviceID := strings.TrimSpace(r.URL.Query().Get("service"))
	if serviceID == "" {
		h.fail.write(w, r, booking.NewValidationError(booking.KindMissingService, "Elegí un servicio."))
		return
	}
	rawDate := strings.TrimSpace(r.URL.Query().Get("date"))
	if rawDate == "" {
		h.fail.write(w, r, booking.NewValidationError(booking.KindMissingDate, "Elegí una fecha."))
		return
	}
	date, err := booking.ParseDate(rawDate)
	if err != nil {
		jsonError(w, "La fecha no es válida.", http.StatusBadRequest)
		return
	}

	booked, err := h.backend.ListAppointments(r.Context(), sess.Token)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	avail := booking.FilterAvailable(booking.GenerateSlots(), date, serviceID, booked, h.now(), h.rules)
	writeJSON(w, http.StatusOK, avail)
}
