package handlers

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/spa-turnos/internal/booking"
	"github.com/wolfman30/spa-turnos/internal/http/middleware"
	"github.com/wolfman30/spa-turnos/internal/spaapi"
	"github.com/wolfman30/spa-turnos/pkg/logging"
)

// AdminBackend is the part of the spa backend the back-office uses.
type AdminBackend interface {
	ListUsers(ctx context.Context, token string) ([]booking.User, error)
	UpdateUser(ctx context.Context, token, id string, in spaapi.UserInput) (*booking.User, error)
	DeleteUser(ctx context.Context, token, id string) error

	ListServices(ctx context.Context) ([]booking.Service, error)
	CreateService(ctx context.Context, token string, in spaapi.ServiceInput) (*booking.Service, error)
	UpdateService(ctx context.Context, token, id string, in spaapi.ServiceInput) (*booking.Service, error)
	DeleteService(ctx context.Context, token, id string) error

	ListAppointments(ctx context.Context, token string) ([]booking.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, token, id string, status booking.Status) error
	DeleteAppointment(ctx context.Context, token, id string) error

	ListPayments(ctx context.Context, token string) ([]booking.Payment, error)
}

// AttemptResetter clears a client's payment attempt counter.
type AttemptResetter interface {
	Reset(ctx context.Context, clientID string) error
}

// AdminHandler serves the back-office. Admin actions are not bound by the
// lead-time rule.
type AdminHandler struct {
	backend  AdminBackend
	attempts AttemptResetter
	fail     failures
	logger   *logging.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(backend AdminBackend, cookie middleware.SessionCookie, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{
		backend: backend,
		fail:    failures{cookie: cookie, logger: logger},
		logger:  logger,
	}
}

// WithAttemptResetter enables the payment attempt reset route.
func (h *AdminHandler) WithAttemptResetter(a AttemptResetter) *AdminHandler {
	h.attempts = a
	return h
}

// ResetPaymentAttempts handles DELETE /api/admin/users/{id}/payment-attempts,
// unblocking a client that hit the payment attempt limit.
func (h *AdminHandler) ResetPaymentAttempts(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	if h.attempts == nil {
		jsonError(w, "El límite de intentos de pago no está activo.", http.StatusNotFound)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.attempts.Reset(r.Context(), id); err != nil {
		h.fail.write(w, r, err)
		return
	}
	h.logger.Info("payment attempts reset", "client_id", id, "admin_id", sess.User.ID)
	w.WriteHeader(http.StatusNoContent)
}

// ListUsers handles GET /api/admin/users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	users, err := h.backend.ListUsers(r.Context(), sess.Token)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	if users == nil {
		users = []booking.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// UpdateUser handles PUT /api/admin/users/{id}.
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	var in spaapi.UserInput
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, msgBadBody, http.StatusBadRequest)
		return
	}
	if in.Role != "" && in.Role != booking.RoleAdmin && in.Role != booking.RoleClient {
		jsonError(w, "Rol inválido.", http.StatusBadRequest)
		return
	}
	user, err := h.backend.UpdateUser(r.Context(), sess.Token, chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// DeleteUser handles DELETE /api/admin/users/{id}. Admins cannot delete
// themselves.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if id == sess.User.ID {
		jsonError(w, "No podés eliminar tu propio usuario.", http.StatusConflict)
		return
	}
	if err := h.backend.DeleteUser(r.Context(), sess.Token, id); err != nil {
		h.fail.write(w, r, err)
		return
	}
	h.logger.Info("user deleted", "user_id", id, "admin_id", sess.User.ID)
	w.WriteHeader(http.StatusNoContent)
}

// CreateService handles POST /api/admin/services.
func (h *AdminHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	in, ok := decodeService(w, r)
	if !ok {
		return
	}
	svc, err := h.backend.CreateService(r.Context(), sess.Token, in)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

// UpdateService handles PUT /api/admin/services/{id}.
func (h *AdminHandler) UpdateService(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	in, ok := decodeService(w, r)
	if !ok {
		return
	}
	svc, err := h.backend.UpdateService(r.Context(), sess.Token, chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

// DeleteService handles DELETE /api/admin/services/{id}.
func (h *AdminHandler) DeleteService(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	if err := h.backend.DeleteService(r.Context(), sess.Token, chi.URLParam(r, "id")); err != nil {
		h.fail.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAppointments handles GET /api/admin/appointments?estado=. Appointments
// come back with services resolved, newest date first.
func (h *AdminHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	var want booking.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("estado")); raw != "" {
		want, err = booking.ParseStatus(raw)
		if err != nil {
			jsonError(w, "Estado inválido.", http.StatusBadRequest)
			return
		}
	}

	appts, err := h.backend.ListAppointments(r.Context(), sess.Token)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	catalog, err := h.backend.ListServices(r.Context())
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	resolved := booking.ResolveServices(appts, catalog)

	out := make([]booking.Appointment, 0, len(resolved))
	for _, a := range resolved {
		if want == "" || a.Status == want {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[j].Date.Before(out[i].Date)
		}
		return out[i].Time.Minutes() < out[j].Time.Minutes()
	})
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

type statusRequest struct {
	Status string `json:"estado"`
}

// UpdateAppointmentStatus handles PUT /api/admin/appointments/{id}/status.
func (h *AdminHandler) UpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, msgBadBody, http.StatusBadRequest)
		return
	}
	status, err := booking.ParseStatus(req.Status)
	if err != nil {
		jsonError(w, "Estado inválido.", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.backend.UpdateAppointmentStatus(r.Context(), sess.Token, id, status); err != nil {
		h.fail.write(w, r, err)
		return
	}
	h.logger.Info("appointment status changed by admin", "appointment_id", id, "estado", string(status), "admin_id", sess.User.ID)
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "estado": string(status)})
}

// DeleteAppointment handles DELETE /api/admin/appointments/{id}.
func (h *AdminHandler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	if err := h.backend.DeleteAppointment(r.Context(), sess.Token, chi.URLParam(r, "id")); err != nil {
		h.fail.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPayments handles GET /api/admin/payments.
func (h *AdminHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	list, err := h.backend.ListPayments(r.Context(), sess.Token)
	if err != nil {
		h.fail.write(w, r, err)
		return
	}
	if list == nil {
		list = []booking.Payment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": list})
}

func decodeService(w http.ResponseWriter, r *http.Request) (spaapi.ServiceInput, bool) {
	var in spaapi.ServiceInput
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, msgBadBody, http.StatusBadRequest)
		return in, false
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		jsonError(w, "El servicio necesita un nombre.", http.StatusBadRequest)
		return in, false
	}
	if in.Price < 0 {
		jsonError(w, "El precio no puede ser negativo.", http.StatusBadRequest)
		return in, false
	}
	return in, true
}
