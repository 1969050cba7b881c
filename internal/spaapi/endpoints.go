package spaapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/wolfman30/spa-turnos/internal/booking"
)

// ListServices returns the public service catalog.
func (c *Client) ListServices(ctx context.Context) ([]booking.Service, error) {
	var services []booking.Service
	if err := c.do(ctx, call{name: "list_services", method: http.MethodGet, path: "/services", out: &services}); err != nil {
		return nil, err
	}
	return services, nil
}

// CreateService adds a service to the catalog (admin).
func (c *Client) CreateService(ctx context.Context, token string, svc ServiceInput) (*booking.Service, error) {
	var created booking.Service
	err := c.do(ctx, call{name: "create_service", method: http.MethodPost, path: "/services/create", token: token, auth: authBearer, body: svc, out: &created})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateService edits a service (admin).
func (c *Client) UpdateService(ctx context.Context, token, id string, svc ServiceInput) (*booking.Service, error) {
	var updated booking.Service
	err := c.do(ctx, call{name: "update_service", method: http.MethodPut, path: "/services/edit/" + url.PathEscape(id), token: token, auth: authBearer, body: svc, out: &updated})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteService removes a service (admin).
func (c *Client) DeleteService(ctx context.Context, token, id string) error {
	return c.do(ctx, call{name: "delete_service", method: http.MethodDelete, path: "/services/delete/" + url.PathEscape(id), token: token, auth: authBearer})
}

// ListAppointments returns the appointments visible to the token's principal,
// cancelled ones included.
func (c *Client) ListAppointments(ctx context.Context, token string) ([]booking.Appointment, error) {
	var appts []booking.Appointment
	if err := c.do(ctx, call{name: "list_appointments", method: http.MethodGet, path: "/appointments", token: token, auth: authQuery, out: &appts}); err != nil {
		return nil, err
	}
	return appts, nil
}

// CreateAppointment registers a pending appointment.
func (c *Client) CreateAppointment(ctx context.Context, token string, req booking.CreateRequest) (*booking.Appointment, error) {
	var raw json.RawMessage
	err := c.do(ctx, call{name: "create_appointment", method: http.MethodPost, path: "/appointments/create", token: token, auth: authQuery, body: req, out: &raw})
	if err != nil {
		return nil, err
	}
	return decodeCreated(raw)
}

// UpdateAppointmentStatus sets the estado of an appointment.
func (c *Client) UpdateAppointmentStatus(ctx context.Context, token, id string, status booking.Status) error {
	body := map[string]booking.Status{"estado": status}
	return c.do(ctx, call{name: "update_appointment", method: http.MethodPut, path: "/appointments/edit/" + url.PathEscape(id), token: token, auth: authQuery, body: body})
}

// DeleteAppointment removes an appointment (admin override).
func (c *Client) DeleteAppointment(ctx context.Context, token, id string) error {
	return c.do(ctx, call{name: "delete_appointment", method: http.MethodDelete, path: "/appointments/delete/" + url.PathEscape(id), token: token, auth: authQuery})
}

// CreatePayment records a payment for a set of appointments.
func (c *Client) CreatePayment(ctx context.Context, token string, req PaymentRequest) (*booking.Payment, error) {
	var created booking.Payment
	err := c.do(ctx, call{name: "create_payment", method: http.MethodPost, path: "/payments/create", token: token, auth: authQuery, body: req, out: &created})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// ListPayments returns all recorded payments (admin).
func (c *Client) ListPayments(ctx context.Context, token string) ([]booking.Payment, error) {
	var payments []booking.Payment
	if err := c.do(ctx, call{name: "list_payments", method: http.MethodGet, path: "/payments", token: token, auth: authQuery, out: &payments}); err != nil {
		return nil, err
	}
	return payments, nil
}

// Login exchanges credentials for a token and the user profile.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var res AuthResult
	body := Credentials{Email: strings.TrimSpace(email), Password: password}
	if err := c.do(ctx, call{name: "login", method: http.MethodPost, path: "/auth/login", body: body, out: &res}); err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, fmt.Errorf("spaapi: login: %w", &RejectedError{Status: http.StatusOK, Message: "Respuesta de inicio de sesión inválida."})
	}
	return &res, nil
}

// Register creates a client account. Some deployments log the user in
// directly and return a token; others return only the profile.
func (c *Client) Register(ctx context.Context, in Registration) (*AuthResult, error) {
	var res AuthResult
	if err := c.do(ctx, call{name: "register", method: http.MethodPost, path: "/auth/register", body: in, out: &res}); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListUsers returns every registered user (admin).
func (c *Client) ListUsers(ctx context.Context, token string) ([]booking.User, error) {
	var users []booking.User
	if err := c.do(ctx, call{name: "list_users", method: http.MethodGet, path: "/users", token: token, auth: authBearer, out: &users}); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUser edits a user profile (admin).
func (c *Client) UpdateUser(ctx context.Context, token, id string, in UserInput) (*booking.User, error) {
	var updated booking.User
	err := c.do(ctx, call{name: "update_user", method: http.MethodPut, path: "/users/edit/" + url.PathEscape(id), token: token, auth: authBearer, body: in, out: &updated})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteUser removes a user (admin).
func (c *Client) DeleteUser(ctx context.Context, token, id string) error {
	return c.do(ctx, call{name: "delete_user", method: http.MethodDelete, path: "/users/delete/" + url.PathEscape(id), token: token, auth: authBearer})
}

// decodeCreated accepts the created appointment either bare or wrapped as
// {"turno": {...}} / {"appointment": {...}}.
func decodeCreated(raw json.RawMessage) (*booking.Appointment, error) {
	if len(raw) == 0 {
		return &booking.Appointment{}, nil
	}
	var wrapped struct {
		Turno       *booking.Appointment `json:"turno"`
		Appointment *booking.Appointment `json:"appointment"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		if wrapped.Turno != nil {
			return wrapped.Turno, nil
		}
		if wrapped.Appointment != nil {
			return wrapped.Appointment, nil
		}
	}
	var appt booking.Appointment
	if err := json.Unmarshal(raw, &appt); err != nil {
		return nil, fmt.Errorf("spaapi: create_appointment: decode response: %w", err)
	}
	return &appt, nil
}
