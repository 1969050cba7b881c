// Package booking holds the appointment ("turno") rules the web client applies
// before it talks to the spa backend: the daily slot grid, the lead-time rule,
// availability filtering, per-day aggregation and booking submission.
//
// The backend stays the source of truth. Every check in this package is an
// optimistic local check against data the client already fetched.
package booking

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of an appointment as the backend spells it.
type Status string

const (
	StatusPending   Status = "pendiente"
	StatusConfirmed Status = "confirmado"
	StatusCancelled Status = "cancelado"
	StatusCompleted Status = "completado"
)

// ParseStatus accepts the backend vocabulary plus the English aliases some
// older records carry.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pendiente", "pending":
		return StatusPending, nil
	case "confirmado", "confirmed":
		return StatusConfirmed, nil
	case "cancelado", "cancelled", "canceled":
		return StatusCancelled, nil
	case "completado", "completed":
		return StatusCompleted, nil
	}
	return "", fmt.Errorf("booking: unknown appointment status %q", raw)
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("booking: decode status: %w", err)
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		// Keep unknown values so one odd record does not fail a whole listing.
		*s = Status(strings.ToLower(strings.TrimSpace(raw)))
		return nil
	}
	*s = parsed
	return nil
}

// Active reports whether the appointment still holds its slot.
func (s Status) Active() bool {
	return s != StatusCancelled
}

// Service is a bookable spa service. It is owned by the backend and read-only here.
type Service struct {
	ID          string  `json:"_id"`
	Name        string  `json:"nombre"`
	Description string  `json:"descripcion,omitempty"`
	Category    string  `json:"tipo,omitempty"`
	Price       float64 `json:"precio"`
	Image       string  `json:"imagen,omitempty"`
}

// Role values stored on the user profile.
const (
	RoleClient = "cliente"
	RoleAdmin  = "admin"
)

// User is the profile blob the backend returns at login and in admin listings.
type User struct {
	ID       string `json:"_id"`
	Name     string `json:"nombre"`
	LastName string `json:"apellido,omitempty"`
	Email    string `json:"email"`
	Phone    string `json:"telefono,omitempty"`
	Role     string `json:"rol,omitempty"`
}

// IsAdmin reports whether the user may use the back-office.
func (u User) IsAdmin() bool {
	return strings.EqualFold(strings.TrimSpace(u.Role), RoleAdmin)
}

// Appointment is a single turno. Date and Time are carried separately and are
// normalized when the appointment is decoded.
type Appointment struct {
	ID           string       `json:"_id"`
	Client       Ref[User]    `json:"cliente"`
	Service      Ref[Service] `json:"servicio"`
	Professional Ref[User]    `json:"profesional"`
	Date         Date         `json:"fecha"`
	Time         Clock        `json:"hora"`
	Status       Status       `json:"estado"`
}

// Payment groups the appointments of one day that were paid together.
type Payment struct {
	ID           string             `json:"_id"`
	Appointments []Ref[Appointment] `json:"turnos"`
	Amount       float64            `json:"amount"`
	Client       Ref[User]          `json:"cliente"`
	Method       string             `json:"metodo,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
}

// ResolveServices populates unpopulated service references from the catalog.
// References that are already populated, or whose service no longer exists,
// are left untouched. The input slice is not modified.
func ResolveServices(appts []Appointment, catalog []Service) []Appointment {
	byID := make(map[string]Service, len(catalog))
	for _, svc := range catalog {
		byID[svc.ID] = svc
	}
	out := make([]Appointment, len(appts))
	for i, a := range appts {
		if !a.Service.IsPopulated() {
			if svc, ok := byID[a.Service.ID()]; ok {
				a.Service = Populated(svc.ID, svc)
			}
		}
		out[i] = a
	}
	return out
}
