package spaapi

import "github.com/wolfman30/spa-turnos/internal/booking"

// Credentials is the login body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the sign-up body.
type Registration struct {
	Name     string `json:"nombre"`
	LastName string `json:"apellido,omitempty"`
	Email    string `json:"email"`
	Phone    string `json:"telefono,omitempty"`
	Password string `json:"password"`
}

// AuthResult is what the auth routes return.
type AuthResult struct {
	Token string       `json:"token"`
	User  booking.User `json:"user"`
}

// ServiceInput is the body of the service create/edit routes.
type ServiceInput struct {
	Name        string  `json:"nombre"`
	Description string  `json:"descripcion,omitempty"`
	Category    string  `json:"tipo,omitempty"`
	Price       float64 `json:"precio"`
	Image       string  `json:"imagen,omitempty"`
}

// UserInput is the body of the user edit route. Empty fields are left as is.
type UserInput struct {
	Name     string `json:"nombre,omitempty"`
	LastName string `json:"apellido,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"telefono,omitempty"`
	Role     string `json:"rol,omitempty"`
}

// PaymentRequest is the body of the payment create route.
type PaymentRequest struct {
	Appointments []string `json:"turnos"`
	Amount       float64  `json:"amount"`
	Client       string   `json:"cliente"`
	Method       string   `json:"metodo,omitempty"`
}
