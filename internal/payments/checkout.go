// Package payments settles a client's pending appointments for one day. The
// backend records the payment; this package decides what is payable and how
// much, and confirms the paid appointments afterwards.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/spa-turnos/internal/booking"
	"github.com/wolfman30/spa-turnos/internal/spaapi"
	"github.com/wolfman30/spa-turnos/pkg/logging"
)

var paymentsTracer = otel.Tracer("spa.internal.payments")

// Method is how the client pays at the front desk or online.
type Method string

const (
	MethodCash Method = "efectivo"
	MethodCard Method = "tarjeta"
)

// ParseMethod accepts the Spanish names and their English aliases.
func ParseMethod(raw string) (Method, error) {
	switch raw {
	case "efectivo", "cash":
		return MethodCash, nil
	case "tarjeta", "card", "debito", "débito", "debit":
		return MethodCard, nil
	}
	return "", fmt.Errorf("payments: unknown method %q", raw)
}

// ErrTooManyAttempts is returned when the velocity check refuses a payment.
var ErrTooManyAttempts = errors.New("payments: too many payment attempts")

// Backend is the part of the REST client checkout uses.
type Backend interface {
	CreatePayment(ctx context.Context, token string, req spaapi.PaymentRequest) (*booking.Payment, error)
	UpdateAppointmentStatus(ctx context.Context, token, id string, status booking.Status) error
}

// Metrics observes payment outcomes. Implementations must be nil-safe.
type Metrics interface {
	ObservePayment(method, outcome string, amount float64)
}

// Receipt is the outcome of paying a day.
type Receipt struct {
	Payment     *booking.Payment `json:"payment"`
	Date        booking.Date     `json:"date"`
	Method      Method           `json:"method"`
	Total       float64          `json:"total"`
	Amount      float64          `json:"amount"`
	Discounted  bool             `json:"discounted"`
	Confirmed   []string         `json:"confirmed"`
	Unconfirmed []string         `json:"unconfirmed,omitempty"`
}

// Checkout pays the pending appointments of a day.
type Checkout struct {
	backend  Backend
	rules    booking.Rules
	velocity *VelocityChecker
	metrics  Metrics
	logger   *logging.Logger
}

// NewCheckout constructs a Checkout. velocity may be nil.
func NewCheckout(backend Backend, rules booking.Rules, velocity *VelocityChecker, logger *logging.Logger) *Checkout {
	if backend == nil {
		panic("payments: backend required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Checkout{backend: backend, rules: rules, velocity: velocity, logger: logger}
}

// WithMetrics attaches a payment observer.
func (c *Checkout) WithMetrics(m Metrics) *Checkout {
	c.metrics = m
	return c
}

// Quote computes what paying date with method would cost without calling
// the backend.
func (c *Checkout) Quote(date booking.Date, method Method, appts []booking.Appointment, now time.Time) (pending []booking.Appointment, total, amount float64, discounted bool, err error) {
	day := onDate(appts, date)
	pending = booking.Pending(day)
	if len(pending) == 0 {
		return nil, 0, 0, false, booking.NewValidationError(booking.KindNothingPayable, "No hay turnos pendientes de pago para ese día.")
	}
	total = booking.DayTotal(day)
	amount = total
	if method == MethodCard && booking.IsDiscountEligible(day, now, c.rules) {
		amount = c.rules.CardTotal(total)
		discounted = true
	}
	return pending, total, amount, discounted, nil
}

// PayDay records one payment for every pending appointment on date and then
// marks them confirmed. Confirmation is best effort: the payment already
// exists, so individual failures are reported in the receipt, not as an error.
func (c *Checkout) PayDay(ctx context.Context, p booking.Principal, date booking.Date, method Method, appts []booking.Appointment, now time.Time) (*Receipt, error) {
	ctx, span := paymentsTracer.Start(ctx, "payments.pay_day")
	defer span.End()
	span.SetAttributes(
		attribute.String("spa.client_id", p.ClientID),
		attribute.String("spa.date", date.String()),
		attribute.String("spa.payment_method", string(method)),
	)

	pending, total, amount, discounted, err := c.Quote(date, method, appts, now)
	if err != nil {
		c.observe(method, "nothing_payable", 0)
		return nil, err
	}

	if res, verr := c.velocity.CheckPaymentVelocity(ctx, p.ClientID); verr == nil && !res.Allowed {
		c.observe(method, "rate_limited", 0)
		return nil, ErrTooManyAttempts
	}

	ids := make([]string, 0, len(pending))
	for _, a := range pending {
		ids = append(ids, a.ID)
	}

	payment, err := c.backend.CreatePayment(ctx, p.Token, spaapi.PaymentRequest{
		Appointments: ids,
		Amount:       amount,
		Client:       p.ClientID,
		Method:       string(method),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create payment failed")
		c.observe(method, "failed", 0)
		c.logger.Warn("payment failed", "error", err, "client_id", p.ClientID, "date", date.String(), "amount", amount)
		return nil, fmt.Errorf("payments: pay %s: %w", date, err)
	}

	receipt := &Receipt{
		Payment:    payment,
		Date:       date,
		Method:     method,
		Total:      total,
		Amount:     amount,
		Discounted: discounted,
		Confirmed:  make([]string, 0, len(ids)),
	}
	for _, id := range ids {
		if err := c.backend.UpdateAppointmentStatus(ctx, p.Token, id, booking.StatusConfirmed); err != nil {
			c.logger.Warn("failed to confirm paid appointment", "error", err, "appointment_id", id)
			receipt.Unconfirmed = append(receipt.Unconfirmed, id)
			continue
		}
		receipt.Confirmed = append(receipt.Confirmed, id)
	}

	c.observe(method, "paid", amount)
	c.logger.Info("day paid",
		"client_id", p.ClientID,
		"date", date.String(),
		"method", string(method),
		"amount", amount,
		"appointments", len(ids),
		"unconfirmed", len(receipt.Unconfirmed),
	)
	return receipt, nil
}

func (c *Checkout) observe(method Method, outcome string, amount float64) {
	if c.metrics != nil {
		c.metrics.ObservePayment(string(method), outcome, amount)
	}
}

func onDate(appts []booking.Appointment, date booking.Date) []booking.Appointment {
	var day []booking.Appointment
	for _, a := range appts {
		if a.Date == date {
			day = append(day, a)
		}
	}
	return day
}
