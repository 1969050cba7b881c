package booking

import (
	"fmt"
	"strings"
	"time"
)

// Step is a state of the booking flow.
type Step string

const (
	StepService    Step = "selecting_service"
	StepDate       Step = "selecting_date"
	StepTime       Step = "selecting_time"
	StepSubmitting Step = "submitting"
	StepSuccess    Step = "success"
	StepFailed     Step = "failed"
)

// Flow is the state of one booking dialog:
//
//	selecting_service → selecting_date → selecting_time → submitting → success | failed
//
// failed returns to selecting_time. The booked snapshot is captured when the
// flow opens and is not refreshed while the client deliberates.
type Flow struct {
	Step          Step          `json:"step"`
	Selection     Selection     `json:"selection"`
	Booked        []Appointment `json:"booked"`
	OpenedAt      time.Time     `json:"opened_at"`
	AppointmentID string        `json:"appointment_id,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// OpenFlow starts a flow over a snapshot of booked appointments.
func OpenFlow(booked []Appointment, now time.Time) *Flow {
	snapshot := make([]Appointment, len(booked))
	copy(snapshot, booked)
	return &Flow{Step: StepService, Booked: snapshot, OpenedAt: now}
}

// SelectService records the service while on the service step.
func (f *Flow) SelectService(serviceID string) error {
	if err := f.expect(StepService); err != nil {
		return err
	}
	f.Selection.ServiceID = strings.TrimSpace(serviceID)
	return nil
}

// SelectDate records the date while on the date step.
func (f *Flow) SelectDate(d Date) error {
	if err := f.expect(StepDate); err != nil {
		return err
	}
	f.Selection.Date = d
	return nil
}

// SelectTime records the time while on the time step. Only a currently
// available slot can be chosen.
func (f *Flow) SelectTime(t Clock, now time.Time, rules Rules) error {
	if err := f.expect(StepTime); err != nil {
		return err
	}
	if !f.Availability(now, rules).Contains(t) {
		return NewValidationError(KindOccupied, "Ese horario no está disponible. Elegí otro.")
	}
	f.Selection.Time = t
	return nil
}

// Availability computes the slot partition for the current selection.
func (f *Flow) Availability(now time.Time, rules Rules) Availability {
	return FilterAvailable(GenerateSlots(), f.Selection.Date, f.Selection.ServiceID, f.Booked, now, rules)
}

// Next advances one step. It refuses when the current step has no selection,
// and on the date step when the chosen date has no available slot.
func (f *Flow) Next(now time.Time, rules Rules) error {
	switch f.Step {
	case StepService:
		if f.Selection.ServiceID == "" {
			return NewValidationError(KindMissingService, "Elegí un servicio.")
		}
		f.Step = StepDate
	case StepDate:
		if f.Selection.Date.IsZero() {
			return NewValidationError(KindMissingDate, "Elegí una fecha.")
		}
		if len(f.Availability(now, rules).Available) == 0 {
			return NewValidationError(KindNoAvailability, "No hay horarios disponibles para esa fecha.")
		}
		f.Step = StepTime
	case StepTime:
		if f.Selection.Time.IsZero() {
			return NewValidationError(KindMissingTime, "Elegí un horario.")
		}
		return f.invalid("next")
	default:
		return f.invalid("next")
	}
	return nil
}

// Previous goes back one step, clearing the selections that depended on it.
func (f *Flow) Previous() error {
	switch f.Step {
	case StepDate:
		f.Selection.Date = Date{}
		f.Selection.Time = Clock{}
		f.Step = StepService
	case StepTime:
		f.Selection.Time = Clock{}
		f.Step = StepDate
	case StepFailed:
		f.Error = ""
		f.Selection.Time = Clock{}
		f.Step = StepTime
	default:
		return f.invalid("previous")
	}
	return nil
}

// BeginSubmit moves a complete selection into the submitting state.
func (f *Flow) BeginSubmit() error {
	if err := f.expect(StepTime); err != nil {
		return err
	}
	if f.Selection.Time.IsZero() {
		return NewValidationError(KindMissingTime, "Elegí un horario.")
	}
	f.Step = StepSubmitting
	return nil
}

// Succeed records the created appointment.
func (f *Flow) Succeed(appointmentID string) error {
	if err := f.expect(StepSubmitting); err != nil {
		return err
	}
	f.AppointmentID = appointmentID
	f.Error = ""
	f.Step = StepSuccess
	return nil
}

// Fail records a submission failure with a user-facing message.
func (f *Flow) Fail(message string) error {
	if err := f.expect(StepSubmitting); err != nil {
		return err
	}
	f.Error = message
	f.Step = StepFailed
	return nil
}

// Abort returns a submitting flow to the time step without recording a
// failure, for local validation errors found at submit time.
func (f *Flow) Abort() error {
	if err := f.expect(StepSubmitting); err != nil {
		return err
	}
	f.Step = StepTime
	return nil
}

func (f *Flow) expect(step Step) error {
	if f.Step != step {
		return f.invalid(fmt.Sprintf("requires %s", step))
	}
	return nil
}

func (f *Flow) invalid(action string) error {
	return NewValidationError(KindInvalidTransition, fmt.Sprintf("acción no válida en el paso %s (%s)", f.Step, action))
}
