package booking

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Day is the per-date view of a client's appointments used by the
// "my appointments" screen and the payment actions.
type Day struct {
	Date             Date          `json:"date"`
	Appointments     []Appointment `json:"appointments"`
	Total            float64       `json:"total"`
	DiscountEligible bool          `json:"discount_eligible"`
	CardTotal        float64       `json:"card_total"`
}

// GroupByDate buckets appointments by their normalized date. Each bucket is
// ordered by time of day; appointments with the same time keep input order.
// Appointments without a readable date are left out.
func GroupByDate(appts []Appointment) map[Date][]Appointment {
	groups := make(map[Date][]Appointment)
	for _, a := range appts {
		if a.Date.IsZero() {
			continue
		}
		groups[a.Date] = append(groups[a.Date], a)
	}
	for _, day := range groups {
		sort.SliceStable(day, func(i, j int) bool {
			return day[i].Time.Minutes() < day[j].Time.Minutes()
		})
	}
	return groups
}

// Days returns one summary per date, oldest first.
func Days(appts []Appointment, now time.Time, rules Rules) []Day {
	groups := GroupByDate(appts)
	days := make([]Day, 0, len(groups))
	for date, list := range groups {
		total := DayTotal(list)
		day := Day{
			Date:             date,
			Appointments:     list,
			Total:            total,
			DiscountEligible: IsDiscountEligible(list, now, rules),
		}
		if day.DiscountEligible {
			day.CardTotal = rules.CardTotal(total)
		} else {
			day.CardTotal = total
		}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	return days
}

// Pending returns the pending appointments of a day, in input order.
func Pending(day []Appointment) []Appointment {
	var out []Appointment
	for _, a := range day {
		if a.Status == StatusPending {
			out = append(out, a)
		}
	}
	return out
}

// DayTotal sums service prices of pending appointments only. Appointments
// whose service reference is unpopulated contribute nothing.
func DayTotal(day []Appointment) float64 {
	var total float64
	for _, a := range Pending(day) {
		if svc, ok := a.Service.Value(); ok {
			total += svc.Price
		}
	}
	return math.Round(total*100) / 100
}

// IsDiscountEligible reports whether every pending appointment of the day
// still satisfies the lead-time rule. A day with nothing pending is never
// eligible.
func IsDiscountEligible(day []Appointment, now time.Time, rules Rules) bool {
	pending := Pending(day)
	if len(pending) == 0 {
		return false
	}
	for _, a := range pending {
		if !rules.SatisfiesLeadTime(a.Date, a.Time, now) {
			return false
		}
	}
	return true
}

// CheckCancel returns a validation error when a client may no longer cancel
// the appointment.
func CheckCancel(a Appointment, now time.Time, rules Rules) error {
	if a.Status != StatusPending && a.Status != StatusConfirmed {
		return NewValidationError(KindNotCancellable, "Este turno ya no se puede cancelar.")
	}
	if !rules.SatisfiesLeadTime(a.Date, a.Time, now) {
		return NewValidationError(KindLeadTime, fmt.Sprintf("Los turnos solo pueden cancelarse con más de %d horas de anticipación.", int(rules.LeadTime.Hours())))
	}
	return nil
}
