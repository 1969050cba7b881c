package booking

import "time"

// Availability splits a slot grid for one service and date. The three lists
// are disjoint, keep the order of the input grid, and together hold every
// input slot.
type Availability struct {
	Date              Date    `json:"date"`
	ServiceID         string  `json:"service_id"`
	Available         []Clock `json:"available"`
	BlockedByLeadTime []Clock `json:"blocked_by_lead_time"`
	Occupied          []Clock `json:"occupied"`
}

// FilterAvailable partitions allSlots first by the lead-time rule and then,
// among the slots that pass it, by occupancy: a slot is occupied when a
// non-cancelled appointment for the same service sits on the same date and
// time. Neither allSlots nor booked is modified.
func FilterAvailable(allSlots []Clock, date Date, serviceID string, booked []Appointment, now time.Time, rules Rules) Availability {
	result := Availability{
		Date:              date,
		ServiceID:         serviceID,
		Available:         []Clock{},
		BlockedByLeadTime: []Clock{},
		Occupied:          []Clock{},
	}

	taken := occupiedTimes(date, serviceID, booked)
	for _, slot := range allSlots {
		switch {
		case !rules.SatisfiesLeadTime(date, slot, now):
			result.BlockedByLeadTime = append(result.BlockedByLeadTime, slot)
		case taken[slot]:
			result.Occupied = append(result.Occupied, slot)
		default:
			result.Available = append(result.Available, slot)
		}
	}
	return result
}

// IsOccupied reports whether a single slot is taken in booked.
func IsOccupied(date Date, at Clock, serviceID string, booked []Appointment) bool {
	return occupiedTimes(date, serviceID, booked)[at]
}

func occupiedTimes(date Date, serviceID string, booked []Appointment) map[Clock]bool {
	taken := make(map[Clock]bool)
	for _, a := range booked {
		if !a.Status.Active() {
			continue
		}
		if a.Date.IsZero() || a.Date != date || a.Service.ID() != serviceID || a.Time.IsZero() {
			continue
		}
		taken[a.Time] = true
	}
	return taken
}

// Contains reports whether slot is in the available list.
func (a Availability) Contains(slot Clock) bool {
	for _, s := range a.Available {
		if s == slot {
			return true
		}
	}
	return false
}
