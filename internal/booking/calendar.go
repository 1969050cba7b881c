package booking

import (
	"math"
	"time"
)

// LeadTime is the minimum gap between now and a bookable or cancellable turno.
const LeadTime = 48 * time.Hour

// CardDiscount is the reduction applied on the card/debit payment path.
const CardDiscount = 0.15

// dailySlots is the fixed grid offered every day. 13:00 is the lunch gap.
var dailySlots = []Clock{
	NewClock(9, 0),
	NewClock(10, 0),
	NewClock(11, 0),
	NewClock(12, 0),
	NewClock(14, 0),
	NewClock(15, 0),
	NewClock(16, 0),
	NewClock(17, 0),
}

// Rules carries the tunables of the booking rules. The zero value is not
// useful; start from DefaultRules.
type Rules struct {
	LeadTime     time.Duration
	CardDiscount float64
	Location     *time.Location
}

// DefaultRules returns the production rules in UTC. Callers set Location to
// the business time zone.
func DefaultRules() Rules {
	return Rules{
		LeadTime:     LeadTime,
		CardDiscount: CardDiscount,
		Location:     time.UTC,
	}
}

func (r Rules) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// CardTotal applies the card discount to a day total, rounded to cents.
func (r Rules) CardTotal(total float64) float64 {
	return math.Round(total*(1-r.CardDiscount)*100) / 100
}

// GenerateSlots returns the daily slot grid in order. The caller owns the slice.
func GenerateSlots() []Clock {
	out := make([]Clock, len(dailySlots))
	copy(out, dailySlots)
	return out
}

// SatisfiesLeadTime reports whether date+at, taken in loc, is strictly later
// than now+minLead. An instant exactly on the boundary does not satisfy it.
func SatisfiesLeadTime(date Date, at Clock, now time.Time, minLead time.Duration, loc *time.Location) bool {
	instant := date.At(at, loc)
	return instant.After(now.Add(minLead))
}

// SatisfiesLeadTime is the rules-bound form used by the rest of the package.
func (r Rules) SatisfiesLeadTime(date Date, at Clock, now time.Time) bool {
	return SatisfiesLeadTime(date, at, now, r.LeadTime, r.location())
}
