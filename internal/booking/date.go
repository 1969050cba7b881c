package booking

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar date without time-of-day. The backend serializes dates
// inconsistently, so every representation is folded into this type when it is
// decoded and compared only in this form afterwards.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in its own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate normalizes the date shapes the backend emits:
// "2024-01-03", "2024-01-03T00:00:00.000Z", "2024-01-03T09:00:00" and the
// display form "03/01/2024". A datetime is reduced to the date written in the
// string; it is never shifted through another time zone.
func ParseDate(raw string) (Date, error) {
	s := strings.TrimSpace(raw)
	if len(s) >= len(dateLayout) && s[4] == '-' && s[7] == '-' {
		t, err := time.Parse(dateLayout, s[:len(dateLayout)])
		if err != nil {
			return Date{}, fmt.Errorf("booking: parse date %q: %w", raw, err)
		}
		return DateOf(t), nil
	}
	if t, err := time.Parse("02/01/2006", s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, fmt.Errorf("booking: unrecognized date %q", raw)
}

// IsZero reports an unset date.
func (d Date) IsZero() bool { return d == Date{} }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Before orders dates chronologically.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// At combines the date with a time-of-day into one instant in loc.
func (d Date) At(c Clock, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, c.Hour(), c.Minute(), 0, 0, loc)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*d = Date{}
		return nil
	}
	// Epoch milliseconds, as a JS Date sometimes ends up on the wire.
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = DateOf(time.UnixMilli(ms).UTC())
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("booking: decode date: %w", err)
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		// An unreadable date decodes as unset so one odd record does not fail
		// a whole listing; callers drop undated appointments.
		*d = Date{}
		return nil
	}
	*d = parsed
	return nil
}

// Clock is a time-of-day in 24-hour HH:MM form.
type Clock struct {
	hour   int
	minute int
	valid  bool
}

// NewClock builds a Clock. Out-of-range values yield the zero Clock.
func NewClock(hour, minute int) Clock {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Clock{}
	}
	return Clock{hour: hour, minute: minute, valid: true}
}

// ParseClock accepts "9:00", "09:00" and "09:00:00".
func ParseClock(raw string) (Clock, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewClock(t.Hour(), t.Minute()), nil
		}
	}
	return Clock{}, fmt.Errorf("booking: unrecognized time %q", raw)
}

// MustClock parses a literal and panics on malformed input.
func MustClock(raw string) Clock {
	c, err := ParseClock(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// Hour returns the hour component.
func (c Clock) Hour() int { return c.hour }

// Minute returns the minute component.
func (c Clock) Minute() int { return c.minute }

// IsZero reports an unset time.
func (c Clock) IsZero() bool { return !c.valid }

// Minutes returns minutes since midnight, used for ordering.
func (c Clock) Minutes() int { return c.hour*60 + c.minute }

func (c Clock) String() string {
	if !c.valid {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", c.hour, c.minute)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	if !c.valid {
		return []byte("null"), nil
	}
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*c = Clock{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("booking: decode time: %w", err)
	}
	parsed, err := ParseClock(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
