package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, raw string) Date {
	t.Helper()
	d, err := ParseDate(raw)
	require.NoError(t, err)
	return d
}

func TestGenerateSlotsFixedGrid(t *testing.T) {
	slots := GenerateSlots()
	got := make([]string, 0, len(slots))
	for _, s := range slots {
		got = append(got, s.String())
	}
	assert.Equal(t, []string{"09:00", "10:00", "11:00", "12:00", "14:00", "15:00", "16:00", "17:00"}, got)

	// Callers may mutate their copy without touching the grid.
	slots[0] = NewClock(8, 0)
	assert.Equal(t, "09:00", GenerateSlots()[0].String())
}

func TestSatisfiesLeadTimeBoundaryIsExclusive(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	date := mustDate(t, "2024-01-03")

	assert.False(t, SatisfiesLeadTime(date, MustClock("09:00"), now, LeadTime, time.UTC), "exactly now+48h must not satisfy")
	assert.True(t, SatisfiesLeadTime(date, MustClock("10:00"), now, LeadTime, time.UTC))
	assert.False(t, SatisfiesLeadTime(date, MustClock("08:00"), now, LeadTime, time.UTC))

	justAfter := now.Add(-time.Nanosecond)
	assert.True(t, SatisfiesLeadTime(date, MustClock("09:00"), justAfter, LeadTime, time.UTC))
}

func TestSatisfiesLeadTimeUsesBusinessLocation(t *testing.T) {
	loc := time.FixedZone("ART", -3*60*60)
	// 2024-01-03 09:00 ART is 12:00 UTC.
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	date := mustDate(t, "2024-01-03")

	assert.False(t, SatisfiesLeadTime(date, MustClock("09:00"), now, LeadTime, loc))
	assert.False(t, SatisfiesLeadTime(date, MustClock("10:00"), now, LeadTime, time.UTC))
	assert.True(t, SatisfiesLeadTime(date, MustClock("10:00"), now, LeadTime, loc))
}

func TestRulesCardTotal(t *testing.T) {
	r := DefaultRules()
	assert.Equal(t, 85.0, r.CardTotal(100))
	assert.Equal(t, 170.0, r.CardTotal(200))
	assert.Equal(t, 0.0, r.CardTotal(0))
}
