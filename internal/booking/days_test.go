package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func priced(a Appointment, price float64) Appointment {
	a.Service = Populated(a.Service.ID(), Service{ID: a.Service.ID(), Name: "svc", Price: price})
	return a
}

func TestGroupByDateIsPartition(t *testing.T) {
	appts := []Appointment{
		appt("a1", "svc-1", "2024-02-01", "15:00", StatusPending),
		appt("a2", "svc-1", "2024-02-02", "09:00", StatusPending),
		appt("a3", "svc-2", "2024-02-01", "09:00", StatusCancelled),
		appt("a4", "svc-2", "2024-02-01", "11:00", StatusConfirmed),
	}

	groups := GroupByDate(appts)

	seen := map[string]int{}
	total := 0
	for date, list := range groups {
		for _, a := range list {
			seen[a.ID]++
			total++
			assert.Equal(t, date, a.Date)
		}
	}
	assert.Equal(t, len(appts), total)
	for _, a := range appts {
		assert.Equal(t, 1, seen[a.ID])
	}

	feb1 := groups[mustDate(t, "2024-02-01")]
	require.Len(t, feb1, 3)
	assert.Equal(t, []string{"a3", "a4", "a1"}, []string{feb1[0].ID, feb1[1].ID, feb1[2].ID})
	assert.Equal(t, "a1", appts[0].ID, "input order must be untouched")
}

func TestDayTotalOnlyCountsPending(t *testing.T) {
	day := []Appointment{
		priced(appt("a1", "svc-1", "2024-02-01", "09:00", StatusPending), 100),
		priced(appt("a2", "svc-2", "2024-02-01", "10:00", StatusCancelled), 50),
	}
	assert.Equal(t, 100.0, DayTotal(day))
}

func TestDayTotalSkipsUnpopulatedServices(t *testing.T) {
	day := []Appointment{
		priced(appt("a1", "svc-1", "2024-02-01", "09:00", StatusPending), 80),
		appt("a2", "svc-2", "2024-02-01", "10:00", StatusPending),
	}
	assert.Equal(t, 80.0, DayTotal(day))
}

func TestIsDiscountEligible(t *testing.T) {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	rules := DefaultRules()

	t.Run("no pending appointments", func(t *testing.T) {
		day := []Appointment{appt("a1", "svc-1", "2024-02-10", "09:00", StatusCancelled)}
		assert.False(t, IsDiscountEligible(day, now, rules))
		assert.False(t, IsDiscountEligible(nil, now, rules))
	})

	t.Run("all pending far enough ahead", func(t *testing.T) {
		day := []Appointment{
			appt("a1", "svc-1", "2024-02-10", "09:00", StatusPending),
			appt("a2", "svc-1", "2024-02-10", "10:00", StatusPending),
			appt("a3", "svc-1", "2024-02-10", "11:00", StatusCancelled),
		}
		assert.True(t, IsDiscountEligible(day, now, rules))
	})

	t.Run("one pending inside lead time", func(t *testing.T) {
		day := []Appointment{
			appt("a1", "svc-1", "2024-02-03", "00:00", StatusPending),
			appt("a2", "svc-1", "2024-02-03", "10:00", StatusPending),
		}
		assert.False(t, IsDiscountEligible(day, now, rules))
	})
}

func TestDaysSummaries(t *testing.T) {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	appts := []Appointment{
		priced(appt("a1", "svc-1", "2024-02-10", "10:00", StatusPending), 100),
		priced(appt("a2", "svc-1", "2024-02-02", "09:00", StatusPending), 40),
		priced(appt("a3", "svc-1", "2024-02-10", "09:00", StatusPending), 100),
	}

	days := Days(appts, now, DefaultRules())
	require.Len(t, days, 2)

	assert.Equal(t, "2024-02-02", days[0].Date.String())
	assert.False(t, days[0].DiscountEligible)
	assert.Equal(t, 40.0, days[0].CardTotal)

	assert.Equal(t, "2024-02-10", days[1].Date.String())
	assert.Equal(t, 200.0, days[1].Total)
	assert.True(t, days[1].DiscountEligible)
	assert.Equal(t, 170.0, days[1].CardTotal)
	assert.Equal(t, "a3", days[1].Appointments[0].ID)
}

func TestCheckCancel(t *testing.T) {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	rules := DefaultRules()

	assert.NoError(t, CheckCancel(appt("a1", "svc-1", "2024-02-05", "09:00", StatusConfirmed), now, rules))

	err := CheckCancel(appt("a2", "svc-1", "2024-02-02", "09:00", StatusPending), now, rules)
	ve, ok := IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, KindLeadTime, ve.Kind)

	err = CheckCancel(appt("a3", "svc-1", "2024-02-05", "09:00", StatusCancelled), now, rules)
	ve, ok = IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, KindNotCancellable, ve.Kind)
}
