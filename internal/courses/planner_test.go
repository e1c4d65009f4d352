package courses

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
)

func dates(p Plan) []string {
	out := make([]string, len(p.Sessions))
	for i, s := range p.Sessions {
		out[i] = s.Date.Format(time.DateOnly)
	}
	return out
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := booking.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestPlanWeeksPerSession(t *testing.T) {
	plan, err := PlanSessions(PlanInput{
		StartDate:      mustDate(t, "2025-01-01"),
		StartTime:      "14:30",
		TotalSessions:  4,
		FrequencyType:  booking.FrequencyWeeksPerSession,
		FrequencyValue: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-01", "2025-01-15", "2025-01-29", "2025-02-12"}, dates(plan))
	assert.Equal(t, "14:30", plan.Sessions[0].Time)
	assert.Equal(t, DefaultSessionTime, plan.Sessions[3].Time)
	assert.Equal(t, 5, plan.DurationWeeks)
	assert.Equal(t, "2025-02-05", plan.ExpiryDate.Format(time.DateOnly))
}

func TestPlanSessionsPerWeekIsDeterministic(t *testing.T) {
	in := PlanInput{
		StartDate:      mustDate(t, "2025-03-03"),
		StartTime:      "10:00",
		TotalSessions:  6,
		FrequencyType:  booking.FrequencySessionsPerWeek,
		FrequencyValue: 2,
	}
	first, err := PlanSessions(in)
	require.NoError(t, err)
	second, err := PlanSessions(in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"2025-03-03", "2025-03-06", "2025-03-09", "2025-03-12", "2025-03-15", "2025-03-18"}, dates(first))
}

func TestPlanDefaultSpread(t *testing.T) {
	plan, err := PlanSessions(PlanInput{
		StartDate:     mustDate(t, "2025-01-01"),
		StartTime:     "09:00",
		TotalSessions: 3,
	})
	require.NoError(t, err)
	// 4 weeks over 3 sessions: floor(28/3) = 9 days apart
	assert.Equal(t, []string{"2025-01-01", "2025-01-10", "2025-01-19"}, dates(plan))
	assert.Equal(t, "2025-01-29", plan.ExpiryDate.Format(time.DateOnly))

	plan, err = PlanSessions(PlanInput{
		StartDate:     mustDate(t, "2025-01-01"),
		StartTime:     "09:00",
		TotalSessions: 2,
		DurationWeeks: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-01", "2025-02-05"}, dates(plan))
}

func TestPlanSingleSession(t *testing.T) {
	plan, err := PlanSessions(PlanInput{StartDate: mustDate(t, "2025-01-01"), StartTime: "11:00", TotalSessions: 1})
	require.NoError(t, err)
	require.Len(t, plan.Sessions, 1)
	assert.Equal(t, PlannedSession{Number: 1, Date: mustDate(t, "2025-01-01"), Time: "11:00"}, plan.Sessions[0])
}

func TestPlanPlaceholderOverride(t *testing.T) {
	plan, err := PlanSessions(PlanInput{
		StartDate: mustDate(t, "2025-01-01"), StartTime: "11:00", TotalSessions: 2, PlaceholderTime: "13:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "13:00", plan.Sessions[1].Time)
}

func TestPlanValidation(t *testing.T) {
	base := PlanInput{StartDate: mustDate(t, "2025-01-01"), StartTime: "09:00", TotalSessions: 3}
	cases := map[string]func(*PlanInput){
		"zero sessions":       func(in *PlanInput) { in.TotalSessions = 0 },
		"negative weeks":      func(in *PlanInput) { in.DurationWeeks = -1 },
		"bad start time":      func(in *PlanInput) { in.StartTime = "9am" },
		"zero per week":       func(in *PlanInput) { in.FrequencyType = booking.FrequencySessionsPerWeek },
		"eight per week":      func(in *PlanInput) { in.FrequencyType, in.FrequencyValue = booking.FrequencySessionsPerWeek, 8 },
		"zero weeks between":  func(in *PlanInput) { in.FrequencyType = booking.FrequencyWeeksPerSession },
		"unknown frequency":   func(in *PlanInput) { in.FrequencyType, in.FrequencyValue = "monthly", 1 },
		"bad placeholder":     func(in *PlanInput) { in.PlaceholderTime = "25:00" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			mutate(&in)
			_, err := PlanSessions(in)
			assert.ErrorIs(t, err, booking.ErrValidation)
		})
	}
}
