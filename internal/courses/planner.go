// Package courses plans treatment courses and keeps them in step with the
// appointments materialized from their sessions.
package courses

import (
	"fmt"
	"time"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
)

// DefaultSessionTime is the placeholder time for sessions after the first.
const DefaultSessionTime = "09:00"

const maxSessionsPerWeek = 7

// PlanInput describes a course to expand into sessions.
type PlanInput struct {
	StartDate      time.Time
	StartTime      string
	TotalSessions  int
	DurationWeeks  int // zero means TotalSessions+1
	FrequencyType  booking.FrequencyType
	FrequencyValue int
	// PlaceholderTime overrides DefaultSessionTime when set.
	PlaceholderTime string
}

// PlannedSession is one dated session of a plan.
type PlannedSession struct {
	Number int       `json:"session_number"`
	Date   time.Time `json:"session_date"`
	Time   string    `json:"session_time"`
}

// Plan is the expanded schedule of a course.
type Plan struct {
	StartDate     time.Time        `json:"start_date"`
	DurationWeeks int              `json:"duration_weeks"`
	ExpiryDate    time.Time        `json:"expiry_date"`
	Sessions      []PlannedSession `json:"sessions"`
}

// PlanSessions expands in into dated sessions. The result depends only on in.
func PlanSessions(in PlanInput) (Plan, error) {
	if in.TotalSessions < 1 {
		return Plan{}, fmt.Errorf("courses: plan: total sessions must be at least 1: %w", booking.ErrValidation)
	}
	if in.DurationWeeks < 0 {
		return Plan{}, fmt.Errorf("courses: plan: duration weeks must not be negative: %w", booking.ErrValidation)
	}
	if _, ok := booking.ParseClock(in.StartTime); !ok {
		return Plan{}, fmt.Errorf("courses: plan: start time %q: %w", in.StartTime, booking.ErrInvalidTime)
	}
	placeholder := DefaultSessionTime
	if in.PlaceholderTime != "" {
		if _, ok := booking.ParseClock(in.PlaceholderTime); !ok {
			return Plan{}, fmt.Errorf("courses: plan: placeholder time %q: %w", in.PlaceholderTime, booking.ErrInvalidTime)
		}
		placeholder = in.PlaceholderTime
	}

	weeks := in.DurationWeeks
	if weeks == 0 {
		weeks = in.TotalSessions + 1
	}

	var stepDays int
	switch in.FrequencyType {
	case booking.FrequencySessionsPerWeek:
		if in.FrequencyValue < 1 || in.FrequencyValue > maxSessionsPerWeek {
			return Plan{}, fmt.Errorf("courses: plan: sessions per week must be 1-%d: %w", maxSessionsPerWeek, booking.ErrValidation)
		}
		stepDays = 7 / in.FrequencyValue
	case booking.FrequencyWeeksPerSession:
		if in.FrequencyValue < 1 {
			return Plan{}, fmt.Errorf("courses: plan: weeks per session must be at least 1: %w", booking.ErrValidation)
		}
		stepDays = in.FrequencyValue * 7
	case booking.FrequencyNone:
		stepDays = weeks * 7 / in.TotalSessions
	default:
		return Plan{}, fmt.Errorf("courses: plan: unknown frequency type %q: %w", in.FrequencyType, booking.ErrValidation)
	}

	start := booking.DateOnly(in.StartDate)
	plan := Plan{
		StartDate:     start,
		DurationWeeks: weeks,
		ExpiryDate:    start.AddDate(0, 0, weeks*7),
		Sessions:      make([]PlannedSession, in.TotalSessions),
	}
	for i := range plan.Sessions {
		clock := placeholder
		if i == 0 {
			clock = in.StartTime
		}
		plan.Sessions[i] = PlannedSession{
			Number: i + 1,
			Date:   start.AddDate(0, 0, i*stepDays),
			Time:   clock,
		}
	}
	return plan, nil
}
