// Package shifts classifies appointment times into shift bands and keeps
// staff shifts wide enough to cover accepted appointments.
package shifts

import (
	"strconv"
	"strings"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
)

// Classification is the band and hour range for a clock time.
type Classification struct {
	Type  booking.ShiftType  `json:"type"`
	Hours booking.ShiftHours `json:"hours"`
}

const (
	morningStart   = 9
	afternoonStart = 16
	eveningStart   = 22
	eveningSpan    = 4
)

// Classify maps an HH:MM time to a shift band.
//
// Evening and custom hours are clamped to [max(9,h), min(22,h+4)]. For late
// night and early morning hours that range is inverted (Start > End) and
// covers no hour; callers that need coverage use CoveringHours.
func Classify(clock string) Classification {
	hour, ok := booking.ParseClock(clock)
	if !ok {
		return Classification{Type: booking.ShiftCustom, Hours: clamp(leadingHour(clock))}
	}
	switch {
	case hour >= morningStart && hour < afternoonStart:
		return Classification{Type: booking.ShiftMorning, Hours: booking.ShiftHours{Start: morningStart, End: afternoonStart}}
	case hour >= afternoonStart && hour < eveningStart:
		return Classification{Type: booking.ShiftAfternoon, Hours: booking.ShiftHours{Start: afternoonStart, End: eveningStart}}
	default:
		return Classification{Type: booking.ShiftEvening, Hours: clamp(hour)}
	}
}

// CoveringHours returns the classified range for clock extended so that it
// includes the appointment hour itself.
func CoveringHours(clock string, hour int) booking.ShiftHours {
	h := Classify(clock).Hours
	slot := booking.ShiftHours{Start: hour, End: hour + 1}
	if h.Start >= h.End {
		return slot
	}
	return union(h, slot)
}

func clamp(h int) booking.ShiftHours {
	return booking.ShiftHours{
		Start: max(morningStart, h),
		End:   min(eveningStart, h+eveningSpan),
	}
}

func union(a, b booking.ShiftHours) booking.ShiftHours {
	return booking.ShiftHours{Start: min(a.Start, b.Start), End: max(a.End, b.End)}
}

// leadingHour extracts the hour of a loosely formatted time such as "9:5".
// Anything without a usable hour yields 0.
func leadingHour(clock string) int {
	head, _, _ := strings.Cut(strings.TrimSpace(clock), ":")
	h, err := strconv.Atoi(head)
	if err != nil || h < 0 || h > 23 {
		return 0
	}
	return h
}
