package shifts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		clock string
		want  Classification
	}{
		{"09:00", Classification{booking.ShiftMorning, booking.ShiftHours{Start: 9, End: 16}}},
		{"15:59", Classification{booking.ShiftMorning, booking.ShiftHours{Start: 9, End: 16}}},
		{"16:00", Classification{booking.ShiftAfternoon, booking.ShiftHours{Start: 16, End: 22}}},
		{"21:30", Classification{booking.ShiftAfternoon, booking.ShiftHours{Start: 16, End: 22}}},
		{"22:00", Classification{booking.ShiftEvening, booking.ShiftHours{Start: 22, End: 22}}},
		{"23:15", Classification{booking.ShiftEvening, booking.ShiftHours{Start: 23, End: 22}}},
		{"00:00", Classification{booking.ShiftEvening, booking.ShiftHours{Start: 9, End: 4}}},
		{"06:00", Classification{booking.ShiftEvening, booking.ShiftHours{Start: 9, End: 10}}},
		{"08:30", Classification{booking.ShiftEvening, booking.ShiftHours{Start: 9, End: 12}}},
		{"9:5", Classification{booking.ShiftCustom, booking.ShiftHours{Start: 9, End: 13}}},
		{"later", Classification{booking.ShiftCustom, booking.ShiftHours{Start: 9, End: 4}}},
		{"", Classification{booking.ShiftCustom, booking.ShiftHours{Start: 9, End: 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.clock, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.clock))
		})
	}
}

func TestCoveringHours(t *testing.T) {
	assert.Equal(t, booking.ShiftHours{Start: 9, End: 16}, CoveringHours("10:00", 10))
	assert.Equal(t, booking.ShiftHours{Start: 8, End: 12}, CoveringHours("08:30", 8))
	assert.Equal(t, booking.ShiftHours{Start: 23, End: 24}, CoveringHours("23:15", 23))
}
