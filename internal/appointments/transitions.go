// Package appointments creates appointments and drives their status
// lifecycle.
package appointments

import "github.com/wolfman30/spa-booking-engine/internal/booking"

// CanTransition reports whether an appointment may move from one status to
// another. Completed is terminal and a cancelled appointment may only be
// reopened as pending.
func CanTransition(from, to booking.AppointmentStatus) bool {
	if !to.Valid() {
		return false
	}
	switch from {
	case booking.StatusCompleted:
		return false
	case booking.StatusCancelled:
		return to == booking.StatusPending
	case booking.StatusInProgress:
		return to == booking.StatusCompleted || to == booking.StatusCancelled
	}
	return from.Valid()
}

func isAcceptance(before, after booking.AppointmentStatus) bool {
	return before == booking.StatusPending &&
		(after == booking.StatusScheduled || after == booking.StatusUpcoming)
}

func isCancellation(before, after booking.AppointmentStatus) bool {
	return after == booking.StatusCancelled &&
		(before == booking.StatusScheduled || before == booking.StatusUpcoming)
}
