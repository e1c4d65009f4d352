package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an appointment, course, session, payment or other record is missing.
	ErrNotFound = errors.New("not found")

	// ErrValidation is the parent of every input validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a status change is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrSlotTaken is returned when a staff member already holds an active appointment at the slot.
	ErrSlotTaken = errors.New("staff already booked for this slot")
)

var (
	ErrMissingField   = fmt.Errorf("%w: missing required field", ErrValidation)
	ErrUnknownService = fmt.Errorf("%w: unknown service", ErrValidation)
	ErrInvalidStatus  = fmt.Errorf("%w: invalid status", ErrValidation)
	ErrInvalidTime    = fmt.Errorf("%w: invalid date or time", ErrValidation)
)

// MissingField wraps ErrMissingField with the field name.
func MissingField(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, name)
}
