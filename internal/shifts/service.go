package shifts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

// Service maintains staff shifts for accepted appointments.
type Service struct {
	repo   booking.ShiftRepository
	logger *logging.Logger
}

func NewService(repo booking.ShiftRepository, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// EnsureCovering makes sure the staff member has a shift on date covering
// clock. A missing shift is created auto-approved; a shift that does not
// cover the hour is widened and becomes custom. Shifts never shrink and
// leave days are left untouched.
func (s *Service) EnsureCovering(ctx context.Context, staffID uuid.UUID, date time.Time, clock string) error {
	hour, ok := booking.ParseClock(clock)
	if !ok {
		return fmt.Errorf("shifts: ensure covering: %q: %w", clock, booking.ErrInvalidTime)
	}
	target := CoveringHours(clock, hour)

	existing, err := s.repo.GetShift(ctx, staffID, date)
	if errors.Is(err, booking.ErrNotFound) {
		shift := &booking.StaffShift{
			StaffID:   staffID,
			Date:      booking.DateOnly(date),
			ShiftType: Classify(clock).Type,
			Status:    booking.ShiftApproved,
			Hours:     target,
		}
		if err := s.repo.CreateShift(ctx, shift); err != nil {
			return fmt.Errorf("shifts: create: %w", err)
		}
		s.logger.Info("shifts: created shift for appointment",
			"staff_id", staffID,
			"date", shift.Date.Format(time.DateOnly),
			"shift_type", shift.ShiftType,
			"start", target.Start,
			"end", target.End,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("shifts: get: %w", err)
	}

	if existing.ShiftType == booking.ShiftLeave {
		s.logger.Warn("shifts: appointment accepted on leave day",
			"staff_id", staffID,
			"date", booking.DateOnly(date).Format(time.DateOnly),
			"time", clock,
		)
		return nil
	}
	if existing.Hours.Start < existing.Hours.End && existing.Hours.Covers(hour) {
		return nil
	}

	widened := target
	if existing.Hours.Start < existing.Hours.End {
		widened = union(existing.Hours, target)
	}
	if err := s.repo.UpdateShiftHours(ctx, existing.ID, booking.ShiftCustom, widened); err != nil {
		return fmt.Errorf("shifts: widen: %w", err)
	}
	s.logger.Info("shifts: widened shift",
		"staff_id", staffID,
		"shift_id", existing.ID,
		"old_start", existing.Hours.Start,
		"old_end", existing.Hours.End,
		"start", widened.Start,
		"end", widened.End,
	)
	return nil
}
