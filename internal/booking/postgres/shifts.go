package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
)

// GetShift implements booking.ShiftRepository.
func (s *Store) GetShift(ctx context.Context, staffID uuid.UUID, date time.Time) (*booking.StaffShift, error) {
	var sh booking.StaffShift
	var shiftType, status string
	err := s.db.QueryRow(ctx, `
		SELECT id, staff_id, shift_date, shift_type, status, start_hour, end_hour
		FROM staff_shifts
		WHERE staff_id = $1 AND shift_date = $2
		ORDER BY created_at
		LIMIT 1`, staffID, booking.DateOnly(date)).Scan(
		&sh.ID, &sh.StaffID, &sh.Date, &shiftType, &status, &sh.Hours.Start, &sh.Hours.End,
	)
	if err != nil {
		return nil, notFound(err, "get shift")
	}
	sh.ShiftType = booking.ShiftType(shiftType)
	sh.Status = booking.ShiftStatus(status)
	return &sh, nil
}

// CreateShift implements booking.ShiftRepository.
func (s *Store) CreateShift(ctx context.Context, sh *booking.StaffShift) error {
	if sh.ID == uuid.Nil {
		sh.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO staff_shifts (id, staff_id, shift_date, shift_type, status, start_hour, end_hour)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sh.ID, sh.StaffID, booking.DateOnly(sh.Date), string(sh.ShiftType), string(sh.Status),
		sh.Hours.Start, sh.Hours.End,
	)
	if err != nil {
		return fmt.Errorf("postgres: create shift: %w", err)
	}
	return nil
}

// UpdateShiftHours implements booking.ShiftRepository.
func (s *Store) UpdateShiftHours(ctx context.Context, id uuid.UUID, shiftType booking.ShiftType, hours booking.ShiftHours) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE staff_shifts
		SET shift_type = $2, start_hour = $3, end_hour = $4, updated_at = now()
		WHERE id = $1`, id, string(shiftType), hours.Start, hours.End)
	if err != nil {
		return fmt.Errorf("postgres: update shift hours: %w", err)
	}
	return requireAffected(tag.RowsAffected(), "update shift hours")
}
