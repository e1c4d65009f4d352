package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/database"
)

const appointmentColumns = `id, client_id, therapist_id, service_id, appointment_date, appointment_time,
	status, payment_status, promotion_id, booking_group_id, notes, created_at, updated_at`

// GetAppointment implements booking.AppointmentRepository.
func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (*booking.Appointment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	a, err := scanAppointment(row)
	if err != nil {
		return nil, notFound(err, "get appointment")
	}
	return a, nil
}

// CreateAppointment implements booking.AppointmentRepository.
func (s *Store) CreateAppointment(ctx context.Context, a *booking.Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = booking.StatusPending
	}
	if a.PaymentStatus == "" {
		a.PaymentStatus = booking.Unpaid
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.ClientID, a.TherapistID, a.ServiceID, booking.DateOnly(a.Date), a.Time,
		string(a.Status), string(a.PaymentStatus), a.PromotionID, a.BookingGroupID, a.Notes,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("postgres: create appointment: %w", booking.ErrSlotTaken)
		}
		return fmt.Errorf("postgres: create appointment: %w", err)
	}
	return nil
}

// UpdateAppointmentStatus implements booking.AppointmentRepository.
func (s *Store) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status booking.AppointmentStatus, therapistID *uuid.UUID) (*booking.Appointment, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2, therapist_id = COALESCE($3, therapist_id), updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id, string(status), therapistID)
	a, err := scanAppointment(row)
	if err != nil {
		return nil, notFound(err, "update appointment status")
	}
	return a, nil
}

// UpdateAppointmentSchedule implements booking.AppointmentRepository.
func (s *Store) UpdateAppointmentSchedule(ctx context.Context, id uuid.UUID, date time.Time, clock string, therapistID *uuid.UUID, status booking.AppointmentStatus) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET appointment_date = $2, appointment_time = $3, therapist_id = COALESCE($4, therapist_id),
		    status = $5, updated_at = now()
		WHERE id = $1`, id, booking.DateOnly(date), clock, therapistID, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update appointment schedule: %w", err)
	}
	return requireAffected(tag.RowsAffected(), "update appointment schedule")
}

// SetAppointmentsPayment implements booking.AppointmentRepository.
func (s *Store) SetAppointmentsPayment(ctx context.Context, ids []uuid.UUID, payment booking.PaymentStatus, status *booking.AppointmentStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET payment_status = $2, status = COALESCE($3, status), updated_at = now()
		WHERE id = ANY($1)`, ids, string(payment), statusArg)
	if err != nil {
		return 0, fmt.Errorf("postgres: set appointments payment: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListAppointmentsByGroup implements booking.AppointmentRepository.
func (s *Store) ListAppointmentsByGroup(ctx context.Context, groupIDs []string) ([]booking.Appointment, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE booking_group_id = ANY($1)
		ORDER BY appointment_date, appointment_time, id`, groupIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: list appointments by group: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListAppointmentsByGroupFragment implements booking.AppointmentRepository.
func (s *Store) ListAppointmentsByGroupFragment(ctx context.Context, fragment string, clientID uuid.UUID) ([]booking.Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE booking_group_id LIKE '%' || $1 || '%' AND client_id = $2
		ORDER BY appointment_date, appointment_time, id`, fragment, clientID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list appointments by group fragment: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListBusyStaff implements booking.AppointmentRepository.
func (s *Store) ListBusyStaff(ctx context.Context, date time.Time, clock string) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT therapist_id
		FROM appointments
		WHERE appointment_date = $1 AND appointment_time = $2
		  AND therapist_id IS NOT NULL
		  AND status NOT IN ('cancelled', 'completed')`, booking.DateOnly(date), clock)
	if err != nil {
		return nil, fmt.Errorf("postgres: list busy staff: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan busy staff: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// StaffBookedAt implements booking.AppointmentRepository.
func (s *Store) StaffBookedAt(ctx context.Context, staffID uuid.UUID, date time.Time, clock string, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE therapist_id = $1 AND appointment_date = $2 AND appointment_time = $3
			  AND status NOT IN ('cancelled', 'completed') AND id <> $4
		)`, staffID, booking.DateOnly(date), clock, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: staff booked at: %w", err)
	}
	return exists, nil
}

// CountCompletedVisits implements booking.AppointmentRepository.
func (s *Store) CountCompletedVisits(ctx context.Context, clientID, staffID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE client_id = $1 AND therapist_id = $2 AND status = 'completed'`, clientID, staffID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count completed visits: %w", err)
	}
	return n, nil
}

// CountStaffDayLoad implements booking.AppointmentRepository.
func (s *Store) CountStaffDayLoad(ctx context.Context, staffID uuid.UUID, date time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE therapist_id = $1 AND appointment_date = $2 AND status <> 'cancelled'`, staffID, booking.DateOnly(date)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count staff day load: %w", err)
	}
	return n, nil
}

func scanAppointment(row pgx.Row) (*booking.Appointment, error) {
	var a booking.Appointment
	var status, payment string
	if err := row.Scan(
		&a.ID, &a.ClientID, &a.TherapistID, &a.ServiceID, &a.Date, &a.Time,
		&status, &payment, &a.PromotionID, &a.BookingGroupID, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Status = booking.AppointmentStatus(status)
	a.PaymentStatus = booking.PaymentStatus(payment)
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]booking.Appointment, error) {
	var result []booking.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan appointment: %w", err)
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}
