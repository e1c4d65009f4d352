package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
)

const courseColumns = `id, service_id, client_id, therapist_id, total_sessions, completed_sessions,
	start_date, duration_weeks, expiry_date, frequency_type, frequency_value, status,
	payment_status, total_amount, notes, created_at, updated_at`

const sessionColumns = `id, course_id, session_number, session_date, session_time, staff_id,
	appointment_id, status, customer_status_notes, admin_notes, completed_at`

// GetCourse implements booking.CourseRepository.
func (s *Store) GetCourse(ctx context.Context, id uuid.UUID) (*booking.TreatmentCourse, error) {
	var c booking.TreatmentCourse
	var freqType, status, payment string
	err := s.db.QueryRow(ctx, `SELECT `+courseColumns+` FROM treatment_courses WHERE id = $1`, id).Scan(
		&c.ID, &c.ServiceID, &c.ClientID, &c.TherapistID, &c.TotalSessions, &c.CompletedSessions,
		&c.StartDate, &c.DurationWeeks, &c.ExpiryDate, &freqType, &c.FrequencyValue, &status,
		&payment, &c.TotalAmount, &c.Notes, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "get course")
	}
	c.FrequencyType = booking.FrequencyType(freqType)
	c.Status = booking.CourseStatus(status)
	c.PaymentStatus = booking.PaymentStatus(payment)
	return &c, nil
}

// CreateCourse implements booking.CourseRepository.
func (s *Store) CreateCourse(ctx context.Context, c *booking.TreatmentCourse) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = booking.CourseActive
	}
	if c.PaymentStatus == "" {
		c.PaymentStatus = booking.Unpaid
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO treatment_courses (`+courseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		c.ID, c.ServiceID, c.ClientID, c.TherapistID, c.TotalSessions, c.CompletedSessions,
		booking.DateOnly(c.StartDate), c.DurationWeeks, booking.DateOnly(c.ExpiryDate),
		string(c.FrequencyType), c.FrequencyValue, string(c.Status), string(c.PaymentStatus),
		c.TotalAmount, c.Notes, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create course: %w", err)
	}
	return nil
}

// UpdateCourseTherapist implements booking.CourseRepository.
func (s *Store) UpdateCourseTherapist(ctx context.Context, id uuid.UUID, therapistID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE treatment_courses SET therapist_id = $2, updated_at = now() WHERE id = $1`, id, therapistID)
	if err != nil {
		return fmt.Errorf("postgres: update course therapist: %w", err)
	}
	return requireAffected(tag.RowsAffected(), "update course therapist")
}

// UpdateCourseStatus implements booking.CourseRepository.
func (s *Store) UpdateCourseStatus(ctx context.Context, id uuid.UUID, status booking.CourseStatus) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE treatment_courses SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update course status: %w", err)
	}
	return requireAffected(tag.RowsAffected(), "update course status")
}

// UpdateCourseProgress implements booking.CourseRepository.
func (s *Store) UpdateCourseProgress(ctx context.Context, id uuid.UUID, completed int, status booking.CourseStatus) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE treatment_courses
		SET completed_sessions = $2, status = $3, updated_at = now()
		WHERE id = $1`, id, completed, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update course progress: %w", err)
	}
	return requireAffected(tag.RowsAffected(), "update course progress")
}

// MarkCoursePaid implements booking.CourseRepository.
func (s *Store) MarkCoursePaid(ctx context.Context, id uuid.UUID, amount int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE treatment_courses
		SET payment_status = 'Paid', total_amount = $2, updated_at = now()
		WHERE id = $1`, id, amount)
	if err != nil {
		return fmt.Errorf("postgres: mark course paid: %w", err)
	}
	return requireAffected(tag.RowsAffected(), "mark course paid")
}

// CreateSession implements booking.CourseRepository.
func (s *Store) CreateSession(ctx context.Context, ts *booking.TreatmentSession) error {
	if ts.ID == uuid.Nil {
		ts.ID = uuid.New()
	}
	if ts.Status == "" {
		ts.Status = booking.SessionScheduled
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO treatment_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ts.ID, ts.CourseID, ts.SessionNumber, booking.DateOnly(ts.SessionDate), ts.SessionTime,
		ts.StaffID, ts.AppointmentID, string(ts.Status), ts.CustomerStatusNotes, ts.AdminNotes,
		ts.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create session: %w", err)
	}
	return nil
}

// ListSessions implements booking.CourseRepository.
func (s *Store) ListSessions(ctx context.Context, courseID uuid.UUID) ([]booking.TreatmentSession, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM treatment_sessions
		WHERE course_id = $1
		ORDER BY session_number`, courseID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sessions: %w", err)
	}
	defer rows.Close()

	var result []booking.TreatmentSession
	for rows.Next() {
		ts, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan session: %w", err)
		}
		result = append(result, *ts)
	}
	return result, rows.Err()
}

// GetSessionByNumber implements booking.CourseRepository.
func (s *Store) GetSessionByNumber(ctx context.Context, courseID uuid.UUID, number int) (*booking.TreatmentSession, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM treatment_sessions
		WHERE course_id = $1 AND session_number = $2`, courseID, number)
	ts, err := scanSession(row)
	if err != nil {
		return nil, notFound(err, "get session by number")
	}
	return ts, nil
}

// FindSessionByAppointment implements booking.CourseRepository.
func (s *Store) FindSessionByAppointment(ctx context.Context, appointmentID uuid.UUID) (*booking.TreatmentSession, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM treatment_sessions
		WHERE appointment_id = $1`, appointmentID)
	ts, err := scanSession(row)
	if err != nil {
		return nil, notFound(err, "find session by appointment")
	}
	return ts, nil
}

// UpdateSessionStaff implements booking.CourseRepository.
func (s *Store) UpdateSessionStaff(ctx context.Context, sessionID uuid.UUID, staffID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `UPDATE treatment_sessions SET staff_id = $2 WHERE id = $1`, sessionID, staffID)
	if err != nil {
		return fmt.Errorf("postgres: update session staff: %w", err)
	}
	return requireAffected(tag.RowsAffected(), "update session staff")
}

// LinkSessionAppointment implements booking.CourseRepository.
func (s *Store) LinkSessionAppointment(ctx context.Context, sessionID uuid.UUID, appointmentID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE treatment_sessions SET appointment_id = $2
		WHERE id = $1 AND (appointment_id IS NULL OR appointment_id = $2)`, sessionID, appointmentID)
	if err != nil {
		return fmt.Errorf("postgres: link session appointment: %w", err)
	}
	return requireAffected(tag.RowsAffected(), "link session appointment")
}

// CompleteSession implements booking.CourseRepository.
func (s *Store) CompleteSession(ctx context.Context, sessionID uuid.UUID, at time.Time, notes string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE treatment_sessions
		SET status = 'completed', completed_at = $2,
		    admin_notes = COALESCE(NULLIF($3, ''), admin_notes)
		WHERE id = $1`, sessionID, at, notes)
	if err != nil {
		return fmt.Errorf("postgres: complete session: %w", err)
	}
	return requireAffected(tag.RowsAffected(), "complete session")
}

// CountCompletedSessions implements booking.CourseRepository.
func (s *Store) CountCompletedSessions(ctx context.Context, courseID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM treatment_sessions
		WHERE course_id = $1 AND status = 'completed'`, courseID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count completed sessions: %w", err)
	}
	return n, nil
}

func scanSession(row pgx.Row) (*booking.TreatmentSession, error) {
	var ts booking.TreatmentSession
	var status string
	if err := row.Scan(
		&ts.ID, &ts.CourseID, &ts.SessionNumber, &ts.SessionDate, &ts.SessionTime, &ts.StaffID,
		&ts.AppointmentID, &status, &ts.CustomerStatusNotes, &ts.AdminNotes, &ts.CompletedAt,
	); err != nil {
		return nil, err
	}
	ts.Status = booking.SessionStatus(status)
	return &ts, nil
}
