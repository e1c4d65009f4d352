package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
)

func (s *Store) GetCourse(ctx context.Context, id uuid.UUID) (*booking.TreatmentCourse, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	c, ok := s.sh.data.courses[id]
	if !ok {
		return nil, fmt.Errorf("memstore: get course: %w", booking.ErrNotFound)
	}
	return &c, nil
}

func (s *Store) CreateCourse(ctx context.Context, c *booking.TreatmentCourse) error {
	defer s.lockWrite()()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = booking.CourseActive
	}
	if c.PaymentStatus == "" {
		c.PaymentStatus = booking.Unpaid
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.sh.data.courses[c.ID] = *c
	return nil
}

func (s *Store) updateCourse(id uuid.UUID, op string, mutate func(*booking.TreatmentCourse)) error {
	defer s.lockWrite()()
	c, ok := s.sh.data.courses[id]
	if !ok {
		return fmt.Errorf("memstore: %s: %w", op, booking.ErrNotFound)
	}
	mutate(&c)
	c.UpdatedAt = time.Now().UTC()
	s.sh.data.courses[id] = c
	return nil
}

func (s *Store) UpdateCourseTherapist(ctx context.Context, id uuid.UUID, therapistID uuid.UUID) error {
	return s.updateCourse(id, "update course therapist", func(c *booking.TreatmentCourse) {
		c.TherapistID = &therapistID
	})
}

func (s *Store) UpdateCourseStatus(ctx context.Context, id uuid.UUID, status booking.CourseStatus) error {
	return s.updateCourse(id, "update course status", func(c *booking.TreatmentCourse) {
		c.Status = status
	})
}

func (s *Store) UpdateCourseProgress(ctx context.Context, id uuid.UUID, completed int, status booking.CourseStatus) error {
	return s.updateCourse(id, "update course progress", func(c *booking.TreatmentCourse) {
		c.CompletedSessions = completed
		c.Status = status
	})
}

func (s *Store) MarkCoursePaid(ctx context.Context, id uuid.UUID, amount int64) error {
	return s.updateCourse(id, "mark course paid", func(c *booking.TreatmentCourse) {
		c.PaymentStatus = booking.Paid
		c.TotalAmount = &amount
	})
}

func (s *Store) CreateSession(ctx context.Context, ts *booking.TreatmentSession) error {
	defer s.lockWrite()()
	if ts.ID == uuid.Nil {
		ts.ID = uuid.New()
	}
	if ts.Status == "" {
		ts.Status = booking.SessionScheduled
	}
	ts.SessionDate = booking.DateOnly(ts.SessionDate)
	for _, existing := range s.sh.data.sessions {
		if existing.CourseID == ts.CourseID && existing.SessionNumber == ts.SessionNumber {
			return fmt.Errorf("memstore: create session: duplicate session number %d: %w", ts.SessionNumber, booking.ErrValidation)
		}
	}
	s.sh.data.sessions[ts.ID] = *ts
	return nil
}

func (s *Store) ListSessions(ctx context.Context, courseID uuid.UUID) ([]booking.TreatmentSession, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	var out []booking.TreatmentSession
	for _, ts := range s.sh.data.sessions {
		if ts.CourseID == courseID {
			out = append(out, ts)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionNumber < out[j].SessionNumber })
	return out, nil
}

func (s *Store) GetSessionByNumber(ctx context.Context, courseID uuid.UUID, number int) (*booking.TreatmentSession, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	for _, ts := range s.sh.data.sessions {
		if ts.CourseID == courseID && ts.SessionNumber == number {
			return &ts, nil
		}
	}
	return nil, fmt.Errorf("memstore: get session by number: %w", booking.ErrNotFound)
}

func (s *Store) FindSessionByAppointment(ctx context.Context, appointmentID uuid.UUID) (*booking.TreatmentSession, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	for _, ts := range s.sh.data.sessions {
		if ts.AppointmentID != nil && *ts.AppointmentID == appointmentID {
			return &ts, nil
		}
	}
	return nil, fmt.Errorf("memstore: find session by appointment: %w", booking.ErrNotFound)
}

func (s *Store) updateSession(id uuid.UUID, op string, mutate func(*booking.TreatmentSession) bool) error {
	defer s.lockWrite()()
	ts, ok := s.sh.data.sessions[id]
	if !ok || !mutate(&ts) {
		return fmt.Errorf("memstore: %s: %w", op, booking.ErrNotFound)
	}
	s.sh.data.sessions[id] = ts
	return nil
}

func (s *Store) UpdateSessionStaff(ctx context.Context, sessionID uuid.UUID, staffID uuid.UUID) error {
	return s.updateSession(sessionID, "update session staff", func(ts *booking.TreatmentSession) bool {
		ts.StaffID = &staffID
		return true
	})
}

func (s *Store) LinkSessionAppointment(ctx context.Context, sessionID uuid.UUID, appointmentID uuid.UUID) error {
	return s.updateSession(sessionID, "link session appointment", func(ts *booking.TreatmentSession) bool {
		if ts.AppointmentID != nil && *ts.AppointmentID != appointmentID {
			return false
		}
		ts.AppointmentID = &appointmentID
		return true
	})
}

func (s *Store) CompleteSession(ctx context.Context, sessionID uuid.UUID, at time.Time, notes string) error {
	return s.updateSession(sessionID, "complete session", func(ts *booking.TreatmentSession) bool {
		ts.Status = booking.SessionCompleted
		ts.CompletedAt = &at
		if notes != "" {
			ts.AdminNotes = notes
		}
		return true
	})
}

func (s *Store) CountCompletedSessions(ctx context.Context, courseID uuid.UUID) (int, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	n := 0
	for _, ts := range s.sh.data.sessions {
		if ts.CourseID == courseID && ts.Status == booking.SessionCompleted {
			n++
		}
	}
	return n, nil
}
