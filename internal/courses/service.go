package courses

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

var tracer = otel.Tracer("spa.internal.courses")

// CourseInput is a request to plan and persist a course.
type CourseInput struct {
	ServiceID      uuid.UUID
	ClientID       uuid.UUID
	TherapistID    *uuid.UUID
	TotalSessions  int
	StartDate      time.Time
	StartTime      string
	DurationWeeks  int
	FrequencyType  booking.FrequencyType
	FrequencyValue int
	TotalAmount    *int64
	Notes          string
}

// CourseView is a course with its sessions.
type CourseView struct {
	Course   booking.TreatmentCourse    `json:"course"`
	Sessions []booking.TreatmentSession `json:"sessions"`
}

// SessionCompletion is the result of completing one session.
type SessionCompletion struct {
	Course  booking.TreatmentCourse  `json:"course"`
	Session booking.TreatmentSession `json:"session"`
}

// AcceptResult summarizes a course-wide staff propagation.
type AcceptResult struct {
	CourseID uuid.UUID   `json:"course_id"`
	Created  []uuid.UUID `json:"created"`
	Updated  []uuid.UUID `json:"updated"`
	// Skipped lists session numbers left alone because the staff member was
	// already booked at that slot.
	Skipped []int `json:"skipped,omitempty"`
	// Staffed holds the sibling appointments as written, for shift sync.
	Staffed []booking.Appointment `json:"-"`
}

// AppointmentChangeHook is told about an appointment status write made by
// the course service once it has committed.
type AppointmentChangeHook func(ctx context.Context, before, after booking.Appointment)

// Service persists courses and keeps them consistent with their appointments.
type Service struct {
	store           booking.Store
	logger          *logging.Logger
	placeholderTime string
	onChange        AppointmentChangeHook
	now             func() time.Time
}

func NewService(store booking.Store, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, logger: logger, placeholderTime: DefaultSessionTime, now: time.Now}
}

// WithPlaceholderTime sets the time given to sessions after the first.
func (s *Service) WithPlaceholderTime(clock string) *Service {
	if _, ok := booking.ParseClock(clock); ok {
		s.placeholderTime = clock
	}
	return s
}

// OnAppointmentChange registers the hook run after CompleteSession moves a
// linked appointment to completed.
func (s *Service) OnAppointmentChange(h AppointmentChangeHook) *Service {
	s.onChange = h
	return s
}

// PlanCourse validates in, expands it and persists the course with its sessions.
func (s *Service) PlanCourse(ctx context.Context, in CourseInput) (*CourseView, error) {
	ctx, span := tracer.Start(ctx, "courses.plan")
	defer span.End()
	span.SetAttributes(
		attribute.String("spa.service_id", in.ServiceID.String()),
		attribute.Int("spa.total_sessions", in.TotalSessions),
	)

	var view *CourseView
	err := s.store.WithinTx(ctx, func(tx booking.Store) error {
		if _, err := tx.GetClient(ctx, in.ClientID); err != nil {
			return fmt.Errorf("courses: plan course: client: %w", err)
		}
		var err error
		view, err = s.Materialize(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("courses: course planned",
		"course_id", view.Course.ID,
		"client_id", view.Course.ClientID,
		"sessions", len(view.Sessions),
	)
	return view, nil
}

// Materialize plans in and writes the course and its sessions through tx.
// It is used both on its own and inside booking creation.
func (s *Service) Materialize(ctx context.Context, tx booking.Store, in CourseInput) (*CourseView, error) {
	if _, err := tx.GetService(ctx, in.ServiceID); err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return nil, fmt.Errorf("courses: materialize: %s: %w", in.ServiceID, booking.ErrUnknownService)
		}
		return nil, fmt.Errorf("courses: materialize: service: %w", err)
	}
	plan, err := PlanSessions(PlanInput{
		StartDate:       in.StartDate,
		StartTime:       in.StartTime,
		TotalSessions:   in.TotalSessions,
		DurationWeeks:   in.DurationWeeks,
		FrequencyType:   in.FrequencyType,
		FrequencyValue:  in.FrequencyValue,
		PlaceholderTime: s.placeholderTime,
	})
	if err != nil {
		return nil, err
	}

	course := &booking.TreatmentCourse{
		ServiceID:      in.ServiceID,
		ClientID:       in.ClientID,
		TherapistID:    in.TherapistID,
		TotalSessions:  in.TotalSessions,
		StartDate:      plan.StartDate,
		DurationWeeks:  plan.DurationWeeks,
		ExpiryDate:     plan.ExpiryDate,
		FrequencyType:  in.FrequencyType,
		FrequencyValue: in.FrequencyValue,
		Status:         booking.CourseActive,
		PaymentStatus:  booking.Unpaid,
		TotalAmount:    in.TotalAmount,
		Notes:          in.Notes,
	}
	if err := tx.CreateCourse(ctx, course); err != nil {
		return nil, fmt.Errorf("courses: materialize: %w", err)
	}

	view := &CourseView{Course: *course, Sessions: make([]booking.TreatmentSession, 0, len(plan.Sessions))}
	for _, ps := range plan.Sessions {
		session := &booking.TreatmentSession{
			CourseID:      course.ID,
			SessionNumber: ps.Number,
			SessionDate:   ps.Date,
			SessionTime:   ps.Time,
			StaffID:       in.TherapistID,
			Status:        booking.SessionScheduled,
		}
		if err := tx.CreateSession(ctx, session); err != nil {
			return nil, fmt.Errorf("courses: materialize: session %d: %w", ps.Number, err)
		}
		view.Sessions = append(view.Sessions, *session)
	}
	return view, nil
}

// Get returns a course with its sessions.
func (s *Service) Get(ctx context.Context, courseID uuid.UUID) (*CourseView, error) {
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("courses: get: %w", err)
	}
	sessions, err := s.store.ListSessions(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("courses: get: %w", err)
	}
	return &CourseView{Course: *course, Sessions: sessions}, nil
}

// CompleteSession marks session number of the course completed and
// recomputes the course's progress. Completing an already completed session
// returns the current state unchanged. A linked appointment that is still
// active is completed along with it.
func (s *Service) CompleteSession(ctx context.Context, courseID uuid.UUID, number int, notes string) (*SessionCompletion, error) {
	ctx, span := tracer.Start(ctx, "courses.complete_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("spa.course_id", courseID.String()),
		attribute.Int("spa.session_number", number),
	)

	var result *SessionCompletion
	var before, after *booking.Appointment
	err := s.store.WithinTx(ctx, func(tx booking.Store) error {
		course, err := tx.GetCourse(ctx, courseID)
		if err != nil {
			return fmt.Errorf("courses: complete session: %w", err)
		}
		session, err := tx.GetSessionByNumber(ctx, courseID, number)
		if err != nil {
			return fmt.Errorf("courses: complete session: %w", err)
		}
		if session.Status == booking.SessionCompleted {
			result = &SessionCompletion{Course: *course, Session: *session}
			return nil
		}
		if course.Status == booking.CourseCancelled {
			return fmt.Errorf("courses: complete session: course %s is cancelled: %w", courseID, booking.ErrInvalidTransition)
		}

		if session.AppointmentID != nil {
			appt, err := tx.GetAppointment(ctx, *session.AppointmentID)
			if err != nil && !errors.Is(err, booking.ErrNotFound) {
				return fmt.Errorf("courses: complete session: appointment: %w", err)
			}
			if appt != nil && appt.Status.Active() {
				updated, err := tx.UpdateAppointmentStatus(ctx, appt.ID, booking.StatusCompleted, nil)
				if err != nil {
					return fmt.Errorf("courses: complete session: appointment: %w", err)
				}
				before, after = appt, updated
			}
		}

		updated, err := s.completeAndRecount(ctx, tx, course, session, notes)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	if after != nil && s.onChange != nil {
		s.onChange(ctx, *before, *after)
	}
	return result, nil
}

// CompleteLinkedSession completes the session linked to appointmentID, if
// any. It reports false when the appointment belongs to no course.
func (s *Service) CompleteLinkedSession(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	linked := false
	err := s.store.WithinTx(ctx, func(tx booking.Store) error {
		session, err := tx.FindSessionByAppointment(ctx, appointmentID)
		if errors.Is(err, booking.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("courses: complete linked session: %w", err)
		}
		linked = true
		if session.Status == booking.SessionCompleted {
			return nil
		}
		course, err := tx.GetCourse(ctx, session.CourseID)
		if err != nil {
			return fmt.Errorf("courses: complete linked session: %w", err)
		}
		_, err = s.completeAndRecount(ctx, tx, course, session, "")
		return err
	})
	return linked, err
}

func (s *Service) completeAndRecount(ctx context.Context, tx booking.Store, course *booking.TreatmentCourse, session *booking.TreatmentSession, notes string) (*SessionCompletion, error) {
	at := s.now().UTC()
	if err := tx.CompleteSession(ctx, session.ID, at, notes); err != nil {
		return nil, fmt.Errorf("courses: complete session: %w", err)
	}
	completed, err := tx.CountCompletedSessions(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("courses: count completed: %w", err)
	}
	completed = min(completed, course.TotalSessions)
	status := course.Status
	if completed >= course.TotalSessions {
		status = booking.CourseCompleted
	}
	if err := tx.UpdateCourseProgress(ctx, course.ID, completed, status); err != nil {
		return nil, fmt.Errorf("courses: update progress: %w", err)
	}

	course.CompletedSessions = completed
	course.Status = status
	session.Status = booking.SessionCompleted
	session.CompletedAt = &at
	if notes != "" {
		session.AdminNotes = notes
	}
	s.logger.Info("courses: session completed",
		"course_id", course.ID,
		"session_number", session.SessionNumber,
		"completed_sessions", completed,
		"course_status", status,
	)
	return &SessionCompletion{Course: *course, Session: *session}, nil
}

// CancelLinkedCourse demotes the active course owning appointmentID's
// session to cancelled. Sibling appointments are left untouched.
func (s *Service) CancelLinkedCourse(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	session, err := s.store.FindSessionByAppointment(ctx, appointmentID)
	if errors.Is(err, booking.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("courses: cancel linked course: %w", err)
	}
	course, err := s.store.GetCourse(ctx, session.CourseID)
	if err != nil {
		return false, fmt.Errorf("courses: cancel linked course: %w", err)
	}
	if course.Status != booking.CourseActive {
		return false, nil
	}
	if err := s.store.UpdateCourseStatus(ctx, course.ID, booking.CourseCancelled); err != nil {
		return false, fmt.Errorf("courses: cancel linked course: %w", err)
	}
	s.logger.Info("courses: course cancelled with its appointment",
		"course_id", course.ID,
		"appointment_id", appointmentID,
	)
	return true, nil
}

// AcceptCourse propagates therapistID from the accepted appointment to its
// course and every session of it. Sessions without an appointment get one;
// sessions with one have it aligned to the session's schedule. Completed
// sessions are kept as they are, and a session whose slot the staff member
// already holds elsewhere is skipped rather than double-booked. It returns
// nil when the appointment belongs to no course.
func (s *Service) AcceptCourse(ctx context.Context, appointmentID, therapistID uuid.UUID) (*AcceptResult, error) {
	ctx, span := tracer.Start(ctx, "courses.accept")
	defer span.End()
	span.SetAttributes(attribute.String("spa.appointment_id", appointmentID.String()))

	var result *AcceptResult
	err := s.store.WithinTx(ctx, func(tx booking.Store) error {
		linked, err := tx.FindSessionByAppointment(ctx, appointmentID)
		if errors.Is(err, booking.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("courses: accept: %w", err)
		}
		course, err := tx.GetCourse(ctx, linked.CourseID)
		if err != nil {
			return fmt.Errorf("courses: accept: %w", err)
		}
		if err := tx.UpdateCourseTherapist(ctx, course.ID, therapistID); err != nil {
			return fmt.Errorf("courses: accept: %w", err)
		}
		sessions, err := tx.ListSessions(ctx, course.ID)
		if err != nil {
			return fmt.Errorf("courses: accept: %w", err)
		}

		result = &AcceptResult{CourseID: course.ID}
		groupID := course.GroupID()
		for _, session := range sessions {
			if session.Status == booking.SessionCompleted {
				continue
			}
			exclude := uuid.Nil
			if session.AppointmentID != nil {
				exclude = *session.AppointmentID
			}
			busy, err := tx.StaffBookedAt(ctx, therapistID, session.SessionDate, session.SessionTime, exclude)
			if err != nil {
				return fmt.Errorf("courses: accept: %w", err)
			}
			if busy {
				result.Skipped = append(result.Skipped, session.SessionNumber)
				s.logger.Warn("courses: staff already booked, session left unassigned",
					"course_id", course.ID,
					"session_number", session.SessionNumber,
					"staff_id", therapistID,
				)
				continue
			}
			if err := tx.UpdateSessionStaff(ctx, session.ID, therapistID); err != nil {
				return fmt.Errorf("courses: accept: %w", err)
			}

			if session.AppointmentID == nil {
				appt := &booking.Appointment{
					ClientID:       course.ClientID,
					TherapistID:    &therapistID,
					ServiceID:      course.ServiceID,
					Date:           session.SessionDate,
					Time:           session.SessionTime,
					Status:         booking.StatusUpcoming,
					PaymentStatus:  booking.Unpaid,
					BookingGroupID: &groupID,
				}
				if err := tx.CreateAppointment(ctx, appt); err != nil {
					return fmt.Errorf("courses: accept: session %d: %w", session.SessionNumber, err)
				}
				if err := tx.LinkSessionAppointment(ctx, session.ID, appt.ID); err != nil {
					return fmt.Errorf("courses: accept: session %d: %w", session.SessionNumber, err)
				}
				result.Created = append(result.Created, appt.ID)
				result.Staffed = append(result.Staffed, *appt)
				continue
			}

			appt, err := tx.GetAppointment(ctx, *session.AppointmentID)
			if errors.Is(err, booking.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("courses: accept: %w", err)
			}
			status := appt.Status
			if appt.ID != appointmentID && (status == booking.StatusPending || status == booking.StatusScheduled) {
				status = booking.StatusUpcoming
			}
			if err := tx.UpdateAppointmentSchedule(ctx, appt.ID, session.SessionDate, session.SessionTime, &therapistID, status); err != nil {
				return fmt.Errorf("courses: accept: %w", err)
			}
			result.Updated = append(result.Updated, appt.ID)
			if appt.ID != appointmentID {
				appt.Date, appt.Time, appt.TherapistID, appt.Status = session.SessionDate, session.SessionTime, &therapistID, status
				result.Staffed = append(result.Staffed, *appt)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result != nil {
		s.logger.Info("courses: course accepted",
			"course_id", result.CourseID,
			"staff_id", therapistID,
			"created", len(result.Created),
			"updated", len(result.Updated),
			"skipped", len(result.Skipped),
		)
	}
	return result, nil
}
