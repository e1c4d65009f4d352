package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/spa-booking-engine/internal/assignment"
	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/clients"
	"github.com/wolfman30/spa-booking-engine/internal/courses"
	"github.com/wolfman30/spa-booking-engine/internal/effects"
	"github.com/wolfman30/spa-booking-engine/internal/notify"
	"github.com/wolfman30/spa-booking-engine/internal/observability/metrics"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

var tracer = otel.Tracer("spa.internal.appointments")

// ErrPromotionUsed is returned when a private voucher was already redeemed.
var ErrPromotionUsed = fmt.Errorf("%w: promotion already used", booking.ErrValidation)

// CreateInput is a booking request. Exactly one of ClientID and NewClient
// identifies the client.
type CreateInput struct {
	ServiceID      uuid.UUID
	ClientID       *uuid.UUID
	NewClient      *clients.NewClientInfo
	Date           time.Time
	Time           string
	TherapistID    *uuid.UUID
	Quantity       int
	FrequencyType  booking.FrequencyType
	FrequencyValue int
	PromotionID    *uuid.UUID
	Notes          string
}

// CreateResult is the stored appointment plus the course it opened, if any.
type CreateResult struct {
	Appointment  booking.Appointment `json:"appointment"`
	Course       *courses.CourseView `json:"course,omitempty"`
	AutoAssigned bool                `json:"auto_assigned"`
}

// Service creates appointments and applies status changes.
type Service struct {
	store     booking.Store
	scorer    *assignment.Scorer
	courses   *courses.Service
	lifecycle *Lifecycle
	notifier  *notify.Service
	runner    *effects.Runner
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// Deps are the collaborators of Service. Store and Courses are required.
type Deps struct {
	Store     booking.Store
	Scorer    *assignment.Scorer
	Courses   *courses.Service
	Lifecycle *Lifecycle
	Notifier  *notify.Service
	Runner    *effects.Runner
	Metrics   *metrics.BookingMetrics
	Logger    *logging.Logger
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	if d.Runner == nil {
		d.Runner = effects.NewRunner(d.Logger, d.Metrics)
	}
	if d.Lifecycle == nil {
		d.Lifecycle = NewLifecycle(d.Runner, d.Logger)
	}
	if d.Courses == nil {
		d.Courses = courses.NewService(d.Store, d.Logger)
	}
	s := &Service{
		store:     d.Store,
		scorer:    d.Scorer,
		courses:   d.Courses,
		lifecycle: d.Lifecycle,
		notifier:  d.Notifier,
		runner:    d.Runner,
		metrics:   d.Metrics,
		logger:    d.Logger,
		now:       time.Now,
	}
	s.courses.OnAppointmentChange(s.ObserveChange)
	return s
}

func (in CreateInput) validate() error {
	if in.ServiceID == uuid.Nil {
		return booking.MissingField("service_id")
	}
	if in.ClientID == nil && in.NewClient == nil {
		return booking.MissingField("client_id")
	}
	if in.Date.IsZero() {
		return booking.MissingField("date")
	}
	if _, ok := booking.ParseClock(in.Time); !ok {
		return fmt.Errorf("%w: time %q", booking.ErrInvalidTime, in.Time)
	}
	if in.Quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative", booking.ErrValidation)
	}
	return nil
}

// Create books an appointment. Without a therapist the scorer picks one; when
// none is eligible the appointment is stored unassigned. A quantity above one
// opens a treatment course whose first session is this appointment. All
// writes share one transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	ctx, span := tracer.Start(ctx, "appointments.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("spa.service_id", in.ServiceID.String()),
		attribute.String("spa.date", in.Date.Format(time.DateOnly)),
		attribute.String("spa.time", in.Time),
		attribute.Int("spa.quantity", in.Quantity),
	)

	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("appointments: create: %w", err)
	}
	date := booking.DateOnly(in.Date)

	var result *CreateResult
	err := s.store.WithinTx(ctx, func(tx booking.Store) error {
		client, err := s.resolveClient(ctx, tx, in)
		if err != nil {
			return err
		}
		if _, err := tx.GetService(ctx, in.ServiceID); err != nil {
			if errors.Is(err, booking.ErrNotFound) {
				return fmt.Errorf("appointments: create: %s: %w", in.ServiceID, booking.ErrUnknownService)
			}
			return fmt.Errorf("appointments: create: service: %w", err)
		}

		therapistID := in.TherapistID
		autoAssigned := false
		if therapistID == nil && s.scorer != nil {
			if staffID, ok := s.scorer.Assign(ctx, assignment.Request{
				ServiceID: in.ServiceID,
				ClientID:  client.ID,
				Date:      date,
				Time:      in.Time,
			}); ok {
				therapistID = &staffID
				autoAssigned = true
			}
		}
		if therapistID != nil {
			busy, err := tx.StaffBookedAt(ctx, *therapistID, date, in.Time, uuid.Nil)
			if err != nil {
				return fmt.Errorf("appointments: create: %w", err)
			}
			if busy {
				return fmt.Errorf("appointments: create: %w", booking.ErrSlotTaken)
			}
		}

		var promo *booking.Promotion
		if in.PromotionID != nil {
			promo, err = tx.GetPromotion(ctx, *in.PromotionID)
			if errors.Is(err, booking.ErrNotFound) {
				return fmt.Errorf("appointments: create: %w: unknown promotion", booking.ErrValidation)
			}
			if err != nil {
				return fmt.Errorf("appointments: create: promotion: %w", err)
			}
		}

		appt := &booking.Appointment{
			ClientID:      client.ID,
			TherapistID:   therapistID,
			ServiceID:     in.ServiceID,
			Date:          date,
			Time:          in.Time,
			Status:        booking.StatusPending,
			PaymentStatus: booking.Unpaid,
			PromotionID:   in.PromotionID,
			Notes:         in.Notes,
		}

		var course *courses.CourseView
		if in.Quantity > 1 {
			course, err = s.courses.Materialize(ctx, tx, courses.CourseInput{
				ServiceID:      in.ServiceID,
				ClientID:       client.ID,
				TherapistID:    therapistID,
				TotalSessions:  in.Quantity,
				StartDate:      date,
				StartTime:      in.Time,
				FrequencyType:  in.FrequencyType,
				FrequencyValue: in.FrequencyValue,
				Notes:          in.Notes,
			})
			if err != nil {
				return fmt.Errorf("appointments: create: %w", err)
			}
			groupID := course.Course.GroupID()
			appt.BookingGroupID = &groupID
		}

		if err := tx.CreateAppointment(ctx, appt); err != nil {
			return fmt.Errorf("appointments: create: %w", err)
		}
		if course != nil {
			first := &course.Sessions[0]
			if err := tx.LinkSessionAppointment(ctx, first.ID, appt.ID); err != nil {
				return fmt.Errorf("appointments: create: link session: %w", err)
			}
			first.AppointmentID = &appt.ID
		}

		if promo != nil && !promo.IsPublic {
			now := s.now().UTC()
			recorded, err := tx.RecordUsage(ctx, &booking.PromotionUsage{
				UserID:        client.ID,
				PromotionID:   promo.ID,
				AppointmentID: &appt.ID,
				UsedAt:        now,
				UsageYear:     now.Year(),
			}, promo.Kind)
			if err != nil {
				return fmt.Errorf("appointments: create: promotion usage: %w", err)
			}
			if !recorded {
				return fmt.Errorf("appointments: create: %s: %w", promo.Code, ErrPromotionUsed)
			}
		}

		result = &CreateResult{Appointment: *appt, Course: course, AutoAssigned: autoAssigned}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointments: created",
		"appointment_id", result.Appointment.ID,
		"client_id", result.Appointment.ClientID,
		"therapist_assigned", result.Appointment.TherapistID != nil,
		"auto_assigned", result.AutoAssigned,
		"course", result.Course != nil,
	)
	if s.notifier != nil {
		appt := result.Appointment
		s.runner.Run(ctx, effects.Effect{
			Name: "notify.admins",
			Run:  func(ctx context.Context) error { return s.notifier.NotifyAdminsNewAppointment(ctx, &appt) },
		})
	}
	return result, nil
}

func (s *Service) resolveClient(ctx context.Context, tx booking.Store, in CreateInput) (*booking.Client, error) {
	if in.ClientID != nil {
		c, err := tx.GetClient(ctx, *in.ClientID)
		if err != nil {
			return nil, fmt.Errorf("appointments: create: client: %w", err)
		}
		return c, nil
	}
	c, err := clients.FindOrCreate(ctx, tx, *in.NewClient)
	if err != nil {
		return nil, fmt.Errorf("appointments: create: %w", err)
	}
	return c, nil
}

// Get returns one appointment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*booking.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	return appt, nil
}

// UpdateStatus writes the new status (and therapist, when given) and then
// hands the change to the lifecycle observers. Re-sending the current status
// without a therapist change is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status booking.AppointmentStatus, therapistID *uuid.UUID) (*booking.Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.update_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("spa.appointment_id", id.String()),
		attribute.String("spa.status", string(status)),
	)

	if !status.Valid() {
		return nil, fmt.Errorf("appointments: update status: %q: %w", status, booking.ErrInvalidStatus)
	}

	var before, after booking.Appointment
	noop := false
	err := s.store.WithinTx(ctx, func(tx booking.Store) error {
		current, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return fmt.Errorf("appointments: update status: %w", err)
		}
		before = *current
		therapistChanged := therapistID != nil && (current.TherapistID == nil || *current.TherapistID != *therapistID)

		if current.Status == status && !therapistChanged {
			noop = true
			after = *current
			return nil
		}
		if current.Status != status && !CanTransition(current.Status, status) {
			return fmt.Errorf("appointments: update status: %s -> %s: %w", current.Status, status, booking.ErrInvalidTransition)
		}

		staff := current.TherapistID
		if therapistID != nil {
			staff = therapistID
		}
		if staff != nil && status.Active() && (therapistChanged || !current.Status.Active()) {
			busy, err := tx.StaffBookedAt(ctx, *staff, current.Date, current.Time, current.ID)
			if err != nil {
				return fmt.Errorf("appointments: update status: %w", err)
			}
			if busy {
				return fmt.Errorf("appointments: update status: %w", booking.ErrSlotTaken)
			}
		}

		updated, err := tx.UpdateAppointmentStatus(ctx, id, status, therapistID)
		if err != nil {
			return fmt.Errorf("appointments: update status: %w", err)
		}
		after = *updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	if noop {
		return &after, nil
	}
	if failed := s.observe(ctx, before, after); len(failed) > 0 {
		span.SetAttributes(attribute.StringSlice("spa.failed_effects", failed))
	}
	return &after, nil
}

// ObserveChange records a committed status write made elsewhere, such as a
// course session completion, and runs the lifecycle observers for it.
func (s *Service) ObserveChange(ctx context.Context, before, after booking.Appointment) {
	s.observe(ctx, before, after)
}

func (s *Service) observe(ctx context.Context, before, after booking.Appointment) []string {
	s.metrics.ObserveTransition(string(before.Status), string(after.Status))
	s.logger.Info("appointments: status updated",
		"appointment_id", after.ID,
		"from", before.Status,
		"to", after.Status,
		"therapist_id", after.TherapistID,
	)
	return s.lifecycle.Apply(ctx, Change{Before: before, After: after})
}
