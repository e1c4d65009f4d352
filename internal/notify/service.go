package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/events"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

// Service writes in-app notifications and queues their fan-out.
type Service struct {
	store  booking.NotificationRepository
	outbox events.Outbox
	logger *logging.Logger
}

// NewService creates a notification service. A nil outbox disables fan-out.
func NewService(store booking.NotificationRepository, outbox events.Outbox, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, outbox: outbox, logger: logger}
}

// NotifyStatusChange tells the client their appointment moved to status.
func (s *Service) NotifyStatusChange(ctx context.Context, appt *booking.Appointment, status booking.AppointmentStatus) error {
	if appt == nil {
		return errors.New("notify: appointment required")
	}
	kind, title, message := statusMessage(appt, status)
	n := &booking.Notification{
		UserID:    appt.ClientID,
		Type:      kind,
		Title:     title,
		Message:   message,
		RelatedID: &appt.ID,
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("notify: status change: %w", err)
	}
	s.logger.Info("notify: client notified", "appointment_id", appt.ID, "client_id", appt.ClientID, "type", kind)
	return s.fanOut(ctx, events.UserAggregate(appt.ClientID), n, false)
}

// NotifyAdminsNewAppointment notifies every active admin about a new booking.
func (s *Service) NotifyAdminsNewAppointment(ctx context.Context, appt *booking.Appointment) error {
	if appt == nil {
		return errors.New("notify: appointment required")
	}
	admins, err := s.store.ListActiveAdminIDs(ctx)
	if err != nil {
		return fmt.Errorf("notify: list admins: %w", err)
	}
	if len(admins) == 0 {
		s.logger.Warn("notify: no active admins to notify", "appointment_id", appt.ID)
		return nil
	}

	title := "New appointment"
	message := fmt.Sprintf("New booking on %s at %s.", appt.Date.Format("02/01/2006"), appt.Time)
	var first *booking.Notification
	var errs []error
	for _, adminID := range admins {
		n := &booking.Notification{
			UserID:    adminID,
			Type:      booking.NotifyAppointmentCreated,
			Title:     title,
			Message:   message,
			RelatedID: &appt.ID,
		}
		if err := s.store.CreateNotification(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("admin %s: %w", adminID, err))
			continue
		}
		if first == nil {
			first = n
		}
	}
	if first != nil {
		if err := s.fanOut(ctx, events.UserAggregate(uuid.Nil), first, true); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d admin notification(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// fanOut queues one event per notification. Admin notifications queue a
// single event for the whole audience so emails are not duplicated.
func (s *Service) fanOut(ctx context.Context, aggregate string, n *booking.Notification, admins bool) error {
	if s.outbox == nil {
		return nil
	}
	evt := events.NotificationCreatedV1{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           string(n.Type),
		Title:          n.Title,
		Message:        n.Message,
		RelatedID:      n.RelatedID,
		AdminAudience:  admins,
		CreatedAt:      n.CreatedAt,
	}
	if admins {
		evt.UserID = uuid.Nil
	}
	if _, err := s.outbox.Append(ctx, aggregate, evt); err != nil {
		return fmt.Errorf("notify: queue fan-out: %w", err)
	}
	return nil
}

func statusMessage(appt *booking.Appointment, status booking.AppointmentStatus) (booking.NotificationType, string, string) {
	when := fmt.Sprintf("%s at %s", appt.Date.Format("02/01/2006"), appt.Time)
	switch status {
	case booking.StatusConfirmed, booking.StatusUpcoming, booking.StatusScheduled:
		return booking.NotifyAppointmentConfirmed, "Appointment confirmed",
			fmt.Sprintf("Your appointment on %s is confirmed.", when)
	case booking.StatusCancelled:
		return booking.NotifyAppointmentCancelled, "Appointment cancelled",
			fmt.Sprintf("Your appointment on %s was cancelled.", when)
	case booking.StatusCompleted:
		return booking.NotifyAppointmentCompleted, "Appointment completed",
			"Thank you for visiting. We hope to see you again soon."
	default:
		return booking.NotifyAppointmentUpdated, "Appointment updated",
			fmt.Sprintf("Your appointment on %s is now %s.", when, status)
	}
}
