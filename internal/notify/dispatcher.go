package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/spa-booking-engine/internal/events"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

// Publisher forwards an envelope to a downstream transport.
type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// Dispatcher delivers outbox entries. Every entry is published when a
// publisher is configured; admin-facing entries are also emailed.
type Dispatcher struct {
	publisher   Publisher
	email       EmailSender
	adminEmails []string
	logger      *logging.Logger
}

func NewDispatcher(publisher Publisher, email EmailSender, adminEmails []string, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		publisher:   publisher,
		email:       email,
		adminEmails: adminEmails,
		logger:      logger,
	}
}

// Handle implements events.DeliveryHandler. A returned error leaves the entry
// pending for the next poll.
func (d *Dispatcher) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, entry.Envelope); err != nil {
			return err
		}
	}

	msg, ok, err := adminEmail(entry)
	if err != nil {
		d.logger.Error("notify: skip email for undecodable event", "error", err, "event_id", entry.ID)
		return nil
	}
	if !ok || d.email == nil || len(d.adminEmails) == 0 {
		return nil
	}

	var errs []error
	for _, to := range d.adminEmails {
		m := msg
		m.To = to
		if err := d.email.Send(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d admin email(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func adminEmail(entry events.OutboxEntry) (EmailMessage, bool, error) {
	switch entry.Type {
	case events.TypeNotificationCreated:
		var evt events.NotificationCreatedV1
		if err := entry.Envelope.Decode(&evt); err != nil {
			return EmailMessage{}, false, err
		}
		if !evt.AdminAudience {
			return EmailMessage{}, false, nil
		}
		return EmailMessage{Subject: evt.Title, Body: evt.Message}, true, nil
	case events.TypePaymentSucceeded:
		var evt events.PaymentSucceededV1
		if err := entry.Envelope.Decode(&evt); err != nil {
			return EmailMessage{}, false, err
		}
		return EmailMessage{
			Subject: fmt.Sprintf("Payment received - %s", evt.TransactionID),
			Body: fmt.Sprintf("Payment %s of %d VND via %s was confirmed (%s).",
				evt.TransactionID, evt.Amount, evt.Method, evt.Trigger),
		}, true, nil
	}
	return EmailMessage{}, false, nil
}
