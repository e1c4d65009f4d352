package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypePaymentSucceeded    = "payment_succeeded.v1"
	TypePaymentFailed       = "payment_failed.v1"
	TypeNotificationCreated = "notification_created.v1"
)

// PaymentSucceededV1 is emitted once a payment moves from Pending to Completed.
type PaymentSucceededV1 struct {
	PaymentID     uuid.UUID  `json:"payment_id"`
	TransactionID string     `json:"transaction_id"`
	UserID        uuid.UUID  `json:"user_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Amount        int64      `json:"amount"`
	Method        string     `json:"method"`
	Trigger       string     `json:"trigger"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

func (PaymentSucceededV1) EventType() string { return TypePaymentSucceeded }

// PaymentFailedV1 is emitted once a payment moves from Pending to Failed.
type PaymentFailedV1 struct {
	PaymentID     uuid.UUID  `json:"payment_id"`
	TransactionID string     `json:"transaction_id"`
	UserID        uuid.UUID  `json:"user_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Amount        int64      `json:"amount"`
	Method        string     `json:"method"`
	Trigger       string     `json:"trigger"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

func (PaymentFailedV1) EventType() string { return TypePaymentFailed }

// NotificationCreatedV1 fans an in-app notification out to push and email.
type NotificationCreatedV1 struct {
	NotificationID uuid.UUID  `json:"notification_id"`
	UserID         uuid.UUID  `json:"user_id"`
	Type           string     `json:"type"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	RelatedID      *uuid.UUID `json:"related_id,omitempty"`
	AdminAudience  bool       `json:"admin_audience,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (NotificationCreatedV1) EventType() string { return TypeNotificationCreated }
