package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/database"
)

// CreatePayment implements booking.PaymentRepository.
func (s *Store) CreatePayment(ctx context.Context, p *booking.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = booking.PaymentPending
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO payments (id, appointment_id, user_id, amount, method, status, transaction_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.AppointmentID, p.UserID, p.Amount, string(p.Method), string(p.Status),
		p.TransactionID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("postgres: create payment: duplicate transaction id %s: %w", p.TransactionID, booking.ErrValidation)
		}
		return fmt.Errorf("postgres: create payment: %w", err)
	}
	return nil
}

// GetPaymentByTransaction implements booking.PaymentRepository.
func (s *Store) GetPaymentByTransaction(ctx context.Context, transactionID string) (*booking.Payment, error) {
	var p booking.Payment
	var method, status string
	err := s.db.QueryRow(ctx, `
		SELECT id, appointment_id, user_id, amount, method, status, transaction_id, created_at, updated_at
		FROM payments WHERE transaction_id = $1`, transactionID).Scan(
		&p.ID, &p.AppointmentID, &p.UserID, &p.Amount, &method, &status,
		&p.TransactionID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "get payment by transaction")
	}
	p.Method = booking.PaymentMethod(method)
	p.Status = booking.PaymentRecordStatus(status)
	return &p, nil
}

// TransitionPayment implements booking.PaymentRepository with a conditional
// update so concurrent callbacks cannot both observe and commit the transition.
func (s *Store) TransitionPayment(ctx context.Context, id uuid.UUID, from, to booking.PaymentRecordStatus) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE payments SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("postgres: transition payment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
