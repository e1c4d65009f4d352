package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/database"
)

// GetPromotion implements booking.PromotionRepository.
func (s *Store) GetPromotion(ctx context.Context, id uuid.UUID) (*booking.Promotion, error) {
	var p booking.Promotion
	var kind string
	err := s.db.QueryRow(ctx, `
		SELECT id, code, kind, is_public FROM promotions WHERE id = $1`, id).Scan(
		&p.ID, &p.Code, &kind, &p.IsPublic,
	)
	if err != nil {
		return nil, notFound(err, "get promotion")
	}
	p.Kind = booking.PromotionKind(kind)
	return &p, nil
}

// UsageExists implements booking.PromotionRepository.
func (s *Store) UsageExists(ctx context.Context, userID, promotionID, appointmentID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM promotion_usages
			WHERE user_id = $1 AND promotion_id = $2 AND appointment_id = $3
		)`, userID, promotionID, appointmentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: promotion usage exists: %w", err)
	}
	return exists, nil
}

// RecordUsage implements booking.PromotionRepository. Uniqueness is enforced
// by partial indexes: (user, promotion) for standard promotions and
// (user, promotion, year) for birthday promotions.
func (s *Store) RecordUsage(ctx context.Context, u *booking.PromotionUsage, kind booking.PromotionKind) (bool, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.UsedAt.IsZero() {
		u.UsedAt = time.Now().UTC()
	}
	if u.UsageYear == 0 {
		u.UsageYear = u.UsedAt.Year()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO promotion_usages (id, user_id, promotion_id, appointment_id, promotion_kind, usage_year, used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.UserID, u.PromotionID, u.AppointmentID, string(kind), u.UsageYear, u.UsedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("postgres: record promotion usage: %w", err)
	}
	return true, nil
}
