package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
)

// CreateNotification implements booking.NotificationRepository.
func (s *Store) CreateNotification(ctx context.Context, n *booking.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, related_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.UserID, string(n.Type), n.Title, n.Message, n.RelatedID, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create notification: %w", err)
	}
	return nil
}

// ListActiveAdminIDs implements booking.NotificationRepository.
func (s *Store) ListActiveAdminIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM users WHERE role = 'admin' AND is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list admins: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan admin id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
