package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
)

// GetClient implements booking.ClientRepository.
func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (*booking.Client, error) {
	var c booking.Client
	err := s.db.QueryRow(ctx, `
		SELECT id, name, phone, email, created_at FROM users
		WHERE id = $1 AND role = 'client'`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err, "get client")
	}
	return &c, nil
}

// FindClientByPhone implements booking.ClientRepository.
func (s *Store) FindClientByPhone(ctx context.Context, phone string) (*booking.Client, error) {
	var c booking.Client
	err := s.db.QueryRow(ctx, `
		SELECT id, name, phone, email, created_at FROM users
		WHERE phone = $1 AND role = 'client'
		ORDER BY created_at
		LIMIT 1`, phone).Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err, "find client by phone")
	}
	return &c, nil
}

// CreateClient implements booking.ClientRepository.
func (s *Store) CreateClient(ctx context.Context, c *booking.Client) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, name, phone, email, role, is_active, created_at)
		VALUES ($1, $2, $3, $4, 'client', true, $5)`,
		c.ID, c.Name, c.Phone, c.Email, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create client: %w", err)
	}
	return nil
}
