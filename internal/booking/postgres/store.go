// Package postgres implements booking.Store on top of pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/database"
)

// Store implements booking.Store. A Store built from a pool opens
// transactions in WithinTx; a Store built from a pgx.Tx reuses it.
type Store struct {
	db       database.Querier
	beginner database.Beginner
}

var _ booking.Store = (*Store)(nil)

// New creates a store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("postgres: pgx pool required")
	}
	return &Store{db: pool, beginner: pool}
}

// NewWithDB allows injecting pgxmock pools in tests.
func NewWithDB(db database.Beginner) *Store {
	return &Store{db: db, beginner: db}
}

// WithinTx implements booking.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(tx booking.Store) error) error {
	if s.beginner == nil {
		return fn(s)
	}
	return database.InTx(ctx, s.beginner, func(tx pgx.Tx) error {
		return fn(&Store{db: tx})
	})
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("postgres: %s: %w", what, booking.ErrNotFound)
	}
	return fmt.Errorf("postgres: %s: %w", what, err)
}

func requireAffected(rows int64, what string) error {
	if rows == 0 {
		return fmt.Errorf("postgres: %s: %w", what, booking.ErrNotFound)
	}
	return nil
}
