package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
)

// GetWallet implements booking.WalletRepository.
func (s *Store) GetWallet(ctx context.Context, userID uuid.UUID) (*booking.Wallet, error) {
	var w booking.Wallet
	err := s.db.QueryRow(ctx, `
		SELECT user_id, points, total_spent, tier_level, updated_at
		FROM wallets WHERE user_id = $1`, userID).Scan(
		&w.UserID, &w.Points, &w.TotalSpent, &w.TierLevel, &w.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "get wallet")
	}
	return &w, nil
}

// SaveWallet implements booking.WalletRepository.
func (s *Store) SaveWallet(ctx context.Context, w *booking.Wallet) error {
	w.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO wallets (user_id, points, total_spent, tier_level, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET points = EXCLUDED.points, total_spent = EXCLUDED.total_spent,
		    tier_level = EXCLUDED.tier_level, updated_at = EXCLUDED.updated_at`,
		w.UserID, w.Points, w.TotalSpent, w.TierLevel, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save wallet: %w", err)
	}
	return nil
}

// InsertLedgerEntry implements booking.WalletRepository.
func (s *Store) InsertLedgerEntry(ctx context.Context, e *booking.WalletLedgerEntry) (bool, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	tag, err := s.db.Exec(ctx, `
		INSERT INTO wallet_ledger (transaction_id, user_id, points, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (transaction_id) DO NOTHING`,
		e.TransactionID, e.UserID, e.Points, e.Amount, e.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: insert ledger entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
