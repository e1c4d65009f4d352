package loyalty

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

// WalletStore is the persistence the wallet crediting needs.
type WalletStore interface {
	booking.WalletRepository
	WithinTx(ctx context.Context, fn func(tx booking.Store) error) error
}

// Wallets credits loyalty wallets.
type Wallets struct {
	store  WalletStore
	tiers  Table
	logger *logging.Logger
}

func NewWallets(store WalletStore, tiers Table, logger *logging.Logger) *Wallets {
	if logger == nil {
		logger = logging.Default()
	}
	if len(tiers) == 0 {
		tiers = MustParseTiers(DefaultTiers)
	}
	return &Wallets{store: store, tiers: tiers, logger: logger}
}

// Credit adds amount to the user's spend and the matching points, keyed by
// transactionID. It reports false when the transaction was already credited.
func (w *Wallets) Credit(ctx context.Context, userID uuid.UUID, amount int64, transactionID string) (bool, error) {
	if transactionID == "" {
		return false, fmt.Errorf("loyalty: credit: %w", booking.MissingField("transaction_id"))
	}
	if amount < 0 {
		return false, fmt.Errorf("loyalty: credit: negative amount: %w", booking.ErrValidation)
	}
	points := Points(amount)

	credited := false
	err := w.store.WithinTx(ctx, func(tx booking.Store) error {
		inserted, err := tx.InsertLedgerEntry(ctx, &booking.WalletLedgerEntry{
			TransactionID: transactionID,
			UserID:        userID,
			Points:        points,
			Amount:        amount,
		})
		if err != nil {
			return fmt.Errorf("loyalty: credit: %w", err)
		}
		if !inserted {
			return nil
		}

		wallet, err := tx.GetWallet(ctx, userID)
		if errors.Is(err, booking.ErrNotFound) {
			wallet = &booking.Wallet{UserID: userID}
		} else if err != nil {
			return fmt.Errorf("loyalty: credit: %w", err)
		}
		wallet.Points += points
		wallet.TotalSpent += amount
		wallet.TierLevel = w.tiers.TierFor(wallet.TotalSpent)
		if err := tx.SaveWallet(ctx, wallet); err != nil {
			return fmt.Errorf("loyalty: credit: %w", err)
		}
		credited = true
		w.logger.Info("loyalty: wallet credited",
			"user_id", userID,
			"transaction_id", transactionID,
			"points", points,
			"total_spent", wallet.TotalSpent,
			"tier", wallet.TierLevel,
		)
		return nil
	})
	return credited, err
}
