package loyalty

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/booking/memstore"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

func TestParseTiersDefault(t *testing.T) {
	table, err := ParseTiers("")
	require.NoError(t, err)
	assert.Equal(t, "Member", table.TierFor(0))
	assert.Equal(t, "Member", table.TierFor(4_999_999))
	assert.Equal(t, "Silver", table.TierFor(5_000_000))
	assert.Equal(t, "Gold", table.TierFor(20_000_000))
	assert.Equal(t, "Platinum", table.TierFor(90_000_000))
}

func TestParseTiersSortsAndValidates(t *testing.T) {
	table, err := ParseTiers("VIP:1000, Basic:0")
	require.NoError(t, err)
	assert.Equal(t, "Basic", table[0].Name)
	assert.Equal(t, "VIP", table.TierFor(1000))

	for _, raw := range []string{"Gold", "Gold:abc", "Gold:-1", "Silver:100", "A:0,A:10", ":0"} {
		_, err := ParseTiers(raw)
		assert.Error(t, err, raw)
	}
}

func TestPoints(t *testing.T) {
	assert.Equal(t, int64(1500), Points(1_500_999))
	assert.Equal(t, int64(0), Points(999))
	assert.Equal(t, int64(0), Points(-5000))
}

func TestCreditIsIdempotentPerTransaction(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	wallets := NewWallets(store, nil, logging.Discard())
	user := uuid.New()

	credited, err := wallets.Credit(ctx, user, 6_000_000, "VNP-1")
	require.NoError(t, err)
	assert.True(t, credited)

	credited, err = wallets.Credit(ctx, user, 6_000_000, "VNP-1")
	require.NoError(t, err)
	assert.False(t, credited)

	w, err := store.GetWallet(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), w.Points)
	assert.Equal(t, int64(6_000_000), w.TotalSpent)
	assert.Equal(t, "Silver", w.TierLevel)

	_, err = wallets.Credit(ctx, user, 15_000_000, "VNP-2")
	require.NoError(t, err)
	w, err = store.GetWallet(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "Gold", w.TierLevel)
	assert.Equal(t, int64(21000), w.Points)
}

func TestCreditValidation(t *testing.T) {
	wallets := NewWallets(memstore.New(), nil, logging.Discard())
	_, err := wallets.Credit(context.Background(), uuid.New(), 1000, "")
	assert.ErrorIs(t, err, booking.ErrValidation)
	_, err = wallets.Credit(context.Background(), uuid.New(), -1, "T")
	assert.ErrorIs(t, err, booking.ErrValidation)
}
