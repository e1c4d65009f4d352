package clients

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/booking/memstore"
)

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "0901234567", NormalizePhone("+84 901 234 567"))
	assert.Equal(t, "0901234567", NormalizePhone("090-123-4567"))
	assert.Equal(t, "", NormalizePhone("n/a"))
}

func TestFindOrCreateReusesPhone(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	first, err := FindOrCreate(ctx, store, NewClientInfo{Name: "Tran Minh", Phone: "0901 234 567"})
	require.NoError(t, err)
	second, err := FindOrCreate(ctx, store, NewClientInfo{Name: "Minh T.", Phone: "+84901234567"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Tran Minh", second.Name)
}

func TestFindOrCreateValidation(t *testing.T) {
	store := memstore.New()
	_, err := FindOrCreate(context.Background(), store, NewClientInfo{Phone: "0901234567"})
	assert.ErrorIs(t, err, booking.ErrMissingField)
	_, err = FindOrCreate(context.Background(), store, NewClientInfo{Name: "A", Phone: "12"})
	assert.ErrorIs(t, err, booking.ErrMissingField)
}
