package respond

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(booking.MissingField("service_id")))
	assert.Equal(t, http.StatusNotFound, StatusFor(fmt.Errorf("x: %w", booking.ErrNotFound)))
	assert.Equal(t, http.StatusConflict, StatusFor(booking.ErrInvalidTransition))
	assert.Equal(t, http.StatusConflict, StatusFor(booking.ErrSlotTaken))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("db down")))
}

func TestErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, logging.Discard(), "test", errors.New("password=hunter2"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")

	rec = httptest.NewRecorder()
	Error(rec, logging.Discard(), "test", booking.MissingField("date"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "date")
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	err := Decode(req, &dst)
	require.Error(t, err)
	assert.ErrorIs(t, err, booking.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, Decode(req, &dst))
	assert.Equal(t, "a", dst.Name)
}
