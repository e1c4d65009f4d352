package main

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/spa-booking-engine/internal/events"
)

type stubHandler struct{ err error }

func (s stubHandler) Handle(context.Context, events.OutboxEntry) error { return s.err }

func TestCountingHandlerRecordsResults(t *testing.T) {
	reg := prometheus.NewRegistry()
	ok := newCountingHandler(stubHandler{}, reg)
	entry := events.OutboxEntry{Type: events.TypePaymentSucceeded}

	require.NoError(t, ok.Handle(context.Background(), entry))
	require.NoError(t, ok.Handle(context.Background(), entry))
	assert.Equal(t, 2.0, testutil.ToFloat64(ok.deliveries.WithLabelValues(events.TypePaymentSucceeded, "ok")))

	failing := &countingHandler{next: stubHandler{err: errors.New("sqs down")}, deliveries: ok.deliveries}
	assert.Error(t, failing.Handle(context.Background(), entry))
	assert.Equal(t, 1.0, testutil.ToFloat64(ok.deliveries.WithLabelValues(events.TypePaymentSucceeded, "error")))
}
