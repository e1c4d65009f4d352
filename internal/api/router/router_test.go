package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/spa-booking-engine/internal/api/router"
	"github.com/wolfman30/spa-booking-engine/internal/app/bootstrap"
	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/booking/memstore"
	appconfig "github.com/wolfman30/spa-booking-engine/internal/config"
	httpmiddleware "github.com/wolfman30/spa-booking-engine/internal/http/middleware"
	"github.com/wolfman30/spa-booking-engine/internal/observability/metrics"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

const adminSecret = "router-test-secret"

type testServer struct {
	handler   http.Handler
	store     *memstore.Store
	serviceID uuid.UUID
}

func newTestServer(t *testing.T, opts ...func(*appconfig.Config)) *testServer {
	t.Helper()
	store := memstore.New()
	serviceID := uuid.New()
	store.PutService(booking.Service{ID: serviceID, Name: "Hydrafacial", Price: 500000, DurationMinutes: 60})

	cfg := &appconfig.Config{
		AdminJWTSecret:      adminSecret,
		DefaultSessionTime:  "09:00",
		CheckoutMaxAttempts: 5,
		CheckoutWindow:      time.Hour,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	reg := prometheus.NewRegistry()
	api, err := bootstrap.BuildAPI(bootstrap.APIDeps{
		Config:         cfg,
		Storage:        bootstrap.MemoryStorage(store),
		Metrics:        metrics.NewBookingMetrics(reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:         logging.Discard(),
	})
	require.NoError(t, err)
	return &testServer{handler: router.New(api.Router), store: store, serviceID: serviceID}
}

func adminToken(t *testing.T, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, httpmiddleware.AdminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(adminSecret))
	require.NoError(t, err)
	return signed
}

func (s *testServer) do(t *testing.T, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) book(t *testing.T) booking.Appointment {
	t.Helper()
	body := `{"service_id":"` + s.serviceID.String() + `",` +
		`"new_client_info":{"name":"Lan","phone":"0901234567"},` +
		`"date":"2025-04-01","time":"10:00"}`
	rec := s.do(t, http.MethodPost, "/api/appointments", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result struct {
		Appointment booking.Appointment `json:"appointment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result.Appointment
}

func TestRouterHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestRouterHealthDegraded(t *testing.T) {
	h := router.New(&router.Config{
		Logger: logging.Discard(),
		HealthCheck: func(_ context.Context) error {
			return errors.New("database: connection refused")
		},
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestRouterBookAndFetchAppointment(t *testing.T) {
	s := newTestServer(t)
	appt := s.book(t)
	assert.Equal(t, booking.StatusPending, appt.Status)
	assert.Nil(t, appt.TherapistID, "no staff is eligible so the booking stays unassigned")

	rec := s.do(t, http.MethodGet, "/api/appointments/"+appt.ID.String(), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"), "request id is propagated")

	rec = s.do(t, http.MethodGet, "/api/appointments/"+uuid.NewString(), "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterAdminRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	appt := s.book(t)
	target := "/api/appointments/" + appt.ID.String() + "/status"

	rec := s.do(t, http.MethodPatch, target, `{"status":"confirmed"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPatch, target, `{"status":"confirmed"}`, adminToken(t, "client"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPatch, target, `{"status":"confirmed"}`, adminToken(t, httpmiddleware.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated booking.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, booking.StatusConfirmed, updated.Status)

	rec = s.do(t, http.MethodGet, "/admin/assignment/preview", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterCheckoutAndManualConfirm(t *testing.T) {
	s := newTestServer(t)
	appt := s.book(t)

	rec := s.do(t, http.MethodPost, "/api/payments/checkout", `{"appointment_id":"`+appt.ID.String()+`"}`, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "VNPay is not configured")

	rec = s.do(t, http.MethodPost, "/api/payments/checkout", `{"appointment_id":"`+appt.ID.String()+`","method":"Cash"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var checkout struct {
		Payment booking.Payment `json:"payment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &checkout))

	confirm := "/admin/payments/" + checkout.Payment.TransactionID + "/confirm"
	rec = s.do(t, http.MethodPost, confirm, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, confirm, "", adminToken(t, httpmiddleware.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := s.store.GetAppointment(t.Context(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.Paid, stored.PaymentStatus)
	assert.Equal(t, booking.StatusPending, stored.Status, "paid bookings wait for staff acceptance")
}

func TestRouterGatewayCallbacksSkipAdminAuth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/payments/vnpay/ipn?vnp_TxnRef=T1&vnp_SecureHash=00", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"RspCode":"97"`)
}

func TestRouterMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	appt := s.book(t)
	rec := s.do(t, http.MethodPatch, "/api/appointments/"+appt.ID.String()+"/status",
		`{"status":"cancelled"}`, adminToken(t, httpmiddleware.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "spa_appointments_status_transitions_total")
}

func TestRouterPublicRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *appconfig.Config) {
		cfg.PublicRateLimitRPS = 0.001
		cfg.PublicRateBurst = 1
	})
	target := "/api/appointments/" + uuid.NewString()

	rec := s.do(t, http.MethodGet, target, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodGet, target, "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code, "health is not throttled")
}
