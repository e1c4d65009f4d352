package assignment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/booking/memstore"
	"github.com/wolfman30/spa-booking-engine/internal/observability/metrics"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

var day = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memstore.Store
	scorer   *Scorer
	service  booking.Service
	category uuid.UUID
	client   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	category := uuid.New()
	svc := booking.Service{ID: uuid.New(), Name: "Hot stone massage", Price: 600000, DurationMinutes: 60, CategoryID: &category}
	store.PutService(svc)
	return &fixture{
		store:    store,
		scorer:   NewScorer(store, logging.Discard(), metrics.NewBookingMetrics(prometheus.NewRegistry())),
		service:  svc,
		category: category,
		client:   uuid.New(),
	}
}

func (f *fixture) addStaff(id uuid.UUID, slots ...string) {
	f.store.PutStaffCategories(id, f.category)
	f.store.PutAvailability(booking.StaffAvailability{StaffID: id, Date: day, TimeSlots: slots})
}

func (f *fixture) book(t *testing.T, staff, client uuid.UUID, date time.Time, clock string, status booking.AppointmentStatus) {
	t.Helper()
	require.NoError(t, f.store.CreateAppointment(context.Background(), &booking.Appointment{
		ClientID: client, TherapistID: &staff, ServiceID: f.service.ID, Date: date, Time: clock, Status: status,
	}))
}

func (f *fixture) request(clock string) Request {
	return Request{ServiceID: f.service.ID, ClientID: f.client, Date: day, Time: clock}
}

func TestScore(t *testing.T) {
	assert.Equal(t, 140, Score(2, 3))
	assert.Equal(t, 50, Score(0, 0))
	assert.Equal(t, 0, Score(0, 7))
	assert.Equal(t, 110, Score(1, 5))
}

func TestAssignPrefersRepeatVisits(t *testing.T) {
	f := newFixture(t)
	a, b := uuid.New(), uuid.New()
	f.addStaff(a, "10:00")
	f.addStaff(b, "10:00")

	past := day.AddDate(0, -1, 0)
	f.book(t, a, f.client, past, "10:00", booking.StatusCompleted)
	f.book(t, a, f.client, past.AddDate(0, 0, 7), "10:00", booking.StatusCompleted)
	for _, clock := range []string{"08:00", "13:00", "15:00"} {
		f.book(t, a, uuid.New(), day, clock, booking.StatusUpcoming)
	}

	ranked, err := f.scorer.Scores(context.Background(), f.request("10:00"))
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, Candidate{StaffID: a, CompletedVisits: 2, DayLoad: 3, Score: 140}, ranked[0])
	assert.Equal(t, Candidate{StaffID: b, Score: 50}, ranked[1])

	staff, ok := f.scorer.Assign(context.Background(), f.request("10:00"))
	require.True(t, ok)
	assert.Equal(t, a, staff)
}

func TestAssignExcludesBusyStaff(t *testing.T) {
	f := newFixture(t)
	a, b := uuid.New(), uuid.New()
	f.addStaff(a, "10:00")
	f.addStaff(b, "10:00")
	f.book(t, a, uuid.New(), day, "10:00", booking.StatusUpcoming)

	staff, ok := f.scorer.Assign(context.Background(), f.request("10:00"))
	require.True(t, ok)
	assert.Equal(t, b, staff)

	f.book(t, b, uuid.New(), day, "10:00", booking.StatusPending)
	_, ok = f.scorer.Assign(context.Background(), f.request("10:00"))
	assert.False(t, ok)
}

func TestAssignCancelledSlotIsFree(t *testing.T) {
	f := newFixture(t)
	a := uuid.New()
	f.addStaff(a, "10:00")
	f.book(t, a, uuid.New(), day, "10:00", booking.StatusCancelled)

	staff, ok := f.scorer.Assign(context.Background(), f.request("10:00"))
	require.True(t, ok)
	assert.Equal(t, a, staff)
}

func TestAssignTieBreaksByStaffID(t *testing.T) {
	f := newFixture(t)
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000001")
	f.addStaff(high, "10:00")
	f.addStaff(low, "10:00")

	for i := 0; i < 5; i++ {
		staff, ok := f.scorer.Assign(context.Background(), f.request("10:00"))
		require.True(t, ok)
		assert.Equal(t, low, staff)
	}
}

func TestAssignFiltersSlotsAndServiceAllowList(t *testing.T) {
	f := newFixture(t)
	wrongSlot, notAllowed, allowed := uuid.New(), uuid.New(), uuid.New()
	f.addStaff(wrongSlot, "11:00")
	f.store.PutStaffCategories(notAllowed, f.category)
	f.store.PutAvailability(booking.StaffAvailability{StaffID: notAllowed, Date: day, TimeSlots: []string{"10:00"}, AvailableServiceIDs: []uuid.UUID{uuid.New()}})
	f.store.PutStaffCategories(allowed, f.category)
	f.store.PutAvailability(booking.StaffAvailability{StaffID: allowed, Date: day, TimeSlots: []string{"10:00"}, AvailableServiceIDs: []uuid.UUID{f.service.ID}})

	ranked, err := f.scorer.Scores(context.Background(), f.request("10:00"))
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, allowed, ranked[0].StaffID)
}

func TestAssignFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.addStaff(uuid.New(), "10:00")

	_, ok := f.scorer.Assign(context.Background(), Request{ServiceID: uuid.New(), Date: day, Time: "10:00"})
	assert.False(t, ok, "unknown service")

	noCategory := booking.Service{ID: uuid.New(), Name: "Gift card"}
	f.store.PutService(noCategory)
	_, ok = f.scorer.Assign(context.Background(), Request{ServiceID: noCategory.ID, Date: day, Time: "10:00"})
	assert.False(t, ok, "service without category")

	_, err := f.scorer.Scores(context.Background(), Request{ServiceID: noCategory.ID, Date: day, Time: "10:00"})
	assert.ErrorIs(t, err, booking.ErrUnknownService)
}

type failingStore struct{ Store }

func (failingStore) GetService(context.Context, uuid.UUID) (*booking.Service, error) {
	return nil, errors.New("connection refused")
}

func TestAssignSwallowsLookupErrors(t *testing.T) {
	scorer := NewScorer(failingStore{}, logging.Discard(), nil)
	_, ok := scorer.Assign(context.Background(), Request{ServiceID: uuid.New(), Date: day, Time: "10:00"})
	assert.False(t, ok)
}

func TestPreviewHandler(t *testing.T) {
	f := newFixture(t)
	a := uuid.New()
	f.addStaff(a, "10:00")

	r := chi.NewRouter()
	NewHandler(f.scorer, logging.Discard()).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/preview?service_id="+f.service.ID.String()+"&date=2025-06-02&time=10:00", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Candidates []Candidate `json:"candidates"`
		Count      int         `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, a, body.Candidates[0].StaffID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview?date=2025-06-02&time=10:00", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
