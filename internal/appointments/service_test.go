package appointments

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/spa-booking-engine/internal/assignment"
	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/booking/memstore"
	"github.com/wolfman30/spa-booking-engine/internal/clients"
	"github.com/wolfman30/spa-booking-engine/internal/courses"
	"github.com/wolfman30/spa-booking-engine/internal/effects"
	"github.com/wolfman30/spa-booking-engine/internal/events"
	"github.com/wolfman30/spa-booking-engine/internal/notify"
	"github.com/wolfman30/spa-booking-engine/internal/shifts"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

var day = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memstore.Store
	service *Service
	svc     booking.Service
	client  booking.Client
	staff   uuid.UUID
	admin   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.Discard()
	store := memstore.New()

	category := uuid.New()
	svc := booking.Service{ID: uuid.New(), Name: "Hydra facial", Price: 600000, DurationMinutes: 60, CategoryID: &category}
	store.PutService(svc)
	client := booking.Client{Name: "Le Thu Ha", Phone: "0912000111"}
	require.NoError(t, store.CreateClient(context.Background(), &client))

	staff := uuid.New()
	store.PutStaffCategories(staff, category)
	store.PutAvailability(booking.StaffAvailability{StaffID: staff, Date: day, TimeSlots: []string{"10:00", "14:00"}})
	admin := uuid.New()
	store.PutAdmin(admin)

	courseSvc := courses.NewService(store, logger)
	notifier := notify.NewService(store, events.NewMemoryOutbox(), logger)
	runner := effects.NewRunner(logger, nil)
	lifecycle := NewLifecycle(runner, logger).
		Register(StandardObservers(courseSvc, shifts.NewService(store, logger), notifier, logger)...)

	service := NewService(Deps{
		Store:     store,
		Scorer:    assignment.NewScorer(store, logger, nil),
		Courses:   courseSvc,
		Lifecycle: lifecycle,
		Notifier:  notifier,
		Runner:    runner,
		Logger:    logger,
	})
	return &fixture{store: store, service: service, svc: svc, client: client, staff: staff, admin: admin}
}

func (f *fixture) input() CreateInput {
	return CreateInput{ServiceID: f.svc.ID, ClientID: &f.client.ID, Date: day, Time: "10:00"}
}

func notificationsFor(store *memstore.Store, user uuid.UUID) []booking.Notification {
	var out []booking.Notification
	for _, n := range store.Notifications() {
		if n.UserID == user {
			out = append(out, n)
		}
	}
	return out
}

func TestCreateAutoAssignsAndNotifiesAdmins(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.Create(context.Background(), f.input())
	require.NoError(t, err)

	appt := result.Appointment
	assert.True(t, result.AutoAssigned)
	require.NotNil(t, appt.TherapistID)
	assert.Equal(t, f.staff, *appt.TherapistID)
	assert.Equal(t, booking.StatusPending, appt.Status)
	assert.Equal(t, booking.Unpaid, appt.PaymentStatus)
	assert.Nil(t, result.Course)

	adminNotes := notificationsFor(f.store, f.admin)
	require.Len(t, adminNotes, 1)
	assert.Equal(t, booking.NotifyAppointmentCreated, adminNotes[0].Type)
}

func TestCreateWithoutEligibleStaffStaysUnassigned(t *testing.T) {
	f := newFixture(t)
	in := f.input()
	in.Time = "18:00"

	result, err := f.service.Create(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, result.AutoAssigned)
	assert.Nil(t, result.Appointment.TherapistID)
}

func TestCreateRejectsBusyTherapist(t *testing.T) {
	f := newFixture(t)
	in := f.input()
	in.TherapistID = &f.staff
	_, err := f.service.Create(context.Background(), in)
	require.NoError(t, err)

	other := booking.Client{Name: "Pham Van An", Phone: "0912000222"}
	require.NoError(t, f.store.CreateClient(context.Background(), &other))
	in.ClientID = &other.ID
	_, err = f.service.Create(context.Background(), in)
	assert.ErrorIs(t, err, booking.ErrSlotTaken)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.input()
	in.Time = "25:00"
	_, err := f.service.Create(ctx, in)
	assert.ErrorIs(t, err, booking.ErrInvalidTime)

	in = f.input()
	in.ClientID = nil
	_, err = f.service.Create(ctx, in)
	assert.ErrorIs(t, err, booking.ErrMissingField)

	in = f.input()
	in.ServiceID = uuid.New()
	_, err = f.service.Create(ctx, in)
	assert.ErrorIs(t, err, booking.ErrUnknownService)
}

func TestCreateWithNewClientInfo(t *testing.T) {
	f := newFixture(t)
	in := f.input()
	in.ClientID = nil
	in.NewClient = &clients.NewClientInfo{Name: "Vo Minh Chau", Phone: "+84 933 444 555"}

	result, err := f.service.Create(context.Background(), in)
	require.NoError(t, err)

	client, err := f.store.FindClientByPhone(context.Background(), "0933444555")
	require.NoError(t, err)
	assert.Equal(t, client.ID, result.Appointment.ClientID)
}

func TestCreatePackageOpensCourse(t *testing.T) {
	f := newFixture(t)
	in := f.input()
	in.Quantity = 5
	in.FrequencyType = booking.FrequencySessionsPerWeek
	in.FrequencyValue = 1

	result, err := f.service.Create(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, result.Course)

	course := result.Course.Course
	assert.Equal(t, 5, course.TotalSessions)
	require.NotNil(t, result.Appointment.BookingGroupID)
	assert.Equal(t, booking.CourseGroupID(course.ID), *result.Appointment.BookingGroupID)

	session, err := f.store.FindSessionByAppointment(context.Background(), result.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, session.SessionNumber)

	sessions, err := f.store.ListSessions(context.Background(), course.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 5)
	assert.Equal(t, day.AddDate(0, 0, 28), sessions[4].SessionDate)
}

func TestCreatePackageRollsBackOnBadFrequency(t *testing.T) {
	f := newFixture(t)
	in := f.input()
	in.Quantity = 3
	in.FrequencyType = "fortnightly"
	in.FrequencyValue = 1

	_, err := f.service.Create(context.Background(), in)
	assert.ErrorIs(t, err, booking.ErrValidation)

	busy, err := f.store.StaffBookedAt(context.Background(), f.staff, day, "10:00", uuid.Nil)
	require.NoError(t, err)
	assert.False(t, busy, "appointment must not survive the failed transaction")
}

func TestCreatePrivateVoucherIsSingleUse(t *testing.T) {
	f := newFixture(t)
	promo := booking.Promotion{ID: uuid.New(), Code: "VIP10", Kind: booking.PromotionStandard}
	f.store.PutPromotion(promo)

	in := f.input()
	in.PromotionID = &promo.ID
	_, err := f.service.Create(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, f.store.PromotionUsages(), 1)

	in.Time = "14:00"
	_, err = f.service.Create(context.Background(), in)
	assert.ErrorIs(t, err, ErrPromotionUsed)
	assert.Len(t, f.store.PromotionUsages(), 1)
}

func TestCreatePublicPromotionNotRecordedAtBooking(t *testing.T) {
	f := newFixture(t)
	promo := booking.Promotion{ID: uuid.New(), Code: "SPRING", Kind: booking.PromotionStandard, IsPublic: true}
	f.store.PutPromotion(promo)

	in := f.input()
	in.PromotionID = &promo.ID
	_, err := f.service.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, f.store.PromotionUsages())
}

func TestAcceptancePropagatesCourseAndShift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.input()
	in.Quantity = 3
	created, err := f.service.Create(ctx, in)
	require.NoError(t, err)

	updated, err := f.service.UpdateStatus(ctx, created.Appointment.ID, booking.StatusUpcoming, &f.staff)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusUpcoming, updated.Status)

	sessions, err := f.store.ListSessions(ctx, created.Course.Course.ID)
	require.NoError(t, err)
	for _, s := range sessions {
		require.NotNil(t, s.StaffID, "session %d", s.SessionNumber)
		assert.Equal(t, f.staff, *s.StaffID)
		require.NotNil(t, s.AppointmentID, "session %d", s.SessionNumber)
	}
	group, err := f.store.ListAppointmentsByGroup(ctx, []string{booking.CourseGroupID(created.Course.Course.ID)})
	require.NoError(t, err)
	assert.Len(t, group, 3)

	shift, err := f.store.GetShift(ctx, f.staff, day)
	require.NoError(t, err)
	assert.True(t, shift.Hours.Covers(10))
	assert.Equal(t, booking.ShiftApproved, shift.Status)

	clientNotes := notificationsFor(f.store, f.client.ID)
	require.Len(t, clientNotes, 1)
	assert.Equal(t, booking.NotifyAppointmentConfirmed, clientNotes[0].Type)
}

func TestCancellationDemotesCourse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.input()
	in.Quantity = 2
	created, err := f.service.Create(ctx, in)
	require.NoError(t, err)
	_, err = f.service.UpdateStatus(ctx, created.Appointment.ID, booking.StatusScheduled, nil)
	require.NoError(t, err)

	_, err = f.service.UpdateStatus(ctx, created.Appointment.ID, booking.StatusCancelled, nil)
	require.NoError(t, err)

	course, err := f.store.GetCourse(ctx, created.Course.Course.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.CourseCancelled, course.Status)
}

func TestCancellingOneGroupMemberLeavesSiblings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.input()
	in.Quantity = 3
	created, err := f.service.Create(ctx, in)
	require.NoError(t, err)
	courseID := created.Course.Course.ID

	_, err = f.service.UpdateStatus(ctx, created.Appointment.ID, booking.StatusUpcoming, &f.staff)
	require.NoError(t, err)
	group, err := f.store.ListAppointmentsByGroup(ctx, []string{booking.CourseGroupID(courseID)})
	require.NoError(t, err)
	require.Len(t, group, 3)

	_, err = f.service.UpdateStatus(ctx, created.Appointment.ID, booking.StatusCancelled, nil)
	require.NoError(t, err)

	group, err = f.store.ListAppointmentsByGroup(ctx, []string{booking.CourseGroupID(courseID)})
	require.NoError(t, err)
	for _, a := range group {
		if a.ID == created.Appointment.ID {
			assert.Equal(t, booking.StatusCancelled, a.Status)
			continue
		}
		assert.Equal(t, booking.StatusUpcoming, a.Status, "sibling %s", a.ID)
	}
	course, err := f.store.GetCourse(ctx, courseID)
	require.NoError(t, err)
	assert.Equal(t, booking.CourseCancelled, course.Status)
}

func TestAcceptanceCoversSiblingShifts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.input()
	in.Quantity = 3
	created, err := f.service.Create(ctx, in)
	require.NoError(t, err)

	_, err = f.service.UpdateStatus(ctx, created.Appointment.ID, booking.StatusUpcoming, &f.staff)
	require.NoError(t, err)

	sessions, err := f.store.ListSessions(ctx, created.Course.Course.ID)
	require.NoError(t, err)
	for _, s := range sessions[1:] {
		shift, err := f.store.GetShift(ctx, f.staff, s.SessionDate)
		require.NoError(t, err, "session %d", s.SessionNumber)
		hour, _ := booking.ParseClock(s.SessionTime)
		assert.True(t, shift.Hours.Covers(hour), "session %d", s.SessionNumber)
	}
}

func TestCourseSessionCompletionNotifiesClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.input()
	in.Quantity = 2
	created, err := f.service.Create(ctx, in)
	require.NoError(t, err)
	_, err = f.service.UpdateStatus(ctx, created.Appointment.ID, booking.StatusUpcoming, &f.staff)
	require.NoError(t, err)
	require.Len(t, notificationsFor(f.store, f.client.ID), 1)

	_, err = f.service.courses.CompleteSession(ctx, created.Course.Course.ID, 1, "")
	require.NoError(t, err)

	appt, err := f.store.GetAppointment(ctx, created.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCompleted, appt.Status)

	notes := notificationsFor(f.store, f.client.ID)
	require.Len(t, notes, 2)
	assert.Equal(t, booking.NotifyAppointmentCompleted, notes[1].Type)

	course, err := f.store.GetCourse(ctx, created.Course.Course.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, course.CompletedSessions, "the completion observer must not count the session twice")
}

func TestCompletionAdvancesCourse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.input()
	in.Quantity = 2
	created, err := f.service.Create(ctx, in)
	require.NoError(t, err)

	_, err = f.service.UpdateStatus(ctx, created.Appointment.ID, booking.StatusCompleted, nil)
	require.NoError(t, err)

	course, err := f.store.GetCourse(ctx, created.Course.Course.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, course.CompletedSessions)
	assert.Equal(t, booking.CourseActive, course.Status)

	_, err = f.service.UpdateStatus(ctx, created.Appointment.ID, booking.StatusPending, nil)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
}

func TestSameStatusIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.service.Create(ctx, f.input())
	require.NoError(t, err)

	_, err = f.service.UpdateStatus(ctx, created.Appointment.ID, booking.StatusPending, nil)
	require.NoError(t, err)
	assert.Empty(t, notificationsFor(f.store, f.client.ID))
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.UpdateStatus(context.Background(), uuid.New(), "archived", nil)
	assert.ErrorIs(t, err, booking.ErrInvalidStatus)

	_, err = f.service.UpdateStatus(context.Background(), uuid.New(), booking.StatusConfirmed, nil)
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

func TestReassignToBusyTherapistConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.input()
	in.TherapistID = &f.staff
	_, err := f.service.Create(ctx, in)
	require.NoError(t, err)

	other := uuid.New()
	in.TherapistID = &other
	second, err := f.service.Create(ctx, in)
	require.NoError(t, err)

	_, err = f.service.UpdateStatus(ctx, second.Appointment.ID, booking.StatusScheduled, &f.staff)
	assert.ErrorIs(t, err, booking.ErrSlotTaken)
}

func TestObserverFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.service.Create(ctx, f.input())
	require.NoError(t, err)

	var reached bool
	lifecycle := NewLifecycle(nil, logging.Discard()).Register(
		Observer{Name: "boom", Run: func(context.Context, Change) error { return errors.New("boom") }},
		Observer{Name: "panics", Run: func(context.Context, Change) error { panic("observer bug") }},
		Observer{Name: "after", Run: func(context.Context, Change) error { reached = true; return nil }},
	)
	svc := NewService(Deps{Store: f.store, Lifecycle: lifecycle, Logger: logging.Discard()})

	updated, err := svc.UpdateStatus(ctx, created.Appointment.ID, booking.StatusConfirmed, nil)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, updated.Status)
	assert.True(t, reached)

	failed := lifecycle.Apply(ctx, Change{Before: created.Appointment, After: *updated})
	assert.Equal(t, []string{"boom", "panics"}, failed)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(booking.StatusPending, booking.StatusUpcoming))
	assert.True(t, CanTransition(booking.StatusUpcoming, booking.StatusPending))
	assert.True(t, CanTransition(booking.StatusCancelled, booking.StatusPending))
	assert.False(t, CanTransition(booking.StatusCancelled, booking.StatusConfirmed))
	assert.False(t, CanTransition(booking.StatusCompleted, booking.StatusCancelled))
	assert.False(t, CanTransition(booking.StatusInProgress, booking.StatusPending))
	assert.False(t, CanTransition(booking.StatusPending, "archived"))
}

func TestHandlerCreateAndPatch(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.service, logging.Discard())
	r := chi.NewRouter()
	r.Route("/api/appointments", func(r chi.Router) {
		h.RegisterPublicRoutes(r)
		h.RegisterAdminRoutes(r)
	})

	body := `{"service_id":"` + f.svc.ID.String() + `","client_id":"` + f.client.ID.String() + `","date":"2025-03-10","time":"14:00","quantity":2}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/appointments/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"course"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/appointments/", strings.NewReader(`{"service_id":"nope"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	created, err := f.service.Create(context.Background(), f.input())
	require.NoError(t, err)
	path := "/api/appointments/" + created.Appointment.ID.String() + "/status"

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, path, strings.NewReader(`{"status":"done"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, path, strings.NewReader(`{"status":"completed"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, path, strings.NewReader(`{"status":"cancelled"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/appointments/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
