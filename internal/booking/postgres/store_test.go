package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWithDB(mock), mock
}

func TestTransitionPayment(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE payments SET status").
		WithArgs(id, "Pending", "Completed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.TransitionPayment(context.Background(), id, booking.PaymentPending, booking.PaymentCompleted)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec("UPDATE payments SET status").
		WithArgs(id, "Pending", "Completed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	ok, err = store.TransitionPayment(context.Background(), id, booking.PaymentPending, booking.PaymentCompleted)
	require.NoError(t, err)
	assert.False(t, ok, "second transition must lose the race")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertLedgerEntryDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	entry := &booking.WalletLedgerEntry{TransactionID: "txn-1", UserID: uuid.New(), Points: 500, Amount: 500000}

	mock.ExpectExec("INSERT INTO wallet_ledger").
		WithArgs("txn-1", entry.UserID, int64(500), int64(500000), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO wallet_ledger").
		WithArgs("txn-1", entry.UserID, int64(500), int64(500000), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := store.InsertLedgerEntry(context.Background(), entry)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.InsertLedgerEntry(context.Background(), entry)
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordUsageUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	usage := &booking.PromotionUsage{UserID: uuid.New(), PromotionID: uuid.New(), UsedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}

	mock.ExpectExec("INSERT INTO promotion_usages").
		WithArgs(pgxmock.AnyArg(), usage.UserID, usage.PromotionID, usage.AppointmentID, "birthday", 2025, usage.UsedAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	recorded, err := store.RecordUsage(context.Background(), usage, booking.PromotionBirthday)
	require.NoError(t, err)
	assert.False(t, recorded)
	assert.Equal(t, 2025, usage.UsageYear)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetShiftNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	staffID := uuid.New()
	date := time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)

	mock.ExpectQuery("FROM staff_shifts").
		WithArgs(staffID, booking.DateOnly(date)).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetShift(context.Background(), staffID, date)
	assert.ErrorIs(t, err, booking.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListBusyStaff(t *testing.T) {
	store, mock := newMockStore(t)
	a, b := uuid.New(), uuid.New()
	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT DISTINCT therapist_id").
		WithArgs(date, "10:00").
		WillReturnRows(pgxmock.NewRows([]string{"therapist_id"}).AddRow(a).AddRow(b))

	busy, err := store.ListBusyStaff(context.Background(), date, "10:00")
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, busy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStaffBookedAt(t *testing.T) {
	store, mock := newMockStore(t)
	staffID, exclude := uuid.New(), uuid.New()
	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(staffID, date, "14:00", exclude).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	booked, err := store.StaffBookedAt(context.Background(), staffID, date, "14:00", exclude)
	require.NoError(t, err)
	assert.True(t, booked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateShiftHoursMissingRow(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE staff_shifts").
		WithArgs(id, "custom", 8, 17).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateShiftHours(context.Background(), id, booking.ShiftCustom, booking.ShiftHours{Start: 8, End: 17})
	assert.ErrorIs(t, err, booking.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAvailabilityParsesServiceIDs(t *testing.T) {
	store, mock := newMockStore(t)
	staffID, categoryID, serviceID := uuid.New(), uuid.New(), uuid.New()
	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM staff_availability").
		WithArgs(date, categoryID).
		WillReturnRows(pgxmock.NewRows([]string{"staff_id", "available_date", "time_slots", "available_service_ids"}).
			AddRow(staffID, date, []string{"09:00", "10:00"}, []string{serviceID.String()}))

	avail, err := store.ListAvailability(context.Background(), date, categoryID)
	require.NoError(t, err)
	require.Len(t, avail, 1)
	assert.Equal(t, staffID, avail[0].StaffID)
	assert.Equal(t, []string{"09:00", "10:00"}, avail[0].TimeSlots)
	assert.Equal(t, []uuid.UUID{serviceID}, avail[0].AvailableServiceIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxCommitsAndRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE treatment_courses").
		WithArgs(id, "cancelled").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(tx booking.Store) error {
		return tx.UpdateCourseStatus(context.Background(), id, booking.CourseCancelled)
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = store.WithinTx(context.Background(), func(tx booking.Store) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, mock.ExpectationsWereMet())
}
