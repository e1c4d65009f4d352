// Package memstore is an in-memory booking.Store used by tests and by the
// API when no DATABASE_URL is configured.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
)

type state struct {
	appointments  map[uuid.UUID]booking.Appointment
	courses       map[uuid.UUID]booking.TreatmentCourse
	sessions      map[uuid.UUID]booking.TreatmentSession
	shifts        map[uuid.UUID]booking.StaffShift
	services      map[uuid.UUID]booking.Service
	availability  []booking.StaffAvailability
	staffCategory map[uuid.UUID]map[uuid.UUID]bool
	payments      map[uuid.UUID]booking.Payment
	wallets       map[uuid.UUID]booking.Wallet
	ledger        map[string]booking.WalletLedgerEntry
	promotions    map[uuid.UUID]booking.Promotion
	usages        []booking.PromotionUsage
	usageKinds    []booking.PromotionKind
	clients       map[uuid.UUID]booking.Client
	admins        map[uuid.UUID]bool
	notifications []booking.Notification
}

func newState() *state {
	return &state{
		appointments:  make(map[uuid.UUID]booking.Appointment),
		courses:       make(map[uuid.UUID]booking.TreatmentCourse),
		sessions:      make(map[uuid.UUID]booking.TreatmentSession),
		shifts:        make(map[uuid.UUID]booking.StaffShift),
		services:      make(map[uuid.UUID]booking.Service),
		staffCategory: make(map[uuid.UUID]map[uuid.UUID]bool),
		payments:      make(map[uuid.UUID]booking.Payment),
		wallets:       make(map[uuid.UUID]booking.Wallet),
		ledger:        make(map[string]booking.WalletLedgerEntry),
		promotions:    make(map[uuid.UUID]booking.Promotion),
		clients:       make(map[uuid.UUID]booking.Client),
		admins:        make(map[uuid.UUID]bool),
	}
}

// clone copies every table. Entity values hold pointers to immutable data
// only, so a shallow copy per value is enough.
func (st *state) clone() *state {
	c := newState()
	for k, v := range st.appointments {
		c.appointments[k] = v
	}
	for k, v := range st.courses {
		c.courses[k] = v
	}
	for k, v := range st.sessions {
		c.sessions[k] = v
	}
	for k, v := range st.shifts {
		c.shifts[k] = v
	}
	for k, v := range st.services {
		c.services[k] = v
	}
	c.availability = append([]booking.StaffAvailability(nil), st.availability...)
	for staff, cats := range st.staffCategory {
		m := make(map[uuid.UUID]bool, len(cats))
		for cat := range cats {
			m[cat] = true
		}
		c.staffCategory[staff] = m
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	for k, v := range st.wallets {
		c.wallets[k] = v
	}
	for k, v := range st.ledger {
		c.ledger[k] = v
	}
	for k, v := range st.promotions {
		c.promotions[k] = v
	}
	c.usages = append([]booking.PromotionUsage(nil), st.usages...)
	c.usageKinds = append([]booking.PromotionKind(nil), st.usageKinds...)
	for k, v := range st.clients {
		c.clients[k] = v
	}
	for k := range st.admins {
		c.admins[k] = true
	}
	c.notifications = append([]booking.Notification(nil), st.notifications...)
	return c
}

type shared struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *state
}

// Store implements booking.Store in memory. Transactions are serialized and
// roll back by restoring a snapshot taken when they began. Writes made
// outside a transaction wait for the open one to finish, so a rollback never
// discards them.
type Store struct {
	sh   *shared
	inTx bool
}

// lockWrite takes the write lock and, outside a transaction, the
// transaction lock first. It returns the matching unlock.
func (s *Store) lockWrite() func() {
	if !s.inTx {
		s.sh.txMu.Lock()
	}
	s.sh.mu.Lock()
	return func() {
		s.sh.mu.Unlock()
		if !s.inTx {
			s.sh.txMu.Unlock()
		}
	}
}

var _ booking.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{sh: &shared{data: newState()}}
}

// WithinTx implements booking.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(tx booking.Store) error) (err error) {
	if s.inTx {
		return fn(s)
	}
	s.sh.txMu.Lock()
	defer s.sh.txMu.Unlock()

	s.sh.mu.RLock()
	snapshot := s.sh.data.clone()
	s.sh.mu.RUnlock()

	restore := func() {
		s.sh.mu.Lock()
		s.sh.data = snapshot
		s.sh.mu.Unlock()
	}
	defer func() {
		if p := recover(); p != nil {
			restore()
			panic(p)
		}
		if err != nil {
			restore()
		}
	}()
	return fn(&Store{sh: s.sh, inTx: true})
}

// Seeding helpers.

// PutService registers a bookable service.
func (s *Store) PutService(svc booking.Service) {
	defer s.lockWrite()()
	s.sh.data.services[svc.ID] = svc
}

// PutStaffCategories records which service categories a staff member is qualified for.
func (s *Store) PutStaffCategories(staffID uuid.UUID, categoryIDs ...uuid.UUID) {
	defer s.lockWrite()()
	m := s.sh.data.staffCategory[staffID]
	if m == nil {
		m = make(map[uuid.UUID]bool)
		s.sh.data.staffCategory[staffID] = m
	}
	for _, id := range categoryIDs {
		m[id] = true
	}
}

// PutAvailability records declared availability.
func (s *Store) PutAvailability(av booking.StaffAvailability) {
	defer s.lockWrite()()
	av.Date = booking.DateOnly(av.Date)
	s.sh.data.availability = append(s.sh.data.availability, av)
}

// PutPromotion registers a promotion.
func (s *Store) PutPromotion(p booking.Promotion) {
	defer s.lockWrite()()
	s.sh.data.promotions[p.ID] = p
}

// PutAdmin registers an active administrator.
func (s *Store) PutAdmin(id uuid.UUID) {
	defer s.lockWrite()()
	s.sh.data.admins[id] = true
}

// PutShift stores a shift as-is.
func (s *Store) PutShift(sh booking.StaffShift) {
	defer s.lockWrite()()
	if sh.ID == uuid.Nil {
		sh.ID = uuid.New()
	}
	sh.Date = booking.DateOnly(sh.Date)
	s.sh.data.shifts[sh.ID] = sh
}

// Notifications returns every stored notification in insertion order.
func (s *Store) Notifications() []booking.Notification {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	return append([]booking.Notification(nil), s.sh.data.notifications...)
}

// PromotionUsages returns every recorded promotion usage.
func (s *Store) PromotionUsages() []booking.PromotionUsage {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	return append([]booking.PromotionUsage(nil), s.sh.data.usages...)
}

// Appointments.

func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (*booking.Appointment, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	a, ok := s.sh.data.appointments[id]
	if !ok {
		return nil, fmt.Errorf("memstore: get appointment: %w", booking.ErrNotFound)
	}
	return &a, nil
}

func (s *Store) CreateAppointment(ctx context.Context, a *booking.Appointment) error {
	defer s.lockWrite()()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = booking.StatusPending
	}
	if a.PaymentStatus == "" {
		a.PaymentStatus = booking.Unpaid
	}
	a.Date = booking.DateOnly(a.Date)
	if a.TherapistID != nil && a.Status.Active() && s.staffBookedLocked(*a.TherapistID, a.Date, a.Time, uuid.Nil) {
		return fmt.Errorf("memstore: create appointment: %w", booking.ErrSlotTaken)
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.sh.data.appointments[a.ID] = *a
	return nil
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status booking.AppointmentStatus, therapistID *uuid.UUID) (*booking.Appointment, error) {
	defer s.lockWrite()()
	a, ok := s.sh.data.appointments[id]
	if !ok {
		return nil, fmt.Errorf("memstore: update appointment status: %w", booking.ErrNotFound)
	}
	a.Status = status
	if therapistID != nil {
		t := *therapistID
		a.TherapistID = &t
	}
	a.UpdatedAt = time.Now().UTC()
	s.sh.data.appointments[id] = a
	return &a, nil
}

func (s *Store) UpdateAppointmentSchedule(ctx context.Context, id uuid.UUID, date time.Time, clock string, therapistID *uuid.UUID, status booking.AppointmentStatus) error {
	defer s.lockWrite()()
	a, ok := s.sh.data.appointments[id]
	if !ok {
		return fmt.Errorf("memstore: update appointment schedule: %w", booking.ErrNotFound)
	}
	a.Date = booking.DateOnly(date)
	a.Time = clock
	if therapistID != nil {
		t := *therapistID
		a.TherapistID = &t
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	s.sh.data.appointments[id] = a
	return nil
}

func (s *Store) SetAppointmentsPayment(ctx context.Context, ids []uuid.UUID, payment booking.PaymentStatus, status *booking.AppointmentStatus) (int64, error) {
	defer s.lockWrite()()
	var n int64
	for _, id := range ids {
		a, ok := s.sh.data.appointments[id]
		if !ok {
			continue
		}
		a.PaymentStatus = payment
		if status != nil {
			a.Status = *status
		}
		a.UpdatedAt = time.Now().UTC()
		s.sh.data.appointments[id] = a
		n++
	}
	return n, nil
}

func (s *Store) ListAppointmentsByGroup(ctx context.Context, groupIDs []string) ([]booking.Appointment, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	want := make(map[string]bool, len(groupIDs))
	for _, g := range groupIDs {
		want[g] = true
	}
	return s.filterAppointmentsLocked(func(a booking.Appointment) bool {
		return a.BookingGroupID != nil && want[*a.BookingGroupID]
	}), nil
}

func (s *Store) ListAppointmentsByGroupFragment(ctx context.Context, fragment string, clientID uuid.UUID) ([]booking.Appointment, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	return s.filterAppointmentsLocked(func(a booking.Appointment) bool {
		return a.ClientID == clientID && a.BookingGroupID != nil && strings.Contains(*a.BookingGroupID, fragment)
	}), nil
}

func (s *Store) ListBusyStaff(ctx context.Context, date time.Time, clock string) ([]uuid.UUID, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	date = booking.DateOnly(date)
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, a := range s.sh.data.appointments {
		if a.TherapistID == nil || !a.Status.Active() || !a.Date.Equal(date) || a.Time != clock {
			continue
		}
		if !seen[*a.TherapistID] {
			seen[*a.TherapistID] = true
			ids = append(ids, *a.TherapistID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (s *Store) StaffBookedAt(ctx context.Context, staffID uuid.UUID, date time.Time, clock string, excludeID uuid.UUID) (bool, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	return s.staffBookedLocked(staffID, booking.DateOnly(date), clock, excludeID), nil
}

func (s *Store) staffBookedLocked(staffID uuid.UUID, date time.Time, clock string, excludeID uuid.UUID) bool {
	for _, a := range s.sh.data.appointments {
		if a.ID == excludeID || a.TherapistID == nil || *a.TherapistID != staffID {
			continue
		}
		if a.Status.Active() && a.Date.Equal(date) && a.Time == clock {
			return true
		}
	}
	return false
}

func (s *Store) CountCompletedVisits(ctx context.Context, clientID, staffID uuid.UUID) (int, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	n := 0
	for _, a := range s.sh.data.appointments {
		if a.ClientID == clientID && a.TherapistID != nil && *a.TherapistID == staffID && a.Status == booking.StatusCompleted {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountStaffDayLoad(ctx context.Context, staffID uuid.UUID, date time.Time) (int, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	date = booking.DateOnly(date)
	n := 0
	for _, a := range s.sh.data.appointments {
		if a.TherapistID != nil && *a.TherapistID == staffID && a.Date.Equal(date) && a.Status != booking.StatusCancelled {
			n++
		}
	}
	return n, nil
}

func (s *Store) filterAppointmentsLocked(keep func(booking.Appointment) bool) []booking.Appointment {
	var out []booking.Appointment
	for _, a := range s.sh.data.appointments {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
