package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
)

// Shifts.

func (s *Store) GetShift(ctx context.Context, staffID uuid.UUID, date time.Time) (*booking.StaffShift, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	date = booking.DateOnly(date)
	for _, sh := range s.sh.data.shifts {
		if sh.StaffID == staffID && sh.Date.Equal(date) {
			return &sh, nil
		}
	}
	return nil, fmt.Errorf("memstore: get shift: %w", booking.ErrNotFound)
}

func (s *Store) CreateShift(ctx context.Context, sh *booking.StaffShift) error {
	if sh.ID == uuid.Nil {
		sh.ID = uuid.New()
	}
	sh.Date = booking.DateOnly(sh.Date)
	defer s.lockWrite()()
	s.sh.data.shifts[sh.ID] = *sh
	return nil
}

func (s *Store) UpdateShiftHours(ctx context.Context, id uuid.UUID, shiftType booking.ShiftType, hours booking.ShiftHours) error {
	defer s.lockWrite()()
	sh, ok := s.sh.data.shifts[id]
	if !ok {
		return fmt.Errorf("memstore: update shift hours: %w", booking.ErrNotFound)
	}
	sh.ShiftType = shiftType
	sh.Hours = hours
	s.sh.data.shifts[id] = sh
	return nil
}

// Catalog and staff.

func (s *Store) GetService(ctx context.Context, id uuid.UUID) (*booking.Service, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	svc, ok := s.sh.data.services[id]
	if !ok {
		return nil, fmt.Errorf("memstore: get service: %w", booking.ErrNotFound)
	}
	return &svc, nil
}

func (s *Store) ListAvailability(ctx context.Context, date time.Time, categoryID uuid.UUID) ([]booking.StaffAvailability, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	date = booking.DateOnly(date)
	var out []booking.StaffAvailability
	for _, av := range s.sh.data.availability {
		if av.Date.Equal(date) && s.sh.data.staffCategory[av.StaffID][categoryID] {
			out = append(out, av)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StaffID.String() < out[j].StaffID.String() })
	return out, nil
}

// Payments.

func (s *Store) CreatePayment(ctx context.Context, p *booking.Payment) error {
	defer s.lockWrite()()
	for _, existing := range s.sh.data.payments {
		if existing.TransactionID == p.TransactionID {
			return fmt.Errorf("memstore: create payment: duplicate transaction id %s: %w", p.TransactionID, booking.ErrValidation)
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = booking.PaymentPending
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.sh.data.payments[p.ID] = *p
	return nil
}

func (s *Store) GetPaymentByTransaction(ctx context.Context, transactionID string) (*booking.Payment, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	for _, p := range s.sh.data.payments {
		if p.TransactionID == transactionID {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("memstore: get payment by transaction: %w", booking.ErrNotFound)
}

func (s *Store) TransitionPayment(ctx context.Context, id uuid.UUID, from, to booking.PaymentRecordStatus) (bool, error) {
	defer s.lockWrite()()
	p, ok := s.sh.data.payments[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = time.Now().UTC()
	s.sh.data.payments[id] = p
	return true, nil
}

// Wallets.

func (s *Store) GetWallet(ctx context.Context, userID uuid.UUID) (*booking.Wallet, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	w, ok := s.sh.data.wallets[userID]
	if !ok {
		return nil, fmt.Errorf("memstore: get wallet: %w", booking.ErrNotFound)
	}
	return &w, nil
}

func (s *Store) SaveWallet(ctx context.Context, w *booking.Wallet) error {
	defer s.lockWrite()()
	w.UpdatedAt = time.Now().UTC()
	s.sh.data.wallets[w.UserID] = *w
	return nil
}

func (s *Store) InsertLedgerEntry(ctx context.Context, e *booking.WalletLedgerEntry) (bool, error) {
	defer s.lockWrite()()
	if _, exists := s.sh.data.ledger[e.TransactionID]; exists {
		return false, nil
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.sh.data.ledger[e.TransactionID] = *e
	return true, nil
}

// Promotions.

func (s *Store) GetPromotion(ctx context.Context, id uuid.UUID) (*booking.Promotion, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	p, ok := s.sh.data.promotions[id]
	if !ok {
		return nil, fmt.Errorf("memstore: get promotion: %w", booking.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) UsageExists(ctx context.Context, userID, promotionID, appointmentID uuid.UUID) (bool, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	for _, u := range s.sh.data.usages {
		if u.UserID == userID && u.PromotionID == promotionID && u.AppointmentID != nil && *u.AppointmentID == appointmentID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) RecordUsage(ctx context.Context, u *booking.PromotionUsage, kind booking.PromotionKind) (bool, error) {
	defer s.lockWrite()()
	if u.UsedAt.IsZero() {
		u.UsedAt = time.Now().UTC()
	}
	if u.UsageYear == 0 {
		u.UsageYear = u.UsedAt.Year()
	}
	for i, existing := range s.sh.data.usages {
		if existing.UserID != u.UserID || existing.PromotionID != u.PromotionID {
			continue
		}
		if kind != booking.PromotionBirthday || s.sh.data.usageKinds[i] != booking.PromotionBirthday {
			return false, nil
		}
		if existing.UsageYear == u.UsageYear {
			return false, nil
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	s.sh.data.usages = append(s.sh.data.usages, *u)
	s.sh.data.usageKinds = append(s.sh.data.usageKinds, kind)
	return true, nil
}

// Clients.

func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (*booking.Client, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	c, ok := s.sh.data.clients[id]
	if !ok {
		return nil, fmt.Errorf("memstore: get client: %w", booking.ErrNotFound)
	}
	return &c, nil
}

func (s *Store) FindClientByPhone(ctx context.Context, phone string) (*booking.Client, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	var found *booking.Client
	for _, c := range s.sh.data.clients {
		if c.Phone != phone {
			continue
		}
		if found == nil || c.CreatedAt.Before(found.CreatedAt) {
			cc := c
			found = &cc
		}
	}
	if found == nil {
		return nil, fmt.Errorf("memstore: find client by phone: %w", booking.ErrNotFound)
	}
	return found, nil
}

func (s *Store) CreateClient(ctx context.Context, c *booking.Client) error {
	defer s.lockWrite()()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now().UTC()
	s.sh.data.clients[c.ID] = *c
	return nil
}

// Notifications.

func (s *Store) CreateNotification(ctx context.Context, n *booking.Notification) error {
	defer s.lockWrite()()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = time.Now().UTC()
	s.sh.data.notifications = append(s.sh.data.notifications, *n)
	return nil
}

func (s *Store) ListActiveAdminIDs(ctx context.Context) ([]uuid.UUID, error) {
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(s.sh.data.admins))
	for id := range s.sh.data.admins {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}
