// Package assignment picks a staff member for an unassigned appointment.
package assignment

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/observability/metrics"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

var tracer = otel.Tracer("spa.internal.assignment")

const (
	repeatVisitBase    = 100
	repeatVisitPerStay = 10
	workloadBase       = 50
	workloadPerBooking = 10
)

// Store is the read access the scorer needs.
type Store interface {
	GetService(ctx context.Context, id uuid.UUID) (*booking.Service, error)
	ListAvailability(ctx context.Context, date time.Time, categoryID uuid.UUID) ([]booking.StaffAvailability, error)
	ListBusyStaff(ctx context.Context, date time.Time, clock string) ([]uuid.UUID, error)
	CountCompletedVisits(ctx context.Context, clientID, staffID uuid.UUID) (int, error)
	CountStaffDayLoad(ctx context.Context, staffID uuid.UUID, date time.Time) (int, error)
}

// Request identifies the slot to staff.
type Request struct {
	ServiceID uuid.UUID
	ClientID  uuid.UUID
	Date      time.Time
	Time      string
}

// Candidate is one eligible staff member and the inputs to their score.
type Candidate struct {
	StaffID         uuid.UUID `json:"staff_id"`
	CompletedVisits int       `json:"completed_visits"`
	DayLoad         int       `json:"day_load"`
	Score           int       `json:"score"`
}

// Scorer ranks eligible staff for a slot.
type Scorer struct {
	store   Store
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
}

func NewScorer(store Store, logger *logging.Logger, m *metrics.BookingMetrics) *Scorer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scorer{store: store, logger: logger, metrics: m}
}

// Score computes the ranking score from visit history and same-day load.
func Score(completedVisits, dayLoad int) int {
	repeat := 0
	if completedVisits > 0 {
		repeat = repeatVisitBase + repeatVisitPerStay*completedVisits
	}
	return repeat + max(0, workloadBase-workloadPerBooking*dayLoad)
}

// Assign returns the best staff member for the slot. It never fails: any
// lookup error is logged and reported as no candidate.
func (s *Scorer) Assign(ctx context.Context, req Request) (uuid.UUID, bool) {
	ctx, span := tracer.Start(ctx, "assignment.assign")
	defer span.End()
	span.SetAttributes(
		attribute.String("spa.service_id", req.ServiceID.String()),
		attribute.String("spa.date", req.Date.Format(time.DateOnly)),
		attribute.String("spa.time", req.Time),
	)

	eligible, err := s.eligible(ctx, req)
	if err != nil {
		s.metrics.ObserveAssignment("error")
		s.logger.Warn("assignment: lookup failed, leaving appointment unassigned",
			"service_id", req.ServiceID,
			"date", req.Date.Format(time.DateOnly),
			"time", req.Time,
			"error", err,
		)
		return uuid.Nil, false
	}
	switch len(eligible) {
	case 0:
		s.metrics.ObserveAssignment("none")
		return uuid.Nil, false
	case 1:
		s.metrics.ObserveAssignment("single")
		span.SetAttributes(attribute.String("spa.staff_id", eligible[0].String()))
		return eligible[0], true
	}

	ranked, err := s.rank(ctx, req, eligible)
	if err != nil {
		s.metrics.ObserveAssignment("error")
		s.logger.Warn("assignment: scoring failed, leaving appointment unassigned",
			"service_id", req.ServiceID,
			"error", err,
		)
		return uuid.Nil, false
	}
	best := ranked[0]
	s.metrics.ObserveAssignment("assigned")
	span.SetAttributes(
		attribute.String("spa.staff_id", best.StaffID.String()),
		attribute.Int("spa.score", best.Score),
	)
	s.logger.Debug("assignment: staff selected",
		"staff_id", best.StaffID,
		"score", best.Score,
		"candidates", len(ranked),
	)
	return best.StaffID, true
}

// Scores returns every eligible candidate ranked best first. Unlike Assign
// it reports lookup errors.
func (s *Scorer) Scores(ctx context.Context, req Request) ([]Candidate, error) {
	eligible, err := s.eligible(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, nil
	}
	return s.rank(ctx, req, eligible)
}

func (s *Scorer) eligible(ctx context.Context, req Request) ([]uuid.UUID, error) {
	svc, err := s.store.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("assignment: resolve service: %w", err)
	}
	if svc.CategoryID == nil {
		return nil, fmt.Errorf("assignment: service %s has no category: %w", svc.ID, booking.ErrUnknownService)
	}
	if _, ok := booking.ParseClock(req.Time); !ok {
		return nil, fmt.Errorf("assignment: %q: %w", req.Time, booking.ErrInvalidTime)
	}

	records, err := s.store.ListAvailability(ctx, req.Date, *svc.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("assignment: list availability: %w", err)
	}
	busyIDs, err := s.store.ListBusyStaff(ctx, req.Date, req.Time)
	if err != nil {
		return nil, fmt.Errorf("assignment: list busy staff: %w", err)
	}
	busy := make(map[uuid.UUID]bool, len(busyIDs))
	for _, id := range busyIDs {
		busy[id] = true
	}

	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, rec := range records {
		if seen[rec.StaffID] || busy[rec.StaffID] {
			continue
		}
		if !slices.Contains(rec.TimeSlots, req.Time) {
			continue
		}
		if rec.AvailableServiceIDs != nil && !slices.Contains(rec.AvailableServiceIDs, req.ServiceID) {
			continue
		}
		seen[rec.StaffID] = true
		out = append(out, rec.StaffID)
	}
	sortIDs(out)
	return out, nil
}

func (s *Scorer) rank(ctx context.Context, req Request, staff []uuid.UUID) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(staff))
	for _, id := range staff {
		visits, err := s.store.CountCompletedVisits(ctx, req.ClientID, id)
		if err != nil {
			return nil, fmt.Errorf("assignment: count visits: %w", err)
		}
		load, err := s.store.CountStaffDayLoad(ctx, id, req.Date)
		if err != nil {
			return nil, fmt.Errorf("assignment: count day load: %w", err)
		}
		candidates = append(candidates, Candidate{
			StaffID:         id,
			CompletedVisits: visits,
			DayLoad:         load,
			Score:           Score(visits, load),
		})
	}
	// Highest score first; ties go to the lowest staff id.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].StaffID.String() < candidates[j].StaffID.String()
	})
	return candidates, nil
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
