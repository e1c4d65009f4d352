// Package payments takes payments through checkout and reconciles gateway
// confirmations with appointments, courses and loyalty wallets.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/events"
	"github.com/wolfman30/spa-booking-engine/internal/loyalty"
	"github.com/wolfman30/spa-booking-engine/internal/observability/metrics"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

var tracer = otel.Tracer("spa.internal.payments")

// ErrAmountMismatch is returned when the gateway reports a different amount
// than the stored payment. Nothing is written.
var ErrAmountMismatch = fmt.Errorf("%w: amount mismatch", booking.ErrValidation)

// Outcome is the gateway verdict on a payment.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Trigger names the channel a confirmation arrived through.
type Trigger string

const (
	TriggerReturn Trigger = "return"
	TriggerIPN    Trigger = "ipn"
	TriggerManual Trigger = "manual"
)

// ReconcileInput is one confirmation. A nil Amount skips the amount check.
type ReconcileInput struct {
	TransactionID string
	Outcome       Outcome
	Amount        *int64
	Trigger       Trigger
}

// ReconcileResult describes what a confirmation changed. Applied is false
// when the payment had already left Pending.
type ReconcileResult struct {
	Payment            booking.Payment `json:"payment"`
	Applied            bool            `json:"applied"`
	CourseID           *uuid.UUID      `json:"course_id,omitempty"`
	SyncedAppointments int             `json:"synced_appointments"`
	WalletCredited     bool            `json:"wallet_credited"`
}

// Reconciler applies payment confirmations.
type Reconciler struct {
	store   booking.Store
	wallets *loyalty.Wallets
	outbox  events.Outbox
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
	now     func() time.Time
}

func NewReconciler(store booking.Store, wallets *loyalty.Wallets, outbox events.Outbox, logger *logging.Logger, m *metrics.BookingMetrics) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	if wallets == nil {
		wallets = loyalty.NewWallets(store, nil, logger)
	}
	return &Reconciler{store: store, wallets: wallets, outbox: outbox, metrics: m, logger: logger, now: time.Now}
}

// Reconcile moves the payment out of Pending and runs the follow-up steps.
// The payment row transition is atomic: of two concurrent confirmations only
// one applies, the other returns Applied=false. Follow-up step errors are
// joined and returned with a non-nil result; the payment row stays updated.
func (r *Reconciler) Reconcile(ctx context.Context, in ReconcileInput) (result *ReconcileResult, err error) {
	ctx, span := tracer.Start(ctx, "payments.reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("spa.transaction_id", in.TransactionID),
		attribute.String("spa.outcome", string(in.Outcome)),
		attribute.String("spa.trigger", string(in.Trigger)),
	)

	started := r.now()
	defer func() {
		label := "error"
		switch {
		case result != nil && !result.Applied && err == nil:
			label = "noop"
		case result != nil && result.Applied && err == nil:
			label = "applied"
		}
		r.metrics.ObserveReconcile(string(in.Trigger), string(in.Outcome), label, r.now().Sub(started).Seconds())
	}()

	if in.TransactionID == "" {
		return nil, fmt.Errorf("payments: reconcile: %w", booking.MissingField("transaction_id"))
	}
	var target booking.PaymentRecordStatus
	switch in.Outcome {
	case OutcomeSuccess:
		target = booking.PaymentCompleted
	case OutcomeFailure:
		target = booking.PaymentFailed
	default:
		return nil, fmt.Errorf("payments: reconcile: outcome %q: %w", in.Outcome, booking.ErrValidation)
	}

	payment, err := r.store.GetPaymentByTransaction(ctx, in.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("payments: reconcile: %w", err)
	}
	if payment.Status != booking.PaymentPending {
		r.logger.Info("payments: confirmation ignored, payment already settled",
			"transaction_id", in.TransactionID,
			"status", payment.Status,
			"trigger", in.Trigger,
		)
		return &ReconcileResult{Payment: *payment}, nil
	}
	if in.Amount != nil && *in.Amount != payment.Amount {
		r.logger.Warn("payments: amount mismatch",
			"transaction_id", in.TransactionID,
			"expected", payment.Amount,
			"received", *in.Amount,
		)
		return nil, fmt.Errorf("payments: reconcile: %s: expected %d got %d: %w", in.TransactionID, payment.Amount, *in.Amount, ErrAmountMismatch)
	}

	applied, err := r.store.TransitionPayment(ctx, payment.ID, booking.PaymentPending, target)
	if err != nil {
		return nil, fmt.Errorf("payments: reconcile: %w", err)
	}
	if !applied {
		r.logger.Info("payments: confirmation lost the race, already settled",
			"transaction_id", in.TransactionID,
			"trigger", in.Trigger,
		)
		return &ReconcileResult{Payment: *payment}, nil
	}
	payment.Status = target
	result = &ReconcileResult{Payment: *payment, Applied: true}
	span.SetAttributes(attribute.Bool("spa.applied", true))

	var errs []error
	if err := r.emit(ctx, payment, in.Trigger); err != nil {
		errs = append(errs, err)
	}
	if target == booking.PaymentCompleted {
		errs = append(errs, r.applySuccess(ctx, payment, result)...)
	} else {
		errs = append(errs, r.applyFailure(ctx, payment, result)...)
	}

	r.logger.Info("payments: reconciled",
		"transaction_id", in.TransactionID,
		"status", target,
		"trigger", in.Trigger,
		"synced_appointments", result.SyncedAppointments,
		"step_errors", len(errs),
	)
	if len(errs) > 0 {
		return result, errors.Join(errs...)
	}
	return result, nil
}

func (r *Reconciler) emit(ctx context.Context, p *booking.Payment, trigger Trigger) error {
	if r.outbox == nil {
		return nil
	}
	var evt events.CanonicalEvent
	if p.Status == booking.PaymentCompleted {
		evt = events.PaymentSucceededV1{
			PaymentID: p.ID, TransactionID: p.TransactionID, UserID: p.UserID, AppointmentID: p.AppointmentID,
			Amount: p.Amount, Method: string(p.Method), Trigger: string(trigger), OccurredAt: r.now().UTC(),
		}
	} else {
		evt = events.PaymentFailedV1{
			PaymentID: p.ID, TransactionID: p.TransactionID, UserID: p.UserID, AppointmentID: p.AppointmentID,
			Amount: p.Amount, Method: string(p.Method), Trigger: string(trigger), OccurredAt: r.now().UTC(),
		}
	}
	if _, err := r.outbox.Append(ctx, events.PaymentAggregate(p.TransactionID), evt); err != nil {
		return fmt.Errorf("payments: outbox: %w", err)
	}
	return nil
}

func (r *Reconciler) applySuccess(ctx context.Context, p *booking.Payment, result *ReconcileResult) []error {
	var errs []error

	credited, err := r.wallets.Credit(ctx, p.UserID, p.Amount, p.TransactionID)
	if err != nil {
		errs = append(errs, fmt.Errorf("payments: wallet credit: %w", err))
	}
	result.WalletCredited = credited

	if p.AppointmentID == nil {
		return errs
	}
	appt, err := r.store.GetAppointment(ctx, *p.AppointmentID)
	if err != nil {
		return append(errs, fmt.Errorf("payments: appointment: %w", err))
	}

	pending := booking.StatusPending
	if _, err := r.store.SetAppointmentsPayment(ctx, []uuid.UUID{appt.ID}, booking.Paid, &pending); err != nil {
		errs = append(errs, fmt.Errorf("payments: mark appointment paid: %w", err))
	}

	courseID, synced, err := r.syncCourse(ctx, appt, p.Amount)
	if err != nil {
		errs = append(errs, err)
	}
	result.CourseID = courseID
	result.SyncedAppointments = synced

	if err := r.recordPublicPromotion(ctx, p.UserID, appt); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// syncCourse marks the appointment's course and every appointment belonging
// to it paid, in one transaction. Appointments are discovered through the
// session links, the exact booking group ids and a same-client fragment
// match on the course id; the results are unioned.
func (r *Reconciler) syncCourse(ctx context.Context, appt *booking.Appointment, amount int64) (*uuid.UUID, int, error) {
	var courseID *uuid.UUID
	synced := 0
	err := r.store.WithinTx(ctx, func(tx booking.Store) error {
		session, err := tx.FindSessionByAppointment(ctx, appt.ID)
		if errors.Is(err, booking.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		course, err := tx.GetCourse(ctx, session.CourseID)
		if err != nil {
			return err
		}
		courseID = &course.ID
		if err := tx.MarkCoursePaid(ctx, course.ID, amount); err != nil {
			return err
		}

		ids, err := discoverCourseAppointments(ctx, tx, course)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			r.logger.Warn("payments: no appointments discovered for paid course",
				"course_id", course.ID,
				"appointment_id", appt.ID,
			)
			return nil
		}
		n, err := tx.SetAppointmentsPayment(ctx, ids, booking.Paid, nil)
		if err != nil {
			return err
		}
		synced = int(n)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("payments: course sync: %w", err)
	}
	return courseID, synced, nil
}

// appointmentLookup finds appointments belonging to a course by one kind of
// linkage.
type appointmentLookup func(ctx context.Context, tx booking.Store, course *booking.TreatmentCourse) ([]uuid.UUID, error)

// courseAppointmentLookups run in priority order: session links first, then
// the group id conventions, then the loose legacy group match.
var courseAppointmentLookups = []appointmentLookup{
	bySessionLink,
	byGroupID,
	byGroupFragment,
}

func bySessionLink(ctx context.Context, tx booking.Store, course *booking.TreatmentCourse) ([]uuid.UUID, error) {
	sessions, err := tx.ListSessions(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for _, s := range sessions {
		if s.AppointmentID != nil {
			ids = append(ids, *s.AppointmentID)
		}
	}
	return ids, nil
}

func byGroupID(ctx context.Context, tx booking.Store, course *booking.TreatmentCourse) ([]uuid.UUID, error) {
	appts, err := tx.ListAppointmentsByGroup(ctx, []string{
		booking.CourseGroupID(course.ID),
		booking.LegacyCourseGroupID(course.ID),
	})
	if err != nil {
		return nil, err
	}
	return appointmentIDs(appts), nil
}

func byGroupFragment(ctx context.Context, tx booking.Store, course *booking.TreatmentCourse) ([]uuid.UUID, error) {
	appts, err := tx.ListAppointmentsByGroupFragment(ctx, course.ID.String(), course.ClientID)
	if err != nil {
		return nil, err
	}
	return appointmentIDs(appts), nil
}

func appointmentIDs(appts []booking.Appointment) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(appts))
	for _, a := range appts {
		ids = append(ids, a.ID)
	}
	return ids
}

// discoverCourseAppointments unions the results of every lookup, keeping the
// first-seen order.
func discoverCourseAppointments(ctx context.Context, tx booking.Store, course *booking.TreatmentCourse) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, lookup := range courseAppointmentLookups {
		found, err := lookup(ctx, tx, course)
		if err != nil {
			return nil, err
		}
		for _, id := range found {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// recordPublicPromotion records usage of a public promotion at payment time.
// Private vouchers were recorded when the appointment was booked.
func (r *Reconciler) recordPublicPromotion(ctx context.Context, userID uuid.UUID, appt *booking.Appointment) error {
	if appt.PromotionID == nil {
		return nil
	}
	promo, err := r.store.GetPromotion(ctx, *appt.PromotionID)
	if err != nil {
		return fmt.Errorf("payments: promotion: %w", err)
	}
	if !promo.IsPublic {
		return nil
	}
	exists, err := r.store.UsageExists(ctx, userID, promo.ID, appt.ID)
	if err != nil {
		return fmt.Errorf("payments: promotion usage: %w", err)
	}
	if exists {
		return nil
	}
	now := r.now().UTC()
	recorded, err := r.store.RecordUsage(ctx, &booking.PromotionUsage{
		UserID:        userID,
		PromotionID:   promo.ID,
		AppointmentID: &appt.ID,
		UsedAt:        now,
		UsageYear:     now.Year(),
	}, promo.Kind)
	if err != nil {
		return fmt.Errorf("payments: promotion usage: %w", err)
	}
	if !recorded {
		r.logger.Warn("payments: promotion usage rejected by uniqueness rule",
			"promotion_id", promo.ID,
			"user_id", userID,
			"appointment_id", appt.ID,
		)
	}
	return nil
}

// applyFailure cancels the appointment and every active appointment sharing
// its booking group, leaving them unpaid. Completed and already cancelled
// siblings are left alone.
func (r *Reconciler) applyFailure(ctx context.Context, p *booking.Payment, result *ReconcileResult) []error {
	if p.AppointmentID == nil {
		return nil
	}
	appt, err := r.store.GetAppointment(ctx, *p.AppointmentID)
	if err != nil {
		return []error{fmt.Errorf("payments: appointment: %w", err)}
	}

	ids := []uuid.UUID{appt.ID}
	if appt.BookingGroupID != nil && *appt.BookingGroupID != "" {
		siblings, err := r.store.ListAppointmentsByGroup(ctx, []string{*appt.BookingGroupID})
		if err != nil {
			return []error{fmt.Errorf("payments: group lookup: %w", err)}
		}
		for _, s := range siblings {
			if s.ID != appt.ID && s.Status.Active() {
				ids = append(ids, s.ID)
			}
		}
	}

	cancelled := booking.StatusCancelled
	n, err := r.store.SetAppointmentsPayment(ctx, ids, booking.Unpaid, &cancelled)
	if err != nil {
		return []error{fmt.Errorf("payments: cancel appointments: %w", err)}
	}
	result.SyncedAppointments = int(n)
	return nil
}
