package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

var (
	// ErrAlreadyPaid rejects a checkout for an appointment that is paid.
	ErrAlreadyPaid = fmt.Errorf("%w: appointment already paid", booking.ErrInvalidTransition)
	// ErrTooManyAttempts is returned when the checkout limiter blocks a client.
	ErrTooManyAttempts = errors.New("payments: too many checkout attempts")
	// ErrGatewayUnavailable is returned for VNPay checkouts without credentials.
	ErrGatewayUnavailable = errors.New("payments: vnpay not configured")
)

// CheckoutInput starts a payment for one appointment.
type CheckoutInput struct {
	AppointmentID uuid.UUID
	Method        booking.PaymentMethod
	IPAddr        string
}

// CheckoutResult is the created payment and, for VNPay, where to send the client.
type CheckoutResult struct {
	Payment booking.Payment `json:"payment"`
	PayURL  string          `json:"pay_url,omitempty"`
}

// Checkout creates Pending payments.
type Checkout struct {
	store   booking.Store
	vnpay   *VNPay
	limiter *CheckoutLimiter
	logger  *logging.Logger
	now     func() time.Time
}

func NewCheckout(store booking.Store, vnpay *VNPay, limiter *CheckoutLimiter, logger *logging.Logger) *Checkout {
	if logger == nil {
		logger = logging.Default()
	}
	return &Checkout{store: store, vnpay: vnpay, limiter: limiter, logger: logger, now: time.Now}
}

// Start prices the appointment and records a Pending payment. An appointment
// linked to a course is charged for the whole course.
func (c *Checkout) Start(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	ctx, span := tracer.Start(ctx, "payments.checkout")
	defer span.End()

	method := in.Method
	if method == "" {
		method = booking.MethodVNPay
	}
	if method != booking.MethodVNPay && method != booking.MethodCash {
		return nil, fmt.Errorf("payments: checkout: method %q: %w", method, booking.ErrValidation)
	}
	if method == booking.MethodVNPay && !c.vnpay.Configured() {
		return nil, ErrGatewayUnavailable
	}

	appt, err := c.store.GetAppointment(ctx, in.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("payments: checkout: %w", err)
	}
	if appt.PaymentStatus == booking.Paid {
		return nil, ErrAlreadyPaid
	}
	if limit := c.limiter.Check(ctx, appt.ClientID); !limit.Allowed {
		return nil, ErrTooManyAttempts
	}

	amount, description, err := c.price(ctx, appt)
	if err != nil {
		return nil, fmt.Errorf("payments: checkout: %w", err)
	}

	now := c.now()
	payment := &booking.Payment{
		AppointmentID: &appt.ID,
		UserID:        appt.ClientID,
		Amount:        amount,
		Method:        method,
		Status:        booking.PaymentPending,
		TransactionID: newTransactionID(now),
	}
	result := &CheckoutResult{}
	if method == booking.MethodVNPay {
		result.PayURL, err = c.vnpay.PayURL(PayRequest{
			TxnRef:    payment.TransactionID,
			Amount:    amount,
			OrderInfo: description,
			IPAddr:    in.IPAddr,
			CreatedAt: now,
		})
		if err != nil {
			return nil, fmt.Errorf("payments: checkout: %w", err)
		}
	}
	if err := c.store.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("payments: checkout: %w", err)
	}
	result.Payment = *payment

	c.logger.Info("payments: checkout started",
		"transaction_id", payment.TransactionID,
		"appointment_id", appt.ID,
		"amount", amount,
		"method", method,
	)
	return result, nil
}

func (c *Checkout) price(ctx context.Context, appt *booking.Appointment) (int64, string, error) {
	svc, err := c.store.GetService(ctx, appt.ServiceID)
	if err != nil {
		return 0, "", err
	}
	session, err := c.store.FindSessionByAppointment(ctx, appt.ID)
	if errors.Is(err, booking.ErrNotFound) {
		return svc.Price, fmt.Sprintf("Thanh toan %s", svc.Name), nil
	}
	if err != nil {
		return 0, "", err
	}
	course, err := c.store.GetCourse(ctx, session.CourseID)
	if err != nil {
		return 0, "", err
	}
	if course.TotalAmount != nil && *course.TotalAmount > 0 {
		return *course.TotalAmount, fmt.Sprintf("Thanh toan lieu trinh %s", svc.Name), nil
	}
	return svc.Price * int64(course.TotalSessions), fmt.Sprintf("Thanh toan lieu trinh %s x%d", svc.Name, course.TotalSessions), nil
}

func newTransactionID(now time.Time) string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return now.UTC().Format("20060102150405") + hex.EncodeToString(buf)
}
