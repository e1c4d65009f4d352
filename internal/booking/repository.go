package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AppointmentRepository persists appointments.
type AppointmentRepository interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	CreateAppointment(ctx context.Context, a *Appointment) error
	// UpdateAppointmentStatus sets the status and, when therapistID is non-nil, the therapist.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus, therapistID *uuid.UUID) (*Appointment, error)
	// UpdateAppointmentSchedule aligns an appointment with its session record.
	UpdateAppointmentSchedule(ctx context.Context, id uuid.UUID, date time.Time, clock string, therapistID *uuid.UUID, status AppointmentStatus) error
	// SetAppointmentsPayment sets the payment status on every id and, when status is non-nil, the appointment status too.
	SetAppointmentsPayment(ctx context.Context, ids []uuid.UUID, payment PaymentStatus, status *AppointmentStatus) (int64, error)
	ListAppointmentsByGroup(ctx context.Context, groupIDs []string) ([]Appointment, error)
	// ListAppointmentsByGroupFragment matches booking group ids containing fragment for one client.
	ListAppointmentsByGroupFragment(ctx context.Context, fragment string, clientID uuid.UUID) ([]Appointment, error)
	// ListBusyStaff returns staff holding an active appointment at date+clock.
	ListBusyStaff(ctx context.Context, date time.Time, clock string) ([]uuid.UUID, error)
	// StaffBookedAt reports whether staffID holds an active appointment at date+clock other than excludeID.
	StaffBookedAt(ctx context.Context, staffID uuid.UUID, date time.Time, clock string, excludeID uuid.UUID) (bool, error)
	CountCompletedVisits(ctx context.Context, clientID, staffID uuid.UUID) (int, error)
	// CountStaffDayLoad counts the staff member's non-cancelled appointments on date.
	CountStaffDayLoad(ctx context.Context, staffID uuid.UUID, date time.Time) (int, error)
}

// CourseRepository persists treatment courses and their sessions.
type CourseRepository interface {
	GetCourse(ctx context.Context, id uuid.UUID) (*TreatmentCourse, error)
	CreateCourse(ctx context.Context, c *TreatmentCourse) error
	UpdateCourseTherapist(ctx context.Context, id uuid.UUID, therapistID uuid.UUID) error
	UpdateCourseStatus(ctx context.Context, id uuid.UUID, status CourseStatus) error
	UpdateCourseProgress(ctx context.Context, id uuid.UUID, completed int, status CourseStatus) error
	MarkCoursePaid(ctx context.Context, id uuid.UUID, amount int64) error

	CreateSession(ctx context.Context, s *TreatmentSession) error
	ListSessions(ctx context.Context, courseID uuid.UUID) ([]TreatmentSession, error)
	GetSessionByNumber(ctx context.Context, courseID uuid.UUID, number int) (*TreatmentSession, error)
	FindSessionByAppointment(ctx context.Context, appointmentID uuid.UUID) (*TreatmentSession, error)
	UpdateSessionStaff(ctx context.Context, sessionID uuid.UUID, staffID uuid.UUID) error
	LinkSessionAppointment(ctx context.Context, sessionID uuid.UUID, appointmentID uuid.UUID) error
	CompleteSession(ctx context.Context, sessionID uuid.UUID, at time.Time, notes string) error
	CountCompletedSessions(ctx context.Context, courseID uuid.UUID) (int, error)
}

// ShiftRepository persists staff shifts.
type ShiftRepository interface {
	GetShift(ctx context.Context, staffID uuid.UUID, date time.Time) (*StaffShift, error)
	CreateShift(ctx context.Context, s *StaffShift) error
	UpdateShiftHours(ctx context.Context, id uuid.UUID, shiftType ShiftType, hours ShiftHours) error
}

// CatalogRepository reads services.
type CatalogRepository interface {
	GetService(ctx context.Context, id uuid.UUID) (*Service, error)
}

// StaffRepository reads staff availability.
type StaffRepository interface {
	// ListAvailability returns availability for date, restricted to staff qualified for categoryID.
	ListAvailability(ctx context.Context, date time.Time, categoryID uuid.UUID) ([]StaffAvailability, error)
}

// PaymentRepository persists payments.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPaymentByTransaction(ctx context.Context, transactionID string) (*Payment, error)
	// TransitionPayment moves a payment from one status to another only if it
	// still holds from. It reports whether this call performed the transition.
	TransitionPayment(ctx context.Context, id uuid.UUID, from, to PaymentRecordStatus) (bool, error)
}

// WalletRepository persists loyalty wallets and their credit ledger.
type WalletRepository interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error)
	SaveWallet(ctx context.Context, w *Wallet) error
	// InsertLedgerEntry reports false when the transaction id was already credited.
	InsertLedgerEntry(ctx context.Context, e *WalletLedgerEntry) (bool, error)
}

// PromotionRepository persists promotions and their usage.
type PromotionRepository interface {
	GetPromotion(ctx context.Context, id uuid.UUID) (*Promotion, error)
	UsageExists(ctx context.Context, userID, promotionID, appointmentID uuid.UUID) (bool, error)
	// RecordUsage reports false when a uniqueness rule rejected the usage.
	RecordUsage(ctx context.Context, u *PromotionUsage, kind PromotionKind) (bool, error)
}

// ClientRepository persists clients.
type ClientRepository interface {
	GetClient(ctx context.Context, id uuid.UUID) (*Client, error)
	FindClientByPhone(ctx context.Context, phone string) (*Client, error)
	CreateClient(ctx context.Context, c *Client) error
}

// NotificationRepository persists in-app notifications.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *Notification) error
	ListActiveAdminIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Store bundles every repository over one connection or transaction.
type Store interface {
	AppointmentRepository
	CourseRepository
	ShiftRepository
	CatalogRepository
	StaffRepository
	PaymentRepository
	WalletRepository
	PromotionRepository
	ClientRepository
	NotificationRepository

	// WithinTx runs fn against a transaction-scoped store. The transaction
	// commits when fn returns nil and rolls back otherwise. Calling WithinTx
	// on a store that is already transaction-scoped runs fn in the same
	// transaction.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
