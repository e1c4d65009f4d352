// Package booking holds the spa's booking entities and the persistence
// contracts the engine components depend on.
package booking

import (
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusPending    AppointmentStatus = "pending"
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusUpcoming   AppointmentStatus = "upcoming"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in-progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusUpcoming, StatusConfirmed,
		StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether the appointment still occupies its staff slot.
func (s AppointmentStatus) Active() bool {
	return s != StatusCancelled && s != StatusCompleted
}

// PaymentStatus is the paid flag carried by appointments and courses.
type PaymentStatus string

const (
	Unpaid PaymentStatus = "Unpaid"
	Paid   PaymentStatus = "Paid"
)

// Service is a bookable treatment.
type Service struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Price           int64      `json:"price"`
	DurationMinutes int        `json:"duration_minutes"`
	CategoryID      *uuid.UUID `json:"category_id,omitempty"`
}

// Appointment is a single visit.
type Appointment struct {
	ID             uuid.UUID         `json:"id"`
	ClientID       uuid.UUID         `json:"client_id"`
	TherapistID    *uuid.UUID        `json:"therapist_id,omitempty"`
	ServiceID      uuid.UUID         `json:"service_id"`
	Date           time.Time         `json:"date"`
	Time           string            `json:"time"`
	Status         AppointmentStatus `json:"status"`
	PaymentStatus  PaymentStatus     `json:"payment_status"`
	PromotionID    *uuid.UUID        `json:"promotion_id,omitempty"`
	BookingGroupID *string           `json:"booking_group_id,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// CourseStatus is the lifecycle state of a treatment course.
type CourseStatus string

const (
	CourseActive    CourseStatus = "active"
	CourseCancelled CourseStatus = "cancelled"
	CourseCompleted CourseStatus = "completed"
)

// FrequencyType controls how course sessions are spread over time.
type FrequencyType string

const (
	FrequencyNone            FrequencyType = ""
	FrequencySessionsPerWeek FrequencyType = "sessions_per_week"
	FrequencyWeeksPerSession FrequencyType = "weeks_per_session"
)

// TreatmentCourse is a pre-planned package of sessions for one service.
type TreatmentCourse struct {
	ID                uuid.UUID     `json:"id"`
	ServiceID         uuid.UUID     `json:"service_id"`
	ClientID          uuid.UUID     `json:"client_id"`
	TherapistID       *uuid.UUID    `json:"therapist_id,omitempty"`
	TotalSessions     int           `json:"total_sessions"`
	CompletedSessions int           `json:"completed_sessions"`
	StartDate         time.Time     `json:"start_date"`
	DurationWeeks     int           `json:"duration_weeks"`
	ExpiryDate        time.Time     `json:"expiry_date"`
	FrequencyType     FrequencyType `json:"frequency_type,omitempty"`
	FrequencyValue    int           `json:"frequency_value,omitempty"`
	Status            CourseStatus  `json:"status"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	TotalAmount       *int64        `json:"total_amount,omitempty"`
	Notes             string        `json:"notes,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// GroupID is the booking group shared by appointments materialized from the course.
func (c *TreatmentCourse) GroupID() string {
	return CourseGroupID(c.ID)
}

// SessionStatus is the state of one course session.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionCompleted SessionStatus = "completed"
)

// TreatmentSession is one planned visit of a course.
type TreatmentSession struct {
	ID                  uuid.UUID     `json:"id"`
	CourseID            uuid.UUID     `json:"course_id"`
	SessionNumber       int           `json:"session_number"`
	SessionDate         time.Time     `json:"session_date"`
	SessionTime         string        `json:"session_time"`
	StaffID             *uuid.UUID    `json:"staff_id,omitempty"`
	AppointmentID       *uuid.UUID    `json:"appointment_id,omitempty"`
	Status              SessionStatus `json:"status"`
	CustomerStatusNotes string        `json:"customer_status_notes,omitempty"`
	AdminNotes          string        `json:"admin_notes,omitempty"`
	CompletedAt         *time.Time    `json:"completed_at,omitempty"`
}

// PaymentRecordStatus is the state of a payment row.
type PaymentRecordStatus string

const (
	PaymentPending   PaymentRecordStatus = "Pending"
	PaymentCompleted PaymentRecordStatus = "Completed"
	PaymentFailed    PaymentRecordStatus = "Failed"
)

// PaymentMethod identifies how the client pays.
type PaymentMethod string

const (
	MethodCash  PaymentMethod = "Cash"
	MethodVNPay PaymentMethod = "VNPay"
)

// Payment is a single charge correlated with the gateway by TransactionID.
type Payment struct {
	ID            uuid.UUID           `json:"id"`
	AppointmentID *uuid.UUID          `json:"appointment_id,omitempty"`
	UserID        uuid.UUID           `json:"user_id"`
	Amount        int64               `json:"amount"`
	Method        PaymentMethod       `json:"method"`
	Status        PaymentRecordStatus `json:"status"`
	TransactionID string              `json:"transaction_id"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Wallet is a client's loyalty balance.
type Wallet struct {
	UserID     uuid.UUID `json:"user_id"`
	Points     int64     `json:"points"`
	TotalSpent int64     `json:"total_spent"`
	TierLevel  string    `json:"tier_level"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// WalletLedgerEntry records one credit, keyed by the payment transaction id.
type WalletLedgerEntry struct {
	TransactionID string    `json:"transaction_id"`
	UserID        uuid.UUID `json:"user_id"`
	Points        int64     `json:"points"`
	Amount        int64     `json:"amount"`
	CreatedAt     time.Time `json:"created_at"`
}

// ShiftType is the coarse working-hours band of a staff shift.
type ShiftType string

const (
	ShiftMorning   ShiftType = "morning"
	ShiftAfternoon ShiftType = "afternoon"
	ShiftEvening   ShiftType = "evening"
	ShiftCustom    ShiftType = "custom"
	ShiftLeave     ShiftType = "leave"
)

// ShiftStatus is the approval state of a shift.
type ShiftStatus string

const (
	ShiftPending  ShiftStatus = "pending"
	ShiftApproved ShiftStatus = "approved"
)

// ShiftHours is a whole-hour range, Start inclusive and End exclusive.
type ShiftHours struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Covers reports whether hour falls inside the range.
func (h ShiftHours) Covers(hour int) bool {
	return hour >= h.Start && hour < h.End
}

// StaffShift reserves working hours for a staff member on one date.
type StaffShift struct {
	ID        uuid.UUID   `json:"id"`
	StaffID   uuid.UUID   `json:"staff_id"`
	Date      time.Time   `json:"date"`
	ShiftType ShiftType   `json:"shift_type"`
	Status    ShiftStatus `json:"status"`
	Hours     ShiftHours  `json:"hours"`
}

// StaffAvailability lists the slots a staff member declared for a date.
// A nil AvailableServiceIDs means every service is permitted.
type StaffAvailability struct {
	StaffID             uuid.UUID   `json:"staff_id"`
	Date                time.Time   `json:"date"`
	TimeSlots           []string    `json:"time_slots"`
	AvailableServiceIDs []uuid.UUID `json:"available_service_ids,omitempty"`
}

// PromotionKind distinguishes birthday promotions, which may be reused yearly.
type PromotionKind string

const (
	PromotionStandard PromotionKind = "standard"
	PromotionBirthday PromotionKind = "birthday"
)

// Promotion is a discount a client can attach to an appointment.
type Promotion struct {
	ID       uuid.UUID     `json:"id"`
	Code     string        `json:"code"`
	Kind     PromotionKind `json:"kind"`
	IsPublic bool          `json:"is_public"`
}

// PromotionUsage records a redemption.
type PromotionUsage struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	PromotionID   uuid.UUID  `json:"promotion_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	UsageYear     int        `json:"usage_year"`
	UsedAt        time.Time  `json:"used_at"`
}

// Client is a spa customer.
type Client struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationType classifies in-app notifications.
type NotificationType string

const (
	NotifyAppointmentCreated   NotificationType = "appointment_created"
	NotifyAppointmentConfirmed NotificationType = "appointment_confirmed"
	NotifyAppointmentCancelled NotificationType = "appointment_cancelled"
	NotifyAppointmentCompleted NotificationType = "appointment_completed"
	NotifyAppointmentUpdated   NotificationType = "appointment_updated"
)

// Notification is an in-app message addressed to one user.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	RelatedID *uuid.UUID       `json:"related_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// CourseGroupID is the booking group id used for appointments of a course.
func CourseGroupID(courseID uuid.UUID) string {
	return "group-" + courseID.String()
}

// LegacyCourseGroupID is the older naming some rows still carry.
func LegacyCourseGroupID(courseID uuid.UUID) string {
	return "course_" + courseID.String()
}

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// ParseClock validates an HH:MM time of day and returns its hour.
func ParseClock(clock string) (hour int, ok bool) {
	m := clockPattern.FindStringSubmatch(clock)
	if m == nil {
		return 0, false
	}
	h, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return h, true
}

// DateOnly truncates t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
