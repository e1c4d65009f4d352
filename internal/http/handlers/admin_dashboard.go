// Package handlers holds back-office HTTP handlers that read reporting data
// straight from the database.
package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/http/respond"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

// AdminDashboardHandler serves the back-office overview.
type AdminDashboardHandler struct {
	db     *sql.DB
	logger *logging.Logger
	now    func() time.Time
}

// NewAdminDashboardHandler creates a new admin dashboard handler.
func NewAdminDashboardHandler(db *sql.DB, logger *logging.Logger) *AdminDashboardHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminDashboardHandler{db: db, logger: logger, now: time.Now}
}

// RegisterRoutes mounts GET /dashboard/stats. Expected under /admin.
func (h *AdminDashboardHandler) RegisterRoutes(r chi.Router) {
	r.Get("/dashboard/stats", h.GetStats)
}

// DashboardStats is the overview for one date range.
type DashboardStats struct {
	From         string             `json:"from"`
	To           string             `json:"to"`
	Appointments AppointmentMetrics `json:"appointments"`
	Payments     PaymentMetrics     `json:"payments"`
	Courses      CourseMetrics      `json:"courses"`
	StaffLoad    []StaffLoad        `json:"staff_load"`
}

// AppointmentMetrics counts appointments in range by status.
type AppointmentMetrics struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	Unpaid   int            `json:"unpaid"`
}

// PaymentMetrics summarizes completed and pending payments in VND.
type PaymentMetrics struct {
	Revenue       int64 `json:"revenue"`
	Completed     int   `json:"completed"`
	PendingCount  int   `json:"pending_count"`
	PendingAmount int64 `json:"pending_amount"`
	Failed        int   `json:"failed"`
}

// CourseMetrics counts treatment courses by status.
type CourseMetrics struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
	Unpaid    int `json:"unpaid"`
}

// StaffLoad is the number of active appointments a therapist holds in range.
type StaffLoad struct {
	StaffID      string `json:"staff_id"`
	Appointments int    `json:"appointments"`
}

// GetStats returns appointment, payment and course counts.
// GET /admin/dashboard/stats?from=YYYY-MM-DD&to=YYYY-MM-DD&status=pending,upcoming
func (h *AdminDashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		respond.Error(w, h.logger, "admin dashboard: stats", err)
		return
	}
	var statuses []string
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := booking.AppointmentStatus(strings.TrimSpace(s))
			if !status.Valid() {
				respond.Message(w, http.StatusBadRequest, "unknown status "+string(status))
				return
			}
			statuses = append(statuses, string(status))
		}
	}

	ctx := r.Context()
	stats := DashboardStats{
		From:         from.Format(time.DateOnly),
		To:           to.AddDate(0, 0, -1).Format(time.DateOnly),
		Appointments: AppointmentMetrics{ByStatus: map[string]int{}},
		StaffLoad:    []StaffLoad{},
	}
	steps := []func(context.Context, *DashboardStats, time.Time, time.Time, []string) error{
		h.appointmentStats,
		h.paymentStats,
		h.courseStats,
		h.staffLoad,
	}
	for _, step := range steps {
		if err := step(ctx, &stats, from, to, statuses); err != nil {
			h.logger.Error("admin dashboard: stats query failed", "error", err)
			respond.Message(w, http.StatusInternalServerError, "internal error")
			return
		}
	}
	respond.JSON(w, http.StatusOK, stats)
}

func (h *AdminDashboardHandler) parseRange(r *http.Request) (time.Time, time.Time, error) {
	today := booking.DateOnly(h.now())
	from, to := today.AddDate(0, 0, -30), today.AddDate(0, 0, 1)
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		d, err := booking.ParseDate(raw)
		if err != nil {
			return from, to, booking.ErrInvalidTime
		}
		from = d
	}
	if raw := q.Get("to"); raw != "" {
		d, err := booking.ParseDate(raw)
		if err != nil {
			return from, to, booking.ErrInvalidTime
		}
		to = d.AddDate(0, 0, 1)
	}
	if !from.Before(to) {
		return from, to, booking.ErrInvalidTime
	}
	return from, to, nil
}

func (h *AdminDashboardHandler) appointmentStats(ctx context.Context, stats *DashboardStats, from, to time.Time, statuses []string) error {
	rows, err := h.db.QueryContext(ctx,
		`SELECT status, payment_status, COUNT(*) FROM appointments
		 WHERE appointment_date >= $1 AND appointment_date < $2 AND (cardinality($3::text[]) = 0 OR status = ANY($3))
		 GROUP BY status, payment_status`,
		from, to, pq.Array(statuses),
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var status, paymentStatus string
		var count int
		if err := rows.Scan(&status, &paymentStatus, &count); err != nil {
			return err
		}
		stats.Appointments.Total += count
		stats.Appointments.ByStatus[status] += count
		if paymentStatus == string(booking.Unpaid) {
			stats.Appointments.Unpaid += count
		}
	}
	return rows.Err()
}

func (h *AdminDashboardHandler) paymentStats(ctx context.Context, stats *DashboardStats, from, to time.Time, _ []string) error {
	rows, err := h.db.QueryContext(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(amount), 0) FROM payments
		 WHERE created_at >= $1 AND created_at < $2
		 GROUP BY status`,
		from, to,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		var amount int64
		if err := rows.Scan(&status, &count, &amount); err != nil {
			return err
		}
		switch booking.PaymentRecordStatus(status) {
		case booking.PaymentCompleted:
			stats.Payments.Completed = count
			stats.Payments.Revenue = amount
		case booking.PaymentPending:
			stats.Payments.PendingCount = count
			stats.Payments.PendingAmount = amount
		case booking.PaymentFailed:
			stats.Payments.Failed = count
		}
	}
	return rows.Err()
}

func (h *AdminDashboardHandler) courseStats(ctx context.Context, stats *DashboardStats, _, _ time.Time, _ []string) error {
	return h.db.QueryRowContext(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COUNT(*) FILTER (WHERE payment_status = 'Unpaid' AND status <> 'cancelled')
		 FROM treatment_courses`,
	).Scan(&stats.Courses.Active, &stats.Courses.Completed, &stats.Courses.Cancelled, &stats.Courses.Unpaid)
}

func (h *AdminDashboardHandler) staffLoad(ctx context.Context, stats *DashboardStats, from, to time.Time, _ []string) error {
	inactive := []string{string(booking.StatusCancelled), string(booking.StatusCompleted)}
	rows, err := h.db.QueryContext(ctx,
		`SELECT therapist_id::text, COUNT(*) FROM appointments
		 WHERE therapist_id IS NOT NULL AND appointment_date >= $1 AND appointment_date < $2 AND NOT (status = ANY($3))
		 GROUP BY therapist_id
		 ORDER BY COUNT(*) DESC, therapist_id ASC`,
		from, to, pq.Array(inactive),
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var load StaffLoad
		if err := rows.Scan(&load.StaffID, &load.Appointments); err != nil {
			return err
		}
		stats.StaffLoad = append(stats.StaffLoad, load)
	}
	return rows.Err()
}
