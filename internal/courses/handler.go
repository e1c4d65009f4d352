package courses

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/http/respond"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

// Handler exposes treatment courses over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterPublicRoutes mounts read endpoints. Expected under /api/courses.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/{courseID}", h.get)
}

// RegisterAdminRoutes mounts write endpoints. Expected under /api/courses
// behind admin auth.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Post("/{courseID}/sessions/{sessionNumber}/complete", h.completeSession)
}

type createCourseRequest struct {
	ServiceID      string `json:"service_id"`
	ClientID       string `json:"client_id"`
	TherapistID    string `json:"therapist_id,omitempty"`
	TotalSessions  int    `json:"total_sessions"`
	StartDate      string `json:"start_date"`
	StartTime      string `json:"start_time,omitempty"`
	DurationWeeks  int    `json:"duration_weeks,omitempty"`
	FrequencyType  string `json:"frequency_type,omitempty"`
	FrequencyValue int    `json:"frequency_value,omitempty"`
	TotalAmount    *int64 `json:"total_amount,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

func (req createCourseRequest) toInput() (CourseInput, error) {
	in := CourseInput{
		TotalSessions:  req.TotalSessions,
		StartTime:      req.StartTime,
		DurationWeeks:  req.DurationWeeks,
		FrequencyType:  booking.FrequencyType(req.FrequencyType),
		FrequencyValue: req.FrequencyValue,
		TotalAmount:    req.TotalAmount,
		Notes:          req.Notes,
	}
	var err error
	if in.ServiceID, err = uuid.Parse(req.ServiceID); err != nil {
		return in, booking.MissingField("service_id")
	}
	if in.ClientID, err = uuid.Parse(req.ClientID); err != nil {
		return in, booking.MissingField("client_id")
	}
	if req.TherapistID != "" {
		id, err := uuid.Parse(req.TherapistID)
		if err != nil {
			return in, booking.MissingField("therapist_id")
		}
		in.TherapistID = &id
	}
	if in.StartDate, err = booking.ParseDate(req.StartDate); err != nil {
		return in, booking.MissingField("start_date")
	}
	if in.StartTime == "" {
		in.StartTime = DefaultSessionTime
	}
	return in, nil
}

// POST /api/courses
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createCourseRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, "courses handler: create", err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		respond.Error(w, h.logger, "courses handler: create", err)
		return
	}
	view, err := h.service.PlanCourse(r.Context(), in)
	if err != nil {
		respond.Error(w, h.logger, "courses handler: create", err)
		return
	}
	respond.JSON(w, http.StatusCreated, view)
}

// GET /api/courses/{courseID}
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(chi.URLParam(r, "courseID"))
	if err != nil {
		respond.Message(w, http.StatusBadRequest, "invalid course id")
		return
	}
	view, err := h.service.Get(r.Context(), courseID)
	if err != nil {
		respond.Error(w, h.logger, "courses handler: get", err)
		return
	}
	respond.JSON(w, http.StatusOK, view)
}

type completeSessionRequest struct {
	Notes string `json:"notes,omitempty"`
}

// POST /api/courses/{courseID}/sessions/{sessionNumber}/complete
func (h *Handler) completeSession(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(chi.URLParam(r, "courseID"))
	if err != nil {
		respond.Message(w, http.StatusBadRequest, "invalid course id")
		return
	}
	number, err := strconv.Atoi(chi.URLParam(r, "sessionNumber"))
	if err != nil || number < 1 {
		respond.Message(w, http.StatusBadRequest, "invalid session number")
		return
	}
	var req completeSessionRequest
	if r.ContentLength != 0 {
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, h.logger, "courses handler: complete session", err)
			return
		}
	}
	result, err := h.service.CompleteSession(r.Context(), courseID, number, req.Notes)
	if err != nil {
		respond.Error(w, h.logger, "courses handler: complete session", err)
		return
	}
	respond.JSON(w, http.StatusOK, result)
}
