package appointments

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/clients"
	"github.com/wolfman30/spa-booking-engine/internal/http/respond"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

// Handler exposes appointments over HTTP.
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

// RegisterPublicRoutes mounts booking endpoints under /api/appointments.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{appointmentID}", h.get)
}

// RegisterAdminRoutes mounts status changes under /api/appointments behind
// admin auth.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Patch("/{appointmentID}/status", h.updateStatus)
}

type frequencyRequest struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

type createRequest struct {
	ServiceID     string                 `json:"service_id"`
	ClientID      string                 `json:"client_id,omitempty"`
	NewClientInfo *clients.NewClientInfo `json:"new_client_info,omitempty"`
	Date          string                 `json:"date"`
	Time          string                 `json:"time"`
	TherapistID   string                 `json:"therapist_id,omitempty"`
	Quantity      int                    `json:"quantity,omitempty"`
	Frequency     *frequencyRequest      `json:"frequency,omitempty"`
	PromotionID   string                 `json:"promotion_id,omitempty"`
	Notes         string                 `json:"notes,omitempty"`
}

func (req createRequest) toInput() (CreateInput, error) {
	in := CreateInput{
		NewClient: req.NewClientInfo,
		Time:      req.Time,
		Quantity:  req.Quantity,
		Notes:     req.Notes,
	}
	var err error
	if in.ServiceID, err = uuid.Parse(req.ServiceID); err != nil {
		return in, booking.MissingField("service_id")
	}
	if req.ClientID != "" {
		id, err := uuid.Parse(req.ClientID)
		if err != nil {
			return in, booking.MissingField("client_id")
		}
		in.ClientID = &id
	}
	if in.Date, err = booking.ParseDate(req.Date); err != nil {
		return in, booking.ErrInvalidTime
	}
	if in.TherapistID, err = optionalID(req.TherapistID, "therapist_id"); err != nil {
		return in, err
	}
	if in.PromotionID, err = optionalID(req.PromotionID, "promotion_id"); err != nil {
		return in, err
	}
	if req.Frequency != nil {
		in.FrequencyType = booking.FrequencyType(req.Frequency.Type)
		in.FrequencyValue = req.Frequency.Value
	}
	return in, nil
}

func optionalID(raw, field string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, booking.MissingField(field)
	}
	return &id, nil
}

// POST /api/appointments
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, "appointments handler: create", err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		respond.Error(w, h.logger, "appointments handler: create", err)
		return
	}
	result, err := h.service.Create(r.Context(), in)
	if err != nil {
		respond.Error(w, h.logger, "appointments handler: create", err)
		return
	}
	respond.JSON(w, http.StatusCreated, result)
}

// GET /api/appointments/{appointmentID}
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		respond.Message(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	appt, err := h.service.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, h.logger, "appointments handler: get", err)
		return
	}
	respond.JSON(w, http.StatusOK, appt)
}

type statusRequest struct {
	Status      string `json:"status"`
	TherapistID string `json:"therapist_id,omitempty"`
}

// PATCH /api/appointments/{appointmentID}/status
func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		respond.Message(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	var req statusRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, "appointments handler: update status", err)
		return
	}
	therapistID, err := optionalID(req.TherapistID, "therapist_id")
	if err != nil {
		respond.Error(w, h.logger, "appointments handler: update status", err)
		return
	}
	appt, err := h.service.UpdateStatus(r.Context(), id, booking.AppointmentStatus(req.Status), therapistID)
	if err != nil {
		respond.Error(w, h.logger, "appointments handler: update status", err)
		return
	}
	respond.JSON(w, http.StatusOK, appt)
}
