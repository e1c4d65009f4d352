package assignment

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/http/respond"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

// Handler exposes the ranked candidate list to admins.
type Handler struct {
	scorer *Scorer
	logger *logging.Logger
}

func NewHandler(scorer *Scorer, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{scorer: scorer, logger: logger}
}

// RegisterRoutes mounts the preview endpoint. Expected under /admin/assignment.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/preview", h.preview)
}

// GET /admin/assignment/preview?service_id=&client_id=&date=YYYY-MM-DD&time=HH:MM
func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	serviceID, err := uuid.Parse(q.Get("service_id"))
	if err != nil {
		respond.Error(w, h.logger, "assignment handler: preview", booking.MissingField("service_id"))
		return
	}
	var clientID uuid.UUID
	if raw := q.Get("client_id"); raw != "" {
		if clientID, err = uuid.Parse(raw); err != nil {
			respond.Message(w, http.StatusBadRequest, "invalid client_id")
			return
		}
	}
	date, err := booking.ParseDate(q.Get("date"))
	if err != nil {
		respond.Error(w, h.logger, "assignment handler: preview", booking.ErrInvalidTime)
		return
	}

	candidates, err := h.scorer.Scores(r.Context(), Request{
		ServiceID: serviceID,
		ClientID:  clientID,
		Date:      date,
		Time:      q.Get("time"),
	})
	if err != nil {
		respond.Error(w, h.logger, "assignment handler: preview", err)
		return
	}
	if candidates == nil {
		candidates = []Candidate{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"candidates": candidates,
		"count":      len(candidates),
	})
}
