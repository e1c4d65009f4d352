// Package respond writes JSON responses and maps domain errors to status codes.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

// JSON writes payload with the given status.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Message writes {"error": msg}.
func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]string{"error": msg})
}

// StatusFor maps an error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, booking.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, booking.ErrSlotTaken):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err with its mapped status. Server errors are logged and
// their details hidden from the client.
func Error(w http.ResponseWriter, logger *logging.Logger, op string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.Error(op, "error", err)
		}
		Message(w, status, "internal error")
		return
	}
	Message(w, status, err.Error())
}

// Decode reads a JSON body into dst, rejecting unknown fields.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Join(booking.ErrValidation, err)
	}
	return nil
}
