package payments

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/http/respond"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

const vnpayProvider = "vnpay"

// ProcessedTracker remembers gateway callbacks that were already applied.
type ProcessedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// Handler exposes checkout, VNPay callbacks and manual confirmation.
type Handler struct {
	checkout   *Checkout
	reconciler *Reconciler
	vnpay      *VNPay
	guard      *CallbackGuard
	processed  ProcessedTracker
	logger     *logging.Logger
}

// HandlerDeps wires a Handler. Guard and Processed are optional.
type HandlerDeps struct {
	Checkout   *Checkout
	Reconciler *Reconciler
	VNPay      *VNPay
	Guard      *CallbackGuard
	Processed  ProcessedTracker
	Logger     *logging.Logger
}

func NewHandler(deps HandlerDeps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		checkout:   deps.Checkout,
		reconciler: deps.Reconciler,
		vnpay:      deps.VNPay,
		guard:      deps.Guard,
		processed:  deps.Processed,
		logger:     logger,
	}
}

// RegisterCheckoutRoutes mounts POST /checkout. Expected under /api/payments.
func (h *Handler) RegisterCheckoutRoutes(r chi.Router) {
	r.Post("/checkout", h.createCheckout)
}

// RegisterGatewayRoutes mounts the VNPay callbacks. Expected under /payments/vnpay.
func (h *Handler) RegisterGatewayRoutes(r chi.Router) {
	r.Get("/return", h.vnpayReturn)
	r.Get("/ipn", h.vnpayIPN)
}

// RegisterAdminRoutes mounts manual confirmation. Expected under
// /admin/payments behind admin auth.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/{transactionID}/confirm", h.confirm)
}

type checkoutRequest struct {
	AppointmentID string `json:"appointment_id"`
	Method        string `json:"method,omitempty"`
}

// POST /api/payments/checkout
func (h *Handler) createCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, "payments handler: checkout", err)
		return
	}
	id, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		respond.Error(w, h.logger, "payments handler: checkout", booking.MissingField("appointment_id"))
		return
	}
	result, err := h.checkout.Start(r.Context(), CheckoutInput{
		AppointmentID: id,
		Method:        booking.PaymentMethod(req.Method),
		IPAddr:        clientIP(r),
	})
	switch {
	case errors.Is(err, ErrTooManyAttempts):
		respond.Message(w, http.StatusTooManyRequests, "too many checkout attempts, try again later")
		return
	case errors.Is(err, ErrGatewayUnavailable):
		respond.Message(w, http.StatusServiceUnavailable, "online payment unavailable")
		return
	case err != nil:
		respond.Error(w, h.logger, "payments handler: checkout", err)
		return
	}
	respond.JSON(w, http.StatusCreated, result)
}

type returnResponse struct {
	TransactionID string `json:"transaction_id"`
	Success       bool   `json:"success"`
	Applied       bool   `json:"applied"`
	ResponseCode  string `json:"response_code"`
}

// GET /payments/vnpay/return
func (h *Handler) vnpayReturn(w http.ResponseWriter, r *http.Request) {
	cb, err := h.vnpay.Verify(r.URL.Query())
	if err != nil {
		h.logger.Warn("payments: vnpay return rejected", "error", err)
		respond.Message(w, http.StatusBadRequest, "invalid signature")
		return
	}
	resp := returnResponse{TransactionID: cb.TxnRef, Success: cb.Succeeded(), ResponseCode: cb.ResponseCode}

	release, acquired := h.guard.Acquire(r.Context(), cb.TxnRef)
	defer release()
	if !acquired {
		// The IPN for the same transaction is being applied right now.
		respond.JSON(w, http.StatusAccepted, resp)
		return
	}

	amount := cb.Amount
	result, err := h.reconciler.Reconcile(r.Context(), ReconcileInput{
		TransactionID: cb.TxnRef,
		Outcome:       cb.Outcome(),
		Amount:        &amount,
		Trigger:       TriggerReturn,
	})
	if err != nil && (result == nil || !result.Applied) {
		respond.Error(w, h.logger, "payments handler: vnpay return", err)
		return
	}
	if err != nil {
		h.logger.Error("payments: vnpay return follow-up failed", "error", err, "transaction_id", cb.TxnRef)
	}
	resp.Applied = result.Applied
	respond.JSON(w, http.StatusOK, resp)
}

type ipnResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

func writeIPN(w http.ResponseWriter, code, msg string) {
	respond.JSON(w, http.StatusOK, ipnResponse{RspCode: code, Message: msg})
}

// GET /payments/vnpay/ipn
func (h *Handler) vnpayIPN(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cb, err := h.vnpay.Verify(r.URL.Query())
	if err != nil {
		h.logger.Warn("payments: vnpay ipn rejected", "error", err)
		writeIPN(w, IPNBadSignature, "Invalid signature")
		return
	}
	if h.processed != nil {
		seen, err := h.processed.AlreadyProcessed(ctx, vnpayProvider, cb.EventID())
		if err != nil {
			h.logger.Error("payments: processed lookup failed", "error", err, "transaction_id", cb.TxnRef)
		} else if seen {
			writeIPN(w, IPNAlreadyConfirmed, "Order already confirmed")
			return
		}
	}

	release, acquired := h.guard.Acquire(ctx, cb.TxnRef)
	defer release()
	if !acquired {
		writeIPN(w, IPNUnknownError, "Callback in progress")
		return
	}

	amount := cb.Amount
	result, err := h.reconciler.Reconcile(ctx, ReconcileInput{
		TransactionID: cb.TxnRef,
		Outcome:       cb.Outcome(),
		Amount:        &amount,
		Trigger:       TriggerIPN,
	})
	switch {
	case errors.Is(err, booking.ErrNotFound) && result == nil:
		writeIPN(w, IPNOrderNotFound, "Order not found")
		return
	case errors.Is(err, ErrAmountMismatch):
		writeIPN(w, IPNInvalidAmount, "Invalid amount")
		return
	case err != nil && (result == nil || !result.Applied):
		h.logger.Error("payments: vnpay ipn failed", "error", err, "transaction_id", cb.TxnRef)
		writeIPN(w, IPNUnknownError, "Unknown error")
		return
	case !result.Applied:
		writeIPN(w, IPNAlreadyConfirmed, "Order already confirmed")
		return
	}
	if err != nil {
		h.logger.Error("payments: vnpay ipn follow-up failed", "error", err, "transaction_id", cb.TxnRef)
	}
	if h.processed != nil {
		if _, err := h.processed.MarkProcessed(ctx, vnpayProvider, cb.EventID()); err != nil {
			h.logger.Error("payments: mark processed failed", "error", err, "transaction_id", cb.TxnRef)
		}
	}
	writeIPN(w, IPNConfirmed, "Confirm Success")
}

type confirmRequest struct {
	Outcome string `json:"outcome"`
	Amount  *int64 `json:"amount,omitempty"`
}

type confirmResponse struct {
	*ReconcileResult
	SyncErrors string `json:"sync_errors,omitempty"`
}

// POST /admin/payments/{transactionID}/confirm
func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	txn := chi.URLParam(r, "transactionID")
	req := confirmRequest{Outcome: string(OutcomeSuccess)}
	if r.ContentLength != 0 {
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, h.logger, "payments handler: confirm", err)
			return
		}
	}

	release, acquired := h.guard.Acquire(r.Context(), txn)
	defer release()
	if !acquired {
		respond.Message(w, http.StatusConflict, "confirmation already in progress")
		return
	}

	result, err := h.reconciler.Reconcile(r.Context(), ReconcileInput{
		TransactionID: txn,
		Outcome:       Outcome(req.Outcome),
		Amount:        req.Amount,
		Trigger:       TriggerManual,
	})
	if err != nil && (result == nil || !result.Applied) {
		respond.Error(w, h.logger, "payments handler: confirm", err)
		return
	}
	resp := confirmResponse{ReconcileResult: result}
	if err != nil {
		h.logger.Error("payments: manual confirmation follow-up failed", "error", err, "transaction_id", txn)
		resp.SyncErrors = err.Error()
	}
	respond.JSON(w, http.StatusOK, resp)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
