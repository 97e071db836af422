package payments_http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"paymentevents/internal/app/payments"
	"paymentevents/internal/domain"
)

type PaymentHandler struct {
	service payments.PaymentService
	logger  *zap.Logger
}

func NewPaymentHandler(s payments.PaymentService, l *zap.Logger) *PaymentHandler {
	return &PaymentHandler{service: s, logger: l}
}

type CreatePaymentRequest struct {
	PaymentID string  `json:"payment_id,omitempty"`
	Amount    float64 `json:"amount"`
	TS        string  `json:"ts,omitempty"`
}

type PaymentResponse struct {
	PaymentID string  `json:"payment_id"`
	Amount    float64 `json:"amount"`
	TS        string  `json:"ts"`
	CreatedAt string  `json:"created_at"`
}

func (h *PaymentHandler) CreatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Invalid request body for CreatePayment", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Amount <= 0 {
		http.Error(w, "Amount must be positive", http.StatusBadRequest)
		return
	}

	input := payments.CreatePaymentInput{
		PaymentID: req.PaymentID,
		Amount:    req.Amount,
	}
	if req.TS != "" {
		ts, err := time.Parse(time.RFC3339, req.TS)
		if err != nil {
			http.Error(w, "ts must be an RFC 3339 timestamp", http.StatusBadRequest)
			return
		}
		input.TS = &ts
	}

	payment, err := h.service.CreatePayment(r.Context(), input)
	if err != nil {
		h.logger.Error("Failed to create payment", zap.String("payment_id", req.PaymentID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, toPaymentResponse(payment))
}

func (h *PaymentHandler) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")
	if paymentID == "" {
		http.Error(w, "Payment ID is required", http.StatusBadRequest)
		return
	}

	payment, err := h.service.GetPayment(r.Context(), paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			http.Error(w, "Payment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to get payment", zap.String("payment_id", paymentID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *PaymentHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func toPaymentResponse(payment *domain.Payment) PaymentResponse {
	return PaymentResponse{
		PaymentID: payment.PaymentID,
		Amount:    payment.Amount,
		TS:        payment.TS.UTC().Format(time.RFC3339),
		CreatedAt: payment.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
