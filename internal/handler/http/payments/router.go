package payments_http

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"paymentevents/internal/app/payments"
)

func RegisterRoutes(router chi.Router, service payments.PaymentService, logger *zap.Logger) {
	handler := NewPaymentHandler(service, logger)

	router.Get("/health", handler.HealthHandler)
	router.Post("/payments", handler.CreatePaymentHandler)
	router.Get("/payments/{paymentID}", handler.GetPaymentHandler)
}
