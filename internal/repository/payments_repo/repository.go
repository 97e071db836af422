package payments_repo

import (
	"context"
	"database/sql"

	"paymentevents/internal/domain"
)

type PaymentRepository interface {
	CreatePaymentTx(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error
	GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error)
}
