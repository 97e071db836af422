package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"paymentevents/internal/domain"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) CreatePaymentTx(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (payment_id, amount, ts, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := tx.ExecContext(ctx, query,
		payment.PaymentID,
		payment.Amount,
		payment.TS,
		payment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	query := `
		SELECT payment_id, amount, ts, created_at
		FROM payments
		WHERE payment_id = $1
	`
	payment := domain.Payment{}
	err := r.db.QueryRowContext(ctx, query, paymentID).Scan(
		&payment.PaymentID,
		&payment.Amount,
		&payment.TS,
		&payment.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment %s: %w", paymentID, err)
	}
	return &payment, nil
}
