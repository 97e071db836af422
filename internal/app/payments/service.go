package payments

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paymentevents/internal/clock"
	"paymentevents/internal/domain"
	"paymentevents/internal/repository/outbox_repo"
	"paymentevents/internal/repository/payments_repo"
)

type CreatePaymentInput struct {
	PaymentID string
	Amount    float64
	TS        *time.Time
}

type PaymentService interface {
	CreatePayment(ctx context.Context, input CreatePaymentInput) (*domain.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error)
}

type paymentService struct {
	db          *sql.DB
	paymentRepo payments_repo.PaymentRepository
	outboxRepo  outbox_repo.OutboxRepository
	clock       clock.Clock
	logger      *zap.Logger
}

func NewPaymentService(
	db *sql.DB,
	paymentRepo payments_repo.PaymentRepository,
	outboxRepo outbox_repo.OutboxRepository,
	clk clock.Clock,
	logger *zap.Logger,
) PaymentService {
	return &paymentService{
		db:          db,
		paymentRepo: paymentRepo,
		outboxRepo:  outboxRepo,
		clock:       clk,
		logger:      logger,
	}
}

// CreatePayment writes the payment row and its PaymentCreated outbox event in
// one transaction, so the event cannot be lost or published for a payment
// that was never stored.
func (s *paymentService) CreatePayment(ctx context.Context, input CreatePaymentInput) (*domain.Payment, error) {
	now := s.clock.Now()

	paymentID := input.PaymentID
	if paymentID == "" {
		paymentID = NewPaymentID()
	}
	ts := now
	if input.TS != nil {
		ts = input.TS.UTC()
	}

	payment := &domain.Payment{
		PaymentID: paymentID,
		Amount:    input.Amount,
		TS:        ts,
		CreatedAt: now,
	}

	payload, err := json.Marshal(domain.PaymentCreatedEvent{
		PaymentID: paymentID,
		Amount:    input.Amount,
		TS:        ts.Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.paymentRepo.CreatePaymentTx(ctx, tx, payment); err != nil {
		return nil, err
	}

	event := &domain.OutboxEvent{
		ID:            uuid.NewString(),
		AggregateType: domain.AggregateTypePayment,
		AggregateID:   paymentID,
		EventType:     domain.EventTypePaymentCreated,
		Payload:       payload,
		Status:        domain.OutboxStatusPending,
		AvailableAt:   now,
		CreatedAt:     now,
	}
	if err := s.outboxRepo.CreateEventTx(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit payment transaction: %w", err)
	}

	s.logger.Info("Payment created",
		zap.String("payment_id", paymentID),
		zap.String("event_id", event.ID))
	return payment, nil
}

func (s *paymentService) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return s.paymentRepo.GetPayment(ctx, paymentID)
}

// NewPaymentID generates an id like p-1a2b3c4d5e for requests that omit one.
func NewPaymentID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "p-" + hex[:10]
}
