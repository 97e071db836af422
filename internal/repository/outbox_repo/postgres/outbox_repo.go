package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"paymentevents/internal/domain"
	"paymentevents/internal/repository/outbox_repo"
)

type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) CreateEventTx(ctx context.Context, tx *sql.Tx, event *domain.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (id, aggregate_type, aggregate_id, event_type, payload, status, attempts, available_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.ExecContext(ctx, query,
		event.ID,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		event.Payload,
		event.Status,
		event.Attempts,
		event.AvailableAt,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int, now time.Time) (outbox_repo.Batch, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}

	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, status, attempts, available_at, created_at, published_at
		FROM outbox_events
		WHERE status = $1 AND available_at <= $2
		ORDER BY created_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.QueryContext(ctx, query, domain.OutboxStatusPending, now, limit)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to claim pending outbox events: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		event := domain.OutboxEvent{}
		var publishedAt sql.NullTime
		err := rows.Scan(
			&event.ID,
			&event.AggregateType,
			&event.AggregateID,
			&event.EventType,
			&event.Payload,
			&event.Status,
			&event.Attempts,
			&event.AvailableAt,
			&event.CreatedAt,
			&publishedAt,
		)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		if publishedAt.Valid {
			event.PublishedAt = &publishedAt.Time
		}
		events = append(events, event)
	}
	if err = rows.Err(); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("error iterating outbox events: %w", err)
	}

	if len(events) == 0 {
		tx.Rollback()
		return nil, outbox_repo.ErrNoPendingEvents
	}

	return &claimedBatch{tx: tx, events: events}, nil
}

type claimedBatch struct {
	tx     *sql.Tx
	events []domain.OutboxEvent
}

func (b *claimedBatch) Events() []domain.OutboxEvent {
	return b.events
}

func (b *claimedBatch) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	query := `
		UPDATE outbox_events
		SET status = $1, published_at = $2
		WHERE id = $3
	`
	res, err := b.tx.ExecContext(ctx, query, domain.OutboxStatusPublished, publishedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event %s published: %w", id, err)
	}
	return checkOneRow(res, id)
}

func (b *claimedBatch) MarkFailed(ctx context.Context, id string, availableAt time.Time) error {
	query := `
		UPDATE outbox_events
		SET attempts = attempts + 1, available_at = $1
		WHERE id = $2
	`
	res, err := b.tx.ExecContext(ctx, query, availableAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event %s failed: %w", id, err)
	}
	return checkOneRow(res, id)
}

func (b *claimedBatch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit outbox batch: %w", err)
	}
	return nil
}

func (b *claimedBatch) Rollback() error {
	return b.tx.Rollback()
}

func checkOneRow(res sql.Result, id string) error {
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for outbox event %s: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no outbox event found with id %s", id)
	}
	return nil
}
