package outbox_repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"paymentevents/internal/domain"
)

// ErrNoPendingEvents signals an empty poll; the relay sleeps and re-polls.
var ErrNoPendingEvents = errors.New("no pending outbox events")

// Batch is a set of pending events claimed by one poll cycle. The claim holds
// row locks until Commit or Rollback, so concurrent pollers skip these rows.
// Status updates accumulate inside the claim transaction and apply atomically
// on Commit; Rollback discards them and releases the rows unchanged.
type Batch interface {
	Events() []domain.OutboxEvent
	// MarkPublished transitions the event to the terminal published status.
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	// MarkFailed increments attempts and defers the event until availableAt.
	MarkFailed(ctx context.Context, id string, availableAt time.Time) error
	Commit() error
	Rollback() error
}

type OutboxRepository interface {
	// CreateEventTx inserts a pending event inside the caller's transaction.
	CreateEventTx(ctx context.Context, tx *sql.Tx, event *domain.OutboxEvent) error
	// ClaimPending locks up to limit deliverable events, oldest first.
	// Returns ErrNoPendingEvents when nothing is claimable.
	ClaimPending(ctx context.Context, limit int, now time.Time) (Batch, error)
}
