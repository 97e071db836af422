package domain

import "time"

type OutboxEventStatus string

const (
	OutboxStatusPending   OutboxEventStatus = "pending"
	OutboxStatusPublished OutboxEventStatus = "published"
)

// OutboxEvent is one row of the outbox table: a domain event awaiting delivery
// to the queue. Rows are written by the API in the same transaction as the
// domain write and mutated only by the relay. `published` is terminal.
type OutboxEvent struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Status        OutboxEventStatus
	Attempts      int
	AvailableAt   time.Time
	CreatedAt     time.Time
	PublishedAt   *time.Time
}
