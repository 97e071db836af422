package domain

// PaymentCreatedEvent is the envelope stored verbatim in the outbox payload
// and carried over the queue to the ingestion worker.
type PaymentCreatedEvent struct {
	PaymentID string  `json:"payment_id"`
	Amount    float64 `json:"amount"`
	TS        string  `json:"ts"`
}

const (
	AggregateTypePayment    = "payment"
	EventTypePaymentCreated = "PaymentCreated"
)
