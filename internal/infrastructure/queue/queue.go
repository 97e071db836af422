package queue

import "context"

// Message is the wire envelope received from the queue. Receipt is the opaque
// claim token required to delete the message from the queue.
type Message struct {
	Body       []byte
	Attributes map[string]string
	Receipt    string
}

// Queue is an at-least-once message queue with visibility-timeout delivery.
// Retry pacing and dead-lettering are handled by the queue's redrive policy,
// not by code.
type Queue interface {
	Send(ctx context.Context, body []byte, attributes map[string]string) error
	Receive(ctx context.Context) ([]Message, error)
	Delete(ctx context.Context, receipt string) error
}
