package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paymentevents/internal/clock"
	"paymentevents/internal/infrastructure/objectstore"
	"paymentevents/internal/infrastructure/queue"
)

const (
	producerAttribute = "producer"
	contentTypeJSON   = "application/json"
)

type Config struct {
	RawPrefix        string
	QuarantinePrefix string
	// ReceivePause is how long to wait after a failed receive call before
	// polling again.
	ReceivePause time.Duration
}

// disposition is the outcome of one processing attempt. It decides whether
// the message was acknowledged (stored or quarantined) or left in place for
// the queue's redelivery and redrive policy.
type disposition int

const (
	dispositionStored disposition = iota
	dispositionQuarantined
	dispositionRetry
)

// Ingestor materializes validated events from the queue into partitioned
// object storage. A message is acknowledged only after its effects are
// durably persisted; malformed input is quarantined rather than retried.
type Ingestor struct {
	queue  queue.Queue
	store  objectstore.ObjectStore
	cfg    Config
	clock  clock.Clock
	logger *zap.Logger
}

func NewIngestor(
	q queue.Queue,
	store objectstore.ObjectStore,
	cfg Config,
	clk clock.Clock,
	logger *zap.Logger,
) *Ingestor {
	return &Ingestor{
		queue:  q,
		store:  store,
		cfg:    cfg,
		clock:  clk,
		logger: logger,
	}
}

// Run receives until ctx is cancelled. Messages within one batch are
// processed sequentially; horizontal scale-out is by running more instances.
func (w *Ingestor) Run(ctx context.Context) {
	w.logger.Info("Starting ingestion worker",
		zap.String("raw_prefix", w.cfg.RawPrefix),
		zap.String("quarantine_prefix", w.cfg.QuarantinePrefix))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Ingestion worker stopping")
			return
		default:
		}

		messages, err := w.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("Failed to receive messages", zap.Error(err))
			w.pause(ctx)
			continue
		}

		for _, msg := range messages {
			w.processMessage(ctx, msg)
		}
	}
}

func (w *Ingestor) processMessage(ctx context.Context, msg queue.Message) disposition {
	producer := msg.Attributes[producerAttribute]

	event, verr := parseEvent(msg.Body)
	if verr != nil {
		return w.quarantine(ctx, msg, verr)
	}

	paymentID := event["payment_id"].(string)
	date := partitionDate(event, w.clock.Now())
	key := rawKey(w.cfg.RawPrefix, date, paymentID)

	body, err := json.Marshal(enrich(event, w.clock.Now(), producer))
	if err != nil {
		w.logger.Error("Failed to encode enriched event; leaving message for redelivery",
			zap.String("payment_id", paymentID), zap.Error(err))
		return dispositionRetry
	}

	if err := w.store.Put(ctx, key, body, contentTypeJSON); err != nil {
		if isTransient(err) {
			w.logger.Error("Storage service error; leaving message for redelivery",
				zap.String("key", key), zap.String("producer", producer), zap.Error(err))
		} else {
			w.logger.Error("Failed to write raw object; leaving message for redelivery",
				zap.String("key", key), zap.String("producer", producer), zap.Error(err))
		}
		return dispositionRetry
	}
	w.logger.Info("Raw event written", zap.String("key", key), zap.String("producer", producer))

	if err := w.queue.Delete(ctx, msg.Receipt); err != nil {
		// Redelivery after a successful write is safe: the key scheme makes
		// the second write overwrite the first.
		w.logger.Error("Failed to delete message after write", zap.String("key", key), zap.Error(err))
		return dispositionRetry
	}
	return dispositionStored
}

func (w *Ingestor) quarantine(ctx context.Context, msg queue.Message, verr *ValidationError) disposition {
	now := w.clock.Now().UTC()

	record := map[string]any{
		"error":       verr.Error(),
		"body":        string(msg.Body),
		"attributes":  msg.Attributes,
		"received_at": now.Format(time.RFC3339),
	}
	body, err := json.Marshal(record)
	if err != nil {
		w.logger.Error("Failed to encode quarantine record; leaving message for redelivery", zap.Error(err))
		return dispositionRetry
	}

	token := fmt.Sprintf("%d-%s", now.Unix(), uuid.NewString()[:8])
	key := quarantineKey(w.cfg.QuarantinePrefix, now.Format(dateLayout), token)

	if err := w.store.Put(ctx, key, body, contentTypeJSON); err != nil {
		// Quarantine itself failed; rely on redelivery and the redrive policy.
		w.logger.Error("Failed to quarantine message; leaving it for redelivery",
			zap.String("key", key), zap.String("validation_error", verr.Error()), zap.Error(err))
		return dispositionRetry
	}
	w.logger.Warn("Message quarantined",
		zap.String("key", key), zap.String("validation_error", verr.Error()))

	if err := w.queue.Delete(ctx, msg.Receipt); err != nil {
		w.logger.Error("Failed to delete quarantined message", zap.String("key", key), zap.Error(err))
		return dispositionRetry
	}
	return dispositionQuarantined
}

// parseEvent requires a JSON object body with a non-empty string payment_id.
func parseEvent(body []byte) (map[string]any, *ValidationError) {
	var event map[string]any
	if err := json.Unmarshal(body, &event); err != nil || event == nil {
		return nil, &ValidationError{Reason: "body is not a JSON object"}
	}
	paymentID, ok := event["payment_id"].(string)
	if !ok || paymentID == "" {
		return nil, &ValidationError{Reason: "missing or invalid payment_id"}
	}
	return event, nil
}

// enrich adds ingestion metadata without mutating original fields.
func enrich(event map[string]any, ingestedAt time.Time, producer string) map[string]any {
	enriched := make(map[string]any, len(event)+1)
	for k, v := range event {
		enriched[k] = v
	}
	enriched["_meta"] = map[string]any{
		"ingested_at": ingestedAt.UTC().Format(time.RFC3339),
		"producer":    producer,
	}
	return enriched
}

func (w *Ingestor) pause(ctx context.Context) {
	if w.cfg.ReceivePause <= 0 {
		return
	}
	timer := time.NewTimer(w.cfg.ReceivePause)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
