package relay

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"paymentevents/internal/clock"
	"paymentevents/internal/infrastructure/queue"
	"paymentevents/internal/repository/outbox_repo"
)

const producerAttribute = "producer"

type Config struct {
	BatchSize    int
	Backoff      time.Duration
	IdleInterval time.Duration
	// WarnAttempts is the attempt count past which a row is logged as a
	// potential starvation risk. Rows are never dead-lettered relay-side.
	WarnAttempts int
	ProducerTag  string
}

// Processor moves pending outbox events to the queue with at-least-once
// delivery. Multiple instances coordinate only through the store's
// exclusive-lock-skip claims; a row locked by one instance is invisible to
// the others until its batch commits or rolls back.
type Processor struct {
	outboxRepo outbox_repo.OutboxRepository
	queue      queue.Queue
	cfg        Config
	clock      clock.Clock
	logger     *zap.Logger
}

func NewProcessor(
	outboxRepo outbox_repo.OutboxRepository,
	q queue.Queue,
	cfg Config,
	clk clock.Clock,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		outboxRepo: outboxRepo,
		queue:      q,
		cfg:        cfg,
		clock:      clk,
		logger:     logger,
	}
}

// Run polls until ctx is cancelled. All errors are handled within the loop
// iteration; nothing is surfaced to the caller except cancellation.
func (p *Processor) Run(ctx context.Context) {
	p.logger.Info("Starting outbox relay",
		zap.Int("batch_size", p.cfg.BatchSize),
		zap.Duration("backoff", p.cfg.Backoff),
		zap.Duration("idle_interval", p.cfg.IdleInterval))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox relay stopping")
			return
		default:
		}

		processed, err := p.ProcessOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Error("Outbox poll cycle failed", zap.Error(err))
			if sleepErr := p.sleep(ctx, p.cfg.IdleInterval); sleepErr != nil {
				continue
			}
			continue
		}
		if !processed {
			if sleepErr := p.sleep(ctx, p.cfg.IdleInterval); sleepErr != nil {
				continue
			}
		}
	}
}

// ProcessOnce runs a single poll cycle and reports whether a batch was
// claimed. A failed queue send never aborts the rest of the batch; a failed
// commit discards the whole batch's claims for the next cycle.
func (p *Processor) ProcessOnce(ctx context.Context) (bool, error) {
	batch, err := p.outboxRepo.ClaimPending(ctx, p.cfg.BatchSize, p.clock.Now())
	if err != nil {
		if errors.Is(err, outbox_repo.ErrNoPendingEvents) {
			return false, nil
		}
		return false, err
	}

	events := batch.Events()
	p.logger.Debug("Claimed pending outbox events", zap.Int("count", len(events)))

	attributes := map[string]string{producerAttribute: p.cfg.ProducerTag}

	for _, event := range events {
		if err := p.queue.Send(ctx, event.Payload, attributes); err != nil {
			p.logger.Error("Failed to send outbox event to queue",
				zap.String("event_id", event.ID),
				zap.Int("attempts", event.Attempts+1),
				zap.Error(err))

			availableAt := p.clock.Now().Add(p.cfg.Backoff)
			if markErr := batch.MarkFailed(ctx, event.ID, availableAt); markErr != nil {
				batch.Rollback()
				return false, markErr
			}
			if p.cfg.WarnAttempts > 0 && event.Attempts+1 >= p.cfg.WarnAttempts {
				p.logger.Warn("Outbox event keeps failing; check the queue or the payload",
					zap.String("event_id", event.ID),
					zap.Int("attempts", event.Attempts+1))
			}
			continue
		}

		if markErr := batch.MarkPublished(ctx, event.ID, p.clock.Now()); markErr != nil {
			batch.Rollback()
			return false, markErr
		}
		p.logger.Info("Outbox event sent to queue", zap.String("event_id", event.ID))
	}

	if err := batch.Commit(); err != nil {
		// Claims are discarded; every row in the batch is retried next cycle.
		// A row already sent to the queue will be resent, which the worker's
		// idempotent key scheme absorbs.
		return false, err
	}

	return true, nil
}

func (p *Processor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
