package relay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paymentevents/internal/domain"
	"paymentevents/internal/infrastructure/queue"
	"paymentevents/internal/repository/outbox_repo"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memStore mimics the postgres claim semantics: claimed rows are invisible to
// concurrent claims until Commit or Rollback, and status updates stage inside
// the claim and apply atomically on Commit.
type memStore struct {
	mu     sync.Mutex
	events map[string]*domain.OutboxEvent
	locked map[string]bool
}

func newMemStore(events ...domain.OutboxEvent) *memStore {
	s := &memStore{
		events: make(map[string]*domain.OutboxEvent),
		locked: make(map[string]bool),
	}
	for i := range events {
		event := events[i]
		s.events[event.ID] = &event
	}
	return s
}

func (s *memStore) CreateEventTx(context.Context, *sql.Tx, *domain.OutboxEvent) error {
	panic("not used in relay tests")
}

func (s *memStore) ClaimPending(_ context.Context, limit int, now time.Time) (outbox_repo.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimable []*domain.OutboxEvent
	for _, event := range s.events {
		if event.Status != domain.OutboxStatusPending {
			continue
		}
		if event.AvailableAt.After(now) {
			continue
		}
		if s.locked[event.ID] {
			continue
		}
		claimable = append(claimable, event)
	}
	sort.Slice(claimable, func(i, j int) bool {
		return claimable[i].CreatedAt.Before(claimable[j].CreatedAt)
	})
	if len(claimable) > limit {
		claimable = claimable[:limit]
	}
	if len(claimable) == 0 {
		return nil, outbox_repo.ErrNoPendingEvents
	}

	batch := &memBatch{store: s, staged: make(map[string]stagedChange)}
	for _, event := range claimable {
		s.locked[event.ID] = true
		batch.events = append(batch.events, *event)
	}
	return batch, nil
}

func (s *memStore) event(id string) domain.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.events[id]
}

type stagedChange struct {
	published   bool
	publishedAt time.Time
	availableAt time.Time
}

type memBatch struct {
	store     *memStore
	events    []domain.OutboxEvent
	staged    map[string]stagedChange
	commitErr error
	done      bool
}

func (b *memBatch) Events() []domain.OutboxEvent {
	return b.events
}

func (b *memBatch) MarkPublished(_ context.Context, id string, publishedAt time.Time) error {
	b.staged[id] = stagedChange{published: true, publishedAt: publishedAt}
	return nil
}

func (b *memBatch) MarkFailed(_ context.Context, id string, availableAt time.Time) error {
	b.staged[id] = stagedChange{availableAt: availableAt}
	return nil
}

func (b *memBatch) Commit() error {
	if b.commitErr != nil {
		b.release()
		return b.commitErr
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for id, change := range b.staged {
		event := b.store.events[id]
		if change.published {
			event.Status = domain.OutboxStatusPublished
			publishedAt := change.publishedAt
			event.PublishedAt = &publishedAt
		} else {
			event.Attempts++
			event.AvailableAt = change.availableAt
		}
	}
	for _, event := range b.events {
		delete(b.store.locked, event.ID)
	}
	b.done = true
	return nil
}

func (b *memBatch) Rollback() error {
	b.release()
	return nil
}

func (b *memBatch) release() {
	if b.done {
		return
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, event := range b.events {
		delete(b.store.locked, event.ID)
	}
	b.done = true
}

type sentMessage struct {
	body       []byte
	attributes map[string]string
}

type fakeQueue struct {
	mu      sync.Mutex
	sent    []sentMessage
	sendErr func(body []byte) error
}

func (q *fakeQueue) Send(_ context.Context, body []byte, attributes map[string]string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sendErr != nil {
		if err := q.sendErr(body); err != nil {
			return err
		}
	}
	q.sent = append(q.sent, sentMessage{body: body, attributes: attributes})
	return nil
}

func (q *fakeQueue) Receive(context.Context) ([]queue.Message, error) {
	panic("not used in relay tests")
}

func (q *fakeQueue) Delete(context.Context, string) error {
	panic("not used in relay tests")
}

func pendingEvent(id, payload string, createdAt time.Time) domain.OutboxEvent {
	return domain.OutboxEvent{
		ID:            id,
		AggregateType: domain.AggregateTypePayment,
		AggregateID:   id,
		EventType:     domain.EventTypePaymentCreated,
		Payload:       []byte(payload),
		Status:        domain.OutboxStatusPending,
		AvailableAt:   createdAt,
		CreatedAt:     createdAt,
	}
}

func newTestProcessor(store outbox_repo.OutboxRepository, q queue.Queue, clk *fixedClock) *Processor {
	return NewProcessor(store, q, Config{
		BatchSize:    10,
		Backoff:      5 * time.Second,
		IdleInterval: time.Millisecond,
		ProducerTag:  "relay",
	}, clk, zap.NewNop())
}

func TestProcessOnceSendsAndPublishes(t *testing.T) {
	clk := &fixedClock{now: time.Date(2026, 1, 18, 12, 0, 0, 0, time.UTC)}
	store := newMemStore(pendingEvent("ev-1", `{"payment_id":"p-1","amount":42.50}`, clk.Now().Add(-time.Minute)))
	q := &fakeQueue{}

	processed, err := newTestProcessor(store, q, clk).ProcessOnce(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	require.Len(t, q.sent, 1)
	assert.Equal(t, `{"payment_id":"p-1","amount":42.50}`, string(q.sent[0].body))
	assert.Equal(t, map[string]string{"producer": "relay"}, q.sent[0].attributes)

	event := store.event("ev-1")
	assert.Equal(t, domain.OutboxStatusPublished, event.Status)
	require.NotNil(t, event.PublishedAt)
	assert.Equal(t, clk.Now(), *event.PublishedAt)
	assert.Zero(t, event.Attempts)
}

func TestProcessOnceSendFailureBacksOff(t *testing.T) {
	clk := &fixedClock{now: time.Date(2026, 1, 18, 12, 0, 0, 0, time.UTC)}
	store := newMemStore(pendingEvent("ev-1", `{"payment_id":"p-1","amount":1}`, clk.Now().Add(-time.Minute)))
	q := &fakeQueue{sendErr: func([]byte) error { return errors.New("queue unavailable") }}

	processed, err := newTestProcessor(store, q, clk).ProcessOnce(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	event := store.event("ev-1")
	assert.Equal(t, domain.OutboxStatusPending, event.Status)
	assert.Equal(t, 1, event.Attempts)
	assert.Equal(t, clk.Now().Add(5*time.Second), event.AvailableAt)
	assert.Nil(t, event.PublishedAt)
}

func TestProcessOnceFailureDoesNotAbortBatch(t *testing.T) {
	clk := &fixedClock{now: time.Date(2026, 1, 18, 12, 0, 0, 0, time.UTC)}
	base := clk.Now().Add(-time.Minute)
	store := newMemStore(
		pendingEvent("ev-1", `{"payment_id":"p-1","amount":1}`, base),
		pendingEvent("ev-2", `{"payment_id":"p-2","amount":2}`, base.Add(time.Second)),
		pendingEvent("ev-3", `{"payment_id":"p-3","amount":3}`, base.Add(2*time.Second)),
	)
	q := &fakeQueue{sendErr: func(body []byte) error {
		if string(body) == `{"payment_id":"p-2","amount":2}` {
			return errors.New("queue unavailable")
		}
		return nil
	}}

	processed, err := newTestProcessor(store, q, clk).ProcessOnce(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	assert.Equal(t, domain.OutboxStatusPublished, store.event("ev-1").Status)
	assert.Equal(t, domain.OutboxStatusPublished, store.event("ev-3").Status)

	failed := store.event("ev-2")
	assert.Equal(t, domain.OutboxStatusPending, failed.Status)
	assert.Equal(t, 1, failed.Attempts)
}

func TestProcessOnceEmptyStore(t *testing.T) {
	clk := &fixedClock{now: time.Date(2026, 1, 18, 12, 0, 0, 0, time.UTC)}
	store := newMemStore()
	q := &fakeQueue{}

	processed, err := newTestProcessor(store, q, clk).ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Empty(t, q.sent)
}

func TestRetryAfterBackoffElapses(t *testing.T) {
	clk := &fixedClock{now: time.Date(2026, 1, 18, 12, 0, 0, 0, time.UTC)}
	store := newMemStore(pendingEvent("ev-1", `{"payment_id":"p-1","amount":1}`, clk.Now().Add(-time.Minute)))

	var failures int
	q := &fakeQueue{sendErr: func([]byte) error {
		if failures == 0 {
			failures++
			return errors.New("queue unavailable")
		}
		return nil
	}}
	processor := newTestProcessor(store, q, clk)

	processed, err := processor.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, 1, store.event("ev-1").Attempts)

	// Still backing off: the row is not yet claimable.
	processed, err = processor.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)

	clk.Advance(5 * time.Second)

	processed, err = processor.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	event := store.event("ev-1")
	assert.Equal(t, domain.OutboxStatusPublished, event.Status)
	assert.Equal(t, 1, event.Attempts)
}

func TestPublishedIsTerminal(t *testing.T) {
	clk := &fixedClock{now: time.Date(2026, 1, 18, 12, 0, 0, 0, time.UTC)}
	store := newMemStore(pendingEvent("ev-1", `{"payment_id":"p-1","amount":1}`, clk.Now().Add(-time.Minute)))
	q := &fakeQueue{}
	processor := newTestProcessor(store, q, clk)

	processed, err := processor.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	publishedAt := *store.event("ev-1").PublishedAt

	clk.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		processed, err = processor.ProcessOnce(context.Background())
		require.NoError(t, err)
		assert.False(t, processed)
	}

	event := store.event("ev-1")
	assert.Equal(t, domain.OutboxStatusPublished, event.Status)
	assert.Equal(t, publishedAt, *event.PublishedAt)
	assert.Len(t, q.sent, 1)
}

func TestConcurrentPollersClaimDisjointRows(t *testing.T) {
	clk := &fixedClock{now: time.Date(2026, 1, 18, 12, 0, 0, 0, time.UTC)}
	base := clk.Now().Add(-time.Hour)

	var events []domain.OutboxEvent
	for i := 0; i < 40; i++ {
		events = append(events, pendingEvent(
			fmt.Sprintf("ev-%02d", i),
			`{"payment_id":"p","amount":1}`,
			base.Add(time.Duration(i)*time.Second),
		))
	}
	store := newMemStore(events...)
	q := &fakeQueue{}

	const pollers = 4
	var wg sync.WaitGroup
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processor := newTestProcessor(store, q, clk)
			for {
				processed, err := processor.ProcessOnce(context.Background())
				assert.NoError(t, err)
				if !processed {
					return
				}
			}
		}()
	}
	wg.Wait()

	// Every row was sent exactly once across all pollers.
	assert.Len(t, q.sent, len(events))
	for _, event := range events {
		assert.Equal(t, domain.OutboxStatusPublished, store.event(event.ID).Status)
	}
}

func TestProcessOnceCommitFailureReturnsError(t *testing.T) {
	clk := &fixedClock{now: time.Date(2026, 1, 18, 12, 0, 0, 0, time.UTC)}
	commitErr := errors.New("connection reset")
	store := &commitFailStore{
		memStore: newMemStore(pendingEvent("ev-1", `{"payment_id":"p-1","amount":1}`, clk.Now().Add(-time.Minute))),
		err:      commitErr,
	}
	q := &fakeQueue{}

	processed, err := newTestProcessor(store, q, clk).ProcessOnce(context.Background())
	require.ErrorIs(t, err, commitErr)
	assert.False(t, processed)

	// The claim was discarded: the row is still pending and claimable.
	event := store.event("ev-1")
	assert.Equal(t, domain.OutboxStatusPending, event.Status)
	assert.Zero(t, event.Attempts)
}

type commitFailStore struct {
	*memStore
	err error
}

func (s *commitFailStore) ClaimPending(ctx context.Context, limit int, now time.Time) (outbox_repo.Batch, error) {
	batch, err := s.memStore.ClaimPending(ctx, limit, now)
	if err != nil {
		return nil, err
	}
	batch.(*memBatch).commitErr = s.err
	return batch, nil
}
