// Package queue is the durable FIFO of actions waiting to be replayed against
// the backend. It stores payloads opaquely and never interprets them.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/deltadent/ServicePro-sub000/internal/action"
	"github.com/deltadent/ServicePro-sub000/internal/bus"
	"github.com/deltadent/ServicePro-sub000/internal/store"
)

// Item is one queued action. Items are never mutated, only inserted or
// removed.
type Item struct {
	ID        string          `json:"id"`
	Type      action.Type     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	JobID     string          `json:"job_id,omitempty"`
}

// Queue persists items in the store's queues partition.
type Queue struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time
}

// New creates a queue over db. b may be nil.
func New(db *store.DB, b *bus.Bus, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{db: db, bus: b, logger: logger, now: time.Now}
}

// Enqueue stores payload under a fresh id and the current time. Persistence
// failures are returned to the caller.
func (q *Queue) Enqueue(ctx context.Context, typ action.Type, payload any, jobID string) (*Item, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: marshal payload: %w", typ, err)
	}
	now := q.now().UTC()
	item := &Item{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Type:      typ,
		Payload:   raw,
		Timestamp: now,
		JobID:     jobID,
	}
	rec, err := store.NewRecord(item.ID, item)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", typ, err)
	}
	if err := q.db.Put(ctx, store.Queues, rec); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", typ, err)
	}
	q.logger.Info("action queued",
		zap.String("id", item.ID),
		zap.String("type", string(typ)),
		zap.String("job_id", jobID),
	)
	q.bus.Emit(bus.QueueEnqueued, *item)
	return item, nil
}

// Push validates a typed action and enqueues it.
func (q *Queue) Push(ctx context.Context, a action.Action) (*Item, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return q.Enqueue(ctx, a.Type(), a, a.JobID())
}

// ListPending returns every queued item, oldest first.
func (q *Queue) ListPending(ctx context.Context) ([]Item, error) {
	recs, err := q.db.GetAll(ctx, store.Queues)
	if err != nil {
		return nil, err
	}
	return decodeItems(recs)
}

// ListForJob returns the items that reference jobID, in replay order. It
// reads through the job_id index instead of scanning the queue.
func (q *Queue) ListForJob(ctx context.Context, jobID string) ([]Item, error) {
	recs, err := q.db.GetByIndex(ctx, store.Queues, "job_id", jobID)
	if err != nil {
		return nil, err
	}
	return decodeItems(recs)
}

func decodeItems(recs []store.Record) ([]Item, error) {
	items := make([]Item, 0, len(recs))
	for _, r := range recs {
		var it Item
		if err := json.Unmarshal(r.Value, &it); err != nil {
			return nil, fmt.Errorf("decode queue item %s: %w", r.Key, err)
		}
		items = append(items, it)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.Before(items[j].Timestamp)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// Remove deletes an item. Removing an absent id is not an error.
func (q *Queue) Remove(ctx context.Context, id string) error {
	return q.db.Delete(ctx, store.Queues, id)
}

// CountForJob returns how many items reference jobID, or 0 when the store
// cannot answer.
func (q *Queue) CountForJob(ctx context.Context, jobID string) int {
	n, err := q.db.CountByIndex(ctx, store.Queues, "job_id", jobID)
	if err != nil {
		q.logger.Warn("count queued actions failed", zap.String("job_id", jobID), zap.Error(err))
		return 0
	}
	return n
}

// Count returns the number of queued items.
func (q *Queue) Count(ctx context.Context) (int, error) {
	return q.db.Count(ctx, store.Queues)
}

// Clear drops every queued item. Used on logout.
func (q *Queue) Clear(ctx context.Context) error {
	return q.db.Clear(ctx, store.Queues)
}
