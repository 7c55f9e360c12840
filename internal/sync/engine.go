// Package sync replays queued actions against the backend and applies
// actions directly while online.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/deltadent/ServicePro-sub000/internal/action"
	"github.com/deltadent/ServicePro-sub000/internal/bus"
	"github.com/deltadent/ServicePro-sub000/internal/queue"
	"github.com/deltadent/ServicePro-sub000/internal/remote"
	"github.com/deltadent/ServicePro-sub000/internal/repo"
	"github.com/deltadent/ServicePro-sub000/internal/store"
)

// ErrSyncInProgress is returned by Drain when another drain is running.
var ErrSyncInProgress = errors.New("sync already in progress")

// ReplayError is a queued item that could not be applied.
type ReplayError struct {
	ItemID string
	Type   action.Type
	Err    error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Type, e.ItemID, e.Err)
}

func (e *ReplayError) Unwrap() error {
	return e.Err
}

// Result summarizes one drain.
type Result struct {
	Success    bool      `json:"success"`
	Processed  int       `json:"processed"`
	Failed     int       `json:"failed"`
	Errors     []string  `json:"errors"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// EntitySynced is the payload of the per-entity sync.*_synced events.
type EntitySynced struct {
	Type   action.Type `json:"type"`
	ID     string      `json:"id"`
	JobID  string      `json:"job_id,omitempty"`
	Record any         `json:"record"`
}

// Deps are the engine's collaborators. Bus and Logger may be nil.
type Deps struct {
	DB      *store.DB
	Queue   *queue.Queue
	Repos   *repo.Set
	Backend remote.Backend
	Blobs   remote.BlobStore
	Bus     *bus.Bus
	Logger  *zap.Logger
}

// Engine drains the action queue. At most one drain runs at a time.
type Engine struct {
	queue      *queue.Queue
	repos      *repo.Set
	backend    remote.Backend
	blobs      remote.BlobStore
	bus        *bus.Bus
	logger     *zap.Logger
	watermarks *Watermarks
	syncing    atomic.Bool
	now        func() time.Time
}

// NewEngine creates a sync engine.
func NewEngine(d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Blobs == nil {
		d.Blobs = remote.NoopBlobStore{}
	}
	return &Engine{
		queue:      d.Queue,
		repos:      d.Repos,
		backend:    d.Backend,
		blobs:      d.Blobs,
		bus:        d.Bus,
		logger:     d.Logger,
		watermarks: NewWatermarks(d.DB, d.Logger),
		now:        time.Now,
	}
}

// IsSyncing reports whether a drain is running.
func (e *Engine) IsSyncing() bool {
	return e.syncing.Load()
}

// Exclusive runs fn while holding the drain slot, so no drain can start
// until fn returns. It returns ErrSyncInProgress without calling fn when a
// drain is already running.
func (e *Engine) Exclusive(ctx context.Context, fn func(context.Context) error) error {
	if !e.syncing.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer e.syncing.Store(false)
	return fn(ctx)
}

// Watermarks exposes the stored drain outcomes.
func (e *Engine) Watermarks() *Watermarks {
	return e.watermarks
}

// Drain replays every pending item in order. The first failure stops the
// drain and leaves that item and everything after it queued. A drain already
// in progress makes this call return ErrSyncInProgress without doing
// anything. Once started, a drain runs to completion even if ctx is
// cancelled.
func (e *Engine) Drain(ctx context.Context) (Result, error) {
	if !e.syncing.CompareAndSwap(false, true) {
		return Result{}, ErrSyncInProgress
	}
	defer e.syncing.Store(false)
	ctx = context.WithoutCancel(ctx)

	res := Result{Success: true, Errors: []string{}, StartedAt: e.now().UTC()}
	items, err := e.queue.ListPending(ctx)
	if err != nil {
		e.logger.Error("failed to read queue", zap.Error(err))
		return Result{}, fmt.Errorf("drain: %w", err)
	}
	if len(items) > 0 {
		e.logger.Info("drain started", zap.Int("pending", len(items)))
	}

	for _, it := range items {
		if err := e.replay(ctx, it); err != nil {
			rerr := &ReplayError{ItemID: it.ID, Type: it.Type, Err: err}
			res.Success = false
			res.Failed++
			res.Errors = append(res.Errors, rerr.Error())
			e.logger.Warn("replay failed, stopping drain",
				zap.String("id", it.ID),
				zap.String("type", string(it.Type)),
				zap.Int("remaining", len(items)-res.Processed),
				zap.Error(err),
			)
			break
		}
		res.Processed++
	}

	res.FinishedAt = e.now().UTC()
	e.watermarks.Record(ctx, res)
	e.bus.Emit(bus.SyncCompleted, res)
	e.logger.Info("drain finished",
		zap.Bool("success", res.Success),
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (e *Engine) replay(ctx context.Context, it queue.Item) error {
	a, err := action.Decode(it.Type, it.Payload)
	if err != nil {
		return err
	}
	synced, err := e.apply(ctx, a)
	if err != nil {
		return err
	}
	// Applied but still queued: the next drain replays it again.
	if err := e.queue.Remove(ctx, it.ID); err != nil {
		return fmt.Errorf("remove applied item: %w", err)
	}
	e.publish(synced)
	return nil
}

// Apply performs a directly, without queueing, and returns the backend's
// error so the caller can roll back optimistic state.
func (e *Engine) Apply(ctx context.Context, a action.Action) (*EntitySynced, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	synced, err := e.apply(ctx, a)
	if err != nil {
		return nil, err
	}
	e.publish(synced)
	return &synced, nil
}

// Outcome is what Submit did with an action.
type Outcome struct {
	Applied *EntitySynced `json:"applied,omitempty"`
	Queued  *queue.Item   `json:"queued,omitempty"`
}

// Submit applies a while online and queues it otherwise. An online attempt
// that fails because the backend is unreachable is queued as well.
func (e *Engine) Submit(ctx context.Context, a action.Action, online bool) (Outcome, error) {
	if online {
		synced, err := e.Apply(ctx, a)
		if err == nil {
			return Outcome{Applied: synced}, nil
		}
		if !remote.IsNetwork(err) {
			return Outcome{}, err
		}
		e.logger.Info("direct write failed, queueing", zap.String("type", string(a.Type())), zap.Error(err))
	}
	it, err := e.queue.Push(ctx, a)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Queued: it}, nil
}

func (e *Engine) apply(ctx context.Context, a action.Action) (EntitySynced, error) {
	switch a := a.(type) {
	case action.Note:
		return e.applyNote(ctx, a)
	case action.Photo:
		return e.applyPhoto(ctx, a)
	case action.Check:
		return e.applyCheck(ctx, a)
	case action.QuoteCreate:
		return e.applyQuoteCreate(ctx, a)
	case action.QuoteUpdate:
		return e.applyQuoteUpdate(ctx, a)
	case action.QuoteApprove:
		return e.applyQuoteApprove(ctx, a)
	case action.QuoteDecline:
		return e.applyQuoteDecline(ctx, a)
	case action.QuoteSend:
		return e.applyQuoteSend(ctx, a)
	}
	return EntitySynced{}, &action.ValidationError{Type: a.Type(), Reason: "no handler"}
}

func (e *Engine) publish(s EntitySynced) {
	kind := bus.QuoteSynced
	switch s.Type {
	case action.TypeNote:
		kind = bus.NoteSynced
	case action.TypePhoto:
		kind = bus.PhotoSynced
	case action.TypeCheck:
		kind = bus.CheckSynced
	}
	e.bus.Emit(kind, s)
}
