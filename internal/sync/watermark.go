package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/deltadent/ServicePro-sub000/internal/store"
)

// Watermarks records the outcome of drains in the store's meta partition.
type Watermarks struct {
	db     *store.DB
	logger *zap.Logger
}

// NewWatermarks creates a watermark keeper over db.
func NewWatermarks(db *store.DB, logger *zap.Logger) *Watermarks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watermarks{db: db, logger: logger}
}

// Record stores res as the last drain result and, when it succeeded, its
// finish time as the last successful sync.
func (w *Watermarks) Record(ctx context.Context, res Result) {
	if err := w.db.SetMeta(ctx, store.MetaLastSyncResult, res); err != nil {
		w.logger.Warn("failed to store sync result", zap.Error(err))
	}
	if !res.Success {
		return
	}
	if err := w.db.SetMeta(ctx, store.MetaLastSyncAt, res.FinishedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		w.logger.Warn("failed to store sync watermark", zap.Error(err))
	}
}

// Snapshot is what the watermarks currently say.
type Snapshot struct {
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	LastResult *Result    `json:"last_result,omitempty"`
}

// Last reads the stored watermarks. Missing keys leave fields nil.
func (w *Watermarks) Last(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	var at string
	m, err := w.db.GetMeta(ctx, store.MetaLastSyncAt, &at)
	if err != nil {
		return snap, err
	}
	if m != nil {
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			snap.LastSyncAt = &t
		}
	}

	var res Result
	m, err = w.db.GetMeta(ctx, store.MetaLastSyncResult, &res)
	if err != nil {
		return snap, err
	}
	if m != nil {
		snap.LastResult = &res
	}
	return snap, nil
}
