package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Well-known meta keys.
const (
	MetaLastSyncAt     = "last_sync_at"
	MetaLastSyncResult = "last_sync_result"
	MetaLastOnlineAt   = "last_online_at"
)

// MetaData is a process-wide setting or watermark kept alongside the cache.
type MetaData struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt string          `json:"updated_at"`
}

// SetMeta stores value under key, stamping the current time.
func (db *DB) SetMeta(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &StoreError{Op: "set meta", Partition: Meta, Err: fmt.Errorf("marshal %q: %w", key, err)}
	}
	r, err := NewRecord(key, MetaData{
		Key:       key,
		Value:     raw,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return &StoreError{Op: "set meta", Partition: Meta, Err: err}
	}
	return db.Put(ctx, Meta, r)
}

// GetMeta loads the entry under key and decodes its value into dst when dst
// is non-nil. Returns nil and no error when the key is unset.
func (db *DB) GetMeta(ctx context.Context, key string, dst any) (*MetaData, error) {
	raw, err := db.Get(ctx, Meta, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m MetaData
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &StoreError{Op: "get meta", Partition: Meta, Err: err}
	}
	if dst != nil {
		if err := json.Unmarshal(m.Value, dst); err != nil {
			return nil, &StoreError{Op: "get meta", Partition: Meta, Err: fmt.Errorf("decode %q: %w", key, err)}
		}
	}
	return &m, nil
}

// DeleteMeta removes the entry under key.
func (db *DB) DeleteMeta(ctx context.Context, key string) error {
	return db.Delete(ctx, Meta, key)
}
