package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Record is one entry of a partition: a key and an opaque JSON document.
// A Put replaces the whole document.
type Record struct {
	Key   string
	Value json.RawMessage
}

// NewRecord marshals v into a Record under key.
func NewRecord(key string, v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("marshal %q: %w", key, err)
	}
	return Record{Key: key, Value: data}, nil
}

// Get returns the document stored under key, or ErrNotFound.
func (db *DB) Get(ctx context.Context, p Partition, key string) (json.RawMessage, error) {
	s, err := lookup(p)
	if err != nil {
		return nil, err
	}
	var data string
	err = db.QueryRowContext(ctx, `SELECT data FROM `+s.table+` WHERE id = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, &StoreError{Op: "get", Partition: p, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &StoreError{Op: "get", Partition: p, Err: err}
	}
	return json.RawMessage(data), nil
}

// GetAll returns every record of the partition ordered by key.
func (db *DB) GetAll(ctx context.Context, p Partition) ([]Record, error) {
	s, err := lookup(p)
	if err != nil {
		return nil, err
	}
	return db.queryRecords(ctx, p, `SELECT id, data FROM `+s.table+` ORDER BY id`)
}

// GetByIndex returns the records whose indexed field equals value, ordered by key.
func (db *DB) GetByIndex(ctx context.Context, p Partition, index string, value any) ([]Record, error) {
	s, path, err := lookupIndex(p, index)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT id, data FROM %s WHERE json_extract(data, '%s') = ? ORDER BY id`, s.table, path)
	return db.queryRecords(ctx, p, q, value)
}

func (db *DB) queryRecords(ctx context.Context, p Partition, q string, args ...any) ([]Record, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &StoreError{Op: "query", Partition: p, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return nil, &StoreError{Op: "scan", Partition: p, Err: err}
		}
		records = append(records, Record{Key: key, Value: json.RawMessage(data)})
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "query", Partition: p, Err: err}
	}
	return records, nil
}

// Put inserts or replaces a record.
func (db *DB) Put(ctx context.Context, p Partition, r Record) error {
	s, err := lookup(p)
	if err != nil {
		return err
	}
	if err := validRecord(r); err != nil {
		return &StoreError{Op: "put", Partition: p, Err: err}
	}
	if _, err := db.ExecContext(ctx, upsertSQL(s.table), r.Key, string(r.Value), time.Now().UnixMilli()); err != nil {
		return &StoreError{Op: "put", Partition: p, Err: err}
	}
	return nil
}

// PutAll inserts or replaces records in a single transaction.
func (db *DB) PutAll(ctx context.Context, p Partition, records []Record) error {
	s, err := lookup(p)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "put all", Partition: p, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	stmt := upsertSQL(s.table)
	for _, r := range records {
		if err := validRecord(r); err != nil {
			return &StoreError{Op: "put all", Partition: p, Err: err}
		}
		if _, err := tx.ExecContext(ctx, stmt, r.Key, string(r.Value), now); err != nil {
			return &StoreError{Op: "put all", Partition: p, Err: fmt.Errorf("upsert %q: %w", r.Key, err)}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "put all", Partition: p, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// Delete removes the record under key. Deleting a missing key is not an error.
func (db *DB) Delete(ctx context.Context, p Partition, key string) error {
	s, err := lookup(p)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE id = ?`, key); err != nil {
		return &StoreError{Op: "delete", Partition: p, Err: err}
	}
	return nil
}

// Count returns the number of records in the partition.
func (db *DB) Count(ctx context.Context, p Partition) (int, error) {
	s, err := lookup(p)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+s.table).Scan(&n); err != nil {
		return 0, &StoreError{Op: "count", Partition: p, Err: err}
	}
	return n, nil
}

// CountByIndex returns the number of records whose indexed field equals value.
func (db *DB) CountByIndex(ctx context.Context, p Partition, index string, value any) (int, error) {
	s, path, err := lookupIndex(p, index)
	if err != nil {
		return 0, err
	}
	var n int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE json_extract(data, '%s') = ?`, s.table, path)
	if err := db.QueryRowContext(ctx, q, value).Scan(&n); err != nil {
		return 0, &StoreError{Op: "count", Partition: p, Err: err}
	}
	return n, nil
}

// Clear removes every record of the partition.
func (db *DB) Clear(ctx context.Context, p Partition) error {
	s, err := lookup(p)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM `+s.table); err != nil {
		return &StoreError{Op: "clear", Partition: p, Err: err}
	}
	return nil
}

func upsertSQL(table string) string {
	return `INSERT INTO ` + table + ` (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
}

func validRecord(r Record) error {
	if r.Key == "" {
		return errors.New("empty key")
	}
	if !json.Valid(r.Value) {
		return fmt.Errorf("record %q: invalid JSON", r.Key)
	}
	return nil
}
