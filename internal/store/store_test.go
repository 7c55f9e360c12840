package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateAppliesOnFreshDB(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so run it again to check idempotency.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + indexes)", result.Version)
	}
}

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Errorf("LatestVersion() = %d, want 2", v)
	}
}

// TestMigrateCreatesEveryPartition verifies each declared partition has a
// backing table and every declared index is usable.
func TestMigrateCreatesEveryPartition(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, p := range Partitions() {
		t.Run(string(p), func(t *testing.T) {
			if _, err := db.Count(ctx, p); err != nil {
				t.Fatalf("Count(%s) error = %v", p, err)
			}
			for index := range schemas[p].indexes {
				if _, err := db.CountByIndex(ctx, p, index, "x"); err != nil {
					t.Errorf("CountByIndex(%s, %s) error = %v", p, index, err)
				}
			}
		})
	}
}

func TestPutGetReplacesWholeRecord(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	r, _ := NewRecord("j1", map[string]any{"id": "j1", "title": "Boiler", "notes": "old"})
	if err := db.Put(ctx, Jobs, r); err != nil {
		t.Fatal(err)
	}
	r, _ = NewRecord("j1", map[string]any{"id": "j1", "title": "Boiler service"})
	if err := db.Put(ctx, Jobs, r); err != nil {
		t.Fatal(err)
	}

	raw, err := db.Get(ctx, Jobs, "j1")
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got["title"] != "Boiler service" {
		t.Errorf("title = %v, want Boiler service", got["title"])
	}
	if _, ok := got["notes"]; ok {
		t.Error("notes survived a Put; records must be replaced wholesale")
	}
}

func TestGetMissing(t *testing.T) {
	db := testDB(t)

	_, err := db.Get(context.Background(), Customers, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("Get() error type = %T, want *StoreError", err)
	}
	if storeErr.Partition != Customers {
		t.Errorf("partition = %q, want customers", storeErr.Partition)
	}
}

func TestUnknownPartition(t *testing.T) {
	db := testDB(t)

	if err := db.Put(context.Background(), Partition("nope"), Record{Key: "k", Value: json.RawMessage(`{}`)}); !errors.Is(err, ErrUnknownPartition) {
		t.Errorf("Put(nope) error = %v, want ErrUnknownPartition", err)
	}
}

func TestPutRejectsInvalidRecords(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.Put(ctx, Jobs, Record{Key: "", Value: json.RawMessage(`{}`)}); err == nil {
		t.Error("Put() with empty key should fail")
	}
	if err := db.Put(ctx, Jobs, Record{Key: "j1", Value: json.RawMessage(`{bad`)}); err == nil {
		t.Error("Put() with invalid JSON should fail")
	}
}

func TestPutAllGetAllCountClear(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	var records []Record
	for _, id := range []string{"c3", "c1", "c2"} {
		r, _ := NewRecord(id, map[string]string{"id": id, "name": "Customer " + id})
		records = append(records, r)
	}
	if err := db.PutAll(ctx, Customers, records); err != nil {
		t.Fatal(err)
	}

	all, err := db.GetAll(ctx, Customers)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d records, want 3", len(all))
	}
	if all[0].Key != "c1" || all[2].Key != "c3" {
		t.Errorf("order = %s,%s,%s, want c1,c2,c3", all[0].Key, all[1].Key, all[2].Key)
	}

	n, err := db.Count(ctx, Customers)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}

	if err := db.Clear(ctx, Customers); err != nil {
		t.Fatal(err)
	}
	n, _ = db.Count(ctx, Customers)
	if n != 0 {
		t.Errorf("Count() after Clear = %d, want 0", n)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	r, _ := NewRecord("q1", map[string]string{"id": "q1"})
	if err := db.Put(ctx, Quotes, r); err != nil {
		t.Fatal(err)
	}
	if err := db.Delete(ctx, Quotes, "q1"); err != nil {
		t.Fatal(err)
	}
	if err := db.Delete(ctx, Quotes, "q1"); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
}

func TestGetByIndex(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, j := range []map[string]string{
		{"id": "j1", "technician_id": "t1"},
		{"id": "j2", "technician_id": "t2"},
		{"id": "j3", "technician_id": "t1"},
	} {
		r, _ := NewRecord(j["id"], j)
		if err := db.Put(ctx, Jobs, r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.GetByIndex(ctx, Jobs, "technician_id", "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Key != "j1" || got[1].Key != "j3" {
		t.Errorf("GetByIndex(t1) = %v, want j1,j3", got)
	}

	n, err := db.CountByIndex(ctx, Jobs, "technician_id", "t2")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountByIndex(t2) = %d, want 1", n)
	}

	if _, err := db.GetByIndex(ctx, Jobs, "nope", "x"); err == nil {
		t.Error("GetByIndex() on an undeclared index should fail")
	}
}

func TestMeta(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	m, err := db.GetMeta(ctx, MetaLastSyncAt, nil)
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Fatalf("GetMeta() on unset key = %+v, want nil", m)
	}

	if err := db.SetMeta(ctx, MetaLastSyncAt, "2024-01-01T09:00:00Z"); err != nil {
		t.Fatal(err)
	}
	var value string
	m, err = db.GetMeta(ctx, MetaLastSyncAt, &value)
	if err != nil {
		t.Fatal(err)
	}
	if value != "2024-01-01T09:00:00Z" {
		t.Errorf("value = %q, want 2024-01-01T09:00:00Z", value)
	}
	if m.Key != MetaLastSyncAt || m.UpdatedAt == "" {
		t.Errorf("meta = %+v, want key and updated_at set", m)
	}

	if err := db.DeleteMeta(ctx, MetaLastSyncAt); err != nil {
		t.Fatal(err)
	}
	if m, _ := db.GetMeta(ctx, MetaLastSyncAt, nil); m != nil {
		t.Error("meta still present after DeleteMeta")
	}
}

// TestOpenAndMigrateRecreatesNewerSchema simulates a store written by a newer
// build: the contract is to drop it and start empty rather than refuse to open.
func TestOpenAndMigrateRecreatesNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	ctx := context.Background()

	db, _, err := OpenAndMigrate(path, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	r, _ := NewRecord("j1", map[string]string{"id": "j1"})
	if err := db.Put(ctx, Jobs, r); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`UPDATE schema_migrations SET version = 99`); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	db, result, err := OpenAndMigrate(path, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenAndMigrate() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	if !result.Recreate {
		t.Error("Recreate = false, want true")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2", result.Version)
	}
	if n, _ := db.Count(ctx, Jobs); n != 0 {
		t.Errorf("jobs count = %d, want 0 after recreate", n)
	}
}

func TestOpenAndMigrateRecreatesDirtySchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")

	db, _, err := OpenAndMigrate(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	db, result, err := OpenAndMigrate(path, nil)
	if err != nil {
		t.Fatalf("OpenAndMigrate() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	if !result.Recreate || result.Dirty {
		t.Errorf("result = %+v, want recreated and clean", result)
	}
}

func TestOpenAndMigrateRecreatesGarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	garbage := make([]byte, 512)
	for i := range garbage {
		garbage[i] = 'x'
	}
	if err := os.WriteFile(path, garbage, 0600); err != nil {
		t.Fatal(err)
	}

	db, result, err := OpenAndMigrate(path, nil)
	if err != nil {
		t.Fatalf("OpenAndMigrate() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	if !result.Recreate {
		t.Error("Recreate = false, want true for a non-database file")
	}
}

func TestOpenerMemoizesHandle(t *testing.T) {
	o := NewOpener(filepath.Join(t.TempDir(), "store.db"), nil)
	t.Cleanup(func() { _ = o.Close() })

	const callers = 8
	handles := make([]*DB, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			db, err := o.Open(context.Background())
			if err != nil {
				t.Errorf("Open() error = %v", err)
				return
			}
			handles[i] = db
		}()
	}
	wg.Wait()

	for i, h := range handles {
		if h == nil || h != handles[0] {
			t.Fatalf("handle %d = %p, want %p (one shared handle)", i, h, handles[0])
		}
	}
	if o.Result() == nil || !o.Result().Changed {
		t.Errorf("Result() = %+v, want the first-open migration result", o.Result())
	}
}

func TestOpenerRetriesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	// Parent directory does not exist yet, so the first open fails.
	path := filepath.Join(dir, "missing", "store.db")
	o := NewOpener(path, nil)
	t.Cleanup(func() { _ = o.Close() })

	if _, err := o.Open(context.Background()); err == nil {
		t.Fatal("Open() in a missing directory should fail")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Open(context.Background()); err != nil {
		t.Fatalf("Open() after fixing the directory error = %v", err)
	}
}
