// Package storetest opens throwaway migrated stores for tests.
package storetest

import (
	"path/filepath"
	"testing"

	"github.com/deltadent/ServicePro-sub000/internal/store"
)

// Open returns a migrated store in a temp dir, closed when the test ends.
func Open(t testing.TB) *store.DB {
	t.Helper()
	db, _, err := store.OpenAndMigrate(filepath.Join(t.TempDir(), "store.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
