package store

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/deltadent/ServicePro-sub000/internal/store/migrations"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// MigrateResult describes what happened during migration.
type MigrateResult struct {
	Version  uint
	Dirty    bool
	Changed  bool
	Recreate bool // the previous store was destroyed because it was incompatible
}

// Migrate runs all pending migrations on the database. It returns
// ErrIncompatibleSchema without touching anything when the database was
// written by a newer build or a previous migration was interrupted.
func (db *DB) Migrate() (*MigrateResult, error) {
	var tables int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master`).Scan(&tables); err != nil {
		if isCorrupt(err) {
			return nil, fmt.Errorf("%w: %v", ErrIncompatibleSchema, err)
		}
		return nil, fmt.Errorf("read schema: %w", err)
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}

	current, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("migration version: %w", err)
	}
	latest, err := LatestVersion()
	if err != nil {
		return nil, err
	}
	if dirty {
		return nil, fmt.Errorf("%w: version %d is dirty", ErrIncompatibleSchema, current)
	}
	if current > latest {
		return nil, fmt.Errorf("%w: version %d is newer than %d", ErrIncompatibleSchema, current, latest)
	}

	err = m.Up()
	changed := true
	if err == migrate.ErrNoChange {
		changed = false
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("migration up: %w", err)
	}

	version, dirty, _ := m.Version()
	return &MigrateResult{
		Version: version,
		Dirty:   dirty,
		Changed: changed,
	}, nil
}

// LatestVersion returns the highest migration version embedded in the binary.
func LatestVersion() (uint, error) {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return 0, fmt.Errorf("read migrations: %w", err)
	}
	var latest uint
	for _, e := range entries {
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		if uint(v) > latest {
			latest = uint(v)
		}
	}
	return latest, nil
}

// OpenAndMigrate opens the store at path and brings it to the current schema.
// An incompatible or unreadable store is deleted and recreated empty.
func OpenAndMigrate(path string, logger *zap.Logger) (*DB, *MigrateResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, result, err := openAndMigrate(path)
	if err == nil {
		return db, result, nil
	}
	if !errors.Is(err, ErrIncompatibleSchema) {
		return nil, nil, err
	}

	logger.Warn("store incompatible, recreating", zap.String("path", path), zap.Error(err))
	if err := removeFiles(path); err != nil {
		return nil, nil, &StoreError{Op: "recreate", Err: err}
	}
	db, result, err = openAndMigrate(path)
	if err != nil {
		return nil, nil, err
	}
	result.Recreate = true
	return db, result, nil
}

func openAndMigrate(path string) (*DB, *MigrateResult, error) {
	db, err := Open(path)
	if err != nil {
		if isCorrupt(err) {
			return nil, nil, fmt.Errorf("%w: %v", ErrIncompatibleSchema, err)
		}
		return nil, nil, &StoreError{Op: "open", Err: err}
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		if errors.Is(err, ErrIncompatibleSchema) {
			return nil, nil, err
		}
		return nil, nil, &StoreError{Op: "migrate", Err: err}
	}
	return db, result, nil
}
