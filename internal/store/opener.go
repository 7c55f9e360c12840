package store

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Opener hands out the single store handle for a process. Concurrent Open
// calls share one initialization; a failed open is not remembered, so the next
// call tries again.
type Opener struct {
	path   string
	logger *zap.Logger
	group  singleflight.Group

	mu     sync.Mutex
	db     *DB
	result *MigrateResult
}

// NewOpener creates an opener for the store file at path.
func NewOpener(path string, logger *zap.Logger) *Opener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Opener{path: path, logger: logger}
}

// Open returns the memoized handle, opening and migrating the store on first use.
func (o *Opener) Open(ctx context.Context) (*DB, error) {
	if db := o.current(); db != nil {
		return db, nil
	}

	ch := o.group.DoChan("open", func() (any, error) {
		if db := o.current(); db != nil {
			return db, nil
		}
		db, result, err := OpenAndMigrate(o.path, o.logger)
		if err != nil {
			return nil, err
		}
		if result.Changed {
			o.logger.Info("migrations applied", zap.Uint("version", result.Version), zap.Bool("recreated", result.Recreate))
		} else {
			o.logger.Info("migrations up to date", zap.Uint("version", result.Version))
		}
		o.mu.Lock()
		o.db, o.result = db, result
		o.mu.Unlock()
		return db, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*DB), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the migration outcome of the successful open, if any.
func (o *Opener) Result() *MigrateResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// Close closes the handle if it was opened. Safe to call more than once.
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.db == nil {
		return nil
	}
	err := o.db.Close()
	o.db = nil
	return err
}

func (o *Opener) current() *DB {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.db
}
