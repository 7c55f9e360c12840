// Package repo implements the entity repositories: reads go to the backend
// first and fall back to the local store when it cannot answer in time.
package repo

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/deltadent/ServicePro-sub000/internal/remote"
	"github.com/deltadent/ServicePro-sub000/internal/store"
)

// DefaultReadBudget bounds a remote read before the cache is used instead.
const DefaultReadBudget = 4 * time.Second

// ListResult is a page of entities. Count is the number of matches before
// pagination.
type ListResult[T any] struct {
	Items     []T
	Count     int
	FromCache bool
}

// DetailResult is a single entity. Item is nil when neither tier has it.
type DetailResult[T any] struct {
	Item      *T
	FromCache bool
}

// Deps are the collaborators every repository shares.
type Deps struct {
	DB         *store.DB
	Backend    remote.Backend
	Logger     *zap.Logger
	ReadBudget time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.ReadBudget <= 0 {
		d.ReadBudget = DefaultReadBudget
	}
	return d
}

// Repository mirrors one backend resource into one store partition.
type Repository[T any] struct {
	deps      Deps
	resource  string
	partition store.Partition
	embed     string
	key       func(*T) string
}

// NewRepository creates a repository for entities of type T read from
// resource and cached in partition. embed is an optional select list used
// for every remote read.
func NewRepository[T any](deps Deps, resource string, partition store.Partition, embed string, key func(*T) string) *Repository[T] {
	return &Repository[T]{
		deps:      deps.withDefaults(),
		resource:  resource,
		partition: partition,
		embed:     embed,
		key:       key,
	}
}

// FetchList runs q against the backend and caches the rows it returns. When
// the backend fails or times out the same query is evaluated over the cached
// records instead. It never fails; an unreadable cache yields an empty page.
func (r *Repository[T]) FetchList(ctx context.Context, q remote.Query) ListResult[T] {
	if q.Embed == "" {
		q.Embed = r.embed
	}
	items, count, err := r.fetchRemote(ctx, q)
	if err == nil {
		return ListResult[T]{Items: items, Count: count}
	}
	r.deps.Logger.Info("remote read failed, serving cache",
		zap.String("resource", r.resource),
		zap.Error(err),
	)
	return r.listCache(ctx, q)
}

func (r *Repository[T]) fetchRemote(ctx context.Context, q remote.Query) ([]T, int, error) {
	rctx, cancel := context.WithTimeout(ctx, r.deps.ReadBudget)
	defer cancel()

	rows, count, err := r.deps.Backend.Select(rctx, r.resource, q)
	if err != nil {
		return nil, 0, err
	}
	items := make([]T, 0, len(rows))
	recs := make([]store.Record, 0, len(rows))
	for _, row := range rows {
		v, err := remote.Decode[T](row)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
		recs = append(recs, store.Record{Key: r.key(&v), Value: row})
	}
	if err := r.deps.DB.PutAll(ctx, r.partition, recs); err != nil {
		r.deps.Logger.Warn("cache write failed", zap.String("partition", string(r.partition)), zap.Error(err))
	}
	return items, count, nil
}

func (r *Repository[T]) listCache(ctx context.Context, q remote.Query) ListResult[T] {
	recs, err := r.deps.DB.GetAll(ctx, r.partition)
	if err != nil {
		r.deps.Logger.Warn("cache read failed", zap.String("partition", string(r.partition)), zap.Error(err))
		return ListResult[T]{Items: []T{}, FromCache: true}
	}
	docs := make([]json.RawMessage, 0, len(recs))
	for _, rec := range recs {
		docs = append(docs, rec.Value)
	}
	page, total := q.Apply(docs)
	items := make([]T, 0, len(page))
	for _, raw := range page {
		v, err := remote.Decode[T](raw)
		if err != nil {
			r.deps.Logger.Warn("skipping undecodable cache record", zap.String("partition", string(r.partition)), zap.Error(err))
			total--
			continue
		}
		items = append(items, v)
	}
	return ListResult[T]{Items: items, Count: total, FromCache: true}
}

// FetchDetail reads one entity by id with the same backend-then-cache policy.
// A row the backend does not know is still looked up in the cache, which
// holds records created offline.
func (r *Repository[T]) FetchDetail(ctx context.Context, id string) DetailResult[T] {
	q := remote.Query{Embed: r.embed, Limit: 1}.Where("id", remote.OpEq, id)
	items, _, err := r.fetchRemote(ctx, q)
	if err == nil && len(items) > 0 {
		return DetailResult[T]{Item: &items[0]}
	}
	if err != nil {
		r.deps.Logger.Info("remote read failed, serving cache",
			zap.String("resource", r.resource),
			zap.String("id", id),
			zap.Error(err),
		)
	}
	return DetailResult[T]{Item: r.cached(ctx, id), FromCache: true}
}

// Cached returns the cached entity with the given id, or nil.
func (r *Repository[T]) Cached(ctx context.Context, id string) *T {
	return r.cached(ctx, id)
}

func (r *Repository[T]) cached(ctx context.Context, id string) *T {
	raw, err := r.deps.DB.Get(ctx, r.partition, id)
	if err != nil {
		return nil
	}
	v, err := remote.Decode[T](raw)
	if err != nil {
		r.deps.Logger.Warn("undecodable cache record", zap.String("partition", string(r.partition)), zap.String("id", id), zap.Error(err))
		return nil
	}
	return &v
}

// UpdateCache replaces the cached copy of v. Failures are logged only.
func (r *Repository[T]) UpdateCache(ctx context.Context, v T) {
	rec, err := store.NewRecord(r.key(&v), v)
	if err == nil {
		err = r.deps.DB.Put(ctx, r.partition, rec)
	}
	if err != nil {
		r.deps.Logger.Warn("cache update failed", zap.String("partition", string(r.partition)), zap.Error(err))
	}
}

// Evict drops the cached copy of the entity with the given id.
func (r *Repository[T]) Evict(ctx context.Context, id string) {
	if err := r.deps.DB.Delete(ctx, r.partition, id); err != nil {
		r.deps.Logger.Warn("cache evict failed", zap.String("partition", string(r.partition)), zap.Error(err))
	}
}

// ClearCache removes every cached entity of this repository.
func (r *Repository[T]) ClearCache(ctx context.Context) error {
	return r.deps.DB.Clear(ctx, r.partition)
}
