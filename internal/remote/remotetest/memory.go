// Package remotetest provides an in-memory remote.Backend and BlobStore for
// tests of the packages built on top of the backend.
package remotetest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deltadent/ServicePro-sub000/internal/remote"
)

// ErrOffline is wrapped in the *remote.NetworkError returned while the
// backend is offline.
var ErrOffline = errors.New("backend offline")

// Call records one backend invocation.
type Call struct {
	Op       string
	Resource string
	ID       string
}

// Backend is a remote.Backend over in-memory tables. Rows are JSON objects
// kept in insertion order; inserts get a uuid id and created_at when missing.
type Backend struct {
	mu      sync.Mutex
	tables  map[string][]map[string]any
	offline bool
	failOn  func(c Call) error
	calls   []Call
	now     func() time.Time
}

var _ remote.Backend = (*Backend)(nil)

// New returns an empty, online backend.
func New() *Backend {
	return &Backend{
		tables: make(map[string][]map[string]any),
		now:    time.Now,
	}
}

// SetOffline makes every call fail with a *remote.NetworkError.
func (b *Backend) SetOffline(offline bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offline = offline
}

// FailOn installs a hook consulted before every call; a non-nil error is
// returned to the caller as is.
func (b *Backend) FailOn(fn func(c Call) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failOn = fn
}

// Seed appends rows to resource. Each row is marshaled to a JSON object.
func (b *Backend) Seed(resource string, rows ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range rows {
		doc, err := toDoc(r)
		if err != nil {
			panic(fmt.Sprintf("remotetest: seed %s: %v", resource, err))
		}
		b.tables[resource] = append(b.tables[resource], doc)
	}
}

// Rows returns a copy of every row of resource.
func (b *Backend) Rows(resource string) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]any, 0, len(b.tables[resource]))
	for _, r := range b.tables[resource] {
		out = append(out, maps.Clone(r))
	}
	return out
}

// Calls returns the invocations seen so far.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// Writes returns only the insert, update and delete invocations.
func (b *Backend) Writes() []Call {
	var out []Call
	for _, c := range b.Calls() {
		if c.Op == "insert" || c.Op == "update" || c.Op == "delete" {
			out = append(out, c)
		}
	}
	return out
}

func (b *Backend) enter(c Call) error {
	b.calls = append(b.calls, c)
	if b.offline {
		return &remote.NetworkError{Op: c.Op + " " + c.Resource, Err: ErrOffline}
	}
	if b.failOn != nil {
		return b.failOn(c)
	}
	return nil
}

func (b *Backend) Ping(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enter(Call{Op: "ping"})
}

func (b *Backend) Select(ctx context.Context, resource string, q remote.Query) ([]json.RawMessage, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(Call{Op: "select", Resource: resource}); err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, &remote.NetworkError{Op: "select " + resource, Err: err}
	}
	docs := make([]json.RawMessage, 0, len(b.tables[resource]))
	for _, r := range b.tables[resource] {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, raw)
	}
	rows, total := q.Apply(docs)
	return rows, total, nil
}

func (b *Backend) Get(ctx context.Context, resource, id string) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(Call{Op: "get", Resource: resource, ID: id}); err != nil {
		return nil, err
	}
	for _, r := range b.tables[resource] {
		if r["id"] == id {
			return json.Marshal(r)
		}
	}
	return nil, nil
}

func (b *Backend) Insert(ctx context.Context, resource string, row any) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, err := toDoc(row)
	if err != nil {
		return nil, err
	}
	id, _ := doc["id"].(string)
	if err := b.enter(Call{Op: "insert", Resource: resource, ID: id}); err != nil {
		return nil, err
	}
	if id == "" {
		doc["id"] = uuid.NewString()
	}
	if _, ok := doc["created_at"]; !ok {
		doc["created_at"] = b.now().UTC().Format(time.RFC3339Nano)
	}
	b.tables[resource] = append(b.tables[resource], doc)
	return json.Marshal(doc)
}

func (b *Backend) Update(ctx context.Context, resource, id string, patch any) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(Call{Op: "update", Resource: resource, ID: id}); err != nil {
		return nil, err
	}
	p, err := toDoc(patch)
	if err != nil {
		return nil, err
	}
	for _, r := range b.tables[resource] {
		if r["id"] == id {
			maps.Copy(r, p)
			return json.Marshal(r)
		}
	}
	return nil, &remote.StatusError{Op: "update " + resource, Status: http.StatusNotFound, Message: "no rows affected"}
}

func (b *Backend) Delete(ctx context.Context, resource string, q remote.Query) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(q.Filters) == 0 {
		return remote.ErrUnfilteredDelete
	}
	if err := b.enter(Call{Op: "delete", Resource: resource}); err != nil {
		return err
	}
	kept := b.tables[resource][:0]
	for _, r := range b.tables[resource] {
		if !q.Match(r) {
			kept = append(kept, r)
		}
	}
	b.tables[resource] = kept
	return nil
}

func toDoc(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("row is not a JSON object: %w", err)
	}
	return doc, nil
}

// Blobs is an in-memory remote.BlobStore.
type Blobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	Err     error
}

var _ remote.BlobStore = (*Blobs)(nil)

func NewBlobs() *Blobs {
	return &Blobs{objects: make(map[string][]byte)}
}

func (s *Blobs) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	s.objects[key] = buf.Bytes()
	return "mem://" + key, nil
}

// Object returns the bytes stored under key.
func (s *Blobs) Object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	return b, ok
}

// Keys returns every stored key.
func (s *Blobs) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}
