package docstore

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store useful for tests and local runs.
// It is not intended for production use.
type MemoryStore struct {
	mu    sync.RWMutex
	seq   int64
	colls map[string]map[string]memDoc

	notifier Notifier
	clock    func() time.Time
	log      *slog.Logger
}

type memDoc struct {
	Document
	seq int64
}

type MemoryOption func(*MemoryStore)

func WithMemoryClock(fn func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.clock = fn }
}

func WithMemoryNotifier(n Notifier) MemoryOption {
	return func(s *MemoryStore) { s.notifier = n }
}

func NewMemoryStore(log *slog.Logger, opts ...MemoryOption) *MemoryStore {
	if log == nil {
		log = slog.Default()
	}
	s := &MemoryStore{
		colls:    make(map[string]map[string]memDoc),
		notifier: NewLocalNotifier(),
		clock:    time.Now,
		log:      log,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *MemoryStore) Create(ctx context.Context, collection string, data Data) (string, error) {
	now := s.clock().UTC()
	body, err := normalize(data, now)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()

	s.mu.Lock()
	if s.colls[collection] == nil {
		s.colls[collection] = make(map[string]memDoc)
	}
	s.seq++
	s.colls[collection][id] = memDoc{Document: Document{ID: id, Data: body, CreatedAt: now, UpdatedAt: now}, seq: s.seq}
	s.mu.Unlock()

	s.changed(ctx, collection)
	return id, nil
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.colls[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return copyDoc(d.Document), nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields Data) error {
	now := s.clock().UTC()
	patch, err := normalize(fields, now)
	if err != nil {
		return err
	}

	s.mu.Lock()
	d, ok := s.colls[collection][id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	merged := make(Data, len(d.Data)+len(patch))
	for k, v := range d.Data {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	d.Data = merged
	d.UpdatedAt = now
	s.colls[collection][id] = d
	s.mu.Unlock()

	s.changed(ctx, collection)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	if _, ok := s.colls[collection][id]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.colls[collection], id)
	s.mu.Unlock()

	s.changed(ctx, collection)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, collection string, q Query) ([]Document, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	s.mu.RLock()
	stored := make([]memDoc, 0, len(s.colls[collection]))
	for _, d := range s.colls[collection] {
		stored = append(stored, d)
	}
	s.mu.RUnlock()

	// Insertion order is the base order; OrderBy sorts stably on top of it.
	sort.Slice(stored, func(i, j int) bool { return stored[i].seq < stored[j].seq })
	docs := make([]Document, len(stored))
	for i, d := range stored {
		docs[i] = copyDoc(d.Document)
	}
	return apply(docs, q)
}

func (s *MemoryStore) Watch(ctx context.Context, collection string, q Query) (<-chan []Document, error) {
	return watch(ctx, s.notifier, s.Query, collection, q, s.log)
}

func (s *MemoryStore) changed(ctx context.Context, collection string) {
	if err := s.notifier.Notify(ctx, collection); err != nil {
		s.log.Warn("docstore notify failed", "collection", collection, "err", err)
	}
}

func copyDoc(d Document) Document {
	out := d
	out.Data = make(Data, len(d.Data))
	for k, v := range d.Data {
		out.Data[k] = v
	}
	return out
}
