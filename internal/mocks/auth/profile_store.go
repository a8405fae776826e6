package auth

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	"github.com/target/opsdesk-go/internal/ports"
)

var _ ports.ProfileStore = (*MemoryProfileStore)(nil)

// MemoryProfileStore is an in-memory ProfileStore. Changes made through Put,
// Delete, Merge and Create are delivered to subscribers synchronously, on the
// calling goroutine, in call order.
type MemoryProfileStore struct {
	// Delay postpones reads on a collection, letting tests choose which lookup finishes first.
	Delay map[domainauth.Collection]time.Duration
	// Err makes every read and write on a collection fail.
	Err map[domainauth.Collection]error

	mu     sync.Mutex
	docs   map[domainauth.Collection]map[string]map[string]any
	subs   map[int]*memorySubscription
	nextID int
	reads  map[domainauth.Collection]int
}

// NewMemoryProfileStore returns an empty store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{
		Delay: map[domainauth.Collection]time.Duration{},
		Err:   map[domainauth.Collection]error{},
		docs:  map[domainauth.Collection]map[string]map[string]any{},
		subs:  map[int]*memorySubscription{},
		reads: map[domainauth.Collection]int{},
	}
}

type memorySubscription struct {
	store      *MemoryProfileStore
	id         int
	collection domainauth.Collection
	docID      string
	fn         func(domainauth.Snapshot)
}

func (s *memorySubscription) Close() error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	delete(s.store.subs, s.id)
	return nil
}

func (m *MemoryProfileStore) before(ctx context.Context, c domainauth.Collection) error {
	m.mu.Lock()
	delay := m.Delay[c]
	err := m.Err[c]
	m.reads[c]++
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (m *MemoryProfileStore) Get(ctx context.Context, c domainauth.Collection, id string) (domainauth.ProfileRecord, error) {
	if err := m.before(ctx, c); err != nil {
		return domainauth.ProfileRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[c][id]
	if !ok {
		return domainauth.ProfileRecord{}, ports.ErrRecordNotFound
	}
	return domainauth.ProfileRecord{ID: id, Collection: c, Data: maps.Clone(doc)}, nil
}

func (m *MemoryProfileStore) FindByEmail(ctx context.Context, c domainauth.Collection, email string) (domainauth.ProfileRecord, error) {
	if err := m.before(ctx, c); err != nil {
		return domainauth.ProfileRecord{}, err
	}
	want := normalize(email)
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.docs[c]))
	for id := range m.docs[c] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		doc := m.docs[c][id]
		if normalize(domainauth.EmailField.Value(doc)) == want {
			return domainauth.ProfileRecord{ID: id, Collection: c, Data: maps.Clone(doc)}, nil
		}
	}
	return domainauth.ProfileRecord{}, ports.ErrRecordNotFound
}

func (m *MemoryProfileStore) Merge(_ context.Context, c domainauth.Collection, id string, fields map[string]any) (bool, error) {
	m.mu.Lock()
	if err := m.Err[c]; err != nil {
		m.mu.Unlock()
		return false, err
	}
	doc, ok := m.docs[c][id]
	if !ok {
		m.mu.Unlock()
		return false, nil
	}
	maps.Copy(doc, fields)
	subs := m.matching(c, id)
	snap := domainauth.Snapshot{Record: domainauth.ProfileRecord{ID: id, Collection: c, Data: maps.Clone(doc)}}
	m.mu.Unlock()

	deliver(subs, snap)
	return true, nil
}

func (m *MemoryProfileStore) Create(_ context.Context, c domainauth.Collection, id string, fields map[string]any) error {
	m.mu.Lock()
	if err := m.Err[c]; err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()
	m.upsert(c, id, fields, true)
	return nil
}

func (m *MemoryProfileStore) Subscribe(
	_ context.Context,
	c domainauth.Collection,
	id string,
	fn func(domainauth.Snapshot),
) (ports.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Err[c]; err != nil {
		return nil, err
	}
	m.nextID++
	sub := &memorySubscription{store: m, id: m.nextID, collection: c, docID: id, fn: fn}
	m.subs[sub.id] = sub
	return sub, nil
}

// Put replaces a document and notifies subscribers.
func (m *MemoryProfileStore) Put(c domainauth.Collection, id string, doc map[string]any) {
	m.upsert(c, id, doc, false)
}

// Remove deletes a document and notifies subscribers with a deleted snapshot.
func (m *MemoryProfileStore) Remove(c domainauth.Collection, id string) {
	m.mu.Lock()
	delete(m.docs[c], id)
	subs := m.matching(c, id)
	m.mu.Unlock()

	deliver(subs, domainauth.Snapshot{Record: domainauth.ProfileRecord{ID: id, Collection: c}, Deleted: true})
}

// Doc returns a copy of a stored document.
func (m *MemoryProfileStore) Doc(c domainauth.Collection, id string) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[c][id]
	return maps.Clone(doc), ok
}

// ActiveSubscriptions counts open subscriptions.
func (m *MemoryProfileStore) ActiveSubscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Reads counts read calls issued against a collection.
func (m *MemoryProfileStore) Reads(c domainauth.Collection) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[c]
}

func (m *MemoryProfileStore) upsert(c domainauth.Collection, id string, fields map[string]any, merge bool) {
	m.mu.Lock()
	if m.docs[c] == nil {
		m.docs[c] = map[string]map[string]any{}
	}
	doc, ok := m.docs[c][id]
	if !ok || !merge {
		doc = map[string]any{}
		m.docs[c][id] = doc
	}
	maps.Copy(doc, fields)
	subs := m.matching(c, id)
	snap := domainauth.Snapshot{Record: domainauth.ProfileRecord{ID: id, Collection: c, Data: maps.Clone(doc)}}
	m.mu.Unlock()

	deliver(subs, snap)
}

// matching must be called with mu held.
func (m *MemoryProfileStore) matching(c domainauth.Collection, id string) []*memorySubscription {
	var out []*memorySubscription
	for _, s := range m.subs {
		if s.collection == c && s.docID == id {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func deliver(subs []*memorySubscription, snap domainauth.Snapshot) {
	for _, s := range subs {
		s.fn(snap)
	}
}
