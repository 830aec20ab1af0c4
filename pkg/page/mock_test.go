package page_test

import (
	"context"
	"sync"

	"github.com/cesarabad/muffinmanager/pkg/live"
	"github.com/cesarabad/muffinmanager/pkg/models"
)

// brandStore is an in-memory versioned store with optional gates that
// hold a call until released.
type brandStore struct {
	mu       sync.Mutex
	active   []models.Brand
	obsolete []models.Brand
	calls    []string

	listErr    error
	saveErr    error
	listGate   chan struct{}
	obsGate    chan struct{}
	insertGate chan struct{}
	obsoleted  map[int64]bool
}

func newBrandStore(active ...models.Brand) *brandStore {
	return &brandStore{active: active, obsoleted: map[int64]bool{}}
}

func (s *brandStore) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *brandStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *brandStore) ListAll(ctx context.Context) ([]models.Brand, error) {
	s.record("listAll")
	s.mu.Lock()
	gate := s.listGate
	s.mu.Unlock()
	if err := wait(ctx, gate); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]models.Brand(nil), s.active...), nil
}

func (s *brandStore) ListObsolete(ctx context.Context) ([]models.Brand, error) {
	s.record("listObsolete")
	s.mu.Lock()
	gate := s.obsGate
	s.mu.Unlock()
	if err := wait(ctx, gate); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Brand(nil), s.obsolete...), nil
}

func (s *brandStore) Insert(ctx context.Context, item models.Brand) (models.Brand, error) {
	s.record("insert")
	s.mu.Lock()
	gate := s.insertGate
	s.mu.Unlock()
	if err := wait(ctx, gate); err != nil {
		return item, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return item, s.saveErr
	}
	item.ID = models.ID(int64(100 + len(s.active)))
	s.active = append(s.active, item)
	return item, nil
}

func (s *brandStore) Update(_ context.Context, item models.Brand) (models.Brand, error) {
	s.record("update")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return item, s.saveErr
	}
	for i := range s.active {
		if *s.active[i].ID == *item.ID {
			s.active[i] = item
		}
	}
	return item, nil
}

func (s *brandStore) DeleteByID(_ context.Context, id int64) error {
	s.record("deleteById")
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.active[:0]
	for _, b := range s.active {
		if *b.ID != id {
			kept = append(kept, b)
		}
	}
	s.active = kept
	return nil
}

func (s *brandStore) DeleteByReference(_ context.Context, reference string) error {
	s.record("deleteByReference:" + reference)
	return nil
}

func (s *brandStore) SetObsoleteByID(_ context.Context, id int64, obsolete bool) error {
	s.record("setObsoleteById")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obsoleted[id] = obsolete
	return nil
}

// plainStore exposes only the plain CRUD operations of s.
type plainStore struct{ s *brandStore }

func (p plainStore) ListAll(ctx context.Context) ([]models.Brand, error) { return p.s.ListAll(ctx) }
func (p plainStore) Insert(ctx context.Context, item models.Brand) (models.Brand, error) {
	return p.s.Insert(ctx, item)
}
func (p plainStore) Update(ctx context.Context, item models.Brand) (models.Brand, error) {
	return p.s.Update(ctx, item)
}
func (p plainStore) DeleteByID(ctx context.Context, id int64) error { return p.s.DeleteByID(ctx, id) }

type fakeLive struct {
	mu           sync.Mutex
	topics       []string
	handler      live.Handler
	unsubscribed int
}

func (f *fakeLive) Subscribe(h live.Handler, topics ...string) live.Unsubscribe {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	f.topics = append(f.topics, topics...)
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.unsubscribed++
			f.handler = nil
		})
	}
}

func (f *fakeLive) push(message, topic string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(message, topic)
	}
}

type notifications struct {
	mu  sync.Mutex
	got []string
	msg []string
}

func (n *notifications) add(key, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, key)
	n.msg = append(n.msg, message)
}

func (n *notifications) keys() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.got...)
}

func (n *notifications) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msg...)
}
