// Package dedupe tracks keys of work that is already pending, so the same
// job is not queued twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

// Tracker records in-flight keys.
type Tracker interface {
	// Claim records key and reports true, or reports false when key is
	// already in flight.
	Claim(ctx context.Context, key string) bool

	// Release forgets key once its work finished or was never queued.
	Release(ctx context.Context, key string)

	Len() int
}

// inMemoryTracker keeps keys in claim order. When bounded and full, the
// oldest claim is dropped to make room.
type inMemoryTracker struct {
	mu      sync.Mutex
	keys    map[string]*list.Element
	order   *list.List
	maxSize int
}

// NewInMemoryTracker creates an in-memory tracker.
func NewInMemoryTracker(opts ...Option) Tracker {
	t := &inMemoryTracker{
		maxSize: 4096,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.keys = make(map[string]*list.Element)
	t.order = list.New()
	return t
}

func (t *inMemoryTracker) Claim(_ context.Context, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.keys[key]; ok {
		return false
	}
	if t.maxSize > 0 && t.order.Len() >= t.maxSize {
		oldest := t.order.Front()
		delete(t.keys, oldest.Value.(string))
		t.order.Remove(oldest)
	}
	t.keys[key] = t.order.PushBack(key)
	return true
}

func (t *inMemoryTracker) Release(_ context.Context, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.keys[key]; ok {
		t.order.Remove(el)
		delete(t.keys, key)
	}
}

func (t *inMemoryTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}
