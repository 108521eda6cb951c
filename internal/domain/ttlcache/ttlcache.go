// Package ttlcache is an in-memory key/value cache whose entries expire a
// fixed time after insertion, with a background janitor that drops them.
package ttlcache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/connect-extensions/pkg/logger"
	"github.com/okian/connect-extensions/pkg/metrics"
)

const (
	defaultTTL             = time.Hour
	defaultCleanupInterval = time.Minute
)

type entry[V any] struct {
	key     string
	value   V
	expires time.Time
	elem    *list.Element
}

// Cache maps string keys to values of type V.
type Cache[V any] struct {
	settings

	mu     sync.Mutex
	items  map[string]*entry[V]
	order  *list.List // insertion order, oldest at the front
	group  singleflight.Group
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an empty cache. Call Start to run the janitor.
func New[V any](opts ...Option) *Cache[V] {
	c := &Cache[V]{
		settings: settings{
			name:            "cache",
			ttl:             defaultTTL,
			cleanupInterval: defaultCleanupInterval,
			now:             time.Now,
		},
		items: make(map[string]*entry[V]),
		order: list.New(),
	}
	for _, opt := range opts {
		opt(&c.settings)
	}
	return c
}

// TTL returns the configured entry lifetime.
func (c *Cache[V]) TTL() time.Duration { return c.ttl }

// Get returns the live value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		metrics.RecordCacheMiss(c.name)
		var zero V
		return zero, false
	}
	if !c.now().Before(e.expires) {
		c.removeLocked(e)
		metrics.RecordCacheExpired(c.name)
		metrics.RecordCacheMiss(c.name)
		var zero V
		return zero, false
	}
	metrics.RecordCacheHit(c.name)
	return e.value, true
}

// Set stores value under key with a fresh TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

func (c *Cache[V]) setLocked(key string, value V) {
	if old, ok := c.items[key]; ok {
		c.removeLocked(old)
	}
	if c.maxSize > 0 {
		for len(c.items) >= c.maxSize {
			c.removeLocked(c.order.Front().Value.(*entry[V]))
		}
	}
	e := &entry[V]{key: key, value: value, expires: c.now().Add(c.ttl)}
	e.elem = c.order.PushBack(e)
	c.items[key] = e
	metrics.UpdateCacheSize(c.name, len(c.items))
}

// GetOrCreate returns the cached value for key, or calls create once per
// key (concurrent callers share the result) and caches a successful value.
func (c *Cache[V]) GetOrCreate(key string, create func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := create()
		if err != nil {
			return v, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		c.removeLocked(e)
	}
}

// Len returns the number of stored entries, including expired ones the
// janitor has not dropped yet.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Purge drops every expired entry and returns how many were removed.
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	// Entries share one TTL, so insertion order is expiry order.
	for el := c.order.Front(); el != nil; {
		e := el.Value.(*entry[V])
		if now.Before(e.expires) {
			break
		}
		el = el.Next()
		c.removeLocked(e)
		metrics.RecordCacheExpired(c.name)
		removed++
	}
	return removed
}

func (c *Cache[V]) removeLocked(e *entry[V]) {
	c.order.Remove(e.elem)
	delete(c.items, e.key)
	metrics.UpdateCacheSize(c.name, len(c.items))
}

// Start launches the janitor. It stops when ctx is done or Stop is called.
func (c *Cache[V]) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	log := logger.Named("ttlcache").With(logger.String("cache", c.name))
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Purge(); n > 0 {
					log.Debug(ctx, "expired entries removed", logger.Int("count", n))
				}
			}
		}
	}()
}

// Stop halts the janitor and waits for it to exit.
func (c *Cache[V]) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}
