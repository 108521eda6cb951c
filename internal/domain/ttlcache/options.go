package ttlcache

import "time"

// Option applies a configuration option to a Cache.
type Option func(*settings)

type settings struct {
	name            string
	ttl             time.Duration
	cleanupInterval time.Duration
	maxSize         int
	now             func() time.Time
}

// WithName labels the cache in metrics and logs.
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithTTL sets how long an entry lives after insertion.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithCleanupInterval sets the janitor period.
func WithCleanupInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.cleanupInterval = d
		}
	}
}

// WithMaxSize bounds the number of entries; the oldest insertion is evicted
// first. Zero or negative means unbounded.
func WithMaxSize(n int) Option {
	return func(s *settings) { s.maxSize = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}
