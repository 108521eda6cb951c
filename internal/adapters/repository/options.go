package repository

import "time"

// Option applies a configuration option to the SQLiteStore.
type Option func(*SQLiteStore)

// WithClock overrides the time source used for artifact timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides how new artifact ids are generated.
func WithIDGenerator(newID func() string) Option {
	return func(s *SQLiteStore) {
		if newID != nil {
			s.newID = newID
		}
	}
}
