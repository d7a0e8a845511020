package store

import (
	"turnstile/internal/platform/logger"

	"github.com/cockroachdb/pebble"
)

// Option adjusts a Store before any backend is dialled
type Option func(*Store) error

// WithLogger routes pg and redis dial logs to log
func WithLogger(log logger.Logger) Option {
	return func(s *Store) error {
		s.Log = log
		return nil
	}
}

// WithKVOptions tunes the pebble database behind the buffer and outbox
// the in-memory flag of KVConfig still decides the filesystem
func WithKVOptions(o *pebble.Options) Option {
	return func(s *Store) error {
		s.kvOpts = o
		return nil
	}
}
