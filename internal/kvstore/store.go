// Package kvstore is the durable key/value layer. Values are JSON documents;
// the Store owns serialization so backends only move bytes.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rightsguard/incident-core/internal/model"
)

// Backend is a byte-level storage medium. Implementations live under
// internal/kvstore/<driver>/.
type Backend interface {
	Read(ctx context.Context, key string) ([]byte, bool, error)
	Write(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Store serializes values to JSON on top of a Backend. Every operation holds
// the store lock, so operations are atomic with respect to each other.
type Store struct {
	mu      sync.Mutex
	backend Backend
	log     zerolog.Logger
}

// New wraps backend.
func New(backend Backend, log zerolog.Logger) *Store {
	return &Store{backend: backend, log: log}
}

// Put durably stores value under key. A rejected write is reported as
// model.ErrStorageUnavailable.
func (s *Store) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Write(ctx, key, data); err != nil {
		return fmt.Errorf("%w: put %s: %v", model.ErrStorageUnavailable, key, err)
	}
	return nil
}

// Load decodes the value stored under key into dst. It returns false, leaving
// dst untouched, when the key is absent, unreadable or not valid JSON.
func (s *Store) Load(ctx context.Context, key string, dst any) bool {
	s.mu.Lock()
	data, ok, err := s.backend.Read(ctx, key)
	s.mu.Unlock()
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("kv read failed; using default")
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("kv value corrupt; treating as absent")
		return false
	}
	return true
}

// Remove deletes key. Removing an absent key is a no-op.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: remove %s: %v", model.ErrStorageUnavailable, key, err)
	}
	return nil
}

// HealthPing reports backend liveness when the backend supports it.
func (s *Store) HealthPing(ctx context.Context) error {
	if p, ok := s.backend.(interface{ HealthPing(context.Context) error }); ok {
		return p.HealthPing(ctx)
	}
	return nil
}

// Get returns the value stored under key, or def when it is absent or corrupt.
func Get[T any](ctx context.Context, s *Store, key string, def T) T {
	var out T
	if !s.Load(ctx, key, &out) {
		return def
	}
	return out
}
