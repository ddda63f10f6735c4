// Package memory is an in-process kvstore backend with an optional byte quota.
package memory

import (
	"context"
	"errors"
	"sync"
)

// ErrQuotaExceeded is returned when a write would push the stored bytes past the quota.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Backend keeps values in a map.
type Backend struct {
	mu    sync.RWMutex
	data  map[string][]byte
	quota int
	used  int
}

// Option configures a Backend.
type Option func(*Backend)

// WithQuota caps the total number of stored value bytes. Zero means unlimited.
func WithQuota(bytes int) Option {
	return func(b *Backend) { b.quota = bytes }
}

func New(opts ...Option) *Backend {
	b := &Backend{data: make(map[string][]byte)}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Backend) Read(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (b *Backend) Write(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.used - len(b.data[key]) + len(value)
	if b.quota > 0 && next > b.quota {
		return ErrQuotaExceeded
	}
	v := make([]byte, len(value))
	copy(v, value)
	b.data[key] = v
	b.used = next
	return nil
}

func (b *Backend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used -= len(b.data[key])
	delete(b.data, key)
	return nil
}

// SetQuota changes the quota at runtime.
func (b *Backend) SetQuota(bytes int) {
	b.mu.Lock()
	b.quota = bytes
	b.mu.Unlock()
}
