// Package redis is a kvstore backend for deployments that already run Redis.
// Keys are namespaced with a prefix so several services can share one database.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "rightsguard:"

// Backend stores values as plain Redis strings.
type Backend struct {
	client *redis.Client
	prefix string
}

// Open parses url, connects and verifies connectivity.
func Open(ctx context.Context, url string) (*Backend, error) {
	if url == "" {
		return nil, fmt.Errorf("redis URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewWithClient(client, defaultPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *Backend {
	return &Backend{client: client, prefix: prefix}
}

func (b *Backend) key(k string) string { return b.prefix + k }

func (b *Backend) Read(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := b.client.Get(ctx, b.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (b *Backend) Write(ctx context.Context, key string, value []byte) error {
	return b.client.Set(ctx, b.key(key), value, 0).Err()
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, b.key(key)).Err()
}

// HealthPing implements health.HealthPinger.
func (b *Backend) HealthPing(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *Backend) Close() error { return b.client.Close() }
