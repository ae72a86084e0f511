package cache

import (
	"context"
	"errors"
	"time"
)

// Provider defines the cache operations used for event caching and run locks.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	Close() error
}

// ErrCacheMiss signals that a cache key was not found.
var ErrCacheMiss = errors.New("cache miss")

// NoopProvider implements Provider but never stores data.
type NoopProvider struct{}

// Get always returns ErrCacheMiss.
func (NoopProvider) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

// Set discards the value and returns nil.
func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

// SetNX pretends to store the value and reports success, so locks always acquire.
func (NoopProvider) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}

// Del is a no-op for the noop cache.
func (NoopProvider) Del(context.Context, string) error { return nil }

// Close is a no-op.
func (NoopProvider) Close() error { return nil }

// Lock is a best-effort exclusive lease held in a Provider.
type Lock struct {
	provider Provider
	key      string
}

// TryLock acquires key for ttl. It returns (nil, nil) when another holder owns the key.
func TryLock(ctx context.Context, p Provider, key string, ttl time.Duration) (*Lock, error) {
	if p == nil {
		p = NoopProvider{}
	}
	ok, err := p.SetNX(ctx, key, []byte(time.Now().UTC().Format(time.RFC3339Nano)), ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &Lock{provider: p, key: key}, nil
}

// Release frees the lease. It is safe to call on a nil Lock.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.provider.Del(ctx, l.key)
}
