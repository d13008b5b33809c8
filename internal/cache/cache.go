// Package cache provides the response cache used by the discovery API: a bounded in-process
// TTL/LRU map and a Redis-backed variant behind one interface.
package cache

import (
	"context"
	"time"
)

// Cache is a key to bytes map with per-entry expiry. Implementations are safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
	Delete(ctx context.Context, key string) error
	// Clear drops every entry owned by this cache.
	Clear(ctx context.Context) error
}

// Clock is injected so expiry can be driven by tests.
type Clock func() time.Time

// Nop never stores anything; it stands in when caching is disabled.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte) error         { return nil }
func (Nop) Delete(context.Context, string) error              { return nil }
func (Nop) Clear(context.Context) error                       { return nil }
