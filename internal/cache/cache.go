// Package cache provides the byte-oriented TTL cache used by
// internal/repository/cached to wrap repository reads, mirroring the
// write-through-on-miss pattern of a persistent-store-backed
// gwselect.Repository.
package cache

import (
	"context"
	"time"
)

// Cache is a minimal TTL key-value store. Implementations need not
// distinguish "miss" from "expired" to callers; both report ok=false.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close(ctx context.Context) error
}
