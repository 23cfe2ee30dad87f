package storage

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Backend.Get for an absent or expired key.
var ErrKeyNotFound = errors.New("key not found")

// Backend is the key-value contract shared by the networked store and the
// in-process fallback store. Values are opaque bytes with an optional TTL.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Name identifies the backend in stats and logs.
	Name() string

	// Get returns the value of key or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A positive ttl makes the key expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// CompareAndDelete removes key only if it currently holds expected.
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)

	// Scan returns at most count keys starting with prefix, resuming after
	// cursor. An empty cursor starts a scan; an empty next cursor ends it.
	Scan(ctx context.Context, prefix, cursor string, count int) (keys []string, next string, err error)

	// Count returns the approximate number of stored keys.
	Count(ctx context.Context) (int64, error)

	// CountPrefix returns the approximate number of keys starting with
	// prefix. Counting stops at limit; capped reports that it did.
	CountPrefix(ctx context.Context, prefix string, limit int) (n int64, capped bool, err error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}
