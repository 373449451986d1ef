// Package cachestore provides a generic string cache (JSON-encoded records)
// used to front the settings store. Entries are namespaced per feature and
// keyed by chat, and can be purged individually so an admin's config change
// is visible to the very next moderation decision.
//
// Includes an interface and implementations using redis and in-process memory.
package cachestore

import (
	"context"
)

type CacheStore interface {
	// Get returns the cached value, or "" on a miss.
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}
