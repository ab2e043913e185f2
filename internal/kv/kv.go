// Package kv defines the key-value contract the engine persists through and
// the backends that implement it. Values are opaque strings; callers own the
// serialization format.
package kv

import "context"

// Store is a flat string key-value store. Implementations may fail
// transiently; callers retry writes.
type Store interface {
	// Get returns the value for key. found is false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Removing an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every key starting with prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)
}
