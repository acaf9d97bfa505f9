package linkage

import (
	"context"
	"time"
)

// Cache is the interface for caching relationship membership loaded from
// the remote source. Implementations may be backed by Redis, Memcached or
// process memory.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// CacheKey identifies the cached membership of one relationship.
type CacheKey struct {
	Type         string
	ID           string
	Relationship string
}

// ClientKeyer is implemented by records that carry a client-side key
// before they have a remote id.
type ClientKeyer interface {
	ClientKey() string
}

// CacheKeyFor returns the key of the owner's relationship. An unsaved owner
// implementing ClientKeyer is keyed on "~" and its client key, so unsaved
// owners of one type never share a key.
func CacheKeyFor(owner Record, relationship string) CacheKey {
	id := owner.ID()
	if ck, ok := owner.(ClientKeyer); ok && id == "" {
		id = "~" + ck.ClientKey()
	}
	return CacheKey{Type: owner.TypeName(), ID: id, Relationship: relationship}
}

// Prefix returns the prefix shared by every relationship of the owner.
func (k CacheKey) Prefix() string {
	return k.Type + ":" + k.ID + ":"
}

// String returns the string representation of the cache key.
func (k CacheKey) String() string {
	return k.Prefix() + k.Relationship
}
