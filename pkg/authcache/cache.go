// Package authcache caches the outcome of validating an upstream
// credential so a busy gateway doesn't re-validate the same key on every
// request, while still reacting promptly to a credential that upstream
// starts rejecting.
package authcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entry is one cached validation outcome.
type Entry struct {
	Valid     bool
	CheckedAt time.Time
}

// HashKey returns a credential's display-safe identifier: the admin
// surface lists and deletes cached entries by this hash, never the raw
// credential, since a cached-credentials listing is itself diagnostic
// output that might end up in a support ticket or a log line.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Validator checks a credential against the upstream provider. Returning
// a non-nil error means validation itself failed (network error, not an
// auth rejection); the caller treats that the same as an invalid
// credential for caching purposes but may choose to retry sooner.
type Validator func(ctx context.Context, key string) (valid bool, err error)

// Cache is a TTL-bounded, single-flight-per-key credential cache.
// ValidTTL and InvalidTTL are tracked separately since a gateway operator
// typically wants a rejected credential re-checked much sooner than a
// healthy one (a newly rotated key should start working again quickly).
type Cache struct {
	mu    sync.RWMutex
	entries map[string]Entry

	validate Validator
	group    singleflight.Group

	validTTL   time.Duration
	invalidTTL time.Duration
}

// Config configures a Cache.
type Config struct {
	Validate   Validator
	ValidTTL   time.Duration
	InvalidTTL time.Duration
}

// DefaultValidTTL and DefaultInvalidTTL are used when Config leaves the
// corresponding field at zero.
const (
	DefaultValidTTL   = 5 * time.Minute
	DefaultInvalidTTL = 30 * time.Second
)

// New creates a Cache from cfg.
func New(cfg Config) *Cache {
	validTTL := cfg.ValidTTL
	if validTTL <= 0 {
		validTTL = DefaultValidTTL
	}
	invalidTTL := cfg.InvalidTTL
	if invalidTTL <= 0 {
		invalidTTL = DefaultInvalidTTL
	}
	return &Cache{
		entries:    make(map[string]Entry),
		validate:   cfg.Validate,
		validTTL:   validTTL,
		invalidTTL: invalidTTL,
	}
}

// Check returns whether key is currently considered valid, validating
// (and caching the result) if there is no live cache entry. Concurrent
// Check calls for the same key collapse into a single Validator call via
// singleflight, so a burst of requests using a not-yet-cached credential
// triggers exactly one upstream validation.
func (c *Cache) Check(ctx context.Context, key string) (bool, error) {
	if entry, ok := c.live(key); ok {
		return entry.Valid, nil
	}

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check after winning the singleflight race: another
		// goroutine may have populated the cache while we waited.
		if entry, ok := c.live(key); ok {
			return entry.Valid, nil
		}
		valid, verr := c.validate(ctx, key)
		c.store(key, Entry{Valid: valid, CheckedAt: time.Now()})
		if verr != nil {
			return false, verr
		}
		return valid, nil
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// InvalidateOne removes key's cache entry, forcing the next Check to
// re-validate. Used when the upstream client observes a 401 from a
// credential this cache previously marked valid.
func (c *Cache) InvalidateOne(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateAll clears every cached entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
}

// InvalidateByHash removes whichever cached entry's key hashes to keyHash,
// for the admin surface's delete-by-hash route. Reports whether an entry
// was found and removed.
func (c *Cache) InvalidateByHash(keyHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if HashKey(key) == keyHash {
			delete(c.entries, key)
			return true
		}
	}
	return false
}

// CachedEntry is one row of Snapshot's output: a cached credential's
// validation state, identified by hash rather than by the raw credential.
type CachedEntry struct {
	KeyHash   string
	Valid     bool
	CheckedAt time.Time
}

// Snapshot lists every cached entry for the admin surface's
// GET /admin/credentials/cached route.
func (c *Cache) Snapshot() []CachedEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]CachedEntry, 0, len(c.entries))
	for key, entry := range c.entries {
		out = append(out, CachedEntry{KeyHash: HashKey(key), Valid: entry.Valid, CheckedAt: entry.CheckedAt})
	}
	return out
}

func (c *Cache) live(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	ttl := c.invalidTTL
	if entry.Valid {
		ttl = c.validTTL
	}
	if time.Since(entry.CheckedAt) > ttl {
		return Entry{}, false
	}
	return entry, true
}

func (c *Cache) store(key string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
}
