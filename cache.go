package rdsiamauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTimeout is how long a token is served from the cache before
// it is signed again. It stays well under [DefaultTokenLifetime].
const DefaultCacheTimeout = 600 * time.Second

var errEmptyToken = errors.New("signer returned an empty token")

type entry struct {
	token    string
	issuedAt time.Time
}

// TokenCache maps a [CacheKey] to the most recently signed token and
// refreshes it once it is older than the configured TTL.
//
// The map is guarded by a read/write lock held only for lookups and
// stores, never across a signing call. Refreshes are coalesced per key, so
// concurrent callers asking for the same stale key share a single Sign
// call and its result.
type TokenCache struct {
	ttl     time.Duration
	now     func() time.Time
	metrics Metrics
	logger  hclog.Logger

	mu      sync.RWMutex
	entries map[CacheKey]entry

	group singleflight.Group
}

// CacheOption configures a [TokenCache].
type CacheOption func(*TokenCache)

// WithClock replaces time.Now as the cache's clock.
func WithClock(now func() time.Time) CacheOption {
	return func(c *TokenCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCacheMetrics reports cache events to m.
func WithCacheMetrics(m Metrics) CacheOption {
	return func(c *TokenCache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithCacheLogger sets the logger used for refresh and failure events.
func WithCacheLogger(l hclog.Logger) CacheOption {
	return func(c *TokenCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewTokenCache creates an empty cache. A ttl of zero disables caching:
// every call signs a new token. Negative values are rejected.
func NewTokenCache(ttl time.Duration, opts ...CacheOption) (*TokenCache, error) {
	if ttl < 0 {
		return nil, fmt.Errorf("rdsiamauth: cache timeout must be 0 or positive, got %s", ttl)
	}

	c := &TokenCache{
		ttl:     ttl,
		now:     time.Now,
		metrics: NoopMetrics{},
		logger:  hclog.NewNullLogger(),
		entries: make(map[CacheKey]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the cache timeout fixed at construction.
func (c *TokenCache) TTL() time.Duration {
	return c.ttl
}

// Token returns a fresh token for key, calling signer only when the cached
// token is missing or stale. Signing failures are returned as a
// [*SigningError] and leave the cache untouched.
//
// Concurrent callers for the same key share one Sign call. The call runs
// detached from any single caller's cancellation; each caller stops waiting
// when its own ctx is done.
func (c *TokenCache) Token(ctx context.Context, key CacheKey, signer Signer) (string, error) {
	if token, ok := c.lookup(key, c.now()); ok {
		c.metrics.Hit()
		return token, nil
	}
	c.metrics.Miss()

	ch := c.group.DoChan(key.flightKey(), func() (any, error) {
		// Another caller may have finished a refresh between our lookup and
		// entering the flight.
		now := c.now()
		if token, ok := c.lookup(key, now); ok {
			return token, nil
		}

		token, err := signer.Sign(context.WithoutCancel(ctx), key)
		if err == nil && token == "" {
			err = errEmptyToken
		}
		if err != nil {
			c.metrics.Failure()
			c.logger.Warn("token signing failed", "key", key.String(), "error", err)
			return nil, &SigningError{Key: key, Err: err}
		}

		c.store(key, entry{token: token, issuedAt: now})
		c.metrics.Refresh()
		c.logger.Debug("token refreshed", "key", key.String(), "ttl", c.ttl)
		return token, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("rdsiamauth: waiting for token for %s: %w", key, ctx.Err())
	}
}

// Invalidate drops the cached token for key, forcing the next call to sign.
func (c *TokenCache) Invalidate(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of keys with a cached token, fresh or stale.
func (c *TokenCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *TokenCache) lookup(key CacheKey, now time.Time) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if e.token == "" {
		panic(fmt.Sprintf("rdsiamauth: corrupt cache entry for %s", key))
	}
	if now.Sub(e.issuedAt) >= c.ttl {
		return "", false
	}
	return e.token, true
}

// store overwrites the entry for key unless the cached one was issued later.
func (c *TokenCache) store(key CacheKey, e entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.entries[key]; ok && prev.issuedAt.After(e.issuedAt) {
		return
	}
	c.entries[key] = e
}

// flightKey is the singleflight group key. Each string field is quoted, so
// no field content can be mistaken for a separator.
func (k CacheKey) flightKey() string {
	return strconv.Quote(k.User) + " " + strconv.Quote(k.Host) + " " + strconv.Itoa(k.Port) + " " + strconv.Quote(k.Region)
}
