// Package cache keeps recent search responses in Redis. Keys are scoped by
// index so a rebuilt index can drop only its own entries.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/trix/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/proto"
	pkgredis "github.com/Adithya-Monish-Kumar-K/trix/pkg/redis"
)

const (
	keyPrefix = "trix:q:"
	// allIndexes scopes responses that merged every index.
	allIndexes = "_all"
)

// Store is the key-value backend. *pkgredis.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
	CountKeys(ctx context.Context, pattern string) (int64, error)
}

// Key identifies a cacheable search.
type Key struct {
	Index    string
	Mode     string
	Words    []string
	Limit    int
	Snippets bool
}

// String renders the Redis key. Word order is kept since it changes the
// ranking.
func (k Key) String() string {
	index := k.Index
	if index == "" {
		index = allIndexes
	}
	raw := fmt.Sprintf("%s|mode=%s|limit=%d|snippets=%t", strings.Join(k.Words, " "), k.Mode, k.Limit, k.Snippets)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, index, hash[:16])
}

// QueryCache caches search responses.
type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// Option configures a QueryCache.
type Option func(*QueryCache)

// WithMetrics counts hits and misses in Prometheus as well.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *QueryCache) { c.metrics = m }
}

func New(store Store, ttl time.Duration, opts ...Option) *QueryCache {
	c := &QueryCache{
		store:  store,
		ttl:    ttl,
		logger: slog.Default().With("component", "query-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *QueryCache) Get(ctx context.Context, key Key) (*proto.SearchResponse, bool) {
	k := key.String()
	data, err := c.store.Get(ctx, k)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", k, "error", err)
		}
		c.miss()
		return nil, false
	}
	var resp proto.SearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "words", key.Words, "key", k)
	resp.Cached = true
	return &resp, true
}

// Set stores resp. Responses carrying a warning are partial and skipped.
func (c *QueryCache) Set(ctx context.Context, key Key, resp *proto.SearchResponse) {
	if resp.Warning != "" {
		return
	}
	k := key.String()
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.store.Set(ctx, k, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute returns the cached response for key or computes, stores and
// returns it. Concurrent misses on one key share a single computation. The
// boolean reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key Key,
	compute func() (*proto.SearchResponse, error),
) (*proto.SearchResponse, bool, error) {
	if resp, ok := c.Get(ctx, key); ok {
		return resp, true, nil
	}
	val, err, _ := c.group.Do(key.String(), func() (any, error) {
		resp, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*proto.SearchResponse), false, nil
}

// InvalidateIndex drops entries for one index along with merged entries,
// which may include its results. An empty index drops everything.
func (c *QueryCache) InvalidateIndex(ctx context.Context, index string) (int64, error) {
	patterns := []string{keyPrefix + "*"}
	if index != "" {
		patterns = []string{keyPrefix + index + ":*", keyPrefix + allIndexes + ":*"}
	}
	var deleted int64
	for _, p := range patterns {
		n, err := c.store.FlushByPattern(ctx, p)
		deleted += n
		if err != nil {
			return deleted, fmt.Errorf("invalidating cache: %w", err)
		}
	}
	c.logger.Info("cache invalidated", "index", index, "keys_deleted", deleted)
	return deleted, nil
}

// Size counts cached responses.
func (c *QueryCache) Size(ctx context.Context) (int64, error) {
	return c.store.CountKeys(ctx, keyPrefix+"*")
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
