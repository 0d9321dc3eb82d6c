package fecclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss indicates the requested page was not found in cache.
var ErrCacheMiss = errors.New("cache miss")

// Prometheus metrics for page cache operations.
var (
	pageCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fec_page_cache_hits_total",
		Help: "Total page cache hits",
	})

	pageCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fec_page_cache_misses_total",
		Help: "Total page cache misses",
	})

	pageCacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fec_page_cache_errors_total",
		Help: "Total page cache errors by operation",
	}, []string{"operation"})
)

// PageCache stores raw FEC page bodies in Redis with a fixed TTL. FEC bulk
// data changes slowly, so re-runs within the TTL skip the paced network walk.
type PageCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewPageCache creates a page cache with the given TTL.
func NewPageCache(redisClient *redis.Client, ttl time.Duration) *PageCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PageCache{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Get retrieves a cached page body. Returns ErrCacheMiss when absent.
func (c *PageCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			pageCacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		pageCacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	pageCacheHits.Inc()
	return data, nil
}

// Set stores a page body under the key with the cache TTL.
func (c *PageCache) Set(ctx context.Context, key string, body []byte) error {
	if err := c.redis.Set(ctx, key, body, c.ttl).Err(); err != nil {
		pageCacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// pageKey generates a deterministic cache key for an endpoint and parameter
// set. The credential never appears in the key.
//
// Format: fec:endpoint:param1=val1:param2=val2
func pageKey(endpoint string, params url.Values) string {
	parts := []string{"fec", strings.Trim(endpoint, "/")}

	keys := make([]string, 0, len(params))
	for key := range params {
		if key == "api_key" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", key, params.Get(key)))
	}

	return strings.Join(parts, ":")
}
