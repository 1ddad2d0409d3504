package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/satyaLM/override-api/internal/types"
)

// ErrCacheMiss is returned by a CacheStore when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// CacheStore is a byte-oriented key/value store with expiry.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// WaySource returns highway geometry around a point.
type WaySource interface {
	Name() string
	NearbyWays(ctx context.Context, p types.GeoPoint, radiusM float64) ([]types.RoadWay, error)
}

// CacheObserver receives cache hit/miss notifications.
type CacheObserver interface {
	ObserveCache(source string, hit bool)
}

// RedisCacheStore implements CacheStore on a Redis client.
type RedisCacheStore struct {
	client *redis.Client
}

// NewRedisClient connects to Redis at addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// NewRedisCacheStore wraps client.
func NewRedisCacheStore(client *redis.Client) *RedisCacheStore {
	return &RedisCacheStore{client: client}
}

func (s *RedisCacheStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisCacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Name satisfies core.HealthProbe.
func (s *RedisCacheStore) Name() string { return "redis" }

// Check satisfies core.HealthProbe.
func (s *RedisCacheStore) Check(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Optional reports the cache as non-critical; lookups fall through to the
// provider when Redis is down.
func (s *RedisCacheStore) Optional() bool { return true }

// CachedWaySource memoises non-empty NearbyWays results. Cache failures are
// logged and the inner source is queried as if the key were missing.
type CachedWaySource struct {
	inner    WaySource
	store    CacheStore
	ttl      time.Duration
	observer CacheObserver
	logger   *slog.Logger
}

// NewCachedWaySource decorates inner with store. observer may be nil.
func NewCachedWaySource(inner WaySource, store CacheStore, ttl time.Duration, observer CacheObserver, logger *slog.Logger) *CachedWaySource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedWaySource{
		inner:    inner,
		store:    store,
		ttl:      ttl,
		observer: observer,
		logger:   logger,
	}
}

func (c *CachedWaySource) Name() string { return c.inner.Name() }

func cacheKey(source string, p types.GeoPoint, radiusM float64) string {
	return fmt.Sprintf("%s:ways:%.5f:%.5f:%g", source, p.Lat, p.Lon, radiusM)
}

func (c *CachedWaySource) NearbyWays(ctx context.Context, p types.GeoPoint, radiusM float64) ([]types.RoadWay, error) {
	key := cacheKey(c.inner.Name(), p, radiusM)

	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var ways []types.RoadWay
		if jsonErr := json.Unmarshal(raw, &ways); jsonErr == nil {
			c.observe(true)
			return ways, nil
		} else {
			c.logger.WarnContext(ctx, "discarding corrupt cache entry", "key", key, "error", jsonErr)
		}
	case !errors.Is(err, ErrCacheMiss):
		c.logger.WarnContext(ctx, "way cache read failed", "key", key, "error", err)
	}
	c.observe(false)

	ways, err := c.inner.NearbyWays(ctx, p, radiusM)
	if err != nil || len(ways) == 0 {
		return ways, err
	}

	if encoded, jsonErr := json.Marshal(ways); jsonErr == nil {
		if setErr := c.store.Set(ctx, key, encoded, c.ttl); setErr != nil {
			c.logger.WarnContext(ctx, "way cache write failed", "key", key, "error", setErr)
		}
	}
	return ways, nil
}

func (c *CachedWaySource) observe(hit bool) {
	if c.observer != nil {
		c.observer.ObserveCache(c.inner.Name(), hit)
	}
}
