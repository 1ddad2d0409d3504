package external

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/satyaLM/override-api/internal/config"
	"github.com/satyaLM/override-api/internal/snap"
)

// ProviderRegistry holds the road data sources built from configuration.
type ProviderRegistry struct {
	// Generic is consulted for every point no specialized provider matched.
	Generic WaySource
	// Specialized providers are tried in order.
	Specialized []snap.SpecializedProvider
	// Cache is nil when REDIS_ADDR is unset.
	Cache *RedisCacheStore
	// Breakers reports the circuit state of the HTTP providers.
	Breakers *BreakerProbe

	redisClient *redis.Client
}

// NewProviderRegistry builds the Overpass source (wrapped in the Redis cache
// when configured) and any specialized providers with credentials present.
// timeout bounds each provider HTTP call.
func NewProviderRegistry(
	providers config.ProviderConfig,
	cacheCfg config.CacheConfig,
	timeout time.Duration,
	observer CacheObserver,
	logger *slog.Logger,
) (*ProviderRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := NewHTTPClient(timeout)
	reg := &ProviderRegistry{}

	overpass := NewOverpassClient(httpClient, OverpassConfig{
		BaseURL:          providers.OverpassURL,
		ServerTimeoutSec: providers.OverpassServerTimeoutSec,
		UserAgent:        providers.UserAgent,
		Logger:           logger,
	})
	reg.Breakers = &BreakerProbe{}
	reg.Breakers.add(overpass)

	var generic WaySource = overpass
	if cacheCfg.RedisAddr != "" {
		reg.redisClient = NewRedisClient(cacheCfg.RedisAddr, cacheCfg.RedisPassword.Unmask(), cacheCfg.RedisDB)
		reg.Cache = NewRedisCacheStore(reg.redisClient)
		generic = NewCachedWaySource(generic, reg.Cache, cacheCfg.TTL, observer, logger)
		logger.Info("road cache enabled", "addr", cacheCfg.RedisAddr, "ttl", cacheCfg.TTL)
	}
	reg.Generic = generic

	if providers.RegionalSnapURL != "" {
		regional := NewRegionalSnapClient(httpClient, RegionalSnapConfig{
			Name:      providers.RegionalSnapName,
			BaseURL:   providers.RegionalSnapURL,
			UserAgent: providers.UserAgent,
			Logger:    logger,
		})
		reg.Breakers.add(regional)
		reg.Specialized = append(reg.Specialized, snap.SpecializedProvider{
			Countries: providers.RegionalCountries,
			Snapper:   regional,
		})
	}

	if providers.GoogleAPIKey.IsSet() && len(providers.GoogleCountries) > 0 {
		google, err := NewGoogleRoadsClient(GoogleRoadsConfig{
			APIKey:     providers.GoogleAPIKey.Unmask(),
			HTTPClient: httpClient,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("google roads provider: %w", err)
		}
		reg.Specialized = append(reg.Specialized, snap.SpecializedProvider{
			Countries: providers.GoogleCountries,
			Snapper:   google,
		})
	}

	names := make([]string, 0, len(reg.Specialized))
	for _, s := range reg.Specialized {
		names = append(names, s.Snapper.Name())
	}
	logger.Info("road providers initialized",
		"generic", reg.Generic.Name(),
		"specialized", names,
	)
	return reg, nil
}

// Close releases the Redis connection pool, if any.
func (r *ProviderRegistry) Close() error {
	if r.redisClient == nil {
		return nil
	}
	return r.redisClient.Close()
}
