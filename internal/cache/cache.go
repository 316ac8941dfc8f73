// Package cache is the candidate-set cache for nearby-spot searches. It
// stores spot identifier lists under quantized bucket keys; entries are
// opportunistic, so every failure path degrades to a miss.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/JunaidSumsaal/advanceparkingsystem/internal/logger"
	"github.com/redis/go-redis/v9"
)

// SpotCache maps quantized (lat, lng, radius class) buckets to spot ID
// lists in Redis. A nil client disables the cache entirely.
type SpotCache struct {
	client    *redis.Client
	ttl       time.Duration
	precision int
}

func NewSpotCache(client *redis.Client, ttl time.Duration, precision int) *SpotCache {
	if precision < 0 {
		precision = 0
	}
	return &SpotCache{client: client, ttl: ttl, precision: precision}
}

// OpenRedis opens a Redis client, or returns nil when no address is
// configured. The caller treats nil as "cache disabled".
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// Key quantizes the coordinate to the configured decimal precision and the
// radius to an integer class, so nearby queries collide into one bucket.
func (c *SpotCache) Key(lat, lng, radiusKm float64) string {
	radiusClass := int(math.Ceil(radiusKm))
	return fmt.Sprintf("parking:spots:%.*f:%.*f:r%d", c.precision, lat, c.precision, lng, radiusClass)
}

// Get returns the cached spot IDs for the bucket. Any backend error is a
// miss: the cache is an optimization, never a correctness dependency.
func (c *SpotCache) Get(ctx context.Context, key string) ([]uint, bool) {
	if c.client == nil {
		return nil, false
	}
	log := logger.GetLogger("cache")

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warnf("[spot_cache] GET %s failed: %v", key, err)
		}
		return nil, false
	}

	var ids []uint
	if err := json.Unmarshal(raw, &ids); err != nil {
		log.Warnf("[spot_cache] corrupt entry %s: %v", key, err)
		return nil, false
	}

	log.Infof("[spot_cache] HIT %s (%d ids)", key, len(ids))
	return ids, true
}

// Set overwrites the bucket unconditionally. Concurrent writers racing on
// the same key compute the same derivable content, so last-write-wins is
// safe.
func (c *SpotCache) Set(ctx context.Context, key string, ids []uint) {
	if c.client == nil {
		return
	}
	log := logger.GetLogger("cache")

	raw, err := json.Marshal(ids)
	if err != nil {
		log.Warnf("[spot_cache] marshal for %s failed: %v", key, err)
		return
	}

	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		log.Warnf("[spot_cache] SET %s failed: %v", key, err)
		return
	}

	log.Infof("[spot_cache] PUT %s (%d ids, ttl=%v)", key, len(ids), c.ttl)
}
