package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"vendfleet-backend/internal/models"
)

// Cache key formats
const (
	StatsKeyFmt   = "material_requests:stats:"
	StatsPattern  = StatsKeyFmt + "*"
	defaultTTL    = time.Minute
	healthTimeout = 2 * time.Second
)

var client *redis.Client

// Init connects the shared Redis client. On failure the client stays nil and
// every cache call below degrades to a miss.
func Init(addr, password string, db int) error {
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		client = nil
		return err
	}
	client = c
	return nil
}

// GetClient returns the Redis client, nil when Redis is not connected
func GetClient() *redis.Client {
	return client
}

func Close() {
	if client != nil {
		client.Close()
		client = nil
	}
}

// GetCached returns cached data for a key
func GetCached(ctx context.Context, key string) ([]byte, bool) {
	if client == nil {
		return nil, false
	}
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetCached stores data with a TTL
func SetCached(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if client == nil {
		return
	}
	client.Set(ctx, key, data, ttl)
}

// InvalidateKeys removes specific cache keys
func InvalidateKeys(ctx context.Context, keys ...string) {
	if client == nil || len(keys) == 0 {
		return
	}
	client.Del(ctx, keys...)
}

// InvalidatePattern removes all keys matching a glob pattern
func InvalidatePattern(ctx context.Context, pattern string) {
	if client == nil {
		return
	}
	iter := client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

// IsHealthy returns true if Redis connection is working
func IsHealthy() bool {
	if client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	return client.Ping(ctx).Err() == nil
}

// StatsKey is the cache key of one organization's stats at generation gen.
func StatsKey(orgID string, gen int64) string {
	return StatsKeyFmt + orgID + ":v" + strconv.FormatInt(gen, 10)
}

// StatsGenerationKey holds the counter bumped on every invalidation.
func StatsGenerationKey(orgID string) string {
	return StatsKeyFmt + orgID + ":gen"
}

// StatsCache stores material request stats per organization in Redis.
// Entries are keyed by a per-organization generation; invalidating bumps the
// generation, so a reader that computed stats before the bump writes them
// under a key nobody reads again.
type StatsCache struct {
	TTL time.Duration
}

func NewStatsCache(ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &StatsCache{TTL: ttl}
}

// generation returns the current generation for orgID. ok is false when
// Redis is unavailable.
func (c *StatsCache) generation(ctx context.Context, orgID string) (int64, bool) {
	if client == nil {
		return 0, false
	}
	gen, err := client.Get(ctx, StatsGenerationKey(orgID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		return 0, false
	}
	return gen, true
}

// GetStats returns cached stats together with the generation they were
// looked up under. The generation is returned on a miss too, for SetStats.
func (c *StatsCache) GetStats(ctx context.Context, orgID string) (*models.MaterialRequestStats, int64, bool) {
	gen, ok := c.generation(ctx, orgID)
	if !ok {
		return nil, 0, false
	}
	data, ok := GetCached(ctx, StatsKey(orgID, gen))
	if !ok {
		return nil, gen, false
	}
	var stats models.MaterialRequestStats
	if err := json.Unmarshal(data, &stats); err != nil {
		InvalidateKeys(ctx, StatsKey(orgID, gen))
		return nil, gen, false
	}
	return &stats, gen, true
}

// SetStats stores stats computed after GetStats observed gen.
func (c *StatsCache) SetStats(ctx context.Context, orgID string, gen int64, stats *models.MaterialRequestStats) {
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	SetCached(ctx, StatsKey(orgID, gen), data, c.TTL)
}

// InvalidateStats retires every entry cached for orgID.
func (c *StatsCache) InvalidateStats(ctx context.Context, orgID string) {
	if client == nil {
		return
	}
	client.Incr(ctx, StatsGenerationKey(orgID))
}

// FlushStats drops cached stats and generations of every organization.
func FlushStats(ctx context.Context) {
	InvalidatePattern(ctx, StatsPattern)
}
