package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kvasirlabs/syntharb/internal/models"
)

// RelationshipSnapshot is the cached view of the current high-confidence
// relationship set, published for dashboards and other consumers.
type RelationshipSnapshot struct {
	Relationships []models.SyntheticRelationship `json:"relationships"`
	CachedAt      time.Time                      `json:"cached_at"`
	ExpiresAt     time.Time                      `json:"expires_at"`
}

// RelationshipCacheStats tracks cache performance counters.
type RelationshipCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	mu     sync.Mutex
}

// RedisRelationshipCache publishes relationship snapshots to Redis with a
// TTL so stale views expire on their own.
type RedisRelationshipCache struct {
	redis  *redis.Client
	ttl    time.Duration
	stats  *RelationshipCacheStats
	prefix string
}

// NewRedisRelationshipCache creates a relationship snapshot cache.
func NewRedisRelationshipCache(redisClient *redis.Client, ttl time.Duration) *RedisRelationshipCache {
	return &RedisRelationshipCache{
		redis:  redisClient,
		ttl:    ttl,
		stats:  &RelationshipCacheStats{},
		prefix: "relationship_snapshot:",
	}
}

// Publish stores the current relationship set for a game.
func (c *RedisRelationshipCache) Publish(ctx context.Context, gameID string, relationships map[string]models.SyntheticRelationship) error {
	now := time.Now()
	snapshot := RelationshipSnapshot{
		Relationships: make([]models.SyntheticRelationship, 0, len(relationships)),
		CachedAt:      now,
		ExpiresAt:     now.Add(c.ttl),
	}
	for _, rel := range relationships {
		snapshot.Relationships = append(snapshot.Relationships, rel)
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal relationship snapshot: %w", err)
	}

	if err := c.redis.Set(ctx, c.prefix+gameID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache relationship snapshot: %w", err)
	}

	c.stats.mu.Lock()
	c.stats.Sets++
	c.stats.mu.Unlock()
	return nil
}

// Get retrieves the cached snapshot for a game, if present and unexpired.
func (c *RedisRelationshipCache) Get(ctx context.Context, gameID string) (*RelationshipSnapshot, bool) {
	data, err := c.redis.Get(ctx, c.prefix+gameID).Result()
	if err != nil {
		c.stats.mu.Lock()
		c.stats.Misses++
		c.stats.mu.Unlock()
		return nil, false
	}

	var snapshot RelationshipSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		c.stats.mu.Lock()
		c.stats.Misses++
		c.stats.mu.Unlock()
		return nil, false
	}

	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()
	return &snapshot, true
}

// Stats returns a copy of the cache counters.
func (c *RedisRelationshipCache) Stats() RelationshipCacheStats {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	return RelationshipCacheStats{Hits: c.stats.Hits, Misses: c.stats.Misses, Sets: c.stats.Sets}
}
