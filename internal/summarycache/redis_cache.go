// Package summarycache provides a Redis read-through cache for the hotel
// summary listing, so the landing view does not hit the document store on
// every render.
package summarycache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"concierge/api/internal/store"
)

const (
	listKey    = "concierge:summaries"
	defaultTTL = 60 * time.Second
)

// RedisCache holds the summary list under a single namespaced key with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisCache{client: client, ttl: defaultTTL}, nil
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, ttl: defaultTTL}
}

// Get returns the cached summary list; ok is false on a miss or any Redis
// error, in which case the caller goes to the document store.
func (c *RedisCache) Get(ctx context.Context) ([]store.HotelSummary, bool) {
	data, err := c.client.Get(ctx, listKey).Result()
	if err != nil {
		return nil, false
	}
	var summaries []store.HotelSummary
	if err := json.Unmarshal([]byte(data), &summaries); err != nil {
		return nil, false
	}
	return summaries, true
}

// Put stores the summary list with the cache TTL.
func (c *RedisCache) Put(ctx context.Context, summaries []store.HotelSummary) error {
	data, err := json.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("marshal summaries: %w", err)
	}
	if err := c.client.Set(ctx, listKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache summaries: %w", err)
	}
	return nil
}

// Invalidate drops the cached list; the next Get misses and the caller
// repopulates from the store. Called after every save and delete.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, listKey).Err(); err != nil {
		return fmt.Errorf("invalidate summaries: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
