// Package cache holds the Redis-backed suggestion cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultSuggestTTL is how long a suggestion list is served from cache.
const DefaultSuggestTTL = 60 * time.Second

// SuggestCache stores suggestion lists in Redis, keyed per index so that a
// reindex into a new index name does not serve stale titles.
type SuggestCache struct {
	client    *redis.Client
	indexName string
	ttl       time.Duration
}

// NewSuggestCache creates a cache. A non-positive ttl uses DefaultSuggestTTL.
func NewSuggestCache(client *redis.Client, indexName string, ttl time.Duration) *SuggestCache {
	if ttl <= 0 {
		ttl = DefaultSuggestTTL
	}
	return &SuggestCache{client: client, indexName: indexName, ttl: ttl}
}

// Key returns the cache key for a prefix and limit.
func (c *SuggestCache) Key(prefix string, limit int) string {
	return fmt.Sprintf("suggest:%s:%s:%d", c.indexName, strings.ToLower(prefix), limit)
}

// GetSuggestions returns the cached list. ok is false on a miss.
func (c *SuggestCache) GetSuggestions(ctx context.Context, prefix string, limit int) ([]string, bool, error) {
	data, err := c.client.Get(ctx, c.Key(prefix, limit)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get suggestions: %w", err)
	}

	var titles []string
	if err := json.Unmarshal(data, &titles); err != nil {
		return nil, false, fmt.Errorf("unmarshal suggestions: %w", err)
	}
	return titles, true, nil
}

// SetSuggestions stores titles with the configured TTL.
func (c *SuggestCache) SetSuggestions(ctx context.Context, prefix string, limit int, titles []string) error {
	if titles == nil {
		titles = []string{}
	}
	data, err := json.Marshal(titles)
	if err != nil {
		return fmt.Errorf("marshal suggestions: %w", err)
	}
	if err := c.client.Set(ctx, c.Key(prefix, limit), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set suggestions: %w", err)
	}
	return nil
}
