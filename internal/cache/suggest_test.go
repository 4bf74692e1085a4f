package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*SuggestCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSuggestCache(client, "marketplace_listings", ttl), mr
}

func TestSuggestCache_Key(t *testing.T) {
	c, _ := setupTestRedis(t, 0)
	assert.Equal(t, "suggest:marketplace_listings:volvo f:10", c.Key("Volvo F", 10))
}

func TestSuggestCache_Miss(t *testing.T) {
	c, _ := setupTestRedis(t, 0)

	titles, ok, err := c.GetSuggestions(context.Background(), "vol", 10)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, titles)
}

func TestSuggestCache_RoundTrip(t *testing.T) {
	c, mr := setupTestRedis(t, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, c.SetSuggestions(ctx, "Vol", 10, []string{"Volvo FH 500", "Volvo FM"}))

	titles, ok, err := c.GetSuggestions(ctx, "vol", 10)
	require.NoError(t, err)
	assert.True(t, ok, "keys are case-insensitive on the prefix")
	assert.Equal(t, []string{"Volvo FH 500", "Volvo FM"}, titles)
	assert.Equal(t, 30*time.Second, mr.TTL(c.Key("vol", 10)))

	_, ok, err = c.GetSuggestions(ctx, "vol", 5)
	require.NoError(t, err)
	assert.False(t, ok, "limit is part of the key")
}

func TestSuggestCache_EmptyListIsCached(t *testing.T) {
	c, _ := setupTestRedis(t, 0)
	ctx := context.Background()

	require.NoError(t, c.SetSuggestions(ctx, "zzz", 10, nil))

	titles, ok, err := c.GetSuggestions(ctx, "zzz", 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, titles)
}

func TestSuggestCache_Expires(t *testing.T) {
	c, mr := setupTestRedis(t, time.Second)
	ctx := context.Background()

	require.NoError(t, c.SetSuggestions(ctx, "daf", 10, []string{"DAF XF"}))
	mr.FastForward(2 * time.Second)

	_, ok, err := c.GetSuggestions(ctx, "daf", 10)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSuggestCache_InvalidJSON(t *testing.T) {
	c, mr := setupTestRedis(t, 0)
	require.NoError(t, mr.Set(c.Key("man", 10), "not json"))

	_, _, err := c.GetSuggestions(context.Background(), "man", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal suggestions")
}

func TestSuggestCache_ConnectionError(t *testing.T) {
	c, mr := setupTestRedis(t, 0)
	mr.Close()

	_, _, err := c.GetSuggestions(context.Background(), "vol", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis get suggestions")
}
