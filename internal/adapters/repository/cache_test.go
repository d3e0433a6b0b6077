package repository

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/corolair/moodle-bridge/internal/testutil"
)

func setupCache(t *testing.T) (*testutil.MockHostStore, *CachedHostStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	inner := testutil.NewMockHostStore()
	return inner, NewCachedHostStore(inner, rdb, zap.NewNop()), mr
}

func TestCachedHostStore_ReadThrough(t *testing.T) {
	inner, cache, mr := setupCache(t)
	ctx := context.Background()

	inner.PluginConfig["apikey"] = "key-db"

	value, err := cache.GetPluginConfig(ctx, "apikey")
	require.NoError(t, err)
	assert.Equal(t, "key-db", value)

	// The second read is served from the cache, not the store.
	inner.PluginConfig["apikey"] = "key-changed-behind"
	value, err = cache.GetPluginConfig(ctx, "apikey")
	require.NoError(t, err)
	assert.Equal(t, "key-db", value)

	cached, err := mr.Get(cachePrefix + "apikey")
	require.NoError(t, err)
	assert.Equal(t, "key-db", cached)
}

func TestCachedHostStore_WriteInvalidates(t *testing.T) {
	inner, cache, mr := setupCache(t)
	ctx := context.Background()

	inner.PluginConfig["apikey"] = "key-old"
	_, err := cache.GetPluginConfig(ctx, "apikey")
	require.NoError(t, err)

	require.NoError(t, cache.SetPluginConfig(ctx, "apikey", "key-new"))
	assert.False(t, mr.Exists(cachePrefix+"apikey"))

	value, err := cache.GetPluginConfig(ctx, "apikey")
	require.NoError(t, err)
	assert.Equal(t, "key-new", value)
}

func TestCachedHostStore_DeleteInvalidatesAll(t *testing.T) {
	inner, cache, mr := setupCache(t)
	ctx := context.Background()

	inner.PluginConfig["apikey"] = "key-1"
	inner.PluginConfig["sidepanel"] = "true"
	_, err := cache.GetPluginConfig(ctx, "apikey")
	require.NoError(t, err)
	_, err = cache.GetPluginConfig(ctx, "sidepanel")
	require.NoError(t, err)

	require.NoError(t, cache.DeletePluginConfig(ctx))
	assert.False(t, mr.Exists(cachePrefix+"apikey"))
	assert.False(t, mr.Exists(cachePrefix+"sidepanel"))

	value, err := cache.GetPluginConfig(ctx, "apikey")
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestCachedHostStore_SurvivesRedisOutage(t *testing.T) {
	inner, cache, mr := setupCache(t)
	ctx := context.Background()

	inner.PluginConfig["apikey"] = "key-db"
	mr.Close()

	value, err := cache.GetPluginConfig(ctx, "apikey")
	require.NoError(t, err)
	assert.Equal(t, "key-db", value)

	require.NoError(t, cache.SetPluginConfig(ctx, "apikey", "key-new"))
	assert.Equal(t, "key-new", inner.PluginConfig["apikey"])
}
