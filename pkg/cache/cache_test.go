package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/fraudshield/pkg/config"
)

func TestKey(t *testing.T) {
	a := Key("fp1", "/predict", []byte("Time,Amount\n1,2\n"))
	assert.Equal(t, a, Key("fp1", "/predict", []byte("Time,Amount\n1,2\n")))
	assert.NotEqual(t, a, Key("fp2", "/predict", []byte("Time,Amount\n1,2\n")))
	assert.NotEqual(t, a, Key("fp1", "/predict/download", []byte("Time,Amount\n1,2\n")))
	assert.NotEqual(t, a, Key("fp1", "/predict", []byte("Time,Amount\n1,3\n")))
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(2, time.Minute)

	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "a", []byte("1")))
	require.NoError(t, c.Set(ctx, "b", []byte("2")))
	require.NoError(t, c.Set(ctx, "c", []byte("3")))

	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok, "oldest entry evicted")

	v, ok, err := c.Get(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("3"), v)
	assert.Equal(t, 2, c.Len())
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(4, 20*time.Millisecond)
	require.NoError(t, c.Set(ctx, "k", []byte("v")))

	assert.Eventually(t, func() bool {
		_, ok, _ := c.Get(ctx, "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func newTestRedis(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{srv.Addr()}})
	r := NewRedis(client, "test:", ttl)
	t.Cleanup(func() { r.Close() })
	return r, srv
}

func TestRedis(t *testing.T) {
	ctx := context.Background()
	r, srv := newTestRedis(t, time.Minute)

	require.NoError(t, r.Ping(ctx))

	_, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, "k", []byte(`{"summary":{}}`)))

	v, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"summary":{}}`), v)

	assert.True(t, srv.Exists("test:k"), "prefix applied")
	assert.Equal(t, time.Minute, srv.TTL("test:k"))

	srv.FastForward(2 * time.Minute)
	_, ok, err = r.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisUnavailable(t *testing.T) {
	ctx := context.Background()
	srv, err := miniredis.Run()
	require.NoError(t, err)
	r := NewRedis(redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      []string{srv.Addr()},
		MaxRetries: -1,
	}), "test:", 0)
	defer r.Close()
	srv.Close()

	_, _, err = r.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, r.Set(ctx, "k", []byte("v")))
}

func TestNew(t *testing.T) {
	c, err := New(config.Cache{Backend: config.CacheNone})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = New(config.Cache{Backend: config.CacheMemory, Size: 4, TTL: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	srv := miniredis.RunT(t)
	c, err = New(config.Cache{Backend: config.CacheRedis, Addrs: []string{srv.Addr()}, KeyPrefix: "fs:"})
	require.NoError(t, err)
	require.IsType(t, &Redis{}, c)
	require.NoError(t, c.Set(context.Background(), "k", []byte("v")))
	assert.True(t, srv.Exists("fs:k"))

	_, err = New(config.Cache{Backend: "memcached"})
	assert.Error(t, err)
}
