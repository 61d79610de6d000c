// Package cache stores serialized scoring results keyed by request content.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/hed1ad/fraudshield/pkg/config"
)

// Cache is a byte store with expiry.
type Cache interface {
	// Get returns the stored value and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key.
	Set(ctx context.Context, key string, value []byte) error
}

// Key derives a cache key. Results are reusable only for the same artifacts,
// the same endpoint and the same upload bytes.
func Key(fingerprint, endpoint string, body []byte) string {
	sum := sha256.Sum256(body)
	return fingerprint + ":" + endpoint + ":" + hex.EncodeToString(sum[:])
}

// New builds the cache selected by cfg. The none backend yields a nil Cache.
func New(cfg config.Cache) (Cache, error) {
	switch strings.ToLower(cfg.Backend) {
	case config.CacheNone, "":
		return nil, nil
	case config.CacheMemory:
		return NewMemory(cfg.Size, cfg.TTL), nil
	case config.CacheRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		return NewRedis(client, cfg.KeyPrefix, cfg.TTL), nil
	default:
		return nil, errors.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// Memory is an in-process LRU cache with per-entry expiry.
type Memory struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemory creates a Memory cache holding up to size entries. A zero ttl
// disables expiry.
func NewMemory(size int, ttl time.Duration) *Memory {
	return &Memory{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.lru.Get(key)
	return v, ok, nil
}

// Set implements Cache.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.lru.Add(key, value)
	return nil
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	return m.lru.Len()
}

// Redis stores entries in a redis server or cluster.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis cache over client. A zero ttl stores entries
// without expiry.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "error reading from redis")
	}
	return v, true, nil
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		return errors.Wrap(err, "error writing to redis")
	}
	return nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return errors.Wrap(r.client.Ping(ctx).Err(), "error pinging redis")
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

var (
	_ Cache = (*Memory)(nil)
	_ Cache = (*Redis)(nil)
)
