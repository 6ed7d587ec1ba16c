// Package redis implements the Store interface using Redis/Valkey.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fixl-developer/tma-automation/internal/store"
	"github.com/fixl-developer/tma-automation/pkg/types"
)

// Compile-time interface satisfaction check.
var _ store.Store = (*Store)(nil)

const defaultExecutionIndexMax = 500

// casScript swaps an instance value only when the stored revision matches.
// KEYS[1] instance key, ARGV[1] expected revision, ARGV[2] new value.
const casScript = `
local cur = redis.call('GET', KEYS[1])
if not cur then return -1 end
local rev = cjson.decode(cur)['revision']
if rev ~= tonumber(ARGV[1]) then return 0 end
redis.call('SET', KEYS[1], ARGV[2])
return 1
`

// Store implements store.Store backed by Redis/Valkey.
type Store struct {
	client       *goredis.Client
	prefix       string
	executionMax int64
	casScript    *goredis.Script
}

// New creates a new Redis store from config.
func New(cfg *types.RedisConfig) *Store {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	s := NewFromClient(client, cfg.KeyPrefix)
	if cfg.ExecutionLimit > 0 {
		s.executionMax = cfg.ExecutionLimit
	}
	return s
}

// NewFromClient creates a Store from an existing client (useful for testing).
func NewFromClient(client *goredis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "automation:"
	}
	return &Store{
		client:       client,
		prefix:       prefix,
		executionMax: defaultExecutionIndexMax,
		casScript:    goredis.NewScript(casScript),
	}
}

// Start initializes the store connection.
func (s *Store) Start(ctx context.Context) error {
	return s.Ping(ctx)
}

// Stop closes the store connection.
func (s *Store) Stop(context.Context) error {
	return s.client.Close()
}

// Ping checks connectivity to the Redis server.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
