package store

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore persists balances in a Redis hash per channel. HIncrBy makes
// each delta application a single atomic server-side step, which is all the
// engine's persistence contract requires.
type RedisStore struct {
	rdb      *goredis.Client
	starting int64
}

// NewRedisStore creates a store from a Redis URL, e.g.
// "redis://localhost:6379/0".
func NewRedisStore(redisURL string, starting int64) (*RedisStore, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if starting <= 0 {
		starting = DefaultStartingBalance
	}
	return &RedisStore{rdb: goredis.NewClient(opts), starting: starting}, nil
}

// NewRedisStoreFromClient wraps an existing client, mainly for tests.
func NewRedisStoreFromClient(rdb *goredis.Client, starting int64) *RedisStore {
	if starting <= 0 {
		starting = DefaultStartingBalance
	}
	return &RedisStore{rdb: rdb, starting: starting}
}

func balanceKey(channelID string) string {
	return "cardtable:balance:" + channelID
}

// Ping verifies the Redis connection at startup.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the underlying connection pool.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

// LoadBalance reads the wallet, seeding first-time users with the starting
// stack. HSetNX keeps the seed race-free across concurrent joins.
func (r *RedisStore) LoadBalance(ctx context.Context, channelID, userID string) (int64, error) {
	key := balanceKey(channelID)

	if err := r.rdb.HSetNX(ctx, key, userID, r.starting).Err(); err != nil {
		return 0, fmt.Errorf("seed balance for %s: %w", userID, err)
	}

	raw, err := r.rdb.HGet(ctx, key, userID).Result()
	if err != nil {
		return 0, fmt.Errorf("load balance for %s: %w", userID, err)
	}
	bal, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("balance for %s is not an integer %q: %w", userID, raw, err)
	}
	return bal, nil
}

// SaveBalanceDelta applies a net round result with a single HIncrBy.
func (r *RedisStore) SaveBalanceDelta(ctx context.Context, channelID, userID string, delta int64) error {
	if err := r.rdb.HIncrBy(ctx, balanceKey(channelID), userID, delta).Err(); err != nil {
		return fmt.Errorf("apply balance delta for %s: %w", userID, err)
	}
	return nil
}
