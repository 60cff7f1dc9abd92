package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"designcore/pkg/domain"
)

const (
	defaultKeyPrefix = "designcore:tree:"
	scanBatch        = 256
)

// redisClient is the subset of goredis.Cmdable the cache needs.
type redisClient interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *goredis.ScanCmd
}

// RedisOptions configures a Redis-backed cache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	// KeyPrefix namespaces cache keys; defaults to "designcore:tree:".
	KeyPrefix string
}

// Redis stores trees as JSON values with a TTL.
type Redis struct {
	rdb    redisClient
	closer func() error
	prefix string
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	c := newRedis(rdb, opts.KeyPrefix, opts.TTL)
	c.closer = rdb.Close
	return c, nil
}

func newRedis(rdb redisClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *Redis) key(id string) string { return c.prefix + id }

// Get returns the cached tree for id. A miss is not an error.
func (c *Redis) Get(ctx context.Context, id string) (domain.DesignTree, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.DesignTree{}, false, nil
	}
	if err != nil {
		return domain.DesignTree{}, false, fmt.Errorf("redis get: %w", err)
	}
	var tree domain.DesignTree
	if err := json.Unmarshal(raw, &tree); err != nil {
		return domain.DesignTree{}, false, fmt.Errorf("decode cached tree %s: %w", id, err)
	}
	return tree, true, nil
}

// Set stores tree under its design id.
func (c *Redis) Set(ctx context.Context, tree domain.DesignTree) error {
	raw, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(tree.Design.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Invalidate deletes the given ids, or every key under the prefix when none
// are given.
func (c *Redis) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) > 0 {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = c.key(id)
		}
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
		return nil
	}
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, c.prefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close releases the connection pool when the cache owns it.
func (c *Redis) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}
