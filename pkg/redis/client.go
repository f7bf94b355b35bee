// Package redis wraps go-redis/v9 with the get/set/invalidate surface
// the query cache needs.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/inboxforge/inboxforge/pkg/config"
)

const connectTimeout = 5 * time.Second

// Client holds a pooled connection to one Redis instance.
type Client struct {
	conn *redis.Client
}

// NewClient dials Redis and fails fast if the instance does not answer
// a PING within the connect timeout.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	conn := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := conn.Ping(ctx).Err(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Get returns the value stored under key. Absent keys surface as an
// error satisfying IsNilError.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.conn.Get(ctx, key).Result()
}

// Set stores value under key for ttl.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.conn.Set(ctx, key, value, ttl).Err()
}

// FlushByPattern deletes every key matching the glob pattern and
// returns how many were removed. Keys are collected with SCAN so large
// keyspaces do not block the server.
func (c *Client) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var keys []string
	iter := c.conn.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scanning %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	deleted, err := c.conn.Del(ctx, keys...).Result()
	if err != nil {
		return deleted, fmt.Errorf("deleting %d keys: %w", len(keys), err)
	}
	return deleted, nil
}

// IsNilError reports whether err means the key did not exist.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.conn.Close()
}
