// Package cache adds a Redis read-through layer in front of the search
// engine. Entries expire after the configured TTL, which bounds how long
// a hit can trail the index; the invalidate endpoint clears the whole
// namespace on demand.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/inboxforge/inboxforge/internal/mail"
	"github.com/inboxforge/inboxforge/internal/searcher"
	"github.com/inboxforge/inboxforge/pkg/config"
	pkgredis "github.com/inboxforge/inboxforge/pkg/redis"
)

const keyPrefix = "search:"

type QueryCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func New(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, query string, opts searcher.Options) ([]mail.ResultRecord, bool) {
	key := buildKey(query, opts)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var results []mail.ResultRecord
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", query, "key", key)
	return results, true
}

func (c *QueryCache) Set(ctx context.Context, query string, opts searcher.Options, results []mail.ResultRecord) {
	key := buildKey(query, opts)
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached results for query or runs computeFn,
// collapsing concurrent identical misses into a single computation. The
// bool reports whether the answer came from cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	opts searcher.Options,
	computeFn func() ([]mail.ResultRecord, error),
) ([]mail.ResultRecord, bool, error) {
	if results, ok := c.Get(ctx, query, opts); ok {
		return results, true, nil
	}
	key := buildKey(query, opts)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if results, ok := c.Get(ctx, query, opts); ok {
			return results, nil
		}
		results, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, opts, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]mail.ResultRecord), false, nil
}

func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// buildKey hashes the raw query together with every option that changes
// the result set. The query string is not normalized beyond what the
// parser does, so textually different but equivalent queries get separate
// entries; that only costs an extra miss.
func buildKey(query string, opts searcher.Options) string {
	var b strings.Builder
	b.WriteString(query)
	b.WriteString("|f=")
	for _, f := range opts.Fields {
		b.WriteString(string(f))
		b.WriteByte(',')
	}
	b.WriteString("|d=")
	b.WriteString(formatBound(opts.Dates.Start))
	b.WriteByte('/')
	b.WriteString(formatBound(opts.Dates.End))
	fmt.Fprintf(&b, "|l=%d", opts.Limit)

	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
