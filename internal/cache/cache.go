// Package cache implements the hot cache of §4.4/§6: a bounded, time-
// sorted set per (symbol, interval_ms), directly grounded on the
// teacher's internal/analytics/redis_candle_aggregator.go storeCandles
// method (ZAdd with score=openTime, then ZRemRangeByRank to trim).
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/equitystream/equitystream/internal/model"
)

// Client wraps a redis.Client for candle cache updates.
type Client struct {
	rdb        *redis.Client
	cacheLimit int64
}

// New dials url (redis://host:port form, matching the teacher's
// pkg/redis.Client.NewClient stripping convention) and returns a Client.
// If cacheLimit is 0 the cache is disabled per §4.4.
func New(ctx context.Context, url string, cacheLimit int64) (*Client, error) {
	addr := strings.TrimPrefix(url, "redis://")
	opt := &redis.Options{Addr: addr}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, &model.TransientConnectError{Target: "cache:" + url, Err: err}
	}

	return &Client{rdb: rdb, cacheLimit: cacheLimit}, nil
}

// Enabled reports whether the cache is configured to accept writes.
func (c *Client) Enabled() bool {
	return c.cacheLimit > 0
}

func candleKey(underlyingID string, intervalMs int64) string {
	return fmt.Sprintf("candles:equity:%d:%s", intervalMs, underlyingID)
}

// UpdateCandle adds candle to its sorted set and trims entries older than
// intervalMs * cacheLimit behind the new candle's ts, per the cache
// contract in §4.4.
func (c *Client) UpdateCandle(ctx context.Context, candle model.Candle) error {
	if !c.Enabled() {
		return nil
	}

	key := candleKey(candle.UnderlyingID, candle.IntervalMs)

	payload, err := json.Marshal(candle)
	if err != nil {
		return &model.CacheError{Key: key, Err: fmt.Errorf("marshal candle: %w", err)}
	}

	if err := c.rdb.ZAdd(ctx, key, redis.Z{
		Score:  float64(candle.Ts),
		Member: payload,
	}).Err(); err != nil {
		return &model.CacheError{Key: key, Err: err}
	}

	cutoff := candle.Ts - candle.IntervalMs*c.cacheLimit
	if err := c.rdb.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", cutoff)).Err(); err != nil {
		return &model.CacheError{Key: key, Err: err}
	}
	return nil
}

// Close closes the underlying redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
