package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// fundingTTL bounds how long a cached funding rate stays readable; funding
// rates older than this are worthless to the decision loop.
const fundingTTL = 10 * time.Minute

// FundingCache implements domain.FundingCache using Redis hashes. Each
// venue's rate is stored at key "funding:{exchange}:{symbol}" with fields
// "rate" and "ts" (Unix nanosecond timestamp).
type FundingCache struct {
	rdb *redis.Client
}

// NewFundingCache creates a FundingCache backed by the given Client.
func NewFundingCache(c *Client) *FundingCache {
	return &FundingCache{rdb: c.Underlying()}
}

func fundingKey(exchange, symbol string) string {
	return fmt.Sprintf("funding:%s:%s", exchange, symbol)
}

// SetRate stores the annualized funding rate for one exchange/symbol pair.
func (fc *FundingCache) SetRate(ctx context.Context, exchange, symbol string, rate float64, at time.Time) error {
	key := fundingKey(exchange, symbol)
	fields := map[string]interface{}{
		"rate": strconv.FormatFloat(rate, 'f', -1, 64),
		"ts":   strconv.FormatInt(at.UnixNano(), 10),
	}
	pipe := fc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, fundingTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set funding %s/%s: %w", exchange, symbol, err)
	}
	return nil
}

// GetRate retrieves the cached funding rate. It returns domain.ErrNotFound
// when no entry exists or the entry has expired.
func (fc *FundingCache) GetRate(ctx context.Context, exchange, symbol string) (float64, time.Time, error) {
	key := fundingKey(exchange, symbol)
	vals, err := fc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get funding %s/%s: %w", exchange, symbol, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	rate, err := strconv.ParseFloat(vals["rate"], 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse funding rate: %w", err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse funding ts: %w", err)
	}
	return rate, time.Unix(0, tsNano), nil
}
