package quotes

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const quoteKeyPrefix = "quote:"

// RedisCache serves quotes from Redis and fetches misses from next. Redis
// failures degrade to calling next directly.
type RedisCache struct {
	client redis.Cmdable
	next   Source
	ttl    time.Duration
	log    logrus.FieldLogger
}

// NewRedisCache wraps next with a Redis cache whose entries expire after ttl
func NewRedisCache(client redis.Cmdable, next Source, ttl time.Duration, log logrus.FieldLogger) *RedisCache {
	return &RedisCache{
		client: client,
		next:   next,
		ttl:    ttl,
		log:    log.WithField("component", "quote_cache"),
	}
}

// Fetch implements Source
func (c *RedisCache) Fetch(ctx context.Context, symbols []string) Result {
	symbols = dedupe(symbols)
	if len(symbols) == 0 {
		return Result{Quotes: map[string]Quote{}}
	}

	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = quoteKeyPrefix + s
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.WithError(err).Warn("quote cache read failed, bypassing cache")
		return c.next.Fetch(ctx, symbols)
	}

	res := Result{Quotes: make(map[string]Quote, len(symbols))}
	var misses []string
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			misses = append(misses, symbols[i])
			continue
		}
		var q Quote
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			c.log.WithError(err).WithField("symbol", symbols[i]).Warn("discarding corrupt cached quote")
			misses = append(misses, symbols[i])
			continue
		}
		res.Quotes[symbols[i]] = q
	}

	if len(misses) == 0 {
		return res
	}

	fetched := c.next.Fetch(ctx, misses)
	c.store(ctx, fetched.Quotes)
	for sym, q := range fetched.Quotes {
		res.Quotes[sym] = q
	}
	res.Unavailable = fetched.Unavailable
	res.sortUnavailable()
	return res
}

// Warm stores quotes without reading the cache first
func (c *RedisCache) Warm(ctx context.Context, symbols []string) Result {
	res := c.next.Fetch(ctx, symbols)
	c.store(ctx, res.Quotes)
	return res
}

func (c *RedisCache) store(ctx context.Context, quotes map[string]Quote) {
	if len(quotes) == 0 {
		return
	}
	pipe := c.client.Pipeline()
	for sym, q := range quotes {
		data, err := json.Marshal(q)
		if err != nil {
			c.log.WithError(err).WithField("symbol", sym).Warn("failed to encode quote")
			continue
		}
		pipe.Set(ctx, quoteKeyPrefix+sym, data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.WithError(err).Warn("quote cache write failed")
	}
}
