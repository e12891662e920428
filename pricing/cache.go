package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// QuoteCache stores quotes for a bounded time. GetMany returns only the hits.
type QuoteCache interface {
	GetMany(ctx context.Context, typeIDs []int) (map[int]Quote, error)
	SetMany(ctx context.Context, quotes map[int]Quote) error
}

func quoteKey(typeID int) string {
	return fmt.Sprintf("exchange:price:%d", typeID)
}

type RedisQuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisQuoteCache(rdb *redis.Client, ttl time.Duration) *RedisQuoteCache {
	return &RedisQuoteCache{rdb: rdb, ttl: ttl}
}

func (c *RedisQuoteCache) GetMany(ctx context.Context, typeIDs []int) (map[int]Quote, error) {
	out := map[int]Quote{}
	if len(typeIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(typeIDs))
	for i, id := range typeIDs {
		keys[i] = quoteKey(id)
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var q Quote
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			continue
		}
		out[typeIDs[i]] = q
	}
	return out, nil
}

func (c *RedisQuoteCache) SetMany(ctx context.Context, quotes map[int]Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	pipe := c.rdb.Pipeline()
	for id, q := range quotes {
		data, err := json.Marshal(q)
		if err != nil {
			return err
		}
		pipe.Set(ctx, quoteKey(id), data, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

type memoryQuote struct {
	quote   Quote
	expires time.Time
}

// MemoryQuoteCache is the in-process fallback when Redis is not configured.
type MemoryQuoteCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int]memoryQuote
}

func NewMemoryQuoteCache(ttl time.Duration) *MemoryQuoteCache {
	return &MemoryQuoteCache{ttl: ttl, now: time.Now, entries: map[int]memoryQuote{}}
}

func (c *MemoryQuoteCache) GetMany(ctx context.Context, typeIDs []int) (map[int]Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := map[int]Quote{}
	for _, id := range typeIDs {
		e, ok := c.entries[id]
		if !ok {
			continue
		}
		if !now.Before(e.expires) {
			delete(c.entries, id)
			continue
		}
		out[id] = e.quote
	}
	return out, nil
}

func (c *MemoryQuoteCache) SetMany(ctx context.Context, quotes map[int]Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	expires := c.now().Add(c.ttl)
	for id, q := range quotes {
		c.entries[id] = memoryQuote{quote: q, expires: expires}
	}
	return nil
}

// CachedPriceSource is a read-through cache in front of an upstream source.
// Cache failures degrade to upstream reads; they are never returned.
type CachedPriceSource struct {
	Upstream PriceSource
	Cache    QuoteCache
	Logger   *logrus.Logger
}

func NewCachedPriceSource(upstream PriceSource, cache QuoteCache, logger *logrus.Logger) *CachedPriceSource {
	return &CachedPriceSource{Upstream: upstream, Cache: cache, Logger: logger}
}

func (s *CachedPriceSource) Prices(ctx context.Context, typeIDs []int) (map[int]Quote, error) {
	if s.Upstream == nil {
		return nil, errors.New("price source has no upstream")
	}
	ids := uniqueTypeIDs(typeIDs)
	out := make(map[int]Quote, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	hits, err := s.Cache.GetMany(ctx, ids)
	if err != nil {
		s.warn("read", err)
		hits = nil
	}
	var misses []int
	for _, id := range ids {
		if q, ok := hits[id]; ok {
			out[id] = q
		} else {
			misses = append(misses, id)
		}
	}
	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := s.Upstream.Prices(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, q := range fetched {
		out[id] = q
	}
	if err := s.Cache.SetMany(ctx, fetched); err != nil {
		s.warn("write", err)
	}
	return out, nil
}

func (s *CachedPriceSource) warn(op string, err error) {
	if s.Logger == nil {
		return
	}
	s.Logger.WithFields(logrus.Fields{"field": "PriceCache", "op": op}).Warn(err.Error())
}
