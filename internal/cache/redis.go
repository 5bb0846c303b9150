package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"pairwatch/internal/market"
)

// RedisCache keeps the latest tick per symbol in Redis with a TTL, and
// falls back to the in-process cache when Redis misbehaves. Stale reads
// are acceptable here; the durable bar store stays authoritative.
type RedisCache struct {
	rdb *redis.Client
	mem *MemoryCache
	ttl time.Duration
}

type cachedTick struct {
	Symbol   string `json:"symbol"`
	Price    string `json:"price"`
	Quantity string `json:"qty"`
	TradeTs  int64  `json:"ts"`
}

// NewRedisCache connects to Redis and verifies reachability.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{
		rdb: rdb,
		mem: NewMemoryCache(),
		ttl: ttl,
	}, nil
}

func latestKey(symbol string) string { return "pairwatch:last:" + symbol }

func (r *RedisCache) SetLatest(ctx context.Context, tick market.Tick) error {
	payload, err := json.Marshal(cachedTick{
		Symbol:   tick.Symbol,
		Price:    tick.Price.String(),
		Quantity: tick.Quantity.String(),
		TradeTs:  tick.TradeTime.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("marshal tick: %w", err)
	}

	if err := r.rdb.Set(ctx, latestKey(tick.Symbol), payload, r.ttl).Err(); err != nil {
		_ = r.mem.SetLatest(ctx, tick)
		return fmt.Errorf("redis set latest %s: %w", tick.Symbol, err)
	}
	_ = r.mem.SetLatest(ctx, tick)
	return nil
}

func (r *RedisCache) Latest(ctx context.Context, symbol string) (market.Tick, error) {
	raw, err := r.rdb.Get(ctx, latestKey(symbol)).Bytes()
	if err == redis.Nil {
		return market.Tick{}, fmt.Errorf("%w: %s", ErrNoTick, symbol)
	}
	if err != nil {
		return r.mem.Latest(ctx, symbol)
	}
	return decodeTick(raw)
}

func (r *RedisCache) LatestAll(ctx context.Context, symbols []string) (map[string]market.Tick, error) {
	if len(symbols) == 0 {
		return map[string]market.Tick{}, nil
	}

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = latestKey(sym)
	}
	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return r.mem.LatestAll(ctx, symbols)
	}

	res := make(map[string]market.Tick, len(symbols))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		tick, decodeErr := decodeTick([]byte(s))
		if decodeErr != nil {
			continue
		}
		res[symbols[i]] = tick
	}
	return res, nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.rdb.Close()
}

func decodeTick(raw []byte) (market.Tick, error) {
	var c cachedTick
	if err := json.Unmarshal(raw, &c); err != nil {
		return market.Tick{}, fmt.Errorf("decode cached tick: %w", err)
	}

	price, err := decimal.NewFromString(c.Price)
	if err != nil {
		return market.Tick{}, fmt.Errorf("parse cached price: %w", err)
	}
	qty, err := decimal.NewFromString(c.Quantity)
	if err != nil {
		return market.Tick{}, fmt.Errorf("parse cached quantity: %w", err)
	}

	return market.Tick{
		Symbol:    c.Symbol,
		Price:     price,
		Quantity:  qty,
		TradeTime: time.Unix(0, c.TradeTs).UTC(),
	}, nil
}

var _ LatestCache = (*RedisCache)(nil)
