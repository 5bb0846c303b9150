package cache

import (
	"context"
	"fmt"
	"sync"

	"pairwatch/internal/market"
)

// MemoryCache is the in-process fallback used when Redis is not
// configured or unreachable.
type MemoryCache struct {
	mu   sync.RWMutex
	last map[string]market.Tick
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{last: make(map[string]market.Tick)}
}

func (m *MemoryCache) SetLatest(_ context.Context, tick market.Tick) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.last[tick.Symbol]; ok && tick.TradeTime.Before(prev.TradeTime) {
		return nil
	}
	m.last[tick.Symbol] = tick
	return nil
}

func (m *MemoryCache) Latest(_ context.Context, symbol string) (market.Tick, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tick, ok := m.last[symbol]
	if !ok {
		return market.Tick{}, fmt.Errorf("%w: %s", ErrNoTick, symbol)
	}
	return tick, nil
}

func (m *MemoryCache) LatestAll(_ context.Context, symbols []string) (map[string]market.Tick, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make(map[string]market.Tick, len(symbols))
	for _, sym := range symbols {
		if tick, ok := m.last[sym]; ok {
			res[sym] = tick
		}
	}
	return res, nil
}

func (m *MemoryCache) Ping(context.Context) error { return nil }

func (m *MemoryCache) Close() error { return nil }

var _ LatestCache = (*MemoryCache)(nil)
