package cache

import (
	"context"
	"errors"

	"pairwatch/internal/market"
)

// ErrNoTick indicates no price has been observed yet for a symbol.
var ErrNoTick = errors.New("cache: no tick for symbol")

// LatestCache keeps the most recent trade per symbol for quick reads by
// the API and the alert payload renderer. Durable history lives in the
// bar store; the cache is disposable.
type LatestCache interface {
	SetLatest(ctx context.Context, tick market.Tick) error
	Latest(ctx context.Context, symbol string) (market.Tick, error)
	LatestAll(ctx context.Context, symbols []string) (map[string]market.Tick, error)
	Ping(ctx context.Context) error
	Close() error
}
