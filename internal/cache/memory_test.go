package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pairwatch/internal/market"
)

func tickAt(symbol string, price string, ts time.Time) market.Tick {
	return market.Tick{
		Symbol:    symbol,
		Price:     decimal.RequireFromString(price),
		Quantity:  decimal.RequireFromString("1"),
		TradeTime: ts,
	}
}

func TestMemoryCacheLatest(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Now().UTC()

	if _, err := c.Latest(ctx, "BTCUSDT"); !errors.Is(err, ErrNoTick) {
		t.Fatalf("expected ErrNoTick, got %v", err)
	}

	if err := c.SetLatest(ctx, tickAt("BTCUSDT", "50000", now)); err != nil {
		t.Fatalf("SetLatest: %v", err)
	}
	got, err := c.Latest(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.Price.String() != "50000" {
		t.Fatalf("price = %s, want 50000", got.Price)
	}
}

func TestMemoryCacheIgnoresOlderTick(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Now().UTC()

	if err := c.SetLatest(ctx, tickAt("ETHUSDT", "3000", now)); err != nil {
		t.Fatalf("SetLatest: %v", err)
	}
	if err := c.SetLatest(ctx, tickAt("ETHUSDT", "2900", now.Add(-time.Second))); err != nil {
		t.Fatalf("SetLatest stale: %v", err)
	}

	got, err := c.Latest(ctx, "ETHUSDT")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.Price.String() != "3000" {
		t.Fatalf("stale tick overwrote newer one: price = %s", got.Price)
	}
}

func TestMemoryCacheLatestAllSkipsUnknown(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Now().UTC()

	if err := c.SetLatest(ctx, tickAt("BTCUSDT", "50000", now)); err != nil {
		t.Fatalf("SetLatest: %v", err)
	}

	res, err := c.LatestAll(ctx, []string{"BTCUSDT", "XRPUSDT"})
	if err != nil {
		t.Fatalf("LatestAll: %v", err)
	}
	if len(res) != 1 {
		t.Fatalf("len(res) = %d, want 1", len(res))
	}
	if _, ok := res["XRPUSDT"]; ok {
		t.Fatal("unknown symbol should be absent, not zero-valued")
	}
}
