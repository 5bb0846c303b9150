package ingest

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pairwatch/internal/market"
)

func tradeTick(symbol, price, qty string, at time.Time) market.Tick {
	return market.Tick{
		Symbol:    symbol,
		Price:     decimal.RequireFromString(price),
		Quantity:  decimal.RequireFromString(qty),
		TradeTime: at,
	}
}

func TestAggregatorBuildsOHLC(t *testing.T) {
	agg := NewAggregator([]market.Timeframe{market.Timeframe1m})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	agg.Add(tradeTick("BTCUSDT", "100", "1", base.Add(1*time.Second)))
	agg.Add(tradeTick("BTCUSDT", "105", "2", base.Add(20*time.Second)))
	agg.Add(tradeTick("BTCUSDT", "95", "1", base.Add(40*time.Second)))
	agg.Add(tradeTick("BTCUSDT", "102", "0.5", base.Add(59*time.Second)))

	// bucket not closed yet
	if bars := agg.Flush(base.Add(59 * time.Second)); len(bars) != 0 {
		t.Fatalf("open bucket flushed early: %v", bars)
	}

	bars := agg.Flush(base.Add(time.Minute))
	if len(bars) != 1 {
		t.Fatalf("closed bars = %d, want 1", len(bars))
	}

	b := bars[0]
	if !b.Timestamp.Equal(base) {
		t.Fatalf("bucket start = %s, want %s", b.Timestamp, base)
	}
	if b.Open.String() != "100" || b.High.String() != "105" || b.Low.String() != "95" || b.Close.String() != "102" {
		t.Fatalf("ohlc = %s/%s/%s/%s", b.Open, b.High, b.Low, b.Close)
	}
	if b.Volume.String() != "4.5" {
		t.Fatalf("volume = %s, want 4.5", b.Volume)
	}
	if b.TradeCount != 4 {
		t.Fatalf("trade count = %d, want 4", b.TradeCount)
	}
}

func TestAggregatorSeparatesSymbolsAndTimeframes(t *testing.T) {
	agg := NewAggregator([]market.Timeframe{market.Timeframe1m, market.Timeframe5m})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	agg.Add(tradeTick("BTCUSDT", "100", "1", base.Add(time.Second)))
	agg.Add(tradeTick("ETHUSDT", "10", "1", base.Add(time.Second)))

	if agg.OpenBuckets() != 4 {
		t.Fatalf("open buckets = %d, want 4", agg.OpenBuckets())
	}

	bars := agg.Flush(base.Add(time.Minute))
	if len(bars) != 2 {
		t.Fatalf("1m buckets closed = %d, want 2", len(bars))
	}
	for _, b := range bars {
		if b.Timeframe != market.Timeframe1m {
			t.Fatalf("unexpected timeframe closed: %s", b.Timeframe)
		}
	}

	// 5m buckets survive until their window ends
	if agg.OpenBuckets() != 2 {
		t.Fatalf("open buckets after 1m flush = %d, want 2", agg.OpenBuckets())
	}
	bars = agg.Flush(base.Add(5 * time.Minute))
	if len(bars) != 2 {
		t.Fatalf("5m buckets closed = %d, want 2", len(bars))
	}
}

func TestAggregatorTruncatesToBucketStart(t *testing.T) {
	agg := NewAggregator([]market.Timeframe{market.Timeframe5m})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	agg.Add(tradeTick("BTCUSDT", "100", "1", base.Add(10*time.Second)))
	agg.Add(tradeTick("BTCUSDT", "101", "1", base.Add(4*time.Minute+59*time.Second)))
	agg.Add(tradeTick("BTCUSDT", "102", "1", base.Add(5*time.Minute+1*time.Second)))

	if agg.OpenBuckets() != 2 {
		t.Fatalf("open buckets = %d, want 2", agg.OpenBuckets())
	}

	bars := agg.Flush(base.Add(5 * time.Minute))
	if len(bars) != 1 {
		t.Fatalf("closed bars = %d, want 1", len(bars))
	}
	b := bars[0]
	if !b.Timestamp.Equal(base) {
		t.Fatalf("bucket start = %s, want %s", b.Timestamp, base)
	}
	if b.Open.String() != "100" || b.Close.String() != "101" || b.TradeCount != 2 {
		t.Fatalf("bar = %s/%s count %d", b.Open, b.Close, b.TradeCount)
	}
}

func TestAggregatorDropsUnknownTimeframes(t *testing.T) {
	agg := NewAggregator([]market.Timeframe{market.Timeframe("7x"), market.Timeframe1m})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	agg.Add(tradeTick("BTCUSDT", "100", "1", base))
	if agg.OpenBuckets() != 1 {
		t.Fatalf("open buckets = %d, want 1", agg.OpenBuckets())
	}

	bars := agg.Flush(base.Add(time.Minute))
	if len(bars) != 1 || bars[0].Timeframe != market.Timeframe1m {
		t.Fatalf("unexpected flush result: %v", bars)
	}
}

func TestAggregatorFlushAllClosesOpenBuckets(t *testing.T) {
	agg := NewAggregator([]market.Timeframe{market.Timeframe1h})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	agg.Add(tradeTick("BTCUSDT", "100", "1", base))

	bars := agg.FlushAll()
	if len(bars) != 1 {
		t.Fatalf("FlushAll closed %d bars, want 1", len(bars))
	}
	if agg.OpenBuckets() != 0 {
		t.Fatalf("open buckets = %d, want 0", agg.OpenBuckets())
	}
}

func TestAggregatorFlushOrderIsDeterministic(t *testing.T) {
	agg := NewAggregator([]market.Timeframe{market.Timeframe1m})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	agg.Add(tradeTick("ETHUSDT", "10", "1", base.Add(time.Minute)))
	agg.Add(tradeTick("BTCUSDT", "100", "1", base))
	agg.Add(tradeTick("ADAUSDT", "1", "1", base))

	bars := agg.Flush(base.Add(2 * time.Minute))
	if len(bars) != 3 {
		t.Fatalf("closed bars = %d, want 3", len(bars))
	}
	if bars[0].Symbol != "ADAUSDT" || bars[1].Symbol != "BTCUSDT" || bars[2].Symbol != "ETHUSDT" {
		t.Fatalf("order = %s, %s, %s", bars[0].Symbol, bars[1].Symbol, bars[2].Symbol)
	}
	if !bars[0].Timestamp.Before(bars[2].Timestamp) {
		t.Fatal("earlier bucket should sort first")
	}
}

func TestParseTickAggTrade(t *testing.T) {
	s := NewBinanceStream(StreamOptions{Symbols: []string{"BTCUSDT"}}, zerolog.Nop())

	payload := []byte(`{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","E":1748779200123,"s":"BTCUSDT","a":12345,"p":"50000.10","q":"0.25","T":1748779200100,"m":true}}`)
	tick, ok := s.parseTick(payload)
	if !ok {
		t.Fatal("valid aggTrade frame rejected")
	}
	if tick.Symbol != "BTCUSDT" {
		t.Fatalf("symbol = %s", tick.Symbol)
	}
	if tick.Price.String() != "50000.1" {
		t.Fatalf("price = %s", tick.Price)
	}
	if tick.Quantity.String() != "0.25" {
		t.Fatalf("quantity = %s", tick.Quantity)
	}
	if tick.TradeTime.UnixMilli() != 1748779200100 {
		t.Fatalf("trade time = %s", tick.TradeTime)
	}
}

func TestParseTickIgnoresOtherEvents(t *testing.T) {
	s := NewBinanceStream(StreamOptions{Symbols: []string{"BTCUSDT"}}, zerolog.Nop())

	if _, ok := s.parseTick([]byte(`{"stream":"btcusdt@depth","data":{"e":"depthUpdate"}}`)); ok {
		t.Fatal("non-trade frame should be dropped")
	}
	if _, ok := s.parseTick([]byte(`not json`)); ok {
		t.Fatal("garbage frame should be dropped")
	}
	if _, ok := s.parseTick([]byte(`{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","s":"BTCUSDT","p":"oops","q":"1","T":1}}`)); ok {
		t.Fatal("bad price should be dropped")
	}
}

func TestStreamURLCombinesSymbols(t *testing.T) {
	s := NewBinanceStream(StreamOptions{Symbols: []string{"BTCUSDT", "ETHUSDT"}}, zerolog.Nop())
	got := s.streamURL()
	want := defaultStreamURL + "?streams=btcusdt@aggTrade/ethusdt@aggTrade"
	if got != want {
		t.Fatalf("url = %s, want %s", got, want)
	}
}
