package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pairwatch/internal/market"
)

func makeBars(closes []float64, volumes []float64) []market.Bar {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	for i := range closes {
		vol := 1.0
		if volumes != nil {
			vol = volumes[i]
		}
		bars[i] = market.Bar{
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			Symbol:     "BTCUSDT",
			Timeframe:  market.Timeframe1m,
			Open:       decimal.NewFromFloat(closes[i]),
			High:       decimal.NewFromFloat(closes[i]),
			Low:        decimal.NewFromFloat(closes[i]),
			Close:      decimal.NewFromFloat(closes[i]),
			Volume:     decimal.NewFromFloat(vol),
			TradeCount: 1,
		}
	}
	return bars
}

func TestSeriesStatsRejectsShortSeries(t *testing.T) {
	for _, n := range []int{0, 1} {
		closes := make([]float64, n)
		for i := range closes {
			closes[i] = 100
		}
		_, err := SeriesStats(makeBars(closes, nil), 20)
		if err == nil {
			t.Fatalf("expected error for %d bars", n)
		}
		if !IsInsufficientData(err) {
			t.Fatalf("expected InsufficientDataError, got %v", err)
		}
	}
}

func TestSeriesStatsRejectsBadWindow(t *testing.T) {
	bars := makeBars([]float64{1, 2, 3, 4, 5, 6}, nil)
	if _, err := SeriesStats(bars, 2); err == nil {
		t.Fatal("window below minimum should be rejected")
	}
	if _, err := SeriesStats(bars, 500); err == nil {
		t.Fatal("window above maximum should be rejected")
	}
}

func TestSeriesStatsKnownValues(t *testing.T) {
	closes := []float64{100, 110, 120, 130, 140}
	volumes := []float64{1, 2, 3, 4, 5}
	res, err := SeriesStats(makeBars(closes, volumes), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := res.Price.Mean; math.Abs(got-120) > 1e-9 {
		t.Fatalf("price mean = %v, want 120", got)
	}
	if got := res.Price.Median; math.Abs(got-120) > 1e-9 {
		t.Fatalf("price median = %v, want 120", got)
	}
	if got := res.Price.ChangePct; math.Abs(got-40) > 1e-9 {
		t.Fatalf("change pct = %v, want 40", got)
	}
	if got := res.Volume.Total; math.Abs(got-15) > 1e-9 {
		t.Fatalf("volume total = %v, want 15", got)
	}

	// VWAP = (100+220+360+520+700)/15
	wantVWAP := 1900.0 / 15.0
	if got := res.VWAP.Value; math.Abs(got-wantVWAP) > 1e-9 {
		t.Fatalf("vwap = %v, want %v", got, wantVWAP)
	}
	if got := res.VWAP.Deviation; math.Abs(got-(140-wantVWAP)) > 1e-9 {
		t.Fatalf("vwap deviation = %v", got)
	}
}

func TestSeriesStatsVolatilityUnavailableBelowWindow(t *testing.T) {
	res, err := SeriesStats(makeBars([]float64{100, 101, 102, 103}, nil), 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Volatility.Available {
		t.Fatal("volatility should be unavailable below the rolling window")
	}
	// scalar stats still compute on the short series
	if math.IsNaN(res.Price.Mean) || math.IsNaN(res.Returns.Latest) {
		t.Fatal("scalar stats must compute on whatever length exists")
	}
}

func TestSeriesStatsVolatilityAnnualized(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i%3)
	}
	res, err := SeriesStats(makeBars(closes, nil), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Volatility.Available {
		t.Fatal("volatility should be available with 30 bars and window 5")
	}
	want := res.Returns.Std * math.Sqrt(252)
	if math.Abs(res.Volatility.Annualized-want) > 1e-12 {
		t.Fatalf("annualized = %v, want %v", res.Volatility.Annualized, want)
	}
}
