package analytics

import (
	"fmt"
	"math"
	"time"

	"pairwatch/internal/market"
)

// TradingDaysPerYear is the annualization base for volatility.
const TradingDaysPerYear = 252

// PriceStats summarises the close-price series.
type PriceStats struct {
	Mean      float64 `json:"mean"`
	Median    float64 `json:"median"`
	Std       float64 `json:"std"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Latest    float64 `json:"latest"`
	First     float64 `json:"first"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
}

// VolumeStats summarises traded volume.
type VolumeStats struct {
	Total  float64 `json:"total"`
	Mean   float64 `json:"mean"`
	Latest float64 `json:"latest"`
}

// ReturnsStats summarises simple percent returns between consecutive closes.
type ReturnsStats struct {
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Latest     float64 `json:"latest"`
	Cumulative float64 `json:"cumulative"`
}

// VolatilityStats holds rolling volatility of returns. Available is false
// when the series is shorter than the rolling window; in that case no
// values are fabricated.
type VolatilityStats struct {
	Available  bool    `json:"available"`
	Current    float64 `json:"current"`
	Mean       float64 `json:"mean"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Annualized float64 `json:"annualized"`
}

// VWAPStats holds the volume-weighted average price and the latest close's
// deviation from it.
type VWAPStats struct {
	Value        float64 `json:"value"`
	Deviation    float64 `json:"deviation"`
	DeviationPct float64 `json:"deviation_pct"`
}

// SeriesStatsResult is the output of SeriesStats.
type SeriesStatsResult struct {
	Symbol     string           `json:"symbol"`
	Timeframe  market.Timeframe `json:"timeframe"`
	Timestamp  time.Time        `json:"timestamp"`
	DataPoints int              `json:"data_points"`
	Window     int              `json:"window"`
	Price      PriceStats       `json:"price"`
	Volume     VolumeStats      `json:"volume"`
	Returns    ReturnsStats     `json:"returns"`
	Volatility VolatilityStats  `json:"volatility"`
	VWAP       VWAPStats        `json:"vwap"`
}

// SeriesStats computes descriptive statistics over one bar series. The
// series must hold at least 2 bars; rolling volatility additionally needs
// at least window bars and is otherwise reported as unavailable.
func SeriesStats(bars []market.Bar, window int) (*SeriesStatsResult, error) {
	if len(bars) < 2 {
		return nil, &InsufficientDataError{Need: 2, Got: len(bars), What: "series statistics"}
	}
	if window < MinWindow || window > MaxWindow {
		return nil, fmt.Errorf("rolling window %d outside [%d, %d]", window, MinWindow, MaxWindow)
	}

	closes := market.Closes(bars)
	volumes := market.Volumes(bars)

	res := &SeriesStatsResult{
		Symbol:     bars[0].Symbol,
		Timeframe:  bars[0].Timeframe,
		Timestamp:  bars[len(bars)-1].Timestamp,
		DataPoints: len(bars),
		Window:     window,
	}

	lo, hi := minMax(closes)
	first, latest := closes[0], closes[len(closes)-1]
	res.Price = PriceStats{
		Mean:      mean(closes),
		Median:    median(closes),
		Std:       sampleStd(closes),
		Min:       lo,
		Max:       hi,
		Latest:    latest,
		First:     first,
		Change:    latest - first,
		ChangePct: (latest/first - 1) * 100,
	}

	total := 0.0
	for _, v := range volumes {
		total += v
	}
	res.Volume = VolumeStats{
		Total:  total,
		Mean:   mean(volumes),
		Latest: volumes[len(volumes)-1],
	}

	returns := pctReturns(closes)
	rlo, rhi := minMax(returns)
	res.Returns = ReturnsStats{
		Mean:       mean(returns),
		Std:        sampleStd(returns),
		Min:        rlo,
		Max:        rhi,
		Latest:     returns[len(returns)-1],
		Cumulative: latest/first - 1,
	}

	res.Volatility = seriesVolatility(returns, window)
	res.VWAP = seriesVWAP(closes, volumes, total)
	return res, nil
}

func seriesVolatility(returns []float64, window int) VolatilityStats {
	if len(returns) < window {
		return VolatilityStats{Available: false}
	}
	rolling := validPoints(rollingStd(returns, window))
	lo, hi := minMax(rolling)
	return VolatilityStats{
		Available:  true,
		Current:    rolling[len(rolling)-1],
		Mean:       mean(rolling),
		Min:        lo,
		Max:        hi,
		Annualized: sampleStd(returns) * math.Sqrt(TradingDaysPerYear),
	}
}

func seriesVWAP(closes, volumes []float64, totalVolume float64) VWAPStats {
	if totalVolume == 0 {
		return VWAPStats{Value: math.NaN(), Deviation: math.NaN(), DeviationPct: math.NaN()}
	}
	weighted := 0.0
	for i := range closes {
		weighted += closes[i] * volumes[i]
	}
	vwap := weighted / totalVolume
	latest := closes[len(closes)-1]
	return VWAPStats{
		Value:        vwap,
		Deviation:    latest - vwap,
		DeviationPct: (latest/vwap - 1) * 100,
	}
}
