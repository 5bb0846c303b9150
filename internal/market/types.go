package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Tick is a single aggregated trade as delivered by the exchange stream.
type Tick struct {
	Symbol    string
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	TradeTime time.Time
}

// Bar is a fixed-duration OHLCV aggregate of ticks. Immutable once produced;
// ordered by Timestamp within a (symbol, timeframe) stream.
type Bar struct {
	Timestamp  time.Time
	Symbol     string
	Timeframe  Timeframe
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     decimal.Decimal
	TradeCount int64
}

// Timeframe identifies a bar duration ("1m", "5m", "1h", ...).
type Timeframe string

// Supported timeframes.
const (
	Timeframe1s  Timeframe = "1s"
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1s:  time.Second,
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe1d:  24 * time.Hour,
}

// ParseTimeframe validates a timeframe label.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Duration returns the bar length for the timeframe.
func (t Timeframe) Duration() (time.Duration, error) {
	d, ok := timeframeDurations[t]
	if !ok {
		return 0, fmt.Errorf("unknown timeframe %q", t)
	}
	return d, nil
}

func (t Timeframe) String() string { return string(t) }

// Closes extracts close prices as floats for statistical work.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close.InexactFloat64()
	}
	return out
}

// Volumes extracts volumes as floats.
func Volumes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume.InexactFloat64()
	}
	return out
}
