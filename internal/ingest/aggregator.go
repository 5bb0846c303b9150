package ingest

import (
	"sort"
	"time"

	"pairwatch/internal/market"
)

// Aggregator folds trade ticks into OHLC bars, one open bucket per
// (symbol, timeframe). Not safe for concurrent use; the ingest service
// owns it from a single goroutine.
type Aggregator struct {
	timeframes []market.Timeframe
	durations  map[market.Timeframe]time.Duration
	open       map[bucketKey]*openBar
}

type bucketKey struct {
	symbol    string
	timeframe market.Timeframe
	start     time.Time
}

type openBar struct {
	bar market.Bar
}

// NewAggregator resolves each timeframe's bucket duration up front.
// Callers parse timeframe labels before handing them over; anything
// unresolvable is dropped.
func NewAggregator(timeframes []market.Timeframe) *Aggregator {
	durations := make(map[market.Timeframe]time.Duration, len(timeframes))
	kept := make([]market.Timeframe, 0, len(timeframes))
	for _, tf := range timeframes {
		d, err := tf.Duration()
		if err != nil {
			continue
		}
		if _, seen := durations[tf]; seen {
			continue
		}
		durations[tf] = d
		kept = append(kept, tf)
	}
	return &Aggregator{
		timeframes: kept,
		durations:  durations,
		open:       make(map[bucketKey]*openBar),
	}
}

// Add folds one tick into the open bucket of every timeframe.
func (a *Aggregator) Add(tick market.Tick) {
	for _, tf := range a.timeframes {
		start := tick.TradeTime.Truncate(a.durations[tf])
		key := bucketKey{symbol: tick.Symbol, timeframe: tf, start: start}

		ob, ok := a.open[key]
		if !ok {
			a.open[key] = &openBar{bar: market.Bar{
				Timestamp:  start,
				Symbol:     tick.Symbol,
				Timeframe:  tf,
				Open:       tick.Price,
				High:       tick.Price,
				Low:        tick.Price,
				Close:      tick.Price,
				Volume:     tick.Quantity,
				TradeCount: 1,
			}}
			continue
		}

		b := &ob.bar
		if tick.Price.GreaterThan(b.High) {
			b.High = tick.Price
		}
		if tick.Price.LessThan(b.Low) {
			b.Low = tick.Price
		}
		b.Close = tick.Price
		b.Volume = b.Volume.Add(tick.Quantity)
		b.TradeCount++
	}
}

// Flush returns bars whose bucket closed before now and drops them from
// the open set. Output is ordered by timestamp, then symbol, so writes
// hit storage deterministically.
func (a *Aggregator) Flush(now time.Time) []market.Bar {
	var closed []market.Bar
	for key, ob := range a.open {
		end := key.start.Add(a.durations[key.timeframe])
		if !end.After(now) {
			closed = append(closed, ob.bar)
			delete(a.open, key)
		}
	}

	sort.Slice(closed, func(i, j int) bool {
		if !closed[i].Timestamp.Equal(closed[j].Timestamp) {
			return closed[i].Timestamp.Before(closed[j].Timestamp)
		}
		if closed[i].Symbol != closed[j].Symbol {
			return closed[i].Symbol < closed[j].Symbol
		}
		return closed[i].Timeframe < closed[j].Timeframe
	})
	return closed
}

// FlushAll closes every open bucket regardless of time, used on
// shutdown so partial bars are not lost.
func (a *Aggregator) FlushAll() []market.Bar {
	return a.Flush(time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC))
}

// OpenBuckets reports how many buckets are currently accumulating.
func (a *Aggregator) OpenBuckets() int {
	return len(a.open)
}
