package market

import (
	"errors"
	"fmt"
	"time"
)

// MinPairPoints is the smallest aligned series the pair analyzer accepts.
const MinPairPoints = 3

// ErrNotAligned indicates the two bar streams share too few timestamps.
var ErrNotAligned = errors.New("market: insufficient overlapping bars")

// PairSeries is an inner-joined, timestamp-aligned pair of close-price
// series for two symbols at a common timeframe. Timestamps are strictly
// increasing and unique.
type PairSeries struct {
	Symbol1    string
	Symbol2    string
	Timeframe  Timeframe
	Timestamps []time.Time
	Close1     []float64
	Close2     []float64
}

// Len returns the number of aligned points.
func (p *PairSeries) Len() int { return len(p.Timestamps) }

// AlignPair inner-joins two ordered bar sequences on timestamp. Inputs must
// be ordered ascending; duplicate timestamps within one side are rejected.
func AlignPair(bars1, bars2 []Bar) (*PairSeries, error) {
	if err := checkOrdered(bars1); err != nil {
		return nil, fmt.Errorf("series 1: %w", err)
	}
	if err := checkOrdered(bars2); err != nil {
		return nil, fmt.Errorf("series 2: %w", err)
	}

	ps := &PairSeries{}
	if len(bars1) > 0 {
		ps.Symbol1 = bars1[0].Symbol
		ps.Timeframe = bars1[0].Timeframe
	}
	if len(bars2) > 0 {
		ps.Symbol2 = bars2[0].Symbol
	}

	i, j := 0, 0
	for i < len(bars1) && j < len(bars2) {
		t1, t2 := bars1[i].Timestamp, bars2[j].Timestamp
		switch {
		case t1.Before(t2):
			i++
		case t2.Before(t1):
			j++
		default:
			ps.Timestamps = append(ps.Timestamps, t1)
			ps.Close1 = append(ps.Close1, bars1[i].Close.InexactFloat64())
			ps.Close2 = append(ps.Close2, bars2[j].Close.InexactFloat64())
			i++
			j++
		}
	}

	if ps.Len() < MinPairPoints {
		return nil, fmt.Errorf("%w: %d overlapping of %d/%d bars", ErrNotAligned, ps.Len(), len(bars1), len(bars2))
	}
	return ps, nil
}

func checkOrdered(bars []Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("bars not strictly ordered at index %d (%s)", i, bars[i].Timestamp)
		}
	}
	return nil
}
