package analytics

import (
	"math"
	"testing"
	"time"

	"pairwatch/internal/market"
)

func makePairSeries(close1, close2 []float64) *market.PairSeries {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ts := make([]time.Time, len(close1))
	for i := range ts {
		ts[i] = base.Add(time.Duration(i) * time.Minute)
	}
	return &market.PairSeries{
		Symbol1:    "BTCUSDT",
		Symbol2:    "ETHUSDT",
		Timeframe:  market.Timeframe1m,
		Timestamps: ts,
		Close1:     close1,
		Close2:     close2,
	}
}

func TestAnalyzePairIdenticalSeries(t *testing.T) {
	series := make([]float64, 30)
	for i := range series {
		series[i] = 100 + 5*math.Sin(float64(i)*0.7)
	}
	res, err := AnalyzePair(makePairSeries(series, append([]float64(nil), series...)), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if math.Abs(res.HedgeRatio.Ratio-1) > 1e-9 {
		t.Fatalf("ratio = %v, want 1", res.HedgeRatio.Ratio)
	}
	if math.Abs(res.HedgeRatio.Intercept) > 1e-7 {
		t.Fatalf("intercept = %v, want 0", res.HedgeRatio.Intercept)
	}
	if math.Abs(res.HedgeRatio.RSquared-1) > 1e-9 {
		t.Fatalf("r_squared = %v, want 1", res.HedgeRatio.RSquared)
	}
	if math.Abs(res.Correlation.Pearson-1) > 1e-9 {
		t.Fatalf("pearson = %v, want 1", res.Correlation.Pearson)
	}
	if res.Correlation.PearsonPValue > 1e-9 {
		t.Fatalf("pearson pvalue = %v, want ~0", res.Correlation.PearsonPValue)
	}
	if res.Correlation.Strength != StrengthExtremelyStrong {
		t.Fatalf("strength = %q", res.Correlation.Strength)
	}
	// spread degenerates to zero: z-score must be unavailable, not zeroed
	if res.ZScore.Available {
		t.Fatal("z-score should be unavailable on a zero spread")
	}
	if res.ZScore.Signal != SignalUnknown {
		t.Fatalf("signal = %q, want unknown", res.ZScore.Signal)
	}
}

func TestAnalyzePairTooFewPoints(t *testing.T) {
	_, err := AnalyzePair(makePairSeries([]float64{1, 2}, []float64{2, 4}), 10)
	if !IsInsufficientData(err) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
}

func TestAnalyzePairZeroVarianceRegressor(t *testing.T) {
	close1 := []float64{100, 101, 102, 103, 104, 105}
	close2 := []float64{50, 50, 50, 50, 50, 50}
	_, err := AnalyzePair(makePairSeries(close1, close2), 5)
	if !IsRegressionError(err) {
		t.Fatalf("expected RegressionError, got %v", err)
	}
}

func TestAnalyzePairCointegrationUnavailableOnShortSeries(t *testing.T) {
	n := 12 // below the 20-point cointegration floor
	close1 := make([]float64, n)
	close2 := make([]float64, n)
	for i := range close1 {
		close1[i] = 100 + float64(i) + math.Sin(float64(i))
		close2[i] = 50 + 0.5*float64(i) + math.Cos(float64(i))
	}
	res, err := AnalyzePair(makePairSeries(close1, close2), 5)
	if err != nil {
		t.Fatalf("short cointegration sample must not fail the analysis: %v", err)
	}
	if res.Cointegration.Available {
		t.Fatal("cointegration should be unavailable below 20 points")
	}
	if res.Cointegration.Reason == "" {
		t.Fatal("unavailable cointegration should carry a reason")
	}
	// the other sections still produce valid output
	if math.IsNaN(res.Correlation.Pearson) || math.IsNaN(res.HedgeRatio.Ratio) {
		t.Fatal("correlation and hedge ratio must still compute")
	}
	if !res.ZScore.Available {
		t.Fatal("z-score should be available with 12 points and window 5")
	}
}

func TestSpreadZScoreAtRollingMeanIsZero(t *testing.T) {
	// last value 2 equals the mean of its own window [1,2,3,2,2]
	spread := []float64{5, 1, 2, 3, 2, 2}
	res := spreadZScore(spread, 5)
	if !res.Available {
		t.Fatal("z-score should be available")
	}
	if math.Abs(res.Current) > 1e-9 {
		t.Fatalf("z at rolling mean = %v, want 0", res.Current)
	}
}

func TestSpreadZScoreGrowsWithDistance(t *testing.T) {
	zAt := func(last float64) float64 {
		res := spreadZScore([]float64{5, 1, 2, 3, 2, last}, 5)
		if !res.Available {
			t.Fatalf("z-score unavailable for last=%v", last)
		}
		return res.Current
	}

	z0 := zAt(2)
	z1 := zAt(2.5)
	z2 := zAt(4)
	if !(z0 < z1 && z1 < z2) {
		t.Fatalf("z-score not increasing with distance: %v %v %v", z0, z1, z2)
	}
}

func TestSpreadZScoreLeadingEntriesAreMissing(t *testing.T) {
	spread := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	res := spreadZScore(spread, 5)
	for i := 0; i < 4; i++ {
		if !math.IsNaN(res.Series[i]) {
			t.Fatalf("series[%d] = %v, want NaN", i, res.Series[i])
		}
	}
	if math.IsNaN(res.Series[5]) {
		t.Fatal("series past the window should be defined")
	}
}

func TestZScoreSignalBuckets(t *testing.T) {
	cases := []struct {
		z    float64
		want Signal
	}{
		{2.5, SignalStrongShort},
		{2.0, SignalStrongShort},
		{1.5, SignalCautionShort},
		{0.5, SignalNeutral},
		{-0.5, SignalNeutral},
		{-1.5, SignalCautionLong},
		{-2.5, SignalStrongLong},
	}
	for _, c := range cases {
		if got := zScoreSignal(c.z); got != c.want {
			t.Fatalf("signal(%v) = %q, want %q", c.z, got, c.want)
		}
	}
}

func TestCorrelationStrengthCutpoints(t *testing.T) {
	cases := []struct {
		r    float64
		want string
	}{
		{0.1, StrengthWeak},
		{0.35, StrengthModerate},
		{-0.6, StrengthStrong},
		{0.8, StrengthVeryStrong},
		{-0.95, StrengthExtremelyStrong},
	}
	for _, c := range cases {
		if got := correlationStrength(c.r); got != c.want {
			t.Fatalf("strength(%v) = %q, want %q", c.r, got, c.want)
		}
	}
}

func TestSpearmanMonotoneSeries(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5, 6}
	b := []float64{1, 4, 9, 16, 25, 36} // monotone but nonlinear
	r, err := spearmanCorr(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(r-1) > 1e-9 {
		t.Fatalf("spearman = %v, want 1 for monotone series", r)
	}
}

func TestRollingCorrelationMarksLeadingWindowMissing(t *testing.T) {
	n := 15
	a := make([]float64, n)
	b := make([]float64, n)
	for i := range a {
		a[i] = float64(i) + math.Sin(float64(i))
		b[i] = 2*float64(i) + math.Cos(float64(i))
	}
	res := rollingCorrelation(a, b, 5)
	for i := 0; i < 4; i++ {
		if !math.IsNaN(res.Series[i]) {
			t.Fatalf("rolling corr series[%d] should be NaN", i)
		}
	}
	if !res.Available {
		t.Fatal("rolling correlation should be available")
	}
}
