package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"pairwatch/internal/market"
)

// MinCointegrationPoints is the floor below which the ADF section is
// reported unavailable rather than failing the whole analysis.
const MinCointegrationPoints = 20

// Correlation strength buckets, keyed on |Pearson|.
const (
	StrengthWeak            = "weak"
	StrengthModerate        = "moderate"
	StrengthStrong          = "strong"
	StrengthVeryStrong      = "very_strong"
	StrengthExtremelyStrong = "extremely_strong"
)

const (
	strengthModerateCut        = 0.3
	strengthStrongCut          = 0.5
	strengthVeryStrongCut      = 0.7
	strengthExtremelyStrongCut = 0.9
)

// Signal labels derived from the current z-score. A negative z-score means
// the spread sits below its rolling mean, favouring a long-the-spread entry.
type Signal string

const (
	SignalStrongLong   Signal = "strong_long"
	SignalStrongShort  Signal = "strong_short"
	SignalCautionLong  Signal = "caution_long"
	SignalCautionShort Signal = "caution_short"
	SignalNeutral      Signal = "neutral"
	SignalUnknown      Signal = "unknown"
)

const (
	zScoreStrongCut  = 2.0
	zScoreCautionCut = 1.0
)

// CorrelationResult covers the full aligned close-price series.
type CorrelationResult struct {
	Pearson        float64 `json:"pearson"`
	PearsonPValue  float64 `json:"pearson_pvalue"`
	Spearman       float64 `json:"spearman"`
	SpearmanPValue float64 `json:"spearman_pvalue"`
	Strength       string  `json:"strength"`
}

// HedgeRatioResult is the OLS fit close1 = intercept + ratio*close2.
type HedgeRatioResult struct {
	Ratio       float64 `json:"ratio"`
	Intercept   float64 `json:"intercept"`
	RSquared    float64 `json:"r_squared"`
	ResidualStd float64 `json:"residual_std"`
}

// CointegrationResult is the ADF unit-root test on the spread. When
// Available is false (series shorter than MinCointegrationPoints, or the
// test itself degenerated) the numeric fields are meaningless and Reason
// says why. Treated as a weak signal, not a hard failure.
type CointegrationResult struct {
	Available          bool               `json:"available"`
	Reason             string             `json:"reason,omitempty"`
	Statistic          float64            `json:"statistic"`
	PValue             float64            `json:"pvalue"`
	CriticalValues     map[string]float64 `json:"critical_values"`
	Lag                int                `json:"lag"`
	CointegratedAt5Pct bool               `json:"is_cointegrated_at_5pct"`
}

// SpreadResult describes spread = close1 - ratio*close2 pointwise.
type SpreadResult struct {
	Series            []float64 `json:"-"`
	Mean              float64   `json:"mean"`
	Std               float64   `json:"std"`
	Min               float64   `json:"min"`
	Max               float64   `json:"max"`
	Current           float64   `json:"current"`
	DeviationFromMean float64   `json:"deviation_from_mean"`
}

// ZScoreResult standardises the spread against its rolling mean/std. The
// leading window-1 entries of Series are NaN (undefined, never 0). When
// Available is false the current point is undefined and Signal is unknown.
type ZScoreResult struct {
	Series    []float64 `json:"-"`
	Available bool      `json:"available"`
	Current   float64   `json:"current"`
	Mean      float64   `json:"mean"`
	Std       float64   `json:"std"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Signal    Signal    `json:"signal"`
}

// RollingCorrelationResult is the Pearson correlation over each sliding
// window, for spotting correlation breakdown over time.
type RollingCorrelationResult struct {
	Series    []float64 `json:"-"`
	Available bool      `json:"available"`
	Current   float64   `json:"current"`
	Mean      float64   `json:"mean"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
}

// PairAnalysisResult is rebuilt from scratch on every evaluation; sections
// carry their own availability so a weak cointegration sample does not
// invalidate correlation or z-score output.
type PairAnalysisResult struct {
	Symbol1            string                   `json:"symbol1"`
	Symbol2            string                   `json:"symbol2"`
	Timeframe          market.Timeframe         `json:"timeframe"`
	Timestamp          time.Time                `json:"timestamp"`
	DataPoints         int                      `json:"data_points"`
	Window             int                      `json:"window"`
	Correlation        CorrelationResult        `json:"correlation"`
	HedgeRatio         HedgeRatioResult         `json:"hedge_ratio"`
	Cointegration      CointegrationResult      `json:"cointegration"`
	Spread             SpreadResult             `json:"spread"`
	ZScore             ZScoreResult             `json:"zscore"`
	RollingCorrelation RollingCorrelationResult `json:"rolling_correlation"`
}

// AnalyzePair computes the full metric set for an aligned pair series.
// Hard failures are InsufficientDataError (fewer than 3 aligned points) and
// RegressionError (degenerate OLS input); everything else degrades
// per-section.
func AnalyzePair(ps *market.PairSeries, window int) (*PairAnalysisResult, error) {
	n := ps.Len()
	if n < market.MinPairPoints {
		return nil, &InsufficientDataError{Need: market.MinPairPoints, Got: n, What: "pair analysis"}
	}
	if window < MinWindow || window > MaxWindow {
		return nil, fmt.Errorf("rolling window %d outside [%d, %d]", window, MinWindow, MaxWindow)
	}

	res := &PairAnalysisResult{
		Symbol1:    ps.Symbol1,
		Symbol2:    ps.Symbol2,
		Timeframe:  ps.Timeframe,
		Timestamp:  ps.Timestamps[n-1],
		DataPoints: n,
		Window:     window,
	}

	hedge, err := fitHedgeRatio(ps.Close1, ps.Close2)
	if err != nil {
		return nil, err
	}
	res.HedgeRatio = hedge

	corr, err := correlate(ps.Close1, ps.Close2)
	if err != nil {
		return nil, err
	}
	res.Correlation = corr

	spread := make([]float64, n)
	for i := range spread {
		spread[i] = ps.Close1[i] - hedge.Ratio*ps.Close2[i]
	}
	res.Spread = spreadStats(spread)
	res.ZScore = spreadZScore(spread, window)
	res.Cointegration = testCointegration(spread)
	res.RollingCorrelation = rollingCorrelation(ps.Close1, ps.Close2, window)

	return res, nil
}

// fitHedgeRatio regresses close1 on close2 by ordinary least squares.
func fitHedgeRatio(y, x []float64) (HedgeRatioResult, error) {
	n := len(y)
	if n < 3 {
		return HedgeRatioResult{}, &RegressionError{Reason: fmt.Sprintf("need at least 3 paired points, got %d", n)}
	}

	mx, my := mean(x), mean(y)
	var sxx, sxy float64
	for i := 0; i < n; i++ {
		dx := x[i] - mx
		sxx += dx * dx
		sxy += dx * (y[i] - my)
	}
	if sxx == 0 {
		return HedgeRatioResult{}, &RegressionError{Reason: "regressor has zero variance"}
	}

	ratio := sxy / sxx
	intercept := my - ratio*mx

	var ssRes, ssTot float64
	residuals := make([]float64, n)
	for i := 0; i < n; i++ {
		resid := y[i] - (intercept + ratio*x[i])
		residuals[i] = resid
		ssRes += resid * resid
		dy := y[i] - my
		ssTot += dy * dy
	}

	rSquared := 1.0
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
	}

	// population std of residuals, matching the textbook residual sigma
	residualStd := math.Sqrt(ssRes / float64(n))

	return HedgeRatioResult{
		Ratio:       ratio,
		Intercept:   intercept,
		RSquared:    rSquared,
		ResidualStd: residualStd,
	}, nil
}

func correlate(a, b []float64) (CorrelationResult, error) {
	pearson, err := pearsonCorr(a, b)
	if err != nil {
		return CorrelationResult{}, err
	}
	spearman, err := spearmanCorr(a, b)
	if err != nil {
		return CorrelationResult{}, err
	}

	df := float64(len(a) - 2)
	return CorrelationResult{
		Pearson:        pearson,
		PearsonPValue:  corrPValue(pearson, df),
		Spearman:       spearman,
		SpearmanPValue: corrPValue(spearman, df),
		Strength:       correlationStrength(pearson),
	}, nil
}

func correlationStrength(pearson float64) string {
	abs := math.Abs(pearson)
	switch {
	case abs >= strengthExtremelyStrongCut:
		return StrengthExtremelyStrong
	case abs >= strengthVeryStrongCut:
		return StrengthVeryStrong
	case abs >= strengthStrongCut:
		return StrengthStrong
	case abs >= strengthModerateCut:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}

func pearsonCorr(a, b []float64) (float64, error) {
	n := len(a)
	if n < 3 {
		return 0, &InsufficientDataError{Need: 3, Got: n, What: "correlation"}
	}
	ma, mb := mean(a), mean(b)
	var saa, sbb, sab float64
	for i := 0; i < n; i++ {
		da, db := a[i]-ma, b[i]-mb
		saa += da * da
		sbb += db * db
		sab += da * db
	}
	if saa == 0 || sbb == 0 {
		return 0, &RegressionError{Reason: "constant series has no defined correlation"}
	}
	r := sab / math.Sqrt(saa*sbb)
	// clamp floating drift
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return r, nil
}

func spearmanCorr(a, b []float64) (float64, error) {
	return pearsonCorr(ranks(a), ranks(b))
}

// ranks assigns 1-based ranks with ties sharing their average rank.
func ranks(xs []float64) []float64 {
	n := len(xs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return xs[idx[i]] < xs[idx[j]] })

	out := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

// corrPValue is the two-sided p-value for a correlation coefficient under
// the t-distribution approximation.
func corrPValue(r float64, df float64) float64 {
	if df <= 0 {
		return math.NaN()
	}
	if math.Abs(r) >= 1 {
		return 0
	}
	t := r * math.Sqrt(df/(1-r*r))
	return tTestPValue(t, df)
}

func spreadStats(spread []float64) SpreadResult {
	lo, hi := minMax(spread)
	m := mean(spread)
	current := spread[len(spread)-1]
	return SpreadResult{
		Series:            spread,
		Mean:              m,
		Std:               sampleStd(spread),
		Min:               lo,
		Max:               hi,
		Current:           current,
		DeviationFromMean: current - m,
	}
}

func spreadZScore(spread []float64, window int) ZScoreResult {
	series := make([]float64, len(spread))
	means := rollingMean(spread, window)
	stds := rollingStd(spread, window)
	for i := range spread {
		if math.IsNaN(means[i]) || math.IsNaN(stds[i]) || stds[i] == 0 {
			series[i] = math.NaN()
			continue
		}
		series[i] = (spread[i] - means[i]) / stds[i]
	}

	current := series[len(series)-1]
	if math.IsNaN(current) {
		return ZScoreResult{Series: series, Available: false, Current: math.NaN(), Signal: SignalUnknown}
	}

	defined := validPoints(series)
	lo, hi := minMax(defined)
	return ZScoreResult{
		Series:    series,
		Available: true,
		Current:   current,
		Mean:      mean(defined),
		Std:       sampleStd(defined),
		Min:       lo,
		Max:       hi,
		Signal:    zScoreSignal(current),
	}
}

func zScoreSignal(z float64) Signal {
	switch {
	case z >= zScoreStrongCut:
		return SignalStrongShort
	case z <= -zScoreStrongCut:
		return SignalStrongLong
	case z >= zScoreCautionCut:
		return SignalCautionShort
	case z <= -zScoreCautionCut:
		return SignalCautionLong
	default:
		return SignalNeutral
	}
}

func testCointegration(spread []float64) CointegrationResult {
	if len(spread) < MinCointegrationPoints {
		return CointegrationResult{
			Available: false,
			Reason:    fmt.Sprintf("need at least %d points, got %d", MinCointegrationPoints, len(spread)),
		}
	}

	adf, err := adfTest(spread)
	if err != nil {
		return CointegrationResult{Available: false, Reason: err.Error()}
	}

	return CointegrationResult{
		Available:          true,
		Statistic:          adf.Stat,
		PValue:             adf.PValue,
		CriticalValues:     adf.Crit,
		Lag:                adf.Lag,
		CointegratedAt5Pct: adf.PValue < 0.05,
	}
}

func rollingCorrelation(a, b []float64, window int) RollingCorrelationResult {
	series := make([]float64, len(a))
	for i := range series {
		if i < window-1 {
			series[i] = math.NaN()
			continue
		}
		r, err := pearsonCorr(a[i-window+1:i+1], b[i-window+1:i+1])
		if err != nil {
			series[i] = math.NaN()
			continue
		}
		series[i] = r
	}

	defined := validPoints(series)
	if len(defined) == 0 {
		return RollingCorrelationResult{Series: series, Available: false, Current: math.NaN()}
	}

	lo, hi := minMax(defined)
	current := series[len(series)-1]
	return RollingCorrelationResult{
		Series:    series,
		Available: !math.IsNaN(current),
		Current:   current,
		Mean:      mean(defined),
		Min:       lo,
		Max:       hi,
	}
}
