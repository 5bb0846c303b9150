package analytics

import (
	"math"
	"testing"
)

// pseudoNoise is a deterministic stand-in for random draws in [-0.5, 0.5).
func pseudoNoise(i int) float64 {
	x := math.Sin(float64(i)*12.9898) * 43758.5453
	return x - math.Floor(x) - 0.5
}

func TestADFStationarySeriesIsCointegrated(t *testing.T) {
	// strongly mean-reverting: alternating sign with deterministic wobble
	n := 60
	y := make([]float64, n)
	for i := range y {
		sign := 1.0
		if i%2 == 1 {
			sign = -1
		}
		y[i] = sign * (1 + 0.3*pseudoNoise(i))
	}

	res := testCointegration(y)
	if !res.Available {
		t.Fatalf("cointegration unavailable: %s", res.Reason)
	}
	if res.PValue >= 0.05 {
		t.Fatalf("pvalue = %v, want < 0.05 for a stationary series", res.PValue)
	}
	if !res.CointegratedAt5Pct {
		t.Fatal("stationary series should be flagged cointegrated at 5%")
	}
	if res.Statistic >= res.CriticalValues["5%"] {
		t.Fatalf("statistic %v should sit below the 5%% critical value %v", res.Statistic, res.CriticalValues["5%"])
	}
}

func TestADFRandomWalkLessStationaryThanAlternating(t *testing.T) {
	n := 60
	walk := make([]float64, n)
	level := 0.0
	for i := range walk {
		level += pseudoNoise(i * 7)
		walk[i] = level
	}
	alternating := make([]float64, n)
	for i := range alternating {
		sign := 1.0
		if i%2 == 1 {
			sign = -1
		}
		alternating[i] = sign * (1 + 0.3*pseudoNoise(i))
	}

	resWalk := testCointegration(walk)
	resAlt := testCointegration(alternating)
	if !resWalk.Available || !resAlt.Available {
		t.Fatalf("both tests should run: walk=%v alt=%v", resWalk.Reason, resAlt.Reason)
	}
	if resAlt.Statistic >= resWalk.Statistic {
		t.Fatalf("alternating statistic %v should be more negative than walk %v", resAlt.Statistic, resWalk.Statistic)
	}
}

func TestADFCriticalValuesOrdered(t *testing.T) {
	y := make([]float64, 40)
	for i := range y {
		y[i] = pseudoNoise(i)
	}
	res, err := adfTest(y)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !(res.Crit["1%"] < res.Crit["5%"] && res.Crit["5%"] < res.Crit["10%"]) {
		t.Fatalf("critical values out of order: %v", res.Crit)
	}
	if res.PValue < 0 || res.PValue > 1 {
		t.Fatalf("pvalue out of range: %v", res.PValue)
	}
}

func TestTTestPValueSanity(t *testing.T) {
	if p := tTestPValue(0, 10); math.Abs(p-1) > 1e-9 {
		t.Fatalf("p(t=0) = %v, want 1", p)
	}
	if p := tTestPValue(8, 30); p > 1e-6 {
		t.Fatalf("p(t=8, df=30) = %v, want ~0", p)
	}
	pPos := tTestPValue(2.2, 15)
	pNeg := tTestPValue(-2.2, 15)
	if math.Abs(pPos-pNeg) > 1e-12 {
		t.Fatalf("two-sided p-value should be symmetric: %v vs %v", pPos, pNeg)
	}
}

func TestRegIncBetaUniformCase(t *testing.T) {
	// I_x(1, 1) = x
	for _, x := range []float64{0.1, 0.25, 0.5, 0.9} {
		if got := regIncBeta(1, 1, x); math.Abs(got-x) > 1e-9 {
			t.Fatalf("I_%v(1,1) = %v", x, got)
		}
	}
}
