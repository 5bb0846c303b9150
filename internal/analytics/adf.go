package analytics

import (
	"math"
)

// Augmented Dickey-Fuller unit-root test with a constant term, lag order
// chosen by AIC. Critical values and the approximate p-value follow the
// MacKinnon (1994, 2010) response-surface coefficients for the
// constant-only case.

type adfResult struct {
	Stat   float64
	PValue float64
	Lag    int
	NObs   int
	Crit   map[string]float64
}

// MacKinnon 2010 finite-sample critical value coefficients, constant case.
var adfCritCoeffs = map[string][4]float64{
	"1%":  {-3.43035, -6.5393, -16.786, -79.433},
	"5%":  {-2.86154, -2.8903, -4.234, -40.04},
	"10%": {-2.56677, -1.5384, -2.809, 0},
}

// MacKinnon 1994 p-value polynomial coefficients, constant case.
var (
	adfTauMax    = 2.74
	adfTauMin    = -18.83
	adfTauStar   = -1.61
	adfTauSmallP = []float64{2.1659, 1.4412, 0.038269}
	adfTauLargeP = []float64{1.7339, 0.93202, -0.12745, -0.010368}
)

func adfTest(y []float64) (adfResult, error) {
	n := len(y)
	if n < 8 {
		return adfResult{}, &InsufficientDataError{Need: 8, Got: n, What: "ADF test"}
	}

	maxLag := int(math.Floor(12 * math.Pow(float64(n)/100, 0.25)))
	// keep enough observations for the largest candidate regression
	if limit := (n - 3) / 3; maxLag > limit {
		maxLag = limit
	}
	if maxLag < 0 {
		maxLag = 0
	}

	lag := adfSelectLag(y, maxLag)

	stat, nobs, err := adfTStat(y, lag, lag)
	if err != nil {
		return adfResult{}, err
	}

	crit := make(map[string]float64, len(adfCritCoeffs))
	fn := float64(nobs)
	for level, b := range adfCritCoeffs {
		crit[level] = b[0] + b[1]/fn + b[2]/(fn*fn) + b[3]/(fn*fn*fn)
	}

	return adfResult{
		Stat:   stat,
		PValue: adfPValue(stat),
		Lag:    lag,
		NObs:   nobs,
		Crit:   crit,
	}, nil
}

// adfSelectLag picks the lag order minimising AIC over a common sample.
func adfSelectLag(y []float64, maxLag int) int {
	bestLag := 0
	bestAIC := math.Inf(1)
	for k := 0; k <= maxLag; k++ {
		aic, err := adfAIC(y, k, maxLag)
		if err != nil {
			continue
		}
		if aic < bestAIC {
			bestAIC = aic
			bestLag = k
		}
	}
	return bestLag
}

// adfDesign builds the regression Δy_t = α + ρ·y_{t-1} + Σ φ_i Δy_{t-i}.
// trim fixes how many leading differences are discarded so candidate lag
// orders are compared on the same sample.
func adfDesign(y []float64, lag, trim int) (X [][]float64, dep []float64) {
	dy := make([]float64, len(y)-1)
	for i := 1; i < len(y); i++ {
		dy[i-1] = y[i] - y[i-1]
	}

	start := trim // index into dy
	for t := start; t < len(dy); t++ {
		row := make([]float64, 0, lag+2)
		row = append(row, 1, y[t]) // y[t] is the level lagged one step behind dy[t]
		for i := 1; i <= lag; i++ {
			row = append(row, dy[t-i])
		}
		X = append(X, row)
		dep = append(dep, dy[t])
	}
	return X, dep
}

func adfAIC(y []float64, lag, trim int) (float64, error) {
	X, dep := adfDesign(y, lag, trim)
	nobs := len(dep)
	nparams := lag + 2
	if nobs <= nparams {
		return 0, &InsufficientDataError{Need: nparams + 1, Got: nobs, What: "ADF regression"}
	}
	_, ssr, _, err := olsSolve(X, dep)
	if err != nil {
		return 0, err
	}
	if ssr <= 0 {
		ssr = 1e-300
	}
	return float64(nobs)*math.Log(ssr/float64(nobs)) + 2*float64(nparams), nil
}

func adfTStat(y []float64, lag, trim int) (stat float64, nobs int, err error) {
	X, dep := adfDesign(y, lag, trim)
	nobs = len(dep)
	nparams := lag + 2
	if nobs <= nparams {
		return 0, 0, &InsufficientDataError{Need: nparams + 1, Got: nobs, What: "ADF regression"}
	}

	beta, ssr, xtxInv, err := olsSolve(X, dep)
	if err != nil {
		return 0, 0, err
	}

	sigma2 := ssr / float64(nobs-nparams)
	se := math.Sqrt(sigma2 * xtxInv[1][1])
	if se == 0 || math.IsNaN(se) {
		return 0, 0, &RegressionError{Reason: "zero standard error in ADF regression"}
	}
	return beta[1] / se, nobs, nil
}

func adfPValue(stat float64) float64 {
	switch {
	case stat > adfTauMax:
		return 1
	case stat < adfTauMin:
		return 0
	case stat <= adfTauStar:
		return normCDF(polyval(adfTauSmallP, stat))
	default:
		return normCDF(polyval(adfTauLargeP, stat))
	}
}

func polyval(coeffs []float64, x float64) float64 {
	sum := 0.0
	pow := 1.0
	for _, c := range coeffs {
		sum += c * pow
		pow *= x
	}
	return sum
}

// olsSolve fits y = Xβ by normal equations, returning the coefficient
// vector, the residual sum of squares, and (X'X)⁻¹.
func olsSolve(X [][]float64, y []float64) (beta []float64, ssr float64, xtxInv [][]float64, err error) {
	n := len(X)
	if n == 0 {
		return nil, 0, nil, &RegressionError{Reason: "empty design matrix"}
	}
	k := len(X[0])

	xtx := make([][]float64, k)
	xty := make([]float64, k)
	for i := 0; i < k; i++ {
		xtx[i] = make([]float64, k)
	}
	for r, row := range X {
		for i := 0; i < k; i++ {
			xty[i] += row[i] * y[r]
			for j := 0; j < k; j++ {
				xtx[i][j] += row[i] * row[j]
			}
		}
	}

	xtxInv, err = invertMatrix(xtx)
	if err != nil {
		return nil, 0, nil, err
	}

	beta = make([]float64, k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			beta[i] += xtxInv[i][j] * xty[j]
		}
	}

	for r, row := range X {
		pred := 0.0
		for i := 0; i < k; i++ {
			pred += row[i] * beta[i]
		}
		resid := y[r] - pred
		ssr += resid * resid
	}
	return beta, ssr, xtxInv, nil
}

// invertMatrix inverts a small symmetric matrix by Gauss-Jordan elimination
// with partial pivoting.
func invertMatrix(m [][]float64) ([][]float64, error) {
	k := len(m)
	a := make([][]float64, k)
	inv := make([][]float64, k)
	for i := 0; i < k; i++ {
		a[i] = append([]float64(nil), m[i]...)
		inv[i] = make([]float64, k)
		inv[i][i] = 1
	}

	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, &RegressionError{Reason: "singular design matrix"}
		}
		a[col], a[pivot] = a[pivot], a[col]
		inv[col], inv[pivot] = inv[pivot], inv[col]

		scale := a[col][col]
		for j := 0; j < k; j++ {
			a[col][j] /= scale
			inv[col][j] /= scale
		}
		for r := 0; r < k; r++ {
			if r == col {
				continue
			}
			factor := a[r][col]
			if factor == 0 {
				continue
			}
			for j := 0; j < k; j++ {
				a[r][j] -= factor * a[col][j]
				inv[r][j] -= factor * inv[col][j]
			}
		}
	}
	return inv, nil
}
