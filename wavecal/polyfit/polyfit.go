// Package polyfit provides robust 1-D polynomial fitting with
// iterative single-worst outlier rejection, plus the per-order
// line-center cleaning pass built on top of it.
package polyfit

import (
	"errors"
	"math"

	"github.com/maorshutman/lm"
	"gonum.org/v1/gonum/mat"
)

// Errors returned by the fitting routines.
var (
	ErrUnderdetermined = errors.New("polyfit: fewer points than coefficients")
	ErrBadInput        = errors.New("polyfit: invalid input")
)

// Config bundles the rejection settings.
type Config struct {
	Epsilon    float64   // absolute residual rejection threshold
	MinReserve int       // rejection stops once this many points remain
	Weights    []float64 // optional per-point weights, nil means uniform
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the rejection defaults.
func DefaultConfig() Config {
	return Config{Epsilon: 0.002, MinReserve: -1}
}

// WithEpsilon sets the absolute residual threshold above which points
// are candidates for rejection.
func WithEpsilon(eps float64) Option {
	return func(cfg *Config) {
		if eps > 0 {
			cfg.Epsilon = eps
		}
	}
}

// WithMinReserve sets the minimum number of points the rejection loop
// must keep.
func WithMinReserve(n int) Option {
	return func(cfg *Config) { cfg.MinReserve = n }
}

// WithWeights sets per-point weights; a zero weight excludes the point
// from the fit without counting it as a rejection.
func WithWeights(w []float64) Option {
	return func(cfg *Config) { cfg.Weights = w }
}

// Eval evaluates a polynomial with coefficients ordered from the
// constant term upward.
func Eval(coeffs []float64, x float64) float64 {
	v := 0.0
	for i := len(coeffs) - 1; i >= 0; i-- {
		v = v*x + coeffs[i]
	}
	return v
}

// FitReject fits a degree-d polynomial to (xs, ys) while iteratively
// rejecting the single worst absolute-residual point. Each pass runs a
// least-absolute-residual fit on the retained points; rejection stops
// when no retained residual exceeds Epsilon or only MinReserve points
// remain. The returned coefficients come from an ordinary weighted
// least-squares fit over the survivors; kept marks the surviving
// points.
func FitReject(xs, ys []float64, degree int, opts ...Option) (coeffs []float64, kept []bool, err error) {
	if len(xs) != len(ys) || degree < 0 {
		return nil, nil, ErrBadInput
	}
	cfg := DefaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	n := len(xs)
	w := make([]float64, n)
	if cfg.Weights != nil {
		if len(cfg.Weights) != n {
			return nil, nil, ErrBadInput
		}
		copy(w, cfg.Weights)
	} else {
		for i := range w {
			w[i] = 1
		}
	}

	reserved := make([]bool, n)
	for i := range reserved {
		reserved[i] = true
	}

	for countTrue(reserved) > cfg.MinReserve {
		p, err := robustSolve(xs, ys, w, reserved, degree)
		if err != nil {
			return nil, nil, err
		}

		// Residuals over every point still carrying weight; rejected
		// points are out of the running for the worst-offender pick.
		worst, worstAbs := -1, 0.0
		anyBad := false
		for i := range xs {
			if w[i] <= 0 {
				continue
			}
			res := math.Abs(ys[i] - Eval(p, xs[i]))
			if reserved[i] && res > cfg.Epsilon {
				anyBad = true
			}
			if res > worstAbs {
				worst, worstAbs = i, res
			}
		}
		if !anyBad || worst < 0 {
			break
		}
		reserved[worst] = false
		w[worst] = 0
	}

	coeffs, err = weightedLeastSquares(xs, ys, w, reserved, degree)
	if err != nil {
		return nil, nil, err
	}

	kept = make([]bool, n)
	for i := range kept {
		kept[i] = w[i] > 0
	}
	return coeffs, kept, nil
}

func countTrue(mask []bool) int {
	n := 0
	for _, b := range mask {
		if b {
			n++
		}
	}
	return n
}

// robustSolve minimizes sum of |res|*w over the reserved points from a
// zero start, giving the least-absolute-residual estimate used for
// outlier detection.
func robustSolve(xs, ys, w []float64, reserved []bool, degree int) ([]float64, error) {
	var sx, sy, sw []float64
	for i := range xs {
		if reserved[i] {
			sx = append(sx, xs[i])
			sy = append(sy, ys[i])
			sw = append(sw, w[i])
		}
	}
	if len(sx) < degree+1 {
		return nil, ErrUnderdetermined
	}

	f := func(dst, p []float64) {
		for i := range sx {
			dst[i] = math.Sqrt(math.Abs(Eval(p, sx[i])-sy[i])) * sw[i]
		}
	}
	jacobian := lm.NumJac{Func: f}
	prob := lm.LMProblem{
		Dim:        degree + 1,
		Size:       len(sx),
		Func:       f,
		Jac:        jacobian.Jac,
		InitParams: make([]float64, degree+1),
		Tau:        1e-6,
		Eps1:       1e-8,
		Eps2:       1e-8,
	}
	res, err := lm.LM(prob, &lm.Settings{Iterations: 200, ObjectiveTol: 1e-16})
	if err != nil {
		return nil, err
	}
	return res.X, nil
}

// weightedLeastSquares solves the ordinary polynomial fit over the
// reserved points with rows scaled by their weights.
func weightedLeastSquares(xs, ys, w []float64, reserved []bool, degree int) ([]float64, error) {
	var sx, sy, sw []float64
	for i := range xs {
		if reserved[i] {
			sx = append(sx, xs[i])
			sy = append(sy, ys[i])
			sw = append(sw, w[i])
		}
	}
	m, nc := len(sx), degree+1
	if m < nc {
		return nil, ErrUnderdetermined
	}

	a := mat.NewDense(m, nc, nil)
	b := mat.NewVecDense(m, nil)
	for i := 0; i < m; i++ {
		v := sw[i]
		for j := 0; j < nc; j++ {
			a.Set(i, j, v)
			v *= sx[i]
		}
		b.SetVec(i, sy[i]*sw[i])
	}

	var qr mat.QR
	qr.Factorize(a)
	var sol mat.VecDense
	if err := qr.SolveVecTo(&sol, false, b); err != nil {
		return nil, err
	}
	coeffs := make([]float64, nc)
	for j := 0; j < nc; j++ {
		coeffs[j] = sol.AtVec(j)
	}
	return coeffs, nil
}

// CleanCenters vets refined line centers order by order. For each
// order it fits a low-degree trend of the center-minus-catalog residual
// against pixel coordinate and rejects outliers, keeping at least
// reserve lines per order. Lines with non-finite pixel or center are
// dropped outright. The returned mask is global over the input slices.
func CleanCenters(pixel, order, catalog, center []float64, degree int, eps float64, reserve int) ([]bool, error) {
	n := len(pixel)
	if len(order) != n || len(catalog) != n || len(center) != n {
		return nil, ErrBadInput
	}

	good := make([]bool, n)
	for _, o := range uniqueValues(order) {
		var idx []int
		var xs, ys []float64
		for i := 0; i < n; i++ {
			if order[i] != o {
				continue
			}
			if !isFinite(pixel[i]) || !isFinite(center[i]) {
				continue
			}
			idx = append(idx, i)
			xs = append(xs, pixel[i])
			ys = append(ys, center[i]-catalog[i])
		}
		if len(xs) == 0 {
			continue
		}
		if len(xs) <= degree+1 {
			// Too few lines to vet; keep them all.
			for _, i := range idx {
				good[i] = true
			}
			continue
		}
		_, kept, err := FitReject(xs, ys, degree,
			WithEpsilon(eps), WithMinReserve(reserve))
		if err != nil {
			return nil, err
		}
		for k, i := range idx {
			if kept[k] {
				good[i] = true
			}
		}
	}
	return good, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func uniqueValues(vals []float64) []float64 {
	seen := map[float64]bool{}
	var out []float64
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
