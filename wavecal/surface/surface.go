package surface

import (
	"errors"
	"fmt"
	"math"

	"github.com/maorshutman/lm"

	"github.com/cwbudde/algo-wavecal/internal/nanstats"
)

// Errors returned by the surface fit.
var (
	ErrUnderdetermined = errors.New("surface: fewer usable lines than free coefficients")
	ErrBadInput        = errors.New("surface: invalid input")
	ErrNoConvergence   = errors.New("surface: solver did not converge")
)

// Config bundles the fit settings.
type Config struct {
	DegX          int     // polynomial degree along the pixel axis
	DegY          int     // polynomial degree along the order axis
	MaxDev        float64 // wavelength deviation threshold for rejection
	Iterations    int     // rejection iteration cap, 0 selects bulk mode
	Robust        bool    // robust loss for the refits
	MinPerOrder   int     // per-order floor the rejection loop must keep
	WidthGate     float64 // pre-filter cap on the fitted line width
	CenterVarGate float64 // pre-filter cap on the center variance
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the fit defaults.
func DefaultConfig() Config {
	return Config{
		DegX:          3,
		DegY:          5,
		MaxDev:        100,
		Iterations:    400,
		MinPerOrder:   10,
		WidthGate:     1.0,
		CenterVarGate: 1.0,
	}
}

// WithDegrees sets the polynomial degrees along the pixel and order
// axes.
func WithDegrees(degX, degY int) Option {
	return func(cfg *Config) {
		if degX >= 0 && degY >= 0 {
			cfg.DegX, cfg.DegY = degX, degY
		}
	}
}

// WithMaxDeviation sets the wavelength deviation above which a line is
// a rejection candidate.
func WithMaxDeviation(dev float64) Option {
	return func(cfg *Config) {
		if dev > 0 {
			cfg.MaxDev = dev
		}
	}
}

// WithIterations caps the rejection loop; zero selects the
// fit / bulk-reject / robust-refit mode.
func WithIterations(n int) Option {
	return func(cfg *Config) {
		if n >= 0 {
			cfg.Iterations = n
		}
	}
}

// WithRobust switches the refits to the least-absolute-residual loss.
func WithRobust(robust bool) Option {
	return func(cfg *Config) { cfg.Robust = robust }
}

// WithMinPerOrder sets the per-order retained-line floor.
func WithMinPerOrder(n int) Option {
	return func(cfg *Config) {
		if n >= 0 {
			cfg.MinPerOrder = n
		}
	}
}

// WithQualityGates sets the pre-filter caps on fitted width and center
// variance.
func WithQualityGates(width, centerVar float64) Option {
	return func(cfg *Config) {
		if width > 0 {
			cfg.WidthGate = width
		}
		if centerVar > 0 {
			cfg.CenterVarGate = centerVar
		}
	}
}

// activeCoeffs counts the coefficients the truncation keeps.
func activeCoeffs(degX, degY int) int {
	gate := degX
	if degY > gate {
		gate = degY
	}
	n := 0
	for i := 0; i <= degX; i++ {
		for j := 0; j <= degY; j++ {
			if i+j < gate {
				n++
			}
		}
	}
	return n
}

// polyval2D evaluates the truncated tensor polynomial. Coefficients are
// row-major over (degX+1) x (degY+1); terms with combined degree at or
// above max(degX, degY) are inactive.
func polyval2D(x, y float64, coeffs []float64, degX, degY int) float64 {
	gate := degX
	if degY > gate {
		gate = degY
	}
	v := 0.0
	k := 0
	xp := 1.0
	for i := 0; i <= degX; i++ {
		yp := 1.0
		for j := 0; j <= degY; j++ {
			if i+j < gate {
				v += coeffs[k] * xp * yp
			}
			yp *= y
			k++
		}
		xp *= x
	}
	return v
}

// Fit solves the dispersion surface from refined lines. params and
// variances follow the refiner layout (baseline, amplitude, center,
// width); good optionally pre-masks lines (nil keeps all). The returned
// mask marks, over the input slices, the lines that survived both the
// quality pre-filter and the rejection loop.
func Fit(pixel, order, wavelength []float64, params, variances [][4]float64, good []bool, opts ...Option) (*Model, []bool, error) {
	n := len(pixel)
	if len(order) != n || len(wavelength) != n || len(params) != n || len(variances) != n {
		return nil, nil, ErrBadInput
	}
	if good != nil && len(good) != n {
		return nil, nil, ErrBadInput
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	// Quality pre-filter. NaN parameters fail the gates naturally.
	var idx []int
	var cx, cy, cw, w []float64
	for i := 0; i < n; i++ {
		if good != nil && !good[i] {
			continue
		}
		if !isFinite(pixel[i]) || !(params[i][3] < cfg.WidthGate) || !(variances[i][2] < cfg.CenterVarGate) {
			continue
		}
		idx = append(idx, i)
		cx = append(cx, pixel[i])
		cy = append(cy, order[i])
		cw = append(cw, wavelength[i])
		if params[i][1]/params[i][0] > 0 {
			w = append(w, 1)
		} else {
			w = append(w, 0)
		}
	}

	free := activeCoeffs(cfg.DegX, cfg.DegY)
	if len(idx) < free {
		return nil, nil, fmt.Errorf("%w: %d lines, %d coefficients",
			ErrUnderdetermined, len(idx), free)
	}

	product := make([]float64, len(cw))
	for i := range cw {
		product[i] = cw[i] * cy[i]
	}
	coordScaler := NewScaler(cx)
	orderScaler := NewScaler(cy)
	productScaler := NewScaler(product)
	if coordScaler.Std == 0 || orderScaler.Std == 0 || productScaler.Std == 0 {
		return nil, nil, fmt.Errorf("%w: degenerate input spread", ErrBadInput)
	}

	xs := make([]float64, len(cx))
	ys := make([]float64, len(cy))
	zs := make([]float64, len(product))
	for i := range cx {
		xs[i] = coordScaler.Standardize(cx[i])
		ys[i] = orderScaler.Standardize(cy[i])
		zs[i] = productScaler.Standardize(product[i])
	}

	// Working copies nulled out as lines are rejected.
	cwWork := append([]float64(nil), cw...)

	solve := func(init []float64, robust bool) ([]float64, error) {
		return solveSurface(xs, ys, zs, w, init, cfg.DegX, cfg.DegY, robust)
	}

	nCoeffs := (cfg.DegX + 1) * (cfg.DegY + 1)
	x0, err := solve(make([]float64, nCoeffs), false)
	if err != nil {
		return nil, nil, err
	}

	coeffs := x0
	if cfg.Iterations > 0 {
		for loop := 0; loop < cfg.Iterations; loop++ {
			coeffs, err = solve(x0, cfg.Robust)
			if err != nil {
				return nil, nil, err
			}
			dev := deviations(xs, ys, cy, cwWork, coeffs, cfg.DegX, cfg.DegY, productScaler)
			worst := pickWorst(dev, cy, w, cfg.MaxDev, cfg.MinPerOrder)
			if worst < 0 {
				break
			}
			w[worst] = 0
			zs[worst] = 0
			cwWork[worst] = math.NaN()
		}
	} else {
		coeffs, err = solve(x0, cfg.Robust)
		if err != nil {
			return nil, nil, err
		}
		dev := deviations(xs, ys, cy, cwWork, coeffs, cfg.DegX, cfg.DegY, productScaler)
		for i, d := range dev {
			if isFinite(d) && d > cfg.MaxDev {
				w[i] = 0
				zs[i] = 0
				cwWork[i] = math.NaN()
			}
		}
		coeffs, err = solve(x0, true)
		if err != nil {
			return nil, nil, err
		}
	}

	retained := make([]bool, n)
	for k, i := range idx {
		retained[i] = isFinite(cwWork[k])
	}

	model := &Model{
		Coeffs:  coeffs,
		DegX:    cfg.DegX,
		DegY:    cfg.DegY,
		Coord:   coordScaler,
		Order:   orderScaler,
		Product: productScaler,
	}
	return model, retained, nil
}

// solveSurface runs one weighted least-squares solve in standardized
// space. Zero-weight points contribute nothing.
func solveSurface(xs, ys, zs, w, init []float64, degX, degY int, robust bool) ([]float64, error) {
	f := func(dst, p []float64) {
		for i := range xs {
			if w[i] <= 0 {
				dst[i] = 0
				continue
			}
			d := (polyval2D(xs[i], ys[i], p, degX, degY) - zs[i]) * w[i]
			if robust {
				d = math.Sqrt(math.Abs(d))
			}
			dst[i] = d
		}
	}
	jacobian := lm.NumJac{Func: f}
	prob := lm.LMProblem{
		Dim:        len(init),
		Size:       len(xs),
		Func:       f,
		Jac:        jacobian.Jac,
		InitParams: append([]float64(nil), init...),
		Tau:        1e-6,
		Eps1:       1e-8,
		Eps2:       1e-8,
	}
	res, err := lm.LM(prob, &lm.Settings{Iterations: 200, ObjectiveTol: 1e-16})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoConvergence, err)
	}
	return res.X, nil
}

// deviations returns each line's absolute offset of the wavelength
// residual from the median residual. Rejected lines carry NaN.
func deviations(xs, ys, cy, cw, coeffs []float64, degX, degY int, product Scaler) []float64 {
	diff := make([]float64, len(xs))
	for i := range xs {
		fitted := product.Inverse(polyval2D(xs[i], ys[i], coeffs, degX, degY)) / cy[i]
		diff[i] = fitted - cw[i]
	}
	med := nanstats.Median(diff)
	dev := make([]float64, len(diff))
	for i, d := range diff {
		dev[i] = math.Abs(d - med)
	}
	return dev
}

// pickWorst returns the index of the single worst rejection candidate,
// or -1 when none qualifies. A line qualifies only if its deviation
// exceeds maxDev and its order would keep more than minPerOrder
// weighted lines.
func pickWorst(dev, cy, w []float64, maxDev float64, minPerOrder int) int {
	left := map[float64]int{}
	for i := range cy {
		if w[i] > 0 {
			left[cy[i]]++
		}
	}
	worst, worstDev := -1, 0.0
	for i, d := range dev {
		if w[i] <= 0 || !isFinite(d) {
			continue
		}
		if d > maxDev && left[cy[i]] > minPerOrder && d > worstDev {
			worst, worstDev = i, d
		}
	}
	return worst
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
