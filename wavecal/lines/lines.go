package lines

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/interp"

	"github.com/cwbudde/algo-wavecal/internal/lsq"
	"github.com/cwbudde/algo-wavecal/wavecal/grid"
)

// Errors returned by line refinement.
var (
	ErrShapeMismatch = errors.New("lines: input grids have different shapes")
	ErrNotMonotonic  = errors.New("lines: wavelength guess not monotonic")
	ErrNoOrders      = errors.New("lines: no usable orders")
)

// OrderError reports an order whose contribution was lost.
type OrderError struct {
	Row   int // grid row of the order
	Order int // physical order index
	Err   error
}

func (e OrderError) Error() string {
	return fmt.Sprintf("lines: order %d (row %d): %v", e.Order, e.Row, e.Err)
}

func (e OrderError) Unwrap() error { return e.Err }

// Set holds refined line positions as parallel slices, one entry per
// catalog line attempted. Entries for failed fits carry NaN parameters
// but keep their slot.
type Set struct {
	Pixel      []float64    // refined pixel coordinate
	Order      []float64    // physical order index
	Wavelength []float64    // catalog wavelength
	Params     [][4]float64 // baseline, amplitude, center, width
	Variances  [][4]float64 // variance estimate per parameter

	Dropped []OrderError // orders lost to fatal per-order conditions
}

// Len returns the number of line slots in the set.
func (s *Set) Len() int { return len(s.Pixel) }

// Config bundles the refinement settings.
type Config struct {
	FitHalfWidth float64 // wavelength half window around each catalog line
	CenterTol    float64 // allowed centroid offset from the catalog wavelength
	Workers      int     // parallel order workers
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the refinement defaults.
func DefaultConfig() Config {
	return Config{
		FitHalfWidth: 5,
		CenterTol:    5,
		Workers:      runtime.GOMAXPROCS(0),
	}
}

// WithFitHalfWidth sets the wavelength half window used to cut the
// local spectrum around each catalog line.
func WithFitHalfWidth(w float64) Option {
	return func(cfg *Config) {
		if w > 0 {
			cfg.FitHalfWidth = w
		}
	}
}

// WithCenterTol sets the allowed centroid offset from the catalog
// wavelength.
func WithCenterTol(tol float64) Option {
	return func(cfg *Config) {
		if tol > 0 {
			cfg.CenterTol = tol
		}
	}
}

// WithWorkers bounds the number of orders refined concurrently.
func WithWorkers(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.Workers = n
		}
	}
}

// orderResult is the contribution of a single order. A nil result
// means the order had no catalog lines in range.
type orderResult struct {
	pixel      []float64
	order      []float64
	wavelength []float64
	params     [][4]float64
	variances  [][4]float64
}

// Refine fits every in-range catalog line of every order and recovers
// its pixel coordinate. guessWave and spectrum share one shape;
// orderMap supplies the physical order index per row.
func Refine(guessWave, orderMap, spectrum *grid.Grid, catalog []float64, opts ...Option) (*Set, error) {
	if guessWave == nil || spectrum == nil || orderMap == nil {
		return nil, ErrShapeMismatch
	}
	if !guessWave.SameShape(spectrum) || orderMap.Rows != guessWave.Rows {
		return nil, ErrShapeMismatch
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	rows := guessWave.Rows
	results := make([]*orderResult, rows)
	failures := make([]error, rows)

	var g errgroup.Group
	g.SetLimit(cfg.Workers)
	for r := 0; r < rows; r++ {
		g.Go(func() error {
			res, err := refineOrder(
				guessWave.Row(r),
				spectrum.Row(r),
				filterCatalog(catalog, guessWave.Row(r)),
				orderMap.At(r, 0),
				cfg,
			)
			results[r] = res
			failures[r] = err
			return nil
		})
	}
	// Workers never return errors; per-order failures land in failures.
	_ = g.Wait()

	set := &Set{}
	for r := 0; r < rows; r++ {
		if failures[r] != nil {
			set.Dropped = append(set.Dropped, OrderError{
				Row:   r,
				Order: int(orderMap.At(r, 0)),
				Err:   failures[r],
			})
			continue
		}
		if results[r] == nil {
			continue // no catalog lines in range; not an error
		}
		set.Pixel = append(set.Pixel, results[r].pixel...)
		set.Order = append(set.Order, results[r].order...)
		set.Wavelength = append(set.Wavelength, results[r].wavelength...)
		set.Params = append(set.Params, results[r].params...)
		set.Variances = append(set.Variances, results[r].variances...)
	}

	if set.Len() == 0 && len(set.Dropped) == rows {
		return set, ErrNoOrders
	}
	return set, nil
}

// filterCatalog keeps catalog lines strictly inside the order's
// wavelength range with a one-unit margin on each side.
func filterCatalog(catalog, waveRow []float64) []float64 {
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range waveRow {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	var out []float64
	for _, w := range catalog {
		if w > min+1 && w < max-1 {
			out = append(out, w)
		}
	}
	return out
}

// gaussPoly0 is the 4-parameter line model: a constant baseline plus a
// normalized Gaussian scaled by an area amplitude.
func gaussPoly0(x float64, p []float64) float64 {
	base, amp, center, width := p[0], p[1], p[2], p[3]
	d := (x - center) / width
	return base + amp/(math.Sqrt(2*math.Pi)*width)*math.Exp(-0.5*d*d)
}

func refineOrder(waveRow, specRow, orderLines []float64, orderIdx float64, cfg Config) (*orderResult, error) {
	if len(orderLines) == 0 {
		return nil, nil
	}

	res := &orderResult{
		pixel:      make([]float64, len(orderLines)),
		order:      make([]float64, len(orderLines)),
		wavelength: append([]float64(nil), orderLines...),
		params:     make([][4]float64, len(orderLines)),
		variances:  make([][4]float64, len(orderLines)),
	}

	for i, line := range orderLines {
		var xs, ys []float64
		for j, w := range waveRow {
			if w > line-cfg.FitHalfWidth && w < line+cfg.FitHalfWidth {
				xs = append(xs, w)
				ys = append(ys, specRow[j])
			}
		}

		p0 := []float64{0, 1e5, line, 0.1}
		bounds := lsq.Bounds{
			Lo: []float64{-1, 0, line - cfg.CenterTol, 0.01},
			Hi: []float64{math.Inf(1), math.Inf(1), line + cfg.CenterTol, 2},
		}
		params, variances, err := lsq.CurveFit(gaussPoly0, xs, ys, p0, bounds)
		if err != nil {
			// Per-line failure is non-fatal; mark the slot and move on.
			res.params[i] = [4]float64{math.NaN(), math.NaN(), math.NaN(), math.NaN()}
			res.variances[i] = res.params[i]
			continue
		}
		copy(res.params[i][:], params)
		copy(res.variances[i][:], variances)
	}

	invert, err := pixelInterpolant(waveRow)
	if err != nil {
		return nil, err
	}
	for i := range res.pixel {
		res.order[i] = orderIdx
		center := res.params[i][2]
		if math.IsNaN(center) {
			res.pixel[i] = math.NaN()
			continue
		}
		res.pixel[i] = invert.Predict(center)
	}
	return res, nil
}

// pixelInterpolant builds the wavelength -> pixel inversion spline for
// one order. The guess must be strictly monotonic; decreasing guesses
// are fit on reversed arrays. Equal adjacent samples count as
// non-monotonic too: the spline needs strictly ordered knots, and a
// flat run in a dispersion solution indicates upstream corruption just
// as a reversal does.
func pixelInterpolant(waveRow []float64) (interp.Predictor, error) {
	inc, dec := true, true
	for i := 1; i < len(waveRow); i++ {
		if waveRow[i] <= waveRow[i-1] {
			inc = false
		}
		if waveRow[i] >= waveRow[i-1] {
			dec = false
		}
	}

	xs := make([]float64, len(waveRow))
	ys := make([]float64, len(waveRow))
	switch {
	case inc:
		copy(xs, waveRow)
		for i := range ys {
			ys[i] = float64(i)
		}
	case dec:
		n := len(waveRow)
		for i := range xs {
			xs[i] = waveRow[n-1-i]
			ys[i] = float64(n - 1 - i)
		}
	default:
		return nil, ErrNotMonotonic
	}

	var spline interp.NaturalCubic
	if err := spline.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotMonotonic, err)
	}
	return &spline, nil
}
