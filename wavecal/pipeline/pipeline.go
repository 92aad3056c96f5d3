// Package pipeline chains the calibration stages into a single run:
// sanitize the arc exposure, estimate its grid shift against the
// template, remap the template's wavelength and order maps, refine the
// catalog lines, vet the refined centers, and fit the dispersion
// surface.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwbudde/algo-wavecal/wavecal/grid"
	"github.com/cwbudde/algo-wavecal/wavecal/lines"
	"github.com/cwbudde/algo-wavecal/wavecal/polyfit"
	"github.com/cwbudde/algo-wavecal/wavecal/remap"
	"github.com/cwbudde/algo-wavecal/wavecal/sanitize"
	"github.com/cwbudde/algo-wavecal/wavecal/surface"
	"github.com/cwbudde/algo-wavecal/wavecal/template"
	"github.com/cwbudde/algo-wavecal/wavecal/xcorr"
)

// Errors returned by a calibration run.
var (
	ErrEmptyInput   = errors.New("pipeline: empty input")
	ErrEmptyCatalog = errors.New("pipeline: empty line catalog")
)

// Config bundles the run settings.
type Config struct {
	Saturation    float64 // sanitization saturation threshold
	ConvLen       int     // sanitization halo half width in pixels
	MaxPixelShift int     // shift search range along the pixel axis
	MaxOrderShift int     // shift search range along the order axis
	CoarsePrescan bool    // widen the pixel range from an FFT prescan

	CleanDegree  int     // per-order center-vetting polynomial degree
	CleanEpsilon float64 // center-vetting residual threshold
	CleanReserve int     // minimum lines the vetting keeps per order
	SkipClean    bool    // bypass the center-vetting stage

	LineOptions    []lines.Option
	SurfaceOptions []surface.Option

	Logger *slog.Logger // nil disables progress logging
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the run defaults.
func DefaultConfig() Config {
	return Config{
		Saturation:    sanitize.DefaultSaturation,
		ConvLen:       sanitize.DefaultConvLen,
		MaxPixelShift: 20,
		MaxOrderShift: 5,
		CleanDegree:   1,
		CleanEpsilon:  0.004,
		CleanReserve:  3,
	}
}

// WithSaturation sets the sanitization saturation threshold.
func WithSaturation(threshold float64) Option {
	return func(cfg *Config) {
		if threshold > 0 {
			cfg.Saturation = threshold
		}
	}
}

// WithConvLen sets the sanitization halo half width.
func WithConvLen(n int) Option {
	return func(cfg *Config) {
		if n >= 0 {
			cfg.ConvLen = n
		}
	}
}

// WithMaxShift sets the shift search ranges.
func WithMaxShift(pixel, order int) Option {
	return func(cfg *Config) {
		if pixel >= 0 && order >= 0 {
			cfg.MaxPixelShift, cfg.MaxOrderShift = pixel, order
		}
	}
}

// coarsePrescanMargin pads the prescan estimate so the full 2-D search
// still brackets the true offset.
const coarsePrescanMargin = 5

// WithCoarsePrescan bootstraps the pixel search range from a 1-D FFT
// cross-correlation of the central order row, for arcs whose offset may
// exceed the configured range.
func WithCoarsePrescan() Option {
	return func(cfg *Config) { cfg.CoarsePrescan = true }
}

// WithCleaning tunes the per-order center-vetting pass.
func WithCleaning(degree int, epsilon float64, reserve int) Option {
	return func(cfg *Config) {
		if degree >= 0 && epsilon > 0 && reserve >= 0 {
			cfg.CleanDegree, cfg.CleanEpsilon, cfg.CleanReserve = degree, epsilon, reserve
		}
	}
}

// WithoutCleaning bypasses the center-vetting pass.
func WithoutCleaning() Option {
	return func(cfg *Config) { cfg.SkipClean = true }
}

// WithLineOptions forwards options to the line refiner.
func WithLineOptions(opts ...lines.Option) Option {
	return func(cfg *Config) { cfg.LineOptions = append(cfg.LineOptions, opts...) }
}

// WithSurfaceOptions forwards options to the surface fitter.
func WithSurfaceOptions(opts ...surface.Option) Option {
	return func(cfg *Config) { cfg.SurfaceOptions = append(cfg.SurfaceOptions, opts...) }
}

// WithLogger enables progress logging.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *Config) { cfg.Logger = l }
}

// Report summarizes a calibration run.
type Report struct {
	Shift xcorr.Shift // grid offset of the arc relative to the template

	LinesAttempted int // catalog lines in range across all orders
	LinesRefined   int // lines with a converged centroid fit
	LinesCleaned   int // lines surviving the center-vetting pass
	LinesRetained  int // lines surviving the surface rejection loop

	RMS float64 // wavelength RMS of the model over the retained lines

	DroppedOrders []lines.OrderError // orders lost during refinement
}

// Calibrate runs the full wavelength calibration of an extracted arc
// exposure against a template, returning the fitted dispersion model
// and a run report. The report is non-nil whenever the run got past
// input validation, even on error.
func Calibrate(tmpl *template.Template, arc *grid.Grid, catalog []float64, opts ...Option) (*surface.Model, *Report, error) {
	if tmpl == nil || arc == nil || len(arc.Data) == 0 {
		return nil, nil, ErrEmptyInput
	}
	if len(catalog) == 0 {
		return nil, nil, ErrEmptyCatalog
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	log := cfg.Logger
	rep := &Report{}

	fixed := sanitize.Fix(arc, cfg.ConvLen, cfg.Saturation)

	maxPixel := cfg.MaxPixelShift
	if cfg.CoarsePrescan {
		coarse, err := xcorr.CoarsePixelShift(fixed, tmpl.Thar, fixed.Rows/2)
		if err != nil {
			return nil, rep, fmt.Errorf("pipeline: coarse prescan: %w", err)
		}
		if n := abs(coarse) + coarsePrescanMargin; n > maxPixel {
			maxPixel = n
		}
		if log != nil {
			log.Info("coarse prescan", "pixel", coarse, "search_range", maxPixel)
		}
	}

	sh, _, err := xcorr.EstimateShift(fixed, tmpl.Thar, maxPixel, cfg.MaxOrderShift)
	if err != nil {
		return nil, rep, fmt.Errorf("pipeline: shift estimation: %w", err)
	}
	rep.Shift = sh
	if log != nil {
		log.Info("shift estimated", "pixel", sh.Pixel, "order", sh.Order)
	}

	guessWave, err := remap.Wavelength(tmpl.Wave, sh, fixed.Rows)
	if err != nil {
		return nil, rep, fmt.Errorf("pipeline: wavelength remap: %w", err)
	}
	orderMap := remap.OrderIndex(tmpl.BaseOrder(), sh, fixed.Rows, fixed.Cols)

	set, err := lines.Refine(guessWave, orderMap, fixed, catalog, cfg.LineOptions...)
	if set != nil {
		rep.DroppedOrders = set.Dropped
	}
	if err != nil {
		return nil, rep, fmt.Errorf("pipeline: line refinement: %w", err)
	}
	rep.LinesAttempted = set.Len()
	centers := make([]float64, set.Len())
	for i, p := range set.Params {
		centers[i] = p[2]
		if !isNaN(p[2]) {
			rep.LinesRefined++
		}
	}
	if log != nil {
		log.Info("lines refined",
			"attempted", rep.LinesAttempted,
			"converged", rep.LinesRefined,
			"dropped_orders", len(set.Dropped))
	}

	var good []bool
	if !cfg.SkipClean {
		good, err = polyfit.CleanCenters(set.Pixel, set.Order, set.Wavelength, centers,
			cfg.CleanDegree, cfg.CleanEpsilon, cfg.CleanReserve)
		if err != nil {
			return nil, rep, fmt.Errorf("pipeline: center vetting: %w", err)
		}
		for _, g := range good {
			if g {
				rep.LinesCleaned++
			}
		}
		if log != nil {
			log.Info("centers vetted", "kept", rep.LinesCleaned)
		}
	} else {
		rep.LinesCleaned = rep.LinesRefined
	}

	model, retained, err := surface.Fit(set.Pixel, set.Order, set.Wavelength,
		set.Params, set.Variances, good, cfg.SurfaceOptions...)
	if err != nil {
		return nil, rep, fmt.Errorf("pipeline: surface fit: %w", err)
	}

	var px, ord, wl []float64
	for i, r := range retained {
		if r {
			rep.LinesRetained++
			px = append(px, set.Pixel[i])
			ord = append(ord, set.Order[i])
			wl = append(wl, set.Wavelength[i])
		}
	}
	rep.RMS = model.RMS(px, ord, wl)
	if log != nil {
		log.Info("surface fitted", "retained", rep.LinesRetained, "rms", rep.RMS)
	}

	return model, rep, nil
}

func isNaN(v float64) bool { return v != v }

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
