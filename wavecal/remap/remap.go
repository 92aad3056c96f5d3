// Package remap resamples a template's wavelength solution onto the
// grid of a newly observed spectrum, given the integer shift between
// the two frames.
package remap

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/interp"

	"github.com/cwbudde/algo-wavecal/wavecal/grid"
	"github.com/cwbudde/algo-wavecal/wavecal/xcorr"
)

// Errors returned by remapping.
var (
	ErrEmptyInput = errors.New("remap: empty input")
	ErrBadShape   = errors.New("remap: bad target shape")
)

// Wavelength resamples the template wavelength map ref onto the fixed
// spectrum's grid. A cubic interpolating spline is fit independently
// along the pixel axis for every order row and evaluated at x+dx, then
// along the order axis for every pixel column and evaluated at row
// coordinates r+dy for r in [0, fixedRows). The result has fixedRows
// rows: the new frame may cover a different number of orders than the
// template.
func Wavelength(ref *grid.Grid, sh xcorr.Shift, fixedRows int) (*grid.Grid, error) {
	if ref == nil || len(ref.Data) == 0 {
		return nil, ErrEmptyInput
	}
	if fixedRows <= 0 {
		return nil, fmt.Errorf("%w: fixedRows = %d", ErrBadShape, fixedRows)
	}

	xs := make([]float64, ref.Cols)
	for i := range xs {
		xs[i] = float64(i)
	}

	// Shift along the pixel axis, one spline per order row.
	shiftedX := grid.New(ref.Rows, ref.Cols)
	for r := 0; r < ref.Rows; r++ {
		var spline interp.NaturalCubic
		if err := spline.Fit(xs, ref.Row(r)); err != nil {
			return nil, fmt.Errorf("remap: pixel spline for order row %d: %w", r, err)
		}
		dst := shiftedX.Row(r)
		for x := range dst {
			dst[x] = spline.Predict(float64(x + sh.Pixel))
		}
	}

	// Shift along the order axis, one spline per pixel column.
	ys := make([]float64, ref.Rows)
	for i := range ys {
		ys[i] = float64(i)
	}
	out := grid.New(fixedRows, ref.Cols)
	for c := 0; c < ref.Cols; c++ {
		var spline interp.NaturalCubic
		if err := spline.Fit(ys, shiftedX.Col(c)); err != nil {
			return nil, fmt.Errorf("remap: order spline for pixel column %d: %w", c, err)
		}
		for r := 0; r < fixedRows; r++ {
			out.Set(r, c, spline.Predict(float64(r+sh.Order)))
		}
	}
	return out, nil
}

// OrderIndex reconstructs the order-index map for the fixed spectrum's
// grid. Order indices name physical diffraction orders, so they shift
// rigidly and are never interpolated: row r holds the constant value
// baseOrder + r + dy.
func OrderIndex(baseOrder int, sh xcorr.Shift, rows, cols int) *grid.Grid {
	out := grid.New(rows, cols)
	for r := 0; r < rows; r++ {
		v := float64(baseOrder + r + sh.Order)
		dst := out.Row(r)
		for i := range dst {
			dst[i] = v
		}
	}
	return out
}
