package xcorr

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-wavecal/wavecal/grid"
)

// Errors returned by shift estimation.
var (
	ErrEmptyInput    = errors.New("xcorr: empty input")
	ErrRangeTooLarge = errors.New("xcorr: shift range exceeds comparison window")
	ErrBadShiftRange = errors.New("xcorr: shift range must be non-negative")
)

// Shift is the integer offset of a fixed spectrum's grid relative to a
// template's grid.
type Shift struct {
	Pixel int
	Order int
}

// EstimateShift cross-correlates fixed against tmpl over all integer
// offsets within [-maxPixel, maxPixel] x [-maxOrder, maxOrder] and
// returns the best shift together with the full correlation surface
// of shape (2*maxOrder+1) x (2*maxPixel+1).
//
// Ties on the surface maximum resolve to the first maximum in row-major
// scan order.
func EstimateShift(fixed, tmpl *grid.Grid, maxPixel, maxOrder int) (Shift, *grid.Grid, error) {
	if fixed == nil || tmpl == nil || len(fixed.Data) == 0 || len(tmpl.Data) == 0 {
		return Shift{}, nil, ErrEmptyInput
	}
	if maxPixel < 0 || maxOrder < 0 {
		return Shift{}, nil, ErrBadShiftRange
	}

	// Central 60% comparison window, computed from the fixed frame.
	x0 := fixed.Cols * 2 / 10
	x1 := fixed.Cols * 8 / 10
	y0 := fixed.Rows * 2 / 10
	y1 := fixed.Rows * 8 / 10

	if x0-maxPixel < 0 || x1+maxPixel > fixed.Cols || y0-maxOrder < 0 || y1+maxOrder > fixed.Rows {
		return Shift{}, nil, fmt.Errorf("%w: window [%d:%d)x[%d:%d), range (%d,%d)",
			ErrRangeTooLarge, y0, y1, x0, x1, maxPixel, maxOrder)
	}
	if x1 > tmpl.Cols || y1 > tmpl.Rows {
		return Shift{}, nil, fmt.Errorf("%w: template %dx%d smaller than comparison window",
			ErrRangeTooLarge, tmpl.Rows, tmpl.Cols)
	}

	surface := grid.New(2*maxOrder+1, 2*maxPixel+1)
	n := float64((y1 - y0) * (x1 - x0))

	for dy := -maxOrder; dy <= maxOrder; dy++ {
		for dx := -maxPixel; dx <= maxPixel; dx++ {
			var sum float64
			for y := y0; y < y1; y++ {
				moved := fixed.Row(y + dy)[x0+dx : x1+dx]
				ref := tmpl.Row(y)[x0:x1]
				sum += vecmath.DotProduct(moved, ref)
			}
			surface.Set(dy+maxOrder, dx+maxPixel, sum/n)
		}
	}

	// First maximum in row-major order.
	best := 0
	for i, v := range surface.Data {
		if v > surface.Data[best] {
			best = i
		}
	}
	row := best / surface.Cols
	col := best % surface.Cols

	sh := Shift{
		Pixel: maxPixel - col,
		Order: maxOrder - row,
	}
	return sh, surface, nil
}
