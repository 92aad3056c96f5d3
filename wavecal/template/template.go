// Package template holds the reference arc exposure a calibration run
// aligns against: a wavelength map, an intensity map, and an
// order-index map of identical shape, persisted together in a FITS
// container.
package template

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-wavecal/wavecal/grid"
)

// Errors returned by template construction and loading.
var (
	ErrShapeMismatch  = errors.New("template: maps have different shapes")
	ErrNotMonotonic   = errors.New("template: wavelength map not monotonic along pixels")
	ErrBadOrderMap    = errors.New("template: order map not constant per row")
	ErrMissingHDU     = errors.New("template: container missing required HDU")
	ErrEmptyContainer = errors.New("template: empty container")
)

// Template is the immutable reference triple. All three grids share one
// shape; none is mutated after construction.
type Template struct {
	Wave  *grid.Grid // (order, pixel) -> wavelength
	Thar  *grid.Grid // (order, pixel) -> intensity
	Order *grid.Grid // (order, pixel) -> integer order index
}

// New validates the triple and wraps it in a Template. The wavelength
// map must be strictly monotonic (increasing or decreasing) along the
// pixel axis within every order, and the order map must hold one
// integer per row, incrementing by one per row. Equal adjacent
// wavelengths are rejected like reversals: downstream inversion splines
// need strictly ordered knots.
func New(wave, thar, order *grid.Grid) (*Template, error) {
	if wave == nil || thar == nil || order == nil || len(wave.Data) == 0 {
		return nil, ErrEmptyContainer
	}
	if !wave.SameShape(thar) || !wave.SameShape(order) {
		return nil, ErrShapeMismatch
	}

	for r := 0; r < wave.Rows; r++ {
		row := wave.Row(r)
		inc, dec := true, true
		for i := 1; i < len(row); i++ {
			if row[i] <= row[i-1] {
				inc = false
			}
			if row[i] >= row[i-1] {
				dec = false
			}
		}
		if !inc && !dec {
			return nil, fmt.Errorf("%w: order row %d", ErrNotMonotonic, r)
		}
	}

	base := order.At(0, 0)
	if base != math.Trunc(base) {
		return nil, fmt.Errorf("%w: non-integer base order %v", ErrBadOrderMap, base)
	}
	for r := 0; r < order.Rows; r++ {
		want := base + float64(r)
		for _, v := range order.Row(r) {
			if v != want {
				return nil, fmt.Errorf("%w: row %d", ErrBadOrderMap, r)
			}
		}
	}

	return &Template{Wave: wave, Thar: thar, Order: order}, nil
}

// Rows returns the number of orders covered by the template.
func (t *Template) Rows() int { return t.Wave.Rows }

// Cols returns the number of pixels per order.
func (t *Template) Cols() int { return t.Wave.Cols }

// BaseOrder returns the physical order index of the first row.
func (t *Template) BaseOrder() int {
	return int(t.Order.At(0, 0))
}
