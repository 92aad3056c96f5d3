package grid

import (
	"errors"
	"math"
)

// Errors returned by grid operations.
var (
	ErrEmptyGrid        = errors.New("grid: empty grid")
	ErrShapeMismatch    = errors.New("grid: shape mismatch")
	ErrBadCombineMethod = errors.New("grid: bad combine method")
)

// Grid is a dense row-major 2-D float64 matrix. For spectra the row
// index is the order and the column index is the pixel.
type Grid struct {
	Rows, Cols int
	Data       []float64
}

// New allocates a zero-filled rows x cols grid.
func New(rows, cols int) *Grid {
	return &Grid{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// FromRows builds a grid from a slice of equal-length rows.
// The data is copied.
func FromRows(rows [][]float64) (*Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptyGrid
	}
	cols := len(rows[0])
	g := New(len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, ErrShapeMismatch
		}
		copy(g.Row(i), r)
	}
	return g, nil
}

// At returns the value at (row, col).
func (g *Grid) At(row, col int) float64 {
	return g.Data[row*g.Cols+col]
}

// Set stores v at (row, col).
func (g *Grid) Set(row, col int, v float64) {
	g.Data[row*g.Cols+col] = v
}

// Row returns the backing slice of one row. The slice aliases the grid.
func (g *Grid) Row(row int) []float64 {
	return g.Data[row*g.Cols : (row+1)*g.Cols]
}

// Col copies one column into a fresh slice.
func (g *Grid) Col(col int) []float64 {
	out := make([]float64, g.Rows)
	for i := range out {
		out[i] = g.Data[i*g.Cols+col]
	}
	return out
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	c := New(g.Rows, g.Cols)
	copy(c.Data, g.Data)
	return c
}

// SameShape reports whether g and o have identical dimensions.
func (g *Grid) SameShape(o *Grid) bool {
	return g.Rows == o.Rows && g.Cols == o.Cols
}

// Equal reports whether g and o have the same shape and all samples
// agree within eps. NaN samples compare equal to NaN.
func (g *Grid) Equal(o *Grid, eps float64) bool {
	if !g.SameShape(o) {
		return false
	}
	for i, v := range g.Data {
		w := o.Data[i]
		if math.IsNaN(v) && math.IsNaN(w) {
			continue
		}
		if math.Abs(v-w) > eps {
			return false
		}
	}
	return true
}

// MinMax returns the smallest and largest finite sample. When the grid
// holds no finite sample both results are NaN.
func (g *Grid) MinMax() (min, max float64) {
	min, max = math.NaN(), math.NaN()
	for _, v := range g.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if math.IsNaN(min) || v < min {
			min = v
		}
		if math.IsNaN(max) || v > max {
			max = v
		}
	}
	return min, max
}
