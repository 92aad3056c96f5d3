package grid

import (
	"fmt"
	"sort"

	"github.com/cwbudde/algo-vecmath"
)

// FrameMeta carries detector-frame metadata alongside a Grid. It
// replaces attribute propagation through an array subclass: arithmetic
// helpers receive and return the record explicitly.
type FrameMeta struct {
	Gain      float64
	ReadNoise float64
	Unit      string
	Trim      [4]int // left, right, top, bottom; zero value means untrimmed
	Rot90     int    // quarter turns applied after read-out
}

// DefaultFrameMeta returns the metadata of an unprocessed frame.
func DefaultFrameMeta() FrameMeta {
	return FrameMeta{Gain: 1, ReadNoise: 0, Unit: "adu"}
}

// Subtract computes a - b. The result inherits a's metadata.
func Subtract(a *Grid, am FrameMeta, b *Grid, bm FrameMeta) (*Grid, FrameMeta, error) {
	if !a.SameShape(b) {
		return nil, am, fmt.Errorf("%w: %dx%d - %dx%d", ErrShapeMismatch, a.Rows, a.Cols, b.Rows, b.Cols)
	}
	out := a.Clone()
	neg := make([]float64, len(b.Data))
	vecmath.ScaleBlock(neg, b.Data, -1)
	vecmath.AddBlockInPlace(out.Data, neg)
	return out, am, nil
}

// Divide computes a / b elementwise. The result inherits a's metadata.
func Divide(a *Grid, am FrameMeta, b *Grid, bm FrameMeta) (*Grid, FrameMeta, error) {
	if !a.SameShape(b) {
		return nil, am, fmt.Errorf("%w: %dx%d / %dx%d", ErrShapeMismatch, a.Rows, a.Cols, b.Rows, b.Cols)
	}
	out := New(a.Rows, a.Cols)
	for i, v := range a.Data {
		out.Data[i] = v / b.Data[i]
	}
	return out, am, nil
}

// Multiply computes a * b elementwise. The result inherits a's metadata.
func Multiply(a *Grid, am FrameMeta, b *Grid, bm FrameMeta) (*Grid, FrameMeta, error) {
	if !a.SameShape(b) {
		return nil, am, fmt.Errorf("%w: %dx%d * %dx%d", ErrShapeMismatch, a.Rows, a.Cols, b.Rows, b.Cols)
	}
	out := New(a.Rows, a.Cols)
	vecmath.MulBlock(out.Data, a.Data, b.Data)
	return out, am, nil
}

// CombineMethod selects how Combine stacks frames.
type CombineMethod int

const (
	CombineMedian CombineMethod = iota
	CombineMean
	CombineSum
)

// String returns the method name.
func (m CombineMethod) String() string {
	switch m {
	case CombineMedian:
		return "median"
	case CombineMean:
		return "mean"
	case CombineSum:
		return "sum"
	default:
		return fmt.Sprintf("CombineMethod(%d)", int(m))
	}
}

// Combine stacks same-shape frames into one. An even frame count under
// CombineMedian averages the middle pair. Unsupported methods are a
// caller error and reported immediately.
func Combine(frames []*Grid, method CombineMethod) (*Grid, error) {
	if len(frames) == 0 {
		return nil, ErrEmptyGrid
	}
	first := frames[0]
	for _, f := range frames[1:] {
		if !f.SameShape(first) {
			return nil, ErrShapeMismatch
		}
	}

	switch method {
	case CombineMean, CombineSum:
		out := first.Clone()
		for _, f := range frames[1:] {
			vecmath.AddBlockInPlace(out.Data, f.Data)
		}
		if method == CombineMean {
			vecmath.ScaleBlockInPlace(out.Data, 1/float64(len(frames)))
		}
		return out, nil

	case CombineMedian:
		out := New(first.Rows, first.Cols)
		stack := make([]float64, len(frames))
		for i := range out.Data {
			for k, f := range frames {
				stack[k] = f.Data[i]
			}
			sort.Float64s(stack)
			n := len(stack)
			if n%2 == 1 {
				out.Data[i] = stack[n/2]
			} else {
				out.Data[i] = 0.5 * (stack[n/2-1] + stack[n/2])
			}
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrBadCombineMethod, method)
	}
}
