package grid

import (
	"errors"
	"math"
	"testing"
)

func TestFromRows(t *testing.T) {
	g, err := FromRows([][]float64{{1, 2, 3}, {4, 5, 6}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Rows != 2 || g.Cols != 3 {
		t.Fatalf("shape = %dx%d, expected 2x3", g.Rows, g.Cols)
	}
	if g.At(1, 2) != 6 {
		t.Errorf("At(1,2) = %v, expected 6", g.At(1, 2))
	}

	if _, err := FromRows(nil); !errors.Is(err, ErrEmptyGrid) {
		t.Errorf("expected ErrEmptyGrid, got %v", err)
	}
	if _, err := FromRows([][]float64{{1, 2}, {3}}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestRowColClone(t *testing.T) {
	g, _ := FromRows([][]float64{{1, 2}, {3, 4}, {5, 6}})

	col := g.Col(1)
	want := []float64{2, 4, 6}
	for i := range want {
		if col[i] != want[i] {
			t.Errorf("Col(1)[%d] = %v, expected %v", i, col[i], want[i])
		}
	}

	c := g.Clone()
	c.Set(0, 0, 99)
	if g.At(0, 0) != 1 {
		t.Error("Clone shares backing storage with original")
	}
}

func TestEqualNaN(t *testing.T) {
	a, _ := FromRows([][]float64{{1, math.NaN()}})
	b, _ := FromRows([][]float64{{1, math.NaN()}})
	if !a.Equal(b, 0) {
		t.Error("grids with matching NaN samples should compare equal")
	}
	b.Set(0, 0, 1.5)
	if a.Equal(b, 0.1) {
		t.Error("grids differing beyond eps should not compare equal")
	}
}

func TestMinMax(t *testing.T) {
	g, _ := FromRows([][]float64{{3, math.NaN(), -2}, {7, math.Inf(1), 0}})
	min, max := g.MinMax()
	if min != -2 || max != 7 {
		t.Errorf("MinMax = (%v, %v), expected (-2, 7)", min, max)
	}
}

func TestSubtract(t *testing.T) {
	a, _ := FromRows([][]float64{{5, 7}, {9, 11}})
	b, _ := FromRows([][]float64{{1, 2}, {3, 4}})
	meta := DefaultFrameMeta()

	out, _, err := Subtract(a, meta, b, meta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{4, 5, 6, 7}
	for i := range want {
		if out.Data[i] != want[i] {
			t.Errorf("Data[%d] = %v, expected %v", i, out.Data[i], want[i])
		}
	}
	if a.At(0, 0) != 5 {
		t.Error("Subtract mutated its input")
	}

	c := New(1, 2)
	if _, _, err := Subtract(a, meta, c, meta); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestDivide(t *testing.T) {
	a, _ := FromRows([][]float64{{6, 8}})
	b, _ := FromRows([][]float64{{2, 4}})
	out, _, err := Divide(a, DefaultFrameMeta(), b, DefaultFrameMeta())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.At(0, 0) != 3 || out.At(0, 1) != 2 {
		t.Errorf("Divide = %v, expected [3 2]", out.Data)
	}
}

func TestCombine(t *testing.T) {
	f1, _ := FromRows([][]float64{{1, 10}})
	f2, _ := FromRows([][]float64{{3, 20}})
	f3, _ := FromRows([][]float64{{5, 60}})

	tests := []struct {
		name     string
		frames   []*Grid
		method   CombineMethod
		expected []float64
	}{
		{"median odd", []*Grid{f1, f2, f3}, CombineMedian, []float64{3, 20}},
		{"median even", []*Grid{f1, f2}, CombineMedian, []float64{2, 15}},
		{"mean", []*Grid{f1, f2, f3}, CombineMean, []float64{3, 30}},
		{"sum", []*Grid{f1, f2, f3}, CombineSum, []float64{9, 90}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Combine(tt.frames, tt.method)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for i := range tt.expected {
				if math.Abs(out.Data[i]-tt.expected[i]) > 1e-12 {
					t.Errorf("Data[%d] = %v, expected %v", i, out.Data[i], tt.expected[i])
				}
			}
		})
	}
}

func TestCombineErrors(t *testing.T) {
	if _, err := Combine(nil, CombineMean); !errors.Is(err, ErrEmptyGrid) {
		t.Errorf("expected ErrEmptyGrid, got %v", err)
	}

	f1 := New(1, 2)
	f2 := New(2, 2)
	if _, err := Combine([]*Grid{f1, f2}, CombineMean); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}

	if _, err := Combine([]*Grid{f1}, CombineMethod(42)); !errors.Is(err, ErrBadCombineMethod) {
		t.Errorf("expected ErrBadCombineMethod, got %v", err)
	}
}
