package xcorr

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/algo-wavecal/wavecal/grid"
)

// syntheticTemplate builds a spectrum with sharp pseudo-random emission
// lines so the correlation peak is unambiguous.
func syntheticTemplate(rows, cols int) *grid.Grid {
	rng := rand.New(rand.NewSource(42))
	g := grid.New(rows, cols)
	for r := 0; r < rows; r++ {
		row := g.Row(r)
		for i := 0; i < 12; i++ {
			center := float64(rng.Intn(cols))
			amp := 50 + 100*rng.Float64()
			for x := range row {
				d := float64(x) - center
				row[x] += amp * math.Exp(-0.5*d*d/2.25)
			}
		}
	}
	return g
}

// shiftedCopy samples tmpl at (y+dy, x+dx), clamping at the borders.
// With the package's sign convention EstimateShift must return exactly
// (dx, dy) for this input.
func shiftedCopy(tmpl *grid.Grid, dx, dy int) *grid.Grid {
	out := grid.New(tmpl.Rows, tmpl.Cols)
	for y := 0; y < tmpl.Rows; y++ {
		for x := 0; x < tmpl.Cols; x++ {
			sy := y + dy
			sx := x + dx
			if sy < 0 {
				sy = 0
			} else if sy >= tmpl.Rows {
				sy = tmpl.Rows - 1
			}
			if sx < 0 {
				sx = 0
			} else if sx >= tmpl.Cols {
				sx = tmpl.Cols - 1
			}
			out.Set(y, x, tmpl.At(sy, sx))
		}
	}
	return out
}

func TestEstimateShiftSelf(t *testing.T) {
	tmpl := syntheticTemplate(10, 200)
	sh, surface, err := EstimateShift(tmpl, tmpl, 8, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sh.Pixel != 0 || sh.Order != 0 {
		t.Errorf("self correlation shift = (%d, %d), expected (0, 0)", sh.Pixel, sh.Order)
	}

	// The surface maximum must sit at the center cell.
	center := surface.At(1, 8)
	for i, v := range surface.Data {
		if v > center {
			t.Fatalf("surface[%d] = %v exceeds center value %v", i, v, center)
		}
	}
}

func TestEstimateShiftRoundTrip(t *testing.T) {
	tmpl := syntheticTemplate(10, 200)

	tests := []struct {
		name   string
		dx, dy int
	}{
		{"pixel only", 5, 0},
		{"negative pixel", -7, 0},
		{"order only", 0, 1},
		{"both axes", 3, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixed := shiftedCopy(tmpl, tt.dx, tt.dy)
			sh, _, err := EstimateShift(fixed, tmpl, 8, 1)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sh.Pixel != tt.dx || sh.Order != tt.dy {
				t.Errorf("shift = (%d, %d), expected (%d, %d)", sh.Pixel, sh.Order, tt.dx, tt.dy)
			}
		})
	}
}

func TestEstimateShiftSurfaceShape(t *testing.T) {
	tmpl := syntheticTemplate(10, 100)
	_, surface, err := EstimateShift(tmpl, tmpl, 4, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if surface.Rows != 3 || surface.Cols != 9 {
		t.Errorf("surface shape = %dx%d, expected 3x9", surface.Rows, surface.Cols)
	}
}

func TestEstimateShiftErrors(t *testing.T) {
	tmpl := syntheticTemplate(10, 100)

	if _, _, err := EstimateShift(nil, tmpl, 2, 1); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
	if _, _, err := EstimateShift(tmpl, tmpl, -1, 0); !errors.Is(err, ErrBadShiftRange) {
		t.Errorf("expected ErrBadShiftRange, got %v", err)
	}
	// Pixel range larger than the 20% edge margin.
	if _, _, err := EstimateShift(tmpl, tmpl, 25, 1); !errors.Is(err, ErrRangeTooLarge) {
		t.Errorf("expected ErrRangeTooLarge, got %v", err)
	}
}

func TestCoarsePixelShift(t *testing.T) {
	tmpl := syntheticTemplate(4, 256)

	for _, dx := range []int{0, 9, -13} {
		fixed := shiftedCopy(tmpl, dx, 0)
		got, err := CoarsePixelShift(fixed, tmpl, 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != dx {
			t.Errorf("CoarsePixelShift = %d, expected %d", got, dx)
		}
	}
}
