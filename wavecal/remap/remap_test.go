package remap

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-wavecal/wavecal/grid"
	"github.com/cwbudde/algo-wavecal/wavecal/xcorr"
)

// linearWaveMap builds wave(r, x) = 5000 + 50*r + 0.1*x.
func linearWaveMap(rows, cols int) *grid.Grid {
	g := grid.New(rows, cols)
	for r := 0; r < rows; r++ {
		for x := 0; x < cols; x++ {
			g.Set(r, x, 5000+50*float64(r)+0.1*float64(x))
		}
	}
	return g
}

func TestWavelengthZeroShiftIdentity(t *testing.T) {
	ref := linearWaveMap(6, 80)
	out, err := Wavelength(ref, xcorr.Shift{}, ref.Rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Spline evaluation at existing knots is exact.
	if !out.Equal(ref, 1e-9) {
		t.Error("zero-shift remap does not reproduce the input map")
	}
}

func TestWavelengthPixelShift(t *testing.T) {
	ref := linearWaveMap(6, 80)
	out, err := Wavelength(ref, xcorr.Shift{Pixel: 3}, ref.Rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// wave is linear in x, so shifting by 3 pixels adds exactly 0.3
	// everywhere (away from the spline ends).
	for r := 0; r < ref.Rows; r++ {
		for x := 10; x < 70; x++ {
			want := ref.At(r, x) + 0.3
			if math.Abs(out.At(r, x)-want) > 1e-6 {
				t.Fatalf("out(%d,%d) = %v, expected %v", r, x, out.At(r, x), want)
			}
		}
	}
}

func TestWavelengthOrderShiftAndRowCount(t *testing.T) {
	ref := linearWaveMap(8, 40)
	out, err := Wavelength(ref, xcorr.Shift{Order: 1}, 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Rows != 6 || out.Cols != 40 {
		t.Fatalf("shape = %dx%d, expected 6x40", out.Rows, out.Cols)
	}
	// Row r of the output tracks template row r+1.
	for r := 0; r < 5; r++ {
		for x := 5; x < 35; x++ {
			want := ref.At(r+1, x)
			if math.Abs(out.At(r, x)-want) > 1e-6 {
				t.Fatalf("out(%d,%d) = %v, expected %v", r, x, out.At(r, x), want)
			}
		}
	}
}

func TestWavelengthErrors(t *testing.T) {
	if _, err := Wavelength(nil, xcorr.Shift{}, 4); err == nil {
		t.Error("expected error for nil reference")
	}
	ref := linearWaveMap(4, 10)
	if _, err := Wavelength(ref, xcorr.Shift{}, 0); err == nil {
		t.Error("expected error for non-positive row count")
	}
}

func TestOrderIndex(t *testing.T) {
	out := OrderIndex(85, xcorr.Shift{Order: -2}, 3, 4)
	for r := 0; r < 3; r++ {
		want := float64(85 + r - 2)
		for x := 0; x < 4; x++ {
			if out.At(r, x) != want {
				t.Errorf("order(%d,%d) = %v, expected %v", r, x, out.At(r, x), want)
			}
		}
	}
}
