package sanitize

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-wavecal/wavecal/grid"
)

func TestFix(t *testing.T) {
	tests := []struct {
		name     string
		in       []float64
		convLen  int
		sat      float64
		expected []float64
	}{
		{
			name:     "negative samples zeroed",
			in:       []float64{1, -2, 3, -0.5, 4},
			convLen:  2,
			sat:      100,
			expected: []float64{1, 0, 3, 0, 4},
		},
		{
			name:     "saturated sample zeroes halo",
			in:       []float64{1, 2, 3, 200, 5, 6, 7},
			convLen:  2,
			sat:      100,
			expected: []float64{1, 0, 0, 0, 0, 6, 7},
		},
		{
			name:     "halo clamped at row start",
			in:       []float64{200, 2, 3, 4},
			convLen:  2,
			sat:      100,
			expected: []float64{0, 0, 3, 4},
		},
		{
			name:     "halo clamped at row end",
			in:       []float64{1, 2, 3, 200},
			convLen:  2,
			sat:      100,
			expected: []float64{1, 0, 0, 0},
		},
		{
			name:     "clean spectrum unchanged",
			in:       []float64{1, 2, 3, 4},
			convLen:  3,
			sat:      100,
			expected: []float64{1, 2, 3, 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := grid.FromRows([][]float64{tt.in})
			out := Fix(g, tt.convLen, tt.sat)
			for i := range tt.expected {
				if out.At(0, i) != tt.expected[i] {
					t.Errorf("out[%d] = %v, expected %v", i, out.At(0, i), tt.expected[i])
				}
			}
		})
	}
}

func TestFixRowsIndependent(t *testing.T) {
	g, _ := grid.FromRows([][]float64{
		{1, 2, 200, 4},
		{5, 6, 7, 8},
	})
	out := Fix(g, 1, 100)
	// The halo must not leak into the neighboring order.
	for i, want := range []float64{5, 6, 7, 8} {
		if out.At(1, i) != want {
			t.Errorf("row 1 sample %d = %v, expected %v", i, out.At(1, i), want)
		}
	}
}

func TestFixIdempotent(t *testing.T) {
	g, _ := grid.FromRows([][]float64{
		{-1, 2, 300, 4, 5, -6, 7},
		{8, 9, 10, 50001, 12, 13, 14},
	})
	once := Fix(g, DefaultConvLen, DefaultSaturation)
	twice := Fix(once, DefaultConvLen, DefaultSaturation)
	if !once.Equal(twice, 0) {
		t.Error("Fix is not idempotent")
	}
}

func TestFixNeverIncreasesMagnitude(t *testing.T) {
	g, _ := grid.FromRows([][]float64{
		{-3, 2, 150, -7, 5},
	})
	out := Fix(g, 1, 100)
	for i := range g.Data {
		if math.Abs(out.Data[i]) > math.Abs(g.Data[i]) {
			t.Errorf("sample %d grew in magnitude: %v -> %v", i, g.Data[i], out.Data[i])
		}
	}
	if g.At(0, 2) != 150 {
		t.Error("Fix mutated its input")
	}
}
