package polyfit

import (
	"errors"
	"math"
	"testing"
)

func TestEval(t *testing.T) {
	// 2 + 3x + 0.5x^2
	coeffs := []float64{2, 3, 0.5}
	if got := Eval(coeffs, 0); got != 2 {
		t.Errorf("Eval(0) = %v, expected 2", got)
	}
	if got := Eval(coeffs, 2); math.Abs(got-10) > 1e-12 {
		t.Errorf("Eval(2) = %v, expected 10", got)
	}
}

func TestFitRejectExactRecovery(t *testing.T) {
	want := []float64{1.5, -0.25, 0.02}
	var xs, ys []float64
	for i := 0; i < 40; i++ {
		x := float64(i)
		xs = append(xs, x)
		ys = append(ys, Eval(want, x))
	}

	coeffs, kept, err := FitReject(xs, ys, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, c := range coeffs {
		if math.Abs(c-want[i]) > 1e-8 {
			t.Errorf("coeff %d = %v, expected %v", i, c, want[i])
		}
	}
	for i, k := range kept {
		if !k {
			t.Errorf("point %d rejected on clean data", i)
		}
	}
}

func TestFitRejectExcludesOutlier(t *testing.T) {
	want := []float64{0.5, 0.001}
	var xs, ys []float64
	for i := 0; i < 30; i++ {
		x := float64(i)
		xs = append(xs, x)
		ys = append(ys, Eval(want, x))
	}
	ys[12] += 0.5 // gross outlier against epsilon 0.002

	coeffs, kept, err := FitReject(xs, ys, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kept[12] {
		t.Error("outlier at index 12 was kept")
	}
	for i, k := range kept {
		if i != 12 && !k {
			t.Errorf("clean point %d rejected", i)
		}
	}
	for i, c := range coeffs {
		if math.Abs(c-want[i]) > 1e-6 {
			t.Errorf("coeff %d = %v, expected %v", i, c, want[i])
		}
	}
}

func TestFitRejectHonorsMinReserve(t *testing.T) {
	// Scattered data where everything violates the tiny epsilon.
	xs := []float64{0, 1, 2, 3, 4, 5}
	ys := []float64{0, 1.3, 1.7, 3.4, 3.6, 5.2}

	_, kept, err := FitReject(xs, ys, 1, WithEpsilon(1e-9), WithMinReserve(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n := 0
	for _, k := range kept {
		if k {
			n++
		}
	}
	if n != 4 {
		t.Errorf("kept %d points, expected MinReserve floor of 4", n)
	}
}

func TestFitRejectZeroWeightExcluded(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4}
	ys := []float64{0, 1, 2, 99, 4} // index 3 pre-masked
	w := []float64{1, 1, 1, 0, 1}

	coeffs, kept, err := FitReject(xs, ys, 1, WithWeights(w))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kept[3] {
		t.Error("zero-weight point reported as kept")
	}
	if math.Abs(coeffs[0]) > 1e-8 || math.Abs(coeffs[1]-1) > 1e-8 {
		t.Errorf("coeffs = %v, expected [0 1]", coeffs)
	}
}

func TestFitRejectErrors(t *testing.T) {
	if _, _, err := FitReject([]float64{1, 2}, []float64{1}, 1); !errors.Is(err, ErrBadInput) {
		t.Errorf("length mismatch: expected ErrBadInput, got %v", err)
	}
	if _, _, err := FitReject([]float64{1}, []float64{1}, 2); !errors.Is(err, ErrUnderdetermined) {
		t.Errorf("underdetermined: expected ErrUnderdetermined, got %v", err)
	}
}

func TestCleanCenters(t *testing.T) {
	// Two orders; the residual trend is linear in pixel within each.
	var pixel, order, catalog, center []float64
	for o := 0; o < 2; o++ {
		for i := 0; i < 10; i++ {
			x := float64(i * 50)
			pixel = append(pixel, x)
			order = append(order, float64(85+o))
			catalog = append(catalog, 5000+float64(o)*60+0.1*x)
			center = append(center, catalog[len(catalog)-1]+0.001+1e-6*x)
		}
	}
	// One gross outlier in the first order, one NaN center in the second.
	center[4] += 1.0
	center[13] = math.NaN()

	good, err := CleanCenters(pixel, order, catalog, center, 1, 0.004, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if good[4] {
		t.Error("outlier center kept")
	}
	if good[13] {
		t.Error("NaN center kept")
	}
	kept := 0
	for _, g := range good {
		if g {
			kept++
		}
	}
	if kept != 18 {
		t.Errorf("kept %d lines, expected 18", kept)
	}
}
