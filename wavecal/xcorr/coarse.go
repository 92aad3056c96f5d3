package xcorr

import (
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/cwbudde/algo-wavecal/wavecal/grid"
)

// CoarsePixelShift estimates the pixel shift of a single order row of
// fixed relative to the same row of tmpl by FFT cross-correlation over
// the full row. It follows the EstimateShift sign convention:
// fixed(x) ~ tmpl(x + shift).
//
// The estimate considers all lags at once, so it is useful for bounding
// the search range handed to EstimateShift when the offset is unknown.
func CoarsePixelShift(fixed, tmpl *grid.Grid, row int) (int, error) {
	if fixed == nil || tmpl == nil || len(fixed.Data) == 0 || len(tmpl.Data) == 0 {
		return 0, ErrEmptyInput
	}
	if row < 0 || row >= fixed.Rows || row >= tmpl.Rows {
		return 0, fmt.Errorf("xcorr: row %d out of range", row)
	}

	corr, err := correlateFFT(fixed.Row(row), tmpl.Row(row))
	if err != nil {
		return 0, err
	}

	best := 0
	for i, v := range corr {
		if v > corr[best] {
			best = i
		}
	}
	lag := best - (tmpl.Cols - 1)
	return -lag, nil
}

// correlateFFT computes the full linear cross-correlation of a and b
// via FFT. Output index k corresponds to lag k - (len(b) - 1).
func correlateFFT(a, b []float64) ([]float64, error) {
	n := len(a)
	m := len(b)
	fftSize := nextPowerOf2(n + m - 1)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("xcorr: failed to create FFT plan: %w", err)
	}

	aPadded := make([]complex128, fftSize)
	bPadded := make([]complex128, fftSize)
	for i := 0; i < n; i++ {
		aPadded[i] = complex(a[i], 0)
	}
	for i := 0; i < m; i++ {
		bPadded[i] = complex(b[i], 0)
	}

	aFreq := make([]complex128, fftSize)
	bFreq := make([]complex128, fftSize)
	if err := plan.Forward(aFreq, aPadded); err != nil {
		return nil, fmt.Errorf("xcorr: forward FFT failed: %w", err)
	}
	if err := plan.Forward(bFreq, bPadded); err != nil {
		return nil, fmt.Errorf("xcorr: forward FFT failed: %w", err)
	}

	resultFreq := make([]complex128, fftSize)
	for i := range resultFreq {
		bConj := complex(real(bFreq[i]), -imag(bFreq[i]))
		resultFreq[i] = aFreq[i] * bConj
	}

	resultTime := make([]complex128, fftSize)
	if err := plan.Inverse(resultTime, resultFreq); err != nil {
		return nil, fmt.Errorf("xcorr: inverse FFT failed: %w", err)
	}

	// Rearrange circular correlation into linear lag order: negative
	// lags sit at the tail of the FFT buffer.
	result := make([]float64, n+m-1)
	for i := 0; i < n; i++ {
		result[m-1+i] = real(resultTime[i])
	}
	for i := 0; i < m-1; i++ {
		result[i] = real(resultTime[fftSize-m+1+i])
	}
	return result, nil
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
