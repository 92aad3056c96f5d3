// Package sanitize masks defective samples in extracted 1-D arc spectra.
package sanitize

import "github.com/cwbudde/algo-wavecal/wavecal/grid"

// DefaultSaturation is the detector full-well count above which a sample
// is treated as saturated.
const DefaultSaturation = 50000

// DefaultConvLen is the half width of the zeroed window around a
// saturated sample, covering bleed halos on both sides.
const DefaultConvLen = 20

// Fix returns a copy of spec with defective samples set to exactly zero:
// every sample >= satThreshold zeroes a window of width 2*convLen around
// its pixel position within the order row (clamped at the row bounds),
// and every strictly negative sample is zeroed individually.
//
// Fix is pure and idempotent; the output never exceeds the input in
// magnitude.
func Fix(spec *grid.Grid, convLen int, satThreshold float64) *grid.Grid {
	out := spec.Clone()
	for row := 0; row < spec.Rows; row++ {
		in := spec.Row(row)
		dst := out.Row(row)
		for px, v := range in {
			if v >= satThreshold {
				lo := px - convLen
				if lo < 0 {
					lo = 0
				}
				hi := px + convLen
				if hi > len(dst) {
					hi = len(dst)
				}
				for i := lo; i < hi; i++ {
					dst[i] = 0
				}
			}
		}
		for px, v := range in {
			if v < 0 {
				dst[px] = 0
			}
		}
	}
	return out
}
