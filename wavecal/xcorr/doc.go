// Package xcorr locates the integer (pixel, order) offset of an arc
// spectrum relative to a reference template by 2-D cross-correlation.
//
// The search compares only the central 20%-80% window of both spectra
// along each axis to avoid edge artifacts. For every trial offset the
// mean of the elementwise product of the shifted window against the
// template window is stored in a correlation surface; the selected
// shift is the negated offset of the surface maximum, so that
//
//	fixed(x, y) ~ template(x + Shift.Pixel, y + Shift.Order)
//
// i.e. adding the returned shift to the fixed spectrum's coordinates
// yields the matching template coordinates. Resampling the template's
// wavelength map at those shifted coordinates aligns it to the fixed
// spectrum. The sign convention is locked by the
// round-trip tests in this package rather than by the formula.
//
// For large detectors a 1-D FFT prescan over a single order row,
// CoarsePixelShift, can bound the pixel search range cheaply before the
// full 2-D search runs.
package xcorr
