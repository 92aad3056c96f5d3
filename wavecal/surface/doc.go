// Package surface fits the global dispersion model of an echelle
// spectrograph: a truncated 2-D polynomial in standardized pixel
// coordinate and order index whose value is the standardized product
// wavelength x order. Fitting the product instead of the wavelength
// follows the grating equation, which makes the surface smooth across
// orders.
//
// Inputs are vetted twice: a quality pre-filter drops poorly
// constrained line fits before the solve, and an iterative rejection
// loop removes the single worst deviator per pass while guaranteeing a
// minimum surviving line count per order. The fitted Model carries the
// coefficients together with the three scalers needed to evaluate it on
// raw coordinates, and round-trips through JSON.
package surface
