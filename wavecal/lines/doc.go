// Package lines refines arc-line positions against a catalog of known
// wavelengths.
//
// For every spectral order, each catalog line inside the order's
// initial wavelength guess is fit with a localized Gaussian-plus-offset
// model to obtain a sub-pixel centroid; the order's wavelength-vs-pixel
// guess is then inverted to recover the pixel coordinate of every
// refined centroid.
//
// Orders are fully independent and run on a bounded parallel map; the
// assembled result is deterministic, ordered by order row, with catalog
// order preserved inside each order. A line whose fit fails keeps its
// slot with all-NaN parameters so the parallel slices stay aligned; an
// order whose guess is not monotonic is dropped and reported in
// Set.Dropped.
package lines
