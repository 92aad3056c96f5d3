// Package grid provides the 2-D numeric grid used throughout the
// calibration pipeline, plus explicit detector-frame arithmetic.
//
// A Grid is a plain row-major float64 matrix indexed as (order, pixel).
// Detector metadata (gain, readout noise, trim, rotation) lives in a
// separate FrameMeta record instead of being attached to the array type;
// frame arithmetic is expressed as free functions that take and return
// (grid, metadata) pairs explicitly:
//
//	diff, meta, err := grid.Subtract(raw, rawMeta, bias, biasMeta)
//	flat, err := grid.Combine(frames, grid.CombineMedian)
//
// Grids are value objects: no function in this package mutates its
// inputs unless its name says so.
package grid
