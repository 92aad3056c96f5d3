// Package lsq wraps Levenberg-Marquardt minimization with the two
// extras the calibration fits need: box bounds on the parameters and a
// covariance estimate for the solution.
package lsq

import (
	"errors"
	"fmt"
	"math"

	"github.com/maorshutman/lm"
	"gonum.org/v1/gonum/mat"
)

// Errors returned by curve fitting.
var (
	ErrUnderdetermined = errors.New("lsq: fewer samples than parameters")
	ErrOutOfBounds     = errors.New("lsq: solution violates parameter bounds")
	ErrNoConvergence   = errors.New("lsq: fit did not converge")
)

// penaltyWeight scales the residuals that pull a parameter back inside
// its box during minimization.
const penaltyWeight = 1e6

// Model evaluates a parametric model at a single sample point.
type Model func(x float64, p []float64) float64

// Bounds is a per-parameter box constraint. Use -Inf/+Inf entries for
// unbounded parameters; a nil slice leaves the whole side open.
type Bounds struct {
	Lo, Hi []float64
}

// Unbounded returns bounds leaving all n parameters free.
func Unbounded(n int) Bounds {
	lo := make([]float64, n)
	hi := make([]float64, n)
	for i := range lo {
		lo[i] = math.Inf(-1)
		hi[i] = math.Inf(1)
	}
	return Bounds{Lo: lo, Hi: hi}
}

func (b Bounds) lo(i int) float64 {
	if b.Lo == nil {
		return math.Inf(-1)
	}
	return b.Lo[i]
}

func (b Bounds) hi(i int) float64 {
	if b.Hi == nil {
		return math.Inf(1)
	}
	return b.Hi[i]
}

// CurveFit fits model parameters to (xs, ys) by Levenberg-Marquardt
// minimization of squared residuals, keeping parameters inside bounds
// via penalty residuals. It returns the fitted parameters and their
// variance estimates s^2 * diag((J^T J)^-1), matching the diagonal of
// the usual nonlinear-fit covariance matrix.
//
// A fit that converges outside its box (beyond numerical slack) is an
// error; callers treat it like non-convergence.
func CurveFit(f Model, xs, ys, p0 []float64, bounds Bounds) (params, variances []float64, err error) {
	nP := len(p0)
	if len(xs) != len(ys) {
		return nil, nil, fmt.Errorf("lsq: len(xs)=%d, len(ys)=%d", len(xs), len(ys))
	}
	if len(xs) < nP {
		return nil, nil, fmt.Errorf("%w: %d samples, %d parameters", ErrUnderdetermined, len(xs), nP)
	}

	residuals := func(dst, p []float64) {
		for i, x := range xs {
			dst[i] = f(x, p) - ys[i]
		}
		for j := 0; j < nP; j++ {
			var viol float64
			if lo := bounds.lo(j); p[j] < lo {
				viol = lo - p[j]
			} else if hi := bounds.hi(j); p[j] > hi {
				viol = p[j] - hi
			}
			dst[len(xs)+j] = penaltyWeight * viol
		}
	}

	jac := lm.NumJac{Func: residuals}
	prob := lm.LMProblem{
		Dim:        nP,
		Size:       len(xs) + nP,
		Func:       residuals,
		Jac:        jac.Jac,
		InitParams: append([]float64(nil), p0...),
		Tau:        1e-6,
		Eps1:       1e-8,
		Eps2:       1e-8,
	}
	res, err := lm.LM(prob, &lm.Settings{Iterations: 200, ObjectiveTol: 1e-16})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNoConvergence, err)
	}

	params = append([]float64(nil), res.X...)
	for j := range params {
		lo, hi := bounds.lo(j), bounds.hi(j)
		slack := 1e-6 * (1 + math.Abs(params[j]))
		if params[j] < lo-slack || params[j] > hi+slack {
			return nil, nil, fmt.Errorf("%w: p[%d] = %v outside [%v, %v]", ErrOutOfBounds, j, params[j], lo, hi)
		}
		// Snap numerical-slack violations onto the box face.
		params[j] = math.Min(math.Max(params[j], lo), hi)
	}

	variances = covarianceDiag(f, xs, ys, params)
	return params, variances, nil
}

// covarianceDiag estimates the parameter variances from a forward
// difference Jacobian of the unpenalized residuals at the solution.
func covarianceDiag(f Model, xs, ys, p []float64) []float64 {
	nP := len(p)
	n := len(xs)
	variances := make([]float64, nP)

	base := make([]float64, n)
	for i, x := range xs {
		base[i] = f(x, p) - ys[i]
	}

	jac := mat.NewDense(n, nP, nil)
	pj := append([]float64(nil), p...)
	for j := 0; j < nP; j++ {
		h := 1e-7 * (1 + math.Abs(p[j]))
		pj[j] = p[j] + h
		for i, x := range xs {
			jac.Set(i, j, (f(x, pj)-ys[i]-base[i])/h)
		}
		pj[j] = p[j]
	}

	dof := n - nP
	if dof < 1 {
		dof = 1
	}
	var rss float64
	for _, r := range base {
		rss += r * r
	}
	s2 := rss / float64(dof)

	var jtj mat.Dense
	jtj.Mul(jac.T(), jac)
	var inv mat.Dense
	if err := inv.Inverse(&jtj); err != nil {
		for j := range variances {
			variances[j] = math.NaN()
		}
		return variances
	}
	for j := range variances {
		variances[j] = s2 * inv.At(j, j)
	}
	return variances
}
