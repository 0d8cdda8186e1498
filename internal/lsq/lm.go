// Package lsq provides the bounded nonlinear least-squares machinery shared
// by the peak fitter and the calibrators: a Levenberg-Marquardt curve fitter
// with box constraints, and a logistic transform that maps box-constrained
// parameters onto an unbounded space for quasi-Newton minimizers.
package lsq

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Errors returned by CurveFit.
var (
	ErrNoData          = errors.New("lsq: no data points")
	ErrBadBounds       = errors.New("lsq: malformed parameter bounds")
	ErrNonFinite       = errors.New("lsq: non-finite residual at initial guess")
	ErrUnderdetermined = errors.New("lsq: fewer data points than parameters")
)

// Model evaluates a parametric curve over the sample positions x, writing
// one value per position into dst. len(dst) == len(x).
type Model func(dst []float64, x, params []float64)

// Problem describes one weighted curve-fitting task.
type Problem struct {
	Model   Model
	X, Y    []float64
	Weights []float64 // optional per-point weights; nil means uniform

	// Lower and Upper are per-parameter box constraints. Either slice may be
	// nil (unbounded) and entries may be ±Inf.
	Lower, Upper []float64
}

// Settings controls the Levenberg-Marquardt iteration.
type Settings struct {
	MaxIterations int     // default 200
	CostTolerance float64 // relative cost-decrease tolerance, default 1e-10
	StepTolerance float64 // parameter step tolerance, default 1e-12
}

// Result holds the fitted parameters and fit quality.
type Result struct {
	Params      []float64
	ParamErrors []float64 // one-sigma errors from the covariance diagonal
	SSRes       float64   // weighted sum of squared residuals
	RSquared    float64   // computed on the unweighted data
	Iterations  int
	Converged   bool
}

func normalizeSettings(s Settings) Settings {
	if s.MaxIterations <= 0 {
		s.MaxIterations = 200
	}

	if s.CostTolerance <= 0 {
		s.CostTolerance = 1e-10
	}

	if s.StepTolerance <= 0 {
		s.StepTolerance = 1e-12
	}

	return s
}

// CurveFit fits p.Model to (p.X, p.Y) starting at p0 using damped
// Gauss-Newton (Levenberg-Marquardt) steps projected onto the box
// constraints. It never propagates NaN: a trial step whose cost is
// non-finite is rejected like any uphill step.
func CurveFit(p Problem, p0 []float64, s Settings) (Result, error) {
	n := len(p.X)
	k := len(p0)

	if n == 0 || len(p.Y) != n {
		return Result{}, ErrNoData
	}

	if n < k {
		return Result{}, ErrUnderdetermined
	}

	if (p.Lower != nil && len(p.Lower) != k) || (p.Upper != nil && len(p.Upper) != k) {
		return Result{}, ErrBadBounds
	}

	s = normalizeSettings(s)

	params := make([]float64, k)
	copy(params, p0)
	clampToBounds(params, p.Lower, p.Upper)

	fit := make([]float64, n)
	res := make([]float64, n)

	cost := residuals(p, params, fit, res)
	if !isFinite(cost) {
		return Result{}, ErrNonFinite
	}

	lambda := 1e-3
	jac := mat.NewDense(n, k, nil)
	trial := make([]float64, k)
	trialFit := make([]float64, n)
	trialRes := make([]float64, n)

	iter := 0
	converged := false

	for ; iter < s.MaxIterations; iter++ {
		numericJacobian(p, params, fit, jac)

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)

		jtr := make([]float64, k)
		for j := 0; j < k; j++ {
			sum := 0.0
			for i := 0; i < n; i++ {
				sum += jac.At(i, j) * res[i]
			}

			jtr[j] = sum
		}

		accepted := false

		for tries := 0; tries < 12; tries++ {
			// Damped normal equations: (JtJ + lambda*diag(JtJ)) dp = Jt r.
			var damped mat.Dense
			damped.CloneFrom(&jtj)
			for j := 0; j < k; j++ {
				d := jtj.At(j, j)
				if d == 0 {
					d = 1
				}

				damped.Set(j, j, jtj.At(j, j)+lambda*d)
			}

			var dp mat.VecDense
			if err := dp.SolveVec(&damped, mat.NewVecDense(k, jtr)); err != nil {
				lambda *= 10
				continue
			}

			stepNorm := 0.0
			for j := 0; j < k; j++ {
				trial[j] = params[j] + dp.AtVec(j)
				stepNorm += dp.AtVec(j) * dp.AtVec(j)
			}

			clampToBounds(trial, p.Lower, p.Upper)

			trialCost := residuals(p, trial, trialFit, trialRes)
			if isFinite(trialCost) && trialCost < cost {
				improvement := cost - trialCost
				copy(params, trial)
				copy(fit, trialFit)
				copy(res, trialRes)
				cost = trialCost
				lambda = math.Max(lambda/10, 1e-12)
				accepted = true

				if improvement <= s.CostTolerance*math.Max(cost, 1e-300) ||
					math.Sqrt(stepNorm) <= s.StepTolerance {
					converged = true
				}

				break
			}

			lambda *= 10
		}

		if !accepted {
			// Damping exhausted without improvement: local minimum.
			converged = true
		}

		if converged {
			break
		}
	}

	result := Result{
		Params:      params,
		ParamErrors: paramErrors(p, params, fit, jac, cost),
		SSRes:       cost,
		RSquared:    rSquared(p.Y, fit),
		Iterations:  iter + 1,
		Converged:   converged,
	}

	return result, nil
}

// residuals evaluates the model and weighted residuals, returning the cost.
func residuals(p Problem, params, fit, res []float64) float64 {
	p.Model(fit, p.X, params)

	cost := 0.0
	for i := range res {
		r := p.Y[i] - fit[i]
		if p.Weights != nil {
			r *= p.Weights[i]
		}

		res[i] = r
		cost += r * r
	}

	return cost
}

// numericJacobian fills jac with forward-difference derivatives of the
// weighted model. fit holds the model at the current params.
func numericJacobian(p Problem, params, fit []float64, jac *mat.Dense) {
	n := len(p.X)
	k := len(params)
	pert := make([]float64, k)
	copy(pert, params)
	shifted := make([]float64, n)

	for j := 0; j < k; j++ {
		h := 1e-7 * math.Max(math.Abs(params[j]), 1e-7)
		pert[j] = params[j] + h
		p.Model(shifted, p.X, pert)
		pert[j] = params[j]

		for i := 0; i < n; i++ {
			d := (shifted[i] - fit[i]) / h
			if p.Weights != nil {
				d *= p.Weights[i]
			}

			jac.Set(i, j, d)
		}
	}
}

// paramErrors estimates one-sigma parameter errors from the covariance
// matrix s^2 (JtJ)^-1. A singular JtJ yields zero errors.
func paramErrors(p Problem, params, fit []float64, jac *mat.Dense, cost float64) []float64 {
	n := len(p.X)
	k := len(params)
	errs := make([]float64, k)

	dof := n - k
	if dof <= 0 {
		return errs
	}

	numericJacobian(p, params, fit, jac)

	var jtj mat.Dense
	jtj.Mul(jac.T(), jac)

	var inv mat.Dense
	if err := inv.Inverse(&jtj); err != nil {
		return errs
	}

	s2 := cost / float64(dof)
	for j := 0; j < k; j++ {
		v := s2 * inv.At(j, j)
		if v > 0 {
			errs[j] = math.Sqrt(v)
		}
	}

	return errs
}

func rSquared(y, fit []float64) float64 {
	mean := 0.0
	for _, v := range y {
		mean += v
	}

	mean /= float64(len(y))

	ssRes := 0.0
	ssTot := 0.0

	for i := range y {
		r := y[i] - fit[i]
		ssRes += r * r
		d := y[i] - mean
		ssTot += d * d
	}

	if ssTot == 0 {
		return 0
	}

	return 1 - ssRes/ssTot
}

func clampToBounds(params, lower, upper []float64) {
	for j := range params {
		if lower != nil && params[j] < lower[j] {
			params[j] = lower[j]
		}

		if upper != nil && params[j] > upper[j] {
			params[j] = upper[j]
		}
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
