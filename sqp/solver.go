// Copyright ©2026 optflow. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqp

import (
	"errors"
	"fmt"
	"math"

	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"

	"github.com/optflow/optimizer/numdiff"
)

// Solve minimizes p.Objective from x0 and returns the final Result.
//
// A starting point outside the bounds is clipped into range before the
// first evaluation. Malformed input is reported as an error before any
// iteration; numeric trouble during the iteration never is: it degrades
// to a non-Converged Result status carrying the last accepted iterate.
//
// The call is synchronous and has no side effects beyond invoking the
// problem callbacks. Identical inputs produce identical Results.
func Solve(p Problem, x0 []float64, opt *Options) (*Result, error) {
	o, err := opt.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := p.validate(x0); err != nil {
		return nil, err
	}
	return newSolver(&p, o, len(x0)).run(x0)
}

// solver carries the mutable state of one solve.
type solver struct {
	prob *Problem
	opt  Options
	n, m int

	lower, upper []float64
	fdBounds     []numdiff.Bound

	hess   *mat64.Dense
	mu     []float64 // merit penalty weights
	resets int
	evals  int
	iters  int
}

func newSolver(p *Problem, o Options, n int) *solver {
	s := &solver{prob: p, opt: o, n: n, m: len(p.Constraints)}
	s.lower = make([]float64, n)
	s.upper = make([]float64, n)
	for i := range s.lower {
		s.lower[i] = math.Inf(-1)
		s.upper[i] = math.Inf(1)
	}
	for i, b := range p.Bounds {
		s.lower[i], s.upper[i] = b.Lower, b.Upper
	}
	s.fdBounds = make([]numdiff.Bound, n)
	for i := range s.fdBounds {
		s.fdBounds[i] = numdiff.Bound{s.lower[i], s.upper[i]}
	}
	s.mu = make([]float64, s.m)
	s.hess = mat64.NewDense(n, n, nil)
	return s
}

func (s *solver) run(x0 []float64) (*Result, error) {
	n, m := s.n, s.m
	tol := s.opt.Tolerance

	x := append([]float64(nil), x0...)
	s.clip(x)

	f, ok := s.objective(x)
	if !ok {
		return nil, errors.New("sqp: objective is not finite at the starting point")
	}
	c := make([]float64, m)
	if !s.constraintVals(x, c) {
		return nil, errors.New("sqp: constraints are not finite at the starting point")
	}

	g := make([]float64, n)
	jac := make([][]float64, m)
	for j := range jac {
		jac[j] = make([]float64, n)
	}
	if err := s.gradients(x, g, jac); err != nil {
		return nil, err
	}
	s.resetHessian()

	var lam []float64
	status := MaxIterationsExceeded
	dl := make([]float64, n)
	du := make([]float64, n)
	gradL := make([]float64, n)
	step := make([]float64, n)
	y := make([]float64, n)

	for iter := 1; iter <= s.opt.MaxIterations; iter++ {
		s.iters = iter

		// Transfer bounds lo <= x <= hi to lo-x <= d <= hi-x.
		for i := range x {
			dl[i] = s.lower[i] - x[i]
			du[i] = s.upper[i] - x[i]
		}
		d, mult, ok := direction(s.hess, g, jac, c, dl, du)
		if !ok {
			if iter == 1 && violation(c) > tol {
				status = InfeasibleStart
				break
			}
			if s.resets < s.opt.HessianResets {
				s.resetHessian()
				s.resets++
				continue
			}
			status = LineSearchFailure
			break
		}
		lam = mult

		// KKT measure |∇f·d| + Σ|λⱼ||cⱼ| and total violation Σmax(0,-cⱼ).
		gd := floats.Dot(g, d)
		kkt := math.Abs(gd)
		vio := 0.0
		for j, cv := range c {
			kkt += math.Abs(lam[j]) * math.Abs(cv)
			vio += math.Max(0, -cv)
		}
		if kkt < tol && vio < tol {
			status = Converged
			break
		}

		// Raise the penalty weights toward the current multipliers.
		phi0, dd := f, gd
		for j, cv := range c {
			al := math.Abs(lam[j])
			s.mu[j] = math.Max(al, (s.mu[j]+al)/2)
			pen := s.mu[j] * math.Max(0, -cv)
			phi0 += pen
			dd -= pen
		}
		if dd >= 0 {
			// Not a descent direction for the merit function.
			if s.resets < s.opt.HessianResets {
				s.resetHessian()
				s.resets++
				continue
			}
			status = LineSearchFailure
			break
		}

		xNew, fNew, cNew, ok := s.lineSearch(x, d, phi0, dd)
		if !ok {
			status = LineSearchFailure
			break
		}

		// ∇L(x,λ) before the step, for the curvature pair.
		s.lagrangianGrad(g, jac, lam, gradL)

		copy(step, xNew)
		floats.Sub(step, x)
		copy(x, xNew)
		f = fNew
		copy(c, cNew)

		if floats.Norm(step, 2) < tol && violation(c) < tol {
			status = Converged
			break
		}

		if err := s.gradients(x, g, jac); err != nil {
			status = LineSearchFailure
			break
		}
		s.lagrangianGrad(g, jac, lam, y)
		floats.Sub(y, gradL)
		s.updateHessian(step, y)
	}

	res := &Result{
		X:               x,
		F:               f,
		Success:         status == Converged,
		Status:          status,
		Iterations:      s.iters,
		FuncEvaluations: s.evals,
	}
	if lam != nil {
		res.Multipliers = append([]float64(nil), lam...)
	}
	return res, nil
}

// lineSearch backtracks along d until the L1 merit function satisfies the
// sufficient decrease condition. Every trial point is clipped to the
// bounds before evaluation; a panicking or non-finite evaluation rejects
// the trial like any other failed decrease.
func (s *solver) lineSearch(x, d []float64, phi0, dd float64) (xt []float64, ft float64, ct []float64, ok bool) {
	const sufficient = 0.1
	xt = make([]float64, s.n)
	ct = make([]float64, s.m)
	alpha := 1.0
	for t := 0; t < s.opt.Backtracks; t++ {
		copy(xt, x)
		floats.AddScaled(xt, alpha, d)
		s.clip(xt)
		f, okf := s.objective(xt)
		if okf && s.constraintVals(xt, ct) {
			phi := f
			for j, cv := range ct {
				phi += s.mu[j] * math.Max(0, -cv)
			}
			if phi <= phi0+sufficient*alpha*dd {
				return xt, f, ct, true
			}
		}
		alpha /= 2
	}
	return nil, 0, nil, false
}

// objective evaluates the objective with panic recovery, counting the
// evaluation and reporting whether the value is finite.
func (s *solver) objective(x []float64) (f float64, ok bool) {
	defer func() {
		if recover() != nil {
			f, ok = math.NaN(), false
		}
	}()
	s.evals++
	f = s.prob.Objective(x)
	ok = !math.IsNaN(f) && !math.IsInf(f, 0)
	return
}

// constraintVals evaluates every constraint into dst, reporting false on
// a panic or a non-finite value.
func (s *solver) constraintVals(x, dst []float64) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	for j, con := range s.prob.Constraints {
		v := con.F(x)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		dst[j] = v
	}
	return true
}

// gradients fills the objective gradient and the constraint normals at x,
// analytically where supplied and by finite differences otherwise.
func (s *solver) gradients(x, g []float64, jac [][]float64) error {
	if s.prob.Gradient != nil {
		s.prob.Gradient(x, g)
	} else {
		fd := numdiff.Gradient{
			Func: func(v []float64) float64 {
				f, _ := s.objective(v)
				return f
			},
			Bounds: s.fdBounds,
			Step:   s.opt.StepSize,
		}
		if err := fd.Compute(x, g); err != nil {
			return err
		}
	}
	if !finite(g) {
		return errors.New("sqp: objective gradient is not finite")
	}
	for j, con := range s.prob.Constraints {
		if con.Grad != nil {
			con.Grad(x, jac[j])
		} else {
			fn := con.F
			fd := numdiff.Gradient{
				Func: func(v []float64) (cv float64) {
					defer func() {
						if recover() != nil {
							cv = math.NaN()
						}
					}()
					return fn(v)
				},
				Bounds: s.fdBounds,
				Step:   s.opt.StepSize,
			}
			if err := fd.Compute(x, jac[j]); err != nil {
				return err
			}
		}
		if !finite(jac[j]) {
			return fmt.Errorf("sqp: constraint %d normal is not finite", j)
		}
	}
	return nil
}

// lagrangianGrad writes ∇f(x) - Σ λⱼ·∇cⱼ(x) into dst.
func (s *solver) lagrangianGrad(g []float64, jac [][]float64, lam, dst []float64) {
	copy(dst, g)
	for j, row := range jac {
		if lam[j] != 0 {
			floats.AddScaled(dst, -lam[j], row)
		}
	}
}

// clip moves x onto the bounds, coordinate by coordinate.
func (s *solver) clip(x []float64) {
	for i, v := range x {
		if v < s.lower[i] {
			x[i] = s.lower[i]
		} else if v > s.upper[i] {
			x[i] = s.upper[i]
		}
	}
}

// violation is the accumulated constraint violation Σ max(0, -cⱼ).
func violation(c []float64) float64 {
	v := 0.0
	for _, cv := range c {
		v += math.Max(0, -cv)
	}
	return v
}

func finite(v []float64) bool {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
