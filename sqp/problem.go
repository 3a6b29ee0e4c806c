// Copyright ©2026 optflow. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sqp solves smooth constrained nonlinear optimization problems
// with a sequential quadratic programming method.
//
// The solver handles problems of the form
//
//	minimize f(x) subject to
//	  - inequality constraints: g(x) >= 0
//	  - boundaries: lo <= x <= hi
//
// At each iterate a quadratic model of the Lagrangian, built from a damped
// BFGS approximation of its Hessian, is minimized subject to the linearized
// constraints and the shifted bounds. The resulting direction is searched
// with an L1 merit function, and the accepted point is clipped to the
// bounds exactly.
//
// Derivatives are optional: missing gradients are estimated with finite
// differences that never evaluate outside the bounds.
//
// Dieter Kraft: "A software package for sequential quadratic programming".
// DFVLR-FB 88-28, 1988.
package sqp

import (
	"errors"
	"fmt"
	"math"
)

// Func evaluates a scalar function at x. The solver never retains x and
// may reuse the backing slice between calls.
type Func func(x []float64) float64

// Grad writes the partial derivatives at x into dst (len(dst) == len(x)).
type Grad func(x, dst []float64)

// Bound is the closed interval allowed for one variable. Lower == Upper
// fixes the variable, infinite endpoints leave the side unbounded.
type Bound struct {
	Lower, Upper float64
}

// ConstraintKind tags the sense of a constraint function.
type ConstraintKind int

const (
	// Inequality constraints are feasible when the function value is >= 0.
	Inequality ConstraintKind = iota
)

func (k ConstraintKind) String() string {
	if k == Inequality {
		return "Inequality"
	}
	return fmt.Sprintf("ConstraintKind(%d)", int(k))
}

// Constraint pairs a constraint function with its kind.
// A nil Grad selects finite-difference constraint normals.
type Constraint struct {
	Kind ConstraintKind
	F    Func
	Grad Grad
}

// Problem describes a constrained nonlinear program. It is read-only to
// the solver: the same Problem value may be solved repeatedly, or from
// multiple goroutines, as long as the callback functions are pure.
type Problem struct {
	// Objective is the function to minimize.
	Objective Func
	// Gradient of the objective, or nil for finite differences.
	Gradient Grad
	// Constraints holds the inequality constraints, in order.
	Constraints []Constraint
	// Bounds per variable. A nil slice leaves all variables free,
	// otherwise the length must match the initial point.
	Bounds []Bound
}

// Options configures a solve. The zero value selects all defaults.
type Options struct {
	// MaxIterations caps the outer SQP iterations (default 100).
	MaxIterations int
	// Tolerance on the step norm and constraint violation at
	// convergence (default 1e-6).
	Tolerance float64
	// StepSize is the absolute finite-difference perturbation, 0 picks
	// a per-component step from the machine precision (about 1e-8).
	StepSize float64
	// Backtracks caps the step halvings in one line search (default 20).
	Backtracks int
	// HessianResets caps how often a degenerate curvature update may
	// restart the Hessian approximation from identity (default 5).
	HessianResets int
}

// DefaultOptions returns the documented default options.
func DefaultOptions() *Options {
	return &Options{
		MaxIterations: 100,
		Tolerance:     1e-6,
		Backtracks:    20,
		HessianResets: 5,
	}
}

func (o *Options) withDefaults() (Options, error) {
	def := *DefaultOptions()
	if o == nil {
		return def, nil
	}
	opt := *o
	switch {
	case opt.MaxIterations < 0:
		return opt, errors.New("sqp: max iterations must not be negative")
	case opt.Tolerance < 0 || math.IsNaN(opt.Tolerance):
		return opt, errors.New("sqp: tolerance must not be negative")
	case opt.StepSize < 0 || math.IsNaN(opt.StepSize):
		return opt, errors.New("sqp: step size must not be negative")
	case opt.Backtracks < 0:
		return opt, errors.New("sqp: backtrack budget must not be negative")
	case opt.HessianResets < 0:
		return opt, errors.New("sqp: hessian reset budget must not be negative")
	}
	if opt.MaxIterations == 0 {
		opt.MaxIterations = def.MaxIterations
	}
	if opt.Tolerance == 0 {
		opt.Tolerance = def.Tolerance
	}
	if opt.Backtracks == 0 {
		opt.Backtracks = def.Backtracks
	}
	if opt.HessianResets == 0 {
		opt.HessianResets = def.HessianResets
	}
	return opt, nil
}

// validate reports the first malformed-problem precondition failure.
func (p *Problem) validate(x0 []float64) error {
	if p.Objective == nil {
		return errors.New("sqp: objective function is required")
	}
	if len(x0) == 0 {
		return errors.New("sqp: initial point is empty")
	}
	for i, v := range x0 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("sqp: initial point component %d is not finite", i)
		}
	}
	if p.Bounds != nil && len(p.Bounds) != len(x0) {
		return fmt.Errorf("sqp: %d bounds for %d variables", len(p.Bounds), len(x0))
	}
	for i, b := range p.Bounds {
		if math.IsNaN(b.Lower) || math.IsNaN(b.Upper) {
			return fmt.Errorf("sqp: bound %d is NaN", i)
		}
		if b.Lower > b.Upper {
			return fmt.Errorf("sqp: bound %d has lower %g above upper %g", i, b.Lower, b.Upper)
		}
	}
	for j, c := range p.Constraints {
		if c.F == nil {
			return fmt.Errorf("sqp: constraint %d has no function", j)
		}
		if c.Kind != Inequality {
			return fmt.Errorf("sqp: constraint %d has unknown kind %v", j, c.Kind)
		}
	}
	return nil
}
