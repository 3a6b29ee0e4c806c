// Copyright ©2026 optflow. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package numdiff estimates derivatives of smooth functions by finite
// differences.
//
// Step sizes follow the usual machine-precision heuristics and are
// adjusted against optional variable bounds so that no probe point ever
// leaves the allowed box: forward steps flip or shrink, central steps
// fall back to a one-sided second-order scheme near a bound.
package numdiff

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

var (
	sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
	cbrtEps = math.Cbrt(math.Nextafter(1, 2) - 1)
)

// Method selects the finite-difference scheme.
type Method int

const (
	// Forward uses the first-order accuracy forward difference.
	Forward Method = iota
	// Central uses the second-order central difference, with a
	// second-order one-sided fallback near a bound.
	Central
)

// Bound is the {lower, upper} evaluation range of one variable.
// A degenerate range (lower == upper) pins the variable; its derivative
// column is reported as zero.
type Bound [2]float64

// Jacobian estimates the M×N derivative matrix of a vector function.
type Jacobian struct {
	// N and M are the input and output dimensions of Func.
	N, M int
	// Func evaluates the function: x is an N-vector, the result is
	// written into the M-vector y.
	Func func(x, y []float64)
	// Method is the difference scheme, Forward by default.
	Method Method
	// Bounds optionally limits the evaluation range per variable.
	Bounds []Bound
	// Step is the absolute perturbation size. 0 derives a per-component
	// step from the machine precision; an explicit step that underflows
	// at the evaluation point is re-derived the same way.
	Step float64
	// Workers > 1 evaluates up to that many columns concurrently, each
	// on a private copy of x. Func must then be safe for concurrent
	// calls. The result is identical to the sequential one.
	Workers int
}

// Compute writes the finite-difference Jacobian at x into dst, row-major:
// dst[r*N+i] holds the partial of output r with respect to x[i].
func (jc *Jacobian) Compute(x, dst []float64) error {
	if err := jc.check(x, dst); err != nil {
		return err
	}
	h, oneSided := jc.steps(x)

	f0 := make([]float64, jc.M)
	jc.Func(x, f0)

	if jc.Workers > 1 {
		var eg errgroup.Group
		eg.SetLimit(jc.Workers)
		for i := range h {
			i := i
			eg.Go(func() error {
				xi := append([]float64(nil), x...)
				jc.column(i, h[i], oneSided[i], xi, f0, dst)
				return nil
			})
		}
		return eg.Wait()
	}

	xi := append([]float64(nil), x...)
	for i := range h {
		jc.column(i, h[i], oneSided[i], xi, f0, dst)
	}
	return nil
}

// column fills Jacobian column i. The perturbed component of the scratch
// vector xi is restored before returning.
func (jc *Jacobian) column(i int, h float64, oneSided bool, xi, f0, dst []float64) {
	n, m := jc.N, jc.M
	if h == 0 { // pinned variable
		for r := 0; r < m; r++ {
			dst[r*n+i] = 0
		}
		return
	}
	t := xi[i]
	f1 := make([]float64, m)
	switch {
	case jc.Method == Forward:
		xi[i] = t + h
		jc.Func(xi, f1)
		inv := 1 / h
		for r := 0; r < m; r++ {
			dst[r*n+i] = (f1[r] - f0[r]) * inv
		}
	case oneSided:
		f2 := make([]float64, m)
		xi[i] = t + h
		jc.Func(xi, f1)
		xi[i] = t + 2*h
		jc.Func(xi, f2)
		inv := 1 / (2 * h)
		for r := 0; r < m; r++ {
			dst[r*n+i] = (4*f1[r] - 3*f0[r] - f2[r]) * inv
		}
	default:
		f2 := make([]float64, m)
		xi[i] = t - h
		jc.Func(xi, f1)
		xi[i] = t + h
		jc.Func(xi, f2)
		inv := 1 / (2 * h)
		for r := 0; r < m; r++ {
			dst[r*n+i] = (f2[r] - f1[r]) * inv
		}
	}
	xi[i] = t
}

// steps resolves the per-component step sizes and, for the central
// scheme, which components must difference one-sided to stay in bounds.
func (jc *Jacobian) steps(x []float64) (h []float64, oneSided []bool) {
	eps := sqrtEps
	if jc.Method == Central {
		eps = cbrtEps
	}
	h = make([]float64, len(x))
	oneSided = make([]bool, len(x))
	for i, v := range x {
		s := math.Copysign(jc.Step, v)
		if s == 0 || (v+s)-v == 0 {
			s = math.Copysign(eps, v) * math.Max(1, math.Abs(v))
		}
		h[i] = s
	}
	if jc.Bounds == nil {
		if jc.Method == Central {
			for i := range h {
				h[i] = math.Abs(h[i])
			}
		}
		return h, oneSided
	}
	for i, v := range x {
		lo, hi := jc.Bounds[i][0], jc.Bounds[i][1]
		ld, ud := v-lo, hi-v
		if jc.Method == Forward {
			if t := v + h[i]; t < lo || t > hi {
				if math.Abs(h[i]) < math.Max(ld, ud) {
					h[i] = -h[i]
				} else if ud >= ld {
					h[i] = ud
				} else {
					h[i] = -ld
				}
			}
			continue
		}
		h[i] = math.Abs(h[i])
		if ld >= h[i] && ud >= h[i] {
			continue // the central stencil fits
		}
		if ud >= ld {
			h[i] = math.Min(h[i], ud/2)
		} else {
			h[i] = -math.Min(h[i], ld/2)
		}
		oneSided[i] = true
		if near := math.Min(ld, ud); math.Abs(h[i]) <= near && near > 0 {
			h[i] = near
			oneSided[i] = false
		}
	}
	return h, oneSided
}

func (jc *Jacobian) check(x, dst []float64) error {
	switch {
	case jc.N <= 0 || jc.M <= 0:
		return errors.New("numdiff: dimensions must be positive")
	case jc.Func == nil:
		return errors.New("numdiff: function is required")
	case jc.Method != Forward && jc.Method != Central:
		return errors.New("numdiff: unknown method")
	case len(x) != jc.N:
		return errors.New("numdiff: x dimension mismatch")
	case len(dst) != jc.N*jc.M:
		return errors.New("numdiff: jacobian dimension mismatch")
	case jc.Step < 0 || math.IsNaN(jc.Step):
		return errors.New("numdiff: step must not be negative")
	}
	if jc.Bounds == nil {
		return nil
	}
	if len(jc.Bounds) != jc.N {
		return errors.New("numdiff: bound dimension mismatch")
	}
	for i, b := range jc.Bounds {
		if math.IsNaN(b[0]) || math.IsNaN(b[1]) || b[0] > b[1] {
			return fmt.Errorf("numdiff: invalid bound %d", i)
		}
		if x[i] < b[0] || x[i] > b[1] {
			return fmt.Errorf("numdiff: x violates bound %d", i)
		}
	}
	return nil
}

// Gradient estimates the derivative vector of a scalar function.
type Gradient struct {
	// Func evaluates the scalar function.
	Func func(x []float64) float64
	// Method, Bounds and Step behave as in Jacobian.
	Method Method
	Bounds []Bound
	Step   float64
}

// Compute writes the finite-difference gradient at x into dst.
func (gr *Gradient) Compute(x, dst []float64) error {
	if gr.Func == nil {
		return errors.New("numdiff: function is required")
	}
	jc := Jacobian{
		N:      len(x),
		M:      1,
		Func:   func(x, y []float64) { y[0] = gr.Func(x) },
		Method: gr.Method,
		Bounds: gr.Bounds,
		Step:   gr.Step,
	}
	return jc.Compute(x, dst)
}
