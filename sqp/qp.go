// Copyright ©2026 optflow. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqp

import (
	"math"

	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"
)

var macheps = math.Nextafter(1, 2) - 1

// cholFactor computes the lower Cholesky factor of the row-major n×n
// symmetric matrix a, reporting false when a is not positive definite.
func cholFactor(a []float64, n int) (l []float64, ok bool) {
	l = make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := a[i*n+j]
			for k := 0; k < j; k++ {
				sum -= l[i*n+k] * l[j*n+k]
			}
			if i == j {
				if sum <= 0 || math.IsNaN(sum) {
					return nil, false
				}
				l[i*n+i] = math.Sqrt(sum)
			} else {
				l[i*n+j] = sum / l[j*n+j]
			}
		}
	}
	return l, true
}

// fwdSolve solves L·y = x in place for lower triangular L.
func fwdSolve(n int, l, x []float64) {
	for i := 0; i < n; i++ {
		s := x[i]
		for k := 0; k < i; k++ {
			s -= l[i*n+k] * x[k]
		}
		x[i] = s / l[i*n+i]
	}
}

// bwdSolve solves Lᵀ·y = x in place for lower triangular L.
func bwdSolve(n int, l, x []float64) {
	for i := n - 1; i >= 0; i-- {
		s := x[i]
		for k := i + 1; k < n; k++ {
			s -= l[k*n+i] * x[k]
		}
		x[i] = s / l[i*n+i]
	}
}

// nnls solves min ‖A·u - b‖₂ subject to u >= 0 with the Lawson-Hanson
// active-set method. The matrix is given by its columns; the passive-set
// least squares subproblem is solved through its normal equations, which
// is adequate at the problem sizes the solver produces.
//
// C.L. Lawson, R.J. Hanson, 'Solving least squares problems'.
// Prentice Hall, 1974. Chapter 23, Algorithm 23.10.
func nnls(cols [][]float64, b []float64) (u []float64, rnorm float64, ok bool) {
	nc := len(cols)
	u = make([]float64, nc)
	r := append([]float64(nil), b...)
	passive := make([]bool, nc)
	set := make([]int, 0, nc)
	z := make([]float64, 0, nc)

	tol := 10 * macheps * floats.Norm(b, 2)
	for iter := 0; iter <= 3*nc; iter++ {
		// dual w = Aᵀ(b - A·u) over the zero set
		best, pick := tol, -1
		for j, col := range cols {
			if passive[j] {
				continue
			}
			if w := floats.Dot(col, r); w > best {
				best, pick = w, j
			}
		}
		if pick < 0 {
			return u, floats.Norm(r, 2), true
		}
		passive[pick] = true
		set = append(set, pick)

		for inner := 0; inner <= nc; inner++ {
			z = z[:len(set)]
			if !lsqPassive(cols, b, set, z) {
				return u, 0, false
			}
			neg := false
			for _, v := range z {
				if v <= 0 {
					neg = true
					break
				}
			}
			if !neg {
				for i, j := range set {
					u[j] = z[i]
				}
				break
			}
			// move back toward feasibility along u -> z
			alpha := math.Inf(1)
			for i, j := range set {
				if z[i] <= 0 {
					if t := u[j] / (u[j] - z[i]); t < alpha {
						alpha = t
					}
				}
			}
			for i, j := range set {
				u[j] += alpha * (z[i] - u[j])
			}
			keep := set[:0]
			for _, j := range set {
				if u[j] > tol {
					keep = append(keep, j)
				} else {
					u[j] = 0
					passive[j] = false
				}
			}
			set = keep
		}

		copy(r, b)
		for _, j := range set {
			floats.AddScaled(r, -u[j], cols[j])
		}
	}
	return u, 0, false
}

// lsqPassive solves the unconstrained least squares problem restricted to
// the passive columns, writing the coefficients into z.
func lsqPassive(cols [][]float64, b []float64, set []int, z []float64) bool {
	k := len(set)
	gram := make([]float64, k*k)
	for i, ji := range set {
		for j := 0; j <= i; j++ {
			v := floats.Dot(cols[ji], cols[set[j]])
			gram[i*k+j] = v
			gram[j*k+i] = v
		}
		z[i] = floats.Dot(cols[ji], b)
	}
	l, ok := cholFactor(gram, k)
	if !ok {
		return false
	}
	fwdSolve(k, l, z)
	bwdSolve(k, l, z)
	return true
}

// ldp solves the least distance problem min ‖z‖₂ subject to G·z >= h.
//
// NNLS solves LDP on the (n+1)×m matrix [Gᵀ; hᵀ] against the unit vector
// e_{n+1}: with u the NNLS solution and r its residual, the constraints
// are compatible exactly when ‖r‖ > 0, and then z = Gᵀu/(1 - hᵀu) with
// multipliers u/(1 - hᵀu). In floating point an exact fit leaves rounding
// noise in both ‖r‖ and 1 - hᵀu, so the incompatibility tests compare
// against thresholds scaled by the stacked matrix norm instead of zero.
func ldp(g [][]float64, h []float64, n int) (z, lam []float64, ok bool) {
	m := len(g)
	z = make([]float64, n)
	lam = make([]float64, m)
	if m == 0 {
		return z, lam, true
	}
	cols := make([][]float64, m)
	frob := 0.0
	for j, row := range g {
		col := make([]float64, n+1)
		copy(col, row)
		col[n] = h[j]
		cols[j] = col
		frob += floats.Dot(col, col)
	}
	frob = math.Sqrt(frob)
	b := make([]float64, n+1)
	b[n] = 1

	u, rnorm, ok := nnls(cols, b)
	if !ok || rnorm <= 10*macheps*(1+frob) {
		return z, lam, false
	}
	hu := floats.Dot(h, u)
	fac := 1 - hu
	if math.IsNaN(fac) || fac <= 10*macheps*(1+math.Abs(hu)) {
		return z, lam, false
	}
	for j, row := range g {
		if u[j] != 0 {
			floats.AddScaled(z, u[j]/fac, row)
		}
	}
	for j := range lam {
		lam[j] = u[j] / fac
	}
	return z, lam, true
}

// direction solves the quadratic subproblem
//
//	min ½ dᵀBd + gᵀd  subject to  A·d + c >= 0,  dl <= d <= du
//
// for the search direction d and the constraint multipliers. With the
// Cholesky factor B = LLᵀ and the substitution z = Lᵀd + L⁻¹g the
// subproblem reduces to a least distance problem over the linearized
// constraints and the bound rows ±I; infinite bounds contribute no row.
// ok is false when B is indefinite or the linearization is incompatible.
func direction(b *mat64.Dense, g []float64, a [][]float64, c, dl, du []float64) (d, lam []float64, ok bool) {
	n := len(g)
	raw := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			raw[i*n+j] = b.At(i, j)
		}
	}
	l, ok := cholFactor(raw, n)
	if !ok {
		return nil, nil, false
	}

	// v = B⁻¹g
	v := append([]float64(nil), g...)
	fwdSolve(n, l, v)
	bwdSolve(n, l, v)

	rows := make([][]float64, 0, len(a)+2*n)
	rhs := make([]float64, 0, len(a)+2*n)
	for j, row := range a {
		rows = append(rows, row)
		rhs = append(rhs, -c[j])
	}
	for i, lo := range dl {
		if !math.IsInf(lo, -1) {
			e := make([]float64, n)
			e[i] = 1
			rows = append(rows, e)
			rhs = append(rhs, lo)
		}
	}
	for i, up := range du {
		if !math.IsInf(up, 1) {
			e := make([]float64, n)
			e[i] = -1
			rows = append(rows, e)
			rhs = append(rhs, -up)
		}
	}

	// E = G·L⁻ᵀ and h' = h + G·B⁻¹g
	em := make([][]float64, len(rows))
	hp := make([]float64, len(rows))
	for j, row := range rows {
		e := append([]float64(nil), row...)
		fwdSolve(n, l, e)
		em[j] = e
		hp[j] = rhs[j] + floats.Dot(row, v)
	}

	z, mult, ok := ldp(em, hp, n)
	if !ok {
		return nil, nil, false
	}

	d = z
	bwdSolve(n, l, d)
	floats.Sub(d, v)
	return d, mult[:len(a)], true
}
