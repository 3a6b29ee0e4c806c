// Copyright ©2026 optflow. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqp

import (
	"math"

	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"
)

func (s *solver) resetHessian() {
	n := s.n
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := 0.0
			if i == j {
				v = 1
			}
			s.hess.Set(i, j, v)
		}
	}
}

// updateHessian applies the damped BFGS formula to the Hessian
// approximation of the Lagrangian:
//
//	B ← B + q·qᵀ/(sᵀq) - B·s·sᵀ·B/(sᵀBs)
//	q = θ·y + (1-θ)·B·s
//
// with θ = 1 when the curvature sᵀy reaches a fifth of sᵀBs and the
// Powell interpolation θ = 0.8·sᵀBs/(sᵀBs - sᵀy) otherwise, which keeps
// B positive definite. A degenerate pair restarts from identity instead.
func (s *solver) updateHessian(step, y []float64) {
	n := s.n
	bs := make([]float64, n)
	bsMat := mat64.NewDense(n, 1, bs)
	bsMat.Mul(s.hess, mat64.NewDense(n, 1, step))

	sBs := floats.Dot(step, bs)
	sy := floats.Dot(step, y)

	q := y
	if sy < 0.2*sBs {
		theta := 0.8 * sBs / (sBs - sy)
		q = make([]float64, n)
		for i := range q {
			q[i] = theta*y[i] + (1-theta)*bs[i]
		}
		sy = floats.Dot(step, q)
	}
	if sy <= 0 || sBs <= 0 || math.IsNaN(sy) || math.IsNaN(sBs) {
		if s.resets < s.opt.HessianResets {
			s.resetHessian()
			s.resets++
		}
		return
	}

	qMat := mat64.NewDense(n, 1, q)
	gain := mat64.NewDense(n, n, nil)
	gain.Mul(qMat, qMat.T())
	gain.Scale(1/sy, gain)

	loss := mat64.NewDense(n, n, nil)
	loss.Mul(bsMat, bsMat.T())
	loss.Scale(1/sBs, loss)

	s.hess.Add(s.hess, gain)
	s.hess.Sub(s.hess, loss)
}
