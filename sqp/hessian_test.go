// Copyright ©2026 optflow. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSolver(t *testing.T, n int) *solver {
	t.Helper()
	prob := Problem{Objective: func(x []float64) float64 { return x[0] }}
	s := newSolver(&prob, *DefaultOptions(), n)
	s.resetHessian()
	return s
}

func hessianData(s *solver) []float64 {
	raw := make([]float64, s.n*s.n)
	for i := 0; i < s.n; i++ {
		for j := 0; j < s.n; j++ {
			raw[i*s.n+j] = s.hess.At(i, j)
		}
	}
	return raw
}

func TestHessianUpdateStaysPositiveDefinite(t *testing.T) {
	s := testSolver(t, 2)

	// good curvature
	s.updateHessian([]float64{1, 0}, []float64{2, 0})
	assert.InDelta(t, 2, s.hess.At(0, 0), 1e-12)
	_, ok := cholFactor(hessianData(s), 2)
	require.True(t, ok)

	// negative curvature forces the damped update, which must keep the
	// approximation positive definite
	s.updateHessian([]float64{1, 0}, []float64{-1, 0})
	assert.Greater(t, s.hess.At(0, 0), 0.0)
	_, ok = cholFactor(hessianData(s), 2)
	require.True(t, ok)
	assert.Zero(t, s.resets)
}

func TestHessianDegeneratePairResets(t *testing.T) {
	s := testSolver(t, 2)
	s.updateHessian([]float64{1, 0}, []float64{3, 0})
	require.NotEqual(t, 1.0, s.hess.At(0, 0))

	s.updateHessian([]float64{0, 0}, []float64{0, 0})
	assert.Equal(t, 1.0, s.hess.At(0, 0))
	assert.Equal(t, 1.0, s.hess.At(1, 1))
	assert.Equal(t, 0.0, s.hess.At(0, 1))
	assert.Equal(t, 1, s.resets)
}

func TestHessianResetBudgetExhausted(t *testing.T) {
	s := testSolver(t, 1)
	for i := 0; i < s.opt.HessianResets; i++ {
		s.updateHessian([]float64{0}, []float64{0})
	}
	assert.Equal(t, s.opt.HessianResets, s.resets)

	// over budget the degenerate pair is ignored and B kept as is
	s.updateHessian([]float64{1}, []float64{5})
	before := s.hess.At(0, 0)
	s.updateHessian([]float64{0}, []float64{0})
	assert.Equal(t, before, s.hess.At(0, 0))
}
