// Copyright ©2026 optflow. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, 100, o.MaxIterations)
	assert.Equal(t, 1e-6, o.Tolerance)
	assert.Equal(t, 0.0, o.StepSize)
	assert.Equal(t, 20, o.Backtracks)
	assert.Equal(t, 5, o.HessianResets)
}

func TestOptionsWithDefaults(t *testing.T) {
	var nilOpt *Options
	o, err := nilOpt.withDefaults()
	require.NoError(t, err)
	assert.Equal(t, *DefaultOptions(), o)

	o, err = (&Options{MaxIterations: 7, Tolerance: 1e-3}).withDefaults()
	require.NoError(t, err)
	assert.Equal(t, 7, o.MaxIterations)
	assert.Equal(t, 1e-3, o.Tolerance)
	assert.Equal(t, 20, o.Backtracks)
	assert.Equal(t, 5, o.HessianResets)

	for _, bad := range []Options{
		{MaxIterations: -1},
		{Tolerance: -1},
		{Tolerance: math.NaN()},
		{StepSize: -1},
		{Backtracks: -1},
		{HessianResets: -1},
	} {
		_, err := bad.withDefaults()
		assert.Error(t, err)
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "Converged", Converged.String())
	assert.Equal(t, "MaxIterationsExceeded", MaxIterationsExceeded.String())
	assert.Equal(t, "InfeasibleStart", InfeasibleStart.String())
	assert.Equal(t, "LineSearchFailure", LineSearchFailure.String())
	assert.Equal(t, "Status(42)", Status(42).String())
}

func TestConstraintKindString(t *testing.T) {
	assert.Equal(t, "Inequality", Inequality.String())
	assert.Equal(t, "ConstraintKind(3)", ConstraintKind(3).String())
}

func TestProblemValidate(t *testing.T) {
	sphere := func(x []float64) float64 { return x[0] * x[0] }

	cases := []struct {
		name string
		prob Problem
		x0   []float64
	}{
		{"nil objective", Problem{}, []float64{0}},
		{"empty start", Problem{Objective: sphere}, nil},
		{"nan start", Problem{Objective: sphere}, []float64{math.NaN()}},
		{"inf start", Problem{Objective: sphere}, []float64{math.Inf(1)}},
		{"bound count", Problem{
			Objective: sphere,
			Bounds:    []Bound{{0, 1}, {0, 1}},
		}, []float64{0}},
		{"nan bound", Problem{
			Objective: sphere,
			Bounds:    []Bound{{math.NaN(), 1}},
		}, []float64{0}},
		{"inverted bound", Problem{
			Objective: sphere,
			Bounds:    []Bound{{2, 1}},
		}, []float64{1.5}},
		{"nil constraint func", Problem{
			Objective:   sphere,
			Constraints: []Constraint{{Kind: Inequality}},
		}, []float64{0}},
		{"unknown constraint kind", Problem{
			Objective:   sphere,
			Constraints: []Constraint{{Kind: ConstraintKind(9), F: sphere}},
		}, []float64{0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Solve(tc.prob, tc.x0, nil)
			assert.Error(t, err)
			assert.Nil(t, res)
		})
	}
}

// Malformed input must be rejected before the first callback runs.
func TestValidateBeforeEvaluation(t *testing.T) {
	calls := 0
	prob := Problem{
		Objective: func(x []float64) float64 {
			calls++
			return x[0]
		},
		Bounds: []Bound{{1, 0}},
	}
	_, err := Solve(prob, []float64{0}, nil)
	require.Error(t, err)
	assert.Zero(t, calls)
}
