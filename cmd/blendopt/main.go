// Copyright ©2026 optflow. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command blendopt picks the quantities of two raw materials that
// minimize production cost while maximizing product quality, by
// minimizing the cost minus the quality under supply limits.
package main

import (
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/optflow/optimizer/sqp"
)

const (
	costA = 5  // cost per unit of material A
	costB = 10 // cost per unit of material B
)

func productionCost(x []float64) float64 {
	return costA*x[0] + costB*x[1]
}

// productQuality grows with material B and shrinks when too much of
// material A is used.
func productQuality(x []float64) float64 {
	return -math.Sqrt(x[0]) + 2*math.Log1p(x[1])
}

func main() {
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelInfo,
			TimeFormat: time.Kitchen,
		}),
	))

	problem := sqp.Problem{
		Objective: func(x []float64) float64 {
			return productionCost(x) - productQuality(x)
		},
		Constraints: []sqp.Constraint{
			// Supply limits for material A and B.
			{Kind: sqp.Inequality, F: func(x []float64) float64 { return 10 - x[0] }},
			{Kind: sqp.Inequality, F: func(x []float64) float64 { return 5 - x[1] }},
		},
		// At least 1 and at most 10 units of each material.
		Bounds: []sqp.Bound{
			{Lower: 1, Upper: 10},
			{Lower: 1, Upper: 10},
		},
	}

	res, err := sqp.Solve(problem, []float64{1, 1}, nil)
	if err != nil {
		slog.Error("invalid problem", "err", err)
		os.Exit(1)
	}
	if !res.Success {
		slog.Error("solver did not converge",
			"status", res.Status.String(),
			"iterations", res.Iterations)
		os.Exit(1)
	}

	slog.Info("optimal solution",
		"materialA", res.X[0],
		"materialB", res.X[1],
		"objective", res.F,
		"iterations", res.Iterations,
		"evaluations", res.FuncEvaluations)
	slog.Info("minimum production cost", "cost", productionCost(res.X))
	slog.Info("maximum product quality", "quality", productQuality(res.X))
}
