// Copyright ©2026 optflow. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqp

import "fmt"

// Status reports how a solve ended.
type Status int

const (
	// Converged means the step norm and constraint violation dropped
	// below the tolerance. Only this status marks X as verified optimal.
	Converged Status = iota
	// MaxIterationsExceeded means the iteration budget ran out first.
	MaxIterationsExceeded
	// InfeasibleStart means no feasible direction exists for the very
	// first constraint linearization at an infeasible starting point.
	InfeasibleStart
	// LineSearchFailure means no acceptable step length was found
	// within the backtracking budget.
	LineSearchFailure
)

var statusNames = map[Status]string{
	Converged:             "Converged",
	MaxIterationsExceeded: "MaxIterationsExceeded",
	InfeasibleStart:       "InfeasibleStart",
	LineSearchFailure:     "LineSearchFailure",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result is the outcome of one solve. X always satisfies the bounds,
// whatever the status; when Success is false it is the last accepted
// iterate, returned best-effort and not verified optimal.
type Result struct {
	// X is the final point.
	X []float64
	// F is the objective value at X.
	F float64
	// Success is true exactly when Status == Converged.
	Success bool
	// Status classifies the outcome.
	Status Status
	// Iterations counts accepted outer iterations.
	Iterations int
	// FuncEvaluations counts objective evaluations, including those
	// spent on finite differences.
	FuncEvaluations int
	// Multipliers estimates the Lagrange multiplier of each constraint,
	// in Problem order. Nil when the problem has no constraints or no
	// subproblem was solved.
	Multipliers []float64
}
