// Package ddp plans centroidal motion over a receding horizon with
// differential dynamic programming.
//
// The decision variables are the zero-moment point and the vertical
// contact force at each step of the horizon. The state is the CoM
// position and velocity under the point-mass dynamics
//
//	accel_xy = (com_xy - zmp_xy) * force_z / (mass * com_z)
//	accel_z  = force_z / mass - g
//
// A solver is created once per walk with NewZmpSolver and then asked
// for a plan every control cycle with PlanOnce.
package ddp

import (
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Gravity is the gravitational acceleration (m/s^2).
const Gravity = 9.80665

// RefData is the reference the planner tracks at one instant.
type RefData struct {
	// Zmp is the reference zero-moment point on the ground plane (m).
	Zmp r2.Point
	// ComZ is the reference CoM height (m).
	ComZ float64
}

// RefFunc samples the tracking reference at an absolute time. An error
// aborts the solve, typically because the horizon reaches past the end
// of the reference trajectory.
type RefFunc func(t float64) (RefData, error)

// Input is the planner decision for one horizon step.
type Input struct {
	// Zmp is the planned zero-moment point (m).
	Zmp r2.Point
	// ForceZ is the planned vertical contact force (N).
	ForceZ float64
}

// NominalInput is the static-equilibrium input for a CoM position: the
// ZMP directly under the CoM and the force balancing gravity.
func NominalInput(mass float64, comPos r3.Vector) Input {
	return Input{
		Zmp:    r2.Point{X: comPos.X, Y: comPos.Y},
		ForceZ: mass * Gravity,
	}
}

// InitialParam is the measured state the horizon starts from.
type InitialParam struct {
	// Pos is the CoM position (m).
	Pos r3.Vector
	// Vel is the CoM velocity (m/s).
	Vel r3.Vector
	// InputList seeds the solve. When it is empty the solver starts
	// from the static-equilibrium input at Pos; otherwise its length
	// must equal the horizon step count.
	InputList []Input
}

// IterationTrace records one solver iteration for diagnostics.
type IterationTrace struct {
	Iteration      int
	Cost           float64
	Regularization float64
	StepLength     float64
}

// PlannedData is the result of one receding-horizon solve.
type PlannedData struct {
	// Zmp is the planned zero-moment point for the first horizon step (m).
	Zmp r2.Point
	// ForceZ is the planned vertical contact force for the first
	// horizon step (N).
	ForceZ float64
	// InputList is the full planned input sequence, suitable for
	// seeding the next solve.
	InputList []Input
	// Iterations is the number of iterations the solver ran.
	Iterations int
	// SolveDuration is the wall-clock time the solve took.
	SolveDuration time.Duration
	// Converged reports whether the solver met its tolerance before
	// hitting the iteration cap. A capped solve still yields the best
	// plan found so far.
	Converged bool
	// Trace holds per-iteration diagnostics.
	Trace []IterationTrace
}
