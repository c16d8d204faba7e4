// Package centroidal runs receding-horizon centroidal control: every
// cycle a manager reads the measured CoM state, solves the horizon
// against the reference ZMP trajectory, and publishes the first planned
// ZMP and vertical contact force for the stabilizer to track.
package centroidal

import (
	"time"

	"github.com/golang/geo/r3"

	"github.com/nopaddleboat/BaselineWalkingController/telemetry"
)

// StateProvider reports the measured centroidal state of the robot.
type StateProvider interface {
	// ComPosition returns the CoM position (m).
	ComPosition() r3.Vector
	// ComVelocity returns the CoM velocity (m/s).
	ComVelocity() r3.Vector
}

// RefZmpProvider samples the reference ZMP trajectory.
type RefZmpProvider interface {
	RefZmp(t float64) (r3.Vector, error)
}

// Diagnostics reports the outcome of the latest solve.
type Diagnostics struct {
	// Iterations the solver ran on the last update.
	Iterations int
	// SolveDuration is the wall-clock time of the last solve.
	SolveDuration time.Duration
	// Converged reports whether the last solve met its tolerance
	// within the iteration cap.
	Converged bool
	// WarmStartResets counts updates that discarded a carried plan
	// because its length no longer matched the horizon.
	WarmStartResets int
}

// Manager is a centroidal manager. Managers start idle: Reset arms the
// manager at a start time and Update advances it one control cycle.
// Update fails until Reset has run.
type Manager interface {
	Name() string
	Reset(t float64) error
	Update(t float64) error
	// PlannedZmp is the ZMP planned for the current cycle, on the
	// ground plane.
	PlannedZmp() r3.Vector
	// PlannedForceZ is the vertical contact force planned for the
	// current cycle (N).
	PlannedForceZ() float64
	Diagnostics() Diagnostics
	// RegisterTelemetry adds the manager's log entries to the recorder.
	RegisterTelemetry(rec *telemetry.Recorder) error
}
