// Package footstep manages footstep sequences and derives the reference
// zero-moment-point trajectory the centroidal planner tracks.
package footstep

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Foot identifies a stance foot.
type Foot int

const (
	// Left is the left foot.
	Left Foot = iota
	// Right is the right foot.
	Right
)

func (f Foot) String() string {
	if f == Left {
		return "left"
	}
	return "right"
}

// Opposite returns the other foot.
func (f Foot) Opposite() Foot {
	if f == Left {
		return Right
	}
	return Left
}

// Footstep is one planned step: the swing foot, where it lands, and the
// times structuring the step. The reference ZMP transits onto the support
// foot during [TransitStartTime, SwingStartTime], holds there while the
// swing foot is in the air during [SwingStartTime, SwingEndTime], and the
// settle toward the stance midpoint after the final step completes by
// TransitEndTime.
type Footstep struct {
	Foot             Foot
	Pos              r3.Vector
	TransitStartTime float64
	SwingStartTime   float64
	SwingEndTime     float64
	TransitEndTime   float64
}

// Validate checks that the step times are strictly ordered.
func (fs Footstep) Validate() error {
	if !(fs.TransitStartTime < fs.SwingStartTime &&
		fs.SwingStartTime < fs.SwingEndTime &&
		fs.SwingEndTime < fs.TransitEndTime) {
		return errors.Errorf(
			"footstep times must be strictly increasing, got transit %v, swing %v to %v, settle %v",
			fs.TransitStartTime, fs.SwingStartTime, fs.SwingEndTime, fs.TransitEndTime)
	}
	return nil
}
