package footstep

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// WalkParam parameterizes a straight forward walk.
type WalkParam struct {
	// StepLength is the forward travel of each step (m). Negative walks
	// backward.
	StepLength float64 `yaml:"stepLength"`
	// StepWidth is the lateral distance between the feet (m).
	StepWidth float64 `yaml:"stepWidth"`
	// NumSteps is the number of footsteps, final alignment step included.
	NumSteps int `yaml:"numSteps"`
	// DoubleSupportDuration is the time both feet stay on the ground
	// between swings (s).
	DoubleSupportDuration float64 `yaml:"doubleSupportDuration"`
	// SingleSupportDuration is the swing time of one step (s).
	SingleSupportDuration float64 `yaml:"singleSupportDuration"`
	// StartTime is when the first transit begins (s).
	StartTime float64 `yaml:"startTime"`
}

// Validate checks the walk parameters.
func (p WalkParam) Validate() error {
	if p.StepWidth <= 0 {
		return errors.Errorf("step width must be positive, got %v", p.StepWidth)
	}
	if p.NumSteps < 1 {
		return errors.Errorf("walk needs at least one step, got %d", p.NumSteps)
	}
	if p.DoubleSupportDuration <= 0 {
		return errors.Errorf("double support duration must be positive, got %v", p.DoubleSupportDuration)
	}
	if p.SingleSupportDuration <= 0 {
		return errors.Errorf("single support duration must be positive, got %v", p.SingleSupportDuration)
	}
	return nil
}

// GenerateStraightWalk plans an alternating walk along x starting with the
// left foot from a stance centered on the origin. Each step lands the
// swing foot StepLength ahead of the support foot; the final step brings
// the feet side by side.
func GenerateStraightWalk(p WalkParam) ([]Footstep, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	stance := map[Foot]r3.Vector{
		Left:  {Y: p.StepWidth / 2},
		Right: {Y: -p.StepWidth / 2},
	}
	period := p.DoubleSupportDuration + p.SingleSupportDuration
	steps := make([]Footstep, 0, p.NumSteps)
	foot := Left
	for k := 0; k < p.NumSteps; k++ {
		x := stance[foot.Opposite()].X + p.StepLength
		if k == p.NumSteps-1 {
			x = stance[foot.Opposite()].X
		}
		transitStart := p.StartTime + float64(k)*period
		fs := Footstep{
			Foot:             foot,
			Pos:              r3.Vector{X: x, Y: stance[foot].Y},
			TransitStartTime: transitStart,
			SwingStartTime:   transitStart + p.DoubleSupportDuration,
			SwingEndTime:     transitStart + period,
			TransitEndTime:   transitStart + period + p.DoubleSupportDuration,
		}
		steps = append(steps, fs)
		stance[foot] = fs.Pos
		foot = foot.Opposite()
	}
	return steps, nil
}
