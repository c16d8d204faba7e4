// Package sim closes the loop around the controller without a robot: a
// point-mass plant integrates the centroidal dynamics under the planned
// ZMP and contact force.
package sim

import (
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/nopaddleboat/BaselineWalkingController/ddp"
	"github.com/nopaddleboat/BaselineWalkingController/telemetry"
)

// state is the CoM position and velocity.
type state [6]float64

// PointMass is a flying-mass model of the robot: the CoM accelerates
// horizontally away from the ZMP in proportion to the vertical force and
// vertically by the force against gravity. It is safe for concurrent use.
type PointMass struct {
	mass float64

	mu sync.Mutex
	s  state
}

// NewPointMass builds a plant of the given mass (kg) at an initial CoM
// state.
func NewPointMass(mass float64, pos, vel r3.Vector) (*PointMass, error) {
	if mass <= 0 {
		return nil, errors.Errorf("mass must be positive, got %v", mass)
	}
	if pos.Z <= 0 {
		return nil, errors.Errorf("CoM height must be positive, got %v", pos.Z)
	}
	return &PointMass{
		mass: mass,
		s:    state{pos.X, pos.Y, pos.Z, vel.X, vel.Y, vel.Z},
	}, nil
}

// ComPosition returns the CoM position (m).
func (p *PointMass) ComPosition() r3.Vector {
	p.mu.Lock()
	defer p.mu.Unlock()
	return r3.Vector{X: p.s[0], Y: p.s[1], Z: p.s[2]}
}

// ComVelocity returns the CoM velocity (m/s).
func (p *PointMass) ComVelocity() r3.Vector {
	p.mu.Lock()
	defer p.mu.Unlock()
	return r3.Vector{X: p.s[3], Y: p.s[4], Z: p.s[5]}
}

func (p *PointMass) deriv(s state, zmp r3.Vector, forceZ float64) state {
	fOverMz := forceZ / (p.mass * s[2])
	return state{
		s[3], s[4], s[5],
		(s[0] - zmp.X) * fOverMz,
		(s[1] - zmp.Y) * fOverMz,
		forceZ/p.mass - ddp.Gravity,
	}
}

func scaleAdd(s state, h float64, k state) state {
	var out state
	for i := range s {
		out[i] = s[i] + h*k[i]
	}
	return out
}

// Step advances the plant by dt seconds with the classic fourth-order
// Runge-Kutta scheme, holding the ZMP and force constant over the step.
func (p *PointMass) Step(zmp r3.Vector, forceZ, dt float64) error {
	if dt <= 0 {
		return errors.Errorf("step dt must be positive, got %v", dt)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	k1 := p.deriv(p.s, zmp, forceZ)
	k2 := p.deriv(scaleAdd(p.s, dt/2, k1), zmp, forceZ)
	k3 := p.deriv(scaleAdd(p.s, dt/2, k2), zmp, forceZ)
	k4 := p.deriv(scaleAdd(p.s, dt, k3), zmp, forceZ)

	var next state
	for i := range next {
		next[i] = p.s[i] + dt/6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}
	if next[2] <= 0 {
		return errors.Errorf("CoM height dropped to %v, the model left its domain", next[2])
	}
	p.s = next
	return nil
}

// RegisterTelemetry adds the CoM state entries under the given name.
func (p *PointMass) RegisterTelemetry(rec *telemetry.Recorder, name string) error {
	pick := func(i int) func() float64 {
		return func() float64 {
			p.mu.Lock()
			defer p.mu.Unlock()
			return p.s[i]
		}
	}
	return multierr.Combine(
		rec.Add(name+"_comPos_x", pick(0)),
		rec.Add(name+"_comPos_y", pick(1)),
		rec.Add(name+"_comPos_z", pick(2)),
		rec.Add(name+"_comVel_x", pick(3)),
		rec.Add(name+"_comVel_y", pick(4)),
		rec.Add(name+"_comVel_z", pick(5)),
	)
}
