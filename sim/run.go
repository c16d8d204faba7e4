package sim

import (
	"context"
	"math"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/nopaddleboat/BaselineWalkingController/centroidal"
	"github.com/nopaddleboat/BaselineWalkingController/telemetry"
)

// RunClosedLoop resets the manager and steps the plant under its planned
// outputs for the given duration at a fixed control period. Telemetry is
// recorded once per cycle when a recorder is given.
func RunClosedLoop(
	ctx context.Context,
	logger golog.Logger,
	mgr centroidal.Manager,
	plant *PointMass,
	dt, duration float64,
	rec *telemetry.Recorder,
) error {
	if dt <= 0 {
		return errors.Errorf("control dt must be positive, got %v", dt)
	}
	if duration < dt {
		return errors.Errorf("duration %v is shorter than one cycle of %v", duration, dt)
	}
	if err := mgr.Reset(0); err != nil {
		return errors.Wrap(err, "failed to reset the centroidal manager")
	}
	cycles := int(math.Round(duration / dt))
	logger.Infow("running closed loop", "cycles", cycles, "dt", dt)
	for i := 0; i < cycles; i++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "closed loop interrupted")
		}
		t := float64(i) * dt
		if err := mgr.Update(t); err != nil {
			return errors.Wrapf(err, "cycle %d failed", i)
		}
		if err := plant.Step(mgr.PlannedZmp(), mgr.PlannedForceZ(), dt); err != nil {
			return errors.Wrapf(err, "plant step %d failed", i)
		}
		if rec != nil {
			if err := rec.Record(t); err != nil {
				return errors.Wrapf(err, "telemetry record %d failed", i)
			}
		}
	}
	return nil
}
