package centroidal

import (
	"bytes"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/nopaddleboat/BaselineWalkingController/ddp"
	"github.com/nopaddleboat/BaselineWalkingController/telemetry"
)

type staticState struct {
	pos r3.Vector
	vel r3.Vector
}

func (s *staticState) ComPosition() r3.Vector { return s.pos }
func (s *staticState) ComVelocity() r3.Vector { return s.vel }

type refFn func(t float64) (r3.Vector, error)

func (f refFn) RefZmp(t float64) (r3.Vector, error) { return f(t) }

func fixedRef(zmp r3.Vector) refFn {
	return func(float64) (r3.Vector, error) { return zmp, nil }
}

type fakeSolver struct {
	steps       int
	calls       int
	lastInitial ddp.InitialParam
	lastT       float64
	lastRef     ddp.RefData
	err         error
}

func (f *fakeSolver) Steps() int { return f.steps }

func (f *fakeSolver) PlanOnce(ref ddp.RefFunc, initial ddp.InitialParam, t float64) (*ddp.PlannedData, error) {
	f.calls++
	f.lastInitial = initial
	f.lastT = t
	if f.err != nil {
		return nil, f.err
	}
	rd, err := ref(t)
	if err != nil {
		return nil, err
	}
	f.lastRef = rd
	inputs := make([]ddp.Input, f.steps)
	for i := range inputs {
		inputs[i] = ddp.Input{Zmp: r2.Point{X: 0.01}, ForceZ: 111}
	}
	return &ddp.PlannedData{
		Zmp:           r2.Point{X: 0.02, Y: -0.01},
		ForceZ:        590,
		InputList:     inputs,
		Iterations:    2,
		SolveDuration: 3 * time.Millisecond,
		Converged:     true,
	}, nil
}

// fakes replaces the manager's solver factory and collects every solver
// it hands out.
func fakes(d *DdpZmp) *[]*fakeSolver {
	created := &[]*fakeSolver{}
	d.newSolver = func(_ golog.Logger, _, _ float64, steps, _ int) (horizonSolver, error) {
		fs := &fakeSolver{steps: steps}
		*created = append(*created, fs)
		return fs, nil
	}
	return created
}

func testManagerConfig() DdpZmpConfig {
	cfg := DefaultDdpZmpConfig()
	cfg.HorizonDuration = 0.1
	cfg.HorizonDt = 0.02
	return cfg
}

func TestNewDdpZmpValidation(t *testing.T) {
	logger := golog.NewTestLogger(t)
	state := &staticState{pos: r3.Vector{Z: 0.9}}
	ref := fixedRef(r3.Vector{})

	bad := testManagerConfig()
	bad.HorizonDt = 0
	_, err := NewDdpZmp(logger, bad, 60, state, ref)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewDdpZmp(logger, testManagerConfig(), 0, state, ref)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewDdpZmp(logger, testManagerConfig(), 60, nil, ref)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewDdpZmp(logger, testManagerConfig(), 60, state, nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestUpdateBeforeResetFails(t *testing.T) {
	logger := golog.NewTestLogger(t)
	d, err := NewDdpZmp(logger, testManagerConfig(), 60, &staticState{pos: r3.Vector{Z: 0.9}}, fixedRef(r3.Vector{}))
	test.That(t, err, test.ShouldBeNil)

	err = d.Update(0)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "must be reset")

	test.That(t, d.Reset(0), test.ShouldBeNil)
	test.That(t, d.Update(0), test.ShouldBeNil)
}

func TestResetSeedsEquilibrium(t *testing.T) {
	logger := golog.NewTestLogger(t)
	state := &staticState{pos: r3.Vector{X: 0.03, Y: -0.01, Z: 0.9}}
	d, err := NewDdpZmp(logger, testManagerConfig(), 60, state, fixedRef(r3.Vector{}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Reset(0), test.ShouldBeNil)

	zmp := d.PlannedZmp()
	test.That(t, zmp.X, test.ShouldAlmostEqual, 0.03)
	test.That(t, zmp.Y, test.ShouldAlmostEqual, -0.01)
	test.That(t, zmp.Z, test.ShouldEqual, 0)
	test.That(t, d.PlannedForceZ(), test.ShouldAlmostEqual, 60*ddp.Gravity)
}

func TestUpdateCarriesWarmStart(t *testing.T) {
	logger := golog.NewTestLogger(t)
	state := &staticState{pos: r3.Vector{X: 0.1, Z: 0.9}, vel: r3.Vector{X: 0.2}}
	d, err := NewDdpZmp(logger, testManagerConfig(), 60, state, fixedRef(r3.Vector{X: 0.05, Y: 0.02}))
	test.That(t, err, test.ShouldBeNil)
	created := fakes(d)
	test.That(t, d.Reset(0), test.ShouldBeNil)
	test.That(t, len(*created), test.ShouldEqual, 1)
	solver := (*created)[0]
	test.That(t, solver.steps, test.ShouldEqual, 5)

	// The first update has no carried plan: the solver seeds the
	// static-equilibrium nominal itself.
	test.That(t, d.Update(0.5), test.ShouldBeNil)
	test.That(t, solver.calls, test.ShouldEqual, 1)
	test.That(t, solver.lastT, test.ShouldEqual, 0.5)
	test.That(t, solver.lastInitial.Pos, test.ShouldResemble, state.pos)
	test.That(t, solver.lastInitial.Vel, test.ShouldResemble, state.vel)
	test.That(t, solver.lastInitial.InputList, test.ShouldBeNil)
	test.That(t, solver.lastRef.Zmp, test.ShouldResemble, r2.Point{X: 0.05, Y: 0.02})
	test.That(t, solver.lastRef.ComZ, test.ShouldAlmostEqual, 0.9)

	// Published outputs come from the first horizon step; the ZMP sits
	// on the ground plane.
	test.That(t, d.PlannedZmp(), test.ShouldResemble, r3.Vector{X: 0.02, Y: -0.01})
	test.That(t, d.PlannedForceZ(), test.ShouldAlmostEqual, 590)
	diag := d.Diagnostics()
	test.That(t, diag.Iterations, test.ShouldEqual, 2)
	test.That(t, diag.SolveDuration, test.ShouldEqual, 3*time.Millisecond)
	test.That(t, diag.Converged, test.ShouldBeTrue)
	test.That(t, diag.WarmStartResets, test.ShouldEqual, 0)

	// The second update reuses the carried plan.
	test.That(t, d.Update(0.52), test.ShouldBeNil)
	test.That(t, len(solver.lastInitial.InputList), test.ShouldEqual, 5)
	test.That(t, solver.lastInitial.InputList[0].ForceZ, test.ShouldEqual, 111)
}

func TestReconfigureDiscardsStalePlan(t *testing.T) {
	logger := golog.NewTestLogger(t)
	d, err := NewDdpZmp(logger, testManagerConfig(), 60, &staticState{pos: r3.Vector{Z: 0.9}}, fixedRef(r3.Vector{}))
	test.That(t, err, test.ShouldBeNil)
	created := fakes(d)
	test.That(t, d.Reset(0), test.ShouldBeNil)
	test.That(t, d.Update(0), test.ShouldBeNil)

	// Lengthen the horizon: 0.2s / 0.02s = 10 steps instead of 5.
	cfg := testManagerConfig()
	cfg.HorizonDuration = 0.2
	test.That(t, d.Reconfigure(cfg), test.ShouldBeNil)
	test.That(t, len(*created), test.ShouldEqual, 2)
	second := (*created)[1]
	test.That(t, second.steps, test.ShouldEqual, 10)

	// The carried 5-step plan no longer fits and is replaced by the
	// nominal seed.
	test.That(t, d.Update(0.02), test.ShouldBeNil)
	test.That(t, second.lastInitial.InputList, test.ShouldBeNil)
	test.That(t, d.Diagnostics().WarmStartResets, test.ShouldEqual, 1)

	// The following update carries the new plan again.
	test.That(t, d.Update(0.04), test.ShouldBeNil)
	test.That(t, len(second.lastInitial.InputList), test.ShouldEqual, 10)
	test.That(t, d.Diagnostics().WarmStartResets, test.ShouldEqual, 1)
}

func TestReconfigureWhileIdle(t *testing.T) {
	logger := golog.NewTestLogger(t)
	d, err := NewDdpZmp(logger, testManagerConfig(), 60, &staticState{pos: r3.Vector{Z: 0.9}}, fixedRef(r3.Vector{}))
	test.That(t, err, test.ShouldBeNil)
	created := fakes(d)

	cfg := testManagerConfig()
	cfg.HorizonDuration = 0.2
	test.That(t, d.Reconfigure(cfg), test.ShouldBeNil)
	// Idle reconfigure builds no solver; the next reset uses the new horizon.
	test.That(t, len(*created), test.ShouldEqual, 0)
	test.That(t, d.Reset(0), test.ShouldBeNil)
	test.That(t, (*created)[0].steps, test.ShouldEqual, 10)

	bad := testManagerConfig()
	bad.DdpMaxIter = 0
	test.That(t, d.Reconfigure(bad), test.ShouldNotBeNil)
}

func TestUpdateSurfacesErrors(t *testing.T) {
	logger := golog.NewTestLogger(t)
	d, err := NewDdpZmp(logger, testManagerConfig(), 60, &staticState{pos: r3.Vector{Z: 0.9}}, fixedRef(r3.Vector{}))
	test.That(t, err, test.ShouldBeNil)
	created := fakes(d)
	test.That(t, d.Reset(0), test.ShouldBeNil)
	(*created)[0].err = errors.New("factorization failed")

	err = d.Update(0)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "horizon solve failed")
}

func TestUpdateFailsOutsideReference(t *testing.T) {
	logger := golog.NewTestLogger(t)
	outside := refFn(func(t float64) (r3.Vector, error) {
		return r3.Vector{}, errors.Errorf("argument is out of the function domain, need 0 <= %v <= 10", t)
	})
	d, err := NewDdpZmp(logger, testManagerConfig(), 60, &staticState{pos: r3.Vector{Z: 0.9}}, outside)
	test.That(t, err, test.ShouldBeNil)
	created := fakes(d)
	test.That(t, d.Reset(0), test.ShouldBeNil)

	err = d.Update(11)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "reference ZMP")
	// The solve never ran.
	test.That(t, (*created)[0].calls, test.ShouldEqual, 0)
}

func TestRegisterTelemetry(t *testing.T) {
	logger := golog.NewTestLogger(t)
	d, err := NewDdpZmp(logger, testManagerConfig(), 60, &staticState{pos: r3.Vector{Z: 0.9}}, fixedRef(r3.Vector{}))
	test.That(t, err, test.ShouldBeNil)
	created := fakes(d)
	test.That(t, d.Reset(0), test.ShouldBeNil)

	var buf bytes.Buffer
	rec := telemetry.NewRecorder(&buf, logger)
	test.That(t, d.RegisterTelemetry(rec), test.ShouldBeNil)
	names := rec.Names()
	test.That(t, names, test.ShouldContain, "CentroidalManager_plannedZmp_x")
	test.That(t, names, test.ShouldContain, "CentroidalManager_plannedForceZ")
	test.That(t, names, test.ShouldContain, "CentroidalManager_DDP_computationDuration")
	test.That(t, names, test.ShouldContain, "CentroidalManager_DDP_iter")
	test.That(t, names, test.ShouldContain, "CentroidalManager_DDP_warmStartResets")

	test.That(t, d.Update(0), test.ShouldBeNil)
	test.That(t, rec.Record(0), test.ShouldBeNil)
	test.That(t, rec.Flush(), test.ShouldBeNil)
	test.That(t, buf.Len(), test.ShouldBeGreaterThan, 0)
	test.That(t, (*created)[0].calls, test.ShouldEqual, 1)

	// Re-registering the same names fails.
	test.That(t, d.RegisterTelemetry(rec), test.ShouldNotBeNil)
}

func TestUpdateWithRealSolver(t *testing.T) {
	logger := golog.NewTestLogger(t)
	stance := r3.Vector{X: 0.02, Y: 0.01}
	state := &staticState{pos: r3.Vector{X: 0.02, Y: 0.01, Z: 0.9}}
	cfg := DefaultDdpZmpConfig()
	d, err := NewDdpZmp(logger, cfg, 60, state, fixedRef(stance))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Reset(0), test.ShouldBeNil)
	test.That(t, d.Update(0), test.ShouldBeNil)

	// Standing at equilibrium over the reference: the plan keeps the
	// ZMP under the CoM and the force compensating gravity.
	zmp := d.PlannedZmp()
	test.That(t, zmp.X, test.ShouldAlmostEqual, 0.02, 1e-6)
	test.That(t, zmp.Y, test.ShouldAlmostEqual, 0.01, 1e-6)
	test.That(t, d.PlannedForceZ(), test.ShouldAlmostEqual, 60*ddp.Gravity, 1e-6)
	test.That(t, d.Diagnostics().Converged, test.ShouldBeTrue)
}
