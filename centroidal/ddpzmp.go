package centroidal

import (
	"sync"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/nopaddleboat/BaselineWalkingController/ddp"
	"github.com/nopaddleboat/BaselineWalkingController/telemetry"
)

// horizonSolver is the slice of ddp.ZmpSolver the manager drives.
type horizonSolver interface {
	Steps() int
	PlanOnce(ref ddp.RefFunc, initial ddp.InitialParam, t float64) (*ddp.PlannedData, error)
}

type solverFactory func(logger golog.Logger, mass, dt float64, steps, maxIter int) (horizonSolver, error)

func defaultSolverFactory(logger golog.Logger, mass, dt float64, steps, maxIter int) (horizonSolver, error) {
	return ddp.NewZmpSolver(logger, mass, dt, steps, ddp.WithMaxIter(maxIter))
}

// DdpZmp plans the centroidal motion with the DDP horizon solver. Each
// update solves the horizon from the measured CoM state, carries the
// resulting input sequence as the next cycle's warm start, and publishes
// the first planned ZMP and vertical force.
type DdpZmp struct {
	logger    golog.Logger
	mass      float64
	state     StateProvider
	refZmp    RefZmpProvider
	newSolver solverFactory

	mu            sync.Mutex
	cfg           DdpZmpConfig
	solver        horizonSolver
	running       bool
	warmStart     []ddp.Input
	lastRefZmp    r3.Vector
	plannedZmp    r3.Vector
	plannedForceZ float64
	diag          Diagnostics
}

var _ Manager = (*DdpZmp)(nil)

// NewDdpZmp builds an idle manager for a robot of the given mass (kg).
func NewDdpZmp(
	logger golog.Logger,
	cfg DdpZmpConfig,
	mass float64,
	state StateProvider,
	refZmp RefZmpProvider,
) (*DdpZmp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid centroidal manager config")
	}
	if mass <= 0 {
		return nil, errors.Errorf("robot mass must be positive, got %v", mass)
	}
	if state == nil {
		return nil, errors.New("a state provider is required")
	}
	if refZmp == nil {
		return nil, errors.New("a reference ZMP provider is required")
	}
	return &DdpZmp{
		logger:    logger,
		mass:      mass,
		state:     state,
		refZmp:    refZmp,
		newSolver: defaultSolverFactory,
		cfg:       cfg,
	}, nil
}

// Name returns the configured manager name.
func (d *DdpZmp) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Name
}

// Reset builds the horizon solver and arms the manager at time t. Until
// the first update the published outputs hold the static-equilibrium
// values for the current CoM.
func (d *DdpZmp) Reset(t float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	solver, err := d.newSolver(d.logger, d.mass, d.cfg.HorizonDt, d.cfg.HorizonSteps(), d.cfg.DdpMaxIter)
	if err != nil {
		return errors.Wrap(err, "failed to build horizon solver")
	}
	d.solver = solver
	d.warmStart = nil
	nominal := ddp.NominalInput(d.mass, d.state.ComPosition())
	d.plannedZmp = r3.Vector{X: nominal.Zmp.X, Y: nominal.Zmp.Y}
	d.plannedForceZ = nominal.ForceZ
	d.lastRefZmp = d.plannedZmp
	d.diag = Diagnostics{}
	d.running = true
	d.logger.Infow("centroidal manager reset",
		"t", t, "horizonSteps", solver.Steps(), "horizonDt", d.cfg.HorizonDt)
	return nil
}

// Update runs one control cycle at time t.
func (d *DdpZmp) Update(t float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return errors.New("centroidal manager must be reset before update")
	}
	refNow, err := d.refZmp.RefZmp(t)
	if err != nil {
		return errors.Wrap(err, "failed to sample the reference ZMP")
	}

	initial := ddp.InitialParam{
		Pos: d.state.ComPosition(),
		Vel: d.state.ComVelocity(),
	}
	if len(d.warmStart) == d.solver.Steps() {
		initial.InputList = d.warmStart
	} else if d.warmStart != nil {
		d.diag.WarmStartResets++
		d.logger.Warnw("discarding carried plan of mismatched length",
			"have", len(d.warmStart), "want", d.solver.Steps())
	}

	plan, err := d.solver.PlanOnce(d.refData, initial, t)
	if err != nil {
		return errors.Wrap(err, "horizon solve failed")
	}

	d.warmStart = plan.InputList
	d.lastRefZmp = refNow
	d.plannedZmp = r3.Vector{X: plan.Zmp.X, Y: plan.Zmp.Y}
	d.plannedForceZ = plan.ForceZ
	d.diag.Iterations = plan.Iterations
	d.diag.SolveDuration = plan.SolveDuration
	d.diag.Converged = plan.Converged
	if !plan.Converged {
		d.logger.Debugw("horizon solve capped before convergence", "iterations", plan.Iterations)
	}
	return nil
}

// refData samples the tracking reference for the solver. Called from
// inside a solve while the manager lock is held.
func (d *DdpZmp) refData(t float64) (ddp.RefData, error) {
	zmp, err := d.refZmp.RefZmp(t)
	if err != nil {
		return ddp.RefData{}, err
	}
	return ddp.RefData{Zmp: r2.Point{X: zmp.X, Y: zmp.Y}, ComZ: d.cfg.RefComZ}, nil
}

// Reconfigure replaces the manager configuration. While running, the
// horizon solver is rebuilt immediately; a carried plan whose length no
// longer matches the horizon is discarded on the next update. Telemetry
// entry names are fixed at registration and do not follow a rename.
func (d *DdpZmp) Reconfigure(cfg DdpZmpConfig) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid centroidal manager config")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	if !d.running {
		return nil
	}
	solver, err := d.newSolver(d.logger, d.mass, cfg.HorizonDt, cfg.HorizonSteps(), cfg.DdpMaxIter)
	if err != nil {
		return errors.Wrap(err, "failed to rebuild horizon solver")
	}
	d.solver = solver
	d.logger.Infow("centroidal manager reconfigured",
		"horizonSteps", solver.Steps(), "horizonDt", cfg.HorizonDt)
	return nil
}

// PlannedZmp returns the ZMP planned for the current cycle, on the
// ground plane.
func (d *DdpZmp) PlannedZmp() r3.Vector {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.plannedZmp
}

// PlannedForceZ returns the vertical contact force planned for the
// current cycle (N).
func (d *DdpZmp) PlannedForceZ() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.plannedForceZ
}

// Diagnostics returns the outcome of the latest solve.
func (d *DdpZmp) Diagnostics() Diagnostics {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.diag
}

func (d *DdpZmp) sample(get func(d *DdpZmp) float64) func() float64 {
	return func() float64 {
		d.mu.Lock()
		defer d.mu.Unlock()
		return get(d)
	}
}

// RegisterTelemetry adds the manager's entries under its configured
// name. Solve durations are recorded in milliseconds.
func (d *DdpZmp) RegisterTelemetry(rec *telemetry.Recorder) error {
	name := d.Name()
	return multierr.Combine(
		rec.Add(name+"_refZmp_x", d.sample(func(d *DdpZmp) float64 { return d.lastRefZmp.X })),
		rec.Add(name+"_refZmp_y", d.sample(func(d *DdpZmp) float64 { return d.lastRefZmp.Y })),
		rec.Add(name+"_refZmp_z", d.sample(func(d *DdpZmp) float64 { return d.lastRefZmp.Z })),
		rec.Add(name+"_plannedZmp_x", d.sample(func(d *DdpZmp) float64 { return d.plannedZmp.X })),
		rec.Add(name+"_plannedZmp_y", d.sample(func(d *DdpZmp) float64 { return d.plannedZmp.Y })),
		rec.Add(name+"_plannedZmp_z", d.sample(func(d *DdpZmp) float64 { return d.plannedZmp.Z })),
		rec.Add(name+"_plannedForceZ", d.sample(func(d *DdpZmp) float64 { return d.plannedForceZ })),
		rec.Add(name+"_DDP_computationDuration", d.sample(func(d *DdpZmp) float64 {
			return float64(d.diag.SolveDuration.Nanoseconds()) / 1e6
		})),
		rec.Add(name+"_DDP_iter", d.sample(func(d *DdpZmp) float64 { return float64(d.diag.Iterations) })),
		rec.Add(name+"_DDP_converged", d.sample(func(d *DdpZmp) float64 {
			if d.diag.Converged {
				return 1
			}
			return 0
		})),
		rec.Add(name+"_DDP_warmStartResets", d.sample(func(d *DdpZmp) float64 {
			return float64(d.diag.WarmStartResets)
		})),
	)
}
