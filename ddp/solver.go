package ddp

import (
	"math"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	defaultMaxIter = 10
	defaultCostTol = 1e-8
	defaultGradTol = 1e-8

	regInit = 1e-6
	regMin  = 1e-9
	regMax  = 1e6

	minStepLength = 1.0 / 1024
)

// Weights are the cost weights of the planning problem. The terminal
// terms land the CoM over the horizon-end reference ZMP at rest; without
// them tracking the reference alone would let the CoM diverge.
type Weights struct {
	// RunningZmp penalizes ZMP deviation from the reference along the horizon.
	RunningZmp float64
	// RunningForceZ penalizes vertical force deviation from gravity
	// compensation along the horizon.
	RunningForceZ float64
	// RunningComZ penalizes CoM height error along the horizon.
	RunningComZ float64
	// TerminalComXY penalizes horizontal CoM offset from the reference
	// ZMP at the end of the horizon.
	TerminalComXY float64
	// TerminalVelXY penalizes horizontal CoM velocity at the end of the
	// horizon.
	TerminalVelXY float64
	// TerminalComZ penalizes CoM height error at the end of the horizon.
	TerminalComZ float64
	// TerminalVelZ penalizes vertical CoM velocity at the end of the horizon.
	TerminalVelZ float64
}

// DefaultWeights returns the weights used when none are configured.
func DefaultWeights() Weights {
	return Weights{
		RunningZmp:    1.0,
		RunningForceZ: 1e-5,
		RunningComZ:   100,
		TerminalComXY: 100,
		TerminalVelXY: 10,
		TerminalComZ:  100,
		TerminalVelZ:  1,
	}
}

// ZmpSolver plans ZMP and vertical force sequences over a fixed horizon.
// It is not safe for concurrent use.
type ZmpSolver struct {
	logger  golog.Logger
	model   model
	steps   int
	maxIter int
	costTol float64
	gradTol float64
	clock   clock.Clock
}

// Option configures a ZmpSolver.
type Option func(*ZmpSolver)

// WithMaxIter caps the iterations of a single solve.
func WithMaxIter(n int) Option {
	return func(s *ZmpSolver) { s.maxIter = n }
}

// WithWeights overrides the default cost weights.
func WithWeights(w Weights) Option {
	return func(s *ZmpSolver) { s.model.w = w }
}

// WithClock substitutes the clock used to time solves.
func WithClock(c clock.Clock) Option {
	return func(s *ZmpSolver) { s.clock = c }
}

// NewZmpSolver creates a solver for a robot of the given mass (kg) and a
// horizon of steps intervals of dt seconds each.
func NewZmpSolver(logger golog.Logger, mass, dt float64, steps int, opts ...Option) (*ZmpSolver, error) {
	if mass <= 0 {
		return nil, errors.Errorf("mass must be positive, got %v", mass)
	}
	if dt <= 0 {
		return nil, errors.Errorf("horizon dt must be positive, got %v", dt)
	}
	if steps <= 0 {
		return nil, errors.Errorf("horizon needs at least one step, got %d", steps)
	}
	s := &ZmpSolver{
		logger:  logger,
		model:   model{mass: mass, dt: dt, w: DefaultWeights()},
		steps:   steps,
		maxIter: defaultMaxIter,
		costTol: defaultCostTol,
		gradTol: defaultGradTol,
		clock:   clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxIter <= 0 {
		return nil, errors.Errorf("iteration cap must be positive, got %d", s.maxIter)
	}
	return s, nil
}

// Steps returns the number of horizon steps.
func (s *ZmpSolver) Steps() int { return s.steps }

// Dt returns the horizon step duration in seconds.
func (s *ZmpSolver) Dt() float64 { return s.model.dt }

// Mass returns the robot mass in kilograms.
func (s *ZmpSolver) Mass() float64 { return s.model.mass }

// PlanOnce solves the horizon starting from the measured state at
// absolute time t. The iteration cap bounds the work per call; a capped
// solve reports Converged false and returns the best plan found.
func (s *ZmpSolver) PlanOnce(ref RefFunc, initial InitialParam, t float64) (*PlannedData, error) {
	if ref == nil {
		return nil, errors.New("reference function is required")
	}
	if initial.Pos.Z <= 0 {
		return nil, errors.Errorf("initial CoM height must be positive, got %v", initial.Pos.Z)
	}
	uList := make([]Input, s.steps)
	switch len(initial.InputList) {
	case 0:
		nominal := NominalInput(s.model.mass, initial.Pos)
		for i := range uList {
			uList[i] = nominal
		}
	case s.steps:
		copy(uList, initial.InputList)
	default:
		return nil, errors.Errorf("seed input sequence has %d steps, horizon has %d", len(initial.InputList), s.steps)
	}

	start := s.clock.Now()
	refList := make([]RefData, s.steps+1)
	for k := range refList {
		rd, err := ref(t + float64(k)*s.model.dt)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to sample the reference at horizon step %d", k)
		}
		refList[k] = rd
	}
	x0 := mat.NewVecDense(stateDim, []float64{
		initial.Pos.X, initial.Pos.Y, initial.Pos.Z,
		initial.Vel.X, initial.Vel.Y, initial.Vel.Z,
	})

	xList, cost := s.rollout(x0, uList, refList)
	if math.IsInf(cost, 1) {
		return nil, errors.New("seed input sequence drives the CoM height nonpositive")
	}

	plan := &PlannedData{Trace: make([]IterationTrace, 0, s.maxIter)}
	reg := regInit
	converged := false
	iterations := 0
	for iter := 1; iter <= s.maxIter; iter++ {
		iterations = iter

		bp, gradNorm, ok := s.backwardPass(xList, uList, refList, reg)
		for !ok && reg <= regMax {
			reg *= 10
			bp, gradNorm, ok = s.backwardPass(xList, uList, refList, reg)
		}
		if !ok {
			s.logger.Warnw("value recursion failed to factorize", "regularization", reg)
			break
		}
		if gradNorm < s.gradTol {
			converged = true
			plan.Trace = append(plan.Trace, IterationTrace{
				Iteration: iter, Cost: cost, Regularization: reg,
			})
			break
		}

		improved := false
		for alpha := 1.0; alpha >= minStepLength; alpha /= 2 {
			newX, newU, newCost := s.forwardPass(xList, uList, refList, bp, alpha)
			if newCost <= cost {
				drop := cost - newCost
				xList, uList, cost = newX, newU, newCost
				improved = true
				reg = math.Max(reg/10, regMin)
				plan.Trace = append(plan.Trace, IterationTrace{
					Iteration: iter, Cost: cost, Regularization: reg, StepLength: alpha,
				})
				if drop < s.costTol*math.Max(1, math.Abs(cost)) {
					converged = true
				}
				break
			}
		}
		if !improved {
			reg *= 10
			plan.Trace = append(plan.Trace, IterationTrace{
				Iteration: iter, Cost: cost, Regularization: reg,
			})
			if reg > regMax {
				break
			}
			continue
		}
		if converged {
			break
		}
	}

	plan.Zmp = uList[0].Zmp
	plan.ForceZ = uList[0].ForceZ
	plan.InputList = uList
	plan.Iterations = iterations
	plan.SolveDuration = s.clock.Since(start)
	plan.Converged = converged
	s.logger.Debugw("horizon solved",
		"iterations", plan.Iterations, "cost", cost, "converged", plan.Converged)
	return plan, nil
}

func (s *ZmpSolver) rollout(x0 *mat.VecDense, uList []Input, refList []RefData) ([]*mat.VecDense, float64) {
	xList := make([]*mat.VecDense, s.steps+1)
	xList[0] = x0
	cost := 0.0
	for k := 0; k < s.steps; k++ {
		cost += s.model.runningCost(xList[k], uList[k], refList[k])
		xList[k+1] = s.model.step(xList[k], uList[k])
		if xList[k+1].AtVec(2) <= 0 {
			return xList, math.Inf(1)
		}
	}
	cost += s.model.terminalCost(xList[s.steps], refList[s.steps])
	return xList, cost
}

// backwardPassResult holds the control law of one backward sweep: the
// input update at step k is ff[k] plus gain[k] times the state deviation.
type backwardPassResult struct {
	ff   []*mat.VecDense
	gain []*mat.Dense
}

func (s *ZmpSolver) backwardPass(
	xList []*mat.VecDense, uList []Input, refList []RefData, reg float64,
) (*backwardPassResult, float64, bool) {
	res := &backwardPassResult{
		ff:   make([]*mat.VecDense, s.steps),
		gain: make([]*mat.Dense, s.steps),
	}

	vx := mat.NewVecDense(stateDim, nil)
	vxx := mat.NewDense(stateDim, stateDim, nil)
	s.model.terminalCostGrads(xList[s.steps], refList[s.steps], vx, vxx)

	lx := mat.NewVecDense(stateDim, nil)
	lu := mat.NewVecDense(inputDim, nil)
	lxx := mat.NewDense(stateDim, stateDim, nil)
	luu := mat.NewDense(inputDim, inputDim, nil)

	gradNorm := 0.0
	for k := s.steps - 1; k >= 0; k-- {
		a, b := s.model.linearize(xList[k], uList[k])
		s.model.runningCostGrads(xList[k], uList[k], refList[k], lx, lu, lxx, luu)

		qx := mat.NewVecDense(stateDim, nil)
		qx.MulVec(a.T(), vx)
		qx.AddVec(qx, lx)

		qu := mat.NewVecDense(inputDim, nil)
		qu.MulVec(b.T(), vx)
		qu.AddVec(qu, lu)

		vxxA := mat.NewDense(stateDim, stateDim, nil)
		vxxA.Mul(vxx, a)
		qxx := mat.NewDense(stateDim, stateDim, nil)
		qxx.Mul(a.T(), vxxA)
		qxx.Add(qxx, lxx)

		vxxB := mat.NewDense(stateDim, inputDim, nil)
		vxxB.Mul(vxx, b)
		quuDense := mat.NewDense(inputDim, inputDim, nil)
		quuDense.Mul(b.T(), vxxB)
		quuDense.Add(quuDense, luu)

		qux := mat.NewDense(inputDim, stateDim, nil)
		qux.Mul(b.T(), vxxA)

		quu := mat.NewSymDense(inputDim, nil)
		for i := 0; i < inputDim; i++ {
			for j := i; j < inputDim; j++ {
				quu.SetSym(i, j, 0.5*(quuDense.At(i, j)+quuDense.At(j, i)))
			}
			quu.SetSym(i, i, quu.At(i, i)+reg)
		}

		var chol mat.Cholesky
		if !chol.Factorize(quu) {
			return nil, 0, false
		}
		ff := mat.NewVecDense(inputDim, nil)
		if err := chol.SolveVecTo(ff, qu); err != nil {
			return nil, 0, false
		}
		ff.ScaleVec(-1, ff)
		gain := mat.NewDense(inputDim, stateDim, nil)
		if err := chol.SolveTo(gain, qux); err != nil {
			return nil, 0, false
		}
		gain.Scale(-1, gain)
		res.ff[k] = ff
		res.gain[k] = gain
		gradNorm = math.Max(gradNorm, mat.Norm(qu, math.Inf(1)))

		quuFF := mat.NewVecDense(inputDim, nil)
		quuFF.MulVec(quu, ff)
		tmp := mat.NewVecDense(stateDim, nil)
		tmp.MulVec(gain.T(), quuFF)
		vx.CopyVec(qx)
		vx.AddVec(vx, tmp)
		tmp.MulVec(gain.T(), qu)
		vx.AddVec(vx, tmp)
		tmp.MulVec(qux.T(), ff)
		vx.AddVec(vx, tmp)

		quuGain := mat.NewDense(inputDim, stateDim, nil)
		quuGain.Mul(quu, gain)
		t1 := mat.NewDense(stateDim, stateDim, nil)
		t1.Mul(gain.T(), quuGain)
		t2 := mat.NewDense(stateDim, stateDim, nil)
		t2.Mul(gain.T(), qux)
		t3 := mat.NewDense(stateDim, stateDim, nil)
		t3.Mul(qux.T(), gain)
		vxxNew := mat.NewDense(stateDim, stateDim, nil)
		vxxNew.Add(qxx, t1)
		vxxNew.Add(vxxNew, t2)
		vxxNew.Add(vxxNew, t3)
		// Symmetrize against numerical drift.
		for i := 0; i < stateDim; i++ {
			for j := i + 1; j < stateDim; j++ {
				m := 0.5 * (vxxNew.At(i, j) + vxxNew.At(j, i))
				vxxNew.Set(i, j, m)
				vxxNew.Set(j, i, m)
			}
		}
		vxx = vxxNew
	}
	return res, gradNorm, true
}

func (s *ZmpSolver) forwardPass(
	xList []*mat.VecDense, uList []Input, refList []RefData,
	bp *backwardPassResult, alpha float64,
) ([]*mat.VecDense, []Input, float64) {
	newX := make([]*mat.VecDense, s.steps+1)
	newU := make([]Input, s.steps)
	newX[0] = xList[0]
	cost := 0.0
	dx := mat.NewVecDense(stateDim, nil)
	du := mat.NewVecDense(inputDim, nil)
	for k := 0; k < s.steps; k++ {
		dx.SubVec(newX[k], xList[k])
		du.MulVec(bp.gain[k], dx)
		du.AddScaledVec(du, alpha, bp.ff[k])
		newU[k] = Input{
			Zmp: r2.Point{
				X: uList[k].Zmp.X + du.AtVec(0),
				Y: uList[k].Zmp.Y + du.AtVec(1),
			},
			ForceZ: uList[k].ForceZ + du.AtVec(2),
		}
		cost += s.model.runningCost(newX[k], newU[k], refList[k])
		newX[k+1] = s.model.step(newX[k], newU[k])
		if newX[k+1].AtVec(2) <= 0 {
			return nil, nil, math.Inf(1)
		}
	}
	cost += s.model.terminalCost(newX[s.steps], refList[s.steps])
	return newX, newU, cost
}
