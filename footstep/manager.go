package footstep

import (
	"math"
	"sync"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/nopaddleboat/BaselineWalkingController/trajectory"
)

// Manager owns the footstep queue and the reference ZMP trajectory built
// from it. It is safe for concurrent use.
type Manager struct {
	logger golog.Logger

	mu        sync.Mutex
	started   bool
	startTime float64
	stance    map[Foot]r3.Vector
	queue     []Footstep
	zmpTraj   *trajectory.Piecewise[r3.Vector]
}

// NewManager returns a manager with no stance. Reset must be called
// before steps are queued or the reference is sampled.
func NewManager(logger golog.Logger) *Manager {
	return &Manager{
		logger:  logger,
		zmpTraj: trajectory.NewPiecewise[r3.Vector](),
	}
}

// Reset clears the footstep queue and rebases the reference trajectory on
// the given stance at startTime. Until steps are queued the reference ZMP
// holds at the stance midpoint.
func (m *Manager) Reset(leftPos, rightPos r3.Vector, startTime float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	m.startTime = startTime
	m.stance = map[Foot]r3.Vector{Left: leftPos, Right: rightPos}
	m.queue = nil
	if err := m.rebuild(); err != nil {
		// Unreachable with an empty queue; rebuild appends one segment.
		m.logger.Errorw("failed to rebuild reference trajectory", "error", err)
	}
	m.logger.Debugw("footstep manager reset", "startTime", startTime)
}

// AppendFootstep queues a step. Steps must arrive in schedule order: the
// transit must not begin before the previous step's swing has ended.
func (m *Manager) AppendFootstep(fs Footstep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return errors.New("footstep manager must be reset before steps are queued")
	}
	if err := fs.Validate(); err != nil {
		return err
	}
	earliest := m.startTime
	if n := len(m.queue); n > 0 {
		earliest = m.queue[n-1].SwingEndTime
	}
	if fs.TransitStartTime < earliest {
		return errors.Errorf(
			"footstep transit at %v overlaps the schedule before %v",
			fs.TransitStartTime, earliest)
	}
	m.queue = append(m.queue, fs)
	if err := m.rebuild(); err != nil {
		m.queue = m.queue[:len(m.queue)-1]
		return errors.Wrap(err, "footstep produced an invalid reference trajectory")
	}
	m.logger.Debugw("footstep queued",
		"foot", fs.Foot.String(),
		"pos", fs.Pos,
		"swingStart", fs.SwingStartTime,
		"swingEnd", fs.SwingEndTime)
	return nil
}

// Footsteps returns a copy of the queued steps.
func (m *Manager) Footsteps() []Footstep {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Footstep, len(m.queue))
	copy(out, m.queue)
	return out
}

// RefZmp returns the reference ZMP at time t. Times before the reset time
// are out of the trajectory domain.
func (m *Manager) RefZmp(t float64) (r3.Vector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return r3.Vector{}, errors.New("footstep manager must be reset before the reference is sampled")
	}
	return m.zmpTraj.Evaluate(t)
}

func midpoint(a, b r3.Vector) r3.Vector {
	return a.Add(b).Mul(0.5)
}

func appendLinear(traj *trajectory.Piecewise[r3.Vector], t0, t1 float64, from, to r3.Vector) error {
	slope := to.Sub(from).Mul(1 / (t1 - t0))
	seg, err := trajectory.NewPolynomial([]r3.Vector{from, slope}, t0)
	if err != nil {
		return err
	}
	return traj.Append(t1, seg)
}

// rebuild regenerates the reference ZMP trajectory from the queue. The
// ZMP starts at the stance midpoint, transits onto each support foot,
// holds through the swing, and settles on the final stance midpoint.
// Callers must hold mu.
func (m *Manager) rebuild() error {
	traj := trajectory.NewPiecewise[r3.Vector]()
	traj.SetDomainLowerLimit(m.startTime)

	stance := map[Foot]r3.Vector{Left: m.stance[Left], Right: m.stance[Right]}
	zmp := midpoint(stance[Left], stance[Right])
	cursor := m.startTime
	for _, fs := range m.queue {
		support := stance[fs.Foot.Opposite()]
		transitStart := fs.TransitStartTime
		if transitStart > cursor {
			if err := traj.Append(transitStart, trajectory.NewConstant(zmp)); err != nil {
				return err
			}
		} else {
			transitStart = cursor
		}
		if err := appendLinear(traj, transitStart, fs.SwingStartTime, zmp, support); err != nil {
			return err
		}
		if err := traj.Append(fs.SwingEndTime, trajectory.NewConstant(support)); err != nil {
			return err
		}
		stance[fs.Foot] = fs.Pos
		zmp = support
		cursor = fs.SwingEndTime
	}
	if len(m.queue) > 0 {
		last := m.queue[len(m.queue)-1]
		final := midpoint(stance[Left], stance[Right])
		if err := appendLinear(traj, cursor, last.TransitEndTime, zmp, final); err != nil {
			return err
		}
		zmp = final
	}
	if err := traj.Append(math.Inf(1), trajectory.NewConstant(zmp)); err != nil {
		return err
	}
	m.zmpTraj = traj
	return nil
}
