package ddp

import (
	"gonum.org/v1/gonum/mat"
)

// State layout: [pos_x, pos_y, pos_z, vel_x, vel_y, vel_z].
// Input layout: [zmp_x, zmp_y, force_z].
const (
	stateDim = 6
	inputDim = 3
)

// model is the discretized point-mass dynamics and the tracking cost.
type model struct {
	mass float64
	dt   float64
	w    Weights
}

func (m *model) accel(x *mat.VecDense, u Input) (ax, ay, az float64) {
	fOverMz := u.ForceZ / (m.mass * x.AtVec(2))
	ax = (x.AtVec(0) - u.Zmp.X) * fOverMz
	ay = (x.AtVec(1) - u.Zmp.Y) * fOverMz
	az = u.ForceZ/m.mass - Gravity
	return ax, ay, az
}

// step integrates one horizon interval with the explicit Euler scheme.
func (m *model) step(x *mat.VecDense, u Input) *mat.VecDense {
	ax, ay, az := m.accel(x, u)
	next := mat.NewVecDense(stateDim, nil)
	next.SetVec(0, x.AtVec(0)+m.dt*x.AtVec(3))
	next.SetVec(1, x.AtVec(1)+m.dt*x.AtVec(4))
	next.SetVec(2, x.AtVec(2)+m.dt*x.AtVec(5))
	next.SetVec(3, x.AtVec(3)+m.dt*ax)
	next.SetVec(4, x.AtVec(4)+m.dt*ay)
	next.SetVec(5, x.AtVec(5)+m.dt*az)
	return next
}

// linearize returns the Jacobians of step about (x, u):
// A = d step / d x and B = d step / d u.
func (m *model) linearize(x *mat.VecDense, u Input) (*mat.Dense, *mat.Dense) {
	px, py, pz := x.AtVec(0), x.AtVec(1), x.AtVec(2)
	fOverMz := u.ForceZ / (m.mass * pz)

	a := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		a.Set(i, i, 1)
	}
	a.Set(0, 3, m.dt)
	a.Set(1, 4, m.dt)
	a.Set(2, 5, m.dt)
	a.Set(3, 0, m.dt*fOverMz)
	a.Set(3, 2, -m.dt*(px-u.Zmp.X)*fOverMz/pz)
	a.Set(4, 1, m.dt*fOverMz)
	a.Set(4, 2, -m.dt*(py-u.Zmp.Y)*fOverMz/pz)

	b := mat.NewDense(stateDim, inputDim, nil)
	b.Set(3, 0, -m.dt*fOverMz)
	b.Set(3, 2, m.dt*(px-u.Zmp.X)/(m.mass*pz))
	b.Set(4, 1, -m.dt*fOverMz)
	b.Set(4, 2, m.dt*(py-u.Zmp.Y)/(m.mass*pz))
	b.Set(5, 2, m.dt/m.mass)
	return a, b
}

func (m *model) runningCost(x *mat.VecDense, u Input, ref RefData) float64 {
	dzx := u.Zmp.X - ref.Zmp.X
	dzy := u.Zmp.Y - ref.Zmp.Y
	df := u.ForceZ - m.mass*Gravity
	dc := x.AtVec(2) - ref.ComZ
	return 0.5*m.w.RunningZmp*(dzx*dzx+dzy*dzy) +
		0.5*m.w.RunningForceZ*df*df +
		0.5*m.w.RunningComZ*dc*dc
}

// runningCostGrads fills the cost expansion about (x, u). The cost is
// separable in x and u, so the cross term is zero and is omitted.
func (m *model) runningCostGrads(x *mat.VecDense, u Input, ref RefData,
	lx, lu *mat.VecDense, lxx, luu *mat.Dense,
) {
	lx.Zero()
	lx.SetVec(2, m.w.RunningComZ*(x.AtVec(2)-ref.ComZ))

	lu.SetVec(0, m.w.RunningZmp*(u.Zmp.X-ref.Zmp.X))
	lu.SetVec(1, m.w.RunningZmp*(u.Zmp.Y-ref.Zmp.Y))
	lu.SetVec(2, m.w.RunningForceZ*(u.ForceZ-m.mass*Gravity))

	lxx.Zero()
	lxx.Set(2, 2, m.w.RunningComZ)

	luu.Zero()
	luu.Set(0, 0, m.w.RunningZmp)
	luu.Set(1, 1, m.w.RunningZmp)
	luu.Set(2, 2, m.w.RunningForceZ)
}

// terminalCost asks the CoM to come to rest over the reference ZMP at
// the end of the horizon. This is what keeps the closed loop capturable:
// the running cost alone would let the CoM drift away from the ZMP.
func (m *model) terminalCost(x *mat.VecDense, ref RefData) float64 {
	dx := x.AtVec(0) - ref.Zmp.X
	dy := x.AtVec(1) - ref.Zmp.Y
	dc := x.AtVec(2) - ref.ComZ
	vx, vy, vz := x.AtVec(3), x.AtVec(4), x.AtVec(5)
	return 0.5*m.w.TerminalComXY*(dx*dx+dy*dy) +
		0.5*m.w.TerminalComZ*dc*dc +
		0.5*m.w.TerminalVelXY*(vx*vx+vy*vy) +
		0.5*m.w.TerminalVelZ*vz*vz
}

func (m *model) terminalCostGrads(x *mat.VecDense, ref RefData, vx *mat.VecDense, vxx *mat.Dense) {
	vx.Zero()
	vx.SetVec(0, m.w.TerminalComXY*(x.AtVec(0)-ref.Zmp.X))
	vx.SetVec(1, m.w.TerminalComXY*(x.AtVec(1)-ref.Zmp.Y))
	vx.SetVec(2, m.w.TerminalComZ*(x.AtVec(2)-ref.ComZ))
	vx.SetVec(3, m.w.TerminalVelXY*x.AtVec(3))
	vx.SetVec(4, m.w.TerminalVelXY*x.AtVec(4))
	vx.SetVec(5, m.w.TerminalVelZ*x.AtVec(5))

	vxx.Zero()
	vxx.Set(0, 0, m.w.TerminalComXY)
	vxx.Set(1, 1, m.w.TerminalComXY)
	vxx.Set(2, 2, m.w.TerminalComZ)
	vxx.Set(3, 3, m.w.TerminalVelXY)
	vxx.Set(4, 4, m.w.TerminalVelXY)
	vxx.Set(5, 5, m.w.TerminalVelZ)
}
