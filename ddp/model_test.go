package ddp

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func perturbInput(u Input, j int, d float64) Input {
	switch j {
	case 0:
		u.Zmp.X += d
	case 1:
		u.Zmp.Y += d
	default:
		u.ForceZ += d
	}
	return u
}

func TestStepHoldsEquilibrium(t *testing.T) {
	m := &model{mass: 60, dt: 0.02, w: DefaultWeights()}
	x := mat.NewVecDense(stateDim, []float64{0.1, 0.2, 0.9, 0, 0, 0})
	u := NominalInput(60, r3.Vector{X: 0.1, Y: 0.2, Z: 0.9})
	next := m.step(x, u)
	for i := 0; i < stateDim; i++ {
		test.That(t, next.AtVec(i), test.ShouldAlmostEqual, x.AtVec(i))
	}
}

func TestLinearizeMatchesFiniteDifference(t *testing.T) {
	m := &model{mass: 60, dt: 0.02, w: DefaultWeights()}
	x := mat.NewVecDense(stateDim, []float64{0.03, -0.02, 0.93, 0.12, -0.05, 0.04})
	u := Input{Zmp: r2.Point{X: 0.01, Y: -0.03}, ForceZ: 60 * Gravity * 1.02}

	a, b := m.linearize(x, u)

	const h = 1e-6
	for j := 0; j < stateDim; j++ {
		xp := mat.NewVecDense(stateDim, nil)
		xp.CopyVec(x)
		xp.SetVec(j, x.AtVec(j)+h)
		xm := mat.NewVecDense(stateDim, nil)
		xm.CopyVec(x)
		xm.SetVec(j, x.AtVec(j)-h)
		fp := m.step(xp, u)
		fm := m.step(xm, u)
		for i := 0; i < stateDim; i++ {
			want := (fp.AtVec(i) - fm.AtVec(i)) / (2 * h)
			test.That(t, a.At(i, j), test.ShouldAlmostEqual, want, 1e-6)
		}
	}

	for j := 0; j < inputDim; j++ {
		fp := m.step(x, perturbInput(u, j, h))
		fm := m.step(x, perturbInput(u, j, -h))
		for i := 0; i < stateDim; i++ {
			want := (fp.AtVec(i) - fm.AtVec(i)) / (2 * h)
			test.That(t, b.At(i, j), test.ShouldAlmostEqual, want, 1e-6)
		}
	}
}

func TestCostGradsMatchFiniteDifference(t *testing.T) {
	m := &model{mass: 60, dt: 0.02, w: DefaultWeights()}
	x := mat.NewVecDense(stateDim, []float64{0.03, -0.02, 0.95, 0.1, 0.05, -0.02})
	u := Input{Zmp: r2.Point{X: 0.02, Y: 0.01}, ForceZ: 600}
	ref := RefData{Zmp: r2.Point{X: -0.01, Y: 0.02}, ComZ: 0.9}

	lx := mat.NewVecDense(stateDim, nil)
	lu := mat.NewVecDense(inputDim, nil)
	lxx := mat.NewDense(stateDim, stateDim, nil)
	luu := mat.NewDense(inputDim, inputDim, nil)
	m.runningCostGrads(x, u, ref, lx, lu, lxx, luu)

	const h = 1e-6
	for j := 0; j < stateDim; j++ {
		xp := mat.NewVecDense(stateDim, nil)
		xp.CopyVec(x)
		xp.SetVec(j, x.AtVec(j)+h)
		xm := mat.NewVecDense(stateDim, nil)
		xm.CopyVec(x)
		xm.SetVec(j, x.AtVec(j)-h)
		want := (m.runningCost(xp, u, ref) - m.runningCost(xm, u, ref)) / (2 * h)
		test.That(t, lx.AtVec(j), test.ShouldAlmostEqual, want, 1e-5)
	}
	for j := 0; j < inputDim; j++ {
		up := perturbInput(u, j, h)
		um := perturbInput(u, j, -h)
		want := (m.runningCost(x, up, ref) - m.runningCost(x, um, ref)) / (2 * h)
		test.That(t, lu.AtVec(j), test.ShouldAlmostEqual, want, 1e-5)
	}

	vx := mat.NewVecDense(stateDim, nil)
	vxx := mat.NewDense(stateDim, stateDim, nil)
	m.terminalCostGrads(x, ref, vx, vxx)
	for j := 0; j < stateDim; j++ {
		xp := mat.NewVecDense(stateDim, nil)
		xp.CopyVec(x)
		xp.SetVec(j, x.AtVec(j)+h)
		xm := mat.NewVecDense(stateDim, nil)
		xm.CopyVec(x)
		xm.SetVec(j, x.AtVec(j)-h)
		want := (m.terminalCost(xp, ref) - m.terminalCost(xm, ref)) / (2 * h)
		test.That(t, vx.AtVec(j), test.ShouldAlmostEqual, want, 1e-5)
	}
}
