// Package trajectory provides mathematical functions of one real argument
// used to describe walking reference trajectories: an abstract function
// capability, closed-form polynomials of arbitrary order, and piecewise
// composition over disjoint time segments.
package trajectory

import (
	"github.com/golang/geo/r3"
)

// Value constrains the value types a Func can produce. Implementations behave
// like elements of a vector space: Add returns the component-wise sum and Mul
// returns the receiver scaled by a float. Mul(0) must return the additive
// identity with the receiver's shape preserved; the framework relies on it to
// build zero values for derivatives above the function order, so a dynamically
// sized implementation must not lose its dimension when scaled by zero.
type Value[T any] interface {
	Add(T) T
	Mul(float64) T
}

// Scalar adapts float64 to the Value constraint for scalar-valued trajectories.
type Scalar float64

// Add returns s + o.
func (s Scalar) Add(o Scalar) Scalar { return s + o }

// Mul returns s scaled by m.
func (s Scalar) Mul(m float64) Scalar { return s * Scalar(m) }

// Func is a mathematical function of one real argument with derivatives of
// arbitrary order and a closed domain. Leaf implementations do not range-check
// their argument; domain enforcement is the containing Piecewise's job.
type Func[T Value[T]] interface {
	// Evaluate returns the function value at t.
	Evaluate(t float64) (T, error)

	// Derivative returns the order-th derivative value at t. Order 0 is the
	// plain evaluation.
	Derivative(t float64, order int) (T, error)

	// DomainLowerLimit returns the lower limit of the function domain.
	DomainLowerLimit() float64

	// DomainUpperLimit returns the upper limit of the function domain.
	DomainUpperLimit() float64
}

var (
	_ Value[Scalar]    = Scalar(0)
	_ Value[r3.Vector] = r3.Vector{}

	_ Func[Scalar] = (*Polynomial[Scalar])(nil)
	_ Func[Scalar] = (*Constant[Scalar])(nil)
	_ Func[Scalar] = (*Piecewise[Scalar])(nil)
)
