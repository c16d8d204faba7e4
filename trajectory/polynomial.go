package trajectory

import (
	"math"

	"github.com/pkg/errors"
)

// Polynomial is a polynomial function of fixed order, evaluated relative to an
// offset origin t0.
type Polynomial[T Value[T]] struct {
	coeffs []T
	t0     float64
}

// NewPolynomial returns a polynomial with the given coefficients, ordered from
// low order (constant term) to high order, evaluated at t-t0. The order is
// len(coeffs)-1 and is fixed at construction; the coefficients are copied and
// immutable afterwards.
func NewPolynomial[T Value[T]](coeffs []T, t0 float64) (*Polynomial[T], error) {
	if len(coeffs) == 0 {
		return nil, errors.New("polynomial needs at least one coefficient")
	}
	c := make([]T, len(coeffs))
	copy(c, coeffs)
	return &Polynomial[T]{coeffs: c, t0: t0}, nil
}

// Order returns the polynomial order.
func (p *Polynomial[T]) Order() int {
	return len(p.coeffs) - 1
}

// Evaluate returns the polynomial value at t.
func (p *Polynomial[T]) Evaluate(t float64) (T, error) {
	ret := p.coeffs[0]
	for i := 1; i < len(p.coeffs); i++ {
		ret = ret.Add(p.coeffs[i].Mul(math.Pow(t-p.t0, float64(i))))
	}
	return ret, nil
}

// Derivative returns the order-th derivative value at t. Each surviving
// coefficient is scaled by the falling factorial of its original power; orders
// above the polynomial order yield the additive identity.
func (p *Polynomial[T]) Derivative(t float64, order int) (T, error) {
	if order < 0 {
		var zero T
		return zero, errors.Errorf("derivative order must be non-negative, got %d", order)
	}
	if order == 0 {
		return p.Evaluate(t)
	}
	if order > p.Order() {
		return p.coeffs[0].Mul(0), nil
	}

	// Constant term of the differentiated polynomial: coeff[order] * order!.
	scale := 1.0
	for j := 0; j < order-1; j++ {
		scale *= float64(order - j)
	}
	ret := p.coeffs[order].Mul(scale)

	for i := 1; i <= p.Order()-order; i++ {
		scale = 1.0
		for j := 0; j < order; j++ {
			scale *= float64(i + order - j)
		}
		ret = ret.Add(p.coeffs[i+order].Mul(scale * math.Pow(t-p.t0, float64(i))))
	}
	return ret, nil
}

// DomainLowerLimit returns the lower limit of the domain.
func (p *Polynomial[T]) DomainLowerLimit() float64 {
	return math.Inf(-1)
}

// DomainUpperLimit returns the upper limit of the domain.
func (p *Polynomial[T]) DomainUpperLimit() float64 {
	return math.Inf(1)
}

// Constant is a degree-0 polynomial whose value ignores the argument.
type Constant[T Value[T]] struct {
	Polynomial[T]
}

// NewConstant returns the constant function with the given value.
func NewConstant[T Value[T]](value T) *Constant[T] {
	return &Constant[T]{Polynomial[T]{coeffs: []T{value}}}
}
