package trajectory

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// Piecewise composes functions over contiguous, non-overlapping time segments.
// Each segment is keyed by the upper bound of its sub-domain; a lookup
// dispatches to the first segment whose upper bound is not less than the
// argument, so an argument exactly on a boundary belongs to the ending
// segment. Build it fully before querying; mutating while querying is not
// supported.
type Piecewise[T Value[T]] struct {
	times      []float64
	funcs      []Func[T]
	lowerLimit float64
}

// NewPiecewise returns an empty piecewise function with an unbounded domain.
func NewPiecewise[T Value[T]]() *Piecewise[T] {
	return &Piecewise[T]{lowerLimit: math.Inf(-1)}
}

// Evaluate returns the owning segment's value at t.
func (pf *Piecewise[T]) Evaluate(t float64) (T, error) {
	f, err := pf.segmentFor(t)
	if err != nil {
		var zero T
		return zero, err
	}
	return f.Evaluate(t)
}

// Derivative returns the owning segment's order-th derivative value at t.
func (pf *Piecewise[T]) Derivative(t float64, order int) (T, error) {
	f, err := pf.segmentFor(t)
	if err != nil {
		var zero T
		return zero, err
	}
	return f.Derivative(t, order)
}

// DomainLowerLimit returns the lower limit of the piecewise domain.
func (pf *Piecewise[T]) DomainLowerLimit() float64 {
	return pf.lowerLimit
}

// DomainUpperLimit returns the last segment's upper bound, or +Inf if no
// segment has been appended yet.
func (pf *Piecewise[T]) DomainUpperLimit() float64 {
	if len(pf.times) == 0 {
		return math.Inf(1)
	}
	return pf.times[len(pf.times)-1]
}

// Append adds a segment whose sub-domain ends at t. Segment upper bounds must
// strictly increase; a bound at or below the previous one is rejected.
func (pf *Piecewise[T]) Append(t float64, f Func[T]) error {
	if f == nil {
		return errors.New("piecewise segment function must not be nil")
	}
	if n := len(pf.times); n > 0 && t <= pf.times[n-1] {
		return errors.Errorf("piecewise segment upper bound %v must exceed the previous bound %v", t, pf.times[n-1])
	}
	pf.times = append(pf.times, t)
	pf.funcs = append(pf.funcs, f)
	return nil
}

// Clear removes all segments and resets the lower limit.
func (pf *Piecewise[T]) Clear() {
	pf.times = nil
	pf.funcs = nil
	pf.lowerLimit = math.Inf(-1)
}

// SetDomainLowerLimit sets the lower limit of the piecewise domain.
func (pf *Piecewise[T]) SetDomainLowerLimit(t float64) {
	pf.lowerLimit = t
}

func (pf *Piecewise[T]) segmentFor(t float64) (Func[T], error) {
	if len(pf.funcs) == 0 {
		return nil, errors.New("piecewise function has no segments")
	}
	upper := pf.times[len(pf.times)-1]
	if t < pf.lowerLimit || upper < t {
		return nil, OutOfDomainError{Arg: t, Lower: pf.lowerLimit, Upper: upper}
	}
	return pf.funcs[sort.SearchFloat64s(pf.times, t)], nil
}
