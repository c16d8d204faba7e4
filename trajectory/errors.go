package trajectory

import "fmt"

// OutOfDomainError is returned when a function is evaluated outside its
// declared domain. It carries the offending argument and both valid bounds.
type OutOfDomainError struct {
	Arg   float64
	Lower float64
	Upper float64
}

func (e OutOfDomainError) Error() string {
	return fmt.Sprintf("argument is out of the function domain, need %v <= %v <= %v", e.Lower, e.Arg, e.Upper)
}
