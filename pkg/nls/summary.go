package nls

import "fmt"

type Termination int

const (
	CostTolerance Termination = iota
	GradientTolerance
	FunctionTolerance
	ParameterTolerance
	NoConvergence
	Failure
)

func (t Termination) String() string {
	switch t {
	case CostTolerance:
		return "COST_TOLERANCE"
	case GradientTolerance:
		return "GRADIENT_TOLERANCE"
	case FunctionTolerance:
		return "FUNCTION_TOLERANCE"
	case ParameterTolerance:
		return "PARAMETER_TOLERANCE"
	case NoConvergence:
		return "NO_CONVERGENCE"
	case Failure:
		return "FAILURE"
	}
	return fmt.Sprintf("TERMINATION(%d)", int(t))
}

type Summary struct {
	InitialCost  float64
	FinalCost    float64
	Iterations   int
	GradientNorm float64
	Termination  Termination
	Message      string
}

// Usable reports whether the parameters hold a point the solver stands
// behind, even if it ran out of iterations.
func (s Summary) Usable() bool {
	return s.Termination != Failure
}

func (s Summary) Converged() bool {
	switch s.Termination {
	case CostTolerance, GradientTolerance, FunctionTolerance, ParameterTolerance:
		return true
	}
	return false
}

func (s Summary) String() string {
	return fmt.Sprintf("%s after %d iterations: cost %g -> %g, |g| %g (%s)",
		s.Termination, s.Iterations, s.InitialCost, s.FinalCost, s.GradientNorm, s.Message)
}
