package nls

import (
	"fmt"
	"math"
)

// CostFunction is one residual over a block of parameters. When jacobian is
// non-nil Evaluate fills it with the partial derivatives of the residual.
type CostFunction interface {
	NumParameters() int
	Evaluate(params, jacobian []float64) (float64, error)
}

type residualBlock struct {
	cost   CostFunction
	params []int
}

// Problem is a bounded least-squares problem: minimize ½·Σ r² over the
// parameters, each kept inside its [lower, upper] interval.
type Problem struct {
	values   []float64
	lower    []float64
	upper    []float64
	blocks   []residualBlock
	constant float64
}

func NewProblem() *Problem {
	return &Problem{}
}

// AddParameter registers a parameter with an initial value and returns its
// index.
func (p *Problem) AddParameter(v float64) int {
	p.values = append(p.values, v)
	p.lower = append(p.lower, math.Inf(-1))
	p.upper = append(p.upper, math.Inf(1))
	return len(p.values) - 1
}

func (p *Problem) SetLowerBound(i int, v float64) { p.lower[i] = v }
func (p *Problem) SetUpperBound(i int, v float64) { p.upper[i] = v }

func (p *Problem) Bounds(i int) (float64, float64) { return p.lower[i], p.upper[i] }

// AddResidualBlock adds a residual depending on the listed parameters, in the
// order the cost function expects them.
func (p *Problem) AddResidualBlock(cost CostFunction, params ...int) error {
	if cost.NumParameters() != len(params) {
		return fmt.Errorf("residual block expects %d parameters, got %d", cost.NumParameters(), len(params))
	}
	for _, i := range params {
		if i < 0 || i >= len(p.values) {
			return fmt.Errorf("residual block references unknown parameter %d", i)
		}
	}
	p.blocks = append(p.blocks, residualBlock{cost: cost, params: params})
	return nil
}

// AddConstant adds a residual that no parameter can change. It still counts
// toward the cost.
func (p *Problem) AddConstant(r float64) {
	p.constant += 0.5 * r * r
}

// Parameters returns the current parameter values. After Solve they hold the
// best point found.
func (p *Problem) Parameters() []float64 { return p.values }

func (p *Problem) NumParameters() int { return len(p.values) }
func (p *Problem) NumResiduals() int  { return len(p.blocks) }

func (p *Problem) project(x []float64) {
	for i := range x {
		x[i] = math.Max(p.lower[i], math.Min(p.upper[i], x[i]))
	}
}

// linearization is the state of the problem at one point.
type linearization struct {
	cost      float64
	residuals []float64
	jacobians [][]float64
	gradient  []float64
	diagonal  []float64
}

func (p *Problem) evaluate(x []float64, withJacobian bool) (*linearization, error) {
	lin := &linearization{cost: p.constant, residuals: make([]float64, len(p.blocks))}
	if withJacobian {
		lin.jacobians = make([][]float64, len(p.blocks))
		lin.gradient = make([]float64, len(x))
		lin.diagonal = make([]float64, len(x))
	}

	local := make([]float64, 0, 8)
	for b, block := range p.blocks {
		local = local[:0]
		for _, i := range block.params {
			local = append(local, x[i])
		}
		var jac []float64
		if withJacobian {
			jac = make([]float64, len(block.params))
		}
		r, err := block.cost.Evaluate(local, jac)
		if err != nil {
			return nil, fmt.Errorf("residual %d: %w", b, err)
		}
		lin.residuals[b] = r
		lin.cost += 0.5 * r * r
		if withJacobian {
			lin.jacobians[b] = jac
			for a, i := range block.params {
				lin.gradient[i] += jac[a] * r
				lin.diagonal[i] += jac[a] * jac[a]
			}
		}
	}
	if math.IsNaN(lin.cost) || math.IsInf(lin.cost, 0) {
		return nil, fmt.Errorf("cost is not finite: %v", lin.cost)
	}
	return lin, nil
}
