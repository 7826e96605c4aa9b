package nls

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/edp1096/circuitsolver/pkg/matrix"
)

type Options struct {
	MaxIterations      int
	InitialDamping     float64
	CostTolerance      float64
	GradientTolerance  float64
	FunctionTolerance  float64
	ParameterTolerance float64
	Logger             *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		MaxIterations:      1000,
		InitialDamping:     1e-4,
		CostTolerance:      1e-32,
		GradientTolerance:  1e-16,
		FunctionTolerance:  1e-14,
		ParameterTolerance: 1e-14,
	}
}

const (
	minDiagonal = 1e-6
	maxDiagonal = 1e32
	minDamping  = 1e-12
	maxDamping  = 1e32
)

// Solve minimizes the problem with a projected Levenberg-Marquardt method.
// Columns are scaled by the diagonal of JᵀJ and every trial point is projected
// back into the bounds. The parameters of p are updated in place.
func Solve(ctx context.Context, opts Options, p *Problem) Summary {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := len(p.values)
	x := append([]float64(nil), p.values...)
	p.project(x)

	summary := Summary{Termination: NoConvergence}
	lin, err := p.evaluate(x, true)
	if err != nil {
		summary.Termination = Failure
		summary.Message = fmt.Sprintf("initial point: %v", err)
		summary.InitialCost = math.Inf(1)
		summary.FinalCost = math.Inf(1)
		return summary
	}
	summary.InitialCost = lin.cost
	summary.FinalCost = lin.cost
	defer func() {
		copy(p.values, x)
		logger.Debug("nls solve finished",
			"termination", summary.Termination.String(),
			"iterations", summary.Iterations,
			"initial_cost", summary.InitialCost,
			"final_cost", summary.FinalCost)
	}()

	if n == 0 {
		summary.Termination = ParameterTolerance
		summary.Message = "no parameters"
		return summary
	}

	sys, err := matrix.NewMatrix(n)
	if err != nil {
		summary.Termination = Failure
		summary.Message = err.Error()
		return summary
	}
	defer sys.Destroy()
	sys.SetupElements()

	lambda := opts.InitialDamping
	nu := 2.0
	scale := make([]float64, n+1)
	cols := make([]int, 0, 8)
	grad := make([]float64, 0, 8)
	step := make([]float64, n)
	trial := make([]float64, n)

	for summary.Iterations < opts.MaxIterations {
		if err := ctx.Err(); err != nil {
			summary.Termination = Failure
			summary.Message = err.Error()
			return summary
		}
		if lin.cost <= opts.CostTolerance {
			summary.Termination = CostTolerance
			summary.Message = "cost below tolerance"
			return summary
		}

		active := p.activeSet(x, lin.gradient)
		summary.GradientNorm = p.projectedGradientNorm(x, lin.gradient)
		if summary.GradientNorm <= opts.GradientTolerance {
			summary.Termination = GradientTolerance
			summary.Message = "projected gradient below tolerance"
			return summary
		}

		for i := 0; i < n; i++ {
			scale[i+1] = math.Min(maxDiagonal, math.Max(minDiagonal, lin.diagonal[i]))
		}

		sys.Clear()
		for b, block := range p.blocks {
			cols, grad = cols[:0], grad[:0]
			for a, i := range block.params {
				cols = append(cols, i+1)
				g := lin.jacobians[b][a]
				if active[i] {
					g = 0
				}
				grad = append(grad, g)
			}
			matrix.StampGramian(sys, cols, grad, lin.residuals[b])
		}
		for i := 0; i < n; i++ {
			if active[i] {
				sys.AddElement(i+1, i+1, 1)
			}
		}
		sys.LoadDamping(lambda, scale)
		summary.Iterations++

		if err := sys.Solve(); err != nil {
			lambda, nu = lambda*nu, nu*2
			if lambda > maxDamping {
				summary.Termination = Failure
				summary.Message = err.Error()
				return summary
			}
			continue
		}
		delta := sys.Solution()

		for i := 0; i < n; i++ {
			trial[i] = x[i] + delta[i+1]
		}
		p.project(trial)
		stepNorm, xNorm := 0.0, 0.0
		for i := 0; i < n; i++ {
			step[i] = trial[i] - x[i]
			stepNorm += step[i] * step[i]
			xNorm += x[i] * x[i]
		}
		stepNorm, xNorm = math.Sqrt(stepNorm), math.Sqrt(xNorm)
		if stepNorm <= opts.ParameterTolerance*(xNorm+opts.ParameterTolerance) {
			summary.Termination = ParameterTolerance
			summary.Message = "step below tolerance"
			return summary
		}

		next, err := p.evaluate(trial, true)
		if err != nil || next.cost >= lin.cost {
			lambda, nu = lambda*nu, nu*2
			if lambda > maxDamping {
				summary.Termination = ParameterTolerance
				summary.Message = "damping exceeded its limit"
				return summary
			}
			continue
		}

		rho := (lin.cost - next.cost) / p.predictedReduction(lin, step)
		reduction := lin.cost - next.cost
		prev := lin.cost
		copy(x, trial)
		lin = next
		summary.FinalCost = lin.cost
		if reduction <= opts.FunctionTolerance*prev {
			summary.Termination = FunctionTolerance
			summary.Message = "relative cost change below tolerance"
			return summary
		}
		if rho > 0 && !math.IsInf(rho, 0) {
			lambda *= math.Max(1.0/3.0, 1-math.Pow(2*rho-1, 3))
		} else {
			lambda /= 3
		}
		lambda = math.Max(lambda, minDamping)
		nu = 2
	}
	summary.Termination = NoConvergence
	summary.Message = "maximum iterations reached"
	return summary
}

// activeSet marks parameters sitting on a bound the descent direction
// points through.
func (p *Problem) activeSet(x, g []float64) []bool {
	active := make([]bool, len(x))
	for i := range x {
		active[i] = (x[i] <= p.lower[i] && g[i] > 0) || (x[i] >= p.upper[i] && g[i] < 0)
	}
	return active
}

// projectedGradientNorm is max |x - P(x - g)|.
func (p *Problem) projectedGradientNorm(x, g []float64) float64 {
	norm := 0.0
	for i := range x {
		moved := math.Max(p.lower[i], math.Min(p.upper[i], x[i]-g[i]))
		norm = math.Max(norm, math.Abs(x[i]-moved))
	}
	return norm
}

// predictedReduction is the decrease of the Gauss-Newton model along step.
func (p *Problem) predictedReduction(lin *linearization, step []float64) float64 {
	pred := 0.0
	for i, h := range step {
		pred -= lin.gradient[i] * h
	}
	for b, block := range p.blocks {
		jh := 0.0
		for a, i := range block.params {
			jh += lin.jacobians[b][a] * step[i]
		}
		pred -= 0.5 * jh * jh
	}
	return pred
}
