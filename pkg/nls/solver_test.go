package nls

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcCost struct {
	n int
	f func(x, jac []float64) (float64, error)
}

func (c funcCost) NumParameters() int { return c.n }
func (c funcCost) Evaluate(x, jac []float64) (float64, error) {
	return c.f(x, jac)
}

func affine(k, b float64) funcCost {
	return funcCost{n: 1, f: func(x, jac []float64) (float64, error) {
		if jac != nil {
			jac[0] = k
		}
		return k*x[0] + b, nil
	}}
}

func TestSolveLinear(t *testing.T) {
	p := NewProblem()
	x := p.AddParameter(0)
	y := p.AddParameter(0)
	require.NoError(t, p.AddResidualBlock(affine(1, -3), x))
	require.NoError(t, p.AddResidualBlock(affine(2, 2), y))

	s := Solve(context.Background(), DefaultOptions(), p)
	require.True(t, s.Usable(), s.String())
	assert.True(t, s.Converged(), s.String())
	assert.InDelta(t, 3, p.Parameters()[x], 1e-9)
	assert.InDelta(t, -1, p.Parameters()[y], 1e-9)
	assert.Less(t, s.FinalCost, 1e-15)
	assert.Equal(t, 6.5, s.InitialCost)
}

func TestSolveCoupledNonlinear(t *testing.T) {
	p := NewProblem()
	x := p.AddParameter(0)
	y := p.AddParameter(0)
	// exp(x) = 2, x + y = 1
	require.NoError(t, p.AddResidualBlock(funcCost{n: 1, f: func(v, jac []float64) (float64, error) {
		e := math.Exp(v[0])
		if jac != nil {
			jac[0] = e
		}
		return e - 2, nil
	}}, x))
	require.NoError(t, p.AddResidualBlock(funcCost{n: 2, f: func(v, jac []float64) (float64, error) {
		if jac != nil {
			jac[0], jac[1] = 1, 1
		}
		return v[0] + v[1] - 1, nil
	}}, x, y))

	s := Solve(context.Background(), DefaultOptions(), p)
	require.True(t, s.Converged(), s.String())
	assert.GreaterOrEqual(t, s.Iterations, 2, "the system is refilled and refactored every iteration")
	assert.InDelta(t, math.Ln2, p.Parameters()[x], 1e-9)
	assert.InDelta(t, 1-math.Ln2, p.Parameters()[y], 1e-9)
}

func TestSolveFarStart(t *testing.T) {
	p := NewProblem()
	x := p.AddParameter(10)
	p.SetLowerBound(x, 0)
	// x² = 4
	require.NoError(t, p.AddResidualBlock(funcCost{n: 1, f: func(v, jac []float64) (float64, error) {
		if jac != nil {
			jac[0] = 2 * v[0]
		}
		return v[0]*v[0] - 4, nil
	}}, x))

	s := Solve(context.Background(), DefaultOptions(), p)
	require.True(t, s.Converged(), s.String())
	assert.GreaterOrEqual(t, s.Iterations, 3)
	assert.InDelta(t, 2, p.Parameters()[x], 1e-6)
}

func TestSolveRespectsBounds(t *testing.T) {
	p := NewProblem()
	x := p.AddParameter(5)
	p.SetUpperBound(x, 1)
	require.NoError(t, p.AddResidualBlock(affine(1, -3), x))

	s := Solve(context.Background(), DefaultOptions(), p)
	require.True(t, s.Usable(), s.String())
	assert.Equal(t, 1.0, p.Parameters()[x])
	assert.InDelta(t, 2.0, s.FinalCost, 1e-12)
	assert.Equal(t, GradientTolerance, s.Termination)
}

func TestConstantResidualCounts(t *testing.T) {
	p := NewProblem()
	x := p.AddParameter(0)
	require.NoError(t, p.AddResidualBlock(affine(1, -1), x))
	p.AddConstant(1)

	s := Solve(context.Background(), DefaultOptions(), p)
	require.True(t, s.Usable())
	assert.InDelta(t, 0.5, s.FinalCost, 1e-12)

	empty := NewProblem()
	empty.AddConstant(2)
	s = Solve(context.Background(), DefaultOptions(), empty)
	assert.True(t, s.Usable())
	assert.Equal(t, 2.0, s.FinalCost)
}

func TestSolveFailures(t *testing.T) {
	t.Run("initial point", func(t *testing.T) {
		p := NewProblem()
		x := p.AddParameter(0)
		require.NoError(t, p.AddResidualBlock(funcCost{n: 1, f: func([]float64, []float64) (float64, error) {
			return 0, errors.New("boom")
		}}, x))
		s := Solve(context.Background(), DefaultOptions(), p)
		assert.False(t, s.Usable())
		assert.Equal(t, Failure, s.Termination)
	})

	t.Run("canceled", func(t *testing.T) {
		p := NewProblem()
		x := p.AddParameter(0)
		require.NoError(t, p.AddResidualBlock(affine(1, -3), x))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s := Solve(ctx, DefaultOptions(), p)
		assert.Equal(t, Failure, s.Termination)
	})

	t.Run("block arity", func(t *testing.T) {
		p := NewProblem()
		x := p.AddParameter(0)
		assert.Error(t, p.AddResidualBlock(affine(1, 0), x, x))
		assert.Error(t, p.AddResidualBlock(affine(1, 0), 7))
	})
}
