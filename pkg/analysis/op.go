package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edp1096/circuitsolver/pkg/circuit"
	"github.com/edp1096/circuitsolver/pkg/expression"
	"github.com/edp1096/circuitsolver/pkg/nls"
)

var (
	ErrNoSolution = errors.New("no solution")

	errNoUsablePartition = errors.New("no usable partition")
	errRetriesExhausted  = errors.New("retry budget exhausted")
	errTooManyBases      = errors.New("too many discontinuities")
	errNothingToSolve    = errors.New("no unknowns left to adjust")
)

// PartitionReport is the outcome of solving one sign assignment.
type PartitionReport struct {
	Assignment expression.Assignment
	Summary    nls.Summary
	values     []float64
}

type Result struct {
	Attempts   int // Partition searches run, retries included
	Bases      int
	Partitions []PartitionReport // Reports of the accepted search
	Best       int               // Index of the committed partition
	Cost       float64
}

// OperatingPoint solves a circuit graph by searching the sign partitions of
// its discontinuities.
type OperatingPoint struct {
	BaseAnalysis
	Graph  *circuit.Graph
	result *Result
	rng    *rand.Rand
}

func NewOP(opts ...Option) *OperatingPoint {
	op := &OperatingPoint{BaseAnalysis: *NewBaseAnalysis(opts...)}
	op.rng = rand.New(rand.NewPCG(op.config.Seed, op.config.Seed^0x9e3779b97f4a7c15))
	return op
}

func (op *OperatingPoint) Setup(g *circuit.Graph) error {
	if g == nil {
		return fmt.Errorf("circuit not set")
	}
	if err := op.config.Validate(); err != nil {
		return fmt.Errorf("analysis config: %v", err)
	}
	op.Graph = g
	return nil
}

// problem is the assembled equation set of a graph.
type problem struct {
	residuals []expression.Expression
	conds     []*expression.Condition
	unknowns  []expression.UnknownID
	column    map[expression.UnknownID]int
}

func assemble(g *circuit.Graph) *problem {
	p := &problem{
		residuals: append(g.Residuals(), g.BasisResiduals()...),
		conds:     g.Discontinuities(),
		column:    make(map[expression.UnknownID]int),
	}
	for _, r := range p.residuals {
		for _, id := range r.Unknowns() {
			if _, ok := p.column[id]; !ok {
				p.column[id] = len(p.unknowns)
				p.unknowns = append(p.unknowns, id)
			}
		}
	}
	return p
}

func (op *OperatingPoint) Execute(ctx context.Context) error {
	if op.Graph == nil {
		return fmt.Errorf("circuit not set")
	}

	start := time.Now()
	p := assemble(op.Graph)
	if len(p.conds) > op.config.MaxBases {
		solveTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %w (%d > %d)", ErrNoSolution, errTooManyBases, len(p.conds), op.config.MaxBases)
	}

	res, err := op.search(ctx, p, op.config.MaxRetries, 1)
	solveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		solveTotal.WithLabelValues("failed").Inc()
		op.logger.Warn("operating point failed", "unknowns", len(p.unknowns), "bases", len(p.conds), "error", err)
		return err
	}
	solveTotal.WithLabelValues("accepted").Inc()
	solveAttempts.Observe(float64(res.Attempts))

	op.commit(p, res.Partitions[res.Best].values)
	op.result = res
	op.storeResults(op.Graph.Solution())

	op.logger.Info("operating point solved",
		"unknowns", len(p.unknowns),
		"bases", res.Bases,
		"attempts", res.Attempts,
		"cost", res.Cost,
		"duration", time.Since(start))
	return nil
}

// search solves every partition, picks the cheapest usable one and restarts
// from fresh initial guesses while retriesLeft allows.
func (op *OperatingPoint) search(ctx context.Context, p *problem, retriesLeft, attempt int) (*Result, error) {
	reports, err := op.solvePartitions(ctx, p)
	if err != nil {
		return nil, err
	}

	best := -1
	for i, r := range reports {
		if !r.Summary.Usable() {
			continue
		}
		if best < 0 || r.Summary.FinalCost < reports[best].Summary.FinalCost {
			best = i
		}
	}
	if best < 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoSolution, errNoUsablePartition)
	}

	s := reports[best].Summary
	if !op.accepts(p, s) {
		op.logger.Debug("partition search rejected",
			"attempt", attempt,
			"cost", s.FinalCost,
			"termination", s.Termination.String())
		if len(p.unknowns) == 0 {
			// fresh guesses cannot move a fully known circuit
			return nil, fmt.Errorf("%w: %w (cost %g)", ErrNoSolution, errNothingToSolve, s.FinalCost)
		}
		if retriesLeft <= 0 {
			return nil, fmt.Errorf("%w: %w after %d attempts (best cost %g)", ErrNoSolution, errRetriesExhausted, attempt, s.FinalCost)
		}
		return op.search(ctx, p, retriesLeft-1, attempt+1)
	}

	return &Result{
		Attempts:   attempt,
		Bases:      len(p.conds),
		Partitions: reports,
		Best:       best,
		Cost:       s.FinalCost,
	}, nil
}

func (op *OperatingPoint) accepts(p *problem, s nls.Summary) bool {
	if s.FinalCost <= op.config.AcceptCost {
		return true
	}
	if len(p.unknowns) == 0 {
		return s.FinalCost <= op.config.StationaryCost
	}
	return s.Termination == nls.GradientTolerance && s.FinalCost <= op.config.StationaryCost
}

// assignment returns the signs of partition i: bit j set puts basis j on
// [0, +inf).
func assignment(conds []*expression.Condition, i int) expression.Assignment {
	a := make(expression.Assignment, len(conds))
	for j, c := range conds {
		if (i>>j)&1 == 1 {
			a[c.Basis()] = expression.Positive
		} else {
			a[c.Basis()] = expression.Negative
		}
	}
	return a
}

func (op *OperatingPoint) solvePartitions(ctx context.Context, p *problem) ([]PartitionReport, error) {
	n := 1 << len(p.conds)
	reports := make([]PartitionReport, n)

	// Initial guesses come from one stream in partition order so a seed
	// reproduces the whole search.
	guesses := make([][]float64, n)
	for i := range guesses {
		guesses[i] = make([]float64, len(p.unknowns))
		for j := range guesses[i] {
			guesses[i][j] = op.rng.NormFloat64() * op.config.InitialSpread
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(op.config.Parallelism)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			assign := assignment(p.conds, i)
			summary, values, err := op.solvePartition(gctx, p, assign, guesses[i])
			if err != nil {
				return err
			}
			reports[i] = PartitionReport{Assignment: assign, Summary: summary, values: values}
			partitionsTotal.WithLabelValues(summary.Termination.String()).Inc()
			op.logger.Debug("partition solved",
				"partition", i,
				"cost", summary.FinalCost,
				"iterations", summary.Iterations,
				"termination", summary.Termination.String())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("partition search: %w", err)
	}
	return reports, nil
}

// solvePartition runs the least-squares solver on one assignment. It works on
// its own parameter vector and never writes to the arena.
func (op *OperatingPoint) solvePartition(ctx context.Context, p *problem, assign expression.Assignment, guess []float64) (nls.Summary, []float64, error) {
	prob := nls.NewProblem()
	for _, v := range guess {
		prob.AddParameter(v)
	}
	for _, c := range p.conds {
		col := p.column[c.Basis()]
		if assign[c.Basis()] == expression.Positive {
			prob.SetLowerBound(col, 0)
		} else {
			prob.SetUpperBound(col, 0)
		}
	}

	for _, r := range p.residuals {
		cost := expression.NewCost(r, assign)
		if cost.NumParameters() == 0 {
			v := r.EvaluateAt(nil, nil, assign)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nls.Summary{Termination: nls.Failure, FinalCost: math.Inf(1), Message: "constant residual is not finite"}, nil, nil
			}
			prob.AddConstant(v)
			continue
		}
		cols := make([]int, 0, cost.NumParameters())
		for _, id := range cost.Unknowns() {
			cols = append(cols, p.column[id])
		}
		if err := prob.AddResidualBlock(cost, cols...); err != nil {
			return nls.Summary{}, nil, fmt.Errorf("residual %v: %v", r, err)
		}
	}

	summary := nls.Solve(ctx, op.config.Solver, prob)
	return summary, append([]float64(nil), prob.Parameters()...), nil
}

// commit writes the winning values into the arena and freezes every unknown
// the equations reach.
func (op *OperatingPoint) commit(p *problem, values []float64) {
	arena := op.Graph.Arena()
	for i, id := range p.unknowns {
		arena.Store(id, values[i])
	}
	for _, r := range p.residuals {
		r.MarkKnown()
	}
}

func (op *OperatingPoint) Result() *Result {
	return op.result
}

func (op *OperatingPoint) storeResults(solution map[string]float64) {
	for name, value := range solution {
		op.results[name] = []float64{value}
	}
}
