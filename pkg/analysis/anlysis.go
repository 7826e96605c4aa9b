package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"

	"github.com/edp1096/circuitsolver/pkg/nls"
)

type Analysis interface {
	Execute(ctx context.Context) error
	GetResults() map[string][]float64
}

// Config controls the partition search.
type Config struct {
	MaxRetries     int     // Restarts allowed when the best partition is not accepted
	MaxBases       int     // Largest discontinuity count searched (2^MaxBases partitions)
	AcceptCost     float64 // Cost at or below which a partition is a solution
	StationaryCost float64 // Cost accepted when the solver stopped on a vanishing gradient
	InitialSpread  float64 // Standard deviation of the random initial guess
	Parallelism    int     // Partitions solved at once
	MaxSweepPoints int     // Largest DC sweep accepted
	Seed           uint64
	Solver         nls.Options
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:     100,
		MaxBases:       12,
		AcceptCost:     1e-15,
		StationaryCost: 1e-12,
		InitialSpread:  2.0,
		Parallelism:    runtime.GOMAXPROCS(0),
		MaxSweepPoints: 10000,
		Seed:           1,
		Solver:         nls.DefaultOptions(),
	}
}

func (c Config) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return fmt.Errorf("max retries must not be negative: %d", c.MaxRetries)
	case c.MaxBases < 0 || c.MaxBases > 30:
		return fmt.Errorf("max bases out of range: %d", c.MaxBases)
	case c.AcceptCost < 0 || c.StationaryCost < 0:
		return fmt.Errorf("cost thresholds must not be negative")
	case c.InitialSpread <= 0:
		return fmt.Errorf("initial spread must be positive: %g", c.InitialSpread)
	case c.Parallelism < 1:
		return fmt.Errorf("parallelism must be at least 1: %d", c.Parallelism)
	case c.MaxSweepPoints < 1:
		return fmt.Errorf("max sweep points must be at least 1: %d", c.MaxSweepPoints)
	case c.Solver.MaxIterations < 1:
		return fmt.Errorf("solver max iterations must be at least 1: %d", c.Solver.MaxIterations)
	}
	return nil
}

type Option func(*BaseAnalysis)

func WithConfig(c Config) Option {
	return func(a *BaseAnalysis) { a.config = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *BaseAnalysis) { a.logger = l }
}

type BaseAnalysis struct {
	results map[string][]float64 // key: variable name, value: result by sweep point
	config  Config
	logger  *slog.Logger
}

func NewBaseAnalysis(opts ...Option) *BaseAnalysis {
	ba := &BaseAnalysis{
		results: make(map[string][]float64),
		config:  DefaultConfig(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(ba)
	}
	if ba.config.Solver.Logger == nil {
		ba.config.Solver.Logger = ba.logger
	}
	return ba
}

func (a *BaseAnalysis) Config() Config { return a.config }

func (a *BaseAnalysis) StoreResult(sweepVal float64, solution map[string]float64) {
	a.results["SWEEP1"] = append(a.results["SWEEP1"], sweepVal)
	for name, value := range solution {
		a.results[name] = append(a.results[name], value)
	}
}

func (a *BaseAnalysis) GetResults() map[string][]float64 {
	return a.results
}

// ResultNames returns the stored series names in order.
func (a *BaseAnalysis) ResultNames() []string {
	names := make([]string, 0, len(a.results))
	for name := range a.results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
