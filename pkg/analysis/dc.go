package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/edp1096/circuitsolver/pkg/circuit"
)

// Template builds a fresh graph with one edge parameter overridden. Solving
// freezes a graph, so every sweep point needs its own instance.
type Template interface {
	Instantiate(edge, param string, value float64) (*circuit.Graph, error)
}

var ErrSweepTooLarge = errors.New("sweep too large")

type DCSweep struct {
	BaseAnalysis
	template  Template
	edgeName  string
	param     string
	sweepVals []float64
	opts      []Option
}

func NewDCSweep(edge, param string, start, stop, step float64, opts ...Option) (*DCSweep, error) {
	if step == 0 || math.IsNaN(step) {
		return nil, fmt.Errorf("sweep step must be non-zero")
	}
	span := (stop - start) / step
	if math.IsNaN(span) || math.IsInf(span, 0) {
		return nil, fmt.Errorf("sweep from %g to %g by %g is not finite", start, stop, step)
	}
	if span < 0 {
		return nil, fmt.Errorf("sweep step %g does not move from %g to %g", step, start, stop)
	}

	dc := &DCSweep{
		BaseAnalysis: *NewBaseAnalysis(opts...),
		edgeName:     edge,
		param:        param,
		opts:         opts,
	}

	limit := dc.config.MaxSweepPoints
	if span+1 > float64(limit) {
		return nil, fmt.Errorf("%w: sweep from %g to %g by %g exceeds %d points", ErrSweepTooLarge, start, stop, step, limit)
	}
	n := int(math.Floor(span+1e-9)) + 1
	dc.sweepVals = make([]float64, 0, n)
	for i := 0; i < n; i++ {
		dc.sweepVals = append(dc.sweepVals, start+float64(i)*step)
	}
	return dc, nil
}

func (dc *DCSweep) Setup(t Template) error {
	if t == nil {
		return fmt.Errorf("circuit not set")
	}
	if err := dc.config.Validate(); err != nil {
		return fmt.Errorf("analysis config: %v", err)
	}
	if _, err := t.Instantiate(dc.edgeName, dc.param, dc.sweepVals[0]); err != nil {
		return fmt.Errorf("source %s not found: %w", dc.edgeName, err)
	}
	dc.template = t
	return nil
}

func (dc *DCSweep) SweepValues() []float64 {
	return dc.sweepVals
}

func (dc *DCSweep) Execute(ctx context.Context) error {
	if dc.template == nil {
		return fmt.Errorf("circuit not set")
	}

	for i, val := range dc.sweepVals {
		g, err := dc.template.Instantiate(dc.edgeName, dc.param, val)
		if err != nil {
			return fmt.Errorf("building circuit at %s=%g: %w", dc.edgeName, val, err)
		}

		cfg := dc.config
		cfg.Seed += uint64(i)
		opts := append(append([]Option(nil), dc.opts...), WithConfig(cfg), WithLogger(dc.logger))
		op := NewOP(opts...)
		if err := op.Setup(g); err != nil {
			return err
		}
		if err := op.Execute(ctx); err != nil {
			return fmt.Errorf("convergence error at %s=%g: %w", dc.edgeName, val, err)
		}

		dc.StoreResult(val, g.Solution())
	}

	dc.logger.Info("dc sweep finished", "edge", dc.edgeName, "param", dc.param, "points", len(dc.sweepVals))
	return nil
}
