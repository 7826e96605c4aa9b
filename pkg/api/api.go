// Package api is the byte oriented entry point for hosts that embed the
// solver: a serialised circuit in, the solved circuit and a status code out.
package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/edp1096/circuitsolver/pkg/analysis"
	"github.com/edp1096/circuitsolver/pkg/circuit"
	"github.com/edp1096/circuitsolver/pkg/netlist"
)

type Code int

const (
	OK               Code = 0
	CodeDecode       Code = 1
	CodeInvalidGraph Code = 2
	CodeNoSolution   Code = 3
	CodeEncode       Code = 4
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case CodeDecode:
		return "decode error"
	case CodeInvalidGraph:
		return "invalid graph"
	case CodeNoSolution:
		return "no solution"
	case CodeEncode:
		return "encode error"
	}
	return "unknown"
}

// Outcome is everything a solve produced. Output, Document and Result are
// only set when Code is OK.
type Outcome struct {
	Output   []byte
	Document *netlist.Document
	Result   *analysis.Result
	Code     Code
	Err      error
}

// Solve decodes a circuit, finds its operating point and returns the solved
// circuit in the same format. The output is nil unless the code is OK.
func Solve(ctx context.Context, buf []byte, format netlist.Format, opts ...analysis.Option) ([]byte, Code) {
	o := Run(ctx, buf, format, opts...)
	return o.Output, o.Code
}

func fail(code Code, err error) Outcome {
	return Outcome{Code: code, Err: err}
}

// Run is Solve with the details kept.
func Run(ctx context.Context, buf []byte, format netlist.Format, opts ...analysis.Option) Outcome {
	doc, err := netlist.Decode(format, buf)
	if err != nil {
		return fail(CodeDecode, err)
	}
	g, err := doc.Build()
	if err != nil {
		if errors.Is(err, circuit.ErrInvalidGraph) {
			return fail(CodeInvalidGraph, err)
		}
		return fail(CodeDecode, err)
	}

	op := analysis.NewOP(opts...)
	if err := op.Setup(g); err != nil {
		return fail(CodeNoSolution, err)
	}
	if err := op.Execute(ctx); err != nil {
		return fail(CodeNoSolution, err)
	}

	solved := netlist.FromGraph(g)
	solved.Analysis = doc.Analysis
	out, err := netlist.Encode(format, solved)
	if err != nil {
		return fail(CodeEncode, err)
	}
	return Outcome{Output: out, Document: solved, Result: op.Result(), Code: OK}
}

// SweepResult holds one series per solved quantity, keyed like the
// analysis results ("SWEEP1", "V(node)", "I(edge)").
type SweepResult struct {
	Edge   string               `json:"edge"`
	Param  string               `json:"param"`
	Names  []string             `json:"names"`
	Series map[string][]float64 `json:"series"`
}

// Sweep runs the DC sweep described by the document's analysis card.
func Sweep(ctx context.Context, doc *netlist.Document, opts ...analysis.Option) (*SweepResult, error) {
	a := doc.Analysis
	if a == nil || a.Type != netlist.AnalysisDC {
		return nil, fmt.Errorf("document has no dc analysis")
	}

	dc, err := analysis.NewDCSweep(a.Edge, a.Param, a.Start, a.Stop, a.Step, opts...)
	if err != nil {
		return nil, err
	}
	if err := dc.Setup(doc); err != nil {
		return nil, err
	}
	if err := dc.Execute(ctx); err != nil {
		return nil, err
	}
	return &SweepResult{
		Edge:   a.Edge,
		Param:  a.Param,
		Names:  dc.ResultNames(),
		Series: dc.GetResults(),
	}, nil
}
