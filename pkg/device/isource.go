package device

import (
	"github.com/edp1096/circuitsolver/pkg/circuit"
	"github.com/edp1096/circuitsolver/pkg/expression"
)

type CurrentSource struct {
	BaseDevice
	Value float64
}

// NewCurrentSource drives a fixed current from its From to its To terminal.
func NewCurrentSource(i float64) circuit.BranchFactory {
	return func(t circuit.Terminals) circuit.Branch {
		return &CurrentSource{
			BaseDevice: BaseDevice{current: expression.Const(i)},
			Value:      i,
		}
	}
}

func (i *CurrentSource) Type() string { return TypeCurrentSource }

func (i *CurrentSource) Params() map[string]float64 {
	return map[string]float64{"i": i.Value}
}
