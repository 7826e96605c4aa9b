package device

import (
	"github.com/edp1096/circuitsolver/pkg/circuit"
	"github.com/edp1096/circuitsolver/pkg/expression"
)

type Resistor struct {
	BaseDevice
	Value float64
}

// NewResistor conducts (vFrom - vTo) / r.
func NewResistor(r float64) circuit.BranchFactory {
	return func(t circuit.Terminals) circuit.Branch {
		return &Resistor{
			BaseDevice: BaseDevice{current: t.Drop().Div(expression.Const(r))},
			Value:      r,
		}
	}
}

func (r *Resistor) Type() string { return TypeResistor }

func (r *Resistor) Params() map[string]float64 {
	return map[string]float64{"r": r.Value}
}
