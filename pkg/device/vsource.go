package device

import (
	"github.com/edp1096/circuitsolver/pkg/circuit"
	"github.com/edp1096/circuitsolver/pkg/expression"
)

// VoltageSource raises the voltage by Value from its From to its To
// terminal. The current through it is an unknown of its own.
type VoltageSource struct {
	Value      float64
	current    expression.Expression
	constraint expression.Expression
}

func NewVoltageSource(v float64) circuit.BranchFactory {
	return func(t circuit.Terminals) circuit.Branch {
		return &VoltageSource{
			Value:      v,
			current:    t.Arena.Unknown(),
			constraint: t.From.Add(expression.Const(v)).Sub(t.To),
		}
	}
}

func (v *VoltageSource) Type() string                      { return TypeVoltageSource }
func (v *VoltageSource) Current() expression.Expression    { return v.current }
func (v *VoltageSource) Constraint() expression.Expression { return v.constraint }

func (v *VoltageSource) Params() map[string]float64 {
	return map[string]float64{"v": v.Value}
}
