package device

import (
	"github.com/edp1096/circuitsolver/pkg/circuit"
	"github.com/edp1096/circuitsolver/pkg/expression"
)

// RealDiode follows the Shockley equation without the -1 term.
type RealDiode struct {
	BaseDevice
	Is float64 // Saturation current
	N  float64 // Emission coefficient
	Vt float64 // Thermal voltage
}

func NewRealDiode(is, n, vt float64) circuit.BranchFactory {
	return func(t circuit.Terminals) circuit.Branch {
		nvt := expression.Const(n * vt)
		return &RealDiode{
			BaseDevice: BaseDevice{current: expression.Const(is).Mul(expression.Exp(t.Drop().Div(nvt)))},
			Is:         is,
			N:          n,
			Vt:         vt,
		}
	}
}

func (d *RealDiode) Type() string { return TypeRealDiode }

func (d *RealDiode) Params() map[string]float64 {
	return map[string]float64{"is": d.Is, "n": d.N, "vt": d.Vt}
}

// IdealDiode conducts with a fixed forward drop Vd. An auxiliary unknown s
// is the current while conducting and the reverse margin while blocking:
//
//	s > 0:  vFrom - vTo = Vd,      i = s
//	s <= 0: vFrom - vTo = Vd + s,  i = 0
type IdealDiode struct {
	Vd         float64
	current    expression.Expression
	constraint expression.Expression
}

func NewIdealDiode(vd float64) circuit.BranchFactory {
	return func(t circuit.Terminals) circuit.Branch {
		s := t.Arena.Unknown()
		on := s.Gt(expression.Const(0))
		excess := t.Drop().Sub(expression.Const(vd))
		return &IdealDiode{
			Vd:         vd,
			current:    expression.Conditional(on, s, expression.Const(0)),
			constraint: expression.Conditional(on, excess, excess.Sub(s)),
		}
	}
}

func (d *IdealDiode) Type() string                      { return TypeIdealDiode }
func (d *IdealDiode) Current() expression.Expression    { return d.current }
func (d *IdealDiode) Constraint() expression.Expression { return d.constraint }

func (d *IdealDiode) Params() map[string]float64 {
	return map[string]float64{"vd": d.Vd}
}

// ZenerDiode is the linear breakdown model: a source of vzt - rzt*izt behind
// the dynamic resistance rzt.
type ZenerDiode struct {
	BaseDevice
	Vzt float64
	Rzt float64
	Izt float64
}

func NewZenerDiode(vzt, rzt, izt float64) circuit.BranchFactory {
	return func(t circuit.Terminals) circuit.Branch {
		knee := expression.Const(vzt - rzt*izt)
		return &ZenerDiode{
			BaseDevice: BaseDevice{current: t.Drop().Add(knee).Div(expression.Const(rzt))},
			Vzt:        vzt,
			Rzt:        rzt,
			Izt:        izt,
		}
	}
}

func (z *ZenerDiode) Type() string { return TypeZenerDiode }

func (z *ZenerDiode) Params() map[string]float64 {
	return map[string]float64{"vzt": z.Vzt, "rzt": z.Rzt, "izt": z.Izt}
}
