package device

import (
	"errors"
	"fmt"
	"sort"

	"github.com/edp1096/circuitsolver/internal/consts"
	"github.com/edp1096/circuitsolver/pkg/circuit"
	"github.com/edp1096/circuitsolver/pkg/expression"
)

const (
	TypeResistor      = "resistor"
	TypeVoltageSource = "voltage_source"
	TypeCurrentSource = "current_source"
	TypeRealDiode     = "real_diode"
	TypeIdealDiode    = "ideal_diode"
	TypeZenerDiode    = "zener_diode"
)

var ErrUnknownType = errors.New("unknown device type")

// BaseDevice carries the current of a two-terminal element with no extra
// constraint.
type BaseDevice struct {
	current expression.Expression
}

func (d *BaseDevice) Current() expression.Expression    { return d.current }
func (d *BaseDevice) Constraint() expression.Expression { return expression.Const(0) }

// ModelParam is a named parameter set, the body of a .model card.
type ModelParam struct {
	Type   string
	Name   string
	Params map[string]float64
}

type builder struct {
	defaults map[string]float64
	build    func(p map[string]float64) (circuit.BranchFactory, error)
}

var registry = map[string]builder{
	TypeResistor: {
		defaults: map[string]float64{"r": 1e3},
		build: func(p map[string]float64) (circuit.BranchFactory, error) {
			if p["r"] == 0 {
				return nil, fmt.Errorf("resistor: zero resistance")
			}
			return NewResistor(p["r"]), nil
		},
	},
	TypeVoltageSource: {
		defaults: map[string]float64{"v": 0},
		build: func(p map[string]float64) (circuit.BranchFactory, error) {
			return NewVoltageSource(p["v"]), nil
		},
	},
	TypeCurrentSource: {
		defaults: map[string]float64{"i": 0},
		build: func(p map[string]float64) (circuit.BranchFactory, error) {
			return NewCurrentSource(p["i"]), nil
		},
	},
	TypeRealDiode: {
		defaults: map[string]float64{"is": 1e-14, "n": 1.0, "vt": consts.ThermalVoltage(consts.TNOM)},
		build: func(p map[string]float64) (circuit.BranchFactory, error) {
			if p["n"]*p["vt"] == 0 {
				return nil, fmt.Errorf("diode: zero n*vt")
			}
			return NewRealDiode(p["is"], p["n"], p["vt"]), nil
		},
	},
	TypeIdealDiode: {
		defaults: map[string]float64{"vd": 0.7},
		build: func(p map[string]float64) (circuit.BranchFactory, error) {
			return NewIdealDiode(p["vd"]), nil
		},
	},
	TypeZenerDiode: {
		defaults: map[string]float64{"vzt": 5.1, "rzt": 7, "izt": 49e-3},
		build: func(p map[string]float64) (circuit.BranchFactory, error) {
			if p["rzt"] == 0 {
				return nil, fmt.Errorf("zener: zero rzt")
			}
			return NewZenerDiode(p["vzt"], p["rzt"], p["izt"]), nil
		},
	},
}

// Lookup builds the factory of a device type. Missing parameters take the
// type's defaults; unknown parameter names are rejected.
func Lookup(typ string, params map[string]float64) (circuit.BranchFactory, error) {
	b, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("%q: %w", typ, ErrUnknownType)
	}
	merged := make(map[string]float64, len(b.defaults))
	for k, v := range b.defaults {
		merged[k] = v
	}
	for k, v := range params {
		if _, known := b.defaults[k]; !known {
			return nil, fmt.Errorf("%s: unknown parameter %q", typ, k)
		}
		merged[k] = v
	}
	return b.build(merged)
}

// Types lists the registered device types.
func Types() []string {
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Defaults returns a copy of the default parameters of a type.
func Defaults(typ string) map[string]float64 {
	b, ok := registry[typ]
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(b.defaults))
	for k, v := range b.defaults {
		out[k] = v
	}
	return out
}
