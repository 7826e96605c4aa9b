package device

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/circuitsolver/internal/consts"
	"github.com/edp1096/circuitsolver/pkg/circuit"
	"github.com/edp1096/circuitsolver/pkg/expression"
)

// across builds a branch between two known voltages.
func across(t *testing.T, factory circuit.BranchFactory, vf, vt float64) (circuit.Branch, *expression.Arena) {
	t.Helper()
	arena := expression.NewArena()
	b := factory(circuit.Terminals{Arena: arena, From: expression.Const(vf), To: expression.Const(vt)})
	require.NotNil(t, b)
	return b, arena
}

func TestTwoTerminalCurrents(t *testing.T) {
	tests := []struct {
		name    string
		factory circuit.BranchFactory
		vf, vt  float64
		want    float64
	}{
		{"resistor", NewResistor(2e3), 5, 1, 2e-3},
		{"current source", NewCurrentSource(1.5), 0, 10, 1.5},
		{"real diode", NewRealDiode(50e-12, 1.5, 25e-3), 0.6, 0, 50e-12 * math.Exp(0.6/(1.5*25e-3))},
		{"zener", NewZenerDiode(5.1, 7, 49e-3), 0, 5.5, (-5.5 + 5.1 - 7*49e-3) / 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := across(t, tt.factory, tt.vf, tt.vt)
			assert.True(t, b.Current().IsConstant())
			assert.InDelta(t, tt.want, b.Current().Evaluate(), math.Abs(tt.want)*1e-12)
			assert.True(t, b.Constraint().Equal(expression.Const(0)))
		})
	}
}

func TestVoltageSource(t *testing.T) {
	b, arena := across(t, NewVoltageSource(5), 0, 5)
	assert.True(t, b.Current().IsUnknown())
	assert.Equal(t, 1, arena.Len())
	assert.True(t, b.Constraint().IsConstant())
	assert.Equal(t, 0.0, b.Constraint().Evaluate())
	assert.Equal(t, map[string]float64{"v": 5}, b.Params())
}

func TestIdealDiodeBranches(t *testing.T) {
	arena := expression.NewArena()
	vf, vt := arena.Unknown(), arena.Unknown()
	b := NewIdealDiode(0.7)(circuit.Terminals{Arena: arena, From: vf, To: vt})

	conds := b.Current().Conditions()
	require.Len(t, conds, 1)
	assert.Equal(t, conds, b.Constraint().Conditions(), "current and constraint share one basis")

	s := conds[0].Lhs()
	require.True(t, s.IsUnknown())
	basis := conds[0].Basis()

	ids := b.Constraint().Unknowns()
	index := make(map[expression.UnknownID]int)
	for i, id := range ids {
		index[id] = i
	}
	at := func(v1, v2, sv float64) []float64 {
		p := make([]float64, len(ids))
		p[index[vf.Root().ID]] = v1
		p[index[vt.Root().ID]] = v2
		p[index[s.Root().ID]] = sv
		return p
	}

	t.Run("conducting", func(t *testing.T) {
		on := expression.Assignment{basis: expression.Positive}
		p := at(8.6, 7.9, 3e-4)
		assert.InDelta(t, 0, b.Constraint().EvaluateAt(p, index, on), 1e-12)
		assert.InDelta(t, 3e-4, b.Current().EvaluateAt(p, index, on), 1e-15)
	})

	t.Run("blocking", func(t *testing.T) {
		off := expression.Assignment{basis: expression.Negative}
		p := at(7.5, 9, -2.2)
		assert.InDelta(t, 0, b.Constraint().EvaluateAt(p, index, off), 1e-12)
		assert.Equal(t, 0.0, b.Current().EvaluateAt(p, index, off))
	})
}

func TestLookup(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		f, err := Lookup(TypeRealDiode, nil)
		require.NoError(t, err)
		b, _ := across(t, f, 0, 0)
		assert.InDelta(t, consts.ThermalVoltage(consts.TNOM), b.Params()["vt"], 1e-15)
		assert.Equal(t, 1e-14, b.Params()["is"])
	})

	t.Run("override", func(t *testing.T) {
		f, err := Lookup(TypeIdealDiode, map[string]float64{"vd": 0.3})
		require.NoError(t, err)
		b, _ := across(t, f, 0, 0)
		assert.Equal(t, TypeIdealDiode, b.Type())
		assert.Equal(t, 0.3, b.Params()["vd"])
	})

	t.Run("errors", func(t *testing.T) {
		_, err := Lookup("transistor", nil)
		require.ErrorIs(t, err, ErrUnknownType)
		_, err = Lookup(TypeResistor, map[string]float64{"ohms": 1})
		require.Error(t, err)
		_, err = Lookup(TypeResistor, map[string]float64{"r": 0})
		require.Error(t, err)
	})

	assert.Len(t, Types(), 6)
	for _, typ := range Types() {
		f, err := Lookup(typ, Defaults(typ))
		require.NoError(t, err, typ)
		b, _ := across(t, f, 1, 0)
		assert.Equal(t, typ, b.Type())
		assert.Equal(t, Defaults(typ), b.Params())
	}
}
