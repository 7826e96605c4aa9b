package expression

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantFolding(t *testing.T) {
	tests := []struct {
		name string
		got  Expression
		want float64
	}{
		{"add", Const(2).Add(Const(3)), 5},
		{"sub", Const(2).Sub(Const(3)), -1},
		{"mul", Const(2).Mul(Const(3)), 6},
		{"div", Const(3).Div(Const(2)), 1.5},
		{"neg", Const(2).Neg(), -2},
		{"exp", Exp(Const(0)), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.got.IsConstant())
			assert.Equal(t, tt.want, tt.got.Evaluate())
			assert.Equal(t, KindConstant, tt.got.Root().Kind)
		})
	}
}

func TestIdentityRules(t *testing.T) {
	a := NewArena()
	x := a.Unknown()

	assert.True(t, x.Add(Const(0)).Equal(x))
	assert.True(t, Const(0).Add(x).Equal(x))
	assert.True(t, x.Sub(Const(0)).Equal(x))
	assert.True(t, x.Mul(Const(1)).Equal(x))
	assert.True(t, Const(1).Mul(x).Equal(x))
	assert.True(t, x.Div(Const(1)).Equal(x))
	assert.Equal(t, []UnknownID{0}, x.Add(Const(0)).Unknowns())

	assert.True(t, x.Mul(Const(0)).Equal(Const(0)))
	assert.True(t, Const(0).Mul(x).Equal(Const(0)))
	assert.True(t, x.Sub(x).Equal(Const(0)))
	assert.True(t, x.Div(x).Equal(Const(1)))

	neg := Const(0).Sub(x)
	assert.Equal(t, KindUnary, neg.Root().Kind)
	assert.Equal(t, OpNeg, neg.Root().Unary)
}

func TestAddNegationBecomesSubtraction(t *testing.T) {
	a := NewArena()
	x, y := a.Unknown(), a.Unknown()

	e := x.Add(y.Neg())
	require.Equal(t, KindBinary, e.Root().Kind)
	assert.Equal(t, OpSub, e.Root().Binary)

	e = x.Neg().Add(y)
	require.Equal(t, KindBinary, e.Root().Kind)
	assert.Equal(t, OpSub, e.Root().Binary)
	assert.True(t, e.Root().Lhs == y.Root())
}

func TestKnownUnknownActsAsConstant(t *testing.T) {
	a := NewArena()
	x := a.Unknown()
	require.NoError(t, x.Assign(4))

	assert.True(t, x.IsConstant())
	assert.True(t, x.Equal(Const(4)))
	sum := x.Add(Const(1))
	assert.True(t, sum.IsConstant())
	assert.Equal(t, 5.0, sum.Evaluate())
	assert.True(t, Const(0).Sub(x).Equal(Const(-4)))
}

func TestEqualityIsIdentityNotStructure(t *testing.T) {
	a := NewArena()
	x := a.Unknown()

	s1 := x.Add(Const(1))
	s2 := x.Add(Const(1))
	assert.False(t, s1.Equal(s2))
	assert.True(t, s1.Equal(s1))
	assert.False(t, x.Equal(Const(0)))
}

func TestKnownComposite(t *testing.T) {
	a := NewArena()
	x := a.Unknown()
	y := a.Unknown()

	e := x.Sub(y).Div(Const(2))
	s := x.Sub(y).Div(Const(2))
	assert.False(t, e.Known())
	assert.False(t, e.IsConstant())
	assert.False(t, e.Equal(s))

	a.Store(x.Root().ID, 5)
	a.Store(y.Root().ID, 1)
	a.Freeze(x.Root().ID)
	a.Freeze(y.Root().ID)
	assert.True(t, e.Known())
	assert.False(t, e.IsConstant(), "only leaves are constant")
	assert.Equal(t, 2.0, e.Evaluate())
	assert.True(t, e.Equal(s), "known trees compare by value")
	assert.True(t, e.Equal(Const(2)))
	assert.False(t, e.Equal(Const(3)))
	assert.True(t, Const(7).Known())
}

func TestUnknownsCountsDistinctCells(t *testing.T) {
	a := NewArena()
	x := a.Unknown()
	y := a.Unknown()

	e := x.Mul(Const(3)).Add(Const(2))
	assert.Equal(t, 1, e.NumUnknowns())

	e = x.Mul(x).Add(x.Div(y)).Sub(Exp(x))
	assert.Equal(t, []UnknownID{x.Root().ID, y.Root().ID}, e.Unknowns())

	require.NoError(t, y.Assign(2))
	assert.Equal(t, []UnknownID{x.Root().ID}, e.Unknowns())
}

func TestEvaluateAt(t *testing.T) {
	a := NewArena()
	x := a.Unknown()
	y := a.Unknown()
	e := x.Mul(y).Add(Exp(x.Neg()))

	ids := e.Unknowns()
	index := map[UnknownID]int{ids[0]: 1, ids[1]: 0}
	got := e.EvaluateAt([]float64{3, 2}, index, nil)
	assert.InDelta(t, 6+math.Exp(-2), got, 1e-12)
}

func TestAssignRejectsCompositeExpression(t *testing.T) {
	a := NewArena()
	x := a.Unknown()
	err := x.Add(Const(1)).Assign(3)
	require.ErrorIs(t, err, ErrNotAssignable)
	assert.False(t, a.Known(x.Root().ID))
}

func TestMarkKnownFreezesReachableCells(t *testing.T) {
	a := NewArena()
	x, y, z := a.Unknown(), a.Unknown(), a.Unknown()
	e := x.Add(y)

	a.Store(x.Root().ID, 1)
	a.Store(y.Root().ID, 2)
	e.MarkKnown()

	assert.True(t, a.Known(x.Root().ID))
	assert.True(t, a.Known(y.Root().ID))
	assert.False(t, a.Known(z.Root().ID))
	assert.True(t, e.IsConstant() || e.NumUnknowns() == 0)
	assert.Equal(t, 3.0, e.Evaluate())

	a.Store(x.Root().ID, 10)
	assert.Equal(t, 1.0, a.Value(x.Root().ID))
}

func TestMixingArenasPanics(t *testing.T) {
	x := NewArena().Unknown()
	y := NewArena().Unknown()
	assert.Panics(t, func() { x.Add(y) })
	assert.NotPanics(t, func() { x.Add(Const(1)) })
}

func TestString(t *testing.T) {
	a := NewArena()
	x := a.Unknown()
	assert.Equal(t, "((x0 * 3) + 2)", x.Mul(Const(3)).Add(Const(2)).String())
	assert.Equal(t, "exp(-x0)", Exp(x.Neg()).String())
	assert.Equal(t, "0", Expression{}.String())
}
