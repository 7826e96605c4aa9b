package circuit

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/circuitsolver/pkg/expression"
)

type conductance struct {
	g    float64
	drop expression.Expression
}

func (c conductance) Type() string                      { return "G" }
func (c conductance) Current() expression.Expression    { return c.drop.Mul(expression.Const(c.g)) }
func (c conductance) Constraint() expression.Expression { return expression.Const(0) }
func (c conductance) Params() map[string]float64        { return map[string]float64{"g": c.g} }

func conductor(g float64) BranchFactory {
	return func(t Terminals) Branch { return conductance{g: g, drop: t.Drop()} }
}

type source struct {
	current    expression.Expression
	constraint expression.Expression
}

func (s source) Type() string                      { return "V" }
func (s source) Current() expression.Expression    { return s.current }
func (s source) Constraint() expression.Expression { return s.constraint }
func (s source) Params() map[string]float64        { return nil }

func battery(v float64) BranchFactory {
	return func(t Terminals) Branch {
		return source{current: t.Arena.Unknown(), constraint: t.From.Add(expression.Const(v)).Sub(t.To)}
	}
}

func TestAddEdgeRequiresMembers(t *testing.T) {
	g := NewGraph()
	a := g.AddVertex("a")
	stranger := NewGraph().AddVertex("x")

	_, err := g.AddEdge("bad", a, stranger, conductor(1))
	require.ErrorIs(t, err, ErrInvalidGraph)
	assert.Equal(t, 0, g.NumEdges())
	assert.Empty(t, g.Incident(a.ID))

	_, err = g.AddEdge("nil", nil, a, conductor(1))
	require.ErrorIs(t, err, ErrInvalidGraph)
}

func TestDuplicateIDs(t *testing.T) {
	g := NewGraph()
	id := uuid.New()
	_, err := g.AddVertexWithID(id, "a")
	require.NoError(t, err)
	_, err = g.AddPinnedVertexWithID(id, "b", 0)
	require.ErrorIs(t, err, ErrInvalidGraph)

	a, _ := g.Vertex(id)
	b := g.AddPinnedVertex("gnd", 0)
	eid := uuid.New()
	_, err = g.AddEdgeWithID(eid, "r1", a, b, conductor(1))
	require.NoError(t, err)
	_, err = g.AddEdgeWithID(eid, "r2", a, b, conductor(1))
	require.ErrorIs(t, err, ErrInvalidGraph)
	assert.Len(t, g.Incident(a.ID), 1)
}

func TestResidualsFollowKCLSigns(t *testing.T) {
	g := NewGraph()
	gnd := g.AddPinnedVertex("gnd", 0)
	v1 := g.AddVertex("v1")
	v2 := g.AddVertex("v2")
	src, err := g.AddEdge("vs", gnd, v1, battery(5))
	require.NoError(t, err)
	_, err = g.AddEdge("r1", v1, v2, conductor(0.5))
	require.NoError(t, err)
	_, err = g.AddEdge("r2", v2, gnd, conductor(1.0/3))
	require.NoError(t, err)

	residuals := g.Residuals()
	require.Len(t, residuals, 2+3)
	assert.Empty(t, g.Discontinuities())

	// the divider's solution must zero every residual
	arena := g.Arena()
	arena.Store(v1.Voltage.Root().ID, 5)
	arena.Store(v2.Voltage.Root().ID, 3)
	arena.Store(src.Branch.Current().Root().ID, 1)
	for _, r := range residuals {
		assert.InDelta(t, 0, r.Evaluate(), 1e-12, r.String())
	}

	unknowns := g.Unknowns()
	assert.Len(t, unknowns, 3)
	assert.False(t, g.Solved())
	for _, r := range residuals {
		r.MarkKnown()
	}
	assert.True(t, g.Solved())

	solution := g.Solution()
	assert.InDelta(t, 1.0, solution["I(r1)"], 1e-12)
	assert.InDelta(t, 1.0, solution["I(r2)"], 1e-12)
	assert.InDelta(t, 3.0, solution["V(v2)"], 1e-12)
}

func TestResidualOrderIsStable(t *testing.T) {
	g := NewGraph()
	gnd := g.AddPinnedVertex("gnd", 0)
	for i := 0; i < 5; i++ {
		v := g.AddVertex("")
		_, err := g.AddEdge("", v, gnd, conductor(1))
		require.NoError(t, err)
	}
	first := g.Residuals()
	second := g.Residuals()
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Unknowns(), second[i].Unknowns())
	}
}

func TestEqual(t *testing.T) {
	build := func(ids [3]uuid.UUID, pinned float64) *Graph {
		g := NewGraph()
		a, _ := g.AddPinnedVertexWithID(ids[0], "gnd", pinned)
		b, _ := g.AddVertexWithID(ids[1], "v1")
		_, err := g.AddEdgeWithID(ids[2], "r", a, b, conductor(1))
		require.NoError(t, err)
		return g
	}
	ids := [3]uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	assert.True(t, build(ids, 0).Equal(build(ids, 0)))
	assert.False(t, build(ids, 0).Equal(build(ids, 1)))

	other := ids
	other[2] = uuid.New()
	assert.False(t, build(ids, 0).Equal(build(other, 0)))

	g := build(ids, 0)
	h := build(ids, 0)
	_, err := h.AddEdge("extra", mustVertex(t, h, ids[0]), mustVertex(t, h, ids[1]), battery(1))
	require.NoError(t, err)
	assert.False(t, g.Equal(h))
}

func mustVertex(t *testing.T, g *Graph, id uuid.UUID) *Vertex {
	t.Helper()
	v, ok := g.Vertex(id)
	require.True(t, ok)
	return v
}
