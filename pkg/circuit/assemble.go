package circuit

import (
	"fmt"
	"sort"

	"github.com/edp1096/circuitsolver/pkg/expression"
)

// Residuals returns the equations of the circuit: Kirchhoff's current law for
// every vertex whose voltage is not known, then the constraint of every edge.
// The order is stable across calls.
func (g *Graph) Residuals() []expression.Expression {
	var residuals []expression.Expression
	for _, v := range g.Vertices() {
		if v.Known() {
			continue
		}
		kcl := expression.Const(0)
		for _, e := range g.Incident(v.ID) {
			i := e.Branch.Current()
			if e.From == v {
				kcl = kcl.Sub(i)
			}
			if e.To == v {
				kcl = kcl.Add(i)
			}
		}
		residuals = append(residuals, kcl)
	}
	for _, e := range g.Edges() {
		residuals = append(residuals, e.Branch.Constraint())
	}
	return residuals
}

// Discontinuities returns every condition reachable from the residuals whose
// basis is still unknown, ordered by basis id. Conditions of a solved graph
// have frozen bases and are left out.
func (g *Graph) Discontinuities() []*expression.Condition {
	var conds []*expression.Condition
	seen := make(map[*expression.Condition]struct{})
	for _, r := range g.Residuals() {
		for _, c := range r.Conditions() {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			if g.arena.Known(c.Basis()) {
				continue
			}
			conds = append(conds, c)
		}
	}
	sort.Slice(conds, func(i, j int) bool { return conds[i].Basis() < conds[j].Basis() })
	return conds
}

// BasisResiduals returns (lhs - rhs) - b for every discontinuity.
func (g *Graph) BasisResiduals() []expression.Expression {
	conds := g.Discontinuities()
	out := make([]expression.Expression, 0, len(conds))
	for _, c := range conds {
		out = append(out, c.Residual())
	}
	return out
}

// Unknowns returns every cell the equations still depend on, bases included.
func (g *Graph) Unknowns() []expression.UnknownID {
	set := make(map[expression.UnknownID]struct{})
	for _, r := range append(g.Residuals(), g.BasisResiduals()...) {
		for _, id := range r.Unknowns() {
			set[id] = struct{}{}
		}
	}
	ids := make([]expression.UnknownID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (g *Graph) Solved() bool {
	return len(g.Unknowns()) == 0
}

// Solution reports V(vertex) and I(edge) for the current cell values.
func (g *Graph) Solution() map[string]float64 {
	solution := make(map[string]float64)
	for _, v := range g.Vertices() {
		solution[fmt.Sprintf("V(%s)", v.Label())] = v.Voltage.Evaluate()
	}
	for _, e := range g.Edges() {
		solution[fmt.Sprintf("I(%s)", e.Label())] = e.Branch.Current().Evaluate()
	}
	return solution
}
