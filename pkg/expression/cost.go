package expression

import (
	"errors"
	"fmt"
	"math"
)

var ErrNonFinite = errors.New("non-finite residual")

// Dual is a forward-mode dual number: a value and its partial derivatives
// with respect to every parameter of a Cost. A nil D is a zero gradient.
type Dual struct {
	V float64
	D []float64
}

func (a Dual) scaled(k float64, n int) []float64 {
	if a.D == nil || k == 0 {
		return nil
	}
	out := make([]float64, n)
	for i, d := range a.D {
		out[i] = k * d
	}
	return out
}

// combine returns ka*a.D + kb*b.D.
func combine(a Dual, ka float64, b Dual, kb float64, n int) []float64 {
	if a.D == nil {
		return b.scaled(kb, n)
	}
	if b.D == nil {
		return a.scaled(ka, n)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = ka*a.D[i] + kb*b.D[i]
	}
	return out
}

// Cost adapts one residual expression to a least-squares solver. It binds the
// residual's unknowns to a contiguous parameter vector and fixes the branch
// of every conditional through the partition assignment.
type Cost struct {
	expr   Expression
	ids    []UnknownID
	index  map[UnknownID]int
	assign Assignment
}

func NewCost(e Expression, assign Assignment) *Cost {
	ids := e.Unknowns()
	index := make(map[UnknownID]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	return &Cost{expr: e, ids: ids, index: index, assign: assign}
}

func (c *Cost) NumParameters() int { return len(c.ids) }

// Unknowns lists the cells behind each parameter slot.
func (c *Cost) Unknowns() []UnknownID { return c.ids }

func (c *Cost) Expression() Expression { return c.expr }

// Evaluate returns the residual at params. When jacobian is non-nil it
// receives d residual / d params[i].
func (c *Cost) Evaluate(params, jacobian []float64) (float64, error) {
	if len(params) != len(c.ids) {
		return 0, fmt.Errorf("cost expects %d parameters, got %d", len(c.ids), len(params))
	}
	if jacobian == nil {
		v := c.expr.EvaluateAt(params, c.index, c.assign)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return v, fmt.Errorf("%v: %w", c.expr, ErrNonFinite)
		}
		return v, nil
	}

	ev := dualEvaluator{evaluator: evaluator{arena: c.expr.arena, params: params, index: c.index, assign: c.assign}, n: len(params)}
	r := ev.eval(c.expr.node())
	if math.IsNaN(r.V) || math.IsInf(r.V, 0) {
		return r.V, fmt.Errorf("%v: %w", c.expr, ErrNonFinite)
	}
	for i := range jacobian {
		jacobian[i] = 0
		if r.D != nil {
			jacobian[i] = r.D[i]
		}
		if math.IsNaN(jacobian[i]) || math.IsInf(jacobian[i], 0) {
			return r.V, fmt.Errorf("%v: jacobian: %w", c.expr, ErrNonFinite)
		}
	}
	return r.V, nil
}

type dualEvaluator struct {
	evaluator
	n int
}

func (ev *dualEvaluator) eval(n *Node) Dual {
	switch n.Kind {
	case KindConstant:
		return Dual{V: n.Value}
	case KindUnknown:
		if _, known := ev.arena.lookup(n.ID); !known {
			if i, ok := ev.index[n.ID]; ok {
				d := make([]float64, ev.n)
				d[i] = 1
				return Dual{V: ev.params[i], D: d}
			}
		}
		return Dual{V: ev.leaf(n.ID)}
	case KindBinary:
		l, r := ev.eval(n.Lhs), ev.eval(n.Rhs)
		switch n.Binary {
		case OpAdd:
			return Dual{V: l.V + r.V, D: combine(l, 1, r, 1, ev.n)}
		case OpSub:
			return Dual{V: l.V - r.V, D: combine(l, 1, r, -1, ev.n)}
		case OpMul:
			return Dual{V: l.V * r.V, D: combine(l, r.V, r, l.V, ev.n)}
		case OpDiv:
			v := l.V / r.V
			return Dual{V: v, D: combine(l, 1/r.V, r, -v/r.V, ev.n)}
		}
	case KindUnary:
		x := ev.eval(n.Lhs)
		switch n.Unary {
		case OpNeg:
			return Dual{V: -x.V, D: x.scaled(-1, ev.n)}
		case OpExp:
			v := math.Exp(x.V)
			return Dual{V: v, D: x.scaled(v, ev.n)}
		}
	case KindTernary:
		if ev.branch(n.Cond) {
			return ev.eval(n.Lhs)
		}
		return ev.eval(n.Rhs)
	}
	panic(fmt.Sprintf("expression: cannot differentiate node %v", n.Kind))
}
