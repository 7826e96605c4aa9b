package expression

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var ErrNotAssignable = errors.New("expression is not a single unknown")

// Expression is a value handle on a (possibly shared) node DAG. The zero
// value is the constant 0.
type Expression struct {
	arena *Arena
	root  *Node
}

// Const returns a known constant. Constants belong to no arena and combine
// with expressions of any arena.
func Const(v float64) Expression {
	return Expression{root: constNode(v)}
}

func (e Expression) node() *Node {
	if e.root == nil {
		return zeroNode
	}
	return e.root
}

// Root exposes the underlying node.
func (e Expression) Root() *Node { return e.node() }

// Arena returns the arena the expression's unknowns live in, nil for
// constant-only expressions.
func (e Expression) Arena() *Arena { return e.arena }

func pick(a, b *Arena) *Arena {
	switch {
	case a == nil:
		return b
	case b == nil || a == b:
		return a
	}
	panic("expression: operands belong to different arenas")
}

// constValue returns the value of a constant leaf or of an unknown leaf whose
// cell is already known.
func (e Expression) constValue() (float64, bool) {
	n := e.node()
	switch n.Kind {
	case KindConstant:
		return n.Value, true
	case KindUnknown:
		if e.arena != nil {
			return e.arena.lookup(n.ID)
		}
	}
	return 0, false
}

func (e Expression) isConst(v float64) bool {
	c, ok := e.constValue()
	return ok && c == v
}

// IsConstant reports whether the expression is a known leaf.
func (e Expression) IsConstant() bool {
	_, ok := e.constValue()
	return ok
}

// Known reports whether no unknown cell is reachable, so the expression has
// a fixed value. Condition bases do not count.
func (e Expression) Known() bool {
	if _, ok := e.constValue(); ok {
		return true
	}
	known := true
	walk(e.node(), func(n *Node) {
		if !known || n.Kind != KindUnknown {
			return
		}
		if e.arena == nil {
			known = false
			return
		}
		if _, ok := e.arena.lookup(n.ID); !ok {
			known = false
		}
	})
	return known
}

// IsUnknown reports whether the expression is a single leaf whose cell is not
// yet known.
func (e Expression) IsUnknown() bool {
	return e.node().Kind == KindUnknown && !e.IsConstant()
}

func binary(op BinaryOp, a, b Expression) Expression {
	return Expression{
		arena: pick(a.arena, b.arena),
		root:  &Node{Kind: KindBinary, Binary: op, Lhs: a.node(), Rhs: b.node()},
	}
}

func unary(op UnaryOp, a Expression) Expression {
	return Expression{arena: a.arena, root: &Node{Kind: KindUnary, Unary: op, Lhs: a.node()}}
}

// operand returns the child of a unary node as an expression of the same
// arena.
func (e Expression) operand() Expression {
	return Expression{arena: e.arena, root: e.node().Lhs}
}

func (e Expression) isNeg() bool {
	n := e.node()
	return n.Kind == KindUnary && n.Unary == OpNeg
}

func (e Expression) Add(o Expression) Expression {
	pick(e.arena, o.arena)
	a, aok := e.constValue()
	b, bok := o.constValue()
	switch {
	case aok && bok:
		return Const(a + b)
	case bok && b == 0:
		return e
	case aok && a == 0:
		return o
	case o.isNeg():
		return e.Sub(o.operand())
	case e.isNeg():
		return o.Sub(e.operand())
	}
	return binary(OpAdd, e, o)
}

func (e Expression) Sub(o Expression) Expression {
	pick(e.arena, o.arena)
	a, aok := e.constValue()
	b, bok := o.constValue()
	switch {
	case aok && bok:
		return Const(a - b)
	case bok && b == 0:
		return e
	case aok && a == 0:
		return o.Neg()
	case sameNode(e.node(), o.node()):
		return Const(0)
	}
	return binary(OpSub, e, o)
}

func (e Expression) Mul(o Expression) Expression {
	pick(e.arena, o.arena)
	a, aok := e.constValue()
	b, bok := o.constValue()
	switch {
	case aok && bok:
		return Const(a * b)
	case (aok && a == 0) || (bok && b == 0):
		return Const(0)
	case bok && b == 1:
		return e
	case aok && a == 1:
		return o
	}
	return binary(OpMul, e, o)
}

// Div folds constant quotients only for a non-zero divisor, so a division by
// a known zero stays in the tree and surfaces as a non-finite evaluation.
func (e Expression) Div(o Expression) Expression {
	pick(e.arena, o.arena)
	a, aok := e.constValue()
	b, bok := o.constValue()
	switch {
	case aok && bok && b != 0:
		return Const(a / b)
	case bok && b == 1:
		return e
	case sameNode(e.node(), o.node()) && !aok:
		return Const(1)
	}
	return binary(OpDiv, e, o)
}

func (e Expression) Neg() Expression {
	if v, ok := e.constValue(); ok {
		return Const(-v)
	}
	if e.isNeg() {
		return e.operand()
	}
	return unary(OpNeg, e)
}

func Exp(e Expression) Expression {
	if v, ok := e.constValue(); ok {
		return Const(math.Exp(v))
	}
	return unary(OpExp, e)
}

// Equal compares values when both sides are known and node identity
// otherwise. Structurally equal but distinct trees are not equal.
func (e Expression) Equal(o Expression) bool {
	aok, bok := e.Known(), o.Known()
	if aok && bok {
		return e.Evaluate() == o.Evaluate()
	}
	if aok != bok {
		return false
	}
	return sameNode(e.node(), o.node())
}

// Unknowns returns the distinct unknown cells reachable from the expression,
// in ascending id order. Known cells and condition bases are not included.
func (e Expression) Unknowns() []UnknownID {
	set := make(map[UnknownID]struct{})
	walk(e.node(), func(n *Node) {
		if n.Kind != KindUnknown {
			return
		}
		if _, known := e.arena.lookup(n.ID); !known {
			set[n.ID] = struct{}{}
		}
	})
	ids := make([]UnknownID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (e Expression) NumUnknowns() int {
	return len(e.Unknowns())
}

// Evaluate computes the expression from the values currently held in the
// arena cells. Conditionals follow the live sign of their operands.
func (e Expression) Evaluate() float64 {
	return e.EvaluateAt(nil, nil, nil)
}

// EvaluateAt substitutes params[index[id]] for every unknown listed in index.
// Unknowns missing from index read their cell. With a non-nil assignment,
// conditionals take the branch the assignment fixes for their basis.
func (e Expression) EvaluateAt(params []float64, index map[UnknownID]int, assign Assignment) float64 {
	ev := evaluator{arena: e.arena, params: params, index: index, assign: assign}
	return ev.eval(e.node())
}

type evaluator struct {
	arena  *Arena
	params []float64
	index  map[UnknownID]int
	assign Assignment
}

func (ev *evaluator) leaf(id UnknownID) float64 {
	v, known := ev.arena.lookup(id)
	if known {
		return v
	}
	if i, ok := ev.index[id]; ok {
		return ev.params[i]
	}
	return v
}

func (ev *evaluator) eval(n *Node) float64 {
	switch n.Kind {
	case KindConstant:
		return n.Value
	case KindUnknown:
		return ev.leaf(n.ID)
	case KindBinary:
		l, r := ev.eval(n.Lhs), ev.eval(n.Rhs)
		switch n.Binary {
		case OpAdd:
			return l + r
		case OpSub:
			return l - r
		case OpMul:
			return l * r
		case OpDiv:
			return l / r
		}
	case KindUnary:
		v := ev.eval(n.Lhs)
		switch n.Unary {
		case OpNeg:
			return -v
		case OpExp:
			return math.Exp(v)
		}
	case KindTernary:
		if ev.branch(n.Cond) {
			return ev.eval(n.Lhs)
		}
		return ev.eval(n.Rhs)
	}
	panic(fmt.Sprintf("expression: cannot evaluate node %v", n.Kind))
}

func (ev *evaluator) branch(c *Condition) bool {
	return c.selects(ev.assign, func() float64 {
		return ev.eval(c.lhs) - ev.eval(c.rhs)
	})
}

// Assign gives a single unknown leaf a known value.
func (e Expression) Assign(v float64) error {
	n := e.node()
	if n.Kind != KindUnknown || e.arena == nil {
		return fmt.Errorf("assign %v: %w", e, ErrNotAssignable)
	}
	e.arena.Set(n.ID, v)
	return nil
}

// MarkKnown freezes every unknown reachable from the expression, including
// the bases of its conditions.
func (e Expression) MarkKnown() {
	if e.arena == nil {
		return
	}
	walk(e.node(), func(n *Node) {
		switch n.Kind {
		case KindUnknown:
			e.arena.Freeze(n.ID)
		case KindTernary:
			if n.Cond.basis >= 0 {
				e.arena.Freeze(n.Cond.basis)
			}
		}
	})
}

func (e Expression) String() string {
	var sb strings.Builder
	format(&sb, e.arena, e.node())
	return sb.String()
}
