package expression

// Comparator is the relation a Condition tests between its operands.
type Comparator int

const (
	Lt Comparator = iota
	Le
	Gt
	Ge
	Eq
	Ne
)

func (c Comparator) String() string {
	switch c {
	case Lt:
		return "<"
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	case Eq:
		return "=="
	case Ne:
		return "!="
	}
	return "?"
}

// Sign is the half-line a basis is bound to while a partition is solved.
type Sign int8

const (
	Negative Sign = -1
	Positive Sign = 1
)

func (s Sign) String() string {
	if s == Negative {
		return "-"
	}
	return "+"
}

// Assignment fixes the sign of every basis for one partition.
type Assignment map[UnknownID]Sign

// Condition compares two expressions. It is never branched on while a
// partition is solved: its basis b carries the sign of lhs - rhs through the
// implicit relation (lhs - rhs) - b = 0 and the bound placed on b.
type Condition struct {
	arena *Arena
	lhs   *Node
	rhs   *Node
	op    Comparator
	basis UnknownID
}

func (e Expression) compare(op Comparator, o Expression) *Condition {
	c := &Condition{arena: pick(e.arena, o.arena), lhs: e.node(), rhs: o.node(), op: op, basis: -1}
	if e.IsConstant() && o.IsConstant() {
		return c
	}
	c.basis = c.arena.alloc()
	return c
}

func (e Expression) Lt(o Expression) *Condition { return e.compare(Lt, o) }
func (e Expression) Le(o Expression) *Condition { return e.compare(Le, o) }
func (e Expression) Gt(o Expression) *Condition { return e.compare(Gt, o) }
func (e Expression) Ge(o Expression) *Condition { return e.compare(Ge, o) }
func (e Expression) Eq(o Expression) *Condition { return e.compare(Eq, o) }
func (e Expression) Ne(o Expression) *Condition { return e.compare(Ne, o) }

func (c *Condition) Op() Comparator  { return c.op }
func (c *Condition) Lhs() Expression { return Expression{arena: c.arena, root: c.lhs} }
func (c *Condition) Rhs() Expression { return Expression{arena: c.arena, root: c.rhs} }

// Basis returns the id of the sign variable, or -1 when both operands are
// constant and the condition needs none.
func (c *Condition) Basis() UnknownID { return c.basis }

// Residual returns (lhs - rhs) - b.
func (c *Condition) Residual() Expression {
	b := Expression{arena: c.arena, root: &Node{Kind: KindUnknown, ID: c.basis}}
	return c.Lhs().Sub(c.Rhs()).Sub(b)
}

// Holds decides the comparator for a signed difference lhs - rhs.
func (c *Condition) Holds(diff float64) bool {
	switch c.op {
	case Lt:
		return diff < 0
	case Le:
		return diff <= 0
	case Gt:
		return diff > 0
	case Ge:
		return diff >= 0
	case Eq:
		return diff == 0
	case Ne:
		return diff != 0
	}
	return false
}

// selects reports which branch a conditional takes. Ordered comparators follow
// the sign fixed by the assignment; equality tests and conditions outside a
// partition look at the live difference.
func (c *Condition) selects(assign Assignment, live func() float64) bool {
	if s, ok := assign[c.basis]; ok && c.basis >= 0 {
		switch c.op {
		case Lt, Le:
			return s == Negative
		case Gt, Ge:
			return s == Positive
		}
	}
	return c.Holds(live())
}

// Conditional selects ifTrue when cond holds and ifFalse otherwise. A
// condition over constants is decided immediately.
func Conditional(cond *Condition, ifTrue, ifFalse Expression) Expression {
	arena := pick(pick(cond.arena, ifTrue.arena), ifFalse.arena)
	if cond.basis < 0 {
		lhs, _ := cond.Lhs().constValue()
		rhs, _ := cond.Rhs().constValue()
		if cond.Holds(lhs - rhs) {
			return ifTrue
		}
		return ifFalse
	}
	if ifTrue.Equal(ifFalse) {
		return ifTrue
	}
	return Expression{
		arena: arena,
		root:  &Node{Kind: KindTernary, Cond: cond, Lhs: ifTrue.node(), Rhs: ifFalse.node()},
	}
}

// Conditions returns the distinct conditions reachable from the expression in
// depth-first order.
func (e Expression) Conditions() []*Condition {
	var conds []*Condition
	seen := make(map[*Condition]struct{})
	walk(e.node(), func(n *Node) {
		if n.Kind != KindTernary {
			return
		}
		if _, ok := seen[n.Cond]; ok {
			return
		}
		seen[n.Cond] = struct{}{}
		conds = append(conds, n.Cond)
	})
	return conds
}

// BasisResiduals returns the implicit relation of every reachable condition.
func (e Expression) BasisResiduals() []Expression {
	conds := e.Conditions()
	out := make([]Expression, 0, len(conds))
	for _, c := range conds {
		out = append(out, c.Residual())
	}
	return out
}
