package expression

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Node.
type Kind int

const (
	KindConstant Kind = iota
	KindUnknown
	KindBinary
	KindUnary
	KindTernary
)

func (k Kind) String() string {
	switch k {
	case KindConstant:
		return "constant"
	case KindUnknown:
		return "unknown"
	case KindBinary:
		return "binary"
	case KindUnary:
		return "unary"
	case KindTernary:
		return "ternary"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
)

func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	}
	return "?"
}

type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpExp
)

// Node is one vertex of an expression DAG. Which fields are meaningful
// depends on Kind:
//
//	KindConstant: Value
//	KindUnknown:  ID
//	KindBinary:   Binary, Lhs, Rhs
//	KindUnary:    Unary, Lhs (the operand)
//	KindTernary:  Cond, Lhs (if true), Rhs (if false)
//
// Nodes are immutable once built and may be shared between expressions.
type Node struct {
	Kind   Kind
	Value  float64
	ID     UnknownID
	Binary BinaryOp
	Unary  UnaryOp
	Lhs    *Node
	Rhs    *Node
	Cond   *Condition
}

var zeroNode = &Node{Kind: KindConstant}

func constNode(v float64) *Node {
	return &Node{Kind: KindConstant, Value: v}
}

// sameNode reports node identity. Two leaves for the same unknown cell are
// the same node even if they were allocated separately.
func sameNode(a, b *Node) bool {
	if a == b {
		return true
	}
	return a.Kind == KindUnknown && b.Kind == KindUnknown && a.ID == b.ID
}

// walk visits every node reachable from n once, including condition
// operands. Shared sub-trees are not revisited.
func walk(n *Node, visit func(*Node)) {
	seen := make(map[*Node]struct{})
	var rec func(*Node)
	rec = func(n *Node) {
		if n == nil {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		visit(n)
		switch n.Kind {
		case KindConstant, KindUnknown:
		case KindBinary:
			rec(n.Lhs)
			rec(n.Rhs)
		case KindUnary:
			rec(n.Lhs)
		case KindTernary:
			rec(n.Cond.lhs)
			rec(n.Cond.rhs)
			rec(n.Lhs)
			rec(n.Rhs)
		default:
			panic(fmt.Sprintf("expression: unhandled node kind %v", n.Kind))
		}
	}
	rec(n)
}

func format(sb *strings.Builder, a *Arena, n *Node) {
	switch n.Kind {
	case KindConstant:
		sb.WriteString(strconv.FormatFloat(n.Value, 'g', -1, 64))
	case KindUnknown:
		if a != nil {
			if v, known := a.lookup(n.ID); known {
				sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
				return
			}
		}
		sb.WriteString("x")
		sb.WriteString(strconv.Itoa(int(n.ID)))
	case KindBinary:
		sb.WriteString("(")
		format(sb, a, n.Lhs)
		sb.WriteString(" " + n.Binary.String() + " ")
		format(sb, a, n.Rhs)
		sb.WriteString(")")
	case KindUnary:
		switch n.Unary {
		case OpNeg:
			sb.WriteString("-")
			format(sb, a, n.Lhs)
		case OpExp:
			sb.WriteString("exp(")
			format(sb, a, n.Lhs)
			sb.WriteString(")")
		}
	case KindTernary:
		sb.WriteString("(")
		format(sb, a, n.Cond.lhs)
		sb.WriteString(" " + n.Cond.op.String() + " ")
		format(sb, a, n.Cond.rhs)
		sb.WriteString(" ? ")
		format(sb, a, n.Lhs)
		sb.WriteString(" : ")
		format(sb, a, n.Rhs)
		sb.WriteString(")")
	default:
		panic(fmt.Sprintf("expression: unhandled node kind %v", n.Kind))
	}
}
