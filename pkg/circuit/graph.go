package circuit

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/edp1096/circuitsolver/pkg/expression"
)

var ErrInvalidGraph = errors.New("invalid circuit graph")

// Vertex is a circuit node. Its voltage is a constant when the vertex is
// pinned (ground, an ideal supply rail) or already solved.
type Vertex struct {
	ID      uuid.UUID
	Name    string
	Voltage expression.Expression
}

func (v *Vertex) Known() bool {
	return v.Voltage.IsConstant()
}

func (v *Vertex) Label() string {
	if v.Name != "" {
		return v.Name
	}
	return v.ID.String()
}

// Terminals are the voltages a branch is connected across.
type Terminals struct {
	Arena *expression.Arena
	From  expression.Expression
	To    expression.Expression
}

// Drop is From - To.
func (t Terminals) Drop() expression.Expression {
	return t.From.Sub(t.To)
}

// Branch is the electrical behaviour of an edge. Current flows from the
// edge's From vertex to its To vertex. Constraint is an extra residual that
// must vanish, the constant 0 for plain two-terminal elements.
type Branch interface {
	Type() string
	Current() expression.Expression
	Constraint() expression.Expression
	Params() map[string]float64
}

type BranchFactory func(Terminals) Branch

type Edge struct {
	ID     uuid.UUID
	Name   string
	From   *Vertex
	To     *Vertex
	Branch Branch
}

func (e *Edge) Label() string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID.String()
}

type Graph struct {
	Title     string
	arena     *expression.Arena
	vertices  map[uuid.UUID]*Vertex
	edges     map[uuid.UUID]*Edge
	adjacency map[uuid.UUID][]uuid.UUID
}

func NewGraph() *Graph {
	return &Graph{
		arena:     expression.NewArena(),
		vertices:  make(map[uuid.UUID]*Vertex),
		edges:     make(map[uuid.UUID]*Edge),
		adjacency: make(map[uuid.UUID][]uuid.UUID),
	}
}

// Arena is where every unknown of the graph lives.
func (g *Graph) Arena() *expression.Arena { return g.arena }

// AddVertex adds a vertex with an unknown voltage.
func (g *Graph) AddVertex(name string) *Vertex {
	v, _ := g.AddVertexWithID(uuid.New(), name)
	return v
}

// AddPinnedVertex adds a vertex held at a known voltage.
func (g *Graph) AddPinnedVertex(name string, voltage float64) *Vertex {
	v, _ := g.AddPinnedVertexWithID(uuid.New(), name, voltage)
	return v
}

func (g *Graph) AddVertexWithID(id uuid.UUID, name string) (*Vertex, error) {
	return g.insertVertex(&Vertex{ID: id, Name: name, Voltage: g.arena.Unknown()})
}

func (g *Graph) AddPinnedVertexWithID(id uuid.UUID, name string, voltage float64) (*Vertex, error) {
	return g.insertVertex(&Vertex{ID: id, Name: name, Voltage: expression.Const(voltage)})
}

func (g *Graph) insertVertex(v *Vertex) (*Vertex, error) {
	if _, exists := g.vertices[v.ID]; exists {
		return nil, fmt.Errorf("duplicate vertex %s: %w", v.ID, ErrInvalidGraph)
	}
	g.vertices[v.ID] = v
	g.adjacency[v.ID] = nil
	return v, nil
}

// AddEdge connects two member vertices with the branch the factory builds.
// Nothing is linked when an endpoint does not belong to the graph.
func (g *Graph) AddEdge(name string, from, to *Vertex, factory BranchFactory) (*Edge, error) {
	return g.AddEdgeWithID(uuid.New(), name, from, to, factory)
}

func (g *Graph) AddEdgeWithID(id uuid.UUID, name string, from, to *Vertex, factory BranchFactory) (*Edge, error) {
	if !g.member(from) || !g.member(to) {
		return nil, fmt.Errorf("edge %s: endpoint not in graph: %w", name, ErrInvalidGraph)
	}
	if _, exists := g.edges[id]; exists {
		return nil, fmt.Errorf("duplicate edge %s: %w", id, ErrInvalidGraph)
	}
	if factory == nil {
		return nil, fmt.Errorf("edge %s: no branch: %w", name, ErrInvalidGraph)
	}

	e := &Edge{
		ID:     id,
		Name:   name,
		From:   from,
		To:     to,
		Branch: factory(Terminals{Arena: g.arena, From: from.Voltage, To: to.Voltage}),
	}
	g.edges[id] = e
	g.adjacency[from.ID] = append(g.adjacency[from.ID], id)
	if to.ID != from.ID {
		g.adjacency[to.ID] = append(g.adjacency[to.ID], id)
	}
	return e, nil
}

func (g *Graph) member(v *Vertex) bool {
	if v == nil {
		return false
	}
	m, ok := g.vertices[v.ID]
	return ok && m == v
}

func (g *Graph) Vertex(id uuid.UUID) (*Vertex, bool) {
	v, ok := g.vertices[id]
	return v, ok
}

func (g *Graph) Edge(id uuid.UUID) (*Edge, bool) {
	e, ok := g.edges[id]
	return e, ok
}

func (g *Graph) HasVertex(id uuid.UUID) bool {
	_, ok := g.vertices[id]
	return ok
}

func (g *Graph) HasEdge(id uuid.UUID) bool {
	_, ok := g.edges[id]
	return ok
}

func (g *Graph) NumVertices() int { return len(g.vertices) }
func (g *Graph) NumEdges() int    { return len(g.edges) }

func lessID(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// Vertices returns the vertices ordered by id.
func (g *Graph) Vertices() []*Vertex {
	out := make([]*Vertex, 0, len(g.vertices))
	for _, v := range g.vertices {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })
	return out
}

// Edges returns the edges ordered by id.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })
	return out
}

// Incident returns the edges touching a vertex in insertion order.
func (g *Graph) Incident(id uuid.UUID) []*Edge {
	ids := g.adjacency[id]
	out := make([]*Edge, 0, len(ids))
	for _, eid := range ids {
		out = append(out, g.edges[eid])
	}
	return out
}

func (g *Graph) VertexByName(name string) (*Vertex, bool) {
	for _, v := range g.Vertices() {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

func (g *Graph) EdgeByName(name string) (*Edge, bool) {
	for _, e := range g.Edges() {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// Equal compares structure: the same vertex ids with the same known state
// and known voltages, and the same edge ids joining the same endpoints with
// the same branch type.
func (g *Graph) Equal(other *Graph) bool {
	if len(g.vertices) != len(other.vertices) || len(g.edges) != len(other.edges) {
		return false
	}
	for id, v := range g.vertices {
		u, ok := other.vertices[id]
		if !ok || v.Known() != u.Known() {
			return false
		}
		if v.Known() && v.Voltage.Evaluate() != u.Voltage.Evaluate() {
			return false
		}
	}
	for id, e := range g.edges {
		f, ok := other.edges[id]
		if !ok {
			return false
		}
		if e.From.ID != f.From.ID || e.To.ID != f.To.ID || e.Branch.Type() != f.Branch.Type() {
			return false
		}
	}
	return true
}
