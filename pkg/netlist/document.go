package netlist

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/edp1096/circuitsolver/pkg/circuit"
	"github.com/edp1096/circuitsolver/pkg/device"
)

var ErrSerialization = errors.New("serialization error")

// namespace seeds the name based ids of vertices and edges that arrive
// without one, so the same netlist always yields the same graph ids.
var namespace = uuid.MustParse("3f1c1a52-8c0e-4d2b-9a57-2f6d1e4b8c90")

type AnalysisType string

const (
	AnalysisOP AnalysisType = "op"
	AnalysisDC AnalysisType = "dc"
)

// Document is the serialisable form of a circuit graph.
type Document struct {
	Title    string       `json:"title,omitempty" yaml:"title,omitempty"`
	Vertices []VertexDoc  `json:"vertices" yaml:"vertices"`
	Edges    []EdgeDoc    `json:"edges" yaml:"edges"`
	Analysis *AnalysisDoc `json:"analysis,omitempty" yaml:"analysis,omitempty"`
}

// VertexDoc is a vertex. A voltage marks it as known: pinned, or solved.
type VertexDoc struct {
	ID      string   `json:"id,omitempty" yaml:"id,omitempty"`
	Name    string   `json:"name,omitempty" yaml:"name,omitempty"`
	Voltage *float64 `json:"voltage,omitempty" yaml:"voltage,omitempty"`
}

// EdgeDoc is an edge. Current is output only, filled when it is known.
type EdgeDoc struct {
	ID      string             `json:"id,omitempty" yaml:"id,omitempty"`
	Name    string             `json:"name,omitempty" yaml:"name,omitempty"`
	From    string             `json:"from" yaml:"from"`
	To      string             `json:"to" yaml:"to"`
	Type    string             `json:"type" yaml:"type"`
	Params  map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
	Current *float64           `json:"current,omitempty" yaml:"current,omitempty"`
}

// AnalysisDoc is the analysis requested alongside the circuit.
type AnalysisDoc struct {
	Type  AnalysisType `json:"type" yaml:"type"`
	Edge  string       `json:"edge,omitempty" yaml:"edge,omitempty"`
	Param string       `json:"param,omitempty" yaml:"param,omitempty"`
	Start float64      `json:"start,omitempty" yaml:"start,omitempty"`
	Stop  float64      `json:"stop,omitempty" yaml:"stop,omitempty"`
	Step  float64      `json:"step,omitempty" yaml:"step,omitempty"`
}

func ptr(v float64) *float64 { return &v }

// FromGraph captures a graph, solved values included.
func FromGraph(g *circuit.Graph) *Document {
	doc := &Document{Title: g.Title}
	for _, v := range g.Vertices() {
		vd := VertexDoc{ID: v.ID.String(), Name: v.Name}
		if v.Known() {
			vd.Voltage = ptr(v.Voltage.Evaluate())
		}
		doc.Vertices = append(doc.Vertices, vd)
	}
	for _, e := range g.Edges() {
		ed := EdgeDoc{
			ID:     e.ID.String(),
			Name:   e.Name,
			From:   e.From.ID.String(),
			To:     e.To.ID.String(),
			Type:   e.Branch.Type(),
			Params: e.Branch.Params(),
		}
		if cur := e.Branch.Current(); cur.Known() {
			ed.Current = ptr(cur.Evaluate())
		}
		doc.Edges = append(doc.Edges, ed)
	}
	return doc
}

func vertexID(id, name string) (uuid.UUID, error) {
	return docID("vertex", id, name)
}

func edgeID(id, name string) (uuid.UUID, error) {
	return docID("edge", id, name)
}

func docID(kind, id, name string) (uuid.UUID, error) {
	if id == "" {
		if name == "" {
			return uuid.Nil, fmt.Errorf("%s without id or name: %w", kind, ErrSerialization)
		}
		return uuid.NewSHA1(namespace, []byte(kind+"/"+name)), nil
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s id %q: %w: %v", kind, id, ErrSerialization, err)
	}
	return u, nil
}

// Build creates a fresh graph. Edge endpoints may name a vertex by id or, for
// documents written by hand, by name.
func (d *Document) Build() (*circuit.Graph, error) {
	g := circuit.NewGraph()
	g.Title = d.Title

	byKey := make(map[string]*circuit.Vertex, 2*len(d.Vertices))
	for _, vd := range d.Vertices {
		id, err := vertexID(vd.ID, vd.Name)
		if err != nil {
			return nil, err
		}
		var v *circuit.Vertex
		if vd.Voltage != nil {
			v, err = g.AddPinnedVertexWithID(id, vd.Name, *vd.Voltage)
		} else {
			v, err = g.AddVertexWithID(id, vd.Name)
		}
		if err != nil {
			return nil, err
		}
		byKey[id.String()] = v
		if vd.Name != "" {
			byKey[vd.Name] = v
		}
	}

	for _, ed := range d.Edges {
		id, err := edgeID(ed.ID, ed.Name)
		if err != nil {
			return nil, err
		}
		factory, err := device.Lookup(ed.Type, ed.Params)
		if err != nil {
			return nil, fmt.Errorf("edge %s: %w: %w", ed.label(), ErrSerialization, err)
		}
		from, ok := lookupVertex(byKey, ed.From)
		if !ok {
			return nil, fmt.Errorf("edge %s: from vertex %q not found: %w", ed.label(), ed.From, circuit.ErrInvalidGraph)
		}
		to, ok := lookupVertex(byKey, ed.To)
		if !ok {
			return nil, fmt.Errorf("edge %s: to vertex %q not found: %w", ed.label(), ed.To, circuit.ErrInvalidGraph)
		}
		if _, err := g.AddEdgeWithID(id, ed.Name, from, to, factory); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func lookupVertex(byKey map[string]*circuit.Vertex, key string) (*circuit.Vertex, bool) {
	if v, ok := byKey[key]; ok {
		return v, true
	}
	// ids written in another case still parse to the same uuid
	if u, err := uuid.Parse(key); err == nil {
		v, ok := byKey[u.String()]
		return v, ok
	}
	return nil, false
}

func (e *EdgeDoc) label() string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}

// Clone deep copies the document.
func (d *Document) Clone() *Document {
	c := &Document{Title: d.Title}
	for _, v := range d.Vertices {
		if v.Voltage != nil {
			v.Voltage = ptr(*v.Voltage)
		}
		c.Vertices = append(c.Vertices, v)
	}
	for _, e := range d.Edges {
		if e.Params != nil {
			params := make(map[string]float64, len(e.Params))
			for k, p := range e.Params {
				params[k] = p
			}
			e.Params = params
		}
		if e.Current != nil {
			e.Current = ptr(*e.Current)
		}
		c.Edges = append(c.Edges, e)
	}
	if d.Analysis != nil {
		a := *d.Analysis
		c.Analysis = &a
	}
	return c
}

// Instantiate builds the graph with one edge parameter overridden. The edge
// is found by name or id.
func (d *Document) Instantiate(edge, param string, value float64) (*circuit.Graph, error) {
	c := d.Clone()
	for i := range c.Edges {
		e := &c.Edges[i]
		if e.Name != edge && e.ID != edge {
			continue
		}
		if e.Params == nil {
			e.Params = make(map[string]float64)
		}
		e.Params[param] = value
		return c.Build()
	}
	return nil, fmt.Errorf("edge %q not found: %w", edge, circuit.ErrInvalidGraph)
}
