package netlist

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/edp1096/circuitsolver/pkg/device"
)

var elementLetters = map[string]string{
	device.TypeResistor:      "R",
	device.TypeVoltageSource: "V",
	device.TypeCurrentSource: "I",
	device.TypeRealDiode:     "D",
	device.TypeIdealDiode:    "D",
	device.TypeZenerDiode:    "D",
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func validToken(s string) bool {
	return s != "" && !strings.ContainsAny(s, " \t\r\n*=()") && !strings.HasPrefix(s, ".") && !strings.HasPrefix(s, "+")
}

// Write renders a document as a netlist Parse reads back. Nodes and elements
// are identified by name, so ids survive only when they were derived from
// those names in the first place or the node is unnamed.
func Write(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "* "+strings.Join(strings.Fields(doc.Title), " "))

	nodes := make(map[string]string, 2*len(doc.Vertices))
	used := make(map[string]bool)
	for _, v := range doc.Vertices {
		node := v.Name
		if node == "" {
			node = v.ID
		}
		if !validToken(node) {
			return nil, fmt.Errorf("node name %q: %w", node, ErrSerialization)
		}
		if used[node] {
			return nil, fmt.Errorf("duplicate node %q: %w", node, ErrSerialization)
		}
		used[node] = true
		if v.ID != "" {
			nodes[v.ID] = node
		}
		if v.Name != "" {
			nodes[v.Name] = node
		}
		if v.Voltage != nil && !(isGround(node) && *v.Voltage == 0) {
			fmt.Fprintf(&buf, ".pin %s %s\n", node, formatValue(*v.Voltage))
		}
	}

	var models []string
	names := make(map[string]bool)
	for _, e := range doc.Edges {
		letter, ok := elementLetters[e.Type]
		if !ok {
			return nil, fmt.Errorf("edge %s: type %q: %w", e.label(), e.Type, ErrSerialization)
		}
		name := e.Name
		if name == "" {
			name = e.ID
		}
		if !strings.EqualFold(name[:min(1, len(name))], letter) {
			name = letter + name
		}
		if !validToken(name) || names[name] {
			return nil, fmt.Errorf("element name %q: %w", name, ErrSerialization)
		}
		names[name] = true

		from, ok := nodes[e.From]
		if !ok {
			return nil, fmt.Errorf("edge %s: from vertex %q not found: %w", e.label(), e.From, ErrSerialization)
		}
		to, ok := nodes[e.To]
		if !ok {
			return nil, fmt.Errorf("edge %s: to vertex %q not found: %w", e.label(), e.To, ErrSerialization)
		}

		params := device.Defaults(e.Type)
		for k, v := range e.Params {
			params[k] = v
		}

		switch letter {
		case "R":
			fmt.Fprintf(&buf, "%s %s %s %s\n", name, from, to, formatValue(params["r"]))
		case "V":
			fmt.Fprintf(&buf, "%s %s %s DC %s\n", name, to, from, formatValue(params["v"]))
		case "I":
			fmt.Fprintf(&buf, "%s %s %s DC %s\n", name, from, to, formatValue(params["i"]))
		case "D":
			model := name + "_model"
			fmt.Fprintf(&buf, "%s %s %s %s\n", name, from, to, model)
			models = append(models, modelCard(model, e.Type, params))
		}
	}

	for _, m := range models {
		fmt.Fprintln(&buf, m)
	}

	if a := doc.Analysis; a != nil {
		switch a.Type {
		case AnalysisOP:
			fmt.Fprintln(&buf, ".op")
		case AnalysisDC:
			fmt.Fprintf(&buf, ".dc %s %s %s %s\n", a.Edge, formatValue(a.Start), formatValue(a.Stop), formatValue(a.Step))
		}
	}
	fmt.Fprintln(&buf, ".end")
	return buf.Bytes(), nil
}

func modelCard(name, typ string, params map[string]float64) string {
	var kind string
	for k, t := range modelTypes {
		if t == typ {
			kind = k
		}
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + formatValue(params[k])
	}
	return fmt.Sprintf(".model %s %s(%s)", name, kind, strings.Join(pairs, " "))
}
