package netlist

import (
	"fmt"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/edp1096/circuitsolver/pkg/device"
)

// The binary format is protobuf wire compatible with:
//
//	message CircuitGraph {
//	  string title = 1;
//	  map<string, Vertex> vertices = 2;
//	  map<string, Edge> edges = 3;
//	  Analysis analysis = 4;
//	}
//	message Vertex {
//	  string id = 1;
//	  optional double voltage = 2;
//	  string name = 3;
//	}
//	message Edge {
//	  string id = 1;
//	  string from_id = 2;
//	  string to_id = 3;
//	  optional double current = 4;
//	  string name = 5;
//	  oneof branch {
//	    CurrentSource current_source = 10;  // i = 1
//	    IdealDiode ideal_diode = 11;        // vd = 1
//	    RealDiode real_diode = 12;          // is = 1, n = 2, vt = 3
//	    Resistor resistor = 13;             // r = 1
//	    VoltageSource voltage_source = 14;  // v = 1
//	    ZenerDiode zener_diode = 15;        // vzt = 1, rzt = 2, izt = 3
//	  }
//	}
//	message Analysis {
//	  string type = 1;
//	  string edge = 2;
//	  string param = 3;
//	  double start = 4;
//	  double stop = 5;
//	  double step = 6;
//	}
//
// Branch parameters are all optional doubles.

type branchSchema struct {
	field  protowire.Number
	params []string // params[k] is field k+1
}

var branchSchemas = map[string]branchSchema{
	device.TypeCurrentSource: {10, []string{"i"}},
	device.TypeIdealDiode:    {11, []string{"vd"}},
	device.TypeRealDiode:     {12, []string{"is", "n", "vt"}},
	device.TypeResistor:      {13, []string{"r"}},
	device.TypeVoltageSource: {14, []string{"v"}},
	device.TypeZenerDiode:    {15, []string{"vzt", "rzt", "izt"}},
}

func branchByField(num protowire.Number) (string, branchSchema, bool) {
	for typ, s := range branchSchemas {
		if s.field == num {
			return typ, s, true
		}
	}
	return "", branchSchema{}, false
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

func appendMapEntry(b []byte, num protowire.Number, key string, value []byte) []byte {
	var entry []byte
	entry = appendString(entry, 1, key)
	entry = appendMessage(entry, 2, value)
	return appendMessage(b, num, entry)
}

func marshalBinary(doc *Document) ([]byte, error) {
	var b []byte
	b = appendString(b, 1, doc.Title)

	for _, v := range doc.Vertices {
		var m []byte
		m = appendString(m, 1, v.ID)
		if v.Voltage != nil {
			m = appendDouble(m, 2, *v.Voltage)
		}
		m = appendString(m, 3, v.Name)
		b = appendMapEntry(b, 2, keyOf(v.ID, v.Name), m)
	}

	for _, e := range doc.Edges {
		schema, ok := branchSchemas[e.Type]
		if !ok {
			return nil, fmt.Errorf("edge %s: type %q: %w", e.label(), e.Type, ErrSerialization)
		}
		var branch []byte
		for k, name := range schema.params {
			if v, ok := e.Params[name]; ok {
				branch = appendDouble(branch, protowire.Number(k+1), v)
			}
		}
		if unknownParams(schema, e.Params) {
			return nil, fmt.Errorf("edge %s: parameters %v do not fit %s: %w", e.label(), sortedKeys(e.Params), e.Type, ErrSerialization)
		}

		var m []byte
		m = appendString(m, 1, e.ID)
		m = appendString(m, 2, e.From)
		m = appendString(m, 3, e.To)
		if e.Current != nil {
			m = appendDouble(m, 4, *e.Current)
		}
		m = appendString(m, 5, e.Name)
		m = appendMessage(m, schema.field, branch)
		b = appendMapEntry(b, 3, keyOf(e.ID, e.Name), m)
	}

	if a := doc.Analysis; a != nil {
		var m []byte
		m = appendString(m, 1, string(a.Type))
		m = appendString(m, 2, a.Edge)
		m = appendString(m, 3, a.Param)
		m = appendDouble(m, 4, a.Start)
		m = appendDouble(m, 5, a.Stop)
		m = appendDouble(m, 6, a.Step)
		b = appendMessage(b, 4, m)
	}
	return b, nil
}

func keyOf(id, name string) string {
	if id != "" {
		return id
	}
	return name
}

func unknownParams(schema branchSchema, params map[string]float64) bool {
	for name := range params {
		found := false
		for _, p := range schema.params {
			if p == name {
				found = true
				break
			}
		}
		if !found {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type visitor func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// walk feeds every field of a message to visit, which returns how many bytes
// of b the field value took.
func walk(b []byte, visit visitor) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := visit(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	return protowire.ConsumeFieldValue(num, typ, b), nil
}

func wireType(num protowire.Number, got, want protowire.Type) error {
	if got != want {
		return fmt.Errorf("field %d: wire type %d, want %d", num, got, want)
	}
	return nil
}

func consumeString(num protowire.Number, typ protowire.Type, b []byte, dst *string) (int, error) {
	if err := wireType(num, typ, protowire.BytesType); err != nil {
		return 0, err
	}
	s, n := protowire.ConsumeString(b)
	*dst = s
	return n, nil
}

func consumeDouble(num protowire.Number, typ protowire.Type, b []byte, dst *float64) (int, error) {
	if err := wireType(num, typ, protowire.Fixed64Type); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeFixed64(b)
	*dst = math.Float64frombits(v)
	return n, nil
}

func consumeMessage(num protowire.Number, typ protowire.Type, b []byte, fn func([]byte) error) (int, error) {
	if err := wireType(num, typ, protowire.BytesType); err != nil {
		return 0, err
	}
	m, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	return n, fn(m)
}

// mapValue extracts the value message of a map entry.
func mapValue(entry []byte, fn func([]byte) error) error {
	return walk(entry, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 2 {
			return consumeMessage(num, typ, b, fn)
		}
		return skip(num, typ, b)
	})
}

func unmarshalBinary(data []byte) (*Document, error) {
	doc := &Document{}
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(num, typ, b, &doc.Title)
		case 2:
			return consumeMessage(num, typ, b, func(entry []byte) error {
				return mapValue(entry, func(m []byte) error {
					v, err := unmarshalVertex(m)
					doc.Vertices = append(doc.Vertices, v)
					return err
				})
			})
		case 3:
			return consumeMessage(num, typ, b, func(entry []byte) error {
				return mapValue(entry, func(m []byte) error {
					e, err := unmarshalEdge(m)
					doc.Edges = append(doc.Edges, e)
					return err
				})
			})
		case 4:
			return consumeMessage(num, typ, b, func(m []byte) error {
				a, err := unmarshalAnalysis(m)
				doc.Analysis = a
				return err
			})
		}
		return skip(num, typ, b)
	})
	if err != nil {
		return nil, fmt.Errorf("binary: %w: %v", ErrSerialization, err)
	}
	return doc, nil
}

func unmarshalVertex(m []byte) (VertexDoc, error) {
	var v VertexDoc
	err := walk(m, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(num, typ, b, &v.ID)
		case 2:
			v.Voltage = new(float64)
			return consumeDouble(num, typ, b, v.Voltage)
		case 3:
			return consumeString(num, typ, b, &v.Name)
		}
		return skip(num, typ, b)
	})
	return v, err
}

func unmarshalEdge(m []byte) (EdgeDoc, error) {
	var e EdgeDoc
	err := walk(m, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(num, typ, b, &e.ID)
		case 2:
			return consumeString(num, typ, b, &e.From)
		case 3:
			return consumeString(num, typ, b, &e.To)
		case 4:
			e.Current = new(float64)
			return consumeDouble(num, typ, b, e.Current)
		case 5:
			return consumeString(num, typ, b, &e.Name)
		}
		branchType, schema, ok := branchByField(num)
		if !ok {
			return skip(num, typ, b)
		}
		e.Type = branchType
		e.Params = make(map[string]float64)
		return consumeMessage(num, typ, b, func(bm []byte) error {
			return walk(bm, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				k := int(num) - 1
				if k < 0 || k >= len(schema.params) {
					return skip(num, typ, b)
				}
				var v float64
				n, err := consumeDouble(num, typ, b, &v)
				e.Params[schema.params[k]] = v
				return n, err
			})
		})
	})
	if err == nil && e.Type == "" {
		err = fmt.Errorf("edge %s: no branch", e.label())
	}
	return e, err
}

func unmarshalAnalysis(m []byte) (*AnalysisDoc, error) {
	a := &AnalysisDoc{}
	err := walk(m, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			var s string
			n, err := consumeString(num, typ, b, &s)
			a.Type = AnalysisType(s)
			return n, err
		case 2:
			return consumeString(num, typ, b, &a.Edge)
		case 3:
			return consumeString(num, typ, b, &a.Param)
		case 4:
			return consumeDouble(num, typ, b, &a.Start)
		case 5:
			return consumeDouble(num, typ, b, &a.Stop)
		case 6:
			return consumeDouble(num, typ, b, &a.Step)
		}
		return skip(num, typ, b)
	})
	return a, err
}
