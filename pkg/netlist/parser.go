package netlist

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/edp1096/circuitsolver/pkg/device"
)

type Element struct {
	Type   string            // Part type (R, V, I, D)
	Name   string            // Part name
	Nodes  []string          // Node names
	Value  float64           // Part value
	Params map[string]string // Parameter values
}

var unitMap = map[string]float64{
	"T":   1e12,  // tera
	"G":   1e9,   // giga
	"meg": 1e6,   // mega
	"K":   1e3,   // kilo
	"k":   1e3,   // kilo
	"M":   1e-3,  // milli
	"m":   1e-3,  // milli
	"u":   1e-6,  // micro
	"n":   1e-9,  // nano
	"p":   1e-12, // pico
	"f":   1e-15, // femto
}

var (
	valueRe   = regexp.MustCompile(`^([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)((?i:meg)|[TGMKkmunpf])?[a-zA-Z]*$`)
	spaceRe   = regexp.MustCompile(`\s+`)
	commentRe = regexp.MustCompile(`\*.*$`)
)

// Model types a .model card may declare, and the device each one builds.
var modelTypes = map[string]string{
	"D":     device.TypeRealDiode,
	"IDEAL": device.TypeIdealDiode,
	"ZENER": device.TypeZenerDiode,
}

type netlistData struct {
	title    string
	elements []Element
	nodes    []string // in order of first use
	seen     map[string]bool
	pins     map[string]float64
	models   map[string]device.ModelParam
	analysis *AnalysisDoc
}

func (n *netlistData) addNode(name string) {
	if !n.seen[name] {
		n.seen[name] = true
		n.nodes = append(n.nodes, name)
	}
}

// Parse reads a SPICE style netlist. The first line is the title. Lines
// starting with + continue the previous line and * starts a comment.
//
// Besides R, V, I and D elements it understands .model cards of type D,
// IDEAL and ZENER, .op, .dc and .pin <node> <voltage>, which holds a node at a
// fixed voltage. Nodes 0 and gnd are pinned at 0 V.
func Parse(input string) (*Document, error) {
	scanner := bufio.NewScanner(strings.NewReader(input))
	data := &netlistData{
		seen:   make(map[string]bool),
		pins:   make(map[string]float64),
		models: make(map[string]device.ModelParam),
	}

	// Title or comment
	if scanner.Scan() {
		data.title = strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "*"))
	}

	var currentLine string
	flush := func() error {
		if currentLine == "" {
			return nil
		}
		err := parseLine(data, currentLine)
		currentLine = ""
		return err
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if idx := strings.Index(line, "*"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if len(line) == 0 {
			continue
		}

		if strings.HasPrefix(line, "+") {
			if currentLine == "" {
				return nil, fmt.Errorf("continuation without a line: %w", ErrSerialization)
			}
			currentLine += " " + strings.TrimSpace(line[1:])
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}
		if strings.EqualFold(line, ".end") {
			break
		}
		currentLine = line
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading netlist: %w: %v", ErrSerialization, err)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return data.document()
}

func parseLine(data *netlistData, line string) error {
	line = spaceRe.ReplaceAllString(line, " ")

	if strings.HasPrefix(line, ".") {
		return parseDotOperator(data, line)
	}

	element, err := parseElement(line)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	data.elements = append(data.elements, *element)
	for _, node := range element.Nodes {
		data.addNode(node)
	}
	return nil
}

// Parse .model, .op, .dc, .pin
func parseDotOperator(data *netlistData, line string) error {
	fields := strings.Fields(line)

	switch strings.ToLower(fields[0]) {
	case ".model":
		return parseModel(data, fields[1:])

	case ".op":
		data.analysis = &AnalysisDoc{Type: AnalysisOP}

	case ".dc":
		if len(fields) < 5 {
			return fmt.Errorf("insufficient DC sweep parameters: %w", ErrSerialization)
		}
		a := &AnalysisDoc{Type: AnalysisDC, Edge: fields[1]}
		for i, dst := range []*float64{&a.Start, &a.Stop, &a.Step} {
			v, err := ParseValue(fields[2+i])
			if err != nil {
				return fmt.Errorf("invalid sweep value %q: %w: %v", fields[2+i], ErrSerialization, err)
			}
			*dst = v
		}
		data.analysis = a

	case ".pin":
		if len(fields) != 3 {
			return fmt.Errorf(".pin needs a node and a voltage: %w", ErrSerialization)
		}
		v, err := ParseValue(fields[2])
		if err != nil {
			return fmt.Errorf("invalid pin voltage %q: %w: %v", fields[2], ErrSerialization, err)
		}
		data.pins[fields[1]] = v
		data.addNode(fields[1])

	default:
		return fmt.Errorf("unsupported analysis type: %s: %w", fields[0], ErrSerialization)
	}

	return nil
}

func parseModel(data *netlistData, fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("insufficient model parameters: %w", ErrSerialization)
	}

	modelName := fields[0]
	rest := strings.Join(fields[1:], " ")
	typeField, paramStr, _ := strings.Cut(rest, "(")
	if !strings.Contains(rest, "(") {
		typeField, paramStr, _ = strings.Cut(rest, " ")
	}
	modelType := strings.ToUpper(strings.TrimSpace(typeField))

	typ, ok := modelTypes[modelType]
	if !ok {
		return fmt.Errorf("unsupported model type: %s: %w", modelType, ErrSerialization)
	}

	paramStr = commentRe.ReplaceAllString(paramStr, "")
	paramStr = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(paramStr), ")"))

	// Parameters the device has no use for, such as junction capacitances,
	// are dropped.
	defaults := device.Defaults(typ)
	params := make(map[string]float64)
	for _, pair := range strings.Fields(paramStr) {
		name, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if _, used := defaults[name]; !used {
			continue
		}
		v, err := ParseValue(value)
		if err != nil {
			return fmt.Errorf("invalid parameter value %s: %w: %v", pair, ErrSerialization, err)
		}
		params[name] = v
	}

	data.models[modelName] = device.ModelParam{
		Type:   typ,
		Name:   modelName,
		Params: params,
	}
	return nil
}

// Parse circuit element
func parseElement(line string) (*Element, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, fmt.Errorf("invalid element format: %s", line)
	}

	elem := &Element{
		Name:   fields[0],
		Type:   strings.ToUpper(string(fields[0][0])),
		Nodes:  fields[1:3],
		Params: make(map[string]string),
	}

	switch elem.Type {
	case "R":
		if len(fields) != 4 {
			return nil, fmt.Errorf("resistor %s needs two nodes and a value", elem.Name)
		}
		value, err := ParseValue(fields[3])
		if err != nil {
			return nil, err
		}
		elem.Value = value

	case "V", "I":
		return parseSource(elem, fields[3:])

	case "D":
		if len(fields) > 3 {
			elem.Params["model"] = fields[3]
		}

	default:
		return nil, fmt.Errorf("unsupported element %s", elem.Name)
	}
	return elem, nil
}

func parseSource(elem *Element, words []string) (*Element, error) {
	if len(words) == 0 {
		return nil, fmt.Errorf("missing value of source %s", elem.Name)
	}
	if strings.EqualFold(words[0], "DC") {
		words = words[1:]
		if len(words) == 0 {
			return nil, fmt.Errorf("missing DC value")
		}
	}
	if len(words) != 1 {
		return nil, fmt.Errorf("unsupported source %s: only DC sources are solved", elem.Name)
	}
	value, err := ParseValue(words[0])
	if err != nil {
		return nil, err
	}
	elem.Value = value
	return elem, nil
}

// ParseValue - Parse value and factor. 1k -> 1000
func ParseValue(val string) (float64, error) {
	matches := valueRe.FindStringSubmatch(strings.TrimSpace(val))
	if matches == nil {
		return 0, fmt.Errorf("invalid value format: %s", val)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, err
	}

	// factor
	if suffix := matches[2]; suffix != "" {
		if strings.EqualFold(suffix, "meg") {
			suffix = "meg"
		}
		num *= unitMap[suffix]
	}

	return num, nil
}

func isGround(node string) bool {
	return node == "0" || strings.EqualFold(node, "gnd")
}

// nodeID maps a node name to its vertex id. Nodes written as a uuid keep it.
func nodeID(node string) (id, name string) {
	if u, err := uuid.Parse(node); err == nil && len(node) == 36 {
		return u.String(), ""
	}
	u, _ := vertexID("", node)
	return u.String(), node
}

func (n *netlistData) document() (*Document, error) {
	doc := &Document{Title: n.title, Analysis: n.analysis}

	ids := make(map[string]string, len(n.nodes))
	for _, node := range n.nodes {
		id, name := nodeID(node)
		ids[node] = id
		vd := VertexDoc{ID: id, Name: name}
		if v, ok := n.pins[node]; ok {
			vd.Voltage = ptr(v)
		} else if isGround(node) {
			vd.Voltage = ptr(0)
		}
		doc.Vertices = append(doc.Vertices, vd)
	}

	for _, elem := range n.elements {
		eid, _ := edgeID("", elem.Name)
		ed := EdgeDoc{ID: eid.String(), Name: elem.Name}
		a, b := ids[elem.Nodes[0]], ids[elem.Nodes[1]]

		switch elem.Type {
		case "R":
			ed.Type, ed.From, ed.To = device.TypeResistor, a, b
			ed.Params = map[string]float64{"r": elem.Value}
		case "V":
			// the source raises the voltage from its negative node to its
			// positive node
			ed.Type, ed.From, ed.To = device.TypeVoltageSource, b, a
			ed.Params = map[string]float64{"v": elem.Value}
		case "I":
			ed.Type, ed.From, ed.To = device.TypeCurrentSource, a, b
			ed.Params = map[string]float64{"i": elem.Value}
		case "D":
			ed.Type, ed.From, ed.To = device.TypeRealDiode, a, b
			if modelName, ok := elem.Params["model"]; ok {
				model, exists := n.models[modelName]
				if !exists {
					return nil, fmt.Errorf("undefined model for diode %s: %s: %w", elem.Name, modelName, ErrSerialization)
				}
				ed.Type = model.Type
				ed.Params = make(map[string]float64, len(model.Params))
				for k, v := range model.Params {
					ed.Params[k] = v
				}
			}
		}
		doc.Edges = append(doc.Edges, ed)
	}

	if a := doc.Analysis; a != nil && a.Type == AnalysisDC {
		param, ok := sweepParams[strings.ToUpper(a.Edge[:1])]
		if !ok {
			return nil, fmt.Errorf("cannot sweep %s: %w", a.Edge, ErrSerialization)
		}
		a.Param = param
		found := false
		for _, elem := range n.elements {
			found = found || elem.Name == a.Edge
		}
		if !found {
			return nil, fmt.Errorf("source %s not found: %w", a.Edge, ErrSerialization)
		}
	}
	return doc, nil
}

// sweepParams is the parameter a .dc sweep varies per element letter.
var sweepParams = map[string]string{
	"V": "v",
	"I": "i",
	"R": "r",
}
