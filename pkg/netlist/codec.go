package netlist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
	FormatBinary Format = "binary"
	FormatSPICE  Format = "spice"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "binary", "bin", "pb", "proto":
		return FormatBinary, nil
	case "spice", "cir", "net", "sp":
		return FormatSPICE, nil
	}
	return "", fmt.Errorf("unknown format %q: %w", s, ErrSerialization)
}

// FormatFromPath guesses the format from a file extension, falling back to
// SPICE netlists.
func FormatFromPath(path string) Format {
	if f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), ".")); err == nil {
		return f
	}
	return FormatSPICE
}

func Decode(format Format, data []byte) (*Document, error) {
	var (
		doc *Document
		err error
	)
	switch format {
	case FormatJSON:
		doc = &Document{}
		if err = json.Unmarshal(data, doc); err != nil {
			err = fmt.Errorf("json: %w: %v", ErrSerialization, err)
		}
	case FormatYAML:
		doc = &Document{}
		if err = yaml.Unmarshal(data, doc); err != nil {
			err = fmt.Errorf("yaml: %w: %v", ErrSerialization, err)
		}
	case FormatBinary:
		doc, err = unmarshalBinary(data)
	case FormatSPICE:
		doc, err = Parse(string(data))
	default:
		err = fmt.Errorf("unknown format %q: %w", format, ErrSerialization)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func Encode(format Format, doc *Document) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("json: %w: %v", ErrSerialization, err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("yaml: %w: %v", ErrSerialization, err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("yaml: %w: %v", ErrSerialization, err)
		}
		return buf.Bytes(), nil
	case FormatBinary:
		return marshalBinary(doc)
	case FormatSPICE:
		return Write(doc)
	}
	return nil, fmt.Errorf("unknown format %q: %w", format, ErrSerialization)
}
