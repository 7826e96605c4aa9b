package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edp1096/circuitsolver/pkg/netlist"
)

func TestDocumentResults(t *testing.T) {
	five, half := 5.0, 0.5
	doc := &netlist.Document{
		Vertices: []netlist.VertexDoc{
			{Name: "a", Voltage: &five},
			{ID: "0b3c6f1e-4a1d-4a5e-9c41-0d1f7b2e8a10"},
		},
		Edges: []netlist.EdgeDoc{
			{Name: "r1", Current: &half},
			{Name: "d1"},
		},
	}

	results := documentResults(doc)
	assert.Equal(t, map[string][]float64{
		"V(a)":  {5},
		"I(r1)": {0.5},
	}, results)

	volts, amps := splitNames(results)
	assert.Equal(t, []string{"V(a)"}, volts)
	assert.Equal(t, []string{"I(r1)"}, amps)
}
