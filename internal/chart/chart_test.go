package chart

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/circuitsolver/pkg/api"
)

func sweep() *api.SweepResult {
	return &api.SweepResult{
		Edge:  "Vs",
		Param: "v",
		Names: []string{"I(r1)", "I(vs)", "SWEEP1", "V(gnd)", "V(out)"},
		Series: map[string][]float64{
			"SWEEP1": {0, 1, 2},
			"V(gnd)": {0, 0, 0},
			"V(out)": {0, 0.6, 1.2},
			"I(r1)":  {0, 0.2, 0.4},
			"I(vs)":  {0, 0.2, 0.4},
		},
	}
}

func TestSelected(t *testing.T) {
	names, err := Selected(sweep(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"V(gnd)", "V(out)"}, names)

	names, err = Selected(sweep(), []string{"I(r1)"})
	require.NoError(t, err)
	assert.Equal(t, []string{"I(r1)"}, names)

	_, err = Selected(sweep(), []string{"V(missing)"})
	assert.Error(t, err)
}

func TestWritePNG(t *testing.T) {
	p, err := Sweep("divider", sweep(), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, p, "png"))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
}

func TestSaveSVG(t *testing.T) {
	p, err := Sweep("divider", sweep(), []string{"V(out)", "I(r1)"})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sweep.svg")
	require.NoError(t, Save(path, p))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")

	assert.Error(t, Save(filepath.Join(t.TempDir(), "sweep"), p))
}

func TestSweepErrors(t *testing.T) {
	res := sweep()
	res.Series["V(out)"] = res.Series["V(out)"][:2]
	_, err := Sweep("short", res, []string{"V(out)"})
	assert.Error(t, err)

	empty := &api.SweepResult{Series: map[string][]float64{"SWEEP1": {0}}}
	_, err = Sweep("empty", empty, nil)
	assert.Error(t, err)
}
