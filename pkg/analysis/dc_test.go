package analysis

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/circuitsolver/pkg/circuit"
)

type dividerTemplate struct {
	t     *testing.T
	built []*circuit.Graph
}

func (d *dividerTemplate) Instantiate(edge, param string, value float64) (*circuit.Graph, error) {
	if edge != "vs" || param != "v" {
		return nil, fmt.Errorf("no parameter %s on %s", param, edge)
	}
	g := divider(d.t, value)
	d.built = append(d.built, g)
	return g, nil
}

func TestDCSweepValues(t *testing.T) {
	dc, err := NewDCSweep("vs", "v", 0, 1, 0.25)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, dc.SweepValues())

	dc, err = NewDCSweep("vs", "v", 1, -1, -1)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, -1}, dc.SweepValues())

	_, err = NewDCSweep("vs", "v", 0, 1, 0)
	assert.Error(t, err)
	_, err = NewDCSweep("vs", "v", 0, 1, -0.5)
	assert.Error(t, err)
}

func TestDCSweepPointLimit(t *testing.T) {
	_, err := NewDCSweep("vs", "v", 0, 1, 1e-12)
	require.ErrorIs(t, err, ErrSweepTooLarge)

	cfg := testConfig()
	cfg.MaxSweepPoints = 5
	dc, err := NewDCSweep("vs", "v", 0, 1, 0.25, WithConfig(cfg))
	require.NoError(t, err)
	assert.Len(t, dc.SweepValues(), 5)
	_, err = NewDCSweep("vs", "v", 0, 1, 0.2, WithConfig(cfg))
	assert.ErrorIs(t, err, ErrSweepTooLarge)

	_, err = NewDCSweep("vs", "v", math.Inf(-1), 1, 1)
	assert.Error(t, err)
	_, err = NewDCSweep("vs", "v", 0, math.NaN(), 1)
	assert.Error(t, err)
}

func TestDCSweepDivider(t *testing.T) {
	tmpl := &dividerTemplate{t: t}
	dc, err := NewDCSweep("vs", "v", 1, 5, 2, WithConfig(testConfig()), WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, dc.Setup(tmpl))
	require.NoError(t, dc.Execute(context.Background()))

	res := dc.GetResults()
	assert.Equal(t, []float64{1, 3, 5}, res["SWEEP1"])
	require.Len(t, res["V(v2)"], 3)
	for i, v := range []float64{1, 3, 5} {
		assert.InEpsilon(t, v*0.6, res["V(v2)"][i], 1e-4)
		assert.InEpsilon(t, v/5, res["I(r2)"][i], 1e-4)
	}
	for _, g := range tmpl.built[1:] {
		assert.True(t, g.Solved())
	}
	assert.Contains(t, dc.ResultNames(), "SWEEP1")
}

func TestDCSweepSetupErrors(t *testing.T) {
	dc, err := NewDCSweep("rx", "v", 0, 1, 1, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Error(t, dc.Setup(&dividerTemplate{t: t}))
	assert.Error(t, dc.Setup(nil))
	assert.Error(t, dc.Execute(context.Background()))
}
