// Package chart draws DC sweep results.
package chart

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	_ "gonum.org/v1/plot/vg/vgimg"
	_ "gonum.org/v1/plot/vg/vgsvg"

	"github.com/edp1096/circuitsolver/pkg/api"
)

const (
	width  = 6 * vg.Inch
	height = 4 * vg.Inch
)

// Selected picks the series to draw. An empty selection means every node
// voltage.
func Selected(res *api.SweepResult, names []string) ([]string, error) {
	if len(names) == 0 {
		for _, name := range res.Names {
			if strings.HasPrefix(name, "V(") {
				names = append(names, name)
			}
		}
		return names, nil
	}
	for _, name := range names {
		if _, ok := res.Series[name]; !ok {
			return nil, fmt.Errorf("no series %q in sweep", name)
		}
	}
	return names, nil
}

// Sweep plots the selected series against the swept value.
func Sweep(title string, res *api.SweepResult, names []string) (*plot.Plot, error) {
	names, err := Selected(res, names)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("nothing to plot")
	}

	x := res.Series["SWEEP1"]
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = fmt.Sprintf("%s.%s", res.Edge, res.Param)
	p.Y.Label.Text = "value"
	p.Add(plotter.NewGrid())

	var lines []any
	for _, name := range names {
		y := res.Series[name]
		if len(y) != len(x) {
			return nil, fmt.Errorf("series %s has %d points, sweep has %d", name, len(y), len(x))
		}
		xys := make(plotter.XYs, len(x))
		for i := range x {
			xys[i].X = x[i]
			xys[i].Y = y[i]
		}
		lines = append(lines, name, xys)
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return nil, err
	}
	p.Legend.Top = true
	return p, nil
}

// Write renders the plot as png, jpg, tif or svg.
func Write(w io.Writer, p *plot.Plot, format string) error {
	wt, err := p.WriterTo(width, height, format)
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// Save renders the plot to a file, taking the format from its extension.
func Save(path string, p *plot.Plot) error {
	if filepath.Ext(path) == "" {
		return fmt.Errorf("plot file %s needs an extension", path)
	}
	return p.Save(width, height, path)
}
