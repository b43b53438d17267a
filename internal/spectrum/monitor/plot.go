package monitor

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/distance.spectrum/internal/spectrum"
)

var seriesColors = map[string]color.Color{
	"baseline":     color.RGBA{R: 51, G: 51, B: 255, A: 255},
	"experimental": color.RGBA{R: 204, G: 0, B: 0, A: 255},
	"diff":         color.RGBA{R: 0, G: 153, B: 0, A: 255},
}

// NewPlot draws the baseline, experimental and diff series of c as step
// lines, each slot held flat from its start to the next slot.
func NewPlot(c *spectrum.DiffCollector) (*plot.Plot, error) {
	base, exp, diff := c.BaselineSeries(), c.ExperimentalSeries(), c.DiffSeries()

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Distance spectrum (baseline %.0f%%, experimental %.0f%%)",
		100*base.Progress, 100*exp.Progress)
	p.X.Label.Text = "Distance"
	p.Y.Label.Text = "Fraction of pairs"
	p.Add(plotter.NewGrid())

	for _, s := range []struct {
		name string
		snap spectrum.SeriesSnapshot
	}{
		{"baseline", base},
		{"experimental", exp},
		{"diff", diff},
	} {
		if s.snap.Len() == 0 {
			continue
		}
		line, err := plotter.NewLine(s.snap.Points)
		if err != nil {
			return nil, fmt.Errorf("%s line: %w", s.name, err)
		}
		line.StepStyle = plotter.PostStep
		line.Color = seriesColors[s.name]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// WritePNG saves the current series of c to path. The format follows the
// file extension, as plot.Save does.
func WritePNG(c *spectrum.DiffCollector, path string, w, h vg.Length) error {
	p, err := NewPlot(c)
	if err != nil {
		return err
	}
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("save spectrum plot: %w", err)
	}
	return nil
}
