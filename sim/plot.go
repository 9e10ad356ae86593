package sim

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// NewSeriesPlot creates new plot of a single series against time from the following data sources:
// observed: observed values; NaN values are missing and are not plotted
// filtered: filtered values
// smoothed: smoothed values
// draws:    simulation smoother draws
// It returns error if the plot fails to be created. This can be due to either of the following conditions:
// * either of the supplied data slices is empty
// * the supplied data slices differ in length
// * gonum plot fails to be created
func NewSeriesPlot(title string, observed, filtered, smoothed []float64, draws ...[]float64) (*plot.Plot, error) {
	n := len(observed)
	if n == 0 {
		return nil, fmt.Errorf("invalid data supplied")
	}

	for _, s := range append([][]float64{filtered, smoothed}, draws...) {
		if len(s) != n {
			return nil, fmt.Errorf("invalid data dimensions: %d, expected %d", len(s), n)
		}
	}

	p := plot.New()

	p.Title.Text = title
	p.X.Label.Text = "t"
	p.Y.Label.Text = "value"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	// draws go first so the estimates are drawn on top of them
	for i, d := range draws {
		line, err := plotter.NewLine(makePoints(d))
		if err != nil {
			return nil, fmt.Errorf("failed to create line: %v", err)
		}
		line.LineStyle.Color = color.RGBA{R: 169, G: 169, B: 169, A: 96}
		line.LineStyle.Width = vg.Points(0.5)

		p.Add(line)
		if i == 0 {
			p.Legend.Add("simulated", line)
		}
	}

	// Make a scatter plotter for observed data
	if obsData := makePoints(observed); len(obsData) > 0 {
		obsScatter, err := plotter.NewScatter(obsData)
		if err != nil {
			return nil, fmt.Errorf("failed to create scatter: %v", err)
		}
		obsScatter.GlyphStyle.Color = color.RGBA{G: 128, A: 255}
		obsScatter.Shape = draw.CrossGlyph{}
		obsScatter.GlyphStyle.Radius = vg.Points(3)

		p.Add(obsScatter)
		p.Legend.Add("observed", obsScatter)
	}

	// Make a line plotter for filtered data
	filterLine, err := plotter.NewLine(makePoints(filtered))
	if err != nil {
		return nil, fmt.Errorf("failed to create line: %v", err)
	}
	filterLine.LineStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
	filterLine.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(filterLine)
	p.Legend.Add("filtered", filterLine)

	// Make a line plotter for smoothed data
	smoothLine, err := plotter.NewLine(makePoints(smoothed))
	if err != nil {
		return nil, fmt.Errorf("failed to create line: %v", err)
	}
	smoothLine.LineStyle.Color = color.RGBA{B: 255, A: 255}
	smoothLine.LineStyle.Width = vg.Points(1.5)

	p.Add(smoothLine)
	p.Legend.Add("smoothed", smoothLine)

	return p, nil
}

// makePoints returns points (t, v[t]) skipping NaN values
func makePoints(v []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(v))
	for t, y := range v {
		if math.IsNaN(y) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(t), Y: y})
	}

	return pts
}
