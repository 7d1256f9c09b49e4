package analysis

import (
	"bytes"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/YuminosukeSato/airq/internal/aqi"
	"github.com/YuminosukeSato/airq/internal/dataset"
	"github.com/YuminosukeSato/airq/pkg/errors"
)

const (
	chartWidth  = 8 * vg.Inch
	chartHeight = 5 * vg.Inch
	histBins    = 30
)

var barColor = color.RGBA{R: 70, G: 130, B: 180, A: 255}

// AQIHistogram renders the distribution of observed AQI values as PNG.
func AQIHistogram(t *dataset.Table) ([]byte, error) {
	if t == nil || t.Len() == 0 {
		return nil, errors.NewModelError("analysis.AQIHistogram", "empty table", errors.ErrEmptyData)
	}
	values, _ := t.Column(dataset.ColAQI)

	p := plot.New()
	p.Title.Text = "AQI distribution"
	p.X.Label.Text = "AQI"
	p.Y.Label.Text = "Observations"

	hist, err := plotter.NewHist(plotter.Values(values), histBins)
	if err != nil {
		return nil, errors.Wrap(err, "build AQI histogram")
	}
	hist.FillColor = barColor
	hist.LineStyle.Width = vg.Length(0)
	p.Add(hist)
	p.Add(plotter.NewGrid())

	return render(p)
}

// ScatterChart renders column against AQI as PNG.
func ScatterChart(t *dataset.Table, column string) ([]byte, error) {
	if t == nil || t.Len() == 0 {
		return nil, errors.NewModelError("analysis.ScatterChart", "empty table", errors.ErrEmptyData)
	}
	xs, ok := t.Column(column)
	if !ok {
		return nil, errors.NewValidationError("column", "unknown column", column)
	}
	ys, _ := t.Column(dataset.ColAQI)

	points := make(plotter.XYs, len(xs))
	for i := range xs {
		points[i].X = xs[i]
		points[i].Y = ys[i]
	}

	p := plot.New()
	p.Title.Text = column + " vs AQI"
	p.X.Label.Text = column
	p.Y.Label.Text = "AQI"

	scatter, err := plotter.NewScatter(points)
	if err != nil {
		return nil, errors.Wrap(err, "build scatter")
	}
	scatter.GlyphStyle.Color = barColor
	scatter.GlyphStyle.Radius = vg.Points(1.5)
	p.Add(scatter)
	p.Add(plotter.NewGrid())

	return render(p)
}

// FeatureImportanceChart renders the forest's feature importances as a PNG
// bar chart.
func FeatureImportanceChart(importances []aqi.Importance) ([]byte, error) {
	if len(importances) == 0 {
		return nil, errors.NewModelError("analysis.FeatureImportanceChart", "no importances", errors.ErrEmptyData)
	}
	values := make(plotter.Values, len(importances))
	labels := make([]string, len(importances))
	for i, imp := range importances {
		values[i] = imp.Value
		labels[i] = imp.Feature
	}

	p := plot.New()
	p.Title.Text = "Feature importance"
	p.Y.Label.Text = "Mean impurity decrease"

	bars, err := plotter.NewBarChart(values, vg.Points(30))
	if err != nil {
		return nil, errors.Wrap(err, "build importance chart")
	}
	bars.Color = barColor
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(labels...)
	p.X.Tick.Label.Rotation = math.Pi / 6
	p.X.Tick.Label.XAlign = draw.XRight
	p.Y.Min = 0

	return render(p)
}

func render(p *plot.Plot) ([]byte, error) {
	w, err := p.WriterTo(chartWidth, chartHeight, "png")
	if err != nil {
		return nil, errors.Wrap(err, "create png writer")
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(err, "render png")
	}
	return buf.Bytes(), nil
}
