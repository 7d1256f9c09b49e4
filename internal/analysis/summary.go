// Package analysis computes descriptive statistics and charts for cleaned
// pollutant tables.
package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/airq/internal/advisory"
	"github.com/YuminosukeSato/airq/internal/dataset"
	"github.com/YuminosukeSato/airq/pkg/errors"
)

// ColumnStats describes one numeric column. Std is the sample standard
// deviation. Quartiles are empirical quantiles (no interpolation).
type ColumnStats struct {
	Column  string  `json:"column"`
	Count   int     `json:"count"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
	Min     float64 `json:"min"`
	Q1      float64 `json:"q1"`
	Median  float64 `json:"median"`
	Q3      float64 `json:"q3"`
	Max     float64 `json:"max"`
	CorrAQI float64 `json:"corr_aqi"` // Pearson correlation with AQI, 0 for constant columns
}

// BandCount is how many observed AQI values fall into a band.
type BandCount struct {
	Key   string        `json:"key"`
	Label string        `json:"label"`
	Tone  advisory.Tone `json:"tone"`
	Count int           `json:"count"`
	Share float64       `json:"share"`
}

// Summary is the statistical profile of a table.
type Summary struct {
	Rows    int           `json:"rows"`
	Columns []ColumnStats `json:"columns"`
	Bands   []BandCount   `json:"bands"`
}

// Summarize profiles every numeric column of t and the distribution of its
// AQI values over the advisory bands.
func Summarize(t *dataset.Table) (*Summary, error) {
	if t == nil || t.Len() == 0 {
		return nil, errors.NewModelError("analysis.Summarize", "empty table", errors.ErrEmptyData)
	}
	aqi, _ := t.Column(dataset.ColAQI)

	s := &Summary{Rows: t.Len()}
	for _, name := range t.NumericColumns() {
		values, ok := t.Column(name)
		if !ok {
			return nil, errors.Newf("analysis.Summarize: column %q not in table", name)
		}
		s.Columns = append(s.Columns, describe(name, values, aqi))
	}
	s.Bands = bandDistribution(aqi)
	return s, nil
}

// Column returns the stats for name.
func (s *Summary) Column(name string) (ColumnStats, bool) {
	for _, c := range s.Columns {
		if c.Column == name {
			return c, true
		}
	}
	return ColumnStats{}, false
}

func describe(name string, values, aqi []float64) ColumnStats {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mean, std := stat.MeanStdDev(values, nil)
	if len(values) < 2 {
		std = 0
	}
	return ColumnStats{
		Column:  name,
		Count:   len(values),
		Mean:    mean,
		Std:     std,
		Min:     floats.Min(values),
		Q1:      stat.Quantile(0.25, stat.Empirical, sorted, nil),
		Median:  stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Q3:      stat.Quantile(0.75, stat.Empirical, sorted, nil),
		Max:     floats.Max(values),
		CorrAQI: correlation(values, aqi),
	}
}

// correlation is Pearson's r, defined as 0 when either side is constant.
// A column is constant only when all its values are equal.
func correlation(x, y []float64) float64 {
	if len(x) < 2 || constant(x) || constant(y) {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

func constant(v []float64) bool {
	return floats.Min(v) == floats.Max(v)
}

func bandDistribution(aqi []float64) []BandCount {
	counts := make([]int, len(advisory.Bands))
	for _, v := range aqi {
		counts[advisory.Classify(v).Level]++
	}
	out := make([]BandCount, len(advisory.Bands))
	for i, b := range advisory.Bands {
		out[i] = BandCount{
			Key:   b.Key,
			Label: b.Label,
			Tone:  b.Tone,
			Count: counts[i],
			Share: errors.SafeDivide(float64(counts[i]), float64(len(aqi))),
		}
	}
	return out
}
