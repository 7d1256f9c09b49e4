package dataset

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/airq/pkg/errors"
)

// Column names of the pollutant dataset.
const (
	ColTimestamp = "Timestamp"
	ColPM25      = "PM2.5"
	ColPM10      = "PM10"
	ColNO        = "NO"
	ColNO2       = "NO2"
	ColNOx       = "NOx"
	ColAQI       = "AQI"
)

// FeatureColumns are the model inputs in vector order.
var FeatureColumns = []string{ColPM25, ColPM10, ColNO, ColNO2, ColNOx}

// RequiredColumns must be present in every dataset.
var RequiredColumns = append(append([]string{}, FeatureColumns...), ColAQI)

// Observation is one complete, cleaned row.
type Observation struct {
	Timestamp string
	PM25      float64
	PM10      float64
	NO        float64
	NO2       float64
	NOx       float64
	AQI       float64
	Extra     map[string]float64
}

// Features returns the model inputs in FeatureColumns order.
func (o Observation) Features() []float64 {
	return []float64{o.PM25, o.PM10, o.NO, o.NO2, o.NOx}
}

// Get returns the value of a numeric column.
func (o Observation) Get(column string) (float64, bool) {
	switch column {
	case ColPM25:
		return o.PM25, true
	case ColPM10:
		return o.PM10, true
	case ColNO:
		return o.NO, true
	case ColNO2:
		return o.NO2, true
	case ColNOx:
		return o.NOx, true
	case ColAQI:
		return o.AQI, true
	}
	v, ok := o.Extra[column]
	return v, ok
}

// Table is a cleaned dataset. Every observation has a value for every
// numeric column.
type Table struct {
	HasTimestamp bool
	ExtraColumns []string
	Observations []Observation
}

// Len returns the number of observations.
func (t *Table) Len() int {
	return len(t.Observations)
}

// NumericColumns lists features, AQI, then extra columns.
func (t *Table) NumericColumns() []string {
	cols := append([]string{}, RequiredColumns...)
	return append(cols, t.ExtraColumns...)
}

// Column returns the values of a numeric column.
func (t *Table) Column(name string) ([]float64, bool) {
	if t.Len() == 0 {
		for _, c := range t.NumericColumns() {
			if c == name {
				return []float64{}, true
			}
		}
		return nil, false
	}
	out := make([]float64, t.Len())
	for i, o := range t.Observations {
		v, ok := o.Get(name)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// Matrices returns the n×5 feature matrix and the n×1 AQI target.
func (t *Table) Matrices() (X, y *mat.Dense, err error) {
	n := t.Len()
	if n == 0 {
		return nil, nil, errors.NewModelError("dataset.Matrices", "empty table", errors.ErrEmptyData)
	}
	X = mat.NewDense(n, len(FeatureColumns), nil)
	y = mat.NewDense(n, 1, nil)
	for i, o := range t.Observations {
		X.SetRow(i, o.Features())
		y.Set(i, 0, o.AQI)
	}
	return X, y, nil
}
