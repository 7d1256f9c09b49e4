// Package aqi trains the AQI regressor and serves predictions from it.
package aqi

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/airq/core/model"
	"github.com/YuminosukeSato/airq/internal/dataset"
	"github.com/YuminosukeSato/airq/metrics"
	"github.com/YuminosukeSato/airq/pkg/errors"
	"github.com/YuminosukeSato/airq/preprocessing"
	"github.com/YuminosukeSato/airq/sklearn/ensemble"
)

// Bundle is a fitted scaler and forest pair plus training metadata. A Bundle
// is never mutated after Train returns it, so it may be shared freely.
type Bundle struct {
	Version   uuid.UUID
	TrainedAt time.Time
	Duration  time.Duration

	Features []string
	Scaler   *preprocessing.StandardScaler
	Forest   *ensemble.RandomForestRegressor

	Rows      int
	Dropped   int
	TargetMin float64
	TargetMax float64
	InSample  metrics.Report
}

// PredictVector scales x with the stored scaler parameters and returns the
// forest's mean prediction.
func (b *Bundle) PredictVector(x []float64) (float64, error) {
	if b == nil || b.Scaler == nil || b.Forest == nil || !b.Forest.IsFitted() {
		return 0, errors.NewNotFittedError("aqi.Bundle", "Predict")
	}
	if len(x) != len(b.Features) {
		return 0, errors.NewInputShapeError("prediction", []int{len(b.Features)}, []int{len(x)})
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, errors.NewValidationError(b.Features[i], "must be a finite number", v)
		}
	}

	scaled := make([]float64, len(x))
	if err := b.Scaler.TransformRow(scaled, x); err != nil {
		return 0, err
	}
	y, err := b.Forest.PredictRow(scaled)
	if err != nil {
		return 0, err
	}
	if err := errors.CheckScalar("aqi.Predict", y, 0); err != nil {
		return 0, err
	}
	return y, nil
}

// Predict is PredictVector for named features.
func (b *Bundle) Predict(f Features) (float64, error) {
	return b.PredictVector(f.Vector())
}

// Importance is the share of the forest's impurity decrease attributed to
// one feature.
type Importance struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// Importances returns the forest's feature importances in feature order.
func (b *Bundle) Importances() []Importance {
	values := b.Forest.GetFeatureImportances()
	out := make([]Importance, 0, len(values))
	for i, v := range values {
		if i >= len(b.Features) {
			break
		}
		out = append(out, Importance{Feature: b.Features[i], Value: v})
	}
	return out
}

// Info is the JSON view of a bundle.
type Info struct {
	Version     string                 `json:"version"`
	TrainedAt   time.Time              `json:"trained_at"`
	DurationMs  int64                  `json:"duration_ms"`
	Features    []string               `json:"features"`
	Rows        int                    `json:"rows"`
	Dropped     int                    `json:"dropped"`
	TargetMin   float64                `json:"target_min"`
	TargetMax   float64                `json:"target_max"`
	InSample    metrics.Report         `json:"in_sample"`
	Params      map[string]interface{} `json:"params"`
	Importances []Importance           `json:"importances"`
}

// Info summarizes the bundle.
func (b *Bundle) Info() Info {
	return Info{
		Version:     b.Version.String(),
		TrainedAt:   b.TrainedAt,
		DurationMs:  b.Duration.Milliseconds(),
		Features:    append([]string(nil), b.Features...),
		Rows:        b.Rows,
		Dropped:     b.Dropped,
		TargetMin:   b.TargetMin,
		TargetMax:   b.TargetMax,
		InSample:    b.InSample,
		Params:      b.Forest.GetParams(),
		Importances: b.Importances(),
	}
}

// Save writes the bundle to path as a gob snapshot.
func (b *Bundle) Save(path string) error {
	return model.SaveModel(b, path)
}

// LoadBundle reads a snapshot written by Save.
func LoadBundle(path string) (*Bundle, error) {
	var b Bundle
	if err := model.LoadModel(&b, path); err != nil {
		return nil, err
	}
	if b.Scaler == nil || b.Forest == nil || !b.Forest.IsFitted() || !b.Scaler.IsFitted() {
		return nil, errors.NewModelError("aqi.LoadBundle", "incomplete snapshot", errors.ErrEmptyData)
	}
	if err := b.checkShape(); err != nil {
		return nil, errors.NewModelError("aqi.LoadBundle", "snapshot does not match the feature columns", err)
	}
	return &b, nil
}

// checkShape verifies that the bundle was fitted on dataset.FeatureColumns
// in order.
func (b *Bundle) checkShape() error {
	want := len(dataset.FeatureColumns)
	got := []int{len(b.Features), b.Scaler.NFeatures(), b.Forest.NFeatures()}
	for _, n := range got {
		if n != want {
			return errors.NewInputShapeError("snapshot", []int{want, want, want}, got)
		}
	}
	for i, name := range dataset.FeatureColumns {
		if b.Features[i] != name {
			return errors.NewValidationError("features", "must be "+strings.Join(dataset.FeatureColumns, ", "), b.Features)
		}
	}
	return nil
}
