package aqi

import (
	"math"

	"github.com/YuminosukeSato/airq/internal/dataset"
	"github.com/YuminosukeSato/airq/pkg/errors"
)

// Features are the pollutant concentrations the model consumes.
type Features struct {
	PM25 float64 `json:"pm25" form:"pm25"`
	PM10 float64 `json:"pm10" form:"pm10"`
	NO   float64 `json:"no" form:"no"`
	NO2  float64 `json:"no2" form:"no2"`
	NOx  float64 `json:"nox" form:"nox"`
}

// MaxConcentration is the largest value accepted for any pollutant.
const MaxConcentration = 500.0

// Vector returns the features in dataset.FeatureColumns order.
func (f Features) Vector() []float64 {
	return []float64{f.PM25, f.PM10, f.NO, f.NO2, f.NOx}
}

// Validate rejects concentrations that are non-finite or outside
// [0, MaxConcentration].
func (f Features) Validate() error {
	for i, v := range f.Vector() {
		name := dataset.FeatureColumns[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.NewValidationError(name, "must be a finite number", v)
		}
		if v < 0 {
			return errors.NewValidationError(name, "must be >= 0", v)
		}
		if v > MaxConcentration {
			return errors.NewValidationError(name, "must be <= 500", v)
		}
	}
	return nil
}
