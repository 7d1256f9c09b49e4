package errors

import (
	"math"
)

// CheckNumericalStability returns a NumericalInstabilityError when any value
// is NaN or ±Inf. Only the offending values are reported.
func CheckNumericalStability(operation string, values []float64, iteration int) error {
	var bad []float64
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			bad = append(bad, v)
		}
	}
	if len(bad) > 0 {
		return NewNumericalInstabilityError(operation, bad, iteration)
	}
	return nil
}

// CheckScalar checks a single scalar value for numerical instability.
func CheckScalar(operation string, value float64, iteration int) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return NewNumericalInstabilityError(operation, []float64{value}, iteration)
	}
	return nil
}

// CheckMatrix checks every cell of a matrix and reports the first row that
// contains a non-finite value. iteration is set to that row index.
func CheckMatrix(operation string, matrix interface{ Dims() (int, int); At(int, int) float64 }) error {
	rows, cols := matrix.Dims()
	for i := 0; i < rows; i++ {
		var bad []float64
		for j := 0; j < cols; j++ {
			v := matrix.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				bad = append(bad, v)
			}
		}
		if len(bad) > 0 {
			return NewNumericalInstabilityError(operation, bad, i)
		}
	}
	return nil
}

// SafeDivide returns 0 when the denominator is zero or close to it.
func SafeDivide(numerator, denominator float64) float64 {
	if math.Abs(denominator) < 1e-10 {
		return 0
	}
	return numerator / denominator
}
