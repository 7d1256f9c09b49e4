package errors

import (
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		kind     string
		err      error
		wantMsg  string
		hasStack bool
	}{
		{
			name:     "with original error",
			op:       "Fit",
			kind:     "invalid input",
			err:      fmt.Errorf("test error"),
			wantMsg:  "airq: Fit: invalid input: test error",
			hasStack: true,
		},
		{
			name:     "without original error",
			op:       "Predict",
			kind:     "not fitted",
			err:      nil,
			wantMsg:  "airq: Predict: not fitted",
			hasStack: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			if tt.hasStack {
				formatted := fmt.Sprintf("%+v", err)
				if !strings.Contains(formatted, "errors_test.go") {
					t.Error("Expected stack trace to contain test file name")
				}
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestModelErrorWrapsNoTrainableData(t *testing.T) {
	err := NewModelError("aqi.Train", "insufficient data", ErrNoTrainableData)

	if !Is(err, ErrNoTrainableData) {
		t.Error("Expected Is(err, ErrNoTrainableData) to be true")
	}
	if Is(err, ErrEmptyData) {
		t.Error("ErrNoTrainableData must be distinguishable from ErrEmptyData")
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Predict", 5, 3, 1)

	want := "airq: Predict: dimension mismatch on axis 1 (features). Expected 5, got 3"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Error("Error should be castable to *DimensionError")
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("RandomForestRegressor", "Predict")

	want := "airq: RandomForestRegressor: this model is not fitted yet. Call Fit() before using Predict()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestNewInputShapeError(t *testing.T) {
	err := NewInputShapeError("prediction", []int{1, 5}, []int{1, 4})

	want := "airq: input shape mismatch in prediction phase. Expected shape [1 5], got [1 4]"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var shapeErr *InputShapeError
	if !As(err, &shapeErr) {
		t.Fatal("Error should be castable to *InputShapeError")
	}
	if shapeErr.Got[1] != 4 {
		t.Errorf("Got = %v, want [1 4]", shapeErr.Got)
	}
}

func TestNewSchemaError(t *testing.T) {
	err := NewSchemaError("Data.csv", []string{"AQI", "NOx"})

	if !strings.Contains(err.Error(), "missing required columns [AQI NOx]") {
		t.Errorf("unexpected message: %v", err)
	}

	var schemaErr *SchemaError
	if !As(err, &schemaErr) {
		t.Error("Error should be castable to *SchemaError")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("pm25", "must be finite", math.Inf(1))

	want := "airq: validation failed for parameter 'pm25': must be finite (got: +Inf)"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWarnRoutesToZerologFunc(t *testing.T) {
	var got []error
	SetZerologWarnFunc(func(w error) { got = append(got, w) })
	defer SetZerologWarnFunc(nil)

	Warn(NewDataConversionWarning("string", "float64", "3 rows dropped"))

	if len(got) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(got))
	}
	want := "data converted from string to float64. Reason: 3 rows dropped"
	if got[0].Error() != want {
		t.Errorf("warning = %q, want %q", got[0].Error(), want)
	}
}

func TestWarnFallsBackToHandler(t *testing.T) {
	var got error
	SetWarningHandler(func(w error) { got = w })
	defer SetWarningHandler(nil)

	Warn(NewDataConversionWarning("a", "b", "c"))

	if got == nil {
		t.Error("expected warning handler to be called")
	}
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: expected %d, got %d", "Predict", 10, 5)

	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}

	expectedMsg := "in Predict: expected 10, got 5"
	if !strings.Contains(wrapped.Error(), expectedMsg) {
		t.Errorf("Expected wrapped error to contain %q", expectedMsg)
	}
}

func TestCheckNumericalStability(t *testing.T) {
	tests := []struct {
		name    string
		values  []float64
		wantErr bool
		wantBad int
	}{
		{"finite", []float64{1, 2, 3}, false, 0},
		{"nan", []float64{1, math.NaN(), 3}, true, 1},
		{"inf", []float64{math.Inf(-1), math.Inf(1)}, true, 2},
		{"empty", nil, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckNumericalStability("op", tt.values, 0)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			var nie *NumericalInstabilityError
			if !As(err, &nie) {
				t.Fatal("expected *NumericalInstabilityError")
			}
			if len(nie.Values) != tt.wantBad {
				t.Errorf("reported %d values, want %d", len(nie.Values), tt.wantBad)
			}
		})
	}
}

type grid [][]float64

func (g grid) Dims() (int, int)      { return len(g), len(g[0]) }
func (g grid) At(i, j int) float64 { return g[i][j] }

func TestCheckMatrix(t *testing.T) {
	if err := CheckMatrix("ok", grid{{1, 2}, {3, 4}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := CheckMatrix("bad", grid{{1, 2}, {3, math.NaN()}})
	var nie *NumericalInstabilityError
	if !As(err, &nie) {
		t.Fatalf("expected *NumericalInstabilityError, got %v", err)
	}
	if nie.Iteration != 1 {
		t.Errorf("Iteration = %d, want row 1", nie.Iteration)
	}
}

func TestSafeDivide(t *testing.T) {
	if got := SafeDivide(1, 0); got != 0 {
		t.Errorf("SafeDivide(1, 0) = %v, want 0", got)
	}
	if got := SafeDivide(6, 3); got != 2 {
		t.Errorf("SafeDivide(6, 3) = %v, want 2", got)
	}
}
