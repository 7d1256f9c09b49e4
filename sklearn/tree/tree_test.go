package tree

import (
	"math"
	"testing"

	"github.com/YuminosukeSato/airq/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// TestDecisionTreeRegressor_FitPredict_Step tests a piecewise constant target
func TestDecisionTreeRegressor_FitPredict_Step(t *testing.T) {
	X := mat.NewDense(8, 1, []float64{0, 1, 2, 3, 10, 11, 12, 13})
	y := mat.NewDense(8, 1, []float64{5, 5, 5, 5, 50, 50, 50, 50})

	dt := NewDecisionTreeRegressor(WithMaxDepth(5))
	if err := dt.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit model: %v", err)
	}

	predictions, err := dt.Predict(X)
	if err != nil {
		t.Fatalf("Failed to predict: %v", err)
	}
	for i := 0; i < 8; i++ {
		if predictions.At(i, 0) != y.At(i, 0) {
			t.Errorf("Sample %d: expected %v, got %v", i, y.At(i, 0), predictions.At(i, 0))
		}
	}

	// One split at the midpoint between 3 and 10
	if dt.GetDepth() != 1 || dt.GetNLeaves() != 2 {
		t.Errorf("expected depth 1 with 2 leaves, got depth %d with %d leaves", dt.GetDepth(), dt.GetNLeaves())
	}
	if dt.Nodes[0].Threshold != 6.5 {
		t.Errorf("root threshold = %v, want 6.5", dt.Nodes[0].Threshold)
	}

	XTest := mat.NewDense(3, 1, []float64{6.5, 6.6, -100})
	testPreds, err := dt.Predict(XTest)
	if err != nil {
		t.Fatalf("Failed to predict on test data: %v", err)
	}
	want := []float64{5, 50, 5}
	for i, w := range want {
		if testPreds.At(i, 0) != w {
			t.Errorf("test point %d: expected %v, got %v", i, w, testPreds.At(i, 0))
		}
	}
}

// TestDecisionTreeRegressor_LeafIsMean tests that leaves hold the mean target
func TestDecisionTreeRegressor_LeafIsMean(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{1, 3, 10, 20})

	dt := NewDecisionTreeRegressor(WithMaxDepth(1))
	if err := dt.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	pred, err := dt.Predict(mat.NewDense(2, 1, []float64{1.5, 3.5}))
	if err != nil {
		t.Fatal(err)
	}
	// best depth-1 split separates {1,3,10} from {20}
	if math.Abs(pred.At(0, 0)-14.0/3.0) > 1e-12 || pred.At(1, 0) != 20 {
		t.Errorf("unexpected leaf values: %v, %v", pred.At(0, 0), pred.At(1, 0))
	}
}

// TestDecisionTreeRegressor_Score tests R² on a learnable function
func TestDecisionTreeRegressor_Score(t *testing.T) {
	n := 50
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i%7))
		y.Set(i, 0, float64(i*i)/10)
	}

	dt := NewDecisionTreeRegressor()
	if err := dt.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	score, err := dt.Score(X, y)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(score-1) > 1e-12 {
		t.Errorf("unlimited tree should fit training data exactly, R² = %v", score)
	}
}

// TestDecisionTreeRegressor_FeatureImportance tests impurity based importances
func TestDecisionTreeRegressor_FeatureImportance(t *testing.T) {
	X := mat.NewDense(8, 3, []float64{
		0, 0, 0,
		0, 1, 1,
		0, 0, 1,
		0, 1, 0,
		1, 0, 0,
		1, 1, 1,
		1, 0, 1,
		1, 1, 0,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 100, 100, 100, 100})

	dt := NewDecisionTreeRegressor()
	if err := dt.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit: %v", err)
	}

	importances := dt.GetFeatureImportances()
	if len(importances) != 3 {
		t.Fatalf("Expected 3 feature importances, got %d", len(importances))
	}
	if importances[0] != 1 || importances[1] != 0 || importances[2] != 0 {
		t.Errorf("Feature 0 should carry all importance: %v", importances)
	}

	// Mutating the returned slice does not affect the model
	importances[0] = -1
	if dt.GetFeatureImportances()[0] != 1 {
		t.Error("GetFeatureImportances should return a copy")
	}
}

// TestDecisionTreeRegressor_MaxDepth tests max depth constraint
func TestDecisionTreeRegressor_MaxDepth(t *testing.T) {
	X := mat.NewDense(16, 2, nil)
	y := mat.NewDense(16, 1, nil)
	for i := 0; i < 16; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i%4))
		y.Set(i, 0, float64(i%2))
	}

	dt := NewDecisionTreeRegressor(WithMaxDepth(2))
	if err := dt.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit: %v", err)
	}
	if depth := dt.GetDepth(); depth > 2 {
		t.Errorf("Tree depth %d exceeds max_depth=2", depth)
	}
	if dt.GetNLeaves() > 4 {
		t.Errorf("Tree with depth 2 has %d leaves", dt.GetNLeaves())
	}
}

// TestDecisionTreeRegressor_MinSamples tests minimum samples constraints
func TestDecisionTreeRegressor_MinSamples(t *testing.T) {
	X := mat.NewDense(10, 1, nil)
	y := mat.NewDense(10, 1, nil)
	for i := 0; i < 10; i++ {
		X.Set(i, 0, float64(i))
		y.Set(i, 0, float64(i%2))
	}

	dt := NewDecisionTreeRegressor(
		WithMinSamplesSplit(5),
		WithMinSamplesLeaf(2),
	)
	if err := dt.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit: %v", err)
	}

	for i, node := range dt.Nodes {
		if node.NSamples < 2 {
			t.Errorf("node %d has %d samples, below min_samples_leaf", i, node.NSamples)
		}
		if !node.IsLeaf() && node.NSamples < 5 {
			t.Errorf("node %d was split with %d samples, below min_samples_split", i, node.NSamples)
		}
	}
	if nLeaves := dt.GetNLeaves(); nLeaves > 5 {
		t.Errorf("Too many leaves %d for min_samples constraints", nLeaves)
	}
}

// TestDecisionTreeRegressor_ConstantInput tests degenerate inputs
func TestDecisionTreeRegressor_ConstantInput(t *testing.T) {
	tests := []struct {
		name string
		X    []float64
		y    []float64
		want float64
	}{
		{"constant target", []float64{1, 2, 3, 4}, []float64{7, 7, 7, 7}, 7},
		{"constant feature", []float64{3, 3, 3, 3}, []float64{1, 2, 3, 6}, 3},
		{"single sample", []float64{1}, []float64{42}, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := len(tt.X)
			dt := NewDecisionTreeRegressor()
			if err := dt.Fit(mat.NewDense(n, 1, tt.X), mat.NewDense(n, 1, tt.y)); err != nil {
				t.Fatal(err)
			}
			if dt.GetNLeaves() != 1 || dt.GetDepth() != 0 {
				t.Errorf("expected a single leaf, got %d leaves depth %d", dt.GetNLeaves(), dt.GetDepth())
			}
			pred, err := dt.Predict(mat.NewDense(1, 1, []float64{100}))
			if err != nil {
				t.Fatal(err)
			}
			if pred.At(0, 0) != tt.want {
				t.Errorf("prediction = %v, want %v", pred.At(0, 0), tt.want)
			}
			for _, imp := range dt.GetFeatureImportances() {
				if imp != 0 {
					t.Errorf("single-leaf tree should have zero importances, got %v", dt.GetFeatureImportances())
				}
			}
		})
	}
}

// TestDecisionTreeRegressor_MaxFeaturesDeterminism tests seeded feature sampling
func TestDecisionTreeRegressor_MaxFeaturesDeterminism(t *testing.T) {
	n := 60
	X := mat.NewDense(n, 5, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < 5; j++ {
			X.Set(i, j, float64((i*(j+3))%17))
		}
		y.Set(i, 0, X.At(i, 0)*2+X.At(i, 3))
	}

	fit := func(seed int64) *DecisionTreeRegressor {
		dt := NewDecisionTreeRegressor(WithMaxFeatures("sqrt"), WithRandomState(seed))
		if err := dt.Fit(X, y); err != nil {
			t.Fatal(err)
		}
		return dt
	}

	a, b := fit(7), fit(7)
	if len(a.Nodes) != len(b.Nodes) {
		t.Fatalf("same seed produced %d and %d nodes", len(a.Nodes), len(b.Nodes))
	}
	for i := range a.Nodes {
		na, nb := a.Nodes[i], b.Nodes[i]
		if na.Feature != nb.Feature || na.Value != nb.Value || na.Left != nb.Left {
			t.Fatalf("node %d differs between identical fits: %+v vs %+v", i, na, nb)
		}
	}
}

// TestResolveMaxFeatures tests max_features parsing
func TestResolveMaxFeatures(t *testing.T) {
	tests := []struct {
		value     string
		nFeatures int
		want      int
		wantErr   bool
	}{
		{"sqrt", 5, 2, false},
		{"sqrt", 1, 1, false},
		{"log2", 8, 3, false},
		{"all", 5, 5, false},
		{"", 5, 5, false},
		{"3", 5, 3, false},
		{"9", 5, 5, false},
		{"0.5", 5, 2, false},
		{"0.1", 5, 1, false},
		{"0", 5, 0, true},
		{"1.5", 5, 0, true},
		{"half", 5, 0, true},
	}
	for _, tt := range tests {
		got, err := ResolveMaxFeatures(tt.value, tt.nFeatures)
		if (err != nil) != tt.wantErr {
			t.Errorf("ResolveMaxFeatures(%q, %d) error = %v, wantErr %v", tt.value, tt.nFeatures, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ResolveMaxFeatures(%q, %d) = %d, want %d", tt.value, tt.nFeatures, got, tt.want)
		}
	}
}

// TestDecisionTreeRegressor_GetSetParams tests parameter management
func TestDecisionTreeRegressor_GetSetParams(t *testing.T) {
	dt := NewDecisionTreeRegressor()

	params := dt.GetParams()
	if params["criterion"].(string) != "squared_error" {
		t.Errorf("Default criterion should be 'squared_error', got %v", params["criterion"])
	}
	if params["min_samples_split"].(int) != 2 {
		t.Errorf("Default min_samples_split should be 2, got %v", params["min_samples_split"])
	}

	err := dt.SetParams(map[string]interface{}{
		"max_depth":         5,
		"min_samples_split": 4.0,
		"min_samples_leaf":  2,
		"max_features":      "sqrt",
		"random_state":      42,
	})
	if err != nil {
		t.Fatalf("Failed to set params: %v", err)
	}
	if dt.Params.MaxDepth != 5 || dt.Params.MinSamplesSplit != 4 || dt.Params.MinSamplesLeaf != 2 {
		t.Errorf("params not updated: %+v", dt.Params)
	}
	if dt.Params.MaxFeatures != "sqrt" || dt.Params.RandomState != 42 {
		t.Errorf("params not updated: %+v", dt.Params)
	}

	invalid := []map[string]interface{}{
		{"min_samples_split": 1},
		{"min_samples_leaf": 0},
		{"criterion": "gini"},
		{"max_features": "half"},
		{"max_depth": 2.5},
		{"unknown": 1},
	}
	for _, p := range invalid {
		if err := dt.SetParams(p); err == nil {
			t.Errorf("SetParams(%v) should fail", p)
		}
	}
	if dt.Params.MaxDepth != 5 {
		t.Error("failed SetParams must not modify the tree")
	}
}

// TestDecisionTreeRegressor_Errors tests input validation
func TestDecisionTreeRegressor_Errors(t *testing.T) {
	dt := NewDecisionTreeRegressor()
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})

	var nf *errors.NotFittedError
	if _, err := dt.Predict(X); !errors.As(err, &nf) {
		t.Errorf("Expected NotFittedError, got %v", err)
	}

	var de *errors.DimensionError
	if err := dt.Fit(X, mat.NewDense(3, 1, nil)); !errors.As(err, &de) {
		t.Errorf("Expected DimensionError for row mismatch, got %v", err)
	}

	var ni *errors.NumericalInstabilityError
	if err := dt.Fit(mat.NewDense(2, 1, []float64{1, math.Inf(1)}), mat.NewDense(2, 1, []float64{1, 2})); !errors.As(err, &ni) {
		t.Errorf("Expected NumericalInstabilityError, got %v", err)
	}

	if err := dt.Fit(X, mat.NewDense(2, 1, []float64{1, 2})); err != nil {
		t.Fatal(err)
	}
	if _, err := dt.Predict(mat.NewDense(1, 3, nil)); !errors.As(err, &de) {
		t.Errorf("Expected DimensionError for feature mismatch, got %v", err)
	}
}
