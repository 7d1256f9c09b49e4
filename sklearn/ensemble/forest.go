// Package ensemble implements bagged tree ensembles.
package ensemble

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/YuminosukeSato/airq/core/model"
	"github.com/YuminosukeSato/airq/core/parallel"
	"github.com/YuminosukeSato/airq/metrics"
	"github.com/YuminosukeSato/airq/pkg/errors"
	"github.com/YuminosukeSato/airq/pkg/log"
	"github.com/YuminosukeSato/airq/sklearn/tree"
	"gonum.org/v1/gonum/mat"
)

var (
	_ model.Regressor       = (*RandomForestRegressor)(nil)
	_ model.ParameterGetter = (*RandomForestRegressor)(nil)
	_ model.FeatureImporter = (*RandomForestRegressor)(nil)
)

// RandomForestRegressor averages DecisionTreeRegressors fitted on bootstrap
// samples with per-split feature subsampling.
//
// Each tree gets its own seed drawn from RandomState before any tree is
// fitted, so the fitted forest does not depend on NJobs or scheduling.
type RandomForestRegressor struct {
	State *model.StateManager

	// Hyperparameters (matching scikit-learn)
	NEstimators     int    // Number of trees
	MaxDepth        int    // Maximum tree depth, <= 0 means unlimited
	MinSamplesSplit int    // Minimum samples to split an internal node
	MinSamplesLeaf  int    // Minimum samples in a leaf
	MaxFeatures     string // Features considered per split ("sqrt", "log2", "all", n, fraction)
	Bootstrap       bool   // Draw a bootstrap sample per tree
	RandomState     int64  // Seed of the forest
	NJobs           int    // Worker count, -1 uses all cores

	Estimators []*tree.DecisionTreeRegressor
}

// NewRandomForestRegressor creates a forest with scikit-learn defaults.
func NewRandomForestRegressor() *RandomForestRegressor {
	return &RandomForestRegressor{
		State:           model.NewStateManager(),
		NEstimators:     100,
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     "all",
		Bootstrap:       true,
		RandomState:     0,
		NJobs:           1,
	}
}

// WithNEstimators sets the number of trees
func (rf *RandomForestRegressor) WithNEstimators(n int) *RandomForestRegressor {
	rf.NEstimators = n
	return rf
}

// WithMaxDepth sets the maximum depth
func (rf *RandomForestRegressor) WithMaxDepth(d int) *RandomForestRegressor {
	rf.MaxDepth = d
	return rf
}

// WithMinSamplesSplit sets min_samples_split
func (rf *RandomForestRegressor) WithMinSamplesSplit(n int) *RandomForestRegressor {
	rf.MinSamplesSplit = n
	return rf
}

// WithMinSamplesLeaf sets min_samples_leaf
func (rf *RandomForestRegressor) WithMinSamplesLeaf(n int) *RandomForestRegressor {
	rf.MinSamplesLeaf = n
	return rf
}

// WithMaxFeatures sets max_features
func (rf *RandomForestRegressor) WithMaxFeatures(s string) *RandomForestRegressor {
	rf.MaxFeatures = s
	return rf
}

// WithBootstrap enables or disables bootstrap sampling
func (rf *RandomForestRegressor) WithBootstrap(b bool) *RandomForestRegressor {
	rf.Bootstrap = b
	return rf
}

// WithRandomState sets the random seed
func (rf *RandomForestRegressor) WithRandomState(seed int64) *RandomForestRegressor {
	rf.RandomState = seed
	return rf
}

// WithNJobs sets the number of workers used by Fit and Predict
func (rf *RandomForestRegressor) WithNJobs(n int) *RandomForestRegressor {
	rf.NJobs = n
	return rf
}

// IsFitted reports whether Fit has completed.
func (rf *RandomForestRegressor) IsFitted() bool {
	return rf.State != nil && rf.State.IsFitted()
}

// NFeatures returns the number of columns seen in Fit.
func (rf *RandomForestRegressor) NFeatures() int {
	if rf.State == nil {
		return 0
	}
	n, _ := rf.State.GetDimensions()
	return n
}

func (rf *RandomForestRegressor) treeParams() tree.Params {
	return tree.Params{
		Criterion:       "squared_error",
		MaxDepth:        rf.MaxDepth,
		MinSamplesSplit: rf.MinSamplesSplit,
		MinSamplesLeaf:  rf.MinSamplesLeaf,
		MaxFeatures:     rf.MaxFeatures,
	}
}

// Validate checks the hyperparameters.
func (rf *RandomForestRegressor) Validate() error {
	if rf.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", rf.NEstimators)
	}
	return rf.treeParams().Validate()
}

// Fit builds the forest from X (n×p) and y (n×1).
func (rf *RandomForestRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "RandomForestRegressor.Fit")

	if err := rf.Validate(); err != nil {
		return err
	}
	d, err := tree.NewDataset(X, y)
	if err != nil {
		return err
	}

	logger := log.GetLoggerWithName("ensemble.forest")
	start := time.Now()
	logger.Debug("Training RandomForestRegressor",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, d.NSamples,
		log.FeaturesKey, d.NFeatures,
		log.HyperParamsKey, rf.GetParams(),
	)

	// Seeds and bootstrap samples are drawn sequentially from one source.
	rng := rand.New(rand.NewSource(rf.RandomState))
	seeds := make([]int64, rf.NEstimators)
	samples := make([][]int, rf.NEstimators)
	for t := range seeds {
		seeds[t] = rng.Int63()
		samples[t] = rf.drawSamples(rng, d.NSamples)
	}

	estimators := make([]*tree.DecisionTreeRegressor, rf.NEstimators)
	errs := make([]error, rf.NEstimators)
	params := rf.treeParams()

	parallel.ParallelizeN(rf.NEstimators, parallel.Workers(rf.NJobs), func(lo, hi int) {
		for t := lo; t < hi; t++ {
			p := params
			p.RandomState = seeds[t]
			est := &tree.DecisionTreeRegressor{State: model.NewStateManager(), Params: p}
			errs[t] = est.FitDataset(d, samples[t])
			estimators[t] = est
		}
	})
	for t, e := range errs {
		if e != nil {
			return errors.NewModelError("RandomForestRegressor.Fit", fmt.Sprintf("tree %d failed", t), e)
		}
	}

	rf.Estimators = estimators
	if rf.State == nil {
		rf.State = model.NewStateManager()
	}
	rf.State.SetFitted(d.NFeatures, d.NSamples)

	logger.Debug("RandomForestRegressor trained",
		log.OperationKey, log.OperationFit,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// drawSamples returns n indices drawn with replacement, or 0..n-1 when
// bootstrap is disabled.
func (rf *RandomForestRegressor) drawSamples(rng *rand.Rand, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		if rf.Bootstrap {
			idx[i] = rng.Intn(n)
		} else {
			idx[i] = i
		}
	}
	return idx
}

// PredictRow returns the mean of all tree outputs for x. Trees are summed
// in a fixed order, so repeated calls are bit-identical.
func (rf *RandomForestRegressor) PredictRow(x []float64) (float64, error) {
	if !rf.IsFitted() {
		return 0, errors.NewNotFittedError("RandomForestRegressor", "PredictRow")
	}
	if err := rf.State.RequireFeatures("RandomForestRegressor.PredictRow", len(x)); err != nil {
		return 0, err
	}
	return rf.predictRow(x), nil
}

func (rf *RandomForestRegressor) predictRow(x []float64) float64 {
	var sum float64
	for _, est := range rf.Estimators {
		sum += est.PredictRow(x)
	}
	return sum / float64(len(rf.Estimators))
}

// Predict returns an n×1 matrix of predictions. Rows are split across
// NJobs workers; each row is computed independently.
func (rf *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !rf.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestRegressor", "Predict")
	}
	rows, cols := X.Dims()
	if err := rf.State.RequireFeatures("RandomForestRegressor.Predict", cols); err != nil {
		return nil, err
	}

	out := make([]float64, rows)
	parallel.ParallelizeN(rows, parallel.Workers(rf.NJobs), func(lo, hi int) {
		row := make([]float64, cols)
		for i := lo; i < hi; i++ {
			mat.Row(row, i, X)
			out[i] = rf.predictRow(row)
		}
	})
	return mat.NewDense(rows, 1, out), nil
}

// Score returns the R² of the prediction.
func (rf *RandomForestRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2ScoreMatrix(y, pred)
}

// GetFeatureImportances returns the mean of the trees' normalized
// importances, renormalized to sum to 1.
func (rf *RandomForestRegressor) GetFeatureImportances() []float64 {
	if !rf.IsFitted() {
		return nil
	}
	nFeatures, _ := rf.State.GetDimensions()
	sum := make([]float64, nFeatures)
	var contributing int
	for _, est := range rf.Estimators {
		if est.GetNLeaves() <= 1 {
			continue
		}
		contributing++
		for j, v := range est.FeatureImportances {
			sum[j] += v
		}
	}
	var total float64
	for _, v := range sum {
		total += v
	}
	if contributing == 0 || total <= 0 {
		return sum
	}
	for j := range sum {
		sum[j] /= total
	}
	return sum
}

// GetParams returns the hyperparameters with scikit-learn names.
func (rf *RandomForestRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.NEstimators,
		"max_depth":         rf.MaxDepth,
		"min_samples_split": rf.MinSamplesSplit,
		"min_samples_leaf":  rf.MinSamplesLeaf,
		"max_features":      rf.MaxFeatures,
		"bootstrap":         rf.Bootstrap,
		"random_state":      rf.RandomState,
		"n_jobs":            rf.NJobs,
	}
}

// String returns a short description of the forest.
func (rf *RandomForestRegressor) String() string {
	return fmt.Sprintf("RandomForestRegressor(n_estimators=%d, max_depth=%d, max_features=%s, random_state=%d)",
		rf.NEstimators, rf.MaxDepth, rf.MaxFeatures, rf.RandomState)
}
