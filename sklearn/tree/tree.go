// Package tree implements a CART regression tree with a scikit-learn
// compatible API.
package tree

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/airq/core/model"
	"github.com/YuminosukeSato/airq/metrics"
	"github.com/YuminosukeSato/airq/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	_ model.Regressor       = (*DecisionTreeRegressor)(nil)
	_ model.ParameterSetter = (*DecisionTreeRegressor)(nil)
	_ model.FeatureImporter = (*DecisionTreeRegressor)(nil)
)

// Node is one entry of the flat tree array. Leaves have Feature == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Impurity  float64
	NSamples  int
}

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool {
	return n.Feature < 0
}

// Params are the hyperparameters of a DecisionTreeRegressor.
type Params struct {
	Criterion       string // "squared_error"
	MaxDepth        int    // <= 0 means unlimited
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     string // "sqrt", "log2", "all", an integer or a fraction in (0, 1]
	RandomState     int64
}

// DefaultParams mirrors scikit-learn's DecisionTreeRegressor defaults.
func DefaultParams() Params {
	return Params{
		Criterion:       "squared_error",
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     "all",
		RandomState:     0,
	}
}

// Option configures a DecisionTreeRegressor.
type Option func(*Params)

// WithCriterion sets the split criterion.
func WithCriterion(criterion string) Option {
	return func(p *Params) { p.Criterion = criterion }
}

// WithMaxDepth sets the maximum depth. Zero or negative disables the limit.
func WithMaxDepth(depth int) Option {
	return func(p *Params) { p.MaxDepth = depth }
}

// WithMinSamplesSplit sets the minimum samples required to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(p *Params) { p.MinSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum samples required in a leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(p *Params) { p.MinSamplesLeaf = n }
}

// WithMaxFeatures sets the number of features considered per split.
func WithMaxFeatures(maxFeatures string) Option {
	return func(p *Params) { p.MaxFeatures = maxFeatures }
}

// WithRandomState sets the seed of the feature sampler.
func WithRandomState(seed int64) Option {
	return func(p *Params) { p.RandomState = seed }
}

// DecisionTreeRegressor is a CART regression tree using squared error.
type DecisionTreeRegressor struct {
	State  *model.StateManager
	Params Params

	Nodes              []Node
	FeatureImportances []float64
	Depth              int
	NLeaves            int
}

// NewDecisionTreeRegressor creates a tree with default parameters modified
// by opts.
//
//	dt := tree.NewDecisionTreeRegressor(
//	    tree.WithMaxDepth(20),
//	    tree.WithMaxFeatures("sqrt"),
//	)
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	p := DefaultParams()
	for _, opt := range opts {
		opt(&p)
	}
	return &DecisionTreeRegressor{
		State:  model.NewStateManager(),
		Params: p,
	}
}

// IsFitted reports whether the tree has been fitted.
func (dt *DecisionTreeRegressor) IsFitted() bool {
	return dt.State != nil && dt.State.IsFitted()
}

// Validate checks the hyperparameters.
func (p Params) Validate() error {
	switch p.Criterion {
	case "squared_error", "mse":
	default:
		return errors.NewValidationError("criterion", "must be 'squared_error'", p.Criterion)
	}
	if p.MinSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be >= 2", p.MinSamplesSplit)
	}
	if p.MinSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", p.MinSamplesLeaf)
	}
	if _, err := ResolveMaxFeatures(p.MaxFeatures, 1); err != nil {
		return err
	}
	return nil
}

// ResolveMaxFeatures converts a max_features setting into a feature count
// for nFeatures columns. The result is always in [1, nFeatures].
func ResolveMaxFeatures(value string, nFeatures int) (int, error) {
	var n int
	switch s := strings.ToLower(strings.TrimSpace(value)); s {
	case "", "all", "none", "auto":
		n = nFeatures
	case "sqrt":
		n = int(math.Sqrt(float64(nFeatures)))
	case "log2":
		n = int(math.Log2(float64(nFeatures)))
	default:
		if i, err := strconv.Atoi(s); err == nil {
			if i < 1 {
				return 0, errors.NewValidationError("max_features", "integer must be >= 1", value)
			}
			n = i
			break
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f <= 0 || f > 1 {
			return 0, errors.NewValidationError("max_features", "must be sqrt, log2, all, an integer or a fraction in (0, 1]", value)
		}
		n = int(f * float64(nFeatures))
	}
	if n < 1 {
		n = 1
	}
	if n > nFeatures {
		n = nFeatures
	}
	return n, nil
}

// Fit builds the tree from X (n×p) and y (n×1).
func (dt *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	d, err := NewDataset(X, y)
	if err != nil {
		return err
	}
	return dt.FitDataset(d, d.AllIndices())
}

// FitDataset builds the tree on the given samples of d. samples may contain
// repeated indices, as produced by bootstrap sampling, and is reordered in
// place.
func (dt *DecisionTreeRegressor) FitDataset(d *Dataset, samples []int) (err error) {
	defer errors.Recover(&err, "DecisionTreeRegressor.Fit")

	if err := dt.Params.Validate(); err != nil {
		return err
	}
	if len(samples) == 0 {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	maxFeatures, err := ResolveMaxFeatures(dt.Params.MaxFeatures, d.NFeatures)
	if err != nil {
		return err
	}

	b := &builder{
		data:            d,
		params:          dt.Params,
		splitter:        newSplitter(d, rand.New(rand.NewSource(dt.Params.RandomState)), maxFeatures, dt.Params.MinSamplesLeaf),
		importances:     make([]float64, d.NFeatures),
		rootSampleCount: float64(len(samples)),
	}
	b.build(samples, 0)

	if dt.State == nil {
		dt.State = model.NewStateManager()
	}
	dt.Nodes = b.nodes
	dt.Depth = b.depth
	dt.NLeaves = b.leaves
	dt.FeatureImportances = normalize(b.importances)
	dt.State.SetFitted(d.NFeatures, len(samples))
	return nil
}

type builder struct {
	data            *Dataset
	params          Params
	splitter        *splitter
	nodes           []Node
	importances     []float64
	rootSampleCount float64
	depth           int
	leaves          int
}

// build grows the subtree for samples depth-first and returns its index.
func (b *builder) build(samples []int, depth int) int {
	stats := statsOf(b.data, samples)
	impurity := stats.impurity()

	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{
		Feature:   -1,
		Threshold: math.NaN(),
		Left:      -1,
		Right:     -1,
		Value:     stats.mean(),
		Impurity:  impurity,
		NSamples:  stats.n,
	})
	if depth > b.depth {
		b.depth = depth
	}

	n := len(samples)
	isLeaf := (b.params.MaxDepth > 0 && depth >= b.params.MaxDepth) ||
		n < b.params.MinSamplesSplit ||
		n < 2*b.params.MinSamplesLeaf ||
		impurity <= epsilon

	var sp split
	if !isLeaf {
		var ok bool
		sp, ok = b.splitter.best(samples, stats)
		isLeaf = !ok
	}
	if isLeaf {
		b.leaves++
		return id
	}

	b.splitter.partition(samples, sp)
	weighted := float64(n)*impurity -
		float64(sp.left.n)*sp.left.impurity() -
		float64(sp.right.n)*sp.right.impurity()
	b.importances[sp.feature] += weighted / b.rootSampleCount

	left := b.build(samples[:sp.pos], depth+1)
	right := b.build(samples[sp.pos:], depth+1)

	node := &b.nodes[id]
	node.Feature = sp.feature
	node.Threshold = sp.threshold
	node.Left = left
	node.Right = right
	return id
}

func normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	var total float64
	for _, x := range v {
		total += x
	}
	if total <= 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / total
	}
	return out
}

// PredictRow returns the leaf value reached by x. The caller guarantees
// len(x) equals the number of fitted features.
func (dt *DecisionTreeRegressor) PredictRow(x []float64) float64 {
	i := 0
	for {
		node := &dt.Nodes[i]
		if node.IsLeaf() {
			return node.Value
		}
		if x[node.Feature] <= node.Threshold {
			i = node.Left
		} else {
			i = node.Right
		}
	}
}

// Predict returns an n×1 matrix of predictions.
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !dt.IsFitted() {
		return nil, errors.NewNotFittedError("DecisionTreeRegressor", "Predict")
	}
	rows, cols := X.Dims()
	if err := dt.State.RequireFeatures("DecisionTreeRegressor.Predict", cols); err != nil {
		return nil, err
	}

	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		out.Set(i, 0, dt.PredictRow(row))
	}
	return out, nil
}

// Score returns the R² of the prediction.
func (dt *DecisionTreeRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2ScoreMatrix(y, pred)
}

// GetDepth returns the depth of the fitted tree. A single leaf has depth 0.
func (dt *DecisionTreeRegressor) GetDepth() int { return dt.Depth }

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeRegressor) GetNLeaves() int { return dt.NLeaves }

// GetFeatureImportances returns impurity based importances summing to 1,
// or all zeros when the tree is a single leaf.
func (dt *DecisionTreeRegressor) GetFeatureImportances() []float64 {
	out := make([]float64, len(dt.FeatureImportances))
	copy(out, dt.FeatureImportances)
	return out
}

// GetParams returns the hyperparameters with scikit-learn names.
func (dt *DecisionTreeRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.Params.Criterion,
		"max_depth":         dt.Params.MaxDepth,
		"min_samples_split": dt.Params.MinSamplesSplit,
		"min_samples_leaf":  dt.Params.MinSamplesLeaf,
		"max_features":      dt.Params.MaxFeatures,
		"random_state":      dt.Params.RandomState,
	}
}

// SetParams updates hyperparameters. Unknown keys are rejected. The new
// values take effect on the next Fit.
func (dt *DecisionTreeRegressor) SetParams(params map[string]interface{}) error {
	p := dt.Params
	if err := applyParams(&p, params); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	dt.Params = p
	return nil
}

func applyParams(p *Params, params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "criterion":
			s, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			p.Criterion = s
		case "max_features":
			switch v := value.(type) {
			case string:
				p.MaxFeatures = v
			case int:
				p.MaxFeatures = strconv.Itoa(v)
			case float64:
				p.MaxFeatures = strconv.FormatFloat(v, 'g', -1, 64)
			default:
				return errors.NewValidationError(key, "must be a string or number", value)
			}
		case "max_depth", "min_samples_split", "min_samples_leaf":
			n, err := toInt(key, value)
			if err != nil {
				return err
			}
			switch key {
			case "max_depth":
				p.MaxDepth = n
			case "min_samples_split":
				p.MinSamplesSplit = n
			default:
				p.MinSamplesLeaf = n
			}
		case "random_state":
			n, err := toInt(key, value)
			if err != nil {
				return err
			}
			p.RandomState = int64(n)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return nil
}

func toInt(key string, value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, errors.NewValidationError(key, "must be an integer", value)
		}
		return int(v), nil
	case nil:
		return 0, nil
	default:
		return 0, errors.NewValidationError(key, "must be an integer", value)
	}
}

// String returns a short description of the tree.
func (dt *DecisionTreeRegressor) String() string {
	if !dt.IsFitted() {
		return fmt.Sprintf("DecisionTreeRegressor(max_depth=%d, max_features=%s)", dt.Params.MaxDepth, dt.Params.MaxFeatures)
	}
	return fmt.Sprintf("DecisionTreeRegressor(max_depth=%d, max_features=%s, depth=%d, leaves=%d)",
		dt.Params.MaxDepth, dt.Params.MaxFeatures, dt.Depth, dt.NLeaves)
}
