package aqi

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/airq/internal/config"
	"github.com/YuminosukeSato/airq/internal/dataset"
	"github.com/YuminosukeSato/airq/metrics"
	"github.com/YuminosukeSato/airq/pkg/errors"
	"github.com/YuminosukeSato/airq/pkg/log"
	"github.com/YuminosukeSato/airq/preprocessing"
	"github.com/YuminosukeSato/airq/sklearn/ensemble"
)

// Trainer fits Bundles from cleaned tables.
type Trainer struct {
	forest config.ForestConfig
	clock  clockwork.Clock
	logger log.Logger
}

// TrainerOption configures a Trainer.
type TrainerOption func(*Trainer)

// WithClock replaces the wall clock used for TrainedAt and Duration.
func WithClock(c clockwork.Clock) TrainerOption {
	return func(t *Trainer) { t.clock = c }
}

// WithLogger replaces the trainer's logger.
func WithLogger(l log.Logger) TrainerOption {
	return func(t *Trainer) { t.logger = l }
}

// NewTrainer creates a Trainer for the given forest hyperparameters.
func NewTrainer(forest config.ForestConfig, opts ...TrainerOption) *Trainer {
	t := &Trainer{
		forest: forest,
		clock:  clockwork.NewRealClock(),
		logger: log.GetLoggerWithName("aqi.trainer"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Trainer) newForest() *ensemble.RandomForestRegressor {
	f := t.forest
	return ensemble.NewRandomForestRegressor().
		WithNEstimators(f.NEstimators).
		WithMaxDepth(f.MaxDepth).
		WithMinSamplesSplit(f.MinSamplesSplit).
		WithMinSamplesLeaf(f.MinSamplesLeaf).
		WithMaxFeatures(f.MaxFeatures).
		WithBootstrap(f.Bootstrap).
		WithRandomState(f.RandomState).
		WithNJobs(f.NJobs)
}

// Train fits a StandardScaler on the feature columns of table and a random
// forest on the scaled features against AQI. An empty table yields
// ErrNoTrainableData. ctx is checked before fitting starts; a fit in
// progress runs to completion.
func (t *Trainer) Train(ctx context.Context, table *dataset.Table) (*Bundle, error) {
	if table == nil || table.Len() == 0 {
		return nil, errors.NewModelError("aqi.Train", "insufficient data", errors.ErrNoTrainableData)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "aqi.Train")
	}

	start := t.clock.Now()
	logger := t.logger.With(
		log.OperationKey, log.OperationFit,
		log.SamplesKey, table.Len(),
		log.FeaturesKey, len(dataset.FeatureColumns),
	)
	logger.Info("Training started",
		log.HyperParamsKey, t.forest,
		log.RandomSeedKey, t.forest.RandomState,
		log.NJobsKey, t.forest.NJobs,
	)

	X, y, err := table.Matrices()
	if err != nil {
		return nil, err
	}

	scaler := preprocessing.NewStandardScalerDefault()
	Xs, err := scaler.FitTransform(X)
	if err != nil {
		logger.Error("Scaler fit failed", err, log.PhaseKey, log.PhasePreprocessing)
		return nil, errors.NewModelError("aqi.Train", "scaler fit failed", err)
	}

	forest := t.newForest()
	if err := errors.SafeExecute("aqi.Train", func() error { return forest.Fit(Xs, y) }); err != nil {
		logger.Error("Forest fit failed", err, log.PhaseKey, log.PhaseTraining)
		return nil, errors.NewModelError("aqi.Train", "forest fit failed", err)
	}

	pred, err := forest.Predict(Xs)
	if err != nil {
		return nil, errors.NewModelError("aqi.Train", "in-sample prediction failed", err)
	}
	inSample := mat.Col(nil, 0, pred)
	if err := errors.CheckNumericalStability("aqi.Train", inSample, 0); err != nil {
		logger.Error("In-sample predictions are not finite", err, log.PhaseKey, log.PhaseTraining)
		return nil, errors.NewModelError("aqi.Train", "in-sample prediction failed", err)
	}
	target := mat.Col(nil, 0, y)
	report, err := metrics.Evaluate(mat.NewVecDense(len(target), target), mat.NewVecDense(len(inSample), inSample))
	if err != nil {
		return nil, errors.NewModelError("aqi.Train", "in-sample evaluation failed", err)
	}

	b := &Bundle{
		Version:   uuid.New(),
		TrainedAt: start.UTC(),
		Duration:  t.clock.Since(start),
		Features:  append([]string(nil), dataset.FeatureColumns...),
		Scaler:    scaler,
		Forest:    forest,
		Rows:      table.Len(),
		TargetMin: floats.Min(target),
		TargetMax: floats.Max(target),
		InSample:  report,
	}

	logger.Info("Training completed",
		log.ModelVersionKey, b.Version.String(),
		log.R2ScoreKey, report.R2,
		log.DurationMsKey, b.Duration.Milliseconds(),
	)
	return b, nil
}

// elapsed is the training duration in seconds for metrics.
func (b *Bundle) elapsed() float64 {
	return float64(b.Duration) / float64(time.Second)
}
