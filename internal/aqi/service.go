package aqi

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/YuminosukeSato/airq/internal/advisory"
	"github.com/YuminosukeSato/airq/internal/dataset"
	"github.com/YuminosukeSato/airq/internal/observability"
	"github.com/YuminosukeSato/airq/pkg/errors"
	"github.com/YuminosukeSato/airq/pkg/log"
)

// ErrNotReady is returned by Service.Predict before the first bundle is
// installed.
var ErrNotReady = errors.New("model not ready")

// Loader produces the cleaned training table.
type Loader interface {
	Load(ctx context.Context) (*dataset.Table, dataset.Report, error)
}

// FileLoader loads and cleans a CSV file.
type FileLoader struct {
	Path     string
	Sentinel string
}

// Load implements Loader.
func (l FileLoader) Load(ctx context.Context) (*dataset.Table, dataset.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, dataset.Report{}, err
	}
	return dataset.LoadClean(l.Path, l.Sentinel)
}

// Prediction is one served prediction.
type Prediction struct {
	AQI          float64       `json:"aqi"`
	Band         advisory.Band `json:"band"`
	ModelVersion string        `json:"model_version"`
}

// Service owns the current Bundle. Predictions read it through an atomic
// pointer; retraining is serialized and swaps the pointer on success.
type Service struct {
	trainer      *Trainer
	loader       Loader
	metrics      *observability.Metrics
	logger       log.Logger
	snapshotPath string

	current atomic.Pointer[Bundle]
	trainMu sync.Mutex
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMetrics records training and prediction metrics on m.
func WithMetrics(m *observability.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithSnapshotPath saves every newly trained bundle to path.
func WithSnapshotPath(path string) ServiceOption {
	return func(s *Service) { s.snapshotPath = path }
}

// WithServiceLogger replaces the service's logger.
func WithServiceLogger(l log.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service with no bundle installed. Call Retrain or
// Install before serving predictions.
func NewService(trainer *Trainer, loader Loader, opts ...ServiceOption) *Service {
	s := &Service{
		trainer: trainer,
		loader:  loader,
		logger:  log.GetLoggerWithName("aqi.service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the installed bundle, or nil.
func (s *Service) Current() *Bundle {
	return s.current.Load()
}

// Install makes b the serving bundle.
func (s *Service) Install(b *Bundle) {
	s.current.Store(b)
	if s.metrics != nil {
		s.metrics.ModelReady.Set(1)
		s.metrics.TrainingRows.Set(float64(b.Rows))
	}
	s.logger.Info("Model installed",
		log.ModelVersionKey, b.Version.String(),
		log.SamplesKey, b.Rows,
	)
}

// CheckReadiness implements the readiness check.
func (s *Service) CheckReadiness(_ context.Context) error {
	if s.Current() == nil {
		return errors.WithStack(ErrNotReady)
	}
	return nil
}

// Retrain loads the dataset, fits a new bundle and installs it. Concurrent
// calls run one at a time. The previous bundle keeps serving until the new
// one is installed, and stays installed if training fails.
func (s *Service) Retrain(ctx context.Context) (*Bundle, error) {
	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	b, err := s.retrain(ctx)
	if s.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		s.metrics.TrainingRuns.WithLabelValues(outcome).Inc()
	}
	if err != nil {
		s.logger.Error("Retrain failed", err, log.OperationKey, log.OperationFit)
		return nil, err
	}
	return b, nil
}

func (s *Service) retrain(ctx context.Context) (*Bundle, error) {
	table, report, err := s.loader.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load training data")
	}
	if s.metrics != nil {
		s.metrics.DroppedRows.Set(float64(report.Dropped))
	}

	b, err := s.trainer.Train(ctx, table)
	if err != nil {
		return nil, err
	}
	b.Dropped = report.Dropped

	if s.metrics != nil {
		s.metrics.TrainingDuration.Observe(b.elapsed())
	}
	if s.snapshotPath != "" {
		if err := b.Save(s.snapshotPath); err != nil {
			// the fresh bundle is still usable
			s.logger.Warn("Snapshot save failed",
				log.SourceKey, s.snapshotPath,
				"error", err.Error(),
			)
		}
	}
	s.Install(b)
	return b, nil
}

// Predict classifies the AQI predicted for f with the current bundle.
func (s *Service) Predict(f Features) (Prediction, error) {
	start := time.Now()
	b := s.Current()
	if b == nil {
		s.countError(log.ErrorNotFitted)
		return Prediction{}, errors.WithStack(ErrNotReady)
	}
	if err := f.Validate(); err != nil {
		s.countError(log.ErrorInvalidInput)
		return Prediction{}, err
	}
	y, err := b.Predict(f)
	if err != nil {
		s.countError(errorReason(err))
		return Prediction{}, err
	}
	band := advisory.Classify(y)
	if s.logger.Enabled(context.Background(), log.LevelDebug) {
		s.logger.Debug("Prediction served",
			log.OperationKey, log.OperationPredict,
			log.PhaseKey, log.PhaseInference,
			log.ModelVersionKey, b.Version.String(),
			log.PredictionKey, y,
			log.BandKey, band.Key,
		)
	}
	if s.metrics != nil {
		s.metrics.Predictions.WithLabelValues(band.Key).Inc()
		s.metrics.PredictionDuration.Observe(time.Since(start).Seconds())
	}
	return Prediction{AQI: y, Band: band, ModelVersion: b.Version.String()}, nil
}

func (s *Service) countError(reason string) {
	if s.metrics != nil {
		s.metrics.PredictionErrors.WithLabelValues(reason).Inc()
	}
}

func errorReason(err error) string {
	var shape *errors.InputShapeError
	var invalid *errors.ValidationError
	var numeric *errors.NumericalInstabilityError
	switch {
	case errors.As(err, &shape):
		return log.ErrorDimensionMismatch
	case errors.As(err, &invalid):
		return log.ErrorInvalidInput
	case errors.As(err, &numeric):
		return log.ErrorNumerical
	default:
		return log.ErrorInternal
	}
}
