package aqi

import (
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/airq/internal/config"
	"github.com/YuminosukeSato/airq/internal/dataset"
	"github.com/YuminosukeSato/airq/internal/observability"
	"github.com/YuminosukeSato/airq/pkg/errors"
	"github.com/YuminosukeSato/airq/pkg/log"
	"github.com/YuminosukeSato/airq/sklearn/ensemble"
)

// pollutionTable returns n rows whose AQI is driven mostly by particulates.
func pollutionTable(n int, seed int64) *dataset.Table {
	rng := rand.New(rand.NewSource(seed))
	obs := make([]dataset.Observation, n)
	for i := range obs {
		pm25 := rng.Float64() * 150
		pm10 := pm25*1.4 + rng.Float64()*40
		no := rng.Float64() * 40
		no2 := rng.Float64() * 60
		nox := no + no2 + rng.Float64()*10
		obs[i] = dataset.Observation{
			PM25: pm25, PM10: pm10, NO: no, NO2: no2, NOx: nox,
			AQI: 1.6*pm25 + 0.3*pm10 + 0.4*no2 + rng.NormFloat64()*5,
		}
	}
	return &dataset.Table{Observations: obs}
}

func smallForest() config.ForestConfig {
	f := config.Default().Forest
	f.NEstimators = 30
	f.MaxDepth = 10
	return f
}

func quietTrainer(f config.ForestConfig, opts ...TrainerOption) *Trainer {
	logger, _ := log.NewTestLogger(log.LevelError)
	return NewTrainer(f, append([]TrainerOption{WithLogger(logger)}, opts...)...)
}

func TestTrainAndPredict(t *testing.T) {
	table := pollutionTable(1000, 7)
	b, err := quietTrainer(config.Default().Forest).Train(context.Background(), table)
	require.NoError(t, err)

	assert.Equal(t, 1000, b.Rows)
	assert.Equal(t, dataset.FeatureColumns, b.Features)
	assert.Len(t, b.Forest.Estimators, 500)
	assert.Greater(t, b.InSample.R2, 0.9)

	y, err := b.PredictVector([]float64{10, 20, 5, 15, 8})
	require.NoError(t, err)
	assert.False(t, math.IsNaN(y) || math.IsInf(y, 0))
	assert.GreaterOrEqual(t, y, b.TargetMin)
	assert.LessOrEqual(t, y, b.TargetMax)

	again, err := b.PredictVector([]float64{10, 20, 5, 15, 8})
	require.NoError(t, err)
	assert.Equal(t, math.Float64bits(y), math.Float64bits(again))

	named, err := b.Predict(Features{PM25: 10, PM10: 20, NO: 5, NO2: 15, NOx: 8})
	require.NoError(t, err)
	assert.Equal(t, y, named)
}

func TestTrainDeterministic(t *testing.T) {
	table := pollutionTable(300, 3)

	serial := smallForest()
	serial.NJobs = 1
	parallel := smallForest()
	parallel.NJobs = 4

	a, err := quietTrainer(serial).Train(context.Background(), table)
	require.NoError(t, err)
	b, err := quietTrainer(parallel).Train(context.Background(), table)
	require.NoError(t, err)

	assert.NotEqual(t, a.Version, b.Version)
	for _, x := range [][]float64{{10, 20, 5, 15, 8}, {120, 200, 30, 50, 90}, {0, 0, 0, 0, 0}} {
		ya, err := a.PredictVector(x)
		require.NoError(t, err)
		yb, err := b.PredictVector(x)
		require.NoError(t, err)
		assert.Equal(t, math.Float64bits(ya), math.Float64bits(yb), "x=%v", x)
	}
}

func TestTrainNoTrainableData(t *testing.T) {
	trainer := quietTrainer(smallForest())

	for name, table := range map[string]*dataset.Table{
		"nil":   nil,
		"empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			b, err := trainer.Train(context.Background(), table)
			assert.Nil(t, b)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrNoTrainableData), "got %v", err)
		})
	}
}

func TestTrainCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := quietTrainer(smallForest()).Train(ctx, pollutionTable(50, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTrainUsesClock(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(at)

	b, err := quietTrainer(smallForest(), WithClock(clock)).Train(context.Background(), pollutionTable(100, 2))
	require.NoError(t, err)
	assert.Equal(t, at, b.TrainedAt)
	assert.Equal(t, time.Duration(0), b.Duration)
}

func TestTrainLogs(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelInfo)
	_, err := NewTrainer(smallForest(), WithLogger(logger)).Train(context.Background(), pollutionTable(100, 2))
	require.NoError(t, err)

	assert.True(t, logger.ContainsMessage("Training started"))
	assert.True(t, logger.ContainsMessage("Training completed"))
	assert.True(t, logger.ContainsField(log.OperationKey, log.OperationFit))
}

func TestPredictRejectsBadInput(t *testing.T) {
	b, err := quietTrainer(smallForest()).Train(context.Background(), pollutionTable(200, 4))
	require.NoError(t, err)

	t.Run("shape mismatch", func(t *testing.T) {
		_, err := b.PredictVector([]float64{1, 2, 3})
		var shape *errors.InputShapeError
		require.True(t, errors.As(err, &shape), "got %v", err)
		assert.Equal(t, []int{5}, shape.Expected)
		assert.Equal(t, []int{3}, shape.Got)
	})

	t.Run("non-finite", func(t *testing.T) {
		_, err := b.PredictVector([]float64{1, math.NaN(), 3, 4, 5})
		var invalid *errors.ValidationError
		require.True(t, errors.As(err, &invalid), "got %v", err)
		assert.Equal(t, dataset.ColPM10, invalid.ParamName)
	})

	t.Run("not fitted", func(t *testing.T) {
		var empty *Bundle
		_, err := empty.PredictVector([]float64{1, 2, 3, 4, 5})
		var nf *errors.NotFittedError
		assert.True(t, errors.As(err, &nf), "got %v", err)
	})
}

func TestFeaturesValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      Features
		wantErr bool
	}{
		{"zeros", Features{}, false},
		{"typical", Features{PM25: 10, PM10: 20, NO: 5, NO2: 15, NOx: 8}, false},
		{"negative", Features{PM25: -1}, true},
		{"upper bound", Features{PM10: MaxConcentration}, false},
		{"above upper bound", Features{NO2: 10000}, true},
		{"inf", Features{NOx: math.Inf(1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBundleSnapshotRoundTrip(t *testing.T) {
	b, err := quietTrainer(smallForest()).Train(context.Background(), pollutionTable(200, 5))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, b.Save(path))

	loaded, err := LoadBundle(path)
	require.NoError(t, err)
	assert.Equal(t, b.Version, loaded.Version)
	assert.True(t, b.TrainedAt.Equal(loaded.TrainedAt))
	assert.Equal(t, b.Rows, loaded.Rows)

	x := []float64{42, 60, 12, 20, 35}
	want, err := b.PredictVector(x)
	require.NoError(t, err)
	got, err := loaded.PredictVector(x)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadBundleRejectsMismatchedSnapshot(t *testing.T) {
	b, err := quietTrainer(smallForest()).Train(context.Background(), pollutionTable(200, 5))
	require.NoError(t, err)

	reordered := *b
	reordered.Features = []string{dataset.ColPM25, dataset.ColPM10, dataset.ColNO2, dataset.ColNO, dataset.ColNOx}

	narrow := ensemble.NewRandomForestRegressor().WithNEstimators(3).WithRandomState(1)
	X := mat.NewDense(4, 3, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 13})
	y := mat.NewDense(4, 1, []float64{10, 20, 30, 40})
	require.NoError(t, narrow.Fit(X, y))
	threeColumns := *b
	threeColumns.Forest = narrow

	for name, bundle := range map[string]*Bundle{
		"reordered features":  &reordered,
		"forest on 3 columns": &threeColumns,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "model.gob")
			require.NoError(t, bundle.Save(path))

			loaded, err := LoadBundle(path)
			assert.Nil(t, loaded)
			var me *errors.ModelError
			require.True(t, errors.As(err, &me), "got %v", err)
		})
	}
}

func TestBundleInfo(t *testing.T) {
	b, err := quietTrainer(smallForest()).Train(context.Background(), pollutionTable(200, 6))
	require.NoError(t, err)

	info := b.Info()
	assert.Equal(t, b.Version.String(), info.Version)
	assert.Equal(t, 30, info.Params["n_estimators"])
	require.Len(t, info.Importances, 5)

	var total float64
	best := info.Importances[0]
	for _, imp := range info.Importances {
		total += imp.Value
		if imp.Value > best.Value {
			best = imp
		}
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	// AQI is built mostly from the particulates
	assert.Contains(t, []string{dataset.ColPM25, dataset.ColPM10}, best.Feature)
}

type stubLoader struct {
	mu    sync.Mutex
	table *dataset.Table
	err   error
	calls int
}

func (l *stubLoader) Load(ctx context.Context) (*dataset.Table, dataset.Report, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, dataset.Report{}, l.err
	}
	return l.table, dataset.Report{Read: l.table.Len() + 3, Kept: l.table.Len(), Dropped: 3}, nil
}

func newTestService(t *testing.T, loader Loader, opts ...ServiceOption) (*Service, *observability.Metrics) {
	t.Helper()
	m, _ := observability.NewMetricsForTesting()
	logger, _ := log.NewTestLogger(log.LevelError)
	opts = append([]ServiceOption{WithMetrics(m), WithServiceLogger(logger)}, opts...)
	return NewService(quietTrainer(smallForest()), loader, opts...), m
}

func TestServiceLifecycle(t *testing.T) {
	loader := &stubLoader{table: pollutionTable(200, 8)}
	svc, m := newTestService(t, loader)

	_, err := svc.Predict(Features{PM25: 10})
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, svc.CheckReadiness(context.Background()), ErrNotReady)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PredictionErrors.WithLabelValues(log.ErrorNotFitted)))

	b, err := svc.Retrain(context.Background())
	require.NoError(t, err)
	assert.Same(t, b, svc.Current())
	assert.Equal(t, 3, b.Dropped)
	assert.NoError(t, svc.CheckReadiness(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelReady))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.TrainingRows))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrainingRuns.WithLabelValues("success")))

	p, err := svc.Predict(Features{PM25: 10, PM10: 20, NO: 5, NO2: 15, NOx: 8})
	require.NoError(t, err)
	assert.Equal(t, b.Version.String(), p.ModelVersion)
	assert.NotEmpty(t, p.Band.Label)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Predictions.WithLabelValues(p.Band.Key)))

	_, err = svc.Predict(Features{PM25: -5})
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PredictionErrors.WithLabelValues(log.ErrorInvalidInput)))
}

func TestServiceRetrainFailureKeepsBundle(t *testing.T) {
	loader := &stubLoader{table: pollutionTable(100, 9)}
	svc, m := newTestService(t, loader)

	first, err := svc.Retrain(context.Background())
	require.NoError(t, err)

	loader.mu.Lock()
	loader.table = &dataset.Table{}
	loader.mu.Unlock()

	_, err = svc.Retrain(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoTrainableData))
	assert.Same(t, first, svc.Current())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrainingRuns.WithLabelValues("error")))
}

func TestServiceConcurrentRetrain(t *testing.T) {
	loader := &stubLoader{table: pollutionTable(100, 10)}
	svc, _ := newTestService(t, loader)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Retrain(context.Background())
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// predictions may race with the first install
			_, _ = svc.Predict(Features{PM25: 30, PM10: 40, NO: 2, NO2: 10, NOx: 12})
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, loader.calls)
	assert.NotNil(t, svc.Current())
}

func TestServiceWritesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.gob")
	svc, _ := newTestService(t, &stubLoader{table: pollutionTable(100, 11)}, WithSnapshotPath(path))

	b, err := svc.Retrain(context.Background())
	require.NoError(t, err)

	loaded, err := LoadBundle(path)
	require.NoError(t, err)
	assert.Equal(t, b.Version, loaded.Version)
	assert.Equal(t, 3, loaded.Dropped)
}

func TestFileLoader(t *testing.T) {
	loader := FileLoader{Path: filepath.Join(t.TempDir(), "missing.csv"), Sentinel: dataset.DefaultSentinel}
	_, _, err := loader.Load(context.Background())
	assert.Error(t, err)
}
