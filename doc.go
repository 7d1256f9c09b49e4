// Package airq predicts the Air Quality Index from pollutant concentrations
// and serves health advisories for the predicted value.
//
// The module is organized like a small scikit-learn:
//
//   - preprocessing: StandardScaler
//   - sklearn/tree: CART DecisionTreeRegressor
//   - sklearn/ensemble: RandomForestRegressor (bagging, per-split feature
//     subsampling, deterministic parallel fitting)
//   - metrics: R², RMSE, MAE
//   - core/model, core/parallel: fitted state, gob persistence, worker splitting
//   - pkg/errors, pkg/log: cockroachdb/errors based error types and a
//     zerolog backed structured logger
//
// The service itself lives under internal/:
//
//   - dataset: CSV loading and cleaning into typed observations
//   - aqi: training, the immutable model Bundle and the serving Service
//   - advisory: the six AQI bands with interpretation and actions
//   - analysis: descriptive statistics and PNG charts
//   - web: gin pages, JSON API, health and metrics endpoints
//   - config, observability: YAML/.env/env configuration and Prometheus metrics
//
// # Quick Start
//
//	table, _, err := dataset.LoadClean("Data.csv", dataset.DefaultSentinel)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	bundle, err := aqi.NewTrainer(config.Default().Forest).Train(ctx, table)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	y, err := bundle.Predict(aqi.Features{PM25: 10, PM10: 20, NO: 5, NO2: 15, NOx: 8})
//	fmt.Println(y, advisory.Classify(y).Label)
//
// The airq command (cmd/airq) wraps the same steps in an HTTP server.
package airq
