// Package model defines the estimator contracts shared by the scaler, the
// tree learners and the ensemble.
package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Scorer is implemented by models that report a goodness-of-fit score.
type Scorer interface {
	// Score returns the coefficient of determination R^2 of the prediction.
	Score(X, y mat.Matrix) (float64, error)
}

// Regressor combines the interfaces every regression model satisfies.
type Regressor interface {
	Fitter
	Predictor
	Scorer
	IsFitted() bool
}

// Transformer はデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// ParameterGetter exposes hyperparameters with scikit-learn names.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ParameterSetter allows hyperparameters to be modified before Fit.
type ParameterSetter interface {
	SetParams(params map[string]interface{}) error
}

// FeatureImporter is implemented by tree based models.
type FeatureImporter interface {
	// GetFeatureImportances returns normalized impurity based importances.
	GetFeatureImportances() []float64
}
