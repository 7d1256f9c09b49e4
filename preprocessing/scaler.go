// Package preprocessing provides feature scalers with a scikit-learn style API.
package preprocessing

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/airq/core/model"
	"github.com/YuminosukeSato/airq/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var _ model.Transformer = (*StandardScaler)(nil)

// StandardScaler はscikit-learn互換の標準化スケーラー
// データを平均0、標準偏差1に変換する
type StandardScaler struct {
	State *model.StateManager

	// Mean は各特徴量の平均値
	Mean []float64

	// Scale は各特徴量の母標準偏差。分散が0の特徴量は1になる。
	Scale []float64

	// Var は各特徴量の母分散
	Var []float64

	// WithMean は平均を引くかどうか (デフォルト: true)
	WithMean bool

	// WithStd は標準偏差で割るかどうか (デフォルト: true)
	WithStd bool
}

// NewStandardScaler は新しいStandardScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	XScaled, err := scaler.FitTransform(X)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		State:    model.NewStateManager(),
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// NewStandardScalerDefault はデフォルト設定でStandardScalerを作成する
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// IsFitted reports whether Fit has completed.
func (s *StandardScaler) IsFitted() bool {
	return s.State != nil && s.State.IsFitted()
}

// NFeatures returns the number of columns seen in Fit.
func (s *StandardScaler) NFeatures() int {
	if s.State == nil {
		return 0
	}
	n, _ := s.State.GetDimensions()
	return n
}

// Fit は訓練データから統計情報（平均、標準偏差）を計算する
func (s *StandardScaler) Fit(X mat.Matrix) (err error) {
	defer errors.Recover(&err, "StandardScaler.Fit")

	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}
	if err := errors.CheckMatrix("StandardScaler.Fit", X); err != nil {
		return err
	}
	if s.State == nil {
		s.State = model.NewStateManager()
	}

	mean := make([]float64, c)
	variance := make([]float64, c)
	scale := make([]float64, c)

	for j := 0; j < c; j++ {
		sum := 0.0
		for i := 0; i < r; i++ {
			sum += X.At(i, j)
		}
		mean[j] = sum / float64(r)

		sumSquares := 0.0
		for i := 0; i < r; i++ {
			diff := X.At(i, j) - mean[j]
			sumSquares += diff * diff
		}
		variance[j] = sumSquares / float64(r)
	}

	for j := 0; j < c; j++ {
		if !s.WithMean {
			mean[j] = 0
		}
		scale[j] = 1
		if s.WithStd {
			scale[j] = math.Sqrt(variance[j])
			// 分散0の特徴量はスケール1
			if scale[j] < 1e-12 {
				scale[j] = 1
			}
		}
	}

	s.Mean, s.Var, s.Scale = mean, variance, scale
	s.State.SetFitted(c, r)
	return nil
}

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("StandardScaler", "Transform")
	}
	r, c := X.Dims()
	if err := s.State.RequireFeatures("StandardScaler.Transform", c); err != nil {
		return nil, err
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			result.Set(i, j, (X.At(i, j)-s.Mean[j])/s.Scale[j])
		}
	}
	return result, nil
}

// TransformRow standardizes a single feature vector into dst, which must
// have the same length as x. It avoids a matrix allocation on the
// prediction path.
func (s *StandardScaler) TransformRow(dst, x []float64) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError("StandardScaler", "TransformRow")
	}
	if err := s.State.RequireFeatures("StandardScaler.TransformRow", len(x)); err != nil {
		return err
	}
	if len(dst) != len(x) {
		return errors.NewDimensionError("StandardScaler.TransformRow", len(x), len(dst), 1)
	}
	for j, v := range x {
		dst[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("StandardScaler", "InverseTransform")
	}
	r, c := X.Dims()
	if err := s.State.RequireFeatures("StandardScaler.InverseTransform", c); err != nil {
		return nil, err
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			result.Set(i, j, X.At(i, j)*s.Scale[j]+s.Mean[j])
		}
	}
	return result, nil
}

// GetParams はスケーラーのパラメータを取得する
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean": s.WithMean,
		"with_std":  s.WithStd,
	}
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)",
		s.WithMean, s.WithStd, s.NFeatures())
}
