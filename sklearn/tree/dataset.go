package tree

import (
	"github.com/YuminosukeSato/airq/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Dataset is a dense, read-only copy of a training set. A forest builds it
// once and shares it between trees fitted concurrently.
type Dataset struct {
	X         []float64 // row-major, NSamples × NFeatures
	Y         []float64
	NSamples  int
	NFeatures int
}

// NewDataset copies X (n×p) and y (n×1) and rejects empty, mismatched or
// non-finite input.
func NewDataset(X, y mat.Matrix) (*Dataset, error) {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()

	if rows == 0 || cols == 0 {
		return nil, errors.NewModelError("tree.NewDataset", "empty data", errors.ErrEmptyData)
	}
	if rows != yRows {
		return nil, errors.NewDimensionError("tree.NewDataset", rows, yRows, 0)
	}
	if yCols != 1 {
		return nil, errors.NewDimensionError("tree.NewDataset", 1, yCols, 1)
	}
	if err := errors.CheckMatrix("tree.NewDataset", X); err != nil {
		return nil, err
	}
	if err := errors.CheckMatrix("tree.NewDataset", y); err != nil {
		return nil, err
	}

	d := &Dataset{
		X:         make([]float64, rows*cols),
		Y:         make([]float64, rows),
		NSamples:  rows,
		NFeatures: cols,
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			d.X[i*cols+j] = X.At(i, j)
		}
		d.Y[i] = y.At(i, 0)
	}
	return d, nil
}

// At returns feature j of sample i.
func (d *Dataset) At(i, j int) float64 {
	return d.X[i*d.NFeatures+j]
}

// AllIndices returns 0..NSamples-1.
func (d *Dataset) AllIndices() []int {
	idx := make([]int, d.NSamples)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
