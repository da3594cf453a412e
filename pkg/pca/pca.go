// Package pca implements Principal Component Analysis on dense float64 matrices.
//
// A Model is fitted on an n×d matrix of observations (one row per sample). Fitting
// centers every column on its mean, factorizes the centered data with a thin
// singular value decomposition and keeps the first k right singular vectors as
// principal axes, ordered by descending singular value. Transform projects data
// onto those axes; no whitening or scaling is applied to the projection.
//
// Each axis is oriented so that its largest-magnitude loading is positive. The
// orientation of a principal axis is otherwise arbitrary, and callers comparing
// results across implementations should only rely on magnitudes.
package pca

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrEmpty is returned when the input has no rows or no columns.
	ErrEmpty = errors.New("pca: empty input")
	// ErrShape is returned for ragged rows or a feature count that does not match the model.
	ErrShape = errors.New("pca: shape mismatch")
	// ErrComponents is returned when k is outside [1, min(n_samples, n_features)].
	ErrComponents = errors.New("pca: invalid number of components")
	// ErrNotConverged is returned when the singular value decomposition fails.
	ErrNotConverged = errors.New("pca: singular value decomposition did not converge")
	// ErrNonFinite is returned when a NaN or Inf appears in the input or in a result.
	ErrNonFinite = errors.New("pca: non-finite value")
)

// Model is a fitted PCA transformation.
type Model struct {
	// Mean is the per-feature mean of the training data (length NFeatures).
	Mean []float64

	// Components holds the principal axes as rows (NComponents × NFeatures).
	Components *mat.Dense

	// SingularValues of the centered training data for each kept axis.
	SingularValues []float64

	// ExplainedVariance is σ²/(n−1) per kept axis. Zero when the model was fitted on a single sample.
	ExplainedVariance []float64

	// ExplainedVarianceRatio is the fraction of the total variance carried by each kept axis.
	ExplainedVarianceRatio []float64

	NSamples    int
	NFeatures   int
	NComponents int
}

// FromRows copies a row-major slice of equal-length rows into a dense matrix.
func FromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmpty
	}
	d := len(rows[0])
	data := make([]float64, 0, len(rows)*d)
	for i, row := range rows {
		if len(row) != d {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrShape, i, len(row), d)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), d, data), nil
}

// ToRows copies a matrix into a freshly allocated slice of rows.
func ToRows(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(make([]float64, c), i, m)
	}
	return rows
}

// Fit computes a PCA model keeping k principal axes.
func Fit(x mat.Matrix, k int) (*Model, error) {
	m, _, err := fit(x, k)
	return m, err
}

// FitTransform fits a model and returns the projection of x onto its axes (n×k).
func FitTransform(x mat.Matrix, k int) (*Model, *mat.Dense, error) {
	m, centered, err := fit(x, k)
	if err != nil {
		return nil, nil, err
	}
	y, err := m.project(centered)
	if err != nil {
		return nil, nil, err
	}
	return m, y, nil
}

// Transform projects the rows of x onto the model's principal axes.
func (m *Model) Transform(x mat.Matrix) (*mat.Dense, error) {
	n, d := x.Dims()
	if n == 0 || d == 0 {
		return nil, ErrEmpty
	}
	if d != m.NFeatures {
		return nil, fmt.Errorf("%w: got %d features, model has %d", ErrShape, d, m.NFeatures)
	}
	centered := center(x, m.Mean)
	if !allFinite(centered) {
		return nil, fmt.Errorf("%w: centered input", ErrNonFinite)
	}
	return m.project(centered)
}

// InverseTransform maps reduced rows (n×k) back to the original feature space.
// The result equals the input exactly only when no variance was discarded.
func (m *Model) InverseTransform(y mat.Matrix) (*mat.Dense, error) {
	n, k := y.Dims()
	if n == 0 || k == 0 {
		return nil, ErrEmpty
	}
	if k != m.NComponents {
		return nil, fmt.Errorf("%w: got %d components, model has %d", ErrShape, k, m.NComponents)
	}
	var x mat.Dense
	x.Mul(y, m.Components)
	for i := 0; i < n; i++ {
		floats.Add(x.RawRowView(i), m.Mean)
	}
	return &x, nil
}

// TotalExplainedVarianceRatio is the fraction of variance retained by all kept axes.
func (m *Model) TotalExplainedVarianceRatio() float64 {
	return floats.Sum(m.ExplainedVarianceRatio)
}

func fit(x mat.Matrix, k int) (*Model, *mat.Dense, error) {
	n, d := x.Dims()
	if n == 0 || d == 0 {
		return nil, nil, ErrEmpty
	}
	if limit := min(n, d); k < 1 || k > limit {
		return nil, nil, fmt.Errorf("%w: n_components=%d must be between 1 and min(n_samples, n_features)=%d", ErrComponents, k, limit)
	}
	if !allFinite(x) {
		return nil, nil, fmt.Errorf("%w: input", ErrNonFinite)
	}

	// 1. Column means and centering
	mean := make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, x)
		mean[j] = stat.Mean(col, nil)
	}
	centered := center(x, mean)
	if !allFinite(centered) {
		// Means of values near the float64 limit overflow.
		return nil, nil, fmt.Errorf("%w: centered input", ErrNonFinite)
	}

	// 2. Thin SVD of the centered data
	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return nil, nil, ErrNotConverged
	}
	values := svd.Values(nil)
	var v mat.Dense
	svd.VTo(&v) // d × min(n, d), columns are the axes

	// 3. Keep the first k axes as rows, with a deterministic orientation
	components := mat.NewDense(k, d, nil)
	components.Copy(v.Slice(0, d, 0, k).T())
	for i := 0; i < k; i++ {
		flipSign(components.RawRowView(i))
	}

	// 4. Variance bookkeeping
	variance := make([]float64, len(values))
	if n > 1 {
		for i, s := range values {
			variance[i] = s * s / float64(n-1)
		}
	}
	total := floats.Sum(variance)
	ratio := make([]float64, k)
	if total > 0 {
		for i := range ratio {
			ratio[i] = variance[i] / total
		}
	}

	m := &Model{
		Mean:                   mean,
		Components:             components,
		SingularValues:         append([]float64(nil), values[:k]...),
		ExplainedVariance:      append([]float64(nil), variance[:k]...),
		ExplainedVarianceRatio: ratio,
		NSamples:               n,
		NFeatures:              d,
		NComponents:            k,
	}
	return m, centered, nil
}

func (m *Model) project(centered *mat.Dense) (*mat.Dense, error) {
	var y mat.Dense
	y.Mul(centered, m.Components.T())
	if !allFinite(&y) {
		return nil, fmt.Errorf("%w: projection", ErrNonFinite)
	}
	return &y, nil
}

// center returns a copy of x with mean subtracted from every row.
func center(x mat.Matrix, mean []float64) *mat.Dense {
	n, _ := x.Dims()
	c := mat.DenseCopyOf(x)
	for i := 0; i < n; i++ {
		floats.Sub(c.RawRowView(i), mean)
	}
	return c
}

// flipSign orients an axis so its largest-magnitude loading is positive.
// Ties resolve to the lowest index.
func flipSign(axis []float64) {
	best, idx := -1.0, 0
	for j, v := range axis {
		if a := math.Abs(v); a > best {
			best, idx = a, j
		}
	}
	if axis[idx] < 0 {
		floats.Scale(-1, axis)
	}
}

func allFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
