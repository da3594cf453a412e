package pca

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func randomRows(seed int64, n, d int) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, d)
		for j := range rows[i] {
			// Scale features differently so the spectrum is well separated.
			rows[i][j] = rng.NormFloat64() * float64(d-j)
		}
	}
	return rows
}

func columnVariance(m mat.Matrix, j int) float64 {
	n, _ := m.Dims()
	return stat.Variance(mat.Col(make([]float64, n), j, m), nil)
}

func TestFitTransformSmallExample(t *testing.T) {
	x, err := FromRows([][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 10}})
	require.NoError(t, err)

	model, y, err := FitTransform(x, 2)
	require.NoError(t, err)

	r, c := y.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	for _, row := range ToRows(y) {
		for _, v := range row {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		}
	}
	assert.GreaterOrEqual(t, columnVariance(y, 0), columnVariance(y, 1))
	assert.InDeltaSlice(t, []float64{4, 5, 19.0 / 3}, model.Mean, 1e-12)
	assert.Equal(t, 3, model.NSamples)
	assert.Equal(t, 3, model.NFeatures)
	assert.Equal(t, 2, model.NComponents)
}

func TestShapeAndVarianceOrdering(t *testing.T) {
	cases := []struct {
		name string
		n, d int
		k    int
	}{
		{"tall", 40, 8, 5},
		{"wide", 6, 30, 6},
		{"square", 10, 10, 3},
		{"single component", 12, 4, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			x, err := FromRows(randomRows(int64(tc.n*tc.d), tc.n, tc.d))
			require.NoError(t, err)

			model, y, err := FitTransform(x, tc.k)
			require.NoError(t, err)

			r, c := y.Dims()
			require.Equal(t, tc.n, r)
			require.Equal(t, tc.k, c)

			for i := 0; i+1 < tc.k; i++ {
				assert.GreaterOrEqual(t, columnVariance(y, i)+1e-9, columnVariance(y, i+1))
				assert.GreaterOrEqual(t, model.SingularValues[i], model.SingularValues[i+1])
			}
			// The sample variance of each projected column is the explained variance.
			for i := 0; i < tc.k; i++ {
				assert.InDelta(t, model.ExplainedVariance[i], columnVariance(y, i), 1e-8*math.Max(1, model.ExplainedVariance[i]))
			}
			assert.LessOrEqual(t, model.TotalExplainedVarianceRatio(), 1+1e-12)
		})
	}
}

func TestLosslessReconstruction(t *testing.T) {
	for _, dims := range [][2]int{{5, 3}, {3, 5}, {4, 4}} {
		n, d := dims[0], dims[1]
		x, err := FromRows(randomRows(7, n, d))
		require.NoError(t, err)

		model, y, err := FitTransform(x, min(n, d))
		require.NoError(t, err)

		back, err := model.InverseTransform(y)
		require.NoError(t, err)

		assert.True(t, mat.EqualApprox(x, back, 1e-6), "reconstruction differs for %dx%d", n, d)
		assert.InDelta(t, 1.0, model.TotalExplainedVarianceRatio(), 1e-9)
	}
}

func TestDeterministicMagnitudesAndSigns(t *testing.T) {
	x, err := FromRows(randomRows(42, 25, 6))
	require.NoError(t, err)

	_, first, err := FitTransform(x, 4)
	require.NoError(t, err)
	_, second, err := FitTransform(mat.DenseCopyOf(x), 4)
	require.NoError(t, err)

	assert.True(t, mat.EqualApprox(first, second, 1e-9))
}

func TestAxesOrientation(t *testing.T) {
	x, err := FromRows(randomRows(3, 20, 5))
	require.NoError(t, err)

	model, err := Fit(x, 3)
	require.NoError(t, err)

	for i := 0; i < model.NComponents; i++ {
		row := model.Components.RawRowView(i)
		var norm, maxAbs, signed float64
		for _, v := range row {
			norm += v * v
			if math.Abs(v) > maxAbs {
				maxAbs, signed = math.Abs(v), v
			}
		}
		assert.InDelta(t, 1.0, norm, 1e-9, "axis %d is not unit length", i)
		assert.Positive(t, signed, "axis %d largest loading is negative", i)
	}
}

func TestTransformMatchesFitTransform(t *testing.T) {
	x, err := FromRows(randomRows(11, 15, 7))
	require.NoError(t, err)

	model, y, err := FitTransform(x, 3)
	require.NoError(t, err)

	again, err := model.Transform(x)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(y, again, 1e-12))

	_, err = model.Transform(mat.NewDense(2, 6, nil))
	assert.ErrorIs(t, err, ErrShape)
}

func TestSingleSample(t *testing.T) {
	x, err := FromRows([][]float64{{1, 2, 3}})
	require.NoError(t, err)

	model, y, err := FitTransform(x, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, ToRows(y)[0])
	assert.Equal(t, []float64{0}, model.ExplainedVariance)
	assert.Equal(t, []float64{0}, model.ExplainedVarianceRatio)
}

func TestFitErrors(t *testing.T) {
	x, err := FromRows([][]float64{{1, 2}, {3, 4}, {5, 7}})
	require.NoError(t, err)

	_, err = Fit(x, 0)
	assert.ErrorIs(t, err, ErrComponents)
	_, err = Fit(x, 3)
	assert.ErrorIs(t, err, ErrComponents)
	_, err = Fit(x, 10)
	assert.ErrorIs(t, err, ErrComponents)

	_, err = FromRows(nil)
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = FromRows([][]float64{{}})
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = FromRows([][]float64{{1, 2}, {3}})
	assert.ErrorIs(t, err, ErrShape)

	bad := mat.NewDense(2, 2, []float64{1, math.NaN(), 3, 4})
	_, err = Fit(bad, 1)
	assert.ErrorIs(t, err, ErrNonFinite)

	huge := mat.NewDense(2, 1, []float64{math.MaxFloat64, math.MaxFloat64})
	_, err = Fit(huge, 1)
	assert.ErrorIs(t, err, ErrNonFinite)
}
