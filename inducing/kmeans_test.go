package inducing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// twoClusters builds points tightly grouped around (0,0) and (10,10).
func twoClusters() *mat.Dense {
	X := mat.NewDense(20, 2, nil)
	for i := 0; i < 10; i++ {
		off := 0.01 * float64(i)
		X.SetRow(i, []float64{off, -off})
		X.SetRow(10+i, []float64{10 + off, 10 - off})
	}
	return X
}

func TestKMeansSelector_FindsClusterCenters(t *testing.T) {
	s := NewKMeansSelector(WithKMeansSeed(3))
	Z, err := s.Select(twoClusters(), 2)
	require.NoError(t, err)

	r, c := Z.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 2, c)

	// One center near each cluster, in either order.
	near := func(row []float64, cx float64) bool {
		return sqDistance(row, []float64{cx, cx}) < 1.0
	}
	a, b := Z.RawRowView(0), Z.RawRowView(1)
	ok := (near(a, 0) && near(b, 10)) || (near(a, 10) && near(b, 0))
	assert.True(t, ok, "centers %v and %v not on the clusters", a, b)
}

func TestKMeansSelector_DeterministicPerSeed(t *testing.T) {
	X := twoClusters()

	z1, err := NewKMeansSelector(WithKMeansSeed(9)).Select(X, 3)
	require.NoError(t, err)
	z2, err := NewKMeansSelector(WithKMeansSeed(9)).Select(X, 3)
	require.NoError(t, err)

	assert.True(t, mat.Equal(z1, z2))
}

func TestKMeansSelector_RejectsInvalidCounts(t *testing.T) {
	s := NewKMeansSelector()
	X := twoClusters()

	_, err := s.Select(X, 0)
	assert.Error(t, err)
	_, err = s.Select(X, 21)
	assert.Error(t, err)
	_, err = s.Select(mat.NewDense(1, 1, nil), 1)
	assert.NoError(t, err)
}

func TestRandomSelector_PicksDistinctRows(t *testing.T) {
	X := twoClusters()
	s := NewRandomSelector(5)

	Z, err := s.Select(X, 6)
	require.NoError(t, err)
	r, c := Z.Dims()
	assert.Equal(t, 6, r)
	assert.Equal(t, 2, c)

	// Every selected row exists in X.
	for i := 0; i < r; i++ {
		found := false
		for j := 0; j < 20; j++ {
			if sqDistance(Z.RawRowView(i), X.RawRowView(j)) == 0 {
				found = true
				break
			}
		}
		assert.True(t, found, "row %d not drawn from the inputs", i)
	}
}
