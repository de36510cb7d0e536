// Package inducing selects inducing-point locations for sparse Gaussian
// process models.
//
// Sparse inference places the variational state on m << n support locations;
// how those locations are chosen drives the quality of the low-rank
// approximation. KMeansSelector spreads them over the input density with
// mini-batch k-means, RandomSelector subsamples the training inputs.
package inducing

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/gpvi/pkg/errors"
)

// KMeansSelector picks inducing locations as mini-batch k-means centroids of
// the training inputs, initialized with k-means++.
type KMeansSelector struct {
	maxIter   int
	batchSize int
	seed      uint64
}

// KMeansOption configures a KMeansSelector.
type KMeansOption func(*KMeansSelector)

// WithKMeansMaxIter sets the number of refinement passes.
func WithKMeansMaxIter(n int) KMeansOption {
	return func(s *KMeansSelector) { s.maxIter = n }
}

// WithKMeansBatchSize sets the mini-batch size used per refinement pass.
func WithKMeansBatchSize(b int) KMeansOption {
	return func(s *KMeansSelector) { s.batchSize = b }
}

// WithKMeansSeed seeds the selector's random draws.
func WithKMeansSeed(seed uint64) KMeansOption {
	return func(s *KMeansSelector) { s.seed = seed }
}

// NewKMeansSelector creates a selector with mini-batch refinement.
func NewKMeansSelector(opts ...KMeansOption) *KMeansSelector {
	s := &KMeansSelector{
		maxIter:   50,
		batchSize: 100,
		seed:      1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns m centroid locations for the rows of X.
func (s *KMeansSelector) Select(X *mat.Dense, m int) (*mat.Dense, error) {
	n, d := X.Dims()
	if n == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	if m < 1 || m > n {
		return nil, errors.NewValidationError("m", "must be in [1, n]", m)
	}

	rng := rand.New(rand.NewPCG(s.seed, s.seed^0xdeadbeef))
	centers := plusPlusInit(X, m, rng)
	counts := make([]int, m)

	batch := s.batchSize
	if batch > n {
		batch = n
	}

	for iter := 0; iter < s.maxIter; iter++ {
		for _, idx := range rng.Perm(n)[:batch] {
			row := X.RawRowView(idx)
			c := nearest(row, centers)

			// Per-centroid decaying step, so early assignments move
			// centers fast and later ones refine.
			counts[c]++
			eta := 1.0 / float64(counts[c])
			for j := 0; j < d; j++ {
				centers[c][j] = (1-eta)*centers[c][j] + eta*row[j]
			}
		}
	}

	Z := mat.NewDense(m, d, nil)
	for i := range centers {
		Z.SetRow(i, centers[i])
	}
	return Z, nil
}

// plusPlusInit seeds centroids with k-means++: each next center is drawn
// with probability proportional to its squared distance from the chosen set.
func plusPlusInit(X *mat.Dense, m int, rng *rand.Rand) [][]float64 {
	n, d := X.Dims()
	centers := make([][]float64, m)

	centers[0] = make([]float64, d)
	copy(centers[0], X.RawRowView(rng.IntN(n)))

	dist2 := make([]float64, n)
	for c := 1; c < m; c++ {
		total := 0.0
		for i := 0; i < n; i++ {
			row := X.RawRowView(i)
			best := math.Inf(1)
			for j := 0; j < c; j++ {
				if v := sqDistance(row, centers[j]); v < best {
					best = v
				}
			}
			dist2[i] = best
			total += best
		}

		target := rng.Float64() * total
		cum := 0.0
		selected := n - 1
		for i := 0; i < n; i++ {
			cum += dist2[i]
			if cum >= target {
				selected = i
				break
			}
		}

		centers[c] = make([]float64, d)
		copy(centers[c], X.RawRowView(selected))
	}
	return centers
}

func nearest(row []float64, centers [][]float64) int {
	best := math.Inf(1)
	at := 0
	for c, center := range centers {
		if v := sqDistance(row, center); v < best {
			best = v
			at = c
		}
	}
	return at
}

func sqDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

// RandomSelector picks m training inputs uniformly without replacement. It
// is the cheap baseline against KMeansSelector.
type RandomSelector struct {
	seed uint64
}

// NewRandomSelector creates a seeded random subsampler.
func NewRandomSelector(seed uint64) *RandomSelector {
	return &RandomSelector{seed: seed}
}

// Select returns m distinct rows of X.
func (s *RandomSelector) Select(X *mat.Dense, m int) (*mat.Dense, error) {
	n, d := X.Dims()
	if n == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	if m < 1 || m > n {
		return nil, errors.NewValidationError("m", "must be in [1, n]", m)
	}

	rng := rand.New(rand.NewPCG(s.seed, s.seed^0xbf58476d1ce4e5b9))
	Z := mat.NewDense(m, d, nil)
	for i, idx := range rng.Perm(n)[:m] {
		Z.SetRow(i, X.RawRowView(idx))
	}
	return Z, nil
}
