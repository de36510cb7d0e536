package inference

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/gpvi/pkg/errors"
)

// GaussHermite holds fixed-order Gauss-Hermite nodes and weights for
// approximating one-dimensional integrals against a Gaussian density.
//
// Nodes and weights come from the Golub-Welsch algorithm: the eigenvalues of
// the Jacobi matrix of the Hermite recurrence are the nodes and the squared
// first eigenvector components give the weights.
type GaussHermite struct {
	order   int
	nodes   []float64
	weights []float64
}

// NewGaussHermite computes nodes and weights for the given order.
func NewGaussHermite(order int) (*GaussHermite, error) {
	if order < 1 {
		return nil, errors.NewValidationError("order", "must be at least 1", order)
	}

	// Jacobi matrix of the (physicists') Hermite recurrence: zero diagonal,
	// off-diagonal sqrt(i/2).
	J := mat.NewSymDense(order, nil)
	for i := 1; i < order; i++ {
		J.SetSym(i-1, i, math.Sqrt(float64(i)/2))
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(J, true); !ok {
		return nil, errors.New("Gauss-Hermite eigendecomposition failed")
	}

	nodes := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	weights := make([]float64, order)
	sqrtPi := math.Sqrt(math.Pi)
	for k := 0; k < order; k++ {
		v0 := vecs.At(0, k)
		weights[k] = sqrtPi * v0 * v0
	}

	return &GaussHermite{order: order, nodes: nodes, weights: weights}, nil
}

// Order returns the quadrature order.
func (q *GaussHermite) Order() int { return q.order }

// Expect approximates E[h(f)] for f ~ N(mean, variance).
func (q *GaussHermite) Expect(h func(float64) float64, mean, variance float64) float64 {
	scale := math.Sqrt(2 * variance)
	sum := 0.0
	for k := 0; k < q.order; k++ {
		sum += q.weights[k] * h(mean+scale*q.nodes[k])
	}
	return sum / math.Sqrt(math.Pi)
}

// Points returns the transformed evaluation points and normalized weights
// for f ~ N(mean, variance), for callers evaluating several integrands over
// the same grid. The points slice is f_k = mean + sqrt(2*variance)*x_k and
// the weights sum to one.
func (q *GaussHermite) Points(mean, variance float64, points, weights []float64) ([]float64, []float64) {
	if points == nil {
		points = make([]float64, q.order)
	}
	if weights == nil {
		weights = make([]float64, q.order)
	}
	scale := math.Sqrt(2 * variance)
	invSqrtPi := 1 / math.Sqrt(math.Pi)
	for k := 0; k < q.order; k++ {
		points[k] = mean + scale*q.nodes[k]
		weights[k] = q.weights[k] * invSqrtPi
	}
	return points, weights
}
