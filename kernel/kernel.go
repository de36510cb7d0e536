// Package kernel provides covariance functions for Gaussian process models.
//
// A Kernel supplies the positive semi-definite covariance matrix K(A, B) and
// its gradients with respect to hyperparameters and input locations. The
// inference engine consumes kernels as opaque collaborators; the concrete
// kernels here exist so models can be assembled and tested end to end.
package kernel

import (
	"gonum.org/v1/gonum/mat"
)

// Kernel represents a covariance function.
type Kernel interface {
	// Eval computes the kernel value between two points.
	Eval(x1, x2 []float64) float64

	// EvalGradParam computes the derivative of Eval with respect to
	// hyperparameter param.
	EvalGradParam(x1, x2 []float64, param int) float64

	// EvalGradX computes the derivative of Eval with respect to coordinate
	// dim of the first argument.
	EvalGradX(x1, x2 []float64, dim int) float64

	// Params returns the current hyperparameters.
	Params() []float64

	// ParamNames returns the hyperparameter names, aligned with Params.
	ParamNames() []string

	// SetParams sets the hyperparameters.
	SetParams(params []float64) error

	// VarianceParams returns the indices of variance-type (amplitude)
	// hyperparameters, which must stay strictly positive.
	VarianceParams() []int
}

// Matrix computes the dense covariance matrix K(A, B) between the rows of A
// and the rows of B.
func Matrix(k Kernel, A, B mat.Matrix) *mat.Dense {
	ra, _ := A.Dims()
	rb, _ := B.Dims()

	K := mat.NewDense(ra, rb, nil)
	for i := 0; i < ra; i++ {
		xi := rowOf(A, i)
		for j := 0; j < rb; j++ {
			K.Set(i, j, k.Eval(xi, rowOf(B, j)))
		}
	}
	return K
}

// SymMatrix computes the symmetric covariance matrix K(A, A).
func SymMatrix(k Kernel, A mat.Matrix) *mat.SymDense {
	n, _ := A.Dims()

	K := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		xi := rowOf(A, i)
		for j := i; j < n; j++ {
			K.SetSym(i, j, k.Eval(xi, rowOf(A, j)))
		}
	}
	return K
}

// SymMatrixGrad computes the symmetric matrix dK(A, A)/dtheta for the given
// hyperparameter index.
func SymMatrixGrad(k Kernel, A mat.Matrix, param int) *mat.SymDense {
	n, _ := A.Dims()

	G := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		xi := rowOf(A, i)
		for j := i; j < n; j++ {
			G.SetSym(i, j, k.EvalGradParam(xi, rowOf(A, j), param))
		}
	}
	return G
}

// MatrixGrad computes dK(A, B)/dtheta for the given hyperparameter index.
func MatrixGrad(k Kernel, A, B mat.Matrix, param int) *mat.Dense {
	ra, _ := A.Dims()
	rb, _ := B.Dims()

	G := mat.NewDense(ra, rb, nil)
	for i := 0; i < ra; i++ {
		xi := rowOf(A, i)
		for j := 0; j < rb; j++ {
			G.Set(i, j, k.EvalGradParam(xi, rowOf(B, j), param))
		}
	}
	return G
}

func rowOf(m mat.Matrix, i int) []float64 {
	if rv, ok := m.(mat.RawRowViewer); ok {
		return rv.RawRowView(i)
	}
	return mat.Row(nil, i, m)
}
