package kernels

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// BLAS generates kernels backed by gonum's Dgemm. gonum is row-major, so the
// column-major product C = A·B is evaluated as the row-major product
// Cᵀ = Bᵀ·Aᵀ over the same memory.
type BLAS struct{}

func (BLAS) Name() string { return "gonum-blas" }

func (BLAS) Generate(d Descriptor) (Func, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	impl := blas64.Implementation()
	return func(a, b, c []float64) {
		impl.Dgemm(blas.NoTrans, blas.NoTrans,
			d.N, d.M, d.K,
			d.Alpha, b, d.LdB, a, d.LdA,
			d.Beta, c, d.LdC)
	}, nil
}
