package element

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Material holds the isotropic elastic parameters of an element
type Material struct {
	Lambda float64 // first Lame parameter
	Mu     float64 // shear modulus
	Rho    float64 // density
}

// MaterialFromVelocities converts wave speeds and density to Lame parameters
func MaterialFromVelocities(vp, vs, rho float64) Material {
	mu := vs * vs * rho
	return Material{
		Lambda: vp*vp*rho - 2*mu,
		Mu:     mu,
		Rho:    rho,
	}
}

// VP returns the P-wave speed
func (m Material) VP() float64 {
	return math.Sqrt((m.Lambda + 2*m.Mu) / m.Rho)
}

// VS returns the S-wave speed
func (m Material) VS() float64 {
	return math.Sqrt(m.Mu / m.Rho)
}

// Jacobians returns the flux Jacobians A_j of the velocity-stress system
// ∂q/∂t + Σ_j A_j ∂q/∂x_j = 0, one row-major Q×Q matrix per dimension.
//
// Quantity order:
//
//	1D: σxx, u
//	2D: σxx, σyy, σxy, u, v
//	3D: σxx, σyy, σzz, σxy, σyz, σxz, u, v, w
func Jacobians(t Type, m Material) [][]float64 {
	nq := t.Quantities()
	dims := t.Dimensions()
	A := make([][]float64, dims)
	for d := range A {
		A[d] = make([]float64, nq*nq)
	}
	set := func(d, r, c int, v float64) { A[d][r*nq+c] = v }
	lp2m := m.Lambda + 2*m.Mu
	ir := 1 / m.Rho

	switch t {
	case Line:
		set(0, 0, 1, -lp2m)
		set(0, 1, 0, -ir)
	case Tria:
		set(0, 0, 3, -lp2m)
		set(0, 1, 3, -m.Lambda)
		set(0, 2, 4, -m.Mu)
		set(0, 3, 0, -ir)
		set(0, 4, 2, -ir)

		set(1, 0, 4, -m.Lambda)
		set(1, 1, 4, -lp2m)
		set(1, 2, 3, -m.Mu)
		set(1, 3, 2, -ir)
		set(1, 4, 1, -ir)
	case Tet:
		set(0, 0, 6, -lp2m)
		set(0, 1, 6, -m.Lambda)
		set(0, 2, 6, -m.Lambda)
		set(0, 3, 7, -m.Mu)
		set(0, 5, 8, -m.Mu)
		set(0, 6, 0, -ir)
		set(0, 7, 3, -ir)
		set(0, 8, 5, -ir)

		set(1, 0, 7, -m.Lambda)
		set(1, 1, 7, -lp2m)
		set(1, 2, 7, -m.Lambda)
		set(1, 3, 6, -m.Mu)
		set(1, 4, 8, -m.Mu)
		set(1, 6, 3, -ir)
		set(1, 7, 1, -ir)
		set(1, 8, 4, -ir)

		set(2, 0, 8, -m.Lambda)
		set(2, 1, 8, -m.Lambda)
		set(2, 2, 8, -lp2m)
		set(2, 4, 7, -m.Mu)
		set(2, 5, 6, -m.Mu)
		set(2, 6, 5, -ir)
		set(2, 7, 4, -ir)
		set(2, 8, 2, -ir)
	}
	return A
}

// StarMatrices maps the flux Jacobians into the reference element,
// star_d = Σ_j (∂ξ_d/∂x_j) A_j, where jacInv is the row-major inverse
// Jacobian of the element mapping.
func StarMatrices(t Type, m Material, jacInv []float64) ([][]float64, error) {
	dims := t.Dimensions()
	if len(jacInv) != dims*dims {
		return nil, fmt.Errorf("inverse jacobian has %d entries, want %d", len(jacInv), dims*dims)
	}
	A := Jacobians(t, m)
	nq := t.Quantities()
	star := make([][]float64, dims)
	for d := 0; d < dims; d++ {
		star[d] = make([]float64, nq*nq)
		for j := 0; j < dims; j++ {
			s := jacInv[d*dims+j]
			if s == 0 {
				continue
			}
			for i, a := range A[j] {
				star[d][i] += s * a
			}
		}
	}
	return star, nil
}

// AffineMap returns the row-major inverse Jacobian ∂ξ/∂x and the Jacobian
// determinant of the affine map from the unit simplex onto the element with
// the given vertex coordinates (x = v0 + Σ_d ξ_d (v_{d+1} - v0)).
func AffineMap(t Type, verts [][]float64) (jacInv []float64, det float64, err error) {
	dims := t.Dimensions()
	if len(verts) != t.Vertices() {
		return nil, 0, fmt.Errorf("%v needs %d vertices, got %d", t, t.Vertices(), len(verts))
	}
	J := mat.NewDense(dims, dims, nil)
	for d := 0; d < dims; d++ {
		for j := 0; j < dims; j++ {
			J.Set(j, d, verts[d+1][j]-verts[0][j])
		}
	}
	det = mat.Det(J)
	if det == 0 {
		return nil, 0, fmt.Errorf("degenerate %v element", t)
	}
	var Jinv mat.Dense
	if err = Jinv.Inverse(J); err != nil {
		return nil, 0, fmt.Errorf("inverting element jacobian: %w", err)
	}
	return append([]float64(nil), Jinv.RawMatrix().Data...), det, nil
}
