package element

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// MaxOrder bounds the supported order; beyond it the monomial Gram matrix
// loses positive definiteness in double precision.
const MaxOrder = 8

// Basis is an orthonormal, hierarchical modal basis on the unit simplex.
// The basis is built from the graded monomials x^a y^b z^c by a Cholesky
// factorisation of their Gram matrix, so the first Modes(t, p) functions
// span exactly the polynomials of degree below p.
type Basis struct {
	typ   Type
	order int

	// monomial exponents in graded order and the reverse lookup
	exps  [][3]int
	index map[[3]int]int

	gram *mat.SymDense // ∫ m_a m_b over the reference element
	coef *mat.Dense    // row i holds the monomial coefficients of φ_i

	// stiff[d](i,k) = ∫ φ_i ∂φ_k/∂ξ_d, equal to M^-1 K since M = I
	stiff []*mat.Dense
}

// NewBasis constructs the modal basis of the given element type and order
func NewBasis(t Type, order int) (*Basis, error) {
	if order < 1 || order > MaxOrder {
		return nil, fmt.Errorf("order %d out of range [1,%d]", order, MaxOrder)
	}
	if t > Tet {
		return nil, fmt.Errorf("unsupported element type %v", t)
	}
	b := &Basis{
		typ:   t,
		order: order,
		index: make(map[[3]int]int),
	}
	b.enumerate()

	n := len(b.exps)
	dims := t.Dimensions()
	b.gram = mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			e := [3]int{
				b.exps[i][0] + b.exps[j][0],
				b.exps[i][1] + b.exps[j][1],
				b.exps[i][2] + b.exps[j][2],
			}
			b.gram.SetSym(i, j, monomialIntegral(dims, e))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(b.gram); !ok {
		return nil, fmt.Errorf("gram matrix of %v order %d is not positive definite", t, order)
	}
	var L, Linv mat.TriDense
	chol.LTo(&L)
	if err := Linv.InverseTri(&L); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("inverting cholesky factor: %w", err)
		}
	}
	b.coef = mat.DenseCopyOf(&Linv)

	var cg mat.Dense
	cg.Mul(b.coef, b.gram)
	for d := 0; d < dims; d++ {
		var tmp, D mat.Dense
		tmp.Mul(&cg, b.derivative(d))
		D.Mul(&tmp, b.coef.T())
		b.stiff = append(b.stiff, &D)
	}
	return b, nil
}

func (b *Basis) enumerate() {
	add := func(e [3]int) {
		b.index[e] = len(b.exps)
		b.exps = append(b.exps, e)
	}
	for p := 0; p < b.order; p++ {
		switch b.typ.Dimensions() {
		case 1:
			add([3]int{p, 0, 0})
		case 2:
			for a := p; a >= 0; a-- {
				add([3]int{a, p - a, 0})
			}
		case 3:
			for a := p; a >= 0; a-- {
				for c := p - a; c >= 0; c-- {
					add([3]int{a, c, p - a - c})
				}
			}
		}
	}
}

// derivative returns P with P(b,a) the coefficient of m_b in ∂m_a/∂ξ_d
func (b *Basis) derivative(d int) *mat.Dense {
	n := len(b.exps)
	P := mat.NewDense(n, n, nil)
	for a, e := range b.exps {
		if e[d] == 0 {
			continue
		}
		f := e
		f[d]--
		P.Set(b.index[f], a, float64(e[d]))
	}
	return P
}

// monomialIntegral integrates x^a y^b z^c over the unit simplex of the
// given dimension: a! b! c! / (a+b+c+dims)!
func monomialIntegral(dims int, e [3]int) float64 {
	num := factorial(e[0]) * factorial(e[1]) * factorial(e[2])
	return num / factorial(e[0]+e[1]+e[2]+dims)
}

func factorial(n int) float64 {
	f := 1.0
	for i := 2; i <= n; i++ {
		f *= float64(i)
	}
	return f
}

func (b *Basis) Type() Type { return b.typ }
func (b *Basis) Order() int { return b.order }
func (b *Basis) Modes() int { return len(b.exps) }

// Exponents returns the monomial exponents in the order used by Project
func (b *Basis) Exponents() [][3]int {
	out := make([][3]int, len(b.exps))
	copy(out, b.exps)
	return out
}

// MonomialIndex returns the position of x^a y^b z^c in Exponents, or -1
func (b *Basis) MonomialIndex(a, bb, c int) int {
	if i, ok := b.index[[3]int{a, bb, c}]; ok {
		return i
	}
	return -1
}

// Stiffness returns the modal derivative operator for reference dimension d
func (b *Basis) Stiffness(d int) mat.Matrix {
	return b.stiff[d]
}

// Coefficients returns the monomial coefficients of the basis functions
func (b *Basis) Coefficients() mat.Matrix {
	return b.coef
}

// Project returns the modal coefficients of the polynomial with the given
// monomial coefficients, u = C G w.
func (b *Basis) Project(monomials []float64) []float64 {
	n := len(b.exps)
	if len(monomials) != n {
		panic(fmt.Sprintf("project: got %d monomial coefficients, want %d", len(monomials), n))
	}
	var gw, u mat.VecDense
	gw.MulVec(b.gram, mat.NewVecDense(n, monomials))
	u.MulVec(b.coef, &gw)
	return append([]float64(nil), u.RawVector().Data...)
}

// Monomials converts modal coefficients back into monomial coefficients
func (b *Basis) Monomials(modal []float64) []float64 {
	n := len(b.exps)
	var w mat.VecDense
	w.MulVec(b.coef.T(), mat.NewVecDense(n, append([]float64(nil), modal...)))
	return append([]float64(nil), w.RawVector().Data...)
}

// Eval evaluates the modal expansion at a point of the reference element
func (b *Basis) Eval(modal []float64, pt []float64) float64 {
	w := b.Monomials(modal)
	var sum float64
	for a, e := range b.exps {
		v := w[a]
		for d := 0; d < b.typ.Dimensions(); d++ {
			for k := 0; k < e[d]; k++ {
				v *= pt[d]
			}
		}
		sum += v
	}
	return sum
}
