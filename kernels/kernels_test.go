package kernels

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// referenceGemm is the textbook column-major triple loop
func referenceGemm(d Descriptor, a, b, c []float64) {
	for j := 0; j < d.N; j++ {
		for i := 0; i < d.M; i++ {
			var acc float64
			for p := 0; p < d.K; p++ {
				acc += a[i+p*d.LdA] * b[p+j*d.LdB]
			}
			if d.Beta == 0 {
				c[i+j*d.LdC] = d.Alpha * acc
			} else {
				c[i+j*d.LdC] = d.Alpha*acc + d.Beta*c[i+j*d.LdC]
			}
		}
	}
}

func randomSlice(rng *rand.Rand, n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = rng.Float64()*2 - 1
	}
	return s
}

func TestBLASMatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	shapes := []Descriptor{
		{M: 4, N: 9, K: 10, LdA: 10, LdB: 10, LdC: 10, Alpha: 1, Beta: 0},
		{M: 4, N: 9, K: 9, LdA: 10, LdB: 9, LdC: 10, Alpha: 1, Beta: 1},
		{M: 1, N: 5, K: 3, LdA: 6, LdB: 6, LdC: 6, Alpha: 1, Beta: 0},
		{M: 7, N: 3, K: 2, LdA: 7, LdB: 2, LdC: 8, Alpha: -0.5, Beta: 1},
	}
	for _, d := range shapes {
		t.Run(d.String(), func(t *testing.T) {
			fn, err := BLAS{}.Generate(d)
			require.NoError(t, err)

			a := randomSlice(rng, d.LenA())
			b := randomSlice(rng, d.LenB())
			c := randomSlice(rng, d.LenC())
			want := append([]float64(nil), c...)

			referenceGemm(d, a, b, want)
			fn(a, b, c)
			assert.InDeltaSlice(t, want, c, 1e-12)
		})
	}
}

func TestBLASLeavesPaddingUntouched(t *testing.T) {
	d := Descriptor{M: 2, N: 2, K: 2, LdA: 4, LdB: 4, LdC: 4, Alpha: 1}
	fn, err := BLAS{}.Generate(d)
	require.NoError(t, err)
	a := []float64{1, 2, 0, 0, 3, 4}
	b := []float64{1, 0, 0, 0, 0, 1}
	c := []float64{9, 9, 7, 7, 9, 9}
	fn(a, b, c)
	assert.Equal(t, []float64{1, 2, 7, 7, 3, 4}, c)
}

func TestDescriptorValidate(t *testing.T) {
	good := Descriptor{M: 2, N: 3, K: 4, LdA: 2, LdB: 4, LdC: 2, Alpha: 1}
	require.NoError(t, good.Validate())

	bad := map[string]func(d *Descriptor){
		"zero m":    func(d *Descriptor) { d.M = 0 },
		"small lda": func(d *Descriptor) { d.LdA = 1 },
		"small ldb": func(d *Descriptor) { d.LdB = 3 },
		"small ldc": func(d *Descriptor) { d.LdC = 1 },
		"beta":      func(d *Descriptor) { d.Beta = 0.5 },
	}
	for name, mutate := range bad {
		t.Run(name, func(t *testing.T) {
			d := good
			mutate(&d)
			assert.ErrorIs(t, d.Validate(), ErrBadShape)
		})
	}
	assert.Equal(t, int64(48), good.Flops())
}

type closingBackend struct {
	BLAS
	closed bool
	failAt int
	calls  int
}

func (b *closingBackend) Generate(d Descriptor) (Func, error) {
	b.calls++
	if b.calls == b.failAt {
		return nil, fmt.Errorf("%w: refused", ErrBadShape)
	}
	return b.BLAS.Generate(d)
}

func (b *closingBackend) Close() error {
	b.closed = true
	return nil
}

func TestRegistryGroupsAndValidate(t *testing.T) {
	be := &closingBackend{}
	r := NewRegistry(be)
	d := Descriptor{M: 2, N: 2, K: 2, LdA: 2, LdB: 2, LdC: 2, Alpha: 1}

	require.NoError(t, r.Add(1, d))
	require.NoError(t, r.Add(1, d))
	require.NoError(t, r.Add(0, d))
	assert.Equal(t, 2, r.Groups())
	assert.Equal(t, 1, r.Len(0))
	assert.Equal(t, 2, r.Len(1))
	assert.Equal(t, 0, r.Len(5))
	assert.Equal(t, d, r.Descriptor(1, 1))
	assert.NotNil(t, r.Kernel(0, 0))

	assert.NoError(t, r.Validate(2, 1))
	assert.ErrorIs(t, r.Validate(2, 2), ErrIncomplete)
	assert.ErrorIs(t, r.Validate(3, 1), ErrIncomplete)

	require.NoError(t, r.Close())
	assert.True(t, be.closed)
}

func TestRegistryAddFailsAtRegistration(t *testing.T) {
	r := NewRegistry(&closingBackend{failAt: 2})
	d := Descriptor{M: 2, N: 2, K: 2, LdA: 2, LdB: 2, LdC: 2, Alpha: 1}
	require.NoError(t, r.Add(0, d))
	err := r.Add(0, d)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadShape))
	assert.Equal(t, 1, r.Len(0))

	assert.Error(t, r.Add(-1, d))
	assert.ErrorIs(t, r.Add(0, Descriptor{}), ErrBadShape)
}

func TestNewRegistryDefaultsToBLAS(t *testing.T) {
	r := NewRegistry(nil)
	assert.Equal(t, "gonum-blas", r.Backend().Name())
	assert.NoError(t, r.Close())
}
