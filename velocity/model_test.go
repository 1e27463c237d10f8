package velocity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleLame(t *testing.T) {
	lambda, mu := Sample{Vp: 6000, Vs: 3464, Rho: 2670}.Lame()
	assert.InDelta(t, 3464.0*3464*2670, mu, 1e-3)
	assert.InDelta(t, 6000.0*6000*2670-2*mu, lambda, 1e-3)

	assert.NoError(t, Sample{Vp: 2, Vs: 1, Rho: 1}.Validate())
	assert.Error(t, Sample{Vp: 1, Vs: 1, Rho: 1}.Validate())
	assert.Error(t, Sample{Vp: 2, Vs: 1, Rho: 0}.Validate())
}

func TestLayered(t *testing.T) {
	top := Sample{Vp: 1500, Vs: 500, Rho: 1800}
	mid := Sample{Vp: 4000, Vs: 2300, Rho: 2400}
	deep := Sample{Vp: 6500, Vs: 3700, Rho: 2800}
	m, err := NewLayered([]Layer{
		{Top: 5000, Sample: deep},
		{Top: 0, Sample: top},
		{Top: 1000, Sample: mid},
	})
	require.NoError(t, err)

	for _, tc := range []struct {
		z    float64
		want Sample
	}{
		{0, top}, {-999, top}, {-1000, mid}, {-4999.5, mid}, {-5000, deep}, {-1e6, deep},
	} {
		s, err := m.Query(0, 0, tc.z)
		require.NoError(t, err)
		assert.Equal(t, tc.want, s, "z=%g", tc.z)
	}

	_, err = m.Query(0, 0, 10)
	assert.ErrorIs(t, err, ErrOutside)
}

func TestNewLayeredErrors(t *testing.T) {
	s := Sample{Vp: 2, Vs: 1, Rho: 1}
	_, err := NewLayered(nil)
	assert.Error(t, err)
	_, err = NewLayered([]Layer{{Top: 10, Sample: s}})
	assert.Error(t, err)
	_, err = NewLayered([]Layer{{Top: 0, Sample: s}, {Top: 0, Sample: s}})
	assert.Error(t, err)
	_, err = NewLayered([]Layer{{Top: 0, Sample: Sample{Vp: 1, Vs: 2, Rho: 1}}})
	assert.Error(t, err)
}

func TestQueryAll(t *testing.T) {
	m, err := NewLayered([]Layer{
		{Top: -100, Sample: Sample{Vp: 2, Vs: 1, Rho: 1}},
		{Top: 10, Sample: Sample{Vp: 4, Vs: 2, Rho: 2}},
	})
	require.NoError(t, err)

	pts := make([][3]float64, 3000)
	for i := range pts {
		pts[i][2] = -float64(i % 20)
	}
	out, err := QueryAll(context.Background(), m, pts, 3)
	require.NoError(t, err)
	for i, s := range out {
		if i%20 >= 10 {
			assert.Equal(t, 4.0, s.Vp, "point %d", i)
		} else {
			assert.Equal(t, 2.0, s.Vp, "point %d", i)
		}
	}

	pts[2500][2] = 1000
	_, err = QueryAll(context.Background(), m, pts, 0)
	assert.ErrorIs(t, err, ErrOutside)
}
