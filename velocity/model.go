// Package velocity provides the seismic velocity models queried at mesh
// vertices.
package velocity

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// ErrOutside is returned for points a model does not cover
var ErrOutside = errors.New("point outside of velocity model")

// Sample holds the wave speeds and density at a point
type Sample struct {
	Vp  float64 `mapstructure:"vp" yaml:"vp"`
	Vs  float64 `mapstructure:"vs" yaml:"vs"`
	Rho float64 `mapstructure:"rho" yaml:"rho"`
}

// Lame returns the Lame parameters λ = ρ(vp² - 2vs²) and μ = ρvs²
func (s Sample) Lame() (lambda, mu float64) {
	mu = s.Vs * s.Vs * s.Rho
	lambda = s.Vp*s.Vp*s.Rho - 2*mu
	return lambda, mu
}

// Validate checks for a physically meaningful sample
func (s Sample) Validate() error {
	switch {
	case s.Rho <= 0:
		return fmt.Errorf("density %g must be positive", s.Rho)
	case s.Vs < 0:
		return fmt.Errorf("shear wave speed %g is negative", s.Vs)
	case s.Vp <= s.Vs:
		return fmt.Errorf("p-wave speed %g must exceed s-wave speed %g", s.Vp, s.Vs)
	}
	return nil
}

// Model answers velocity queries at Cartesian points
type Model interface {
	Query(x, y, z float64) (Sample, error)
}

// Constant is a homogeneous model
type Constant Sample

func (c Constant) Query(x, y, z float64) (Sample, error) { return Sample(c), nil }

// Layer is a horizontal layer reaching down from Top
type Layer struct {
	Top    float64 `mapstructure:"top" yaml:"top"` // depth of the upper boundary
	Sample `mapstructure:",squash" yaml:",inline"`
}

// Layered is a stack of horizontal layers. Depth is -z; a point belongs to
// the deepest layer whose top lies above it.
type Layered struct {
	layers []Layer
}

// NewLayered sorts and validates layers; the shallowest top must be at or
// above the free surface (depth 0).
func NewLayered(layers []Layer) (*Layered, error) {
	if len(layers) == 0 {
		return nil, errors.New("layered model needs at least one layer")
	}
	ls := append([]Layer(nil), layers...)
	sort.Slice(ls, func(i, j int) bool { return ls[i].Top < ls[j].Top })
	for i, l := range ls {
		if err := l.Validate(); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if i > 0 && l.Top == ls[i-1].Top {
			return nil, fmt.Errorf("layers %d and %d share the top %g", i-1, i, l.Top)
		}
	}
	if ls[0].Top > 0 {
		return nil, fmt.Errorf("shallowest layer starts at depth %g, below the surface", ls[0].Top)
	}
	return &Layered{layers: ls}, nil
}

func (m *Layered) Query(x, y, z float64) (Sample, error) {
	depth := -z
	// first layer starting below the point
	i := sort.Search(len(m.layers), func(i int) bool { return m.layers[i].Top > depth })
	if i == 0 {
		return Sample{}, fmt.Errorf("%w: depth %g above the model", ErrOutside, depth)
	}
	return m.layers[i-1].Sample, nil
}

// QueryAll queries the model at every point with up to workers goroutines
func QueryAll(ctx context.Context, m Model, pts [][3]float64, workers int) ([]Sample, error) {
	out := make([]Sample, len(pts))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	const chunk = 1024
	for lo := 0; lo < len(pts); lo += chunk {
		hi := min(lo+chunk, len(pts))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				s, err := m.Query(pts[i][0], pts[i][1], pts[i][2])
				if err != nil {
					return fmt.Errorf("point %d (%g,%g,%g): %w", i, pts[i][0], pts[i][1], pts[i][2], err)
				}
				out[i] = s
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
