// Package timepred computes the ADER time prediction of an element: the
// Cauchy–Kowalevski recursion turns the modal DOFs into Taylor time
// derivatives and integrates them over a time step.
package timepred

import (
	"fmt"

	"github.com/notargets/aderseis/element"
	"github.com/notargets/aderseis/kernels"
	"github.com/notargets/aderseis/utils"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// Kernel groups of the registry
const (
	GroupStiffness = 0 // StiffT[l-1][d] · der[l-1] -> scratch
	GroupStar      = 1 // scratch · star[d] accumulated into der[l]
)

// Config holds configuration for creating a Predictor
type Config struct {
	Element    element.Type
	SpaceOrder int // polynomial degree + 1
	TimeOrder  int // number of Taylor terms, at most SpaceOrder
	Quantities int // defaults to the elastic quantities of Element
}

// Predictor holds the precomputed operators and kernels of one element
// configuration. All tables are read-only after New, so a Predictor may be
// shared by concurrent callers that bring their own buffers.
type Predictor struct {
	cfg     Config
	dims    int
	modes   int
	modesCK []int // modes populated by derivative level l

	// stiffT[l][d] is Modes×Modes column-major
	stiffT [][][]float64

	registry *kernels.Registry
	workers  int
	logger   *logrus.Logger
}

// Option configures a Predictor
type Option func(*Predictor)

// WithBackend selects the kernel backend; the default is kernels.BLAS
func WithBackend(b kernels.Backend) Option {
	return func(p *Predictor) { p.registry = kernels.NewRegistry(b) }
}

// WithWorkers bounds the goroutines used by Batch
func WithWorkers(n int) Option {
	return func(p *Predictor) { p.workers = n }
}

// WithLogger sets the logger
func WithLogger(l *logrus.Logger) Option {
	return func(p *Predictor) { p.logger = l }
}

// New builds the stiffness operators and registers the kernels for cfg
func New(cfg Config, opts ...Option) (*Predictor, error) {
	if cfg.SpaceOrder < 1 {
		return nil, fmt.Errorf("space order %d must be positive", cfg.SpaceOrder)
	}
	if cfg.TimeOrder < 1 || cfg.TimeOrder > cfg.SpaceOrder {
		return nil, fmt.Errorf("time order %d must be in [1,%d]", cfg.TimeOrder, cfg.SpaceOrder)
	}
	if cfg.Quantities == 0 {
		cfg.Quantities = cfg.Element.Quantities()
	}
	if cfg.Quantities < 1 {
		return nil, fmt.Errorf("invalid number of quantities %d", cfg.Quantities)
	}

	p := &Predictor{
		cfg:     cfg,
		dims:    cfg.Element.Dimensions(),
		modes:   element.Modes(cfg.Element, cfg.SpaceOrder),
		workers: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry == nil {
		p.registry = kernels.NewRegistry(nil)
	}
	if p.logger == nil {
		p.logger = utils.Discard()
	}
	if p.workers < 1 {
		p.workers = 1
	}

	p.modesCK = make([]int, cfg.SpaceOrder)
	for l := range p.modesCK {
		p.modesCK[l] = element.ModesCK(cfg.Element, cfg.SpaceOrder, l)
	}

	basis, err := element.NewBasis(cfg.Element, cfg.SpaceOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to build %v basis: %w", cfg.Element, err)
	}
	p.buildStiffness(basis)

	if err := p.registerKernels(); err != nil {
		return nil, err
	}
	if err := p.registry.Validate(2, cfg.TimeOrder-1); err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"element":   cfg.Element,
		"order":     cfg.SpaceOrder,
		"timeOrder": cfg.TimeOrder,
		"backend":   p.registry.Backend().Name(),
		"kernels":   p.registry.Len(GroupStiffness) + p.registry.Len(GroupStar),
	}).Debug("time predictor ready")
	return p, nil
}

// buildStiffness stores, per recursion level, the transposed stiffness
// operator restricted to the modes that level reads and writes.
func (p *Predictor) buildStiffness(basis *element.Basis) {
	n := p.modes
	levels := p.cfg.SpaceOrder - 1
	p.stiffT = make([][][]float64, levels)
	for l := 0; l < levels; l++ {
		p.stiffT[l] = make([][]float64, p.dims)
		rows, cols := p.modesCK[l+1], p.modesCK[l]
		for d := 0; d < p.dims; d++ {
			D := basis.Stiffness(d)
			s := make([]float64, n*n)
			for k := 0; k < cols; k++ {
				for md := 0; md < rows; md++ {
					s[md+k*n] = D.At(md, k)
				}
			}
			p.stiffT[l][d] = s
		}
	}
}

func (p *Predictor) registerKernels() error {
	n, nq := p.modes, p.cfg.Quantities
	for l := 1; l < p.cfg.SpaceOrder; l++ {
		stiff := kernels.Descriptor{
			M: p.modesCK[l], N: nq, K: p.modesCK[l-1],
			LdA: n, LdB: n, LdC: n,
			Alpha: 1, Beta: 0,
		}
		if err := p.registry.Add(GroupStiffness, stiff); err != nil {
			return fmt.Errorf("stiffness kernel for level %d: %w", l, err)
		}
		star := kernels.Descriptor{
			M: p.modesCK[l], N: nq, K: nq,
			LdA: n, LdB: nq, LdC: n,
			Alpha: 1, Beta: 1,
		}
		if err := p.registry.Add(GroupStar, star); err != nil {
			return fmt.Errorf("star kernel for level %d: %w", l, err)
		}
	}
	return nil
}

// CK computes the time derivatives der[0..TimeOrder-1] and the time
// integral tInt of dofs over [0, dt].
//
// star holds one row-major Quantities×Quantities matrix per dimension,
// dofs, scratch, tInt and every der[l] hold Quantities×Modes values with the
// mode index running fastest. There is no error path: dimensions are a
// precondition, see NewBuffers.
func (p *Predictor) CK(dt float64, star [][]float64, dofs, scratch []float64, der [][]float64, tInt []float64) {
	size := p.cfg.Quantities * p.modes

	copy(der[0][:size], dofs[:size])
	scalar := dt
	for i := 0; i < size; i++ {
		tInt[i] = scalar * dofs[i]
	}

	for l := 1; l < p.cfg.TimeOrder; l++ {
		cur := der[l][:size]
		for i := range cur {
			cur[i] = 0
		}
		stiff := p.registry.Kernel(GroupStiffness, l-1)
		mult := p.registry.Kernel(GroupStar, l-1)
		for d := 0; d < p.dims; d++ {
			stiff(p.stiffT[l-1][d], der[l-1], scratch)
			mult(scratch, star[d], cur)
		}

		scalar *= -dt / float64(l+1)
		active := p.modesCK[l]
		for q := 0; q < p.cfg.Quantities; q++ {
			off := q * p.modes
			for md := 0; md < active; md++ {
				tInt[off+md] += scalar * cur[off+md]
			}
		}
	}
}

// Scalars returns the coefficients applied to the derivatives in the time
// integral: dt, -dt²/2, dt³/6, ...
func Scalars(dt float64, order int) []float64 {
	if order < 1 {
		return nil
	}
	s := make([]float64, order)
	s[0] = dt
	for k := 1; k < order; k++ {
		s[k] = s[k-1] * (-dt / float64(k+1))
	}
	return s
}

// Buffers are the per-caller work arrays of CK
type Buffers struct {
	Scratch []float64
	Der     [][]float64
	TInt    []float64
}

// NewBuffers allocates a set of work arrays sized for the Predictor
func (p *Predictor) NewBuffers() *Buffers {
	size := p.cfg.Quantities * p.modes
	b := &Buffers{
		Scratch: make([]float64, size),
		Der:     make([][]float64, p.cfg.TimeOrder),
		TInt:    make([]float64, size),
	}
	for l := range b.Der {
		b.Der[l] = make([]float64, size)
	}
	return b
}

// Config returns the effective configuration
func (p *Predictor) Config() Config { return p.cfg }

// Modes returns the number of modes per quantity
func (p *Predictor) Modes() int { return p.modes }

// Size returns the number of values of one element's DOFs
func (p *Predictor) Size() int { return p.cfg.Quantities * p.modes }

// Stiffness returns the operator used by the stiffness kernel of level l
// and dimension d; entry (md, k) is the coefficient of mode md in the
// derivative of mode k.
func (p *Predictor) Stiffness(l, d int) mat.Matrix {
	n := p.modes
	// column-major storage reads as the transpose in row-major
	return mat.NewDense(n, n, p.stiffT[l][d]).T()
}

// Stats summarises the registered kernels
type Stats struct {
	Backend string
	Kernels int
	Flops   int64 // per CK call, all dimensions
	Shapes  []string
}

// Stats reports the kernels used by CK
func (p *Predictor) Stats() Stats {
	s := Stats{Backend: p.registry.Backend().Name()}
	for g := 0; g < p.registry.Groups(); g++ {
		for i := 0; i < p.registry.Len(g); i++ {
			d := p.registry.Descriptor(g, i)
			s.Kernels++
			s.Shapes = append(s.Shapes, fmt.Sprintf("group %d index %d: %v", g, i, d))
			if i < p.cfg.TimeOrder-1 {
				s.Flops += int64(p.dims) * d.Flops()
			}
		}
	}
	return s
}

// Close releases the kernels
func (p *Predictor) Close() error {
	return p.registry.Close()
}
