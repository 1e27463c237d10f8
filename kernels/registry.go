package kernels

import (
	"fmt"
	"io"
)

// Func is a generated kernel. Operands follow the Descriptor it was
// generated for; slices must be at least LenA/LenB/LenC long.
type Func func(a, b, c []float64)

// Backend generates kernels for fixed shapes
type Backend interface {
	Name() string
	Generate(d Descriptor) (Func, error)
}

type entry struct {
	desc Descriptor
	fn   Func
}

// Registry stores generated kernels in groups; the index of a kernel is its
// registration position within the group.
type Registry struct {
	backend Backend
	groups  [][]entry
}

// NewRegistry creates an empty registry generating kernels with b
func NewRegistry(b Backend) *Registry {
	if b == nil {
		b = BLAS{}
	}
	return &Registry{backend: b}
}

// Backend returns the generating backend
func (r *Registry) Backend() Backend { return r.backend }

// Add generates a kernel for d and appends it to group
func (r *Registry) Add(group int, d Descriptor) error {
	if group < 0 {
		return fmt.Errorf("negative kernel group %d", group)
	}
	fn, err := r.backend.Generate(d)
	if err != nil {
		return fmt.Errorf("backend %s, group %d, index %d: %w",
			r.backend.Name(), group, r.Len(group), err)
	}
	for len(r.groups) <= group {
		r.groups = append(r.groups, nil)
	}
	r.groups[group] = append(r.groups[group], entry{desc: d, fn: fn})
	return nil
}

// Kernel returns the kernel at (group, index)
func (r *Registry) Kernel(group, index int) Func {
	return r.groups[group][index].fn
}

// Descriptor returns the shape of the kernel at (group, index)
func (r *Registry) Descriptor(group, index int) Descriptor {
	return r.groups[group][index].desc
}

// Groups returns the number of groups
func (r *Registry) Groups() int { return len(r.groups) }

// Len returns the number of kernels in group
func (r *Registry) Len(group int) int {
	if group < 0 || group >= len(r.groups) {
		return 0
	}
	return len(r.groups[group])
}

// Validate checks that each of the first `groups` groups holds at least
// `levels` kernels.
func (r *Registry) Validate(groups, levels int) error {
	for g := 0; g < groups; g++ {
		if n := r.Len(g); n < levels {
			return fmt.Errorf("%w: group %d has %d kernels, need %d", ErrIncomplete, g, n, levels)
		}
	}
	return nil
}

// Close releases backend resources, if the backend holds any
func (r *Registry) Close() error {
	if c, ok := r.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
