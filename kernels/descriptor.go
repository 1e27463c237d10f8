// Package kernels holds the small dense matrix-multiply routines used by the
// ADER time prediction. Kernels are generated once per shape by a Backend and
// looked up by (group, index) for the lifetime of the owning engine.
package kernels

import (
	"errors"
	"fmt"
)

// ErrBadShape is returned when a backend cannot generate a requested shape
var ErrBadShape = errors.New("unsupported kernel shape")

// ErrIncomplete is returned by Validate if a group lacks kernels
var ErrIncomplete = errors.New("kernel registry incomplete")

// Prefetch is a hint passed through to backends that support software
// prefetching of the next operands.
type Prefetch uint8

const (
	PrefetchNone Prefetch = iota
	PrefetchAL2
	PrefetchBL2
	PrefetchCL2
)

func (p Prefetch) String() string {
	switch p {
	case PrefetchNone:
		return "none"
	case PrefetchAL2:
		return "AL2"
	case PrefetchBL2:
		return "BL2"
	case PrefetchCL2:
		return "CL2"
	}
	return fmt.Sprintf("Prefetch(%d)", uint8(p))
}

// Descriptor fixes the shape of a kernel computing
//
//	C[M×N] = Alpha·A[M×K]·B[K×N] + Beta·C
//
// with all operands stored column-major and the given leading dimensions.
type Descriptor struct {
	M, N, K       int
	LdA, LdB, LdC int
	Alpha, Beta   float64
	Prefetch      Prefetch
}

// Validate checks that the shape can be generated. Beta is restricted to
// 0 (overwrite) and 1 (accumulate).
func (d Descriptor) Validate() error {
	switch {
	case d.M <= 0 || d.N <= 0 || d.K <= 0:
		return fmt.Errorf("%w: non-positive size in %v", ErrBadShape, d)
	case d.LdA < d.M:
		return fmt.Errorf("%w: ldA %d < m %d", ErrBadShape, d.LdA, d.M)
	case d.LdB < d.K:
		return fmt.Errorf("%w: ldB %d < k %d", ErrBadShape, d.LdB, d.K)
	case d.LdC < d.M:
		return fmt.Errorf("%w: ldC %d < m %d", ErrBadShape, d.LdC, d.M)
	case d.Beta != 0 && d.Beta != 1:
		return fmt.Errorf("%w: beta %g not in {0,1}", ErrBadShape, d.Beta)
	}
	return nil
}

// LenA returns the minimum length of the A operand
func (d Descriptor) LenA() int { return d.LdA*(d.K-1) + d.M }

// LenB returns the minimum length of the B operand
func (d Descriptor) LenB() int { return d.LdB*(d.N-1) + d.K }

// LenC returns the minimum length of the C operand
func (d Descriptor) LenC() int { return d.LdC*(d.N-1) + d.M }

// Flops returns the floating point operations of one invocation
func (d Descriptor) Flops() int64 {
	return 2 * int64(d.M) * int64(d.N) * int64(d.K)
}

func (d Descriptor) String() string {
	return fmt.Sprintf("m=%d n=%d k=%d ld=(%d,%d,%d) alpha=%g beta=%g pf=%v",
		d.M, d.N, d.K, d.LdA, d.LdB, d.LdC, d.Alpha, d.Beta, d.Prefetch)
}
