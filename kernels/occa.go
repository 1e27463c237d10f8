//go:build occa

package kernels

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/notargets/gocca"
)

// OCCA generates shape-specialised kernels at run time through the OCCA JIT.
// Every kernel owns device buffers for its operands; invocations of the same
// kernel are serialised.
type OCCA struct {
	device *gocca.OCCADevice

	mu      sync.Mutex
	kernels []*gocca.OCCAKernel
	mems    []*gocca.OCCAMemory
}

// NewOCCA creates a backend compiling for device
func NewOCCA(device *gocca.OCCADevice) *OCCA {
	if device == nil {
		panic("device cannot be nil")
	}
	return &OCCA{device: device}
}

func (o *OCCA) Name() string { return "occa-" + o.device.Mode() }

func (o *OCCA) Generate(d Descriptor) (Func, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	name := kernelName(d)
	src := gemmSource(name, d)

	var kernel *gocca.OCCAKernel
	var err error
	if o.device.Mode() == "OpenMP" {
		// OpenMP does not receive -O3 by default
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = o.device.BuildKernelFromString(src, name, props)
	} else {
		kernel, err = o.device.BuildKernelFromString(src, name, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", name, err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("kernel build returned nil for %s", name)
	}

	bytesA := int64(d.LenA() * 8)
	bytesB := int64(d.LenB() * 8)
	bytesC := int64(d.LenC() * 8)
	memA := o.device.Malloc(bytesA, nil, nil)
	memB := o.device.Malloc(bytesB, nil, nil)
	memC := o.device.Malloc(bytesC, nil, nil)

	o.mu.Lock()
	o.kernels = append(o.kernels, kernel)
	o.mems = append(o.mems, memA, memB, memC)
	o.mu.Unlock()

	var run sync.Mutex
	return func(a, b, c []float64) {
		run.Lock()
		defer run.Unlock()
		memA.CopyFrom(unsafe.Pointer(&a[0]), bytesA)
		memB.CopyFrom(unsafe.Pointer(&b[0]), bytesB)
		// padding rows of C are copied back, so C always goes in
		memC.CopyFrom(unsafe.Pointer(&c[0]), bytesC)
		if err := kernel.RunWithArgs(memA, memB, memC); err != nil {
			panic(fmt.Errorf("kernel %s execution failed: %w", name, err))
		}
		o.device.Finish()
		memC.CopyTo(unsafe.Pointer(&c[0]), bytesC)
	}, nil
}

// Close frees all kernels and device buffers
func (o *OCCA) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, k := range o.kernels {
		k.Free()
	}
	for _, m := range o.mems {
		m.Free()
	}
	o.kernels, o.mems = nil, nil
	return nil
}

func kernelName(d Descriptor) string {
	beta := "ov"
	if d.Beta != 0 {
		beta = "acc"
	}
	return fmt.Sprintf("gemm_%dx%dx%d_ld%d_%d_%d_%s", d.M, d.N, d.K, d.LdA, d.LdB, d.LdC, beta)
}

// gemmSource emits OKL for one column-major shape; sizes are compile-time
// constants so the inner loop fully unrolls.
func gemmSource(name string, d Descriptor) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#define M_ %d\n#define N_ %d\n#define K_ %d\n", d.M, d.N, d.K)
	fmt.Fprintf(&sb, "#define LDA_ %d\n#define LDB_ %d\n#define LDC_ %d\n", d.LdA, d.LdB, d.LdC)
	fmt.Fprintf(&sb, "#define ALPHA_ %.17g\n\n", d.Alpha)
	fmt.Fprintf(&sb, "@kernel void %s(const double *A, const double *B, double *C) {\n", name)
	sb.WriteString("  for (int j = 0; j < N_; ++j; @outer) {\n")
	sb.WriteString("    for (int i = 0; i < M_; ++i; @inner) {\n")
	sb.WriteString("      double acc = 0.0;\n")
	sb.WriteString("      for (int p = 0; p < K_; ++p) {\n")
	sb.WriteString("        acc += A[i + p*LDA_] * B[p + j*LDB_];\n")
	sb.WriteString("      }\n")
	if d.Beta != 0 {
		sb.WriteString("      C[i + j*LDC_] += ALPHA_ * acc;\n")
	} else {
		sb.WriteString("      C[i + j*LDC_] = ALPHA_ * acc;\n")
	}
	sb.WriteString("    }\n  }\n}\n")
	return sb.String()
}
