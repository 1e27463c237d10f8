//go:build !occa

package main

import (
	"fmt"

	"github.com/notargets/aderseis/kernels"
)

// newBackend returns the kernel backend named by the configuration and a
// release function for its device.
func newBackend(name, device string) (kernels.Backend, func(), error) {
	if name != "blas" {
		return nil, nil, fmt.Errorf("backend %q needs a build with -tags occa", name)
	}
	return kernels.BLAS{}, func() {}, nil
}
