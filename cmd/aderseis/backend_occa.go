//go:build occa

package main

import (
	"fmt"

	"github.com/notargets/aderseis/kernels"
	"github.com/notargets/aderseis/utils"
)

func newBackend(name, device string) (kernels.Backend, func(), error) {
	switch name {
	case "blas":
		return kernels.BLAS{}, func() {}, nil
	case "occa":
		dev, err := utils.NewDevice(device)
		if err != nil {
			return nil, nil, err
		}
		return kernels.NewOCCA(dev), func() { dev.Free() }, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", name)
}
