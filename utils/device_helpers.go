//go:build occa

package utils

import (
	"fmt"

	"github.com/notargets/gocca"
)

// DeviceModes lists the OCCA property strings tried by NewDevice, in order
var DeviceModes = []string{
	`{"mode": "OpenMP"}`,
	`{"mode": "CUDA", "device_id": 0}`,
	`{"mode": "Serial"}`,
}

// NewDevice creates an OCCA device for mode ("OpenMP", "CUDA", "Serial").
// An empty mode tries DeviceModes in order and returns the first that opens.
func NewDevice(mode string) (*gocca.OCCADevice, error) {
	if mode != "" {
		props := fmt.Sprintf(`{"mode": %q}`, mode)
		if mode == "CUDA" {
			props = `{"mode": "CUDA", "device_id": 0}`
		}
		device, err := gocca.NewDevice(props)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s device: %w", mode, err)
		}
		return device, nil
	}
	for _, props := range DeviceModes {
		if device, err := gocca.NewDevice(props); err == nil {
			return device, nil
		}
	}
	return nil, fmt.Errorf("no OCCA device available")
}

// CreateTestDevice creates a Device for testing, preferring parallel backends
func CreateTestDevice() *gocca.OCCADevice {
	device, err := NewDevice("")
	if err != nil {
		panic(err)
	}
	return device
}
