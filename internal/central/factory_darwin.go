//go:build darwin

package central

import (
	"github.com/go-ble/ble/darwin"
)

func newHostDevice() (HostDevice, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		return nil, err
	}
	return &bleHostDevice{dev: dev}, nil
}
