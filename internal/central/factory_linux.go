//go:build linux

package central

import (
	"github.com/go-ble/ble/linux"
)

func newHostDevice() (HostDevice, error) {
	dev, err := linux.NewDevice()
	if err != nil {
		return nil, err
	}
	return &bleHostDevice{dev: dev}, nil
}
