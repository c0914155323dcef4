package central

import (
	"context"

	"github.com/go-ble/ble"
)

// Advertisement is the slice of ble.Advertisement the scan engine consumes.
type Advertisement interface {
	Addr() ble.Addr
	LocalName() string
	RSSI() int
	Connectable() bool
	Services() []ble.UUID
}

// Client is the subset of ble.Client used by peripheral operations.
type Client interface {
	Addr() ble.Addr
	DiscoverProfile(force bool) (*ble.Profile, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	CancelConnection() error
	Disconnected() <-chan struct{}
}

// HostDevice is the local adapter facade: scanning and dialing. It exists so
// modules can run against a fake host in tests.
//
// Scan blocks until ctx is cancelled and must invoke ready exactly once, as
// soon as advertisements can be delivered to h.
type HostDevice interface {
	Scan(ctx context.Context, allowDup bool, h func(Advertisement), ready func()) error
	Dial(ctx context.Context, a ble.Addr) (Client, error)
	Stop() error
}

// DeviceFactory acquires the platform adapter (can be overridden in tests).
var DeviceFactory = func() (HostDevice, error) {
	return newHostDevice()
}

// bleHostDevice adapts ble.Device to the HostDevice interface.
type bleHostDevice struct {
	dev ble.Device
}

func (d *bleHostDevice) Scan(ctx context.Context, allowDup bool, h func(Advertisement), ready func()) error {
	// ble.Device.Scan installs its handler synchronously before blocking, so
	// this is the latest point available to signal startup.
	ready()
	return d.dev.Scan(ctx, allowDup, func(a ble.Advertisement) { h(a) })
}

func (d *bleHostDevice) Dial(ctx context.Context, a ble.Addr) (Client, error) {
	return d.dev.Dial(ctx, a)
}

func (d *bleHostDevice) Stop() error {
	return d.dev.Stop()
}
