package central

import "github.com/google/uuid"

// EventKind discriminates adapter-level central events.
type EventKind int

const (
	// EventDeviceDiscovered fires the first time a scan sees a device.
	EventDeviceDiscovered EventKind = iota
	// EventServicesAdvertised fires for every advertisement that carries
	// service UUIDs, including repeats from the same device.
	EventServicesAdvertised
	// EventDeviceDisconnected fires when an established connection drops.
	EventDeviceDisconnected
)

// Event is one entry of a module's central event stream. ID is the
// adapter-internal device identifier; Addr is its printable hardware
// address. On the Linux backend the two coincide, but the dispatcher only
// ever routes by ID and exposes the compacted address.
type Event struct {
	Kind     EventKind
	ID       string
	Addr     string
	Services []uuid.UUID
}
