package central

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/dennisblokland/btleplug-c/internal/hwaddr"
)

// FoundFunc observes a freshly minted peripheral handle for a discovery or
// advertisement event. Returning false rejects the handle; the dispatcher
// closes it immediately and the callee must not retain it.
type FoundFunc func(p *Peripheral, advertised bool) bool

// DisconnectedFunc observes a dropped connection by compacted address.
type DisconnectedFunc func(addr uint64)

// SetEventCallbacks starts the module's event dispatcher. Each module runs
// at most one dispatcher; a second registration is rejected. The dispatcher
// owns the id-to-address table and runs until the module is released.
func (m *Module) SetEventCallbacks(found FoundFunc, disconnected DisconnectedFunc) error {
	if !m.Ready() {
		return ErrNotReady
	}
	if found == nil {
		return errors.New("null argument: on_peripheral_found")
	}
	if !m.dispatching.CompareAndSwap(false, true) {
		return errors.New("event callbacks already registered")
	}
	err := m.exec.Spawn("central-dispatcher", func(ctx context.Context) {
		m.dispatchEvents(found, disconnected)
	})
	if err != nil {
		m.dispatching.Store(false)
		return err
	}
	return nil
}

// dispatchEvents drains the central event stream and fans it out to the
// registered callbacks. Every discovery or advertisement event mints a new
// peripheral handle; the callee owns accepted handles and releases them
// itself. Addresses are remembered per device id so a later disconnect can
// be reported even though the adapter only names the id.
func (m *Module) dispatchEvents(found FoundFunc, disconnected DisconnectedFunc) {
	addrByID := make(map[string]uint64)
	for {
		select {
		case <-m.done:
			return
		case ev := <-m.events.C():
			// An event buffered before release must not reach the callbacks
			// once the handle is gone.
			select {
			case <-m.done:
				return
			default:
			}
			switch ev.Kind {
			case EventDeviceDiscovered, EventServicesAdvertised:
				longAddr, err := hwaddr.Compact(ev.Addr)
				if err != nil {
					m.logger.WithError(err).WithField("address", ev.Addr).
						Warn("Dropping event with unusable address")
					continue
				}
				addrByID[ev.ID] = longAddr
				p := m.newPeripheral(ev.ID, ev.Addr, longAddr, ev.Services)
				if !found(p, ev.Kind == EventServicesAdvertised) {
					p.Close()
				}
			case EventDeviceDisconnected:
				longAddr, ok := addrByID[ev.ID]
				if !ok {
					m.logger.WithFields(logrus.Fields{
						"id": ev.ID,
					}).Warn("Disconnect from unrecognized peripheral")
					continue
				}
				if disconnected != nil {
					disconnected(longAddr)
				}
			}
		}
	}
}
