package central

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dennisblokland/btleplug-c/internal/attrbuf"
	"github.com/dennisblokland/btleplug-c/internal/ringchan"
	"github.com/dennisblokland/btleplug-c/internal/status"
	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// connectTimeout bounds a single dial attempt.
const connectTimeout = 30 * time.Second

// notifyBuffer bounds undelivered notifications per peripheral.
const notifyBuffer = 128

// CompletionFunc receives the outcome of an accepted operation. It is
// invoked exactly once, from a worker goroutine.
type CompletionFunc func(status.Code)

// ConnectedFunc receives the outcome of a connection-state query.
type ConnectedFunc func(code status.Code, connected bool)

// NotificationFunc receives one characteristic notification.
type NotificationFunc func(char uuid.UUID, data []byte)

// Notification is one inbound value push from a subscribed characteristic.
type Notification struct {
	Char uuid.UUID
	Data []byte
}

// Peripheral is the per-device handle state: identity, the live connection
// once established, the discovered service cache, the notification stream
// and the last-error slot.
//
// A peripheral is shared between the caller's handle and any in-flight
// operation; each holds its own reference, so releasing the handle never
// cancels accepted work.
type Peripheral struct {
	module     *Module
	id         string
	addr       string
	longAddr   uint64
	advertised []uuid.UUID

	mu       sync.RWMutex
	client   Client
	profile  *ble.Profile
	services *orderedmap.OrderedMap[uuid.UUID, *attrbuf.Service]

	notifs *ringchan.RingChannel[Notification]

	errMu   sync.Mutex
	lastErr string

	closed atomic.Bool
}

func (m *Module) newPeripheral(id, addr string, longAddr uint64, advertised []uuid.UUID) *Peripheral {
	return &Peripheral{
		module:     m,
		id:         id,
		addr:       addr,
		longAddr:   longAddr,
		advertised: advertised,
		services:   orderedmap.New[uuid.UUID, *attrbuf.Service](),
		notifs:     ringchan.New[Notification](notifyBuffer),
	}
}

// ID returns the adapter-internal device identifier.
func (p *Peripheral) ID() string {
	return p.id
}

// Address returns the compacted 48-bit hardware address.
func (p *Peripheral) Address() uint64 {
	return p.longAddr
}

// AdvertisedServices returns the service UUIDs known from the advertisement
// that produced this handle, if any.
func (p *Peripheral) AdvertisedServices() []uuid.UUID {
	return p.advertised
}

// LastError returns the most recent failure message recorded on this handle.
func (p *Peripheral) LastError() string {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.lastErr
}

// SetLastError records a failure message into the peripheral's error slot.
func (p *Peripheral) SetLastError(msg string) {
	p.errMu.Lock()
	p.lastErr = msg
	p.errMu.Unlock()
}

func (p *Peripheral) recordError(err error) {
	if err == nil {
		return
	}
	p.SetLastError(err.Error())
}

// Close marks the handle released. In-flight operations hold their own
// reference and complete independently, still invoking their callbacks.
func (p *Peripheral) Close() {
	p.closed.Store(true)
}

// currentClient returns the live connection, or nil.
func (p *Peripheral) currentClient() Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client
}

// runAsync is the generic operation bridge: it schedules op on the module's
// execution context and delivers the outcome through cb exactly once,
// recording failures into the peripheral's error slot first. The entry point
// itself only reports scheduling errors; SUCCESS means accepted, not done.
func (p *Peripheral) runAsync(name string, cb CompletionFunc, op func(ctx context.Context) error) error {
	if !p.module.Ready() {
		return ErrNotReady
	}
	return p.module.exec.Spawn(name, func(ctx context.Context) {
		if err := op(ctx); err != nil {
			err = normalizeError(err)
			p.recordError(err)
			p.module.logger.WithError(err).WithFields(logrus.Fields{
				"address": p.addr,
				"op":      name,
			}).Debug("Operation failed")
			cb(status.FromError(err))
			return
		}
		cb(status.Success)
	})
}

// Connect establishes the connection. Connecting an already-connected
// peripheral completes successfully without side effects.
func (p *Peripheral) Connect(cb CompletionFunc) error {
	return p.runAsync("peripheral-connect", cb, func(ctx context.Context) error {
		if p.currentClient() != nil {
			return nil
		}

		dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		cli, err := p.module.dev.Dial(dialCtx, ble.NewAddr(p.addr))
		if err != nil {
			return fmt.Errorf("failed to connect to %q: %w", p.addr, normalizeError(err))
		}

		p.mu.Lock()
		p.client = cli
		p.mu.Unlock()

		p.watchDisconnect(cli)
		p.module.logger.WithField("address", p.addr).Info("Connected")
		return nil
	})
}

// watchDisconnect publishes a disconnection event when the host stack drops
// the connection, and clears the live client so later operations report
// not-connected.
func (p *Peripheral) watchDisconnect(cli Client) {
	err := p.module.exec.Spawn("peripheral-disconnect-watch", func(context.Context) {
		select {
		case <-cli.Disconnected():
			p.mu.Lock()
			if p.client == cli {
				p.client = nil
			}
			p.mu.Unlock()
			p.module.logger.WithField("address", p.addr).Info("Disconnected")
			p.module.publish(Event{Kind: EventDeviceDisconnected, ID: p.id, Addr: p.addr})
		case <-p.module.done:
		}
	})
	if err != nil {
		p.module.logger.WithError(err).Debug("No disconnect watcher for late connection")
	}
}

// Disconnect tears down the connection.
func (p *Peripheral) Disconnect(cb CompletionFunc) error {
	return p.runAsync("peripheral-disconnect", cb, func(context.Context) error {
		cli := p.currentClient()
		if cli == nil {
			return fmt.Errorf("%w: no active connection to %q", status.ErrNotConnected, p.addr)
		}
		if err := cli.CancelConnection(); err != nil {
			return fmt.Errorf("failed to disconnect from %q: %w", p.addr, normalizeError(err))
		}
		p.mu.Lock()
		if p.client == cli {
			p.client = nil
		}
		p.mu.Unlock()
		return nil
	})
}

// IsConnected reports the tracked connection state through cb.
func (p *Peripheral) IsConnected(cb ConnectedFunc) error {
	if !p.module.Ready() {
		return ErrNotReady
	}
	return p.module.exec.Spawn("peripheral-is-connected", func(context.Context) {
		cb(status.Success, p.currentClient() != nil)
	})
}

// DiscoverServices walks the remote GATT database and replaces the cached
// service tree with the discovered snapshot, in discovery order.
func (p *Peripheral) DiscoverServices(cb CompletionFunc) error {
	return p.runAsync("peripheral-discover-services", cb, func(context.Context) error {
		cli := p.currentClient()
		if cli == nil {
			return fmt.Errorf("%w: discovery requires an active connection", status.ErrNotConnected)
		}

		profile, err := cli.DiscoverProfile(true)
		if err != nil {
			return fmt.Errorf("failed to discover services: %w", normalizeError(err))
		}

		snapshot := p.snapshotProfile(profile)
		p.mu.Lock()
		p.profile = profile
		p.services = snapshot
		p.mu.Unlock()

		p.module.logger.WithFields(logrus.Fields{
			"address":  p.addr,
			"services": snapshot.Len(),
		}).Info("Services discovered")
		return nil
	})
}

// snapshotProfile flattens the live profile into the boundary
// representation, keyed by service UUID with insertion order preserved, so
// rediscovery replaces entries without reordering them. Attributes with
// unusable UUIDs are skipped.
func (p *Peripheral) snapshotProfile(profile *ble.Profile) *orderedmap.OrderedMap[uuid.UUID, *attrbuf.Service] {
	services := orderedmap.New[uuid.UUID, *attrbuf.Service]()
	for _, s := range profile.Services {
		su, err := fromBLEUUID(s.UUID)
		if err != nil {
			p.module.logger.WithError(err).Warn("Skipping service with malformed UUID")
			continue
		}
		svc := attrbuf.Service{UUID: su}
		for _, c := range s.Characteristics {
			cu, err := fromBLEUUID(c.UUID)
			if err != nil {
				p.module.logger.WithError(err).Warn("Skipping characteristic with malformed UUID")
				continue
			}
			chr := attrbuf.Characteristic{UUID: cu, Properties: uint8(c.Property)}
			for _, d := range c.Descriptors {
				du, err := fromBLEUUID(d.UUID)
				if err != nil {
					p.module.logger.WithError(err).Warn("Skipping descriptor with malformed UUID")
					continue
				}
				chr.Descriptors = append(chr.Descriptors, attrbuf.Descriptor{UUID: du})
			}
			svc.Characteristics = append(svc.Characteristics, chr)
		}
		services.Set(su, &svc)
	}
	return services
}

// Services returns the cached service tree from the last discovery, in
// discovery order. The tree is empty until DiscoverServices completes.
func (p *Peripheral) Services() []attrbuf.Service {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]attrbuf.Service, 0, p.services.Len())
	for pair := p.services.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, *pair.Value)
	}
	return out
}

// findCharacteristic resolves a live characteristic handle from the last
// discovered profile by canonical UUID comparison.
func (p *Peripheral) findCharacteristic(svc, chr uuid.UUID) (*ble.Characteristic, error) {
	p.mu.RLock()
	profile := p.profile
	p.mu.RUnlock()

	if profile == nil {
		return nil, fmt.Errorf("%w: %s in service %s (no discovered profile)", status.ErrNoSuchCharacteristic, chr, svc)
	}
	for _, s := range profile.Services {
		su, err := fromBLEUUID(s.UUID)
		if err != nil || su != svc {
			continue
		}
		for _, c := range s.Characteristics {
			cu, err := fromBLEUUID(c.UUID)
			if err == nil && cu == chr {
				return c, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s in service %s", status.ErrNoSuchCharacteristic, chr, svc)
}

// indicated selects indication over notification when a characteristic only
// supports the former.
func indicated(c *ble.Characteristic) bool {
	return c.Property&ble.CharNotify == 0 && c.Property&ble.CharIndicate != 0
}

// Subscribe enables value pushes from the characteristic into this
// peripheral's notification stream.
func (p *Peripheral) Subscribe(svc, chr uuid.UUID, cb CompletionFunc) error {
	return p.runAsync("peripheral-subscribe", cb, func(context.Context) error {
		cli := p.currentClient()
		if cli == nil {
			return fmt.Errorf("%w: subscribe requires an active connection", status.ErrNotConnected)
		}
		c, err := p.findCharacteristic(svc, chr)
		if err != nil {
			return err
		}
		handler := func(data []byte) {
			p.notifs.ForceSend(Notification{Char: chr, Data: append([]byte(nil), data...)})
		}
		if err := cli.Subscribe(c, indicated(c), handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", chr, normalizeError(err))
		}
		p.module.logger.WithFields(logrus.Fields{
			"address":        p.addr,
			"characteristic": chr,
		}).Info("Subscribed")
		return nil
	})
}

// Unsubscribe stops value pushes from the characteristic.
func (p *Peripheral) Unsubscribe(svc, chr uuid.UUID, cb CompletionFunc) error {
	return p.runAsync("peripheral-unsubscribe", cb, func(context.Context) error {
		cli := p.currentClient()
		if cli == nil {
			return fmt.Errorf("%w: unsubscribe requires an active connection", status.ErrNotConnected)
		}
		c, err := p.findCharacteristic(svc, chr)
		if err != nil {
			return err
		}
		if err := cli.Unsubscribe(c, indicated(c)); err != nil {
			return fmt.Errorf("failed to unsubscribe from %s: %w", chr, normalizeError(err))
		}
		return nil
	})
}

// Write sends data to the characteristic, acknowledged or not. The payload
// is copied before this call returns; the caller's buffer is not referenced
// afterwards.
func (p *Peripheral) Write(svc, chr uuid.UUID, withResponse bool, data []byte, cb CompletionFunc) error {
	payload := append([]byte(nil), data...)
	return p.runAsync("peripheral-write", cb, func(context.Context) error {
		cli := p.currentClient()
		if cli == nil {
			return fmt.Errorf("%w: write requires an active connection", status.ErrNotConnected)
		}
		c, err := p.findCharacteristic(svc, chr)
		if err != nil {
			return err
		}
		if err := cli.WriteCharacteristic(c, payload, !withResponse); err != nil {
			return fmt.Errorf("failed to write %d bytes to %s: %w", len(payload), chr, normalizeError(err))
		}
		return nil
	})
}

// RegisterNotificationEvents starts the notification pump: ready fires once,
// then every inbound notification triggers one data callback until the
// connection drops or the module is released. The stream never terminates on
// a single item.
func (p *Peripheral) RegisterNotificationEvents(ready CompletionFunc, data NotificationFunc) error {
	if !p.module.Ready() {
		return ErrNotReady
	}
	return p.module.exec.Spawn("peripheral-notifications", func(context.Context) {
		cli := p.currentClient()
		if cli == nil {
			err := fmt.Errorf("%w: notifications require an active connection", status.ErrNotConnected)
			p.recordError(err)
			ready(status.NotConnected)
			return
		}
		ready(status.Success)
		for {
			select {
			case <-cli.Disconnected():
				p.module.logger.WithField("address", p.addr).Debug("Notification stream ended")
				return
			case <-p.module.done:
				return
			case n := <-p.notifs.C():
				data(n.Char, n.Data)
			}
		}
	})
}
