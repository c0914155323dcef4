package central_test

import (
	"context"
	"sync"
	"time"

	"github.com/go-ble/ble"

	"github.com/dennisblokland/btleplug-c/internal/central"
)

// The production adapter hands ble types straight through, so the host
// interfaces must stay assignable from them.
var (
	_ central.Client        = (ble.Client)(nil)
	_ central.Advertisement = (ble.Advertisement)(nil)
)

// fakeAdvertisement is a canned advertisement report.
type fakeAdvertisement struct {
	addr     string
	name     string
	rssi     int
	services []ble.UUID
}

func (a *fakeAdvertisement) Addr() ble.Addr       { return ble.NewAddr(a.addr) }
func (a *fakeAdvertisement) LocalName() string    { return a.name }
func (a *fakeAdvertisement) RSSI() int            { return a.rssi }
func (a *fakeAdvertisement) Connectable() bool    { return true }
func (a *fakeAdvertisement) Services() []ble.UUID { return a.services }

// fakeClient is an in-memory GATT connection. Writes and subscriptions are
// recorded; pushing to a subscription handler simulates a notification.
type fakeClient struct {
	mu           sync.Mutex
	addr         string
	profile      *ble.Profile
	writeErr     error
	subscribeErr error
	handlers     map[string]ble.NotificationHandler
	writes       [][]byte
	cancelled    bool
	disconnected chan struct{}
	dropOnce     sync.Once
}

func newFakeClient(addr string, profile *ble.Profile) *fakeClient {
	return &fakeClient{
		addr:         addr,
		profile:      profile,
		handlers:     make(map[string]ble.NotificationHandler),
		disconnected: make(chan struct{}),
	}
}

func (c *fakeClient) Addr() ble.Addr { return ble.NewAddr(c.addr) }

func (c *fakeClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	if c.profile == nil {
		return &ble.Profile{}, nil
	}
	return c.profile, nil
}

func (c *fakeClient) Subscribe(ch *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.handlers[ch.UUID.String()] = h
	return nil
}

func (c *fakeClient) Unsubscribe(ch *ble.Characteristic, ind bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, ch.UUID.String())
	return nil
}

func (c *fakeClient) WriteCharacteristic(ch *ble.Characteristic, value []byte, noRsp bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, value)
	return nil
}

func (c *fakeClient) CancelConnection() error {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
	c.drop()
	return nil
}

func (c *fakeClient) Disconnected() <-chan struct{} { return c.disconnected }

// drop simulates the host stack losing the connection.
func (c *fakeClient) drop() {
	c.dropOnce.Do(func() { close(c.disconnected) })
}

// push delivers a notification into the handler subscribed on the
// characteristic, if any.
func (c *fakeClient) push(charUUID string, data []byte) bool {
	c.mu.Lock()
	h, ok := c.handlers[charUUID]
	c.mu.Unlock()
	if ok {
		h(data)
	}
	return ok
}

func (c *fakeClient) recordedWrites() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// fakeHostDevice is an adapter stand-in. Scan blocks until its context is
// cancelled; advertisements are injected with deliver. A startDelay defers
// handler installation to exercise scan startup ordering.
type fakeHostDevice struct {
	mu         sync.Mutex
	handler    func(central.Advertisement)
	scanning   bool
	startDelay time.Duration
	dial       func(a ble.Addr) (central.Client, error)
	dialErr    error
	client     *fakeClient
	stopped    bool
}

func newFakeHostDevice() *fakeHostDevice {
	return &fakeHostDevice{}
}

func (d *fakeHostDevice) Scan(ctx context.Context, allowDup bool, h func(central.Advertisement), ready func()) error {
	if d.startDelay > 0 {
		time.Sleep(d.startDelay)
	}
	d.mu.Lock()
	d.handler = h
	d.scanning = true
	d.mu.Unlock()
	ready()
	<-ctx.Done()
	d.mu.Lock()
	d.handler = nil
	d.scanning = false
	d.mu.Unlock()
	return ctx.Err()
}

func (d *fakeHostDevice) Dial(ctx context.Context, a ble.Addr) (central.Client, error) {
	d.mu.Lock()
	dial, dialErr := d.dial, d.dialErr
	if dialErr == nil && dial == nil && d.client == nil {
		d.client = newFakeClient(a.String(), nil)
	}
	cli := d.client
	d.mu.Unlock()
	if dialErr != nil {
		return nil, dialErr
	}
	// A dial hook may block, so it runs outside the lock.
	if dial != nil {
		return dial(a)
	}
	return cli, nil
}

func (d *fakeHostDevice) Stop() error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	return nil
}

// deliver injects one advertisement into the active scan, reporting whether
// a scan was running.
func (d *fakeHostDevice) deliver(adv central.Advertisement) bool {
	d.mu.Lock()
	h := d.handler
	d.mu.Unlock()
	if h == nil {
		return false
	}
	h(adv)
	return true
}
