package central

import (
	"context"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dennisblokland/btleplug-c/internal/status"
)

// quietDevice satisfies HostDevice for dispatcher tests that drive the event
// stream directly through publish.
type quietDevice struct{}

func (quietDevice) Scan(ctx context.Context, _ bool, _ func(Advertisement), ready func()) error {
	ready()
	<-ctx.Done()
	return ctx.Err()
}
func (quietDevice) Dial(context.Context, ble.Addr) (Client, error) {
	return nil, status.ErrNotSupported
}
func (quietDevice) Stop() error { return nil }

func newDispatcherTestModule(t *testing.T) *Module {
	t.Helper()
	original := DeviceFactory
	DeviceFactory = func() (HostDevice, error) { return quietDevice{}, nil }
	t.Cleanup(func() { DeviceFactory = original })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	m, err := NewModule(logger)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestDispatcher_RejectedHandleIsClosed(t *testing.T) {
	m := newDispatcherTestModule(t)

	handles := make(chan *Peripheral, 1)
	require.NoError(t, m.SetEventCallbacks(func(p *Peripheral, _ bool) bool {
		handles <- p
		return false
	}, nil))

	m.publish(Event{Kind: EventDeviceDiscovered, ID: "aa:bb:cc:dd:ee:01", Addr: "aa:bb:cc:dd:ee:01"})

	select {
	case p := <-handles:
		assert.Eventually(t, p.closed.Load, time.Second, 10*time.Millisecond,
			"a rejected handle must be released by the dispatcher")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the discovery callback")
	}
}

func TestDispatcher_UnknownDisconnectIsDropped(t *testing.T) {
	m := newDispatcherTestModule(t)

	dropped := make(chan uint64, 1)
	require.NoError(t, m.SetEventCallbacks(
		func(p *Peripheral, _ bool) bool { return true },
		func(addr uint64) { dropped <- addr },
	))

	m.publish(Event{Kind: EventDeviceDisconnected, ID: "never-seen"})
	// A disconnect for a device the dispatcher has seen still goes through.
	m.publish(Event{Kind: EventDeviceDiscovered, ID: "aa:bb:cc:dd:ee:02", Addr: "aa:bb:cc:dd:ee:02"})
	m.publish(Event{Kind: EventDeviceDisconnected, ID: "aa:bb:cc:dd:ee:02"})

	select {
	case addr := <-dropped:
		assert.Equal(t, uint64(0xaabbccddee02), addr,
			"only the known device's disconnect should be reported")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the disconnection callback")
	}
	select {
	case addr := <-dropped:
		t.Fatalf("unexpected extra disconnection callback for %x", addr)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcher_UnusableAddressIsDropped(t *testing.T) {
	m := newDispatcherTestModule(t)

	found := make(chan *Peripheral, 2)
	require.NoError(t, m.SetEventCallbacks(func(p *Peripheral, _ bool) bool {
		found <- p
		return true
	}, nil))

	m.publish(Event{Kind: EventDeviceDiscovered, ID: "bogus", Addr: "not-a-hardware-address"})
	m.publish(Event{Kind: EventDeviceDiscovered, ID: "aa:bb:cc:dd:ee:03", Addr: "aa:bb:cc:dd:ee:03"})

	select {
	case p := <-found:
		assert.Equal(t, "aa:bb:cc:dd:ee:03", p.ID(), "the unusable event must be skipped")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the discovery callback")
	}
}

func TestDispatcher_DropsEventsBufferedBeforeRelease(t *testing.T) {
	m := newDispatcherTestModule(t)

	gate := make(chan struct{})
	delivered := make(chan string, 2)
	require.NoError(t, m.SetEventCallbacks(func(p *Peripheral, _ bool) bool {
		delivered <- p.ID()
		<-gate
		return false
	}, nil))

	m.publish(Event{Kind: EventDeviceDiscovered, ID: "aa:bb:cc:dd:ee:05", Addr: "aa:bb:cc:dd:ee:05"})
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the discovery callback")
	}

	// A second event buffers while the callback is still in flight; the
	// module is released before the dispatcher gets to it.
	m.publish(Event{Kind: EventDeviceDiscovered, ID: "aa:bb:cc:dd:ee:06", Addr: "aa:bb:cc:dd:ee:06"})
	go m.Close()
	<-m.Done()
	close(gate)

	select {
	case id := <-delivered:
		t.Fatalf("callback fired for %s after the module was released", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatcher_StopsOnRelease(t *testing.T) {
	m := newDispatcherTestModule(t)

	found := make(chan *Peripheral, 1)
	require.NoError(t, m.SetEventCallbacks(func(p *Peripheral, _ bool) bool {
		found <- p
		return true
	}, nil))

	m.Close()
	m.publish(Event{Kind: EventDeviceDiscovered, ID: "aa:bb:cc:dd:ee:04", Addr: "aa:bb:cc:dd:ee:04"})

	select {
	case <-found:
		t.Fatal("no callbacks may fire after the module is released")
	case <-time.After(100 * time.Millisecond):
	}
}
