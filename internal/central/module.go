// Package central adapts the asynchronous BLE host stack to the synchronous,
// callback-driven contract of the C boundary: modules own an adapter and a
// shared execution context, peripherals carry per-device state, and every
// device operation is accepted synchronously and completed through a
// callback that fires exactly once.
package central

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dennisblokland/btleplug-c/internal/ringchan"
	"github.com/sirupsen/logrus"
)

// eventBuffer bounds the central event stream; scan traffic beyond it
// overwrites the oldest undelivered event.
const eventBuffer = 128

// drainTimeout bounds how long a module release waits for in-flight work
// before cancelling the execution context.
const drainTimeout = 5 * time.Second

// Module is the process/session-scoped handle state: the execution context,
// the adapter, the central event stream, and the last-error slot.
//
// A module may exist in a degraded state (no adapter) so a caller can still
// retrieve the initialization error before releasing it.
type Module struct {
	logger *logrus.Logger
	exec   *Executor
	dev    HostDevice

	events      *ringchan.RingChannel[Event]
	done        chan struct{}
	closeOnce   sync.Once
	dispatching atomic.Bool

	errMu   sync.Mutex
	lastErr string

	scanMu     sync.Mutex
	scanCancel func()
	scanDone   chan error
}

// NewModule starts an execution context and acquires the platform adapter.
// On adapter failure the returned module is still usable for error
// introspection; the error describes what went wrong.
func NewModule(logger *logrus.Logger) (*Module, error) {
	if logger == nil {
		logger = logrus.New()
	}

	m := &Module{
		logger: logger,
		events: ringchan.New[Event](eventBuffer),
		done:   make(chan struct{}),
	}
	m.exec = NewExecutor(logger)

	dev, err := DeviceFactory()
	if err != nil {
		err = fmt.Errorf("failed to acquire adapter: %w", normalizeError(err))
		m.SetLastError(err.Error())
		logger.WithError(err).Warn("Module created without adapter")
		return m, err
	}
	m.dev = dev

	logger.Debug("Module initialized with adapter")
	return m, nil
}

// Ready reports whether the module has both its execution context and its
// adapter. Entry points must treat a non-ready module as an invalid argument.
func (m *Module) Ready() bool {
	return m != nil && m.exec != nil && m.dev != nil
}

// Done is closed when the module is released. The event dispatcher and the
// disconnect watchers use it as their only termination signal.
func (m *Module) Done() <-chan struct{} {
	return m.done
}

// LastError returns the most recent failure message recorded on the module.
func (m *Module) LastError() string {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.lastErr
}

// SetLastError records a failure message into the module's error slot.
func (m *Module) SetLastError(msg string) {
	m.errMu.Lock()
	m.lastErr = msg
	m.errMu.Unlock()
}

func (m *Module) recordError(err error) {
	if err == nil {
		return
	}
	m.SetLastError(err.Error())
}

// publish forwards an event to the dispatcher unless the module has been
// released.
func (m *Module) publish(ev Event) {
	select {
	case <-m.done:
		return
	default:
	}
	m.events.ForceSend(ev)
}

// Close releases the module: the scan is stopped, the dispatcher loop is
// signalled, the adapter shut down, and the executor drained. Operations
// already in flight keep their own peripheral references and get a bounded
// window to complete and fire their callbacks; stragglers are cancelled.
func (m *Module) Close() {
	m.closeOnce.Do(func() {
		if err := m.StopScan(); err != nil {
			m.logger.WithError(err).Debug("Stopping scan during module release")
		}
		close(m.done)
		if m.dev != nil {
			if err := m.dev.Stop(); err != nil {
				m.logger.WithError(err).Debug("Stopping adapter during module release")
			}
		}
		if m.exec != nil {
			ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			if err := m.exec.Shutdown(ctx); err != nil {
				m.logger.WithError(err).Warn("In-flight work outlived module release")
			}
		}
		m.logger.Info("Module released")
	})
}
