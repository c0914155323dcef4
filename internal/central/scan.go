package central

import (
	"context"
	"errors"
	"fmt"

	"github.com/dennisblokland/btleplug-c/internal/status"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MaxScanFilters bounds the service-UUID filter list accepted by StartScan.
const MaxScanFilters = 100

// StartScan begins discovery, publishing central events for every matching
// advertisement. An empty filter list reports everything. The call returns
// once the scan loop is running; advertisements are handled on the executor.
func (m *Module) StartScan(filters []uuid.UUID) error {
	if !m.Ready() {
		return ErrNotReady
	}
	if len(filters) > MaxScanFilters {
		return fmt.Errorf("out of range: filter count must be in range 0..%d, got %d", MaxScanFilters, len(filters))
	}

	m.scanMu.Lock()
	defer m.scanMu.Unlock()
	if m.scanCancel != nil {
		return fmt.Errorf("%w: scan already in progress", status.ErrRuntime)
	}

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	done := make(chan error, 1)

	err := m.exec.Spawn("central-scan", func(context.Context) {
		// First-sighting bookkeeping lives on the scan goroutine only.
		seen := make(map[string]struct{})
		err := m.dev.Scan(ctx, true, func(a Advertisement) {
			m.handleAdvertisement(a, filters, seen)
		}, func() { close(started) })
		if err != nil && !errors.Is(err, context.Canceled) {
			err = normalizeError(err)
			m.recordError(err)
			m.logger.WithError(err).Error("Scan terminated")
		}
		done <- err
	})
	if err != nil {
		cancel()
		return err
	}

	select {
	case <-started:
	case err := <-done:
		// The host bailed out before advertisements could flow.
		cancel()
		if err == nil || errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: scan terminated during startup", status.ErrRuntime)
			m.recordError(err)
		}
		return err
	}
	m.scanCancel, m.scanDone = cancel, done

	m.logger.WithField("filters", len(filters)).Info("Scan started")
	return nil
}

// StopScan stops discovery and blocks until the scan loop has returned.
// Stopping an idle module is a no-op.
func (m *Module) StopScan() error {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()
	if m.scanCancel == nil {
		return nil
	}

	m.scanCancel()
	err := <-m.scanDone
	m.scanCancel, m.scanDone = nil, nil

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		err = normalizeError(err)
		m.recordError(err)
		return err
	}
	m.logger.Info("Scan stopped")
	return nil
}

// handleAdvertisement filters one advertisement and turns it into central
// events: a discovery event on first sighting, plus a services advertisement
// whenever service UUIDs are present.
func (m *Module) handleAdvertisement(a Advertisement, filters []uuid.UUID, seen map[string]struct{}) {
	// Canonicalize before comparing: 16-bit short UUIDs in the advertisement
	// must match their expanded 128-bit filter form.
	var advertised []uuid.UUID
	for _, s := range a.Services() {
		u, err := fromBLEUUID(s)
		if err != nil {
			m.logger.WithError(err).WithField("id", a.Addr().String()).Warn("Skipping malformed advertised service UUID")
			continue
		}
		advertised = append(advertised, u)
	}

	if len(filters) > 0 && !intersects(advertised, filters) {
		return
	}

	id := a.Addr().String()
	if _, ok := seen[id]; !ok {
		seen[id] = struct{}{}
		m.logger.WithFields(logrus.Fields{
			"id":   id,
			"name": a.LocalName(),
			"rssi": a.RSSI(),
		}).Debug("Device discovered")
		m.publish(Event{Kind: EventDeviceDiscovered, ID: id, Addr: id})
	}

	if len(advertised) > 0 {
		m.publish(Event{Kind: EventServicesAdvertised, ID: id, Addr: id, Services: advertised})
	}
}

func intersects(advertised, filters []uuid.UUID) bool {
	for _, want := range filters {
		for _, got := range advertised {
			if got == want {
				return true
			}
		}
	}
	return false
}
