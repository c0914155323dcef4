// Command libbtleplug builds as a C shared library exposing the BLE central
// stack to foreign callers:
//
//	go build -buildmode=c-shared -o libbtleplug.so ./cmd/libbtleplug
//
// Handles crossing the boundary are opaque; include/btleplug.h carries the
// declarations consumers compile against. Entry points validate their
// arguments and return a status code synchronously; the work itself runs on
// the module's execution context and reports through the supplied callback.
package main

/*
#include <stdbool.h>
#include <stdint.h>
#include <stdlib.h>
#include <string.h>

typedef struct {
	uint8_t bytes[16];
} bp_uuid_t;

typedef int (*peripheral_found_cb)(uint64_t id, void *peripheral, const bp_uuid_t *services, int service_count);
typedef void (*peripheral_event_cb)(uint64_t id);
typedef void (*completed_cb)(int result);
typedef void (*is_connected_cb)(int result, int connected);
typedef void (*notify_cb)(bp_uuid_t uuid, const uint8_t *data, int data_length);

static int invoke_found(peripheral_found_cb cb, uint64_t id, void *peripheral, const bp_uuid_t *services, int service_count) {
	return cb(id, peripheral, services, service_count);
}

static void invoke_event(peripheral_event_cb cb, uint64_t id) {
	cb(id);
}

static void invoke_completed(completed_cb cb, int result) {
	cb(result);
}

static void invoke_connected(is_connected_cb cb, int result, int connected) {
	cb(result, connected);
}

static void invoke_notify(notify_cb cb, bp_uuid_t uuid, const uint8_t *data, int data_length) {
	cb(uuid, data, data_length);
}
*/
import "C"

import (
	"errors"
	"runtime/cgo"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dennisblokland/btleplug-c/internal/attrbuf"
	"github.com/dennisblokland/btleplug-c/internal/central"
	"github.com/dennisblokland/btleplug-c/internal/status"
)

// logger is shared by every module created through this boundary. Logging is
// off until the caller opts in through set_log_level.
var logger = newBoundaryLogger()

func newBoundaryLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return l
}

func goUUID(u C.bp_uuid_t) uuid.UUID {
	var out uuid.UUID
	copy(out[:], (*[16]byte)(unsafe.Pointer(&u.bytes[0]))[:])
	return out
}

func cUUID(u uuid.UUID) C.bp_uuid_t {
	var out C.bp_uuid_t
	copy((*[16]byte)(unsafe.Pointer(&out.bytes[0]))[:], u[:])
	return out
}

func moduleFromPtr(p unsafe.Pointer) *central.Module {
	if p == nil {
		return nil
	}
	m, _ := cgo.Handle(uintptr(p)).Value().(*central.Module)
	return m
}

func peripheralFromPtr(p unsafe.Pointer) *central.Peripheral {
	if p == nil {
		return nil
	}
	per, _ := cgo.Handle(uintptr(p)).Value().(*central.Peripheral)
	return per
}

// entryCode maps an entry-point rejection onto its status code. Failures of
// work in flight never come through here; those reach the caller through the
// operation's own callback.
func entryCode(err error) C.int {
	if errors.Is(err, central.ErrNotReady) {
		return C.int(status.InvalidArgument)
	}
	return C.int(status.FromError(err))
}

//export set_log_level
func set_log_level(level C.int) {
	switch level {
	case 1:
		logger.SetLevel(logrus.ErrorLevel)
	case 2:
		logger.SetLevel(logrus.WarnLevel)
	case 3:
		logger.SetLevel(logrus.InfoLevel)
	case 4:
		logger.SetLevel(logrus.DebugLevel)
	case 5:
		logger.SetLevel(logrus.TraceLevel)
	default:
		logger.SetLevel(logrus.PanicLevel)
	}
}

//export create_module
func create_module(module *unsafe.Pointer) C.int {
	logger.Trace("Enter: create_module")
	if module == nil {
		return C.int(status.InvalidArgument)
	}

	m, err := central.NewModule(logger)
	*module = unsafe.Pointer(cgo.NewHandle(m))
	if err != nil {
		logger.WithError(err).Warn("Module initialization failed")
		return C.int(status.FromError(err))
	}

	logger.Trace("Success: create_module")
	return C.int(status.Success)
}

//export set_event_callbacks
func set_event_callbacks(module unsafe.Pointer, found C.peripheral_found_cb, disconnected C.peripheral_event_cb) C.int {
	logger.Trace("Enter: set_event_callbacks")
	m := moduleFromPtr(module)
	if m == nil {
		logger.Error("null module")
		return C.int(status.InvalidArgument)
	}
	if found == nil {
		m.SetLastError("Null argument: on_peripheral_found")
		return C.int(status.InvalidArgument)
	}
	if !m.Ready() {
		m.SetLastError("Invalid module")
		return C.int(status.InvalidArgument)
	}

	onFound := func(p *central.Peripheral, advertised bool) bool {
		handle := cgo.NewHandle(p)

		var servicePtr *C.bp_uuid_t
		var serviceCount C.int
		if advertised {
			services := p.AdvertisedServices()
			if len(services) > 0 {
				cServices := make([]C.bp_uuid_t, len(services))
				for i, s := range services {
					cServices[i] = cUUID(s)
				}
				servicePtr = &cServices[0]
				serviceCount = C.int(len(cServices))
			}
		}

		keep := C.invoke_found(found, C.uint64_t(p.Address()), unsafe.Pointer(handle), servicePtr, serviceCount)
		if keep == 0 {
			// The handle was rejected, drop it.
			handle.Delete()
			return false
		}
		return true
	}

	var onDisconnected central.DisconnectedFunc
	if disconnected != nil {
		onDisconnected = func(addr uint64) {
			C.invoke_event(disconnected, C.uint64_t(addr))
		}
	}

	if err := m.SetEventCallbacks(onFound, onDisconnected); err != nil {
		m.SetLastError(err.Error())
		return entryCode(err)
	}

	logger.Trace("Success: set_event_callbacks")
	return C.int(status.Success)
}

//export start_scan_peripherals
func start_scan_peripherals(module unsafe.Pointer, serviceUUIDs *C.bp_uuid_t, serviceUUIDCount C.int) C.int {
	logger.Trace("Enter: start_scan_peripherals")
	m := moduleFromPtr(module)
	if m == nil {
		logger.Error("null module")
		return C.int(status.InvalidArgument)
	}
	if !m.Ready() {
		m.SetLastError("Invalid module")
		return C.int(status.InvalidArgument)
	}

	var filters []uuid.UUID
	switch {
	case serviceUUIDCount == 0:
		logger.Debug("No filters applied")
	case serviceUUIDCount > 0 && serviceUUIDCount <= central.MaxScanFilters:
		if serviceUUIDs == nil {
			m.SetLastError("Null argument: service_uuids")
			return C.int(status.InvalidArgument)
		}
		raw := unsafe.Slice(serviceUUIDs, int(serviceUUIDCount))
		filters = make([]uuid.UUID, len(raw))
		for i, u := range raw {
			filters[i] = goUUID(u)
		}
		logger.WithField("filters", len(filters)).Debug("Applying filters to scan")
	default:
		logger.WithField("count", int(serviceUUIDCount)).Error("Invalid number of filters provided")
		m.SetLastError("Out of range: service_uuid_count must be in range 1..100")
		return C.int(status.Fail)
	}

	if err := m.StartScan(filters); err != nil {
		logger.WithError(err).Error("Error start_scan")
		m.SetLastError(err.Error())
		return entryCode(err)
	}

	logger.Trace("Success: start_scan_peripherals")
	return C.int(status.Success)
}

//export stop_scan_peripherals
func stop_scan_peripherals(module unsafe.Pointer) C.int {
	logger.Trace("Enter: stop_scan_peripherals")
	m := moduleFromPtr(module)
	if m == nil {
		logger.Error("null module")
		return C.int(status.InvalidArgument)
	}
	if !m.Ready() {
		m.SetLastError("Invalid module")
		return C.int(status.InvalidArgument)
	}

	if err := m.StopScan(); err != nil {
		logger.WithError(err).Error("error in stop_scan")
		m.SetLastError(err.Error())
		return entryCode(err)
	}

	logger.Trace("Success: stop_scan_peripherals")
	return C.int(status.Success)
}

//export peripheral_get_id
func peripheral_get_id(peripheral unsafe.Pointer, id **C.char) C.int {
	p := peripheralFromPtr(peripheral)
	if p == nil {
		if id != nil {
			*id = nil
		}
		return C.int(status.InvalidArgument)
	}
	if id == nil {
		return C.int(status.InvalidArgument)
	}
	*id = C.CString(p.ID())
	return C.int(status.Success)
}

//export peripheral_get_address
func peripheral_get_address(peripheral unsafe.Pointer, address *C.uint64_t) C.int {
	p := peripheralFromPtr(peripheral)
	if p == nil {
		if address != nil {
			*address = 0
		}
		return C.int(status.InvalidArgument)
	}
	if address == nil {
		return C.int(status.InvalidArgument)
	}
	*address = C.uint64_t(p.Address())
	return C.int(status.Success)
}

//export peripheral_is_connected
func peripheral_is_connected(peripheral unsafe.Pointer, completedCallback C.is_connected_cb) C.int {
	logger.Trace("Enter: peripheral_is_connected")
	p := peripheralFromPtr(peripheral)
	if p == nil || completedCallback == nil {
		logger.Error("null peripheral handle")
		return C.int(status.InvalidArgument)
	}

	err := p.IsConnected(func(code status.Code, connected bool) {
		v := C.int(0)
		if connected {
			v = 1
		}
		C.invoke_connected(completedCallback, C.int(code), v)
	})
	if err != nil {
		p.SetLastError(err.Error())
		return entryCode(err)
	}

	logger.Trace("Success: peripheral_is_connected")
	return C.int(status.Success)
}

// completion adapts a C completion callback to the operation bridge.
func completion(cb C.completed_cb) central.CompletionFunc {
	return func(code status.Code) {
		C.invoke_completed(cb, C.int(code))
	}
}

//export peripheral_connect
func peripheral_connect(peripheral unsafe.Pointer, completedCallback C.completed_cb) C.int {
	logger.Trace("Enter: peripheral_connect")
	p := peripheralFromPtr(peripheral)
	if p == nil || completedCallback == nil {
		logger.Error("null peripheral handle")
		return C.int(status.InvalidArgument)
	}

	if err := p.Connect(completion(completedCallback)); err != nil {
		p.SetLastError(err.Error())
		return entryCode(err)
	}

	logger.Trace("Success: peripheral_connect")
	return C.int(status.Success)
}

//export peripheral_disconnect
func peripheral_disconnect(peripheral unsafe.Pointer, completedCallback C.completed_cb) C.int {
	logger.Trace("Enter: peripheral_disconnect")
	p := peripheralFromPtr(peripheral)
	if p == nil || completedCallback == nil {
		logger.Error("null peripheral handle")
		return C.int(status.InvalidArgument)
	}

	if err := p.Disconnect(completion(completedCallback)); err != nil {
		p.SetLastError(err.Error())
		return entryCode(err)
	}

	logger.Trace("Success: peripheral_disconnect")
	return C.int(status.Success)
}

//export peripheral_discover_services
func peripheral_discover_services(peripheral unsafe.Pointer, completedCallback C.completed_cb) C.int {
	logger.Trace("Enter: peripheral_discover_services")
	p := peripheralFromPtr(peripheral)
	if p == nil || completedCallback == nil {
		logger.Error("null peripheral handle")
		return C.int(status.InvalidArgument)
	}

	if err := p.DiscoverServices(completion(completedCallback)); err != nil {
		p.SetLastError(err.Error())
		return entryCode(err)
	}

	logger.Trace("Success: peripheral_discover_services")
	return C.int(status.Success)
}

//export peripheral_get_services
func peripheral_get_services(peripheral unsafe.Pointer, serviceDescriptors **C.uint8_t) C.int {
	logger.Trace("Enter: peripheral_get_services")
	p := peripheralFromPtr(peripheral)
	if p == nil {
		logger.Error("null peripheral handle")
		return C.int(status.InvalidArgument)
	}
	if serviceDescriptors == nil {
		p.SetLastError("Null argument: service_descriptors")
		return C.int(status.InvalidArgument)
	}

	services := p.Services()
	logger.WithField("services", len(services)).Info("Found services for peripheral")

	buf := attrbuf.Encode(services)
	out := C.malloc(C.size_t(len(buf)))
	if out == nil {
		p.SetLastError("Out of memory")
		return C.int(status.Fail)
	}
	C.memcpy(out, unsafe.Pointer(&buf[0]), C.size_t(len(buf)))

	*serviceDescriptors = (*C.uint8_t)(out)
	logger.Trace("Success: peripheral_get_services")
	return C.int(status.Success)
}

//export free_peripheral_services
func free_peripheral_services(services *C.uint8_t) C.int {
	if services == nil {
		return C.int(status.Success)
	}
	header := unsafe.Slice((*byte)(services), attrbuf.HeaderSize)
	if _, _, err := attrbuf.Header(header); err != nil {
		logger.WithError(err).Error("Refusing to free an unrecognized buffer")
		return C.int(status.InvalidArgument)
	}
	C.free(unsafe.Pointer(services))
	return C.int(status.Success)
}

//export peripheral_register_notification_events
func peripheral_register_notification_events(peripheral unsafe.Pointer, ready C.completed_cb, notifyCallback C.notify_cb) C.int {
	logger.Trace("Enter: peripheral_register_notification_events")
	p := peripheralFromPtr(peripheral)
	if p == nil || ready == nil || notifyCallback == nil {
		logger.Error("null peripheral handle")
		return C.int(status.InvalidArgument)
	}

	err := p.RegisterNotificationEvents(completion(ready), func(char uuid.UUID, data []byte) {
		logger.WithFields(logrus.Fields{
			"bytes":          len(data),
			"characteristic": char,
		}).Info("Received notification")
		var ptr *C.uint8_t
		if len(data) > 0 {
			ptr = (*C.uint8_t)(unsafe.Pointer(&data[0]))
		}
		C.invoke_notify(notifyCallback, cUUID(char), ptr, C.int(len(data)))
	})
	if err != nil {
		p.SetLastError(err.Error())
		return entryCode(err)
	}

	logger.Trace("Success: peripheral_register_notification_events")
	return C.int(status.Success)
}

//export peripheral_subscribe
func peripheral_subscribe(peripheral unsafe.Pointer, serviceUUID C.bp_uuid_t, charUUID C.bp_uuid_t, completedCallback C.completed_cb) C.int {
	logger.Trace("Enter: peripheral_subscribe")
	p := peripheralFromPtr(peripheral)
	if p == nil || completedCallback == nil {
		logger.Error("null peripheral handle")
		return C.int(status.InvalidArgument)
	}

	svc, chr := goUUID(serviceUUID), goUUID(charUUID)
	logger.WithFields(logrus.Fields{
		"service":        svc,
		"characteristic": chr,
	}).Info("Subscribing notification")

	if err := p.Subscribe(svc, chr, completion(completedCallback)); err != nil {
		p.SetLastError(err.Error())
		return entryCode(err)
	}

	logger.Trace("Success: peripheral_subscribe")
	return C.int(status.Success)
}

//export peripheral_unsubscribe
func peripheral_unsubscribe(peripheral unsafe.Pointer, serviceUUID C.bp_uuid_t, charUUID C.bp_uuid_t, completedCallback C.completed_cb) C.int {
	logger.Trace("Enter: peripheral_unsubscribe")
	p := peripheralFromPtr(peripheral)
	if p == nil || completedCallback == nil {
		logger.Error("null peripheral handle")
		return C.int(status.InvalidArgument)
	}

	svc, chr := goUUID(serviceUUID), goUUID(charUUID)
	logger.WithFields(logrus.Fields{
		"service":        svc,
		"characteristic": chr,
	}).Info("Unsubscribing notification")

	if err := p.Unsubscribe(svc, chr, completion(completedCallback)); err != nil {
		p.SetLastError(err.Error())
		return entryCode(err)
	}

	logger.Trace("Success: peripheral_unsubscribe")
	return C.int(status.Success)
}

//export peripheral_write
func peripheral_write(peripheral unsafe.Pointer, serviceUUID C.bp_uuid_t, charUUID C.bp_uuid_t, withResponse C.bool, data *C.uint8_t, dataLength C.uint32_t, completedCallback C.completed_cb) C.int {
	logger.Trace("Enter: peripheral_write")
	p := peripheralFromPtr(peripheral)
	if p == nil || completedCallback == nil {
		logger.Error("null peripheral handle")
		return C.int(status.InvalidArgument)
	}
	if data == nil {
		logger.Error("null data")
		p.SetLastError("Null argument: data")
		return C.int(status.InvalidArgument)
	}

	svc, chr := goUUID(serviceUUID), goUUID(charUUID)
	payload := C.GoBytes(unsafe.Pointer(data), C.int(dataLength))
	logger.WithFields(logrus.Fields{
		"bytes":          len(payload),
		"service":        svc,
		"characteristic": chr,
		"with_response":  bool(withResponse),
	}).Info("Writing to characteristic")

	if err := p.Write(svc, chr, bool(withResponse), payload, completion(completedCallback)); err != nil {
		p.SetLastError(err.Error())
		return entryCode(err)
	}

	logger.Trace("Success: peripheral_write")
	return C.int(status.Success)
}

//export get_last_module_error
func get_last_module_error(module unsafe.Pointer) *C.char {
	m := moduleFromPtr(module)
	if m == nil {
		return nil
	}
	return C.CString(m.LastError())
}

//export peripheral_get_last_error
func peripheral_get_last_error(peripheral unsafe.Pointer) *C.char {
	p := peripheralFromPtr(peripheral)
	if p == nil {
		return nil
	}
	return C.CString(p.LastError())
}

//export free_module
func free_module(module unsafe.Pointer) C.int {
	if module == nil {
		return C.int(status.Success)
	}
	h := cgo.Handle(uintptr(module))
	if m, ok := h.Value().(*central.Module); ok {
		m.Close()
	}
	h.Delete()
	return C.int(status.Success)
}

//export free_peripheral
func free_peripheral(peripheral unsafe.Pointer) C.int {
	if peripheral == nil {
		return C.int(status.Success)
	}
	h := cgo.Handle(uintptr(peripheral))
	if p, ok := h.Value().(*central.Peripheral); ok {
		p.Close()
	}
	h.Delete()
	return C.int(status.Success)
}

//export free_string
func free_string(s *C.char) C.int {
	if s == nil {
		return C.int(status.Success)
	}
	C.free(unsafe.Pointer(s))
	return C.int(status.Success)
}

func main() {}
