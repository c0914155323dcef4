// Package status defines the stable integer codes returned across the C
// boundary and the mapping from internal failures onto them.
package status

import (
	"context"
	"errors"
)

// Code is the status value every entry point and completion callback reports.
// Values are part of the ABI and must never be renumbered.
type Code int32

const (
	Success         Code = 0
	Fail            Code = 1
	InvalidArgument Code = 2

	// Domain failures occupy the 100-series block.
	PermissionDenied         Code = 101
	DeviceNotFound           Code = 102
	NotConnected             Code = 103
	UnexpectedCallback       Code = 104
	UnexpectedCharacteristic Code = 105
	NoSuchCharacteristic     Code = 106
	NotSupported             Code = 107
	TimedOut                 Code = 108
	UUID                     Code = 109
	InvalidBDAddr            Code = 110
	RuntimeError             Code = 111
)

// Sentinel errors for the internal failure taxonomy. Operations wrap these
// with fmt.Errorf("...: %w", ...) so FromError can classify with errors.Is
// while the wrapped message lands in the handle's error slot.
var (
	ErrPermissionDenied         = errors.New("permission denied")
	ErrDeviceNotFound           = errors.New("device not found")
	ErrNotConnected             = errors.New("not connected")
	ErrUnexpectedCallback       = errors.New("unexpected callback")
	ErrUnexpectedCharacteristic = errors.New("unexpected characteristic")
	ErrNoSuchCharacteristic     = errors.New("no such characteristic")
	ErrNotSupported             = errors.New("not supported")
	ErrTimedOut                 = errors.New("timed out")
	ErrUUID                     = errors.New("malformed UUID")
	ErrInvalidBDAddr            = errors.New("invalid hardware address")
	ErrRuntime                  = errors.New("runtime error")
)

// FromError maps an internal failure to its status code. The mapping is total
// and side-effect-free: nil maps to Success, recognized taxonomy errors map
// to their 100-series code, everything else maps to Fail.
func FromError(err error) Code {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrPermissionDenied):
		return PermissionDenied
	case errors.Is(err, ErrDeviceNotFound):
		return DeviceNotFound
	case errors.Is(err, ErrNotConnected):
		return NotConnected
	case errors.Is(err, ErrUnexpectedCallback):
		return UnexpectedCallback
	case errors.Is(err, ErrUnexpectedCharacteristic):
		return UnexpectedCharacteristic
	case errors.Is(err, ErrNoSuchCharacteristic):
		return NoSuchCharacteristic
	case errors.Is(err, ErrNotSupported):
		return NotSupported
	case errors.Is(err, ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return TimedOut
	case errors.Is(err, ErrUUID):
		return UUID
	case errors.Is(err, ErrInvalidBDAddr):
		return InvalidBDAddr
	case errors.Is(err, ErrRuntime):
		return RuntimeError
	default:
		return Fail
	}
}

// String returns a short name for logging. Unknown values report as such
// rather than panicking since codes may cross the boundary from C callers.
func (c Code) String() string {
	switch c {
	case Success:
		return "SUCCESS"
	case Fail:
		return "ERROR_FAIL"
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case PermissionDenied:
		return "ERROR_PERMISSION_DENIED"
	case DeviceNotFound:
		return "ERROR_DEVICE_NOT_FOUND"
	case NotConnected:
		return "ERROR_NOT_CONNECTED"
	case UnexpectedCallback:
		return "ERROR_UNEXPECTED_CALLBACK"
	case UnexpectedCharacteristic:
		return "ERROR_UNEXPECTED_CHARACTERISTIC"
	case NoSuchCharacteristic:
		return "ERROR_NO_SUCH_CHARACTERISTIC"
	case NotSupported:
		return "ERROR_NOT_SUPPORTED"
	case TimedOut:
		return "ERROR_TIMED_OUT"
	case UUID:
		return "ERROR_UUID"
	case InvalidBDAddr:
		return "ERROR_INVALID_BD_ADDR"
	case RuntimeError:
		return "ERROR_RUNTIME_ERROR"
	default:
		return "ERROR_UNKNOWN"
	}
}
