package central

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dennisblokland/btleplug-c/internal/status"
)

// ErrNotReady reports a module that was created in a degraded state (no
// adapter or no execution context). Entry points validate against it before
// scheduling any work.
var ErrNotReady = errors.New("invalid module")

var classified = []error{
	status.ErrPermissionDenied,
	status.ErrDeviceNotFound,
	status.ErrNotConnected,
	status.ErrUnexpectedCallback,
	status.ErrUnexpectedCharacteristic,
	status.ErrNoSuchCharacteristic,
	status.ErrNotSupported,
	status.ErrTimedOut,
	status.ErrUUID,
	status.ErrInvalidBDAddr,
	status.ErrRuntime,
}

// normalizeError maps known host-stack error strings onto the status
// taxonomy. The BLE library reports failures as plain strings, so matching
// is by substring; anything unrecognized passes through unchanged and maps
// to the generic failure code.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range classified {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", status.ErrTimedOut, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "operation not permitted"):
		return fmt.Errorf("%w: %v", status.ErrPermissionDenied, err)
	case strings.Contains(msg, "not connected"),
		strings.Contains(msg, "disconnected"),
		strings.Contains(msg, "connection canceled"):
		return fmt.Errorf("%w: %v", status.ErrNotConnected, err)
	case strings.Contains(msg, "not found"):
		return fmt.Errorf("%w: %v", status.ErrDeviceNotFound, err)
	case strings.Contains(msg, "timed out"),
		strings.Contains(msg, "timeout"):
		return fmt.Errorf("%w: %v", status.ErrTimedOut, err)
	case strings.Contains(msg, "not supported"),
		strings.Contains(msg, "unsupported"):
		return fmt.Errorf("%w: %v", status.ErrNotSupported, err)
	default:
		return err
	}
}
