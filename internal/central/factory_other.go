//go:build !linux && !darwin

package central

import (
	"fmt"
	"runtime"

	"github.com/dennisblokland/btleplug-c/internal/status"
)

func newHostDevice() (HostDevice, error) {
	return nil, fmt.Errorf("%w: no adapter backend for %s", status.ErrNotSupported, runtime.GOOS)
}
