// Package hwaddr converts 48-bit Bluetooth hardware addresses between their
// textual form and the compact 64-bit representation exposed to C callers.
package hwaddr

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/dennisblokland/btleplug-c/internal/status"
)

// Compact right-justifies the 6 address bytes into a big-endian uint64; the
// top 16 bits are always zero. The textual form accepts the usual colon,
// hyphen and dot groupings. macOS adapters report peripheral identifiers
// (UUID strings) instead of hardware addresses; those are rejected here and
// surface as ERROR_INVALID_BD_ADDR.
func Compact(addr string) (uint64, error) {
	hw, err := net.ParseMAC(addr)
	if err != nil || len(hw) != 6 {
		return 0, fmt.Errorf("%w: %q", status.ErrInvalidBDAddr, addr)
	}
	return FromBytes([6]byte(hw)), nil
}

// FromBytes compacts a raw 6-byte address.
func FromBytes(b [6]byte) uint64 {
	var buf [8]byte
	copy(buf[2:], b[:])
	return binary.BigEndian.Uint64(buf[:])
}

// Expand reverses Compact, producing the canonical lower-case colon form.
func Expand(v uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return net.HardwareAddr(buf[2:]).String()
}

// Bytes recovers the raw 6 address bytes from the compact form.
func Bytes(v uint64) [6]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return [6]byte(buf[2:])
}
