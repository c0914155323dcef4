package central

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/dennisblokland/btleplug-c/internal/status"
	"github.com/go-ble/ble"
	"github.com/google/uuid"
)

// bluetoothBaseUUID is the SIG base into which 16- and 32-bit short UUIDs
// are expanded: 0000xxxx-0000-1000-8000-00805F9B34FB.
var bluetoothBaseUUID = uuid.MustParse("00000000-0000-1000-8000-00805F9B34FB")

// toBLEUUID converts an RFC 4122 value into the host stack's little-endian
// representation.
func toBLEUUID(u uuid.UUID) ble.UUID {
	return ble.Reverse(ble.UUID(u[:]))
}

// fromBLEUUID converts a host-stack UUID (16-, 32- or 128-bit) into the
// canonical 128-bit form carried across the boundary.
func fromBLEUUID(bu ble.UUID) (uuid.UUID, error) {
	switch len(bu) {
	case 2:
		u := bluetoothBaseUUID
		binary.BigEndian.PutUint16(u[2:4], binary.LittleEndian.Uint16(bu))
		return u, nil
	case 4:
		u := bluetoothBaseUUID
		binary.BigEndian.PutUint32(u[0:4], binary.LittleEndian.Uint32(bu))
		return u, nil
	case 16:
		return uuid.UUID([]byte(ble.Reverse(bu))), nil
	default:
		return uuid.UUID{}, fmt.Errorf("%w: unsupported UUID length %d", status.ErrUUID, len(bu))
	}
}

// ParseUUID parses a textual UUID into canonical 128-bit form. Short 4- and
// 8-digit hex forms are accepted and expanded into the base.
func ParseUUID(s string) (uuid.UUID, error) {
	switch len(s) {
	case 4, 8:
		b, err := hex.DecodeString(s)
		if err != nil {
			return uuid.UUID{}, fmt.Errorf("%w: %q", status.ErrUUID, s)
		}
		u := bluetoothBaseUUID
		copy(u[4-len(b):4], b)
		return u, nil
	default:
		u, err := uuid.Parse(s)
		if err != nil {
			return uuid.UUID{}, fmt.Errorf("%w: %q", status.ErrUUID, s)
		}
		return u, nil
	}
}
