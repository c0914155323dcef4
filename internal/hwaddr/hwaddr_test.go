package hwaddr_test

import (
	"math/rand"
	"testing"

	"github.com/dennisblokland/btleplug-c/internal/hwaddr"
	"github.com/dennisblokland/btleplug-c/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompactKnownValues(t *testing.T) {
	tests := []struct {
		addr string
		want uint64
	}{
		{"00:00:00:00:00:00", 0x0000000000000000},
		{"00:00:00:00:00:01", 0x0000000000000001},
		{"aa:bb:cc:dd:ee:ff", 0x0000aabbccddeeff},
		{"AA:BB:CC:DD:EE:FF", 0x0000aabbccddeeff},
		{"ff:ff:ff:ff:ff:ff", 0x0000ffffffffffff},
	}

	for _, tt := range tests {
		got, err := hwaddr.Compact(tt.addr)
		require.NoError(t, err, tt.addr)
		assert.Equal(t, tt.want, got, tt.addr)
		// Top 16 bits must always be zero.
		assert.Zero(t, got>>48, tt.addr)
	}
}

func TestCompactInvalid(t *testing.T) {
	invalid := []string{
		"",
		"not-an-address",
		"aa:bb:cc:dd:ee",                       // too short
		"aa:bb:cc:dd:ee:ff:00:11",              // EUI-64, not a BD_ADDR
		"6ba7b810-9dad-11d1-80b4-00c04fd430c8", // macOS peripheral identifier
	}

	for _, addr := range invalid {
		_, err := hwaddr.Compact(addr)
		require.Error(t, err, addr)
		assert.ErrorIs(t, err, status.ErrInvalidBDAddr, addr)
		assert.Equal(t, status.InvalidBDAddr, status.FromError(err), addr)
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 1000; i++ {
		var raw [6]byte
		rng.Read(raw[:])

		compact := hwaddr.FromBytes(raw)
		assert.Equal(t, raw, hwaddr.Bytes(compact))

		// Text form round trips through Compact/Expand exactly.
		text := hwaddr.Expand(compact)
		back, err := hwaddr.Compact(text)
		require.NoError(t, err, text)
		assert.Equal(t, compact, back, text)
	}
}
