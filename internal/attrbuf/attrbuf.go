// Package attrbuf serializes a discovered GATT attribute tree into the flat,
// self-describing buffer handed across the C boundary.
//
// The buffer is consumed by raw offset on the caller's side, so the layout is
// fixed and little-endian regardless of how the records are declared here:
//
//	[0..4)   uint32 total size in bytes, including this 8-byte header
//	[4..8)   uint32 allocated capacity in bytes (>= total size)
//	[8..12)  int32  service count
//	per service:
//	  [0..16)  service UUID, RFC 4122 byte order
//	  [16..20) int32 characteristic count
//	per characteristic:
//	  [0..16)  characteristic UUID
//	  [16..17) uint8 property bitmask
//	  [17..20) padding, written as zero (alignment of the count field)
//	  [20..24) int32 descriptor count
//	per descriptor:
//	  [0..16)  descriptor UUID
//
// The two header words are written last, after the tree walk has determined
// the total size.
package attrbuf

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Record sizes in bytes, fixed by the layout above.
const (
	HeaderSize         = 8
	serviceHeaderSize  = 4
	serviceRecordSize  = 20
	charRecordSize     = 24
	descRecordSize     = 16
	charPropertyOffset = 16
	charDescCountOff   = 20
)

// Service is one entry of the discovered service tree, in discovery order.
type Service struct {
	UUID            uuid.UUID
	Characteristics []Characteristic
}

// Characteristic carries the GATT property bitmask alongside its descriptors.
type Characteristic struct {
	UUID        uuid.UUID
	Properties  uint8
	Descriptors []Descriptor
}

// Descriptor identifies one characteristic descriptor.
type Descriptor struct {
	UUID uuid.UUID
}

// Size returns the exact encoded size of the tree, header included.
func Size(services []Service) int {
	n := HeaderSize + serviceHeaderSize
	for _, s := range services {
		n += serviceRecordSize
		for _, c := range s.Characteristics {
			n += charRecordSize + descRecordSize*len(c.Descriptors)
		}
	}
	return n
}

// Encode flattens the tree into a single buffer. The returned slice is
// exactly sized; the capacity header word equals the total size.
func Encode(services []Service) []byte {
	buf := make([]byte, HeaderSize, Size(services))

	var scratch [4]byte
	appendI32 := func(v int) {
		binary.LittleEndian.PutUint32(scratch[:], uint32(int32(v)))
		buf = append(buf, scratch[:]...)
	}

	appendI32(len(services))
	for _, s := range services {
		buf = append(buf, s.UUID[:]...)
		appendI32(len(s.Characteristics))
		for _, c := range s.Characteristics {
			buf = append(buf, c.UUID[:]...)
			buf = append(buf, c.Properties, 0, 0, 0)
			appendI32(len(c.Descriptors))
			for _, d := range c.Descriptors {
				buf = append(buf, d.UUID[:]...)
			}
		}
	}

	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(buf)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(cap(buf)))
	return buf
}

// Header reads the size/capacity words of an encoded buffer without decoding
// the tree. It is what the release path uses to validate a caller-returned
// buffer before deallocation.
func Header(buf []byte) (size, capacity uint32, err error) {
	if len(buf) < HeaderSize {
		return 0, 0, fmt.Errorf("attrbuf: buffer too short for header (%d bytes)", len(buf))
	}
	size = binary.LittleEndian.Uint32(buf[0:4])
	capacity = binary.LittleEndian.Uint32(buf[4:8])
	if size < HeaderSize+serviceHeaderSize || capacity < size {
		return 0, 0, fmt.Errorf("attrbuf: implausible header (size=%d capacity=%d)", size, capacity)
	}
	return size, capacity, nil
}

// Decode reconstructs the tree by raw offset. It mirrors what a C consumer
// does and exists to verify the round-trip contract.
func Decode(buf []byte) ([]Service, error) {
	size, _, err := Header(buf)
	if err != nil {
		return nil, err
	}
	if int(size) > len(buf) {
		return nil, fmt.Errorf("attrbuf: header claims %d bytes, got %d", size, len(buf))
	}

	r := reader{buf: buf[:size], off: HeaderSize}
	serviceCount, err := r.i32()
	if err != nil {
		return nil, err
	}

	var services []Service
	for i := int32(0); i < serviceCount; i++ {
		var s Service
		if s.UUID, err = r.uuid(); err != nil {
			return nil, err
		}
		charCount, err := r.i32()
		if err != nil {
			return nil, err
		}
		for j := int32(0); j < charCount; j++ {
			var c Characteristic
			if c.UUID, err = r.uuid(); err != nil {
				return nil, err
			}
			props, err := r.bytes(4)
			if err != nil {
				return nil, err
			}
			c.Properties = props[0]
			descCount, err := r.i32()
			if err != nil {
				return nil, err
			}
			for k := int32(0); k < descCount; k++ {
				u, err := r.uuid()
				if err != nil {
					return nil, err
				}
				c.Descriptors = append(c.Descriptors, Descriptor{UUID: u})
			}
			s.Characteristics = append(s.Characteristics, c)
		}
		services = append(services, s)
	}
	return services, nil
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.off+n > len(r.buf) {
		return nil, fmt.Errorf("attrbuf: truncated buffer at offset %d", r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) i32() (int32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	v := int32(binary.LittleEndian.Uint32(b))
	if v < 0 {
		return 0, fmt.Errorf("attrbuf: negative count at offset %d", r.off-4)
	}
	return v, nil
}

func (r *reader) uuid() (uuid.UUID, error) {
	b, err := r.bytes(16)
	if err != nil {
		return uuid.UUID{}, err
	}
	return uuid.UUID(b), nil
}
