// Package wire implements a cursor-based reader for the protobuf wire format.
// It knows nothing about message semantics: callers drive it with the fixed
// field numbers of the GTFS-Realtime v2 schema and skip everything else by
// wire type. The schema is small and frozen, so this avoids a codegen step
// and a general protobuf dependency in the decode path.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Protobuf wire types.
const (
	WireVarint          = 0
	Wire64Bit           = 1
	WireLengthDelimited = 2
	Wire32Bit           = 5
)

// ErrTruncated reports a read past the end of the buffer.
var ErrTruncated = errors.New("truncated buffer")

// Reader is a cursor over a byte buffer. Reads after a failure are no-ops
// returning zero values; callers check Err once at the end of a decode loop,
// so a truncated buffer always surfaces as an error at the top-level call and
// never as partial state.
type Reader struct {
	buf []byte
	pos int
	err error
}

// NewReader returns a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Done reports whether the reader is exhausted or has failed.
func (r *Reader) Done() bool {
	return r.err != nil || r.pos >= len(r.buf)
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

// Pos returns the current cursor offset. Exposed for diagnostics.
func (r *Reader) Pos() int {
	return r.pos
}

func (r *Reader) fail() {
	if r.err == nil {
		r.err = fmt.Errorf("%w at offset %d", ErrTruncated, r.pos)
	}
}

// ReadVarint decodes a base-128 varint, accumulating 7-bit groups
// little-endian until a byte without the continuation bit.
//
// Values are truncated to 32 bits: for an over-long varint the remaining
// continuation bytes are consumed and only the low 32 bits are returned.
// This matches the reference decoder and is harmless for every field the
// feed actually uses (GTFS timestamps fit in 32 bits until 2106).
func (r *Reader) ReadVarint() uint32 {
	var result uint32
	var shift uint
	for {
		if r.err != nil {
			return 0
		}
		if r.pos >= len(r.buf) {
			r.fail()
			return 0
		}
		b := r.buf[r.pos]
		r.pos++
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result
		}
		shift += 7
		if shift >= 32 {
			for {
				if r.pos >= len(r.buf) {
					r.fail()
					return 0
				}
				b := r.buf[r.pos]
				r.pos++
				if b&0x80 == 0 {
					return result
				}
			}
		}
	}
}

// ReadTag reads one varint and decomposes it into a field number and wire type.
func (r *Reader) ReadTag() (field int, wireType int) {
	tag := r.ReadVarint()
	return int(tag >> 3), int(tag & 0x7)
}

// ReadBytes reads a length-delimited value: one varint length followed by
// that many raw bytes.
func (r *Reader) ReadBytes() []byte {
	n := int(r.ReadVarint())
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.buf) {
		r.fail()
		return nil
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out
}

// ReadString reads a length-delimited value as a UTF-8 string.
func (r *Reader) ReadString() string {
	return string(r.ReadBytes())
}

// ReadFloat32 interprets the next 4 bytes as an IEEE-754 float,
// little-endian.
func (r *Reader) ReadFloat32() float32 {
	if r.err != nil {
		return 0
	}
	if r.pos+4 > len(r.buf) {
		r.fail()
		return 0
	}
	bits := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return math.Float32frombits(bits)
}

// ReadFloat64 interprets the next 8 bytes as an IEEE-754 double,
// little-endian.
func (r *Reader) ReadFloat64() float64 {
	if r.err != nil {
		return 0
	}
	if r.pos+8 > len(r.buf) {
		r.fail()
		return 0
	}
	bits := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return math.Float64frombits(bits)
}

// Skip discards a value of the given wire type without interpreting it.
func (r *Reader) Skip(wireType int) {
	if r.err != nil {
		return
	}
	switch wireType {
	case WireVarint:
		r.ReadVarint()
	case Wire64Bit:
		r.advance(8)
	case WireLengthDelimited:
		n := int(r.ReadVarint())
		r.advance(n)
	case Wire32Bit:
		r.advance(4)
	default:
		if r.err == nil {
			r.err = fmt.Errorf("unsupported wire type %d at offset %d", wireType, r.pos)
		}
	}
}

// Sub reads a length-delimited value and returns a Reader over it, for
// nested messages.
func (r *Reader) Sub() *Reader {
	return NewReader(r.ReadBytes())
}

func (r *Reader) advance(n int) {
	if r.err != nil {
		return
	}
	if n < 0 || r.pos+n > len(r.buf) {
		r.fail()
		return
	}
	r.pos += n
}
