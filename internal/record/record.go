// Package record defines the fixed 12-byte unit that flows through the bridge
// pipeline, together with its type tags, field ids and type-info opcodes.
package record

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// Size is the wire size of a Record in bytes.
const Size = 12

// RawCapacity is the number of raw bytes a TypeRaw record carries (extra + value).
const RawCapacity = 9

const (
	typeMask         = 0x3F
	flagCloseComplex = 1 << 6
	flagCloseMessage = 1 << 7
	valueSize        = 8
	refSlots         = 2
	macSize48        = 6
	macSize64        = 8
)

// Record is a tagged unit of telemetry. Byte 0 carries the type tag and the
// two close flags, bytes 1..3 the type-info opcode, field id and extra byte,
// bytes 4..11 the value area.
type Record struct {
	head     uint8
	TypeInfo uint8
	Field    Field
	Extra    uint8
	value    [valueSize]byte
}

var (
	_ [Size - unsafe.Sizeof(Record{})]struct{}
	_ [unsafe.Sizeof(Record{}) - Size]struct{}
)

// Ref is an opaque handle into a registry of strings, generators and lists.
// The zero Ref means "unset".
type Ref uint32

// Allocator hands out the next writable record, already reset and tagged.
type Allocator interface {
	Next(field Field, typ Type, typeInfo, extra uint8) *Record
}

// Target is an Allocator that can report how many records it still accepts
// and publish a finished message.
type Target interface {
	Allocator
	Free() int
	// CloseLast marks the most recent record as the end of a message.
	CloseLast()
}

// New returns a reset record tagged with the given header bytes.
func New(field Field, typ Type, typeInfo, extra uint8) Record {
	var r Record
	r.Init(field, typ, typeInfo, extra)
	return r
}

// Init resets r and sets its header.
func (r *Record) Init(field Field, typ Type, typeInfo, extra uint8) *Record {
	*r = Record{
		head:     uint8(typ) & typeMask,
		TypeInfo: typeInfo,
		Field:    field,
		Extra:    extra,
	}
	return r
}

// Reset zeroes every byte of the record.
func (r *Record) Reset() { *r = Record{} }

func (r *Record) Type() Type { return Type(r.head & typeMask) }

func (r *Record) SetType(t Type) *Record {
	r.head = r.head&^typeMask | uint8(t)&typeMask
	return r
}

// Close marks the record as the last one of a message.
func (r *Record) Close() *Record {
	r.head |= flagCloseMessage
	return r
}

func (r *Record) IsClosed() bool { return r.head&flagCloseMessage != 0 }

// SetCloseComplex marks the record as the last one of an open array or object.
func (r *Record) SetCloseComplex() *Record {
	r.head |= flagCloseComplex
	return r
}

func (r *Record) CloseComplex() bool { return r.head&flagCloseComplex != 0 }

func (r *Record) SetU32(a uint32) *Record {
	r.value = [valueSize]byte{}
	binary.LittleEndian.PutUint32(r.value[0:4], a)
	return r
}

func (r *Record) SetU32Pair(a, b uint32) *Record {
	binary.LittleEndian.PutUint32(r.value[0:4], a)
	binary.LittleEndian.PutUint32(r.value[4:8], b)
	return r
}

// U32 returns 32-bit slot i (0 or 1).
func (r *Record) U32(i int) uint32 {
	return binary.LittleEndian.Uint32(r.value[i*4 : i*4+4])
}

func (r *Record) SetI32(a int32) *Record { return r.SetU32(uint32(a)) }

func (r *Record) SetI32Pair(a, b int32) *Record { return r.SetU32Pair(uint32(a), uint32(b)) }

func (r *Record) I32(i int) int32 { return int32(r.U32(i)) }

func (r *Record) SetU64(v uint64) *Record {
	binary.LittleEndian.PutUint64(r.value[:], v)
	return r
}

func (r *Record) U64() uint64 { return binary.LittleEndian.Uint64(r.value[:]) }

func (r *Record) SetI64(v int64) *Record { return r.SetU64(uint64(v)) }

func (r *Record) I64() int64 { return int64(r.U64()) }

func (r *Record) SetFloat(a float32) *Record { return r.SetU32(math.Float32bits(a)) }

func (r *Record) SetFloatPair(a, b float32) *Record {
	return r.SetU32Pair(math.Float32bits(a), math.Float32bits(b))
}

func (r *Record) Float(i int) float32 { return math.Float32frombits(r.U32(i)) }

func (r *Record) SetDouble(v float64) *Record { return r.SetU64(math.Float64bits(v)) }

func (r *Record) Double() float64 { return math.Float64frombits(r.U64()) }

// SetMAC48 stores a 6-byte address, most significant byte first.
func (r *Record) SetMAC48(mac []byte) *Record {
	r.value = [valueSize]byte{}
	copy(r.value[:macSize48], mac)
	return r
}

// SetMAC64 stores an 8-byte address, most significant byte first.
func (r *Record) SetMAC64(mac []byte) *Record {
	r.value = [valueSize]byte{}
	copy(r.value[:], mac[:min(len(mac), macSize64)])
	return r
}

// MAC returns the value area as an address buffer.
func (r *Record) MAC() [valueSize]byte { return r.value }

func (r *Record) SetRefs(a, b Ref) *Record { return r.SetU32Pair(uint32(a), uint32(b)) }

// Ref returns reference slot i (0 or 1).
func (r *Record) Ref(i int) Ref {
	if i < 0 || i >= refSlots {
		return 0
	}
	return Ref(r.U32(i))
}

// SetRaw copies up to RawCapacity bytes starting at the extra byte.
func (r *Record) SetRaw(b []byte) *Record {
	r.Extra = 0
	r.value = [valueSize]byte{}
	if len(b) == 0 {
		return r
	}
	r.Extra = b[0]
	copy(r.value[:], b[1:min(len(b), RawCapacity)])
	return r
}

// Raw returns the RawCapacity bytes starting at the extra byte.
func (r *Record) Raw() [RawCapacity]byte {
	var out [RawCapacity]byte
	out[0] = r.Extra
	copy(out[1:], r.value[:])
	return out
}

// Secondary returns the record describing the second value of a double-field
// record: the field is taken from extra and slot 1 moves into slot 0.
func (r *Record) Secondary() Record {
	s := *r
	s.Field = Field(r.Extra)
	copy(s.value[0:4], r.value[4:8])
	return s
}

// Bytes returns the packed wire image.
func (r *Record) Bytes() [Size]byte {
	var b [Size]byte
	b[0] = r.head
	b[1] = r.TypeInfo
	b[2] = uint8(r.Field)
	b[3] = r.Extra
	copy(b[4:], r.value[:])
	return b
}

// FromBytes unpacks a wire image.
func FromBytes(b [Size]byte) Record {
	r := Record{head: b[0], TypeInfo: b[1], Field: Field(b[2]), Extra: b[3]}
	copy(r.value[:], b[4:])
	return r
}
