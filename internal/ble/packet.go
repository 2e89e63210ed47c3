package ble

import (
	"bytes"
	"encoding/binary"
)

// AD structure types used by the decoders.
const (
	ADFlags         uint8 = 0x01
	ADShortName     uint8 = 0x08
	ADName          uint8 = 0x09
	ADTxPower       uint8 = 0x0A
	ADServiceData16 uint8 = 0x16
	ADServiceData32 uint8 = 0x20
	ADManufacturer  uint8 = 0xFF
)

// NoValue marks an RSSI or TX power that was not reported.
const NoValue = 127

// Packet is a read-only view of one advertisement. Addr is most significant
// byte first, whatever order the radio stack reported it in.
type Packet struct {
	Payload  []byte
	Addr     [6]byte
	AddrType uint8
	AdvType  uint8
	RSSI     int16
}

// each calls fn for every well-formed AD structure until fn returns false.
// A truncated trailing structure ends the scan.
func (p *Packet) each(fn func(adType uint8, value []byte) bool) {
	b := p.Payload
	for i := 0; i < len(b); {
		n := int(b[i])
		if n == 0 || i+1+n > len(b) {
			return
		}
		if !fn(b[i+1], b[i+2:i+1+n]) {
			return
		}
		i += 1 + n
	}
}

// Field returns the value of the nth (0-based) AD structure of the given type.
func (p *Packet) Field(adType uint8, nth int) []byte {
	var out []byte
	p.each(func(t uint8, v []byte) bool {
		if t != adType {
			return true
		}
		if nth == 0 {
			out = v
			return false
		}
		nth--
		return true
	})
	return out
}

// FieldCount returns the number of well-formed AD structures.
func (p *Packet) FieldCount() int {
	n := 0
	p.each(func(uint8, []byte) bool {
		n++
		return true
	})
	return n
}

// ServiceData returns the value following the UUID of the first service data
// structure keyed by uuid and carrying at least minLen value bytes. UUIDs up
// to 0xFFFF are looked up as 16-bit, larger ones as 32-bit.
func (p *Packet) ServiceData(uuid uint32, minLen int) []byte {
	adType, size := ADServiceData16, 2
	if uuid > 0xFFFF {
		adType, size = ADServiceData32, 4
	}

	var out []byte
	p.each(func(t uint8, v []byte) bool {
		if t != adType || len(v) < size+minLen {
			return true
		}
		var got uint32
		if size == 2 {
			got = uint32(binary.LittleEndian.Uint16(v))
		} else {
			got = binary.LittleEndian.Uint32(v)
		}
		if got != uuid {
			return true
		}
		out = v[size:]
		return false
	})
	return out
}

// Name returns the complete local name, or the shortened one.
func (p *Packet) Name() string {
	if v := p.Field(ADName, 0); v != nil {
		return string(v)
	}
	return string(p.Field(ADShortName, 0))
}

// ManufacturerData returns the first manufacturer specific structure,
// company id included.
func (p *Packet) ManufacturerData() []byte { return p.Field(ADManufacturer, 0) }

// TxPower returns the advertised TX power level, or NoValue.
func (p *Packet) TxPower() int8 {
	if v := p.Field(ADTxPower, 0); len(v) == 1 {
		return int8(v[0])
	}
	return NoValue
}

// HasAddrPrefix reports whether the address starts with prefix.
func (p *Packet) HasAddrPrefix(prefix ...byte) bool {
	return len(prefix) <= len(p.Addr) && bytes.Equal(p.Addr[:len(prefix)], prefix)
}

// AppendAD appends one AD structure to b. Values longer than 254 bytes are
// truncated.
func AppendAD(b []byte, adType uint8, value []byte) []byte {
	value = value[:min(len(value), 254)]
	b = append(b, byte(len(value)+1), adType)
	return append(b, value...)
}
