package pipeline

import (
	"bytes"
	"strings"
)

const maxAddrLen = 8

// DeviceIdentity holds a device address and the display strings derived from
// it. Derivation is string work, so the Cache keeps one identity per message
// and reuses it across generated documents.
type DeviceIdentity struct {
	Addr    [maxAddrLen]byte
	AddrLen int
	// StrMAC is the address in lower-case hex without separators.
	StrMAC string
	// StrID is a short vendor-tagged id used in state topics and names.
	StrID string
}

type vendorPrefix struct {
	oui  [3]byte
	name string
}

var vendorPrefixes = []vendorPrefix{
	{[3]byte{0xA4, 0xC1, 0x38}, "ATC"},
	{[3]byte{0x4C, 0x65, 0xA8}, "MiJia"},
	{[3]byte{0x58, 0x2D, 0x34}, "Qingping"},
	{[3]byte{0x24, 0x0A, 0xC4}, "ESP"},
	{[3]byte{0x30, 0xAE, 0xA4}, "ESP"},
	{[3]byte{0xB8, 0x27, 0xEB}, "RPi"},
	{[3]byte{0xDC, 0xA6, 0x32}, "RPi"},
	{[3]byte{0xE4, 0x5F, 0x01}, "RPi"},
	{[3]byte{0x28, 0xCD, 0xC1}, "Pico"},
}

const unknownVendor = "BT"

const hexLower = "0123456789abcdef"
const hexUpper = "0123456789ABCDEF"

// NewIdentity derives the identity of a 6- or 8-byte address.
func NewIdentity(addr []byte) DeviceIdentity {
	var id DeviceIdentity
	id.AddrLen = copy(id.Addr[:], addr)

	var sb strings.Builder
	sb.Grow(2 * id.AddrLen)
	for _, b := range id.Addr[:id.AddrLen] {
		sb.WriteByte(hexLower[b>>4])
		sb.WriteByte(hexLower[b&0x0F])
	}
	id.StrMAC = sb.String()

	vendor := unknownVendor
	if id.AddrLen >= 3 {
		for _, v := range vendorPrefixes {
			if bytes.Equal(id.Addr[:3], v.oui[:]) {
				vendor = v.name
				break
			}
		}
	}

	sb.Reset()
	sb.WriteString(vendor)
	sb.WriteByte('_')
	for _, b := range id.Addr[max(id.AddrLen-3, 0):id.AddrLen] {
		sb.WriteByte(hexUpper[b>>4])
		sb.WriteByte(hexUpper[b&0x0F])
	}
	id.StrID = sb.String()
	return id
}

// Matches reports whether addr is the address this identity was derived from.
func (d DeviceIdentity) Matches(addr []byte) bool {
	return d.AddrLen == len(addr) && bytes.Equal(d.Addr[:d.AddrLen], addr)
}

// Address returns the raw address bytes.
func (d DeviceIdentity) Address() []byte { return d.Addr[:d.AddrLen] }

// ColonMAC returns the address as lower-case colon separated hex.
func (d DeviceIdentity) ColonMAC() string {
	var sb strings.Builder
	for i, b := range d.Addr[:d.AddrLen] {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteByte(hexLower[b>>4])
		sb.WriteByte(hexLower[b&0x0F])
	}
	return sb.String()
}
