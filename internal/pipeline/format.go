package pipeline

import (
	"math"
	"strings"

	"cloudpico-bridge/internal/record"
)

func formatNone(*Writer, *record.Record, *Cache) error { return nil }

func formatGenerator(*Writer, *record.Record, *Cache) error { return ErrNotRenderable }

func formatTopic(w *Writer, r *record.Record, c *Cache) error {
	id, ok := c.Device()
	if !ok {
		return ErrNoDevice
	}
	kind := r.TypeInfo & record.TopicKindMask
	subject := r.TypeInfo & record.TopicSubjectMask
	return writeTopic(w, kind, subject, c.reg.Host().Name, id, c.Entity())
}

var deviceLabels = [...]string{
	record.DeviceSourceNone:         "",
	record.DeviceSourceName:         "name",
	record.DeviceSourceModel:        "model",
	record.DeviceSourceManufacturer: "manufacturer",
	record.DeviceSourceSWVersion:    "sw_version",
}

// formatDevice renders members of the Home-Assistant device object. The
// surrounding braces are managed by the composer.
func formatDevice(w *Writer, r *record.Record, c *Cache) error {
	id, ok := c.Device()
	if !ok {
		return ErrNoDevice
	}

	first := true
	sep := func() {
		if !first {
			_ = w.WriteByte(',')
		}
		first = false
	}

	if r.TypeInfo&record.DeviceIdentifiers != 0 {
		sep()
		_, _ = w.WriteString(`"identifiers":[`)
		n := 0
		for _, s := range [...]string{id.StrMAC, id.StrID} {
			if s == "" || (n > 0 && s == id.StrMAC) {
				continue
			}
			if n > 0 {
				_ = w.WriteByte(',')
			}
			_ = w.WriteByte('"')
			w.writeEscaped(s)
			_ = w.WriteByte('"')
			n++
		}
		_ = w.WriteByte(']')
	}

	if r.TypeInfo&record.DeviceConnections != 0 && id.AddrLen > 0 {
		sep()
		_, _ = w.WriteString(`"connections":[["mac","`)
		_, _ = w.WriteString(id.ColonMAC())
		_, _ = w.WriteString(`"]]`)
	}

	if r.TypeInfo&record.DeviceIdentifiers != 0 && !c.IsHost() {
		if via := c.reg.HostIdentity().StrID; via != "" && via != id.StrID {
			sep()
			w.writeStringPair("via_device", via)
		}
	}

	src0, src1 := record.DeviceSources(r.TypeInfo)
	for i, src := range [...]uint8{src0, src1} {
		if src == record.DeviceSourceNone || int(src) >= len(deviceLabels) {
			continue
		}
		value := c.reg.String(r.Ref(i))
		if value == "" {
			continue
		}
		sep()
		_ = w.WriteByte('"')
		_, _ = w.WriteString(deviceLabels[src])
		_, _ = w.WriteString(`":"`)
		w.writeEscaped(value)
		if strings.ContainsRune(" _-", rune(value[len(value)-1])) {
			w.writeEscaped(id.StrID)
		}
		_ = w.WriteByte('"')
	}
	return nil
}

func formatString(w *Writer, r *record.Record, c *Cache) error {
	s0 := r.TypeInfo & record.StringSource0Mask
	s1 := r.TypeInfo & record.StringSource1Mask

	var second string
	switch s1 {
	case record.String1Ref:
		second = c.reg.String(r.Ref(1))
	case record.String1EntityField:
		second = c.Entity().String()
	case record.String1LocalField:
		second = record.Field(r.Extra).String()
	}

	var value string
	switch s0 {
	case record.StringRef:
		value = c.reg.String(r.Ref(0))
	case record.StringFmtRef:
		value = strings.Replace(c.reg.String(r.Ref(0)), "%s", second, 1)
		second = ""
	case record.StringDeviceID, record.StringMACID:
		id, ok := c.Device()
		if !ok {
			return ErrNoDevice
		}
		value = id.StrID
		if s0 == record.StringMACID {
			value = id.StrMAC
		}
	case record.StringEntityField:
		value = c.Entity().String()
	case record.StringLocalField:
		value = record.Field(r.Extra).String()
	default:
		return ErrInvalidValue
	}
	if second != "" {
		value += "_" + second
	}

	switch r.TypeInfo & record.CaseMask {
	case record.CaseLower:
		value = strings.ToLower(value)
	case record.CaseUpper:
		value = strings.ToUpper(value)
	case record.CaseSmart:
		value = smartCase(value)
	}
	w.writeEscaped(value)
	return nil
}

// smartCase turns a field key into a display name: "uptime_s" -> "Uptime s".
func smartCase(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "_", " ")
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatRaw(w *Writer, r *record.Record, _ *Cache) error {
	// an empty chunk renders as an empty value
	size := min(int(r.TypeInfo&record.RawSizeMask), record.RawCapacity)
	digits := hexUpper
	if r.TypeInfo&record.RawFormatMask == record.RawHexLower {
		digits = hexLower
	}

	raw := r.Raw()
	for i, b := range raw[:size] {
		if i > 0 {
			switch r.TypeInfo & record.RawSepMask {
			case record.RawSepColon:
				_ = w.WriteByte(':')
			case record.RawSepDot:
				_ = w.WriteByte('.')
			}
		}
		if r.TypeInfo&record.RawFormatMask == record.RawNumber {
			w.writeUint(uint64(b))
			continue
		}
		w.writeHexByte(b, digits)
	}
	return nil
}

func formatInt32(w *Writer, r *record.Record, _ *Cache) error {
	if r.TypeInfo&record.NumberSigned != 0 {
		w.writeInt(int64(r.I32(0)))
	} else {
		w.writeUint(uint64(r.U32(0)))
	}
	return nil
}

func formatHex32(w *Writer, r *record.Record, _ *Cache) error {
	v := r.U32(0)
	width := int(r.TypeInfo & record.HexSizeMask)
	digits := hexLower
	if r.TypeInfo&record.HexUpper != 0 {
		digits = hexUpper
	}

	n := 1
	for x := v >> 4; x != 0; x >>= 4 {
		n++
	}
	n = max(n, min(width, 8))

	if r.TypeInfo&record.HexPrefix != 0 {
		_, _ = w.WriteString("0x")
	}
	for i := n - 1; i >= 0; i-- {
		_ = w.WriteByte(digits[(v>>(4*uint(i)))&0x0F])
	}
	return nil
}

func formatInt64(w *Writer, r *record.Record, _ *Cache) error {
	if r.TypeInfo&record.NumberSigned != 0 {
		w.writeInt(r.I64())
	} else {
		w.writeUint(r.U64())
	}
	return nil
}

func formatFloat(w *Writer, r *record.Record, _ *Cache) error {
	v := float64(r.Float(0))
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrInvalidValue
	}
	w.writeFloat(v, int(r.TypeInfo&record.PrecisionMask), 32)
	return nil
}

func formatDouble(w *Writer, r *record.Record, _ *Cache) error {
	v := r.Double()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrInvalidValue
	}
	w.writeFloat(v, int(r.TypeInfo&record.PrecisionMask), 64)
	return nil
}
