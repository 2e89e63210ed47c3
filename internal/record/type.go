package record

// Type is the 6-bit tag selecting how a record is rendered.
type Type uint8

const (
	TypeNone Type = iota
	TypeGenerator
	TypeTopic
	TypeDevice
	TypeString
	TypeRaw
	TypeInt32
	TypeHex32
	TypeInt64
	TypeFloat
	TypeDouble

	TypeCount
)

var typeNames = [TypeCount]string{
	TypeNone:      "none",
	TypeGenerator: "generator",
	TypeTopic:     "topic",
	TypeDevice:    "device",
	TypeString:    "string",
	TypeRaw:       "raw",
	TypeInt32:     "int32",
	TypeHex32:     "hex32",
	TypeInt64:     "int64",
	TypeFloat:     "float",
	TypeDouble:    "double",
}

func (t Type) String() string {
	if t < TypeCount {
		return typeNames[t]
	}
	return "invalid"
}

// DoubleField marks a record that carries a second value for the field id
// stored in extra. Valid only for types that support it.
const DoubleField uint8 = 0x80

// CacheCmd is stored in the extra byte of cache-capable records.
type CacheCmd uint8

const (
	CacheNone CacheCmd = iota
	CacheBlock1
	CacheBlock2
	CacheDeviceMAC48
	CacheDeviceMAC64
	CacheDeviceHost
	CacheDeviceMainHost

	CacheMask = 0x07
)

// Topic type-info: subject in bits 0-2, kind in bits 3-5.
const (
	TopicSubjectMask uint8 = 0x07
	TopicKindMask    uint8 = 0x38

	TopicState    uint8 = 0 << 3
	TopicConfig   uint8 = 1 << 3
	TopicCommand  uint8 = 2 << 3
	TopicRetained uint8 = 3 << 3
)

// Topic subjects. For TopicConfig the subject selects the discovery component.
const (
	SubjectSYS uint8 = iota
	SubjectBT
	SubjectENV

	SubjectCount
)

// Discovery components.
const (
	ComponentSensor uint8 = iota
	ComponentBinarySensor
	ComponentSwitch
	ComponentButton

	ComponentCount
)

// Device type-info: source for ref 0 in bits 0-2, source for ref 1 in bits 3-5.
const (
	DeviceSourceNone uint8 = iota
	DeviceSourceName
	DeviceSourceModel
	DeviceSourceManufacturer
	DeviceSourceSWVersion

	DeviceSource0Mask uint8 = 0x07
	DeviceSource1Mask uint8 = 0x38

	DeviceIdentifiers uint8 = 0x40
	DeviceConnections uint8 = 0x80
)

const deviceSource1Shift = 3

// DeviceInfo packs a device type-info byte.
func DeviceInfo(src0, src1, flags uint8) uint8 {
	return src0&DeviceSource0Mask | (src1<<deviceSource1Shift)&DeviceSource1Mask | flags
}

// DeviceSources unpacks the two value sources of a device type-info byte.
func DeviceSources(info uint8) (src0, src1 uint8) {
	return info & DeviceSource0Mask, (info & DeviceSource1Mask) >> deviceSource1Shift
}

// String type-info: source 0 in bits 0-2, source 1 in bits 3-4, case in bits 5-6.
const (
	StringRef uint8 = iota
	StringFmtRef
	StringDeviceID
	StringMACID
	StringEntityField
	StringLocalField

	StringSource0Mask uint8 = 0x07
)

const (
	String1Ref         uint8 = 0 << 3
	String1EntityField uint8 = 1 << 3
	String1LocalField  uint8 = 2 << 3

	StringSource1Mask uint8 = 0x18

	CaseNothing uint8 = 0 << 5
	CaseLower   uint8 = 1 << 5
	CaseUpper   uint8 = 2 << 5
	CaseSmart   uint8 = 3 << 5

	CaseMask uint8 = 0x60
)

// Raw type-info: byte count in bits 0-3, format in bits 4-5, separator in bits 6-7.
const (
	RawSizeMask uint8 = 0x0F

	RawNumber     uint8 = 0 << 4
	RawHexUpper   uint8 = 1 << 4
	RawHexLower   uint8 = 2 << 4
	RawFormatMask uint8 = 0x30

	RawSepNone  uint8 = 0 << 6
	RawSepColon uint8 = 1 << 6
	RawSepDot   uint8 = 2 << 6
	RawSepMask  uint8 = 0xC0
)

// Hex32 type-info: digit count in bits 0-3, upper case in bit 4, 0x prefix in bit 5.
const (
	HexSizeMask uint8 = 0x0F
	HexUpper    uint8 = 0x10
	HexPrefix   uint8 = 0x20
)

// Numeric type-info.
const (
	NumberSigned  uint8 = 0x01
	PrecisionMask uint8 = 0x07
)
