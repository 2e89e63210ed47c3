package ble

// Result is the outcome of resolving one packet.
type Result uint8

const (
	// Resolved means the packet was decoded into the buffer.
	Resolved Result = iota
	// Unknown means no decoder recognized the payload.
	Unknown
	// SmallBuffer means a decoder recognized the payload but the buffer had
	// no room for its discovery request and state message. Nothing was
	// written.
	SmallBuffer
	// Disabled means the packet was filtered out before decoding.
	Disabled
)

func (r Result) String() string {
	switch r {
	case Resolved:
		return "resolved"
	case Unknown:
		return "unknown"
	case SmallBuffer:
		return "small_buffer"
	case Disabled:
		return "disabled"
	}
	return "invalid"
}
