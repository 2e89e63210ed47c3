// Package utils holds log formatting helpers that avoid fmt on hot paths.
package utils

const hexDigits = "0123456789ABCDEF"

func appendHex(dst []byte, b []byte, sep byte) []byte {
	for i, x := range b {
		if sep != 0 && i > 0 {
			dst = append(dst, sep)
		}
		dst = append(dst, hexDigits[x>>4], hexDigits[x&0x0F])
	}
	return dst
}

// Hex4 formats a 16-bit UUID as four upper-case hex digits, e.g. "181A".
func Hex4(v uint16) string {
	return string(appendHex(make([]byte, 0, 4), []byte{byte(v >> 8), byte(v)}, 0))
}

// BytesToHex converts a byte slice to an upper-case hexadecimal string.
func BytesToHex(b []byte) string {
	return string(appendHex(make([]byte, 0, len(b)*2), b, 0))
}

// MAC formats an address as colon separated upper-case hex.
func MAC(b []byte) string {
	return string(appendHex(make([]byte, 0, len(b)*3), b, ':'))
}
