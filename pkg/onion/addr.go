package onion

import (
	"fmt"
	"net"
)

// encodeIPv4 parses a dotted-quad string into its 4-byte form. It rejects
// anything that isn't a literal IPv4 address (hostnames, IPv6, etc.) —
// such entries are reported as BadDirectoryEntry.
func encodeIPv4(addr string) ([4]byte, error) {
	var out [4]byte
	ip := net.ParseIP(addr)
	if ip == nil {
		return out, fmt.Errorf("%w: %q is not an IP literal", ErrBadDirectoryEntry, addr)
	}
	v4 := ip.To4()
	if v4 == nil {
		return out, fmt.Errorf("%w: %q is not an IPv4 literal", ErrBadDirectoryEntry, addr)
	}
	copy(out[:], v4)
	return out, nil
}

// decodeIPv4 renders a 4-byte address back to dotted-quad text.
func decodeIPv4(b []byte) string {
	return net.IPv4(b[0], b[1], b[2], b[3]).String()
}

// IsIPv4Literal reports whether addr parses as a dotted-quad IPv4 address.
func IsIPv4Literal(addr string) bool {
	_, err := encodeIPv4(addr)
	return err == nil
}
