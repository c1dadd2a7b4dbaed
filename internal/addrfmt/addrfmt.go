// Package addrfmt canonicalizes the dotted-octet IP and decimal port
// strings the wire format and the CLI both use.
package addrfmt

import (
	"fmt"
	"strconv"
	"strings"
)

// IPLen is the canonical dotted-octet IP string length: four 3-digit
// octets joined by dots ("192.168.001.001").
const IPLen = 15

// PortLen is the canonical zero-padded decimal port string length.
const PortLen = 5

// NormalizeIP rewrites a dotted IP string into the canonical
// zero-padded 15-character form, e.g. "192.168.1.1" -> "192.168.001.001".
func NormalizeIP(ip string) (string, error) {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return "", fmt.Errorf("addrfmt: %q is not a dotted IPv4 address", ip)
	}
	octets := make([]string, 4)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return "", fmt.Errorf("addrfmt: %q is not a dotted IPv4 address: %w", ip, err)
		}
		octets[i] = fmt.Sprintf("%03d", n)
	}
	return strings.Join(octets, "."), nil
}

// NormalizePort rewrites a decimal port string into its canonical
// zero-padded 5-character form.
func NormalizePort(port string) (string, error) {
	n, err := strconv.Atoi(port)
	if err != nil {
		return "", fmt.Errorf("addrfmt: %q is not a decimal port", port)
	}
	return fmt.Sprintf("%05d", n), nil
}

// IsWellFormedIP accepts exactly IPLen characters forming four
// dot-separated integer-parseable parts. It does not bounds-check
// octets against 0-255; ValidOctets layers that on where a caller
// wants it.
func IsWellFormedIP(ip string) bool {
	if len(ip) != IPLen {
		return false
	}
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if _, err := strconv.Atoi(part); err != nil {
			return false
		}
	}
	return true
}

// IsWellFormedPort accepts exactly PortLen integer-parseable characters.
func IsWellFormedPort(port string) bool {
	if len(port) != PortLen {
		return false
	}
	_, err := strconv.Atoi(port)
	return err == nil
}

// ValidOctets additionally checks 0 <= octet <= 255.
func ValidOctets(ip string) bool {
	if !IsWellFormedIP(ip) {
		return false
	}
	for _, part := range strings.Split(ip, ".") {
		n, _ := strconv.Atoi(part)
		if n < 0 || n > 255 {
			return false
		}
	}
	return true
}
