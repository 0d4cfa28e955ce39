package model

import (
	"fmt"
	"strconv"
	"strings"
)

// MacAddress is a 48-bit link-layer address identifying a station.
type MacAddress [6]byte

// BroadcastAddress is the reserved all-stations destination.
var BroadcastAddress = MacAddress{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseMacAddress parses the colon-separated hex form, e.g. "00:00:00:00:00:01".
func ParseMacAddress(s string) (MacAddress, error) {
	var a MacAddress
	parts := strings.Split(s, ":")
	if len(parts) != len(a) {
		return MacAddress{}, fmt.Errorf("invalid MAC address %q: want 6 octets, got %d", s, len(parts))
	}
	for i, p := range parts {
		if len(p) == 0 || len(p) > 2 {
			return MacAddress{}, fmt.Errorf("invalid MAC address %q: bad octet %q", s, p)
		}
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return MacAddress{}, fmt.Errorf("invalid MAC address %q: %w", s, err)
		}
		a[i] = byte(v)
	}
	return a, nil
}

// MacAddressFromIndex returns the n-th address of a sequential allocation
// starting at 00:00:00:00:00:01.
func MacAddressFromIndex(n uint64) MacAddress {
	var a MacAddress
	v := n + 1
	for i := len(a) - 1; i >= 0; i-- {
		a[i] = byte(v)
		v >>= 8
	}
	return a
}

// IsBroadcast reports whether a is the broadcast address.
func (a MacAddress) IsBroadcast() bool {
	return a == BroadcastAddress
}

func (a MacAddress) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// MarshalText implements encoding.TextMarshaler so addresses read naturally
// in YAML/JSON output and structured logs.
func (a MacAddress) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *MacAddress) UnmarshalText(text []byte) error {
	parsed, err := ParseMacAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
