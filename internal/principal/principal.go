package principal

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Principal is a 20-byte address-like identity. Users, backends, the owner,
// and the fee recipient are all Principals; there is no separate account object.
type Principal [20]byte

// Zero is the null identity. It is never a valid owner or fee recipient.
var Zero Principal

// Parse decodes a hex string (with or without 0x prefix) into a Principal.
func Parse(s string) (Principal, error) {
	var p Principal
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(trimmed) != 40 {
		return p, fmt.Errorf("principal %q: want 40 hex chars, got %d", s, len(trimmed))
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return p, fmt.Errorf("principal %q: %w", s, err)
	}
	copy(p[:], raw)
	return p, nil
}

// MustParse is Parse that panics on malformed input. For tests and constants.
func MustParse(s string) Principal {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// IsZero reports whether p is the null identity.
func (p Principal) IsZero() bool {
	return p == Zero
}

func (p Principal) String() string {
	return "0x" + hex.EncodeToString(p[:])
}

// MarshalText implements encoding.TextMarshaler for JSON map keys and payloads.
func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Principal) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
