// Package types holds the values the light node persists: block headers,
// application data rows, verified cell counts and the finality sync
// checkpoint. Every type has a compact binary form (MarshalBinary, stored on
// disk) and a structured JSON form (MarshalJSON, used for inspection).
package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hash is a 32-byte block or state hash.
type Hash [32]byte

// PublicKey is a 32-byte validator session key.
type PublicKey [32]byte

func (h Hash) String() string { return encodeHex32(h) }

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(encodeHex32(h)), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	return decodeHex32((*[32]byte)(h), text)
}

func (k PublicKey) String() string { return encodeHex32(k) }

func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(encodeHex32(k)), nil
}

func (k *PublicKey) UnmarshalText(text []byte) error {
	return decodeHex32((*[32]byte)(k), text)
}

func encodeHex32(b [32]byte) string {
	return "0x" + hex.EncodeToString(b[:])
}

func decodeHex32(dst *[32]byte, text []byte) error {
	s := strings.TrimPrefix(string(text), "0x")
	if hex.DecodedLen(len(s)) != len(dst) {
		return fmt.Errorf("want %d hex bytes, got %q", len(dst), text)
	}
	if _, err := hex.Decode(dst[:], []byte(s)); err != nil {
		return fmt.Errorf("decoding hex: %w", err)
	}
	return nil
}
