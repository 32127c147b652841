package types

import (
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"lightnode/internal/codec"
)

// Header is a block header as kept by the light node.
type Header struct {
	ParentHash     Hash   `json:"parent_hash"`
	Number         uint32 `json:"number"`
	StateRoot      Hash   `json:"state_root"`
	ExtrinsicsRoot Hash   `json:"extrinsics_root"`
	// Extension carries the data-availability commitments, opaque here.
	Extension []byte `json:"extension,omitempty"`
}

const (
	headerParentHash = iota + 1
	headerNumber
	headerStateRoot
	headerExtrinsicsRoot
	headerExtension
)

func (h Header) MarshalBinary() ([]byte, error) {
	var e codec.Encoder
	e.Bytes(headerParentHash, h.ParentHash[:])
	e.Uint32(headerNumber, h.Number)
	e.Bytes(headerStateRoot, h.StateRoot[:])
	e.Bytes(headerExtrinsicsRoot, h.ExtrinsicsRoot[:])
	if len(h.Extension) > 0 {
		e.Bytes(headerExtension, h.Extension)
	}
	return e.Result(), nil
}

func (h *Header) UnmarshalBinary(data []byte) error {
	var out Header
	var seenNumber bool
	err := codec.Decode(data, func(f codec.Field) error {
		var err error
		switch f.Num {
		case headerParentHash:
			err = f.Fixed32((*[32]byte)(&out.ParentHash))
		case headerNumber:
			out.Number, err = f.Uint32()
			seenNumber = true
		case headerStateRoot:
			err = f.Fixed32((*[32]byte)(&out.StateRoot))
		case headerExtrinsicsRoot:
			err = f.Fixed32((*[32]byte)(&out.ExtrinsicsRoot))
		case headerExtension:
			out.Extension, err = f.Bytes()
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("decoding header: %w", err)
	}
	if err := codec.Require(seenNumber, headerNumber); err != nil {
		return fmt.Errorf("decoding header: %w", err)
	}
	*h = out
	return nil
}

// Hash returns the blake2b-256 digest of the header's binary form.
func (h Header) Hash() Hash {
	data, _ := h.MarshalBinary()
	return blake2b.Sum256(data)
}

type headerJSON Header

func (h Header) MarshalJSON() ([]byte, error) {
	return json.Marshal(headerJSON(h))
}

func (h *Header) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, (*headerJSON)(h))
}
