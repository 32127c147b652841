package types

import (
	"encoding/json"
	"fmt"

	"lightnode/internal/codec"
)

// AppData is the list of extrinsics an application submitted in one block,
// one row per extrinsic.
type AppData [][]byte

const (
	appDataCount = iota + 1
	appDataRow
)

func (d AppData) MarshalBinary() ([]byte, error) {
	var e codec.Encoder
	e.Uint32(appDataCount, uint32(len(d)))
	for _, row := range d {
		e.Bytes(appDataRow, row)
	}
	return e.Result(), nil
}

func (d *AppData) UnmarshalBinary(data []byte) error {
	var (
		rows      AppData
		count     uint32
		seenCount bool
	)
	err := codec.Decode(data, func(f codec.Field) error {
		var err error
		switch f.Num {
		case appDataCount:
			count, err = f.Uint32()
			seenCount = true
		case appDataRow:
			var row []byte
			row, err = f.Bytes()
			rows = append(rows, row)
		}
		return err
	})
	if err == nil {
		err = codec.Require(seenCount, appDataCount)
	}
	if err == nil && int(count) != len(rows) {
		err = fmt.Errorf("%w: %d rows, header says %d", codec.ErrMalformed, len(rows), count)
	}
	if err != nil {
		return fmt.Errorf("decoding app data: %w", err)
	}
	*d = rows
	return nil
}

func (d AppData) MarshalJSON() ([]byte, error) {
	return json.Marshal([][]byte(d))
}

func (d *AppData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, (*[][]byte)(d))
}

// CellCount is the number of cells verified for a block; the block's
// confidence is derived from it.
type CellCount uint32

const cellCountValue = 1

func (c CellCount) MarshalBinary() ([]byte, error) {
	var e codec.Encoder
	e.Uint32(cellCountValue, uint32(c))
	return e.Result(), nil
}

func (c *CellCount) UnmarshalBinary(data []byte) error {
	var (
		v    uint32
		seen bool
	)
	err := codec.Decode(data, func(f codec.Field) error {
		if f.Num != cellCountValue {
			return nil
		}
		var err error
		v, err = f.Uint32()
		seen = true
		return err
	})
	if err == nil {
		err = codec.Require(seen, cellCountValue)
	}
	if err != nil {
		return fmt.Errorf("decoding cell count: %w", err)
	}
	*c = CellCount(v)
	return nil
}

func (c CellCount) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint32(c))
}

func (c *CellCount) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, (*uint32)(c))
}

// FinalityCheckpoint is the last block for which finality sync verified
// the validator set, so a restarted node can resume from there.
type FinalityCheckpoint struct {
	Number       uint32      `json:"number"`
	SetID        uint64      `json:"set_id"`
	ValidatorSet []PublicKey `json:"validator_set"`
}

const (
	checkpointNumber = iota + 1
	checkpointSetID
	checkpointValidator
)

func (c FinalityCheckpoint) MarshalBinary() ([]byte, error) {
	var e codec.Encoder
	e.Uint32(checkpointNumber, c.Number)
	e.Uint64(checkpointSetID, c.SetID)
	for _, k := range c.ValidatorSet {
		e.Bytes(checkpointValidator, k[:])
	}
	return e.Result(), nil
}

func (c *FinalityCheckpoint) UnmarshalBinary(data []byte) error {
	var (
		out        FinalityCheckpoint
		seenNumber bool
	)
	err := codec.Decode(data, func(f codec.Field) error {
		var err error
		switch f.Num {
		case checkpointNumber:
			out.Number, err = f.Uint32()
			seenNumber = true
		case checkpointSetID:
			out.SetID, err = f.Uint64()
		case checkpointValidator:
			var k PublicKey
			err = f.Fixed32((*[32]byte)(&k))
			out.ValidatorSet = append(out.ValidatorSet, k)
		}
		return err
	})
	if err == nil {
		err = codec.Require(seenNumber, checkpointNumber)
	}
	if err != nil {
		return fmt.Errorf("decoding finality checkpoint: %w", err)
	}
	*c = out
	return nil
}

type checkpointJSON FinalityCheckpoint

func (c FinalityCheckpoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(checkpointJSON(c))
}

func (c *FinalityCheckpoint) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, (*checkpointJSON)(c))
}
