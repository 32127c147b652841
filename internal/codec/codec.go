// Package codec is the compact binary encoding used for every value the
// node persists. Values are flat protobuf wire-format messages built and
// parsed field by field with protowire, so no generated code is needed and
// the format is readable by any protobuf tooling.
package codec

import (
	"errors"
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	ErrTruncated = errors.New("codec: truncated input")
	ErrMalformed = errors.New("codec: malformed input")
)

// Encoder appends fields to a buffer. The zero value is ready to use.
// Fields are always written, including zero values.
type Encoder struct {
	buf []byte
}

func (e *Encoder) Uint64(num protowire.Number, v uint64) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}

func (e *Encoder) Uint32(num protowire.Number, v uint32) {
	e.Uint64(num, uint64(v))
}

func (e *Encoder) Int64(num protowire.Number, v int64) {
	e.Uint64(num, protowire.EncodeZigZag(v))
}

func (e *Encoder) Bytes(num protowire.Number, b []byte) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, b)
}

// Result returns the encoded message.
func (e *Encoder) Result() []byte {
	return e.buf
}

// Field is one decoded field value.
type Field struct {
	Num  protowire.Number
	typ  protowire.Type
	v    uint64
	data []byte
}

func (f Field) Uint64() (uint64, error) {
	if f.typ != protowire.VarintType {
		return 0, fmt.Errorf("%w: field %d: want varint, got wire type %d", ErrMalformed, f.Num, f.typ)
	}
	return f.v, nil
}

func (f Field) Uint32() (uint32, error) {
	v, err := f.Uint64()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: field %d: %d overflows uint32", ErrMalformed, f.Num, v)
	}
	return uint32(v), nil
}

func (f Field) Int64() (int64, error) {
	v, err := f.Uint64()
	if err != nil {
		return 0, err
	}
	return protowire.DecodeZigZag(v), nil
}

// Bytes returns a copy of a length-delimited field.
func (f Field) Bytes() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, fmt.Errorf("%w: field %d: want bytes, got wire type %d", ErrMalformed, f.Num, f.typ)
	}
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out, nil
}

// Fixed32 copies a length-delimited field that must be exactly 32 bytes
// long into dst.
func (f Field) Fixed32(dst *[32]byte) error {
	if f.typ != protowire.BytesType {
		return fmt.Errorf("%w: field %d: want bytes, got wire type %d", ErrMalformed, f.Num, f.typ)
	}
	if len(f.data) != len(dst) {
		return fmt.Errorf("%w: field %d: want 32 bytes, got %d", ErrMalformed, f.Num, len(f.data))
	}
	copy(dst[:], f.data)
	return nil
}

// Decode walks every field of msg in order and hands it to fn. Fields with
// wire types other than varint and bytes are skipped. Decode stops at the
// first error returned by fn.
func Decode(msg []byte, fn func(f Field) error) error {
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return parseError(n)
		}
		msg = msg[n:]

		f := Field{Num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.v, n = protowire.ConsumeVarint(msg)
		case protowire.BytesType:
			f.data, n = protowire.ConsumeBytes(msg)
		default:
			n = protowire.ConsumeFieldValue(num, typ, msg)
		}
		if n < 0 {
			return parseError(n)
		}
		msg = msg[n:]

		if typ != protowire.VarintType && typ != protowire.BytesType {
			continue
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func parseError(n int) error {
	err := protowire.ParseError(n)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

// Require reports a missing field. Decoders call it after Decode for the
// fields a value cannot do without.
func Require(seen bool, num protowire.Number) error {
	if !seen {
		return fmt.Errorf("%w: missing field %d", ErrMalformed, num)
	}
	return nil
}
