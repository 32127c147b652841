package data

import (
	"errors"
	"fmt"
)

var (
	ErrNilKey       = errors.New("data: nil key")
	ErrSchemaTooNew = errors.New("data: database schema is newer than this binary")
)

// StorageError is a failure of the engine: I/O, a closed handle, or a
// partition that should exist but does not.
type StorageError struct {
	Op        string // "put", "get", "delete", "scan", "open"
	Partition string
	Err       error
}

func (e *StorageError) Error() string {
	if e.Partition == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Partition, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// DecodeError means the bytes stored under a key do not decode as the
// requested type: the data is corrupt, or the caller asked for the wrong
// type for that key.
type DecodeError struct {
	Partition string
	Key       []byte
	Type      string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s at %s/%x: %v", e.Type, e.Partition, e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError is returned when a value cannot be encoded.
type EncodeError struct {
	Type string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encoding %s: %v", e.Type, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err is or wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
