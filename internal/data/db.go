// Package data is the node's typed persistence layer. Values are addressed
// by a closed set of Key types; each key maps to a fixed partition and byte
// key of the embedded engine (see Locate), and values are stored in their
// compact binary form.
package data

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lightnode/internal/logging"
	"lightnode/internal/store"
	boltstore "lightnode/internal/store/bolt"
)

var logger = logging.For("data")

// Value is what Put accepts: a value with a compact binary form, which is
// what gets stored, and a structured JSON form.
type Value interface {
	encoding.BinaryMarshaler
	json.Marshaler
}

// ValuePtr is the decoding side of Value, implemented on *T.
type ValuePtr[T any] interface {
	*T
	encoding.BinaryUnmarshaler
	json.Unmarshaler
}

// Options for Open.
type Options struct {
	ReadOnly bool
	NoSync   bool
	// Timeout bounds the wait for the database file lock.
	Timeout time.Duration
}

// DB is a handle to the node database. It is safe for concurrent use.
// Clone shares the underlying engine; the engine is closed when every
// clone has been closed.
type DB struct {
	st store.Store
	id uuid.UUID
}

// Open opens the database at path, creating the file and every partition
// if they do not exist yet.
func Open(path string, opts Options) (*DB, error) {
	st, err := boltstore.Open(path, boltstore.Options{
		Partitions:              Partitions,
		CreateIfMissing:         !opts.ReadOnly,
		CreateMissingPartitions: !opts.ReadOnly,
		Timeout:                 opts.Timeout,
		NoSync:                  opts.NoSync,
		ReadOnly:                opts.ReadOnly,
	})
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	db, err := New(st, opts.ReadOnly)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	logger.Info("opened database", "path", path, "id", db.id, "read_only", opts.ReadOnly)
	return db, nil
}

// New wraps an already opened engine handle. The DB takes ownership of st.
func New(st store.Store, readOnly bool) (*DB, error) {
	db := &DB{st: st}
	if err := db.loadMeta(readOnly); err != nil {
		return nil, err
	}
	return db, nil
}

// ID identifies the database instance. It is generated when the database
// is created.
func (db *DB) ID() uuid.UUID {
	return db.id
}

// Clone returns a new handle sharing the same engine.
func (db *DB) Clone() *DB {
	return &DB{st: db.st.Clone(), id: db.id}
}

// Close releases this handle.
func (db *DB) Close() error {
	return db.st.Close()
}

// Put stores value under key, replacing any previous value.
func Put[V Value](db *DB, key Key, value V) error {
	if key == nil {
		return ErrNilKey
	}
	loc := Locate(key)
	data, err := value.MarshalBinary()
	if err != nil {
		return &EncodeError{Type: typeName(value), Err: err}
	}
	if err := db.st.Put(loc.Partition, loc.Key, data); err != nil {
		return storageError("put", loc, err)
	}
	return nil
}

// Get loads the value stored under key. It returns false when the key is
// absent, and a *DecodeError when the stored bytes are not a T.
//
//	h, ok, err := data.Get[types.Header](db, data.BlockHeaderKey{Block: 42})
func Get[T any, PT ValuePtr[T]](db *DB, key Key) (T, bool, error) {
	var v T
	if key == nil {
		return v, false, ErrNilKey
	}
	loc := Locate(key)
	raw, err := db.st.Get(loc.Partition, loc.Key)
	if err != nil {
		return v, false, storageError("get", loc, err)
	}
	if raw == nil {
		return v, false, nil
	}
	if err := PT(&v).UnmarshalBinary(raw); err != nil {
		var zero T
		return zero, false, &DecodeError{
			Partition: loc.Partition,
			Key:       loc.Key,
			Type:      typeName(v),
			Err:       err,
		}
	}
	return v, true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (db *DB) Delete(key Key) error {
	if key == nil {
		return ErrNilKey
	}
	loc := Locate(key)
	if err := db.st.Delete(loc.Partition, loc.Key); err != nil {
		return storageError("delete", loc, err)
	}
	return nil
}

func storageError(op string, loc Location, err error) error {
	if errors.Is(err, store.ErrPartitionNotFound) {
		// Partitions are created at open; this means the file was
		// altered underneath us.
		logger.Error("partition missing", "op", op, "partition", loc.Partition)
	}
	return &StorageError{Op: op, Partition: loc.Partition, Err: err}
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
