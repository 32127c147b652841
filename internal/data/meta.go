package data

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"lightnode/internal/store"
)

// Reserved keys in the default namespace. No Key routes there, so they
// cannot collide with stored values.
var (
	versionKey = []byte{0x00, 'V', 'E', 'R', 'S', 'I', 'O', 'N'}
	idKey      = []byte{0x00, 'I', 'D'}
)

// schemaVersion is bumped whenever a byte-key format or partition changes.
const schemaVersion = 1

var metaLocation = Location{Partition: store.DefaultPartition}

// loadMeta checks the schema version and loads the database ID, writing
// both on first open. A read-only handle on a database without metadata
// sees version 0 and a nil ID.
func (db *DB) loadMeta(readOnly bool) error {
	raw, err := db.st.Get(store.DefaultPartition, versionKey)
	if err != nil {
		return storageError("open", metaLocation, err)
	}
	switch {
	case raw == nil:
		if !readOnly {
			v := binary.BigEndian.AppendUint32(nil, schemaVersion)
			if err := db.st.Put(store.DefaultPartition, versionKey, v); err != nil {
				return storageError("open", metaLocation, err)
			}
		}
	case len(raw) != 4:
		return &DecodeError{Key: versionKey, Type: "schema version", Err: fmt.Errorf("want 4 bytes, got %d", len(raw))}
	default:
		if v := binary.BigEndian.Uint32(raw); v > schemaVersion {
			logger.Error("database schema too new", "version", v, "supported", schemaVersion)
			return fmt.Errorf("%w: version %d > %d", ErrSchemaTooNew, v, schemaVersion)
		}
	}

	raw, err = db.st.Get(store.DefaultPartition, idKey)
	if err != nil {
		return storageError("open", metaLocation, err)
	}
	if raw == nil {
		if readOnly {
			return nil
		}
		id := uuid.New()
		if err := db.st.Put(store.DefaultPartition, idKey, id[:]); err != nil {
			return storageError("open", metaLocation, err)
		}
		db.id = id
		return nil
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return &DecodeError{Key: idKey, Type: "database id", Err: err}
	}
	db.id = id
	return nil
}
