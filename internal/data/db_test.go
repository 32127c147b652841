package data

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightnode/internal/logging"
	"lightnode/internal/store"
	boltstore "lightnode/internal/store/bolt"
	"lightnode/internal/types"
)

func tempDB(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.db")
	db, err := Open(path, Options{NoSync: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

func testHeader(number uint32) types.Header {
	var h types.Header
	for i := range h.ParentHash {
		h.ParentHash[i] = byte(i)
		h.StateRoot[i] = byte(i + 1)
		h.ExtrinsicsRoot[i] = byte(i + 2)
	}
	h.Number = number
	return h
}

func TestPutGetRoundTrip(t *testing.T) {
	db, _ := tempDB(t)

	header := testHeader(42)
	require.NoError(t, Put(db, BlockHeaderKey{Block: 42}, header))
	gotHeader, ok, err := Get[types.Header](db, BlockHeaderKey{Block: 42})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, header, gotHeader)

	rows := types.AppData{[]byte("row one"), []byte("row two")}
	require.NoError(t, Put(db, AppDataKey{AppID: 1, Block: 42}, rows))
	gotRows, ok, err := Get[types.AppData](db, AppDataKey{AppID: 1, Block: 42})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rows, gotRows)

	require.NoError(t, Put(db, VerifiedCellCountKey{Block: 42}, types.CellCount(8)))
	gotCount, ok, err := Get[types.CellCount](db, VerifiedCellCountKey{Block: 42})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.CellCount(8), gotCount)

	cp := types.FinalityCheckpoint{Number: 40, SetID: 3, ValidatorSet: []types.PublicKey{{1}, {2}}}
	require.NoError(t, Put(db, FinalitySyncCheckpointKey{}, cp))
	gotCP, ok, err := Get[types.FinalityCheckpoint](db, FinalitySyncCheckpointKey{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cp, gotCP)
}

func TestZeroValuesAreStored(t *testing.T) {
	db, _ := tempDB(t)

	require.NoError(t, Put(db, VerifiedCellCountKey{Block: 1}, types.CellCount(0)))
	_, ok, err := Get[types.CellCount](db, VerifiedCellCountKey{Block: 1})
	require.NoError(t, err)
	assert.True(t, ok, "zero count must not read as absent")

	require.NoError(t, Put(db, AppDataKey{AppID: 1, Block: 1}, types.AppData{}))
	_, ok, err = Get[types.AppData](db, AppDataKey{AppID: 1, Block: 1})
	require.NoError(t, err)
	assert.True(t, ok, "empty app data must not read as absent")
}

func TestGetAbsent(t *testing.T) {
	db, _ := tempDB(t)

	h, ok, err := Get[types.Header](db, BlockHeaderKey{Block: 1})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, types.Header{}, h)
}

func TestHeaderHitAndMiss(t *testing.T) {
	db, _ := tempDB(t)
	require.NoError(t, Put(db, BlockHeaderKey{Block: 42}, testHeader(42)))

	_, ok, err := Get[types.Header](db, BlockHeaderKey{Block: 42})
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = Get[types.Header](db, BlockHeaderKey{Block: 43})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSameNumberDifferentVariants(t *testing.T) {
	db, _ := tempDB(t)
	require.NoError(t, Put(db, BlockHeaderKey{Block: 5}, testHeader(5)))

	_, ok, err := Get[types.CellCount](db, VerifiedCellCountKey{Block: 5})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, Put(db, VerifiedCellCountKey{Block: 5}, types.CellCount(1)))
	h, ok, err := Get[types.Header](db, BlockHeaderKey{Block: 5})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(5), h.Number)
}

func TestPutOverwrites(t *testing.T) {
	db, _ := tempDB(t)
	key := VerifiedCellCountKey{Block: 9}
	require.NoError(t, Put(db, key, types.CellCount(1)))
	require.NoError(t, Put(db, key, types.CellCount(2)))

	got, _, err := Get[types.CellCount](db, key)
	require.NoError(t, err)
	assert.Equal(t, types.CellCount(2), got)
}

func TestDeleteIdempotent(t *testing.T) {
	db, _ := tempDB(t)
	key := BlockHeaderKey{Block: 7}
	require.NoError(t, Put(db, key, testHeader(7)))

	require.NoError(t, db.Delete(key))
	_, ok, err := Get[types.Header](db, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Delete(key))
	require.NoError(t, db.Delete(BlockHeaderKey{Block: 8}))
}

func TestBlockNumbersScanInOrder(t *testing.T) {
	db, _ := tempDB(t)
	blocks := []uint32{65536, 2, 256, 10, 1, 4294967295, 255}
	for _, b := range blocks {
		require.NoError(t, Put(db, BlockHeaderKey{Block: b}, testHeader(b)))
		require.NoError(t, Put(db, VerifiedCellCountKey{Block: b}, types.CellCount(b%100)))
	}

	for _, partition := range []string{BlockHeaderPartition, ConfidenceFactorPartition} {
		t.Run(partition, func(t *testing.T) {
			c, err := db.st.Scan(partition)
			require.NoError(t, err)
			defer c.Close()

			var got []uint32
			for c.Next() {
				require.Len(t, c.Key(), 4)
				got = append(got, binary.BigEndian.Uint32(c.Key()))
			}
			require.NoError(t, c.Err())
			assert.Equal(t, []uint32{1, 2, 10, 255, 256, 65536, 4294967295}, got)
		})
	}
}

func TestCheckpointSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.db")
	cp := types.FinalityCheckpoint{Number: 100, SetID: 2, ValidatorSet: []types.PublicKey{{9}}}

	db, err := Open(path, Options{})
	require.NoError(t, err)
	id := db.ID()
	require.NoError(t, Put(db, FinalitySyncCheckpointKey{}, cp))
	require.NoError(t, db.Close())

	db, err = Open(path, Options{})
	require.NoError(t, err)
	defer db.Close()

	got, ok, err := Get[types.FinalityCheckpoint](db, FinalitySyncCheckpointKey{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cp, got)
	assert.Equal(t, id, db.ID())
}

func TestWrongTypeIsDecodeError(t *testing.T) {
	db, _ := tempDB(t)
	require.NoError(t, Put(db, BlockHeaderKey{Block: 1}, testHeader(1)))

	// A header's bytes under a key read as a cell count.
	raw, err := db.st.Get(BlockHeaderPartition, Locate(BlockHeaderKey{Block: 1}).Key)
	require.NoError(t, err)
	require.NoError(t, db.st.Put(ConfidenceFactorPartition, Locate(VerifiedCellCountKey{Block: 1}).Key, raw))

	got, ok, err := Get[types.CellCount](db, VerifiedCellCountKey{Block: 1})
	require.Error(t, err)
	assert.False(t, ok)
	assert.Zero(t, got)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ConfidenceFactorPartition, de.Partition)
	assert.Equal(t, []byte{0, 0, 0, 1}, de.Key)
	assert.Equal(t, "types.CellCount", de.Type)
	assert.True(t, IsDecodeError(err))
	assert.False(t, IsStorageError(err))
}

func TestCorruptValueIsDecodeError(t *testing.T) {
	db, _ := tempDB(t)
	loc := Locate(BlockHeaderKey{Block: 3})
	require.NoError(t, db.st.Put(loc.Partition, loc.Key, []byte{0xff}))

	_, ok, err := Get[types.Header](db, BlockHeaderKey{Block: 3})
	assert.False(t, ok)
	assert.True(t, IsDecodeError(err))
}

func TestNilKey(t *testing.T) {
	db, _ := tempDB(t)
	assert.ErrorIs(t, Put[types.CellCount](db, nil, 1), ErrNilKey)
	_, _, err := Get[types.CellCount](db, nil)
	assert.ErrorIs(t, err, ErrNilKey)
	assert.ErrorIs(t, db.Delete(nil), ErrNilKey)
}

type brokenValue struct{}

var errEncode = errors.New("cannot encode")

func (brokenValue) MarshalBinary() ([]byte, error) { return nil, errEncode }
func (brokenValue) MarshalJSON() ([]byte, error)   { return []byte("null"), nil }

func TestEncodeError(t *testing.T) {
	db, _ := tempDB(t)
	err := Put(db, BlockHeaderKey{Block: 1}, brokenValue{})

	var ee *EncodeError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "data.brokenValue", ee.Type)
	assert.ErrorIs(t, err, errEncode)
}

// failingStore fails every operation with errDisk.
type failingStore struct{ store.Store }

var errDisk = errors.New("disk on fire")

func (failingStore) Get(string, []byte) ([]byte, error) { return nil, errDisk }
func (failingStore) Put(string, []byte, []byte) error   { return errDisk }
func (failingStore) Delete(string, []byte) error        { return errDisk }
func (failingStore) Scan(string) (store.Cursor, error)  { return nil, errDisk }
func (failingStore) Close() error                       { return nil }

func TestStorageErrors(t *testing.T) {
	db := &DB{st: failingStore{}}

	err := Put(db, AppDataKey{AppID: 1, Block: 2}, types.AppData{[]byte("x")})
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "put", se.Op)
	assert.Equal(t, AppDataPartition, se.Partition)
	assert.ErrorIs(t, err, errDisk)

	_, ok, err := Get[types.AppData](db, AppDataKey{AppID: 1, Block: 2})
	assert.False(t, ok)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "get", se.Op)

	err = db.Delete(FinalitySyncCheckpointKey{})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "delete", se.Op)
	assert.Equal(t, StatePartition, se.Partition)

	_, err = db.Records()
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "scan", se.Op)
	assert.Equal(t, KademliaStorePartition, se.Partition)
	assert.False(t, IsDecodeError(err))
}

func TestOpenFailsOnBrokenStore(t *testing.T) {
	_, err := New(failingStore{}, false)
	assert.True(t, IsStorageError(err))
	assert.ErrorIs(t, err, errDisk)
}

func TestPartitionMissing(t *testing.T) {
	capture := logging.CaptureForTest()
	defer capture.Restore()

	// An engine opened without the app data partition.
	st, err := boltstore.Open(filepath.Join(t.TempDir(), "partial.db"), boltstore.Options{
		Partitions:              []string{StatePartition},
		CreateIfMissing:         true,
		CreateMissingPartitions: true,
	})
	require.NoError(t, err)
	db, err := New(st, false)
	require.NoError(t, err)
	defer db.Close()

	err = Put(db, AppDataKey{AppID: 1, Block: 1}, types.AppData{})
	assert.True(t, IsStorageError(err))
	assert.ErrorIs(t, err, store.ErrPartitionNotFound)
	assert.True(t, capture.Has(slog.LevelError, "partition missing"))

	require.NoError(t, Put(db, FinalitySyncCheckpointKey{}, types.FinalityCheckpoint{Number: 1}))
}

func TestOpenReadOnlyMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.db"), Options{ReadOnly: true})
	assert.True(t, IsStorageError(err))
	assert.ErrorIs(t, err, store.ErrNotExist)
}

func TestSchemaVersionWritten(t *testing.T) {
	db, _ := tempDB(t)
	raw, err := db.st.Get(store.DefaultPartition, versionKey)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, schemaVersion}, raw)
	assert.NotEqual(t, uuid.Nil, db.ID())
}

func TestSchemaTooNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.db")
	db, err := Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, db.st.Put(store.DefaultPartition, versionKey, binary.BigEndian.AppendUint32(nil, schemaVersion+1)))
	require.NoError(t, db.Close())

	_, err = Open(path, Options{})
	assert.ErrorIs(t, err, ErrSchemaTooNew)
}

func TestSchemaVersionMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.db")
	db, err := Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, db.st.Put(store.DefaultPartition, versionKey, []byte{1}))
	require.NoError(t, db.Close())

	_, err = Open(path, Options{})
	assert.True(t, IsDecodeError(err))
}

func TestCloneSharesEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.db")
	db, err := Open(path, Options{})
	require.NoError(t, err)

	clone := db.Clone()
	assert.Equal(t, db.ID(), clone.ID())
	require.NoError(t, db.Close())

	// The clone keeps the engine open.
	require.NoError(t, Put(clone, BlockHeaderKey{Block: 1}, testHeader(1)))
	_, ok, err := Get[types.Header](clone, BlockHeaderKey{Block: 1})
	require.NoError(t, err)
	assert.True(t, ok)

	// The closed handle does not.
	_, _, err = Get[types.Header](db, BlockHeaderKey{Block: 1})
	assert.ErrorIs(t, err, store.ErrClosed)

	require.NoError(t, clone.Close())
	require.NoError(t, clone.Close())
	_, _, err = Get[types.Header](clone, BlockHeaderKey{Block: 1})
	assert.True(t, IsStorageError(err))
	assert.ErrorIs(t, err, store.ErrClosed)

	// The file lock is released with the last handle.
	db, err = Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, db.Close())
}
