package data

import (
	"fmt"
	"iter"

	"go.uber.org/multierr"

	"lightnode/internal/p2p"
	"lightnode/internal/store"
)

// RecordIter walks every DHT record persisted under KademliaRecordKey, in
// raw key order, decoding one record per Next. It reads from the snapshot
// taken when it was opened and cannot be restarted.
//
// A record that fails to decode ends the iteration: Next returns false and
// Err returns the *DecodeError. Records are never skipped, so a caller that
// rebuilds a routing table from the iterator either gets every record or an
// error.
//
// The iterator pins a read transaction. Close it before writing to the
// database from the same goroutine.
type RecordIter struct {
	cur  store.Cursor
	rec  p2p.Record
	err  error
	done bool
}

// Records opens a full scan of the DHT record partition.
func (db *DB) Records() (*RecordIter, error) {
	cur, err := db.st.Scan(KademliaStorePartition)
	if err != nil {
		return nil, storageError("scan", Location{Partition: KademliaStorePartition}, err)
	}
	return &RecordIter{cur: cur}, nil
}

// Next advances to the next record. It returns false at the end of the
// partition or on the first error.
func (it *RecordIter) Next() bool {
	if it.done {
		return false
	}
	if !it.cur.Next() {
		it.done = true
		if err := it.cur.Err(); err != nil {
			it.err = &StorageError{Op: "scan", Partition: KademliaStorePartition, Err: err}
		}
		return false
	}

	key := it.cur.Key()
	var stored p2p.StoredRecord
	if err := stored.UnmarshalBinary(it.cur.Value()); err != nil {
		it.done = true
		it.err = &DecodeError{
			Partition: KademliaStorePartition,
			Key:       key,
			Type:      typeName(stored),
			Err:       err,
		}
		logger.Error("corrupt kademlia record, stopping scan", "key", fmt.Sprintf("%x", key), "err", err)
		return false
	}
	it.rec = p2p.Entry{Key: key, Stored: stored}.Record()
	return true
}

// Record returns the record Next advanced to.
func (it *RecordIter) Record() p2p.Record {
	return it.rec
}

// Err returns the error that ended the iteration, if any.
func (it *RecordIter) Err() error {
	return it.err
}

// Close releases the snapshot. It is safe to call more than once.
func (it *RecordIter) Close() error {
	it.done = true
	if it.cur == nil {
		return nil
	}
	err := it.cur.Close()
	it.cur = nil
	if err != nil {
		return &StorageError{Op: "scan", Partition: KademliaStorePartition, Err: err}
	}
	return nil
}

// AllRecords is Records as a range-over-func sequence. An error is yielded
// once, as the last element, with a zero record.
//
//	for rec, err := range db.AllRecords() {
//		if err != nil {
//			return err
//		}
//		...
//	}
func (db *DB) AllRecords() iter.Seq2[p2p.Record, error] {
	return func(yield func(p2p.Record, error) bool) {
		it, err := db.Records()
		if err != nil {
			yield(p2p.Record{}, err)
			return
		}
		defer it.Close()

		for it.Next() {
			if !yield(it.Record(), nil) {
				return
			}
		}
		if err := multierr.Combine(it.Err(), it.Close()); err != nil {
			yield(p2p.Record{}, err)
		}
	}
}
