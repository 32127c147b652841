package store

import "errors"

// DefaultPartition selects the engine's default namespace.
const DefaultPartition = ""

var (
	ErrPartitionNotFound = errors.New("store: partition not found")
	ErrClosed            = errors.New("store: closed")
	ErrNotExist          = errors.New("store: database does not exist")
)

// Store is an ordered key-value engine split into named partitions.
// Partitions are fixed when the store is opened; operations on a partition
// that was not created at open time fail with ErrPartitionNotFound.
// The initial implementation uses bbolt buckets as partitions.
type Store interface {
	// Get returns a copy of the value, or nil if the key is absent.
	Get(partition string, key []byte) ([]byte, error)
	Put(partition string, key, value []byte) error
	// Delete removes key. Removing an absent key is not an error.
	Delete(partition string, key []byte) error
	// Scan opens a forward cursor over the whole partition, in key order,
	// on a consistent snapshot. The caller must Close it.
	Scan(partition string) (Cursor, error)
	Partitions() []string
	// Clone returns another handle to the same engine. The engine stays
	// open until every handle has been closed.
	Clone() Store
	Close() error
}

// Cursor is a lazy, forward-only walk over one partition.
//
//	c, err := st.Scan("p")
//	...
//	defer c.Close()
//	for c.Next() {
//		use(c.Key(), c.Value())
//	}
//	if err := c.Err(); err != nil { ... }
type Cursor interface {
	Next() bool
	// Key and Value return copies that stay valid after Next.
	Key() []byte
	Value() []byte
	Err() error
	Close() error
}
