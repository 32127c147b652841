package bolt

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"lightnode/internal/logging"
	"lightnode/internal/store"
)

var logger = logging.For("store")

// defaultBucket backs store.DefaultPartition.
var defaultBucket = []byte("default")

// Options controls how Open treats a missing database file and missing partitions.
type Options struct {
	// Partitions lists the named partitions (buckets) the store serves.
	Partitions []string

	CreateIfMissing         bool
	CreateMissingPartitions bool

	Timeout  time.Duration // wait for the file lock; 0 waits forever
	NoSync   bool
	ReadOnly bool
}

// engine is the bbolt instance shared by every handle cloned from the same Open.
type engine struct {
	db         *bolt.DB
	path       string
	partitions []string
	refs       atomic.Int32
}

// Store implements store.Store using bbolt (embedded B+ tree). Each partition
// is a top-level bucket; the default partition is the "default" bucket.
//
// A Store is one reference to a shared engine. Clone adds a reference, Close
// drops one, and the bbolt file is closed with the last reference.
type Store struct {
	eng    *engine
	closed atomic.Bool
}

var _ store.Store = (*Store)(nil)

// Open creates or opens a bbolt database at the given path and makes sure
// every partition in opts exists.
func Open(path string, opts Options) (*Store, error) {
	for _, p := range opts.Partitions {
		if p == store.DefaultPartition || p == string(defaultBucket) {
			return nil, fmt.Errorf("opening bolt db: invalid partition name %q", p)
		}
	}

	if !opts.CreateIfMissing {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("opening bolt db %s: %w", path, store.ErrNotExist)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout:  opts.Timeout,
		NoSync:   opts.NoSync,
		ReadOnly: opts.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	buckets := append([][]byte{defaultBucket}, toBuckets(opts.Partitions)...)
	if opts.ReadOnly {
		err = db.View(func(tx *bolt.Tx) error {
			return checkBuckets(tx, buckets)
		})
	} else {
		err = db.Update(func(tx *bolt.Tx) error {
			if !opts.CreateMissingPartitions {
				return checkBuckets(tx, buckets)
			}
			for _, name := range buckets {
				if tx.Bucket(name) != nil {
					continue
				}
				if _, err := tx.CreateBucket(name); err != nil {
					return fmt.Errorf("creating bucket %s: %w", name, err)
				}
				logger.Debug("created partition", "partition", string(name))
			}
			return nil
		})
	}
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	eng := &engine{
		db:         db,
		path:       path,
		partitions: slices.Clone(opts.Partitions),
	}
	eng.refs.Store(1)
	logger.Info("opened bolt store", "path", path, "partitions", len(opts.Partitions))
	return &Store{eng: eng}, nil
}

func toBuckets(partitions []string) [][]byte {
	out := make([][]byte, 0, len(partitions))
	for _, p := range partitions {
		out = append(out, []byte(p))
	}
	return out
}

func checkBuckets(tx *bolt.Tx, buckets [][]byte) error {
	for _, name := range buckets {
		if tx.Bucket(name) == nil {
			return fmt.Errorf("%w: %s", store.ErrPartitionNotFound, name)
		}
	}
	return nil
}

// Clone returns a new handle to the same engine. Cloning a closed handle,
// or one whose engine was released concurrently, returns a closed handle.
func (s *Store) Clone() store.Store {
	c := &Store{eng: s.eng}
	if s.closed.Load() || !s.eng.acquire() {
		c.closed.Store(true)
	}
	return c
}

// acquire adds a reference unless the last one is already gone.
func (e *engine) acquire() bool {
	for {
		n := e.refs.Load()
		if n <= 0 {
			return false
		}
		if e.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Path returns the file the engine was opened from.
func (s *Store) Path() string {
	return s.eng.path
}

func (s *Store) Partitions() []string {
	return slices.Clone(s.eng.partitions)
}

// bucket resolves a partition on every call; handles are never cached
// across transactions.
func bucket(tx *bolt.Tx, partition string) (*bolt.Bucket, error) {
	name := defaultBucket
	if partition != store.DefaultPartition {
		name = []byte(partition)
	}
	b := tx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("%w: %s", store.ErrPartitionNotFound, partition)
	}
	return b, nil
}

func (s *Store) Get(partition string, key []byte) ([]byte, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	var val []byte
	err := s.eng.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, partition)
		if err != nil {
			return err
		}
		if v := b.Get(key); v != nil {
			val = make([]byte, len(v))
			copy(val, v)
		}
		return nil
	})
	return val, err
}

func (s *Store) Put(partition string, key, value []byte) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return s.eng.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, partition)
		if err != nil {
			return err
		}
		return b.Put(key, value)
	})
}

func (s *Store) Delete(partition string, key []byte) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return s.eng.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, partition)
		if err != nil {
			return err
		}
		return b.Delete(key)
	})
}

// Scan holds a read-only transaction until the cursor is closed. Do not
// write to the store from the goroutine holding an open cursor: bbolt may
// need to remap the file and would wait on the read transaction forever.
func (s *Store) Scan(partition string) (store.Cursor, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	tx, err := s.eng.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("beginning read tx: %w", err)
	}
	b, err := bucket(tx, partition)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return &cursor{tx: tx, cr: b.Cursor()}, nil
}

// Close releases this handle. The engine is closed when the last handle
// is released. Closing a handle twice is a no-op.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.eng.refs.Add(-1) > 0 {
		return nil
	}
	logger.Info("closing bolt store", "path", s.eng.path)
	return s.eng.db.Close()
}

type cursor struct {
	tx      *bolt.Tx
	cr      *bolt.Cursor
	started bool
	done    bool
	key     []byte
	val     []byte
}

func (c *cursor) Next() bool {
	if c.done {
		return false
	}
	var k, v []byte
	if !c.started {
		c.started = true
		k, v = c.cr.First()
	} else {
		k, v = c.cr.Next()
	}
	// nil value marks a nested bucket; partitions never contain one,
	// but skip them rather than hand out a nil value.
	for k != nil && v == nil {
		k, v = c.cr.Next()
	}
	if k == nil {
		c.done = true
		c.key, c.val = nil, nil
		return false
	}
	c.key = append(c.key[:0:0], k...)
	c.val = append(c.val[:0:0], v...)
	return true
}

func (c *cursor) Key() []byte   { return c.key }
func (c *cursor) Value() []byte { return c.val }

// Err is always nil: bbolt cursors read from the mmap and cannot fail
// once the transaction is open.
func (c *cursor) Err() error { return nil }

func (c *cursor) Close() error {
	if c.tx == nil {
		return nil
	}
	c.done = true
	err := c.tx.Rollback()
	c.tx = nil
	return err
}
