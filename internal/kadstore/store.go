// Package kadstore is the node's DHT record table. Records live in memory
// and every change is written through to the database, so a restarted node
// rebuilds the table with Bootstrap.
package kadstore

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"lightnode/internal/data"
	"lightnode/internal/logging"
	"lightnode/internal/p2p"
)

// Limits on what a peer can make us store.
const (
	MaxKeyLen         = 1 << 10  // 1 KiB
	MaxValueLen       = 64 << 10 // 64 KiB
	DefaultMaxRecords = 1024
)

var (
	ErrEmptyKey     = errors.New("kadstore: empty key")
	ErrKeyTooLong   = errors.New("kadstore: key exceeds max length")
	ErrValueTooLong = errors.New("kadstore: value exceeds max length")
	ErrFull         = errors.New("kadstore: record store at capacity")
	ErrExpired      = errors.New("kadstore: record already expired")
)

var logger = logging.For("kadstore")

// Options for New. Zero values select the defaults.
type Options struct {
	MaxRecords int
	// RecordTTL is the lifetime Publish gives a record when called with a
	// zero ttl. Zero means such records never expire.
	RecordTTL time.Duration
}

// Store is a thread-safe record table backed by the database.
type Store struct {
	mu      sync.RWMutex
	records map[string]p2p.Record
	db      *data.DB
	local   p2p.PeerID
	opts    Options
	now     func() time.Time
}

// New creates an empty table persisting to db. Call Bootstrap to load the
// records already on disk.
func New(db *data.DB, local p2p.PeerID, opts Options) *Store {
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = DefaultMaxRecords
	}
	return &Store{
		records: make(map[string]p2p.Record),
		db:      db,
		local:   local,
		opts:    opts,
		now:     time.Now,
	}
}

// Bootstrap loads every persisted record and returns how many were loaded.
// Expired records are dropped and removed from disk. If any record cannot
// be read, Bootstrap fails and the table stays empty.
func (s *Store) Bootstrap() (int, error) {
	now := s.now()
	loaded := make(map[string]p2p.Record)
	var expired [][]byte

	for rec, err := range s.db.AllRecords() {
		if err != nil {
			logger.Error("bootstrap failed", "err", err)
			return 0, fmt.Errorf("loading records: %w", err)
		}
		if rec.Expired(now) {
			expired = append(expired, rec.Key)
			continue
		}
		loaded[string(rec.Key)] = rec
	}

	// The scan snapshot is released; safe to write.
	for _, key := range expired {
		if err := s.db.Delete(data.KademliaRecordKey{Key: key}); err != nil {
			logger.Error("delete expired record", "key", fmt.Sprintf("%x", key), "err", err)
		}
	}
	if len(loaded) > s.opts.MaxRecords {
		logger.Warn("persisted records exceed capacity", "records", len(loaded), "max", s.opts.MaxRecords)
	}

	s.mu.Lock()
	s.records = loaded
	s.mu.Unlock()
	logger.Info("loaded records", "records", len(loaded), "expired", len(expired))
	return len(loaded), nil
}

// Put stores a record received from the network, replacing any record
// under the same key. New keys are rejected when the table is full;
// updates are always accepted.
func (s *Store) Put(rec p2p.Record) error {
	switch {
	case len(rec.Key) == 0:
		return ErrEmptyKey
	case len(rec.Key) > MaxKeyLen:
		return ErrKeyTooLong
	case len(rec.Value) > MaxValueLen:
		return ErrValueTooLong
	case rec.Expired(s.now()):
		return ErrExpired
	}
	rec = clone(rec)
	k := string(rec.Key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[k]; !exists && len(s.records) >= s.opts.MaxRecords {
		logger.Warn("record store at capacity, rejecting new key", "key", fmt.Sprintf("%x", rec.Key))
		return ErrFull
	}
	e := p2p.EntryOf(rec)
	if err := data.Put(s.db, data.KademliaRecordKey{Key: e.Key}, e.Stored); err != nil {
		return fmt.Errorf("persisting record: %w", err)
	}
	s.records[k] = rec
	return nil
}

// Publish stores a record published by this node. A zero ttl uses the
// configured RecordTTL; a negative one fails with ErrExpired.
func (s *Store) Publish(key, value []byte, ttl time.Duration) (p2p.Record, error) {
	if ttl == 0 {
		ttl = s.opts.RecordTTL
	}
	rec := p2p.Record{Key: key, Value: value, Publisher: s.local}
	if ttl != 0 {
		rec.Expires = s.now().Add(ttl)
	}
	if err := s.Put(rec); err != nil {
		return p2p.Record{}, err
	}
	return rec, nil
}

// Get returns the record for key. Expired records read as absent.
func (s *Store) Get(key []byte) (p2p.Record, bool) {
	s.mu.RLock()
	rec, ok := s.records[string(key)]
	s.mu.RUnlock()
	if !ok || rec.Expired(s.now()) {
		return p2p.Record{}, false
	}
	return rec, true
}

// Remove deletes the record for key. Removing an absent key is not an error.
func (s *Store) Remove(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Delete(data.KademliaRecordKey{Key: key}); err != nil {
		return fmt.Errorf("removing record: %w", err)
	}
	delete(s.records, string(key))
	return nil
}

// Records returns a copy of every record, sorted by key. Expired records
// not yet cleaned up are included.
func (s *Store) Records() []p2p.Record {
	s.mu.RLock()
	out := make([]p2p.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b p2p.Record) int {
		return bytes.Compare(a.Key, b.Key)
	})
	return out
}

// Len returns the number of records in the table.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// CleanupLoop periodically removes expired records until done is closed.
func (s *Store) CleanupLoop(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Cleanup(s.now())
		case <-done:
			return
		}
	}
}

// Cleanup removes every record expired at now, from memory and disk, and
// returns how many were removed.
func (s *Store) Cleanup(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, rec := range s.records {
		if !rec.Expired(now) {
			continue
		}
		if err := s.db.Delete(data.KademliaRecordKey{Key: rec.Key}); err != nil {
			// keep it in memory so the next pass retries
			logger.Error("delete expired record", "key", fmt.Sprintf("%x", rec.Key), "err", err)
			continue
		}
		delete(s.records, k)
		n++
	}
	if n > 0 {
		logger.Debug("removed expired records", "removed", n, "remaining", len(s.records))
	}
	return n
}

func clone(r p2p.Record) p2p.Record {
	return p2p.Record{
		Key:       bytes.Clone(r.Key),
		Value:     bytes.Clone(r.Value),
		Publisher: p2p.PeerID(bytes.Clone(r.Publisher)),
		Expires:   r.Expires,
	}
}
