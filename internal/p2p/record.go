// Package p2p defines the records the DHT layer hands to storage and gets
// back when the node restarts.
package p2p

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mr-tron/base58"

	"lightnode/internal/codec"
)

// PeerID identifies a peer. It is printed in base58.
type PeerID []byte

func (id PeerID) String() string {
	return base58.Encode(id)
}

func (id PeerID) MarshalText() ([]byte, error) {
	return []byte(base58.Encode(id)), nil
}

func (id *PeerID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*id = nil
		return nil
	}
	b, err := base58.Decode(string(text))
	if err != nil {
		return fmt.Errorf("decoding peer id: %w", err)
	}
	*id = b
	return nil
}

// ParsePeerID decodes a base58 peer ID.
func ParsePeerID(s string) (PeerID, error) {
	var id PeerID
	err := id.UnmarshalText([]byte(s))
	return id, err
}

// Record is a DHT record.
type Record struct {
	Key       []byte
	Value     []byte
	Publisher PeerID    // nil when unknown
	Expires   time.Time // zero when the record never expires
}

// Expired reports whether the record has expired at now.
func (r Record) Expired(now time.Time) bool {
	return !r.Expires.IsZero() && !now.Before(r.Expires)
}

func (r Record) String() string {
	exp := "never"
	if !r.Expires.IsZero() {
		exp = r.Expires.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("key=%x value_len=%d publisher=%s expires=%s", r.Key, len(r.Value), r.Publisher, exp)
}

// Equal compares two records field by field. Expiry times are compared
// as instants.
func (r Record) Equal(o Record) bool {
	return bytes.Equal(r.Key, o.Key) &&
		bytes.Equal(r.Value, o.Value) &&
		bytes.Equal(r.Publisher, o.Publisher) &&
		r.Expires.Equal(o.Expires)
}

// StoredRecord is the persisted part of a Record. The key is not stored in
// the value: it is the storage key the record lives under.
type StoredRecord struct {
	Value     []byte
	Publisher PeerID
	Expires   time.Time
}

const (
	storedValue = iota + 1
	storedPublisher
	storedExpiresSec
	storedExpiresNsec
)

func (s StoredRecord) MarshalBinary() ([]byte, error) {
	var e codec.Encoder
	e.Bytes(storedValue, s.Value)
	if len(s.Publisher) > 0 {
		e.Bytes(storedPublisher, s.Publisher)
	}
	if !s.Expires.IsZero() {
		// Seconds and nanoseconds apart: UnixNano only covers 1678 to 2262.
		e.Int64(storedExpiresSec, s.Expires.Unix())
		e.Uint32(storedExpiresNsec, uint32(s.Expires.Nanosecond()))
	}
	return e.Result(), nil
}

func (s *StoredRecord) UnmarshalBinary(data []byte) error {
	var (
		out        StoredRecord
		seenValue  bool
		seenExpiry bool
		sec        int64
		nsec       uint32
	)
	err := codec.Decode(data, func(f codec.Field) error {
		var err error
		switch f.Num {
		case storedValue:
			out.Value, err = f.Bytes()
			seenValue = true
		case storedPublisher:
			var pub []byte
			pub, err = f.Bytes()
			out.Publisher = pub
		case storedExpiresSec:
			sec, err = f.Int64()
			seenExpiry = true
		case storedExpiresNsec:
			nsec, err = f.Uint32()
			if err == nil && nsec >= uint32(time.Second) {
				err = fmt.Errorf("%w: field %d: %d nanoseconds out of range", codec.ErrMalformed, f.Num, nsec)
			}
			seenExpiry = true
		}
		return err
	})
	if err == nil {
		err = codec.Require(seenValue, storedValue)
	}
	if err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}
	if seenExpiry {
		out.Expires = time.Unix(sec, int64(nsec))
	}
	*s = out
	return nil
}

type storedRecordJSON struct {
	Value     []byte     `json:"value"`
	Publisher PeerID     `json:"publisher,omitempty"`
	Expires   *time.Time `json:"expires,omitempty"`
}

func (s StoredRecord) MarshalJSON() ([]byte, error) {
	out := storedRecordJSON{Value: s.Value, Publisher: s.Publisher}
	if !s.Expires.IsZero() {
		out.Expires = &s.Expires
	}
	return json.Marshal(out)
}

func (s *StoredRecord) UnmarshalJSON(data []byte) error {
	var in storedRecordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = StoredRecord{Value: in.Value, Publisher: in.Publisher}
	if in.Expires != nil {
		s.Expires = *in.Expires
	}
	return nil
}

// Entry pairs a storage key with the stored record found under it.
type Entry struct {
	Key    []byte
	Stored StoredRecord
}

// Record rebuilds the DHT record.
func (e Entry) Record() Record {
	return Record{
		Key:       e.Key,
		Value:     e.Stored.Value,
		Publisher: e.Stored.Publisher,
		Expires:   e.Stored.Expires,
	}
}

// EntryOf splits a record into its storage key and stored value.
func EntryOf(r Record) Entry {
	return Entry{
		Key: r.Key,
		Stored: StoredRecord{
			Value:     r.Value,
			Publisher: r.Publisher,
			Expires:   r.Expires,
		},
	}
}
