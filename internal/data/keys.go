package data

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// Partition names. They are part of the on-disk layout.
const (
	AppDataPartition          = "app_data_cf"
	BlockHeaderPartition      = "block_header_cf"
	ConfidenceFactorPartition = "confidence_factor_cf"
	StatePartition            = "state_cf"
	KademliaStorePartition    = "kademlia_store_cf"
)

// Partitions lists every partition the database is opened with.
var Partitions = []string{
	ConfidenceFactorPartition,
	BlockHeaderPartition,
	AppDataPartition,
	StatePartition,
	KademliaStorePartition,
}

// finalitySyncCheckpointKey is the byte key of the single checkpoint entry.
const finalitySyncCheckpointKey = "finality_sync_checkpoint_key"

// Key identifies a stored value. The set of keys is closed: only the types
// in this file implement it.
type Key interface {
	isKey()
}

// AppDataKey addresses the data an application submitted in a block.
type AppDataKey struct {
	AppID uint32
	Block uint32
}

// BlockHeaderKey addresses a block header.
type BlockHeaderKey struct {
	Block uint32
}

// VerifiedCellCountKey addresses the number of verified cells of a block.
type VerifiedCellCountKey struct {
	Block uint32
}

// FinalitySyncCheckpointKey addresses the finality sync checkpoint.
type FinalitySyncCheckpointKey struct{}

// KademliaRecordKey addresses a DHT record by its raw record key.
type KademliaRecordKey struct {
	Key []byte
}

func (AppDataKey) isKey()                {}
func (BlockHeaderKey) isKey()            {}
func (VerifiedCellCountKey) isKey()      {}
func (FinalitySyncCheckpointKey) isKey() {}
func (KademliaRecordKey) isKey()         {}

// Location is where a key lives in the engine. An empty Partition is the
// engine's default namespace.
type Location struct {
	Partition string
	Key       []byte
}

// Locate maps a key to its partition and byte key. Block numbers are
// encoded big-endian so the engine's key order is numeric order.
func Locate(k Key) Location {
	switch k := k.(type) {
	case AppDataKey:
		b := strconv.AppendUint(nil, uint64(k.AppID), 10)
		b = append(b, ':')
		b = strconv.AppendUint(b, uint64(k.Block), 10)
		return Location{AppDataPartition, b}
	case BlockHeaderKey:
		return Location{BlockHeaderPartition, binary.BigEndian.AppendUint32(nil, k.Block)}
	case VerifiedCellCountKey:
		return Location{ConfidenceFactorPartition, binary.BigEndian.AppendUint32(nil, k.Block)}
	case FinalitySyncCheckpointKey:
		return Location{StatePartition, []byte(finalitySyncCheckpointKey)}
	case KademliaRecordKey:
		return Location{KademliaStorePartition, k.Key}
	default:
		panic(fmt.Sprintf("data: unknown key type %T", k))
	}
}

// String names the key for logs and errors.
func (k AppDataKey) String() string {
	return fmt.Sprintf("app data %d:%d", k.AppID, k.Block)
}

func (k BlockHeaderKey) String() string {
	return fmt.Sprintf("block header %d", k.Block)
}

func (k VerifiedCellCountKey) String() string {
	return fmt.Sprintf("verified cell count %d", k.Block)
}

func (FinalitySyncCheckpointKey) String() string {
	return "finality sync checkpoint"
}

func (k KademliaRecordKey) String() string {
	return fmt.Sprintf("kademlia record %x", k.Key)
}
