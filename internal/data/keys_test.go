package data

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocate(t *testing.T) {
	tests := []struct {
		key       Key
		partition string
		bytes     []byte
	}{
		{AppDataKey{AppID: 7, Block: 42}, AppDataPartition, []byte("7:42")},
		{AppDataKey{}, AppDataPartition, []byte("0:0")},
		{BlockHeaderKey{Block: 42}, BlockHeaderPartition, []byte{0, 0, 0, 42}},
		{BlockHeaderKey{Block: 0x01020304}, BlockHeaderPartition, []byte{1, 2, 3, 4}},
		{VerifiedCellCountKey{Block: 42}, ConfidenceFactorPartition, []byte{0, 0, 0, 42}},
		{FinalitySyncCheckpointKey{}, StatePartition, []byte("finality_sync_checkpoint_key")},
		{KademliaRecordKey{Key: []byte{0xde, 0xad}}, KademliaStorePartition, []byte{0xde, 0xad}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.key), func(t *testing.T) {
			loc := Locate(tt.key)
			assert.Equal(t, tt.partition, loc.Partition)
			assert.Equal(t, tt.bytes, loc.Key)
			// same key, same location
			assert.Equal(t, loc, Locate(tt.key))
		})
	}
}

func TestLocateIsolatesVariants(t *testing.T) {
	// Every variant built from the same integer must land somewhere different.
	keys := []Key{
		AppDataKey{AppID: 1, Block: 1},
		BlockHeaderKey{Block: 1},
		VerifiedCellCountKey{Block: 1},
		FinalitySyncCheckpointKey{},
		KademliaRecordKey{Key: []byte{0, 0, 0, 1}},
	}
	seen := make(map[string]Key)
	for _, k := range keys {
		loc := Locate(k)
		id := loc.Partition + "/" + string(loc.Key)
		prev, dup := seen[id]
		require.False(t, dup, "%v and %v share %s", prev, k, id)
		seen[id] = k
	}
}

func TestLocateKnownPartitions(t *testing.T) {
	for _, k := range []Key{
		AppDataKey{}, BlockHeaderKey{}, VerifiedCellCountKey{},
		FinalitySyncCheckpointKey{}, KademliaRecordKey{},
	} {
		assert.Contains(t, Partitions, Locate(k).Partition, "%T", k)
	}
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "app data 3:9", AppDataKey{AppID: 3, Block: 9}.String())
	assert.Equal(t, "block header 9", BlockHeaderKey{Block: 9}.String())
	assert.Equal(t, "verified cell count 9", VerifiedCellCountKey{Block: 9}.String())
	assert.Equal(t, "finality sync checkpoint", FinalitySyncCheckpointKey{}.String())
	assert.Equal(t, "kademlia record 0a0b", KademliaRecordKey{Key: []byte{10, 11}}.String())
}
