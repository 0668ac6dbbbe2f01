package sync

import (
	"encoding/binary"
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/spaolacci/murmur3"
)

// ring is a consistent hash ring over the indexes [0, size).
type ring struct {
	hashRing *treemap.Map

	// minEntryValue caches the value of min entry in hashRing, since
	// treemap.Map.Min() is O(log n).
	minEntryValue int
}

// newRing returns a consistent hash ring where each of size indexes, named
// by prefix, has replicationFactor entries in the ring.
func newRing(prefix string, size int, replicationFactor uint) *ring {
	hashRing := treemap.NewWith(utils.Int64Comparator)
	for index := 0; index < size; index++ {
		keyHash, _ := murmur3.Sum128([]byte(fmt.Sprintf("%s%d", prefix, index)))
		keyHashBytes := make([]byte, 8)
		binary.LittleEndian.PutUint64(keyHashBytes, keyHash)
		for i := 0; i < int(replicationFactor); i++ {
			hasher := murmur3.New128()
			_, _ = hasher.Write(keyHashBytes)
			indexBytes := make([]byte, 4)
			binary.LittleEndian.PutUint32(indexBytes, uint32(i))
			_, _ = hasher.Write(indexBytes)
			hash, _ := hasher.Sum128()
			hashRing.Put(int64(hash), index)
		}
	}

	r := &ring{hashRing: hashRing}
	if _, minEntryValue := hashRing.Min(); minEntryValue != nil {
		r.minEntryValue = minEntryValue.(int)
	}
	return r
}

// shard consistently hashes the key and returns the index it maps to.
func (r *ring) shard(key []byte) int {
	hash, _ := murmur3.Sum128(key)
	if _, index := r.hashRing.Ceiling(int64(hash)); index != nil {
		return index.(int)
	}
	return r.minEntryValue
}
