package runtime

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
)

// blockhashQueue holds the blockhashes transactions may currently reference,
// oldest first.
type blockhashQueue struct {
	max    int
	hashes []solana.Blockhash
	slots  map[solana.Blockhash]uint64
}

func newBlockhashQueue(max int, genesis solana.Blockhash) *blockhashQueue {
	q := &blockhashQueue{
		max:   max,
		slots: make(map[solana.Blockhash]uint64),
	}
	q.register(genesis, 0)
	return q
}

// register appends hash and returns any blockhashes that expired as a result.
func (q *blockhashQueue) register(hash solana.Blockhash, slot uint64) (evicted []solana.Blockhash) {
	q.hashes = append(q.hashes, hash)
	q.slots[hash] = slot

	for len(q.hashes) > q.max {
		evicted = append(evicted, q.hashes[0])
		delete(q.slots, q.hashes[0])
		q.hashes = q.hashes[1:]
	}

	return evicted
}

func (q *blockhashQueue) latest() solana.Blockhash {
	return q.hashes[len(q.hashes)-1]
}

func (q *blockhashQueue) contains(hash solana.Blockhash) bool {
	_, ok := q.slots[hash]
	return ok
}

func genesisBlockhash() solana.Blockhash {
	return sha256.Sum256([]byte("genesis"))
}

// nextBlockhash chains the previous blockhash with the new slot.
func nextBlockhash(prev solana.Blockhash, slot uint64) solana.Blockhash {
	var slotBytes [8]byte
	binary.LittleEndian.PutUint64(slotBytes[:], slot)

	h := sha256.New()
	h.Write(prev[:])
	h.Write(slotBytes[:])

	var next solana.Blockhash
	copy(next[:], h.Sum(nil))
	return next
}
