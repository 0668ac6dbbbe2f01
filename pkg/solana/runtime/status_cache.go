package runtime

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
)

type statusEntry struct {
	filter   *bloom.BloomFilter
	statuses map[solana.Signature]*solana.SignatureStatus
}

// statusCache remembers the signatures processed against each live
// blockhash. The bloom filter answers most lookups for unseen signatures
// without touching the exact set.
type statusCache struct {
	mu       sync.RWMutex
	capacity uint
	fpRate   float64
	entries  map[solana.Blockhash]*statusEntry
}

func newStatusCache(capacity uint, fpRate float64) *statusCache {
	return &statusCache{
		capacity: capacity,
		fpRate:   fpRate,
		entries:  make(map[solana.Blockhash]*statusEntry),
	}
}

func (c *statusCache) contains(hash solana.Blockhash, sig solana.Signature) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[hash]
	if !ok || !entry.filter.Test(sig[:]) {
		return false
	}

	_, ok = entry.statuses[sig]
	return ok
}

func (c *statusCache) insert(hash solana.Blockhash, sig solana.Signature, status *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[hash]
	if !ok {
		entry = &statusEntry{
			filter:   bloom.NewWithEstimates(c.capacity, c.fpRate),
			statuses: make(map[solana.Signature]*solana.SignatureStatus),
		}
		c.entries[hash] = entry
	}

	entry.filter.Add(sig[:])
	entry.statuses[sig] = status
}

func (c *statusCache) get(sig solana.Signature) (*solana.SignatureStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, entry := range c.entries {
		if !entry.filter.Test(sig[:]) {
			continue
		}
		if status, ok := entry.statuses[sig]; ok {
			copied := *status
			return &copied, true
		}
	}
	return nil, false
}

func (c *statusCache) purge(hashes ...solana.Blockhash) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, hash := range hashes {
		delete(c.entries, hash)
	}
}
