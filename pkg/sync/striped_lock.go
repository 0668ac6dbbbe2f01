package sync

import (
	"sort"
	base "sync"
)

const (
	hashEntriesPerLock = 200
)

// StripedLock is a partitioned locking mechanism that consistently maps a key
// space to a set of locks. This provides concurrent data access while also
// limiting the total memory footprint.
type StripedLock struct {
	locks    []base.RWMutex
	hashRing *ring
}

// NewStripedLock returns a new StripedLock with a static number of stripes.
func NewStripedLock(stripes uint) *StripedLock {
	if stripes == 0 {
		stripes = 1
	}

	return &StripedLock{
		locks:    make([]base.RWMutex, stripes),
		hashRing: newRing("lock", int(stripes), hashEntriesPerLock),
	}
}

// Get gets the lock for a key
func (l *StripedLock) Get(key []byte) *base.RWMutex {
	return &l.locks[l.stripe(key)]
}

// LockAll acquires write locks for the writable keys and read locks for the
// readonly keys, returning a function that releases all of them.
//
// Keys that map to the same stripe are only locked once, and a stripe needed
// for writing is never additionally read locked. Stripes are always acquired
// in ascending order, so concurrent callers with overlapping key sets cannot
// deadlock.
func (l *StripedLock) LockAll(writable, readonly [][]byte) (unlock func()) {
	modes := make(map[int]bool)
	for _, key := range readonly {
		stripe := l.stripe(key)
		if _, ok := modes[stripe]; !ok {
			modes[stripe] = false
		}
	}
	for _, key := range writable {
		modes[l.stripe(key)] = true
	}

	stripes := make([]int, 0, len(modes))
	for stripe := range modes {
		stripes = append(stripes, stripe)
	}
	sort.Ints(stripes)

	for _, stripe := range stripes {
		if modes[stripe] {
			l.locks[stripe].Lock()
		} else {
			l.locks[stripe].RLock()
		}
	}

	return func() {
		for i := len(stripes) - 1; i >= 0; i-- {
			stripe := stripes[i]
			if modes[stripe] {
				l.locks[stripe].Unlock()
			} else {
				l.locks[stripe].RUnlock()
			}
		}
	}
}

func (l *StripedLock) stripe(key []byte) int {
	return l.hashRing.shard(key)
}
