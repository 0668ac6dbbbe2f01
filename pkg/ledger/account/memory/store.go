package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/kbruccoleri/solana-bpf-program/pkg/database/query"
	"github.com/kbruccoleri/solana-bpf-program/pkg/ledger/account"
)

type store struct {
	mu      sync.Mutex
	records map[string]*account.Record
	last    uint64
}

type ById []*account.Record

func (a ById) Len() int           { return len(a) }
func (a ById) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ById) Less(i, j int) bool { return a[i].Id < a[j].Id }

// New returns a new in memory account.Store
func New() account.Store {
	return &store{
		records: make(map[string]*account.Record),
	}
}

func (s *store) reset() {
	s.mu.Lock()
	s.records = make(map[string]*account.Record)
	s.last = 0
	s.mu.Unlock()
}

// Get implements account.Store.Get
func (s *store) Get(_ context.Context, address string) (*account.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.records[address]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return item.Clone(), nil
}

// GetAllByOwner implements account.Store.GetAllByOwner
func (s *store) GetAllByOwner(_ context.Context, owner string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*account.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []*account.Record
	for _, item := range s.records {
		if item.Owner == owner {
			items = append(items, item)
		}
	}

	res := s.filter(items, cursor, limit, direction)
	if len(res) == 0 {
		return nil, account.ErrAccountNotFound
	}

	cloned := make([]*account.Record, len(res))
	for i, item := range res {
		cloned[i] = item.Clone()
	}
	return cloned, nil
}

// Commit implements account.Store.Commit
func (s *store) Commit(_ context.Context, updates []*account.Record, deletes []string) error {
	for _, update := range updates {
		if err := update.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, update := range updates {
		if existing, ok := s.records[update.Address]; ok {
			update.Id = existing.Id
		} else {
			s.last++
			update.Id = s.last
		}

		s.records[update.Address] = update.Clone()
	}

	for _, address := range deletes {
		delete(s.records, address)
	}

	return nil
}

// Count implements account.Store.Count
func (s *store) Count(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return uint64(len(s.records)), nil
}

func (s *store) filter(items []*account.Record, cursor query.Cursor, limit uint64, direction query.Ordering) []*account.Record {
	sort.Sort(ById(items))
	if direction == query.Descending {
		sort.Sort(sort.Reverse(ById(items)))
	}

	var res []*account.Record
	for _, item := range items {
		if len(cursor) > 0 {
			start := cursor.ToUint64()
			if direction == query.Ascending && item.Id <= start {
				continue
			}
			if direction == query.Descending && item.Id >= start {
				continue
			}
		}

		res = append(res, item)
		if limit > 0 && uint64(len(res)) >= limit {
			break
		}
	}
	return res
}
