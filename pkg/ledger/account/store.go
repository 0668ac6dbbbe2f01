package account

import (
	"context"

	"github.com/kbruccoleri/solana-bpf-program/pkg/database/query"
)

type Store interface {
	// Get returns the account at address.
	//
	// Returns ErrAccountNotFound if the account doesn't exist.
	Get(ctx context.Context, address string) (*Record, error)

	// GetAllByOwner returns a page of accounts owned by the given program,
	// ordered by the order they were first stored in.
	//
	// Returns ErrAccountNotFound if no records are found.
	GetAllByOwner(ctx context.Context, owner string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*Record, error)

	// Commit atomically upserts updates and removes the deleted addresses.
	// Either every change is applied or none is. Deleting an address that
	// doesn't exist is not an error.
	Commit(ctx context.Context, updates []*Record, deletes []string) error

	// Count returns the number of stored accounts.
	Count(ctx context.Context) (uint64, error)
}
