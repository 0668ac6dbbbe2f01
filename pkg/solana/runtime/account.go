package runtime

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"

	"github.com/kbruccoleri/solana-bpf-program/pkg/ledger/account"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/system"
)

// Account is the working copy of a ledger account while a transaction
// executes.
type Account struct {
	Lamports   uint64
	Data       []byte
	Owner      ed25519.PublicKey
	Executable bool
}

func (a *Account) Clone() *Account {
	cloned := &Account{
		Lamports:   a.Lamports,
		Owner:      append(ed25519.PublicKey(nil), a.Owner...),
		Executable: a.Executable,
	}
	if a.Data != nil {
		cloned.Data = make([]byte, len(a.Data))
		copy(cloned.Data, a.Data)
	}
	return cloned
}

func (a *Account) toAccountInfo() solana.AccountInfo {
	return solana.AccountInfo{
		Data:       append([]byte(nil), a.Data...),
		Owner:      append(ed25519.PublicKey(nil), a.Owner...),
		Lamports:   a.Lamports,
		Executable: a.Executable,
	}
}

func (a *Account) toRecord(address ed25519.PublicKey, slot uint64) *account.Record {
	return &account.Record{
		Address:    base58.Encode(address),
		Owner:      base58.Encode(a.Owner),
		Lamports:   a.Lamports,
		Data:       append([]byte(nil), a.Data...),
		Executable: a.Executable,
		Slot:       slot,
	}
}

func fromRecord(record *account.Record) (*Account, error) {
	owner, err := base58.Decode(record.Owner)
	if err != nil {
		return nil, err
	}

	return &Account{
		Lamports:   record.Lamports,
		Data:       record.Data,
		Owner:      owner,
		Executable: record.Executable,
	}, nil
}

// emptyAccount is what a missing address loads as.
func emptyAccount() *Account {
	return &Account{
		Owner: append(ed25519.PublicKey(nil), system.SystemAccount...),
		Data:  []byte{},
	}
}

// AccountInfo is a program's handle to an account for the duration of one
// invocation. Handles for the same address share the underlying account, so
// a write through one is visible through the other.
type AccountInfo struct {
	Key        ed25519.PublicKey
	IsSigner   bool
	IsWritable bool

	account *Account
}

// NewAccountInfo returns a standalone handle, mainly useful for invoking a
// program entrypoint directly in tests.
func NewAccountInfo(key ed25519.PublicKey, isSigner, isWritable bool, acct *Account) *AccountInfo {
	return &AccountInfo{
		Key:        key,
		IsSigner:   isSigner,
		IsWritable: isWritable,
		account:    acct,
	}
}

func (i *AccountInfo) Lamports() uint64 {
	return i.account.Lamports
}

func (i *AccountInfo) SetLamports(lamports uint64) {
	i.account.Lamports = lamports
}

// Data returns the account's data. Programs may modify it in place.
func (i *AccountInfo) Data() []byte {
	return i.account.Data
}

// SetData replaces the account's data, possibly changing its size.
func (i *AccountInfo) SetData(data []byte) {
	i.account.Data = data
}

func (i *AccountInfo) Owner() ed25519.PublicKey {
	return i.account.Owner
}

func (i *AccountInfo) SetOwner(owner ed25519.PublicKey) {
	i.account.Owner = append(ed25519.PublicKey(nil), owner...)
}

func (i *AccountInfo) Executable() bool {
	return i.account.Executable
}

// IsOwnedBy reports whether program owns the account.
func (i *AccountInfo) IsOwnedBy(program ed25519.PublicKey) bool {
	return solana.KeysEqual(i.account.Owner, program)
}
