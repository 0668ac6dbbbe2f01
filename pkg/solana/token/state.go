package token

import (
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/binary"
)

type AccountState byte

const (
	AccountStateUninitialized AccountState = iota
	AccountStateInitialized
	AccountStateFrozen
)

// Reference: https://github.com/solana-labs/solana-program-library/blob/11b1e3eefdd4e523768d63f7c70a7aa391ea0d02/token/program/src/state.rs#L125
const AccountSize = 165

// Reference: https://github.com/solana-labs/solana-program-library/blob/11b1e3eefdd4e523768d63f7c70a7aa391ea0d02/token/program/src/state.rs#L32
const MintSize = 82

const optionSize = 4

var ErrInvalidState = errors.New("invalid token state")

type Account struct {
	// The mint associated with this account
	Mint ed25519.PublicKey
	// The owner of this account.
	Owner ed25519.PublicKey
	// The amount of tokens this account holds.
	Amount uint64
	// If set, then the 'DelegatedAmount' represents the amount
	// authorized by the delegate.
	Delegate ed25519.PublicKey
	/// The account's state
	State AccountState
	// If set, this is a native token, and the value logs the rent-exempt reserve.
	IsNative *uint64
	// The amount delegated
	DelegatedAmount uint64
	// Optional authority to close the account.
	CloseAuthority ed25519.PublicKey
}

func (a *Account) Marshal() []byte {
	b := make([]byte, AccountSize)

	var offset int
	binary.PutKey32(b, a.Mint, &offset)
	binary.PutKey32(b[offset:], a.Owner, &offset)
	binary.PutUint64(b[offset:], a.Amount, &offset)
	binary.PutOptionalKey32(b[offset:], a.Delegate, &offset, optionSize)
	binary.PutUint8(b[offset:], uint8(a.State), &offset)
	binary.PutOptionalUint64(b[offset:], a.IsNative, &offset, optionSize)
	binary.PutUint64(b[offset:], a.DelegatedAmount, &offset)
	binary.PutOptionalKey32(b[offset:], a.CloseAuthority, &offset, optionSize)

	return b
}

func (a *Account) Unmarshal(b []byte) error {
	if len(b) != AccountSize {
		return errors.Wrapf(ErrInvalidState, "invalid account size: %d", len(b))
	}

	var offset int
	var state uint8
	binary.GetKey32(b, &a.Mint, &offset)
	binary.GetKey32(b[offset:], &a.Owner, &offset)
	binary.GetUint64(b[offset:], &a.Amount, &offset)
	if err := binary.GetOptionalKey32(b[offset:], &a.Delegate, &offset, optionSize); err != nil {
		return errors.Wrap(ErrInvalidState, "invalid delegate")
	}
	binary.GetUint8(b[offset:], &state, &offset)
	if err := binary.GetOptionalUint64(b[offset:], &a.IsNative, &offset, optionSize); err != nil {
		return errors.Wrap(ErrInvalidState, "invalid native flag")
	}
	binary.GetUint64(b[offset:], &a.DelegatedAmount, &offset)
	if err := binary.GetOptionalKey32(b[offset:], &a.CloseAuthority, &offset, optionSize); err != nil {
		return errors.Wrap(ErrInvalidState, "invalid close authority")
	}

	a.State = AccountState(state)
	if a.State > AccountStateFrozen {
		return errors.Wrapf(ErrInvalidState, "invalid account state: %d", state)
	}

	return nil
}

func (a *Account) IsInitialized() bool {
	return a.State != AccountStateUninitialized
}

func (a *Account) IsFrozen() bool {
	return a.State == AccountStateFrozen
}

type Mint struct {
	// Optional authority used to mint new tokens. Without one the supply is
	// fixed.
	MintAuthority ed25519.PublicKey

	// Total supply of tokens.
	Supply uint64

	// Number of base 10 digits to the right of the decimal place.
	Decimals uint8

	IsInitialized bool

	// Optional authority to freeze token accounts.
	FreezeAuthority ed25519.PublicKey
}

func (m *Mint) Marshal() []byte {
	b := make([]byte, MintSize)

	var offset int
	binary.PutOptionalKey32(b, m.MintAuthority, &offset, optionSize)
	binary.PutUint64(b[offset:], m.Supply, &offset)
	binary.PutUint8(b[offset:], m.Decimals, &offset)
	binary.PutBool(b[offset:], m.IsInitialized, &offset)
	binary.PutOptionalKey32(b[offset:], m.FreezeAuthority, &offset, optionSize)

	return b
}

func (m *Mint) Unmarshal(b []byte) error {
	if len(b) != MintSize {
		return errors.Wrapf(ErrInvalidState, "invalid mint size: %d", len(b))
	}

	var offset int
	if err := binary.GetOptionalKey32(b, &m.MintAuthority, &offset, optionSize); err != nil {
		return errors.Wrap(ErrInvalidState, "invalid mint authority")
	}
	binary.GetUint64(b[offset:], &m.Supply, &offset)
	binary.GetUint8(b[offset:], &m.Decimals, &offset)
	if err := binary.GetBool(b[offset:], &m.IsInitialized, &offset); err != nil {
		return errors.Wrap(ErrInvalidState, "invalid initialized flag")
	}
	if err := binary.GetOptionalKey32(b[offset:], &m.FreezeAuthority, &offset, optionSize); err != nil {
		return errors.Wrap(ErrInvalidState, "invalid freeze authority")
	}

	return nil
}
