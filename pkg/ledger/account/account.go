package account

import (
	"bytes"
	"crypto/ed25519"
	"math"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

var (
	ErrAccountNotFound = errors.New("ledger account not found")
	ErrInvalidAccount  = errors.New("invalid ledger account")
)

// Record is the persisted state of a single ledger account. Addresses and
// owners are base58 encoded public keys.
type Record struct {
	Id uint64

	Address    string
	Owner      string
	Lamports   uint64
	Data       []byte
	Executable bool

	// Slot is the bank slot the account was last written in.
	Slot uint64
}

func (r *Record) Validate() error {
	if err := validateKey(r.Address); err != nil {
		return errors.Wrap(err, "invalid address")
	}
	if err := validateKey(r.Owner); err != nil {
		return errors.Wrap(err, "invalid owner")
	}
	if r.Lamports == 0 {
		return errors.Wrap(ErrInvalidAccount, "zero lamport accounts are deleted, not saved")
	}
	if r.Lamports > math.MaxInt64 {
		return errors.Wrap(ErrInvalidAccount, "lamports overflow")
	}
	return nil
}

func (r *Record) Clone() *Record {
	cloned := &Record{
		Id:         r.Id,
		Address:    r.Address,
		Owner:      r.Owner,
		Lamports:   r.Lamports,
		Executable: r.Executable,
		Slot:       r.Slot,
	}
	if r.Data != nil {
		cloned.Data = make([]byte, len(r.Data))
		copy(cloned.Data, r.Data)
	}
	return cloned
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id
	dst.Address = r.Address
	dst.Owner = r.Owner
	dst.Lamports = r.Lamports
	dst.Data = append([]byte(nil), r.Data...)
	dst.Executable = r.Executable
	dst.Slot = r.Slot
}

// Equal compares everything except the store assigned id.
func (r *Record) Equal(other *Record) bool {
	return r.Address == other.Address &&
		r.Owner == other.Owner &&
		r.Lamports == other.Lamports &&
		bytes.Equal(r.Data, other.Data) &&
		r.Executable == other.Executable &&
		r.Slot == other.Slot
}

func validateKey(value string) error {
	decoded, err := base58.Decode(value)
	if err != nil {
		return err
	}
	if len(decoded) != ed25519.PublicKeySize {
		return errors.Errorf("invalid key length: %d", len(decoded))
	}
	return nil
}
