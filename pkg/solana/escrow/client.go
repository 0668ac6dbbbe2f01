package escrow

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
)

var (
	// ErrAccountNotFound indicates there is no account for the given address.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidEscrowAccount indicates that an account exists at the given
	// address, but it is not an initialized escrow of the program.
	ErrInvalidEscrowAccount = errors.New("invalid escrow account")
)

// Reader is the read side of an RPC client or a local bank.
type Reader interface {
	solana.AccountReader
	solana.RentReader
}

var _ Reader = solana.Client(nil)

// Client reads escrow state for the program deployed at a given address.
type Client struct {
	sc      Reader
	program ed25519.PublicKey
}

// NewClient creates a new Client over an RPC client or a local bank for the
// escrow program at ProgramKey.
func NewClient(sc Reader) *Client {
	return NewClientForProgram(sc, ProgramKey)
}

func NewClientForProgram(sc Reader, program ed25519.PublicKey) *Client {
	return &Client{
		sc:      sc,
		program: program,
	}
}

// GetEscrowAccount returns the escrow record stored at address.
func (c *Client) GetEscrowAccount(address ed25519.PublicKey, commitment solana.Commitment) (*EscrowAccount, error) {
	accountInfo, err := c.sc.GetAccountInfo(address, commitment)
	if err == solana.ErrNoAccountInfo {
		return nil, ErrAccountNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to get account info")
	}

	if !bytes.Equal(accountInfo.Owner, c.program) {
		return nil, ErrInvalidEscrowAccount
	}

	var record EscrowAccount
	if err := record.Unmarshal(accountInfo.Data); err != nil || !record.IsInitialized {
		return nil, ErrInvalidEscrowAccount
	}

	return &record, nil
}

// GetCustodian returns the address that owns escrowed token accounts.
func (c *Client) GetCustodian() (ed25519.PublicKey, error) {
	custodian, _, err := GetCustodianAddress(c.program)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive custodian address")
	}
	return custodian, nil
}
