package token

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
)

var (
	// ErrAccountNotFound indicates there is no account for the given address.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidTokenAccount indicates that a Solana account exists at the
	// given address, but it is either not initialized, or not configured correctly.
	ErrInvalidTokenAccount = errors.New("invalid token account")
	// ErrInvalidMint indicates the account at the given address is not an
	// initialized mint.
	ErrInvalidMint = errors.New("invalid mint")
)

// Client provides utilities for accessing token accounts for a given token.
type Client struct {
	sc    solana.AccountReader
	token ed25519.PublicKey
}

// NewClient creates a new Client over an RPC client or a local bank.
func NewClient(sc solana.AccountReader, token ed25519.PublicKey) *Client {
	return &Client{
		sc:    sc,
		token: token,
	}
}

func (c *Client) Token() ed25519.PublicKey {
	return c.token
}

// GetAccount returns the token account info for the specified account.
//
// If the account is not initialized, or belongs to a different
// mint, then ErrInvalidTokenAccount is returned.
func (c *Client) GetAccount(accountID ed25519.PublicKey, commitment solana.Commitment) (*Account, error) {
	accountInfo, err := c.sc.GetAccountInfo(accountID, commitment)
	if err == solana.ErrNoAccountInfo {
		return nil, ErrAccountNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to get account info")
	}

	if !bytes.Equal(accountInfo.Owner, ProgramKey) {
		return nil, ErrInvalidTokenAccount
	}

	var account Account
	if err := account.Unmarshal(accountInfo.Data); err != nil || !account.IsInitialized() {
		return nil, ErrInvalidTokenAccount
	}

	if !bytes.Equal(c.token, account.Mint) {
		return nil, ErrInvalidTokenAccount
	}

	return &account, nil
}

// GetMint returns the client's mint.
func (c *Client) GetMint(commitment solana.Commitment) (*Mint, error) {
	accountInfo, err := c.sc.GetAccountInfo(c.token, commitment)
	if err == solana.ErrNoAccountInfo {
		return nil, ErrAccountNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to get account info")
	}

	if !bytes.Equal(accountInfo.Owner, ProgramKey) {
		return nil, ErrInvalidMint
	}

	var mint Mint
	if err := mint.Unmarshal(accountInfo.Data); err != nil || !mint.IsInitialized {
		return nil, ErrInvalidMint
	}

	return &mint, nil
}
