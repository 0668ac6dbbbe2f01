package escrow

import "github.com/kbruccoleri/solana-bpf-program/pkg/solana"

// Errors returned by the escrow program as custom instruction errors.
const (
	// The instruction data could not be decoded
	ErrorInvalidInstruction solana.CustomError = iota

	// The escrow account does not hold enough lamports to be rent exempt
	ErrorNotRentExempt
)
