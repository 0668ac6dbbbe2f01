package escrow

import (
	"github.com/pkg/errors"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
)

var (
	ErrInvalidProgram         = errors.New("invalid program id")
	ErrInvalidAccountData     = errors.New("unexpected account data")
	ErrInvalidInstructionData = errors.New("unexpected instruction data")
)

// ProgramKey is the address the escrow program is deployed at.
var ProgramKey = solana.MustBase58Decode("Escrow1111111111111111111111111111111111111")
