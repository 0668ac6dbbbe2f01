package system

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
)

// ProgramKey is the all zero system program address.
var ProgramKey [32]byte

type Command uint32

const (
	CommandCreateAccount Command = iota
	CommandAssign
	CommandTransfer
)

const (
	createAccountDataSize = 4 + 2*8 + 32
	transferDataSize      = 4 + 8
)

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/program/src/system_instruction.rs#L17-L30
const (
	ErrorAccountAlreadyInUse solana.CustomError = iota
	ErrorResultWithNegativeLamports
	ErrorInvalidProgramId
	ErrorInvalidAccountDataLength
)

// MaxPermittedDataLength caps the size of a newly created account.
const MaxPermittedDataLength = 10 * 1024 * 1024

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L58-L72
func CreateAccount(funder, address, owner ed25519.PublicKey, lamports, size uint64) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Funding account
	//   1. [WRITE, SIGNER] New account
	data := make([]byte, createAccountDataSize)
	binary.LittleEndian.PutUint32(data, uint32(CommandCreateAccount))
	binary.LittleEndian.PutUint64(data[4:], lamports)
	binary.LittleEndian.PutUint64(data[4+8:], size)
	copy(data[4+2*8:], owner)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(funder, true),
		solana.NewAccountMeta(address, true),
	)
}

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L89-L92
func Transfer(from, to ed25519.PublicKey, lamports uint64) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Funding account
	//   1. [WRITE] Recipient account
	data := make([]byte, transferDataSize)
	binary.LittleEndian.PutUint32(data, uint32(CommandTransfer))
	binary.LittleEndian.PutUint64(data[4:], lamports)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(from, true),
		solana.NewAccountMeta(to, false),
	)
}

type CreateAccountArgs struct {
	Lamports uint64
	Size     uint64
	Owner    ed25519.PublicKey
}

type TransferArgs struct {
	Lamports uint64
}

// GetCommand returns the command encoded in raw instruction data.
func GetCommand(data []byte) (Command, error) {
	if len(data) < 4 {
		return 0, solana.ErrIncorrectInstruction
	}
	return Command(binary.LittleEndian.Uint32(data)), nil
}

func DecodeCreateAccount(data []byte) (*CreateAccountArgs, error) {
	if cmd, err := GetCommand(data); err != nil || cmd != CommandCreateAccount {
		return nil, solana.ErrIncorrectInstruction
	}
	if len(data) != createAccountDataSize {
		return nil, errors.Errorf("invalid instruction data size: %d", len(data))
	}

	args := &CreateAccountArgs{
		Lamports: binary.LittleEndian.Uint64(data[4:]),
		Size:     binary.LittleEndian.Uint64(data[4+8:]),
		Owner:    make(ed25519.PublicKey, ed25519.PublicKeySize),
	}
	copy(args.Owner, data[4+2*8:])
	return args, nil
}

func DecodeTransfer(data []byte) (*TransferArgs, error) {
	if cmd, err := GetCommand(data); err != nil || cmd != CommandTransfer {
		return nil, solana.ErrIncorrectInstruction
	}
	if len(data) != transferDataSize {
		return nil, errors.Errorf("invalid instruction data size: %d", len(data))
	}

	return &TransferArgs{
		Lamports: binary.LittleEndian.Uint64(data[4:]),
	}, nil
}

type DecompiledCreateAccount struct {
	Funder  ed25519.PublicKey
	Address ed25519.PublicKey

	CreateAccountArgs
}

func DecompileCreateAccount(m solana.Message, index int) (*DecompiledCreateAccount, error) {
	i, err := m.Decompile(index)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(i.Program, ProgramKey[:]) {
		return nil, solana.ErrIncorrectProgram
	}

	args, err := DecodeCreateAccount(i.Data)
	if err != nil {
		return nil, err
	}
	if len(i.Accounts) != 2 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}

	return &DecompiledCreateAccount{
		Funder:            i.Accounts[0].PublicKey,
		Address:           i.Accounts[1].PublicKey,
		CreateAccountArgs: *args,
	}, nil
}
