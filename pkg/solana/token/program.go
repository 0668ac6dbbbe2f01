package token

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/system"
)

// ProgramKey is the address of the token program.
//
// Current key: TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA
var ProgramKey = ed25519.PublicKey{6, 221, 246, 225, 215, 101, 161, 147, 217, 203, 225, 70, 206, 235, 121, 172, 28, 180, 133, 237, 95, 91, 55, 145, 58, 140, 245, 133, 126, 255, 0, 169}

type Command byte

const (
	CommandInitializeMint Command = iota
	CommandInitializeAccount
	CommandInitializeMultisig
	CommandTransfer
	CommandApprove
	CommandRevoke
	CommandSetAuthority
	CommandMintTo
	CommandBurn
	CommandCloseAccount
	CommandFreezeAccount
	CommandThawAccount

	CommandUnknown = Command(math.MaxUint8)
)

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/error.rs
const (
	ErrorNotRentExempt solana.CustomError = iota
	ErrorInsufficientFunds
	ErrorInvalidMint
	ErrorMintMismatch
	ErrorOwnerMismatch
	ErrorFixedSupply
	ErrorAlreadyInUse
	ErrorInvalidNumberOfProvidedSigners
	ErrorInvalidNumberOfRequiredSigners
	ErrorUninitializedState
	ErrorNativeNotSupported
	ErrorNonNativeHasBalance
	ErrorInvalidInstruction
	ErrorInvalidState
	ErrorOverflow
	ErrorAuthorityTypeNotSupported
	ErrorMintCannotFreeze
	ErrorAccountFrozen
	ErrorMintDecimalsMismatch
)

type AuthorityType byte

const (
	AuthorityTypeMintTokens AuthorityType = iota
	AuthorityTypeFreezeAccount
	AuthorityTypeAccountHolder
	AuthorityTypeCloseAccount
)

func GetCommand(m solana.Message, index int) (Command, error) {
	if index >= len(m.Instructions) {
		return CommandUnknown, errors.Errorf("instruction doesn't exist at %d", index)
	}

	i := m.Instructions[index]

	if !bytes.Equal(m.Accounts[i.ProgramIndex], ProgramKey) {
		return CommandUnknown, solana.ErrIncorrectProgram
	}
	if len(i.Data) == 0 {
		return CommandUnknown, errors.New("token instruction missing data")
	}

	return Command(i.Data[0]), nil
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L25-L39
func InitializeMint(mint, mintAuthority, freezeAuthority ed25519.PublicKey, decimals byte) solana.Instruction {
	// Accounts expected by this instruction:
	//
	//   0. `[writable]` The mint to initialize.
	//   1. `[]` Rent sysvar
	data := []byte{byte(CommandInitializeMint), decimals}
	data = append(data, mintAuthority...)
	if len(freezeAuthority) > 0 {
		data = append(data, 1)
		data = append(data, freezeAuthority...)
	} else {
		data = append(data, 0)
	}

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(mint, false),
		solana.NewReadonlyAccountMeta(system.RentSysVar, false),
	)
}

type InitializeMintArgs struct {
	Decimals        byte
	MintAuthority   ed25519.PublicKey
	FreezeAuthority ed25519.PublicKey
}

func DecodeInitializeMint(data []byte) (*InitializeMintArgs, error) {
	if len(data) < 3+ed25519.PublicKeySize || data[0] != byte(CommandInitializeMint) {
		return nil, solana.ErrIncorrectInstruction
	}

	args := &InitializeMintArgs{
		Decimals:      data[1],
		MintAuthority: data[2 : 2+ed25519.PublicKeySize],
	}

	rest := data[2+ed25519.PublicKeySize:]
	switch rest[0] {
	case 0:
	case 1:
		if len(rest) < 1+ed25519.PublicKeySize {
			return nil, errors.Errorf("invalid data size: %d", len(data))
		}
		args.FreezeAuthority = rest[1 : 1+ed25519.PublicKeySize]
	default:
		return nil, errors.Errorf("invalid freeze authority option: %d", rest[0])
	}

	return args, nil
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L41-L55
func InitializeAccount(account, mint, owner ed25519.PublicKey) solana.Instruction {
	// Accounts expected by this instruction:
	//
	//   0. `[writable]`  The account to initialize.
	//   1. `[]` The mint this account will be associated with.
	//   2. `[]` The new account's owner.
	//   3. `[]` Rent sysvar
	return solana.NewInstruction(
		ProgramKey,
		[]byte{byte(CommandInitializeAccount)},
		solana.NewAccountMeta(account, false),
		solana.NewReadonlyAccountMeta(mint, false),
		solana.NewReadonlyAccountMeta(owner, false),
		solana.NewReadonlyAccountMeta(system.RentSysVar, false),
	)
}

type DecompiledInitializeAccount struct {
	Account ed25519.PublicKey
	Mint    ed25519.PublicKey
	Owner   ed25519.PublicKey
}

func DecompileInitializeAccount(m solana.Message, index int) (*DecompiledInitializeAccount, error) {
	i, err := decompile(m, index, CommandInitializeAccount, 1, 4)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(system.RentSysVar, i.Accounts[3].PublicKey) {
		return nil, errors.Errorf("invalid rent program")
	}

	return &DecompiledInitializeAccount{
		Account: i.Accounts[0].PublicKey,
		Mint:    i.Accounts[1].PublicKey,
		Owner:   i.Accounts[2].PublicKey,
	}, nil
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L128-L139
func SetAuthority(account, currentAuthority, newAuthority ed25519.PublicKey, authorityType AuthorityType) solana.Instruction {
	// Sets a new authority of a mint or account.
	//
	// Accounts expected by this instruction:
	//
	//   0. `[writable]` The mint or account to change the authority of.
	//   1. `[signer]` The current authority of the mint or account.
	data := []byte{byte(CommandSetAuthority), byte(authorityType), 0}
	if len(newAuthority) > 0 {
		data[2] = 1
		data = append(data, newAuthority...)
	}

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(account, false),
		solana.NewReadonlyAccountMeta(currentAuthority, true),
	)
}

type SetAuthorityArgs struct {
	Type         AuthorityType
	NewAuthority ed25519.PublicKey
}

func DecodeSetAuthority(data []byte) (*SetAuthorityArgs, error) {
	if len(data) == 0 || data[0] != byte(CommandSetAuthority) {
		return nil, solana.ErrIncorrectInstruction
	}
	if len(data) < 3 {
		return nil, errors.Errorf("invalid data size: %d (expect at least 3)", len(data))
	}

	args := &SetAuthorityArgs{
		Type: AuthorityType(data[1]),
	}

	switch data[2] {
	case 0:
		if len(data) != 3 {
			return nil, errors.Errorf("invalid data size: %d (expect 3)", len(data))
		}
	case 1:
		if len(data) != 3+ed25519.PublicKeySize {
			return nil, errors.Errorf("invalid data size: %d (expect %d)", len(data), 3+ed25519.PublicKeySize)
		}
		args.NewAuthority = data[3 : 3+ed25519.PublicKeySize]
	default:
		return nil, errors.Errorf("invalid new authority option: %d", data[2])
	}

	return args, nil
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L76-L91
func Transfer(source, dest, owner ed25519.PublicKey, amount uint64) solana.Instruction {
	// Accounts expected by this instruction:
	//
	//   0. `[writable]` The source account.
	//   1. `[writable]` The destination account.
	//   2. `[signer]` The source account's owner.
	return solana.NewInstruction(
		ProgramKey,
		encodeAmount(CommandTransfer, amount),
		solana.NewAccountMeta(source, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(owner, true),
	)
}

type DecompiledTransfer struct {
	Source      ed25519.PublicKey
	Destination ed25519.PublicKey
	Owner       ed25519.PublicKey
	Amount      uint64
}

func DecompileTransfer(m solana.Message, index int) (*DecompiledTransfer, error) {
	i, err := decompile(m, index, CommandTransfer, 0, 3)
	if err != nil {
		return nil, err
	}

	amount, err := DecodeAmount(CommandTransfer, i.Data)
	if err != nil {
		return nil, err
	}

	return &DecompiledTransfer{
		Source:      i.Accounts[0].PublicKey,
		Destination: i.Accounts[1].PublicKey,
		Owner:       i.Accounts[2].PublicKey,
		Amount:      amount,
	}, nil
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L141-L155
func MintTo(mint, dest, mintAuthority ed25519.PublicKey, amount uint64) solana.Instruction {
	// Accounts expected by this instruction:
	//
	//   0. `[writable]` The mint.
	//   1. `[writable]` The account to mint tokens to.
	//   2. `[signer]` The mint's minting authority.
	return solana.NewInstruction(
		ProgramKey,
		encodeAmount(CommandMintTo, amount),
		solana.NewAccountMeta(mint, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(mintAuthority, true),
	)
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L183-L197
func CloseAccount(account, dest, owner ed25519.PublicKey) solana.Instruction {
	// Close an account by transferring all its SOL to the destination account.
	// Non-native accounts may only be closed if its token amount is zero.
	//
	// Accounts expected by this instruction:
	//
	//   0. `[writable]` The account to close.
	//   1. `[writable]` The destination account.
	//   2. `[signer]` The account's owner.
	return solana.NewInstruction(
		ProgramKey,
		[]byte{byte(CommandCloseAccount)},
		solana.NewAccountMeta(account, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(owner, true),
	)
}

// DecodeAmount reads the u64 argument of a Transfer or MintTo instruction.
func DecodeAmount(cmd Command, data []byte) (uint64, error) {
	if len(data) == 0 || data[0] != byte(cmd) {
		return 0, solana.ErrIncorrectInstruction
	}
	if len(data) != 9 {
		return 0, errors.Errorf("invalid instruction data size: %d", len(data))
	}
	return binary.LittleEndian.Uint64(data[1:]), nil
}

func encodeAmount(cmd Command, amount uint64) []byte {
	data := make([]byte, 1+8)
	data[0] = byte(cmd)
	binary.LittleEndian.PutUint64(data[1:], amount)
	return data
}

// decompile resolves a token program instruction, checking the command, the
// exact data size when dataSize is non-zero, and the minimum number of
// accounts, in that order.
func decompile(m solana.Message, index int, cmd Command, dataSize, minAccounts int) (solana.Instruction, error) {
	if index >= len(m.Instructions) {
		return solana.Instruction{}, errors.Errorf("instruction doesn't exist at %d", index)
	}

	i, err := m.Decompile(index)
	if err != nil {
		return solana.Instruction{}, err
	}

	if !bytes.Equal(i.Program, ProgramKey) {
		return solana.Instruction{}, solana.ErrIncorrectProgram
	}
	if !bytes.HasPrefix(i.Data, []byte{byte(cmd)}) {
		return solana.Instruction{}, solana.ErrIncorrectInstruction
	}
	if dataSize > 0 && len(i.Data) != dataSize {
		return solana.Instruction{}, solana.ErrIncorrectInstruction
	}
	if len(i.Accounts) < minAccounts {
		return solana.Instruction{}, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}

	return i, nil
}
