package escrow

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/system"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/token"
)

type InitEscrowInstructionArgs struct {
	// Amount the initializer expects to receive from the taker
	Amount uint64
}

type InitEscrowInstructionAccounts struct {
	// Program defaults to ProgramKey when empty.
	Program ed25519.PublicKey

	Initializer                 ed25519.PublicKey
	TempTokenAccount            ed25519.PublicKey
	InitializerReceivingAccount ed25519.PublicKey
	EscrowAccount               ed25519.PublicKey
}

// NewInitEscrowInstruction starts a trade. The temp token account must already
// hold the asset being offered and be owned by the initializer. The escrow
// account must be owned by the program and sized EscrowAccountSize.
//
// Accounts expected by this instruction:
//
//  0. `[signer]` The initializer.
//  1. `[writable]` The temp token account.
//  2. `[]` The initializer's token account for the asset they will receive.
//  3. `[writable]` The escrow account.
//  4. `[]` The rent sysvar.
//  5. `[]` The token program.
func NewInitEscrowInstruction(
	accounts *InitEscrowInstructionAccounts,
	args *InitEscrowInstructionArgs,
) solana.Instruction {
	data := (&Instruction{
		Command: CommandInitEscrow,
		Amount:  args.Amount,
	}).Pack()

	return solana.NewInstruction(
		programOrDefault(accounts.Program),
		data,
		solana.NewReadonlyAccountMeta(accounts.Initializer, true),
		solana.NewAccountMeta(accounts.TempTokenAccount, false),
		solana.NewReadonlyAccountMeta(accounts.InitializerReceivingAccount, false),
		solana.NewAccountMeta(accounts.EscrowAccount, false),
		solana.NewReadonlyAccountMeta(system.RentSysVar, false),
		solana.NewReadonlyAccountMeta(token.ProgramKey, false),
	)
}

type DecompiledInitEscrow struct {
	InitEscrowInstructionAccounts
	InitEscrowInstructionArgs
}

// DecompileInitEscrow resolves the InitEscrow instruction at index for the
// escrow program deployed at program.
func DecompileInitEscrow(m solana.Message, index int, program ed25519.PublicKey) (*DecompiledInitEscrow, error) {
	i, err := m.Decompile(index)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(i.Program, programOrDefault(program)) {
		return nil, solana.ErrIncorrectProgram
	}

	instruction, err := UnpackInstruction(i.Data)
	if err != nil || instruction.Command != CommandInitEscrow {
		return nil, solana.ErrIncorrectInstruction
	}
	if len(i.Accounts) < 6 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}
	if !bytes.Equal(i.Accounts[4].PublicKey, system.RentSysVar) {
		return nil, errors.New("invalid rent sysvar")
	}
	if !bytes.Equal(i.Accounts[5].PublicKey, token.ProgramKey) {
		return nil, errors.New("invalid token program")
	}

	return &DecompiledInitEscrow{
		InitEscrowInstructionAccounts: InitEscrowInstructionAccounts{
			Program:                     i.Program,
			Initializer:                 i.Accounts[0].PublicKey,
			TempTokenAccount:            i.Accounts[1].PublicKey,
			InitializerReceivingAccount: i.Accounts[2].PublicKey,
			EscrowAccount:               i.Accounts[3].PublicKey,
		},
		InitEscrowInstructionArgs: InitEscrowInstructionArgs{
			Amount: instruction.Amount,
		},
	}, nil
}

func programOrDefault(program ed25519.PublicKey) ed25519.PublicKey {
	if len(program) == 0 {
		return ProgramKey
	}
	return program
}
