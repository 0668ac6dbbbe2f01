package escrow

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/system"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/token"
)

// ErrInvalidEscrowTransaction indicates a transaction that would fail, or
// leave the escrowed tokens unrecoverable, when submitted.
var ErrInvalidEscrowTransaction = errors.New("invalid escrow transaction")

// InitEscrowTransaction describes a transaction that opens an escrow.
type InitEscrowTransaction struct {
	DecompiledInitEscrow

	// Mint of the temp account. Empty when the temp account was initialized
	// by an earlier transaction.
	Mint ed25519.PublicKey

	// Deposit is the amount the transaction moves into the temp account
	// before the escrow is initialized.
	Deposit uint64
}

// ValidateInitEscrowTransaction checks a transaction built by the initializer
// before it is submitted. The transaction must hold exactly one InitEscrow
// instruction for the client's program, and must create the escrow account
// earlier in the same transaction with the program as owner, the record size,
// and a rent exempt balance. A temp account created or initialized by the
// transaction must be a token account held by the initializer.
func (c *Client) ValidateInitEscrowTransaction(tx solana.Transaction) (*InitEscrowTransaction, error) {
	m := tx.Message

	var result *InitEscrowTransaction
	created := make(map[string]*system.DecompiledCreateAccount)
	initialized := make(map[string]*token.DecompiledInitializeAccount)
	deposits := make(map[string]uint64)

	for i := range m.Instructions {
		instruction, err := m.Decompile(i)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidEscrowTransaction, "instruction %d: %v", i, err)
		}

		switch {
		case bytes.Equal(instruction.Program, c.program):
			if result != nil {
				return nil, errors.Wrap(ErrInvalidEscrowTransaction, "multiple escrow instructions")
			}

			decompiled, err := DecompileInitEscrow(m, i, c.program)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidEscrowTransaction, "instruction %d: %v", i, err)
			}
			result = &InitEscrowTransaction{DecompiledInitEscrow: *decompiled}
		case result != nil:
			// Only instructions before InitEscrow prepare its accounts.
		case bytes.Equal(instruction.Program, system.ProgramKey[:]):
			if cmd, err := system.GetCommand(instruction.Data); err != nil || cmd != system.CommandCreateAccount {
				continue
			}

			create, err := system.DecompileCreateAccount(m, i)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidEscrowTransaction, "instruction %d: %v", i, err)
			}
			created[string(create.Address)] = create
		case bytes.Equal(instruction.Program, token.ProgramKey):
			cmd, err := token.GetCommand(m, i)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidEscrowTransaction, "instruction %d: %v", i, err)
			}

			switch cmd {
			case token.CommandInitializeAccount:
				initAccount, err := token.DecompileInitializeAccount(m, i)
				if err != nil {
					return nil, errors.Wrapf(ErrInvalidEscrowTransaction, "instruction %d: %v", i, err)
				}
				initialized[string(initAccount.Account)] = initAccount
			case token.CommandTransfer:
				transfer, err := token.DecompileTransfer(m, i)
				if err != nil {
					return nil, errors.Wrapf(ErrInvalidEscrowTransaction, "instruction %d: %v", i, err)
				}

				total := deposits[string(transfer.Destination)] + transfer.Amount
				if total < transfer.Amount {
					return nil, errors.Wrap(ErrInvalidEscrowTransaction, "deposit overflow")
				}
				deposits[string(transfer.Destination)] = total
			}
		}
	}

	if result == nil {
		return nil, errors.Wrap(ErrInvalidEscrowTransaction, "no escrow instruction")
	}
	temp := string(result.TempTokenAccount)

	escrow, ok := created[string(result.EscrowAccount)]
	if !ok {
		return nil, errors.Wrap(ErrInvalidEscrowTransaction, "escrow account is not created by the transaction")
	}
	if !bytes.Equal(escrow.Owner, c.program) {
		return nil, errors.Wrap(ErrInvalidEscrowTransaction, "escrow account is not owned by the program")
	}
	if escrow.Size != EscrowAccountSize {
		return nil, errors.Wrapf(ErrInvalidEscrowTransaction, "invalid escrow account size: %d", escrow.Size)
	}

	rent, err := c.sc.GetMinimumBalanceForRentExemption(EscrowAccountSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rent exemption balance")
	}
	if escrow.Lamports < rent {
		return nil, errors.Wrapf(ErrInvalidEscrowTransaction, "escrow account is not rent exempt: %d < %d", escrow.Lamports, rent)
	}

	if create, ok := created[temp]; ok {
		if !bytes.Equal(create.Owner, token.ProgramKey) || create.Size != token.AccountSize {
			return nil, errors.Wrap(ErrInvalidEscrowTransaction, "temp account is not a token account")
		}
	}
	if initAccount, ok := initialized[temp]; ok {
		if !bytes.Equal(initAccount.Owner, result.Initializer) {
			return nil, errors.Wrap(ErrInvalidEscrowTransaction, "temp account is not held by the initializer")
		}
		result.Mint = initAccount.Mint
	}
	if bytes.Equal(result.InitializerReceivingAccount, result.TempTokenAccount) {
		return nil, errors.Wrap(ErrInvalidEscrowTransaction, "receiving account is the temp account")
	}

	result.Deposit = deposits[temp]
	return result, nil
}
