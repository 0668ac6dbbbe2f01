package runtime

import (
	"github.com/mr-tron/base58"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/system"
)

// processSystem is the builtin system program. It supports account creation
// and lamport transfers.
func processSystem(ic *InvokeContext, accounts []*AccountInfo, data []byte) error {
	cmd, err := system.GetCommand(data)
	if err != nil {
		return solana.InstructionErrorInvalidInstructionData
	}

	switch cmd {
	case system.CommandCreateAccount:
		args, err := system.DecodeCreateAccount(data)
		if err != nil {
			return solana.InstructionErrorInvalidInstructionData
		}
		return createAccount(ic, accounts, args)
	case system.CommandTransfer:
		args, err := system.DecodeTransfer(data)
		if err != nil {
			return solana.InstructionErrorInvalidInstructionData
		}
		return transfer(ic, accounts, args)
	default:
		return solana.InstructionErrorInvalidInstructionData
	}
}

func createAccount(ic *InvokeContext, accounts []*AccountInfo, args *system.CreateAccountArgs) error {
	if len(accounts) < 2 {
		return solana.InstructionErrorNotEnoughAccountKeys
	}
	funder, created := accounts[0], accounts[1]

	if !funder.IsSigner || !created.IsSigner {
		return solana.InstructionErrorMissingRequiredSignature
	}
	if created.Lamports() > 0 || len(created.Data()) > 0 || !created.IsOwnedBy(system.SystemAccount) {
		ic.Log("Create Account: account %s already in use", base58.Encode(created.Key))
		return system.ErrorAccountAlreadyInUse
	}
	if args.Size > system.MaxPermittedDataLength {
		return system.ErrorInvalidAccountDataLength
	}
	if funder.Lamports() < args.Lamports {
		ic.Log("Create Account: insufficient lamports %d, need %d", funder.Lamports(), args.Lamports)
		return system.ErrorResultWithNegativeLamports
	}

	funder.SetLamports(funder.Lamports() - args.Lamports)
	created.SetLamports(args.Lamports)
	created.SetData(make([]byte, args.Size))
	created.SetOwner(args.Owner)
	return nil
}

func transfer(ic *InvokeContext, accounts []*AccountInfo, args *system.TransferArgs) error {
	if len(accounts) < 2 {
		return solana.InstructionErrorNotEnoughAccountKeys
	}
	from, to := accounts[0], accounts[1]

	if !from.IsSigner {
		return solana.InstructionErrorMissingRequiredSignature
	}
	if len(from.Data()) > 0 {
		ic.Log("Transfer: `from` must not carry data")
		return solana.InstructionErrorInvalidArgument
	}
	if from.Lamports() < args.Lamports {
		ic.Log("Transfer: insufficient lamports %d, need %d", from.Lamports(), args.Lamports)
		return system.ErrorResultWithNegativeLamports
	}
	if to.Lamports()+args.Lamports < to.Lamports() {
		return solana.InstructionErrorArithmeticOverflow
	}

	from.SetLamports(from.Lamports() - args.Lamports)
	to.SetLamports(to.Lamports() + args.Lamports)
	return nil
}
