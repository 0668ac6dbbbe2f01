package escrow

import (
	"crypto/ed25519"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/token"
)

type ExchangeInstructionArgs struct {
	// Amount the taker expects to receive. It must equal the balance of the
	// temp token account.
	Amount uint64
}

type ExchangeInstructionAccounts struct {
	// Program defaults to ProgramKey when empty.
	Program ed25519.PublicKey

	Taker                       ed25519.PublicKey
	TakerSendingAccount         ed25519.PublicKey
	TakerReceivingAccount       ed25519.PublicKey
	TempTokenAccount            ed25519.PublicKey
	InitializerMainAccount      ed25519.PublicKey
	InitializerReceivingAccount ed25519.PublicKey
	EscrowAccount               ed25519.PublicKey
	Custodian                   ed25519.PublicKey
}

// NewExchangeInstruction completes a trade.
//
// Accounts expected by this instruction:
//
//  0. `[signer]` The taker.
//  1. `[writable]` The taker's token account for the asset they send.
//  2. `[writable]` The taker's token account for the asset they receive.
//  3. `[writable]` The temp token account holding the escrowed asset.
//  4. `[writable]` The initializer's main account, credited with the closed accounts' lamports.
//  5. `[writable]` The initializer's token account that receives the taker's payment.
//  6. `[writable]` The escrow account.
//  7. `[]` The token program.
//  8. `[]` The custodian.
func NewExchangeInstruction(
	accounts *ExchangeInstructionAccounts,
	args *ExchangeInstructionArgs,
) solana.Instruction {
	data := (&Instruction{
		Command: CommandExchange,
		Amount:  args.Amount,
	}).Pack()

	return solana.NewInstruction(
		programOrDefault(accounts.Program),
		data,
		solana.NewReadonlyAccountMeta(accounts.Taker, true),
		solana.NewAccountMeta(accounts.TakerSendingAccount, false),
		solana.NewAccountMeta(accounts.TakerReceivingAccount, false),
		solana.NewAccountMeta(accounts.TempTokenAccount, false),
		solana.NewAccountMeta(accounts.InitializerMainAccount, false),
		solana.NewAccountMeta(accounts.InitializerReceivingAccount, false),
		solana.NewAccountMeta(accounts.EscrowAccount, false),
		solana.NewReadonlyAccountMeta(token.ProgramKey, false),
		solana.NewReadonlyAccountMeta(accounts.Custodian, false),
	)
}
