package escrow

import (
	"github.com/mr-tron/base58"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/runtime"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/system"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/token"
)

// Process executes an escrow program instruction. Every account is treated as
// untrusted and is checked against the escrow record or a derived address
// before it is used.
func Process(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, data []byte) error {
	instruction, err := UnpackInstruction(data)
	if err != nil {
		return err
	}

	ic.Log("Instruction: %s", instruction.Command)

	switch instruction.Command {
	case CommandInitEscrow:
		return processInitEscrow(ic, accounts, instruction.Amount)
	case CommandExchange:
		return processExchange(ic, accounts, instruction.Amount)
	default:
		return ErrorInvalidInstruction
	}
}

func processInitEscrow(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, amount uint64) error {
	if len(accounts) < 6 {
		return solana.InstructionErrorNotEnoughAccountKeys
	}
	initializerInfo := accounts[0]
	tempInfo := accounts[1]
	receivingInfo := accounts[2]
	escrowInfo := accounts[3]
	rentInfo := accounts[4]
	tokenProgramInfo := accounts[5]

	if !initializerInfo.IsSigner {
		return solana.InstructionErrorMissingRequiredSignature
	}

	if !solana.KeysEqual(rentInfo.Key, system.RentSysVar) {
		return solana.InstructionErrorInvalidArgument
	}
	var rent system.Rent
	if err := rent.Unmarshal(rentInfo.Data()); err != nil {
		return solana.InstructionErrorInvalidArgument
	}

	if !escrowInfo.IsOwnedBy(ic.ProgramID()) {
		ic.Log("escrow account %s is not owned by the program", base58.Encode(escrowInfo.Key))
		return solana.InstructionErrorIncorrectProgramID
	}
	if !rent.IsExempt(escrowInfo.Lamports(), uint64(len(escrowInfo.Data()))) {
		return ErrorNotRentExempt
	}

	var record EscrowAccount
	if err := record.Unmarshal(escrowInfo.Data()); err != nil {
		return solana.InstructionErrorInvalidAccountData
	}
	if record.IsInitialized {
		return solana.InstructionErrorAccountAlreadyInitialized
	}

	if !solana.KeysEqual(tokenProgramInfo.Key, token.ProgramKey) {
		return solana.InstructionErrorIncorrectProgramID
	}

	var temp token.Account
	if !tempInfo.IsOwnedBy(token.ProgramKey) || temp.Unmarshal(tempInfo.Data()) != nil || !temp.IsInitialized() {
		ic.Log("temp account %s is not a token account", base58.Encode(tempInfo.Key))
		return solana.InstructionErrorInvalidAccountData
	}
	if !solana.KeysEqual(temp.Owner, initializerInfo.Key) {
		ic.Log("temp account %s is not owned by the initializer", base58.Encode(tempInfo.Key))
		return solana.InstructionErrorInvalidAccountData
	}
	// A close authority survives the ownership transfer and would block the
	// custodian from closing the temp account on exchange.
	if len(temp.CloseAuthority) > 0 {
		ic.Log("temp account %s has a close authority", base58.Encode(tempInfo.Key))
		return solana.InstructionErrorInvalidAccountData
	}

	// The record can only be closed by an exchange that pays into the
	// receiving account, so it must be able to hold tokens.
	if solana.KeysEqual(receivingInfo.Key, tempInfo.Key) {
		ic.Log("receiving account cannot be the temp account")
		return solana.InstructionErrorInvalidAccountData
	}
	var receiving token.Account
	if !receivingInfo.IsOwnedBy(token.ProgramKey) || receiving.Unmarshal(receivingInfo.Data()) != nil || !receiving.IsInitialized() {
		ic.Log("receiving account %s is not a token account", base58.Encode(receivingInfo.Key))
		return solana.InstructionErrorInvalidAccountData
	}

	record = EscrowAccount{
		IsInitialized:               true,
		Initializer:                 initializerInfo.Key,
		TempTokenAccount:            tempInfo.Key,
		InitializerReceivingAccount: receivingInfo.Key,
		ExpectedAmount:              amount,
	}
	copy(escrowInfo.Data(), record.Marshal())

	custodian, _, err := GetCustodianAddress(ic.ProgramID())
	if err != nil {
		return solana.InstructionErrorInvalidSeeds
	}

	ic.Log("Calling the token program to transfer token account ownership")
	return ic.Invoke(token.SetAuthority(
		tempInfo.Key,
		initializerInfo.Key,
		custodian,
		token.AuthorityTypeAccountHolder,
	))
}

func processExchange(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, amount uint64) error {
	if len(accounts) < 9 {
		return solana.InstructionErrorNotEnoughAccountKeys
	}
	takerInfo := accounts[0]
	takerSendingInfo := accounts[1]
	takerReceivingInfo := accounts[2]
	tempInfo := accounts[3]
	initializerMainInfo := accounts[4]
	initializerReceivingInfo := accounts[5]
	escrowInfo := accounts[6]
	tokenProgramInfo := accounts[7]
	custodianInfo := accounts[8]

	if !takerInfo.IsSigner {
		return solana.InstructionErrorMissingRequiredSignature
	}

	if !escrowInfo.IsOwnedBy(ic.ProgramID()) {
		// A closed escrow loads as an empty system account.
		if len(escrowInfo.Data()) == 0 {
			return solana.InstructionErrorUninitializedAccount
		}
		ic.Log("escrow account %s is not owned by the program", base58.Encode(escrowInfo.Key))
		return solana.InstructionErrorIncorrectProgramID
	}
	var record EscrowAccount
	if err := record.Unmarshal(escrowInfo.Data()); err != nil {
		return solana.InstructionErrorInvalidAccountData
	}
	if !record.IsInitialized {
		return solana.InstructionErrorUninitializedAccount
	}

	var temp token.Account
	if !tempInfo.IsOwnedBy(token.ProgramKey) || temp.Unmarshal(tempInfo.Data()) != nil {
		return solana.InstructionErrorInvalidAccountData
	}
	if temp.Amount != amount {
		ic.Log("expected %d from the temp account, it holds %d", amount, temp.Amount)
		return solana.InstructionErrorInvalidArgument
	}

	if !solana.KeysEqual(tempInfo.Key, record.TempTokenAccount) ||
		!solana.KeysEqual(initializerMainInfo.Key, record.Initializer) ||
		!solana.KeysEqual(initializerReceivingInfo.Key, record.InitializerReceivingAccount) {
		ic.Log("accounts do not match the escrow record")
		return solana.InstructionErrorInvalidAccountData
	}

	if !solana.KeysEqual(tokenProgramInfo.Key, token.ProgramKey) {
		return solana.InstructionErrorIncorrectProgramID
	}

	custodian, bump, err := GetCustodianAddress(ic.ProgramID())
	if err != nil || !solana.KeysEqual(custodianInfo.Key, custodian) {
		return solana.InstructionErrorInvalidSeeds
	}
	seeds := custodianSeeds(bump)

	ic.Log("Calling the token program to transfer tokens to the escrow's initializer")
	if err := ic.Invoke(token.Transfer(
		takerSendingInfo.Key,
		initializerReceivingInfo.Key,
		takerInfo.Key,
		record.ExpectedAmount,
	)); err != nil {
		return err
	}

	ic.Log("Calling the token program to transfer tokens to the taker")
	if err := ic.InvokeSigned(token.Transfer(
		tempInfo.Key,
		takerReceivingInfo.Key,
		custodian,
		temp.Amount,
	), seeds); err != nil {
		return err
	}

	ic.Log("Calling the token program to close the temp account")
	if err := ic.InvokeSigned(token.CloseAccount(
		tempInfo.Key,
		initializerMainInfo.Key,
		custodian,
	), seeds); err != nil {
		return err
	}

	ic.Log("Closing the escrow account")
	lamports := escrowInfo.Lamports()
	if initializerMainInfo.Lamports()+lamports < lamports {
		return solana.InstructionErrorArithmeticOverflow
	}
	initializerMainInfo.SetLamports(initializerMainInfo.Lamports() + lamports)
	escrowInfo.SetLamports(0)

	data := escrowInfo.Data()
	for i := range data {
		data[i] = 0
	}

	return nil
}
