package token

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/runtime"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/system"
)

// Process executes a token program instruction. It supports single owner
// accounts for InitializeMint, InitializeAccount, Transfer, SetAuthority,
// MintTo and CloseAccount.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/processor.rs
func Process(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, data []byte) error {
	if len(data) == 0 {
		return ErrorInvalidInstruction
	}

	switch Command(data[0]) {
	case CommandInitializeMint:
		args, err := DecodeInitializeMint(data)
		if err != nil {
			return ErrorInvalidInstruction
		}
		ic.Log("Instruction: InitializeMint")
		return processInitializeMint(ic, accounts, args)
	case CommandInitializeAccount:
		ic.Log("Instruction: InitializeAccount")
		return processInitializeAccount(ic, accounts)
	case CommandTransfer:
		amount, err := DecodeAmount(CommandTransfer, data)
		if err != nil {
			return ErrorInvalidInstruction
		}
		ic.Log("Instruction: Transfer")
		return processTransfer(ic, accounts, amount)
	case CommandSetAuthority:
		args, err := DecodeSetAuthority(data)
		if err != nil {
			return ErrorInvalidInstruction
		}
		ic.Log("Instruction: SetAuthority")
		return processSetAuthority(ic, accounts, args)
	case CommandMintTo:
		amount, err := DecodeAmount(CommandMintTo, data)
		if err != nil {
			return ErrorInvalidInstruction
		}
		ic.Log("Instruction: MintTo")
		return processMintTo(ic, accounts, amount)
	case CommandCloseAccount:
		ic.Log("Instruction: CloseAccount")
		return processCloseAccount(ic, accounts)
	default:
		ic.Log("Instruction: unsupported command %d", data[0])
		return ErrorInvalidInstruction
	}
}

func processInitializeMint(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, args *InitializeMintArgs) error {
	if len(accounts) < 2 {
		return solana.InstructionErrorNotEnoughAccountKeys
	}
	mintInfo, rentInfo := accounts[0], accounts[1]

	rent, err := loadRent(rentInfo)
	if err != nil {
		return err
	}

	var mint Mint
	if err := loadMint(ic, mintInfo, &mint); err != nil {
		return err
	}
	if mint.IsInitialized {
		return ErrorAlreadyInUse
	}
	if !rent.IsExempt(mintInfo.Lamports(), uint64(len(mintInfo.Data()))) {
		return ErrorNotRentExempt
	}

	mint = Mint{
		MintAuthority:   args.MintAuthority,
		Decimals:        args.Decimals,
		IsInitialized:   true,
		FreezeAuthority: args.FreezeAuthority,
	}
	copy(mintInfo.Data(), mint.Marshal())
	return nil
}

func processInitializeAccount(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo) error {
	if len(accounts) < 4 {
		return solana.InstructionErrorNotEnoughAccountKeys
	}
	accountInfo, mintInfo, ownerInfo, rentInfo := accounts[0], accounts[1], accounts[2], accounts[3]

	rent, err := loadRent(rentInfo)
	if err != nil {
		return err
	}

	var account Account
	if err := loadAccount(ic, accountInfo, &account); err != nil {
		return err
	}
	if account.IsInitialized() {
		return ErrorAlreadyInUse
	}
	if !rent.IsExempt(accountInfo.Lamports(), uint64(len(accountInfo.Data()))) {
		return ErrorNotRentExempt
	}

	var mint Mint
	if !mintInfo.IsOwnedBy(ProgramKey) || mint.Unmarshal(mintInfo.Data()) != nil || !mint.IsInitialized {
		return ErrorInvalidMint
	}

	account = Account{
		Mint:  mintInfo.Key,
		Owner: ownerInfo.Key,
		State: AccountStateInitialized,
	}
	copy(accountInfo.Data(), account.Marshal())
	return nil
}

func processTransfer(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, amount uint64) error {
	if len(accounts) < 3 {
		return solana.InstructionErrorNotEnoughAccountKeys
	}
	sourceInfo, destInfo, authorityInfo := accounts[0], accounts[1], accounts[2]

	var source, dest Account
	if err := loadInitializedAccount(ic, sourceInfo, &source); err != nil {
		return err
	}
	if err := loadInitializedAccount(ic, destInfo, &dest); err != nil {
		return err
	}

	if source.IsFrozen() || dest.IsFrozen() {
		return ErrorAccountFrozen
	}
	if source.Amount < amount {
		ic.Log("Transfer: insufficient funds %d, need %d", source.Amount, amount)
		return ErrorInsufficientFunds
	}
	if !solana.KeysEqual(source.Mint, dest.Mint) {
		return ErrorMintMismatch
	}
	if err := validateOwner(source.Owner, authorityInfo); err != nil {
		return err
	}

	// A self transfer only validates.
	if solana.KeysEqual(sourceInfo.Key, destInfo.Key) {
		return nil
	}

	if dest.Amount+amount < dest.Amount {
		return ErrorOverflow
	}
	source.Amount -= amount
	dest.Amount += amount

	copy(sourceInfo.Data(), source.Marshal())
	copy(destInfo.Data(), dest.Marshal())
	return nil
}

func processSetAuthority(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, args *SetAuthorityArgs) error {
	if len(accounts) < 2 {
		return solana.InstructionErrorNotEnoughAccountKeys
	}
	targetInfo, authorityInfo := accounts[0], accounts[1]

	switch len(targetInfo.Data()) {
	case AccountSize:
		var account Account
		if err := loadInitializedAccount(ic, targetInfo, &account); err != nil {
			return err
		}
		if account.IsFrozen() {
			return ErrorAccountFrozen
		}

		switch args.Type {
		case AuthorityTypeAccountHolder:
			if err := validateOwner(account.Owner, authorityInfo); err != nil {
				return err
			}
			if len(args.NewAuthority) == 0 {
				return ErrorInvalidInstruction
			}
			account.Owner = args.NewAuthority
			account.Delegate = nil
			account.DelegatedAmount = 0
			if account.IsNative != nil {
				account.CloseAuthority = nil
			}
		case AuthorityTypeCloseAccount:
			current := account.CloseAuthority
			if len(current) == 0 {
				current = account.Owner
			}
			if err := validateOwner(current, authorityInfo); err != nil {
				return err
			}
			account.CloseAuthority = args.NewAuthority
		default:
			return ErrorAuthorityTypeNotSupported
		}

		ic.Log("SetAuthority: %s is now held by %s", base58.Encode(targetInfo.Key), encodeOptional(args.NewAuthority))
		copy(targetInfo.Data(), account.Marshal())
		return nil
	case MintSize:
		var mint Mint
		if err := loadMint(ic, targetInfo, &mint); err != nil {
			return err
		}
		if !mint.IsInitialized {
			return ErrorUninitializedState
		}

		switch args.Type {
		case AuthorityTypeMintTokens:
			if len(mint.MintAuthority) == 0 {
				return ErrorFixedSupply
			}
			if err := validateOwner(mint.MintAuthority, authorityInfo); err != nil {
				return err
			}
			mint.MintAuthority = args.NewAuthority
		case AuthorityTypeFreezeAccount:
			if len(mint.FreezeAuthority) == 0 {
				return ErrorMintCannotFreeze
			}
			if err := validateOwner(mint.FreezeAuthority, authorityInfo); err != nil {
				return err
			}
			mint.FreezeAuthority = args.NewAuthority
		default:
			return ErrorAuthorityTypeNotSupported
		}

		copy(targetInfo.Data(), mint.Marshal())
		return nil
	default:
		return solana.InstructionErrorInvalidArgument
	}
}

func processMintTo(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, amount uint64) error {
	if len(accounts) < 3 {
		return solana.InstructionErrorNotEnoughAccountKeys
	}
	mintInfo, destInfo, authorityInfo := accounts[0], accounts[1], accounts[2]

	var dest Account
	if err := loadInitializedAccount(ic, destInfo, &dest); err != nil {
		return err
	}
	if dest.IsFrozen() {
		return ErrorAccountFrozen
	}
	if !solana.KeysEqual(dest.Mint, mintInfo.Key) {
		return ErrorMintMismatch
	}

	var mint Mint
	if err := loadMint(ic, mintInfo, &mint); err != nil {
		return err
	}
	if !mint.IsInitialized {
		return ErrorUninitializedState
	}
	if len(mint.MintAuthority) == 0 {
		return ErrorFixedSupply
	}
	if err := validateOwner(mint.MintAuthority, authorityInfo); err != nil {
		return err
	}

	if mint.Supply+amount < mint.Supply || dest.Amount+amount < dest.Amount {
		return ErrorOverflow
	}
	mint.Supply += amount
	dest.Amount += amount

	copy(mintInfo.Data(), mint.Marshal())
	copy(destInfo.Data(), dest.Marshal())
	return nil
}

func processCloseAccount(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo) error {
	if len(accounts) < 3 {
		return solana.InstructionErrorNotEnoughAccountKeys
	}
	accountInfo, destInfo, authorityInfo := accounts[0], accounts[1], accounts[2]

	if solana.KeysEqual(accountInfo.Key, destInfo.Key) {
		return solana.InstructionErrorInvalidAccountData
	}

	var account Account
	if err := loadInitializedAccount(ic, accountInfo, &account); err != nil {
		return err
	}
	if account.IsNative == nil && account.Amount != 0 {
		return ErrorNonNativeHasBalance
	}

	authority := account.CloseAuthority
	if len(authority) == 0 {
		authority = account.Owner
	}
	if err := validateOwner(authority, authorityInfo); err != nil {
		return err
	}

	lamports := accountInfo.Lamports()
	if destInfo.Lamports()+lamports < destInfo.Lamports() {
		return ErrorOverflow
	}
	destInfo.SetLamports(destInfo.Lamports() + lamports)
	accountInfo.SetLamports(0)
	accountInfo.SetData(make([]byte, len(accountInfo.Data())))

	ic.Log("CloseAccount: returned %d lamports to %s", lamports, base58.Encode(destInfo.Key))
	return nil
}

func loadRent(info *runtime.AccountInfo) (system.Rent, error) {
	var rent system.Rent
	if !solana.KeysEqual(info.Key, system.RentSysVar) {
		return rent, solana.InstructionErrorInvalidArgument
	}
	if err := rent.Unmarshal(info.Data()); err != nil {
		return rent, solana.InstructionErrorInvalidArgument
	}
	return rent, nil
}

func loadAccount(ic *runtime.InvokeContext, info *runtime.AccountInfo, account *Account) error {
	if !info.IsOwnedBy(ProgramKey) {
		ic.Log("%s is not owned by the token program", base58.Encode(info.Key))
		return solana.InstructionErrorIncorrectProgramID
	}
	if err := account.Unmarshal(info.Data()); err != nil {
		return solana.InstructionErrorInvalidAccountData
	}
	return nil
}

func loadInitializedAccount(ic *runtime.InvokeContext, info *runtime.AccountInfo, account *Account) error {
	if err := loadAccount(ic, info, account); err != nil {
		return err
	}
	if !account.IsInitialized() {
		return ErrorUninitializedState
	}
	return nil
}

func loadMint(ic *runtime.InvokeContext, info *runtime.AccountInfo, mint *Mint) error {
	if !info.IsOwnedBy(ProgramKey) {
		ic.Log("%s is not owned by the token program", base58.Encode(info.Key))
		return solana.InstructionErrorIncorrectProgramID
	}
	if err := mint.Unmarshal(info.Data()); err != nil {
		return solana.InstructionErrorInvalidAccountData
	}
	return nil
}

func validateOwner(expected ed25519.PublicKey, authority *runtime.AccountInfo) error {
	if !solana.KeysEqual(expected, authority.Key) {
		return ErrorOwnerMismatch
	}
	if !authority.IsSigner {
		return solana.InstructionErrorMissingRequiredSignature
	}
	return nil
}

func encodeOptional(key ed25519.PublicKey) string {
	if len(key) == 0 {
		return "none"
	}
	return base58.Encode(key)
}
