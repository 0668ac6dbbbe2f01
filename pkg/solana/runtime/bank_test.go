package runtime

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbruccoleri/solana-bpf-program/pkg/ledger/account/memory"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/system"
	"github.com/kbruccoleri/solana-bpf-program/pkg/testutil"
)

const (
	scriptedWriteData byte = iota
	scriptedTransfer
	scriptedSignedTransfer
	scriptedRecurse
	scriptedSwallowFailure
	scriptedCustomError
	scriptedPanic
)

const (
	sol         = 1_000_000_000
	fee         = 5000
	minBalance0 = 890880
)

var scriptedProgram = solana.MustBase58Decode("Scripted11111111111111111111111111111111111")

// scripted is a test program whose behaviour is selected by the first data byte.
func scripted(ic *InvokeContext, accounts []*AccountInfo, data []byte) error {
	switch data[0] {
	case scriptedWriteData:
		accounts[0].Data()[0] = data[1]
		return nil
	case scriptedTransfer:
		return ic.Invoke(system.Transfer(accounts[0].Key, accounts[1].Key, 1))
	case scriptedSignedTransfer:
		return ic.InvokeSigned(
			system.Transfer(accounts[0].Key, accounts[1].Key, minBalance0),
			[][]byte{[]byte("vault"), {data[1]}},
		)
	case scriptedRecurse:
		return ic.Invoke(solana.NewInstruction(scriptedProgram, data, solana.NewReadonlyAccountMeta(scriptedProgram, false)))
	case scriptedSwallowFailure:
		_ = ic.Invoke(system.Transfer(accounts[0].Key, accounts[1].Key, 1000*sol))
		return nil
	case scriptedCustomError:
		return solana.CustomError(7)
	case scriptedPanic:
		panic("scripted panic")
	}
	return solana.InstructionErrorInvalidInstructionData
}

type testEnv struct {
	ctx   context.Context
	bank  *Bank
	payer ed25519.PrivateKey
}

func setup(t *testing.T) *testEnv {
	ctx := context.Background()

	config := DefaultConfig()
	config.MaxRecentBlockhashes = 3
	config.SubmitWorkers = 2

	bank, err := New(ctx, memory.New(), config)
	require.NoError(t, err)
	t.Cleanup(bank.Close)

	require.NoError(t, bank.RegisterProgram(ctx, scriptedProgram, scripted))

	payer := testutil.GenerateSolanaKeypair(t)
	require.NoError(t, bank.Airdrop(ctx, testutil.PublicKey(payer), sol))

	return &testEnv{
		ctx:   ctx,
		bank:  bank,
		payer: payer,
	}
}

func (e *testEnv) tx(t *testing.T, signers []ed25519.PrivateKey, instructions ...solana.Instruction) solana.Transaction {
	tx := solana.NewTransaction(testutil.PublicKey(e.payer), instructions...)

	blockhash, err := e.bank.GetLatestBlockhash()
	require.NoError(t, err)
	tx.SetBlockhash(blockhash)

	require.NoError(t, tx.Sign(append([]ed25519.PrivateKey{e.payer}, signers...)...))
	return tx
}

func (e *testEnv) balance(t *testing.T, key ed25519.PublicKey) uint64 {
	balance, err := e.bank.GetBalance(key)
	require.NoError(t, err)
	return balance
}

func requireTxError(t *testing.T, err error, key solana.TransactionErrorKey) *solana.TransactionError {
	require.Error(t, err)
	txErr, ok := err.(*solana.TransactionError)
	require.True(t, ok, "unexpected error: %v", err)
	assert.Equal(t, key, txErr.ErrorKey())
	return txErr
}

func requireInstructionError(t *testing.T, err error, index int, expected error) {
	txErr := requireTxError(t, err, solana.TransactionErrorInstructionError)
	require.NotNil(t, txErr.InstructionError())
	assert.Equal(t, index, txErr.InstructionError().Index)
	assert.Equal(t, expected, txErr.InstructionError().Err)
}

func TestBank_Genesis(t *testing.T) {
	env := setup(t)

	info, err := env.bank.GetAccountInfo(system.RentSysVar, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, system.SysvarOwner, info.Owner)

	var rent system.Rent
	require.NoError(t, rent.Unmarshal(info.Data))
	assert.Equal(t, system.DefaultRent(), rent)

	info, err = env.bank.GetAccountInfo(system.SystemAccount, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.True(t, info.Executable)
	assert.Equal(t, system.NativeLoader, info.Owner)

	_, err = env.bank.GetAccountInfo(testutil.GenerateSolanaKeys(t, 1)[0], solana.CommitmentFinalized)
	assert.Equal(t, solana.ErrNoAccountInfo, err)

	minimum, err := env.bank.GetMinimumBalanceForRentExemption(165)
	require.NoError(t, err)
	assert.EqualValues(t, 2039280, minimum)
}

func TestBank_Transfer(t *testing.T) {
	env := setup(t)
	recipient := testutil.GenerateSolanaKeys(t, 1)[0]

	tx := env.tx(t, nil, system.Transfer(testutil.PublicKey(env.payer), recipient, minBalance0))
	require.NoError(t, env.bank.ProcessTransaction(env.ctx, tx))

	assert.EqualValues(t, sol-fee-minBalance0, env.balance(t, testutil.PublicKey(env.payer)))
	assert.EqualValues(t, minBalance0, env.balance(t, recipient))

	status, err := env.bank.GetSignatureStatus(tx.Signatures[0])
	require.NoError(t, err)
	assert.Nil(t, status.ErrorResult)
	assert.True(t, status.Finalized())

	err = env.bank.ProcessTransaction(env.ctx, tx)
	requireTxError(t, err, solana.TransactionErrorDuplicateSignature)
	assert.EqualValues(t, minBalance0, env.balance(t, recipient))
}

func TestBank_CreateAccount(t *testing.T) {
	env := setup(t)
	created := testutil.GenerateSolanaKeypair(t)

	lamports, err := env.bank.GetMinimumBalanceForRentExemption(10)
	require.NoError(t, err)

	tx := env.tx(t, []ed25519.PrivateKey{created},
		system.CreateAccount(testutil.PublicKey(env.payer), testutil.PublicKey(created), scriptedProgram, lamports, 10),
	)
	require.NoError(t, env.bank.ProcessTransaction(env.ctx, tx))

	info, err := env.bank.GetAccountInfo(testutil.PublicKey(created), solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, scriptedProgram, info.Owner)
	assert.Equal(t, make([]byte, 10), info.Data)
	assert.Equal(t, lamports, info.Lamports)

	// Creating it again fails, the account is in use.
	env.bank.AdvanceSlot()
	tx = env.tx(t, []ed25519.PrivateKey{created},
		system.CreateAccount(testutil.PublicKey(env.payer), testutil.PublicKey(created), scriptedProgram, lamports, 10),
	)
	requireInstructionError(t, env.bank.ProcessTransaction(env.ctx, tx), 0, system.ErrorAccountAlreadyInUse)
}

func TestBank_SignatureChecks(t *testing.T) {
	env := setup(t)
	recipient := testutil.GenerateSolanaKeys(t, 1)[0]

	tx := env.tx(t, nil, system.Transfer(testutil.PublicKey(env.payer), recipient, minBalance0))
	tx.Signatures[0][0] ^= 0xff
	requireTxError(t, env.bank.ProcessTransaction(env.ctx, tx), solana.TransactionErrorSignatureFailure)

	tx = env.tx(t, nil, system.Transfer(testutil.PublicKey(env.payer), recipient, minBalance0))
	tx.Signatures = nil
	requireTxError(t, env.bank.ProcessTransaction(env.ctx, tx), solana.TransactionErrorSanitizeFailure)

	assert.EqualValues(t, sol, env.balance(t, testutil.PublicKey(env.payer)))
}

func TestBank_BlockhashExpiry(t *testing.T) {
	env := setup(t)
	recipient := testutil.GenerateSolanaKeys(t, 1)[0]

	stale := env.tx(t, nil, system.Transfer(testutil.PublicKey(env.payer), recipient, minBalance0))
	for i := 0; i < 3; i++ {
		env.bank.AdvanceSlot()
	}
	requireTxError(t, env.bank.ProcessTransaction(env.ctx, stale), solana.TransactionErrorBlockhashNotFound)

	unknown := env.tx(t, nil, system.Transfer(testutil.PublicKey(env.payer), recipient, minBalance0))
	unknown.SetBlockhash(solana.Blockhash{1})
	require.NoError(t, unknown.Sign(env.payer))
	requireTxError(t, env.bank.ProcessTransaction(env.ctx, unknown), solana.TransactionErrorBlockhashNotFound)

	fresh := env.tx(t, nil, system.Transfer(testutil.PublicKey(env.payer), recipient, minBalance0))
	require.NoError(t, env.bank.ProcessTransaction(env.ctx, fresh))
	assert.EqualValues(t, 3, env.bank.GetSlot())
}

func TestBank_Fees(t *testing.T) {
	env := setup(t)
	recipient := testutil.GenerateSolanaKeys(t, 1)[0]

	// Unfunded fee payer.
	env.payer = testutil.GenerateSolanaKeypair(t)
	tx := env.tx(t, nil, system.Transfer(testutil.PublicKey(env.payer), recipient, minBalance0))
	requireTxError(t, env.bank.ProcessTransaction(env.ctx, tx), solana.TransactionErrorAccountNotFound)

	// Cannot cover the fee.
	require.NoError(t, env.bank.Airdrop(env.ctx, testutil.PublicKey(env.payer), fee-1))
	tx = env.tx(t, nil, system.Transfer(testutil.PublicKey(env.payer), recipient, 1))
	requireTxError(t, env.bank.ProcessTransaction(env.ctx, tx), solana.TransactionErrorInsufficientFundsForFee)

	// Paying the fee would leave the payer below the rent exempt minimum.
	require.NoError(t, env.bank.Airdrop(env.ctx, testutil.PublicKey(env.payer), minBalance0))
	requireTxError(t, env.bank.ProcessTransaction(env.ctx, tx), solana.TransactionErrorInsufficientFundsForFee)
	assert.EqualValues(t, fee-1+minBalance0, env.balance(t, testutil.PublicKey(env.payer)))

	// Program owned accounts cannot pay fees.
	require.NoError(t, env.bank.SetAccount(env.ctx, testutil.PublicKey(env.payer), &Account{
		Lamports: sol,
		Owner:    scriptedProgram,
	}))
	requireTxError(t, env.bank.ProcessTransaction(env.ctx, tx), solana.TransactionErrorInvalidAccountForFee)
}

func TestBank_RentCheck(t *testing.T) {
	env := setup(t)
	recipient := testutil.GenerateSolanaKeys(t, 1)[0]

	tx := env.tx(t, nil, system.Transfer(testutil.PublicKey(env.payer), recipient, minBalance0-1))
	requireTxError(t, env.bank.ProcessTransaction(env.ctx, tx), solana.TransactionErrorInsufficientFundsForRent)

	// Only the fee was charged.
	assert.EqualValues(t, sol-fee, env.balance(t, testutil.PublicKey(env.payer)))
	assert.EqualValues(t, 0, env.balance(t, recipient))
}

func TestBank_FailedInstructionRollsBack(t *testing.T) {
	env := setup(t)
	recipient := testutil.GenerateSolanaKeys(t, 1)[0]

	tx := env.tx(t, nil,
		system.Transfer(testutil.PublicKey(env.payer), recipient, minBalance0),
		solana.NewInstruction(scriptedProgram, []byte{scriptedCustomError}),
	)
	err := env.bank.ProcessTransaction(env.ctx, tx)
	requireInstructionError(t, err, 1, solana.CustomError(7))

	assert.EqualValues(t, sol-fee, env.balance(t, testutil.PublicKey(env.payer)))
	_, err = env.bank.GetAccountInfo(recipient, solana.CommitmentFinalized)
	assert.Equal(t, solana.ErrNoAccountInfo, err)

	status, err := env.bank.GetSignatureStatus(tx.Signatures[0])
	require.NoError(t, err)
	require.NotNil(t, status.ErrorResult)
	assert.Equal(t, solana.TransactionErrorInstructionError, status.ErrorResult.ErrorKey())

	requireTxError(t, env.bank.ProcessTransaction(env.ctx, tx), solana.TransactionErrorDuplicateSignature)
}

func TestBank_ProgramChecks(t *testing.T) {
	env := setup(t)

	unknown := testutil.GenerateSolanaKeys(t, 1)[0]
	tx := env.tx(t, nil, solana.NewInstruction(unknown, []byte{0}))
	requireTxError(t, env.bank.ProcessTransaction(env.ctx, tx), solana.TransactionErrorProgramAccountNotFound)

	notExecutable := testutil.GenerateSolanaKeys(t, 1)[0]
	require.NoError(t, env.bank.Airdrop(env.ctx, notExecutable, sol))
	tx = env.tx(t, nil, solana.NewInstruction(notExecutable, []byte{0}))
	requireTxError(t, env.bank.ProcessTransaction(env.ctx, tx), solana.TransactionErrorInvalidProgramForExecution)

	tx = env.tx(t, nil, solana.NewInstruction(scriptedProgram, []byte{scriptedPanic}))
	requireInstructionError(t, env.bank.ProcessTransaction(env.ctx, tx), 0, solana.InstructionErrorProgramFailedToComplete)
}

func TestBank_AccountModificationRules(t *testing.T) {
	env := setup(t)

	owned := testutil.GenerateSolanaKeys(t, 1)[0]
	require.NoError(t, env.bank.SetAccount(env.ctx, owned, &Account{Lamports: sol, Data: []byte{0}, Owner: scriptedProgram}))

	external := testutil.GenerateSolanaKeys(t, 1)[0]
	require.NoError(t, env.bank.SetAccount(env.ctx, external, &Account{Lamports: sol, Data: []byte{0}, Owner: system.SystemAccount}))

	tx := env.tx(t, nil, solana.NewInstruction(scriptedProgram, []byte{scriptedWriteData, 1}, solana.NewReadonlyAccountMeta(owned, false)))
	requireInstructionError(t, env.bank.ProcessTransaction(env.ctx, tx), 0, solana.InstructionErrorReadonlyDataModified)

	tx = env.tx(t, nil, solana.NewInstruction(scriptedProgram, []byte{scriptedWriteData, 2}, solana.NewAccountMeta(external, false)))
	requireInstructionError(t, env.bank.ProcessTransaction(env.ctx, tx), 0, solana.InstructionErrorExternalAccountDataModified)

	tx = env.tx(t, nil, solana.NewInstruction(scriptedProgram, []byte{scriptedWriteData, 3}, solana.NewAccountMeta(owned, false)))
	require.NoError(t, env.bank.ProcessTransaction(env.ctx, tx))

	info, err := env.bank.GetAccountInfo(owned, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, info.Data)
}

func TestBank_CrossProgramInvocation(t *testing.T) {
	env := setup(t)
	recipient := testutil.GenerateSolanaKeys(t, 1)[0]
	require.NoError(t, env.bank.Airdrop(env.ctx, recipient, sol))

	// A non-signer cannot be made a signer of the callee.
	from := testutil.GenerateSolanaKeys(t, 1)[0]
	require.NoError(t, env.bank.Airdrop(env.ctx, from, sol))
	tx := env.tx(t, nil, solana.NewInstruction(
		scriptedProgram,
		[]byte{scriptedTransfer},
		solana.NewAccountMeta(from, false),
		solana.NewAccountMeta(recipient, false),
		solana.NewReadonlyAccountMeta(system.SystemAccount, false),
	))
	requireInstructionError(t, env.bank.ProcessTransaction(env.ctx, tx), 0, solana.InstructionErrorPrivilegeEscalation)

	// A readonly account cannot be made writable for the callee.
	tx = env.tx(t, nil, solana.NewInstruction(
		scriptedProgram,
		[]byte{scriptedTransfer},
		solana.NewAccountMeta(testutil.PublicKey(env.payer), true),
		solana.NewReadonlyAccountMeta(recipient, false),
		solana.NewReadonlyAccountMeta(system.SystemAccount, false),
	))
	requireInstructionError(t, env.bank.ProcessTransaction(env.ctx, tx), 0, solana.InstructionErrorPrivilegeEscalation)

	// The callee must be passed to the caller.
	tx = env.tx(t, nil, solana.NewInstruction(
		scriptedProgram,
		[]byte{scriptedTransfer},
		solana.NewAccountMeta(testutil.PublicKey(env.payer), true),
		solana.NewAccountMeta(recipient, false),
	))
	requireInstructionError(t, env.bank.ProcessTransaction(env.ctx, tx), 0, solana.InstructionErrorMissingAccount)

	// Program derived addresses are signed for by their program.
	vault, bump, err := solana.FindProgramAddressAndBump(scriptedProgram, []byte("vault"))
	require.NoError(t, err)
	require.NoError(t, env.bank.Airdrop(env.ctx, vault, sol))

	tx = env.tx(t, nil, solana.NewInstruction(
		scriptedProgram,
		[]byte{scriptedSignedTransfer, bump},
		solana.NewAccountMeta(vault, false),
		solana.NewAccountMeta(recipient, false),
		solana.NewReadonlyAccountMeta(system.SystemAccount, false),
	))
	require.NoError(t, env.bank.ProcessTransaction(env.ctx, tx))
	assert.EqualValues(t, sol-minBalance0, env.balance(t, vault))
	assert.EqualValues(t, sol+minBalance0, env.balance(t, recipient))

	// The wrong bump derives a different address.
	tx = env.tx(t, nil, solana.NewInstruction(
		scriptedProgram,
		[]byte{scriptedSignedTransfer, bump - 1},
		solana.NewAccountMeta(vault, false),
		solana.NewAccountMeta(recipient, false),
		solana.NewReadonlyAccountMeta(system.SystemAccount, false),
	))
	err = env.bank.ProcessTransaction(env.ctx, tx)
	txErr := requireTxError(t, err, solana.TransactionErrorInstructionError)
	assert.Contains(t, []error{
		solana.InstructionErrorPrivilegeEscalation,
		solana.InstructionErrorInvalidSeeds,
	}, txErr.InstructionError().Err)
}

func TestBank_CallDepth(t *testing.T) {
	env := setup(t)

	tx := env.tx(t, nil, solana.NewInstruction(scriptedProgram, []byte{scriptedRecurse}, solana.NewReadonlyAccountMeta(scriptedProgram, false)))
	requireInstructionError(t, env.bank.ProcessTransaction(env.ctx, tx), 0, solana.InstructionErrorCallDepth)
}

func TestBank_SwallowedInvokeFailure(t *testing.T) {
	env := setup(t)
	recipient := testutil.GenerateSolanaKeys(t, 1)[0]

	tx := env.tx(t, nil, solana.NewInstruction(
		scriptedProgram,
		[]byte{scriptedSwallowFailure},
		solana.NewAccountMeta(testutil.PublicKey(env.payer), true),
		solana.NewAccountMeta(recipient, false),
		solana.NewReadonlyAccountMeta(system.SystemAccount, false),
	))
	requireInstructionError(t, env.bank.ProcessTransaction(env.ctx, tx), 0, system.ErrorResultWithNegativeLamports)
}

func TestBank_SubmitTransaction(t *testing.T) {
	env := setup(t)
	recipient := testutil.GenerateSolanaKeys(t, 1)[0]

	var sigs []solana.Signature
	for i := 0; i < 5; i++ {
		tx := env.tx(t, nil, system.Transfer(testutil.PublicKey(env.payer), recipient, minBalance0+uint64(i)))
		sig, err := env.bank.SubmitTransaction(tx)
		require.NoError(t, err)
		assert.Equal(t, tx.Signatures[0], sig)
		sigs = append(sigs, sig)
	}

	require.NoError(t, testutil.WaitFor(5*time.Second, 10*time.Millisecond, func() bool {
		for _, sig := range sigs {
			if _, err := env.bank.GetSignatureStatus(sig); err != nil {
				return false
			}
		}
		return true
	}))

	assert.EqualValues(t, 5*minBalance0+10, env.balance(t, recipient))

	env.bank.Close()
	_, err := env.bank.SubmitTransaction(env.tx(t, nil, system.Transfer(testutil.PublicKey(env.payer), recipient, minBalance0)))
	assert.Equal(t, ErrBankClosed, err)
}
