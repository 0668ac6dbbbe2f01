package localnet

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbruccoleri/solana-bpf-program/pkg/database/query"
	"github.com/kbruccoleri/solana-bpf-program/pkg/ledger/account/memory"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/escrow"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/runtime"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/system"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/token"
	"github.com/kbruccoleri/solana-bpf-program/pkg/testutil"
)

type party struct {
	key      ed25519.PrivateKey
	xAccount ed25519.PublicKey
	yAccount ed25519.PublicKey
}

type testEnv struct {
	ctx     context.Context
	network *Network
	payer   ed25519.PrivateKey

	mintAuthority ed25519.PrivateKey
	mintX, mintY  ed25519.PublicKey
}

func setup(t *testing.T, opts ...Option) *testEnv {
	ctx := context.Background()

	network, err := New(ctx, memory.New(), opts...)
	require.NoError(t, err)
	t.Cleanup(network.Close)

	env := &testEnv{
		ctx:           ctx,
		network:       network,
		payer:         testutil.GenerateSolanaKeypair(t),
		mintAuthority: testutil.GenerateSolanaKeypair(t),
	}
	require.NoError(t, network.Airdrop(ctx, testutil.PublicKey(env.payer), 100_000_000_000))

	env.mintX = env.createMint(t)
	env.mintY = env.createMint(t)
	return env
}

func (e *testEnv) tx(t *testing.T, signers []ed25519.PrivateKey, instructions ...solana.Instruction) solana.Transaction {
	tx := solana.NewTransaction(testutil.PublicKey(e.payer), instructions...)
	tx.SetBlockhash(e.network.AdvanceSlot())
	require.NoError(t, tx.Sign(append([]ed25519.PrivateKey{e.payer}, signers...)...))
	return tx
}

func (e *testEnv) submit(t *testing.T, signers []ed25519.PrivateKey, instructions ...solana.Instruction) error {
	return e.network.ProcessTransaction(e.ctx, e.tx(t, signers, instructions...))
}

func (e *testEnv) createMint(t *testing.T) ed25519.PublicKey {
	mint := testutil.GenerateSolanaKeypair(t)
	lamports, err := e.network.GetMinimumBalanceForRentExemption(token.MintSize)
	require.NoError(t, err)

	require.NoError(t, e.submit(t, []ed25519.PrivateKey{mint},
		system.CreateAccount(testutil.PublicKey(e.payer), testutil.PublicKey(mint), token.ProgramKey, lamports, token.MintSize),
		token.InitializeMint(testutil.PublicKey(mint), testutil.PublicKey(e.mintAuthority), nil, 2),
	))
	return testutil.PublicKey(mint)
}

func (e *testEnv) tokenAccountInstructions(t *testing.T, account, mint, owner ed25519.PublicKey) []solana.Instruction {
	lamports, err := e.network.GetMinimumBalanceForRentExemption(token.AccountSize)
	require.NoError(t, err)

	return []solana.Instruction{
		system.CreateAccount(testutil.PublicKey(e.payer), account, token.ProgramKey, lamports, token.AccountSize),
		token.InitializeAccount(account, mint, owner),
	}
}

// newParty creates a funded wallet holding x of mint X and y of mint Y.
func (e *testEnv) newParty(t *testing.T, x, y uint64) *party {
	p := &party{key: testutil.GenerateSolanaKeypair(t)}
	require.NoError(t, e.network.Airdrop(e.ctx, testutil.PublicKey(p.key), 1_000_000_000))

	xAccount := testutil.GenerateSolanaKeypair(t)
	yAccount := testutil.GenerateSolanaKeypair(t)
	p.xAccount = testutil.PublicKey(xAccount)
	p.yAccount = testutil.PublicKey(yAccount)

	var instructions []solana.Instruction
	instructions = append(instructions, e.tokenAccountInstructions(t, p.xAccount, e.mintX, testutil.PublicKey(p.key))...)
	instructions = append(instructions, e.tokenAccountInstructions(t, p.yAccount, e.mintY, testutil.PublicKey(p.key))...)
	instructions = append(instructions,
		token.MintTo(e.mintX, p.xAccount, testutil.PublicKey(e.mintAuthority), x),
		token.MintTo(e.mintY, p.yAccount, testutil.PublicKey(e.mintAuthority), y),
	)
	require.NoError(t, e.submit(t, []ed25519.PrivateKey{xAccount, yAccount, e.mintAuthority}, instructions...))

	return p
}

// initEscrow offers amount of the initializer's mint X for expected of mint Y.
func (e *testEnv) initEscrow(t *testing.T, program ed25519.PublicKey, initializer *party, amount, expected uint64) (temp, escrowAccount ed25519.PublicKey) {
	tempKey := testutil.GenerateSolanaKeypair(t)
	escrowKey := testutil.GenerateSolanaKeypair(t)
	temp = testutil.PublicKey(tempKey)
	escrowAccount = testutil.PublicKey(escrowKey)

	escrowLamports, err := e.network.GetMinimumBalanceForRentExemption(escrow.EscrowAccountSize)
	require.NoError(t, err)

	initEscrow := escrow.NewInitEscrowInstruction(
		&escrow.InitEscrowInstructionAccounts{
			Program:                     program,
			Initializer:                 testutil.PublicKey(initializer.key),
			TempTokenAccount:            temp,
			InitializerReceivingAccount: initializer.yAccount,
			EscrowAccount:               escrowAccount,
		},
		&escrow.InitEscrowInstructionArgs{
			Amount: expected,
		},
	)

	var instructions []solana.Instruction
	instructions = append(instructions, e.tokenAccountInstructions(t, temp, e.mintX, testutil.PublicKey(initializer.key))...)
	instructions = append(instructions,
		token.Transfer(initializer.xAccount, temp, testutil.PublicKey(initializer.key), amount),
		system.CreateAccount(testutil.PublicKey(e.payer), escrowAccount, program, escrowLamports, escrow.EscrowAccountSize),
		initEscrow,
	)

	opened, err := escrow.NewClientForProgram(e.network, program).ValidateInitEscrowTransaction(solana.NewTransaction(testutil.PublicKey(e.payer), instructions...))
	require.NoError(t, err)
	require.EqualValues(t, amount, opened.Deposit)

	require.NoError(t, e.submit(t, []ed25519.PrivateKey{tempKey, escrowKey, initializer.key}, instructions...))

	return temp, escrowAccount
}

func (e *testEnv) exchangeTx(t *testing.T, program ed25519.PublicKey, taker, initializer *party, temp, escrowAccount ed25519.PublicKey, amount uint64) solana.Transaction {
	custodian, err := escrow.NewClientForProgram(e.network, program).GetCustodian()
	require.NoError(t, err)

	exchange := escrow.NewExchangeInstruction(
		&escrow.ExchangeInstructionAccounts{
			Program:                     program,
			Taker:                       testutil.PublicKey(taker.key),
			TakerSendingAccount:         taker.yAccount,
			TakerReceivingAccount:       taker.xAccount,
			TempTokenAccount:            temp,
			InitializerMainAccount:      testutil.PublicKey(initializer.key),
			InitializerReceivingAccount: initializer.yAccount,
			EscrowAccount:               escrowAccount,
			Custodian:                   custodian,
		},
		&escrow.ExchangeInstructionArgs{
			Amount: amount,
		},
	)

	return e.tx(t, []ed25519.PrivateKey{taker.key}, exchange)
}

func (e *testEnv) tokenBalance(t *testing.T, mint, account ed25519.PublicKey) uint64 {
	a, err := token.NewClient(e.network, mint).GetAccount(account, solana.CommitmentFinalized)
	require.NoError(t, err)
	return a.Amount
}

func TestNew_DeploysPrograms(t *testing.T) {
	env := setup(t)

	for _, program := range []ed25519.PublicKey{token.ProgramKey, escrow.ProgramKey, system.SystemAccount} {
		info, err := env.network.GetAccountInfo(program, solana.CommitmentFinalized)
		require.NoError(t, err)
		assert.True(t, info.Executable)
	}

	info, err := env.network.GetAccountInfo(system.RentSysVar, solana.CommitmentFinalized)
	require.NoError(t, err)
	var rent system.Rent
	require.NoError(t, rent.Unmarshal(info.Data))
	assert.Equal(t, system.DefaultRent(), rent)
}

func TestNetwork_Swap(t *testing.T) {
	env := setup(t)

	alice := env.newParty(t, 1000, 0)
	bob := env.newParty(t, 0, 1000)

	temp, escrowAccount := env.initEscrow(t, escrow.ProgramKey, alice, 300, 200)

	entries, _, err := env.network.GetEscrowAccounts(env.ctx, escrow.ProgramKey, nil, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, escrowAccount, entries[0].Address)
	assert.Equal(t, temp, entries[0].Account.TempTokenAccount)
	assert.EqualValues(t, 200, entries[0].Account.ExpectedAmount)

	// The swap goes through the asynchronous submission path.
	tx := env.exchangeTx(t, escrow.ProgramKey, bob, alice, temp, escrowAccount, 300)
	sig, err := env.network.SubmitTransaction(tx)
	require.NoError(t, err)

	var status *solana.SignatureStatus
	require.NoError(t, testutil.WaitFor(5*time.Second, 10*time.Millisecond, func() bool {
		status, err = env.network.GetSignatureStatus(sig)
		return err == nil
	}))
	assert.Nil(t, status.ErrorResult)

	assert.EqualValues(t, 700, env.tokenBalance(t, env.mintX, alice.xAccount))
	assert.EqualValues(t, 200, env.tokenBalance(t, env.mintY, alice.yAccount))
	assert.EqualValues(t, 300, env.tokenBalance(t, env.mintX, bob.xAccount))
	assert.EqualValues(t, 800, env.tokenBalance(t, env.mintY, bob.yAccount))

	entries, _, err = env.network.GetEscrowAccounts(env.ctx, escrow.ProgramKey, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNetwork_AlternateEscrowProgram(t *testing.T) {
	alternate := solana.MustBase58Decode("Escrow11111111111111111111111111111111111111")
	env := setup(t, WithEscrowProgram(alternate))

	alice := env.newParty(t, 100, 0)
	bob := env.newParty(t, 0, 100)

	temp, escrowAccount := env.initEscrow(t, alternate, alice, 10, 20)

	record, err := escrow.NewClientForProgram(env.network, alternate).GetEscrowAccount(escrowAccount, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, temp, record.TempTokenAccount)

	_, err = escrow.NewClient(env.network).GetEscrowAccount(escrowAccount, solana.CommitmentFinalized)
	assert.Equal(t, escrow.ErrInvalidEscrowAccount, err)

	custodian, _, err := escrow.GetCustodianAddress(alternate)
	require.NoError(t, err)
	tempAccount, err := token.NewClient(env.network, env.mintX).GetAccount(temp, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, custodian, tempAccount.Owner)

	// The escrow account belongs to the alternate program.
	err = env.network.ProcessTransaction(env.ctx, env.exchangeTx(t, escrow.ProgramKey, bob, alice, temp, escrowAccount, 10))
	require.Error(t, err)

	tx := env.exchangeTx(t, alternate, bob, alice, temp, escrowAccount, 10)
	require.NoError(t, env.network.ProcessTransaction(env.ctx, tx))
	assert.EqualValues(t, 20, env.tokenBalance(t, env.mintY, alice.yAccount))
	assert.EqualValues(t, 10, env.tokenBalance(t, env.mintX, bob.xAccount))
}

func TestNetwork_GetEscrowAccountsPaging(t *testing.T) {
	env := setup(t)

	alice := env.newParty(t, 1000, 0)

	var expected []ed25519.PublicKey
	for i := 0; i < 5; i++ {
		_, escrowAccount := env.initEscrow(t, escrow.ProgramKey, alice, 10, uint64(i+1))
		expected = append(expected, escrowAccount)
	}

	// An allocated but uninitialized escrow is skipped.
	pending := testutil.GenerateSolanaKeypair(t)
	lamports, err := env.network.GetMinimumBalanceForRentExemption(escrow.EscrowAccountSize)
	require.NoError(t, err)
	require.NoError(t, env.submit(t, []ed25519.PrivateKey{pending},
		system.CreateAccount(testutil.PublicKey(env.payer), testutil.PublicKey(pending), escrow.ProgramKey, lamports, escrow.EscrowAccountSize),
	))

	for _, tc := range []struct {
		limit uint64
		pages int
	}{
		// Six accounts fill three pages, the fourth comes back empty.
		{limit: 2, pages: 4},
		// The second page is short and carries the last escrow.
		{limit: 4, pages: 2},
		{limit: 10, pages: 1},
		{limit: 0, pages: 1},
	} {
		var actual []ed25519.PublicKey
		var cursor query.Cursor
		var pages int
		for pages < 10 {
			entries, next, err := env.network.GetEscrowAccounts(env.ctx, escrow.ProgramKey, cursor, tc.limit)
			require.NoError(t, err)
			pages++

			for _, entry := range entries {
				actual = append(actual, entry.Address)
				assert.Equal(t, testutil.PublicKey(alice.key), entry.Account.Initializer)
			}
			if next == nil {
				break
			}
			cursor = next
		}

		assert.Equal(t, tc.pages, pages, "limit %d", tc.limit)
		assert.Equal(t, expected, actual, "limit %d", tc.limit)
	}
}

func TestNew_WithRuntimeConfig(t *testing.T) {
	config := runtime.DefaultConfig()
	config.LamportsPerSignature = 42

	env := setup(t, WithRuntimeConfig(config))

	before, err := env.network.GetBalance(testutil.PublicKey(env.payer))
	require.NoError(t, err)

	recipient := testutil.GenerateSolanaKeys(t, 1)[0]
	require.NoError(t, env.submit(t, nil, system.Transfer(testutil.PublicKey(env.payer), recipient, 1_000_000)))

	after, err := env.network.GetBalance(testutil.PublicKey(env.payer))
	require.NoError(t, err)
	assert.EqualValues(t, before-1_000_000-42, after)
}

func TestOpen_Memory(t *testing.T) {
	network, ctx, err := Open(context.Background(), DefaultConfig())
	require.NoError(t, err)
	defer network.Close()

	require.NotNil(t, ctx)
	info, err := network.GetAccountInfo(escrow.ProgramKey, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.True(t, info.Executable)
}

func TestOpen_RuntimeConfig(t *testing.T) {
	t.Setenv("LOCALNET_RUNTIME_LAMPORTS_PER_SIGNATURE", "42")
	config, err := LoadConfig("")
	require.NoError(t, err)

	fee := func(t *testing.T, opts ...Option) uint64 {
		network, ctx, err := Open(context.Background(), config, opts...)
		require.NoError(t, err)
		defer network.Close()

		payer := testutil.GenerateSolanaKeypair(t)
		require.NoError(t, network.Airdrop(ctx, testutil.PublicKey(payer), 10_000_000))

		recipient := testutil.GenerateSolanaKeys(t, 1)[0]
		tx := solana.NewTransaction(testutil.PublicKey(payer), system.Transfer(testutil.PublicKey(payer), recipient, 1_000_000))
		tx.SetBlockhash(network.AdvanceSlot())
		require.NoError(t, tx.Sign(payer))
		require.NoError(t, network.ProcessTransaction(ctx, tx))

		balance, err := network.GetBalance(testutil.PublicKey(payer))
		require.NoError(t, err)
		return 10_000_000 - 1_000_000 - balance
	}

	assert.EqualValues(t, 42, fee(t))

	// Options take precedence over the loaded config.
	override := runtime.DefaultConfig()
	override.LamportsPerSignature = 7
	assert.EqualValues(t, 7, fee(t, WithRuntimeConfig(override)))
}
